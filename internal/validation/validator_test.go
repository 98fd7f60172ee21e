package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
)

func validProfile() model.Profile {
	return model.Profile{
		FullName:    "Ayu Lestari",
		Phone:       "+62 812 0000 0000",
		Address:     "Jl. Merdeka 1",
		Institution: "Universitas Indonesia",
		Age:         21,
		Gender:      model.GenderFemale,
		Motivation:  "I want to help.",
	}
}

func TestStructAcceptsValidProfile(t *testing.T) {
	p := validProfile()
	assert.NoError(t, Struct(&p))
}

func TestStructReportsFieldByJSONName(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Profile)
		field  string
		tag    string
	}{
		{"missing name", func(p *model.Profile) { p.FullName = "" }, "full_name", "required"},
		{"underage", func(p *model.Profile) { p.Age = 16 }, "age", "gte"},
		{"unknown gender", func(p *model.Profile) { p.Gender = "x" }, "gender", "oneof"},
		{"missing motivation", func(p *model.Profile) { p.Motivation = "" }, "motivation", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)

			err := Struct(&p)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.tag, fe.Tag)
			assert.NotEmpty(t, fe.Message)
		})
	}
}
