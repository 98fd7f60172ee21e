package admission

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/artifact"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository/memory"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/repository/sqlite"
)

// recordStore is what the tests need from a record backend.
type recordStore interface {
	EventReader
	PairFinder
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

type backend struct {
	name string
	open func(t *testing.T) recordStore
}

var backends = []backend{
	{name: "memory", open: func(t *testing.T) recordStore { return memory.New() }},
	{name: "sqlite", open: func(t *testing.T) recordStore {
		store, err := sqlite.Open(t.TempDir() + "/admission.db")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}},
}

// spyStore counts artifact writes and can inject failures.
type spyStore struct {
	artifact.Store

	puts    atomic.Int32
	deletes atomic.Int32
	live    sync.Map

	putErr    error
	deleteErr error
	onPut     func(ctx context.Context)
}

func newSpyStore(t *testing.T) *spyStore {
	t.Helper()
	inner, err := artifact.NewFSStore(t.TempDir(), "http://files.test/id-cards")
	require.NoError(t, err)
	return &spyStore{Store: inner}
}

func (p *spyStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	p.puts.Add(1)
	if p.onPut != nil {
		p.onPut(ctx)
	}
	if p.putErr != nil {
		return 0, p.putErr
	}
	n, err := p.Store.Put(ctx, key, body, contentType)
	if err == nil {
		p.live.Store(key, struct{}{})
	}
	return n, err
}

func (p *spyStore) Delete(ctx context.Context, key string) error {
	p.deletes.Add(1)
	if p.deleteErr != nil {
		return p.deleteErr
	}
	if err := p.Store.Delete(ctx, key); err != nil {
		return err
	}
	p.live.Delete(key)
	return nil
}

func (p *spyStore) liveCount() int {
	n := 0
	p.live.Range(func(_, _ any) bool { n++; return true })
	return n
}

func createEvent(t *testing.T, store recordStore, capacity int, status model.EventStatus) *model.Event {
	t.Helper()
	e, err := store.Create(context.Background(), model.CreateEventRequest{
		Title: "River cleanup", MaxParticipants: capacity, Status: status,
	})
	require.NoError(t, err)
	return e
}

func identity(subject string) model.Identity {
	return model.Identity{Subject: subject, Email: subject + "@example.com"}
}

func application(eventID string) model.Application {
	body := "%PNG fake identity card"
	return model.Application{
		EventID: eventID,
		Profile: model.Profile{
			FullName:    "Ada Volunteer",
			Phone:       "+62 812 0000 0000",
			Address:     "Jl. Merdeka 1",
			Institution: "Universitas Indonesia",
			Age:         21,
			Gender:      "Perempuan",
			Motivation:  "I want to help.",
		},
		Document: &model.Document{
			Filename:    "ktp.png",
			ContentType: "image/png",
			Size:        int64(len(body)),
			Body:        strings.NewReader(body),
		},
	}
}
