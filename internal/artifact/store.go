// Package artifact stores uploaded identity documents.
//
// Keys are bucket-style paths of the form {identity}/{event}_{unix_ms}_{nonce}{.ext}.
// A key is written once: Put never overwrites, and Delete of a missing key succeeds.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var (
	ErrExists      = errors.New("artifact already exists")
	ErrNotFound    = errors.New("artifact not found")
	ErrUnavailable = errors.New("artifact store unavailable")
	ErrInvalidKey  = errors.New("invalid artifact key")
)

// Store is the interface implemented by artifact backends.
type Store interface {
	// Put writes body under key and returns the number of bytes stored.
	// It returns ErrExists if key is already present.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error)
	// Open returns the stored bytes and their content type.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// URL returns the public reference stored on the registration.
	URL(key string) string
}

// NewKey builds a fresh artifact key for an identity's document for an event.
func NewKey(identityID, eventID string, at time.Time, filename string) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s/%s_%d_%s%s",
		sanitize(identityID), sanitize(eventID), at.UnixMilli(), nonce, extension(filename))
}

// ValidateKey rejects keys that could escape a backend's namespace.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

func extension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ""
		}
	}
	return ext
}

// OwnerSegment returns the first key segment NewKey uses for identityID.
// Distinct identities always map to distinct segments.
func OwnerSegment(identityID string) string {
	return sanitize(identityID)
}

// KeyOwner returns the first segment of key.
func KeyOwner(key string) string {
	owner, _, _ := strings.Cut(key, "/")
	return owner
}

// sanitize keeps ASCII letters, digits and '-' and escapes every other byte as _xx.
func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}
