package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/quarterdeck/captain/pkg/log"
)

// Store owns the captain's document directory and its three JSON
// documents: crew, chores, and users.
type Store struct {
	dir    string
	crew   *Document
	chores *Document
	users  *Document
}

// Open prepares the document directory under dir and returns a store over
// it. The documents themselves are created lazily on first save.
func Open(dir string) (*Store, error) {
	base := filepath.Join(dir, "captain")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logger := log.WithComponent("store")
	return &Store{
		dir:    base,
		crew:   newDocument("crew", filepath.Join(base, "crew.json"), logger),
		chores: newDocument("chores", filepath.Join(base, "chores.json"), logger),
		users:  newDocument("users", filepath.Join(base, "users.json"), logger),
	}, nil
}

// Dir returns the directory holding the documents. The archive database
// and the discovery file live beside them.
func (s *Store) Dir() string { return s.dir }

// Crew returns the crew document (sailors keyed by name).
func (s *Store) Crew() *Document { return s.crew }

// Chores returns the chores document (keyed by decimal chore id).
func (s *Store) Chores() *Document { return s.chores }

// Users returns the users document (keyed by uid).
func (s *Store) Users() *Document { return s.users }

// Document is one JSON file with a process-wide mutex. Writers replace the
// whole file atomically, so readers never observe a torn document.
type Document struct {
	name   string
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

func newDocument(name, path string, logger zerolog.Logger) *Document {
	return &Document{name: name, path: path, logger: logger}
}

// Name returns the document's short name.
func (d *Document) Name() string { return d.name }

// Path returns the document's file path.
func (d *Document) Path() string { return d.path }

// WithLock runs fn while holding the document mutex. All mutations of the
// in-memory view backed by this document go through here.
func (d *Document) WithLock(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn()
}

// Load reads the document into the value pointed to by into. A missing,
// unreadable, or corrupt file leaves the caller with an empty document;
// the condition is logged and never propagated.
func (d *Document) Load(into interface{}) {
	data, err := os.ReadFile(d.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.logger.Debug().Str("document", d.name).Msg("document missing, starting empty")
		return
	case err != nil:
		d.logger.Error().Err(err).Str("document", d.name).Msg("failed to read document, starting empty")
		return
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, into); err != nil {
		d.logger.Error().Err(err).Str("document", d.name).Msg("corrupt document, starting empty")
		zero(into)
	}
}

// Save marshals v and atomically replaces the document file.
func (d *Document) Save(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", d.name, err)
	}
	data = append(data, '\n')
	if err := renameio.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s document: %w", d.name, err)
	}
	return nil
}

// zero resets *into so a partially decoded document is not half-visible.
func zero(into interface{}) {
	v := reflect.ValueOf(into)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		e := v.Elem()
		e.Set(reflect.Zero(e.Type()))
	}
}
