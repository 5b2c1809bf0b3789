package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scan-io-git/scanio-remote/pkg/shared/files"
)

// entry is the single record type kept in the database. Values are stored as raw JSON so
// one key can hold any shape, such as the whole scan history keyed by id.
type entry struct {
	Key   string
	Value json.RawMessage
}

// DB is the durable storage of the client.
type DB struct {
	store  *badgerhold.Store
	logger hclog.Logger
}

// Open opens (or creates) the database in the given folder.
func Open(path string, logger hclog.Logger) (*DB, error) {
	if err := files.CreateFolderIfNotExists(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	return open(options, logger)
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory(logger hclog.Logger) (*DB, error) {
	options := badgerhold.DefaultOptions
	options.Dir = ""
	options.ValueDir = ""
	options.InMemory = true
	return open(options, logger)
}

func open(options badgerhold.Options, logger hclog.Logger) (*DB, error) {
	options.Encoder = json.Marshal
	options.Decoder = json.Unmarshal
	options.Logger = &badgerLogger{logger: logger.Named("badger")}

	logger.Debug("opening database", "path", options.Dir, "in_memory", options.InMemory)
	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &DB{store: store, logger: logger}, nil
}

// badgerLogger forwards badger's own messages to hclog. Info output is demoted to debug.
type badgerLogger struct {
	logger hclog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *badgerLogger) Warningf(format string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *badgerLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *badgerLogger) Debugf(format string, v ...interface{}) {
	l.logger.Trace(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Close closes the database.
func (d *DB) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Global returns the scope shared by every workspace, e.g. for credentials.
func (d *DB) Global() *Memento {
	return &Memento{db: d, prefix: "global/"}
}

// Workspace returns the scope private to the workspace at the given path.
func (d *DB) Workspace(path string) *Memento {
	return &Memento{db: d, prefix: "workspace/" + WorkspaceID(path) + "/"}
}

// WorkspaceID derives a stable identifier for a workspace folder.
func WorkspaceID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// Memento is a key/value view over one scope of the database.
type Memento struct {
	db     *DB
	prefix string
}

// Get decodes the value stored under key into value. It reports false when the key is absent.
func (m *Memento) Get(key string, value any) (bool, error) {
	var e entry
	if err := m.db.store.Get(m.prefix+key, &e); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	if err := json.Unmarshal(e.Value, value); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

// Update stores value under key, replacing any previous value.
func (m *Memento) Update(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	fullKey := m.prefix + key
	if err := m.db.store.Upsert(fullKey, &entry{Key: fullKey, Value: raw}); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Memento) Delete(key string) error {
	if err := m.db.store.Delete(m.prefix+key, &entry{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}
