// Package dump persists conversation dumps: the chat messages plus the
// runtime configuration needed to reproduce the server state they were
// recorded under.
//
// A dump is always written as a pair keyed by one human-chosen name: the
// JSON document <name>.json written here, and the KV-cache blob <name>.bin
// written by the server itself into the same directory. The store never
// opens the blob; it only guarantees the two stay in step by ordering the
// KV-cache action strictly before its own file I/O.
package dump

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/slot"
)

const dumpExt = ".json"

// CacheManager is the slice of the slot manager the store needs.
type CacheManager interface {
	Save(ctx context.Context, modelID, dumpName string) error
	Restore(ctx context.Context, modelID, dumpName string, slotID int) error
}

// Store reads and writes conversation dumps in a single directory.
type Store struct {
	dir    string
	cache  CacheManager
	logger *zap.Logger

	// now is the timestamp source, injectable for tests.
	now func() time.Time
}

func NewStore(dir string, cache CacheManager, logger *zap.Logger) *Store {
	return &Store{
		dir:    dir,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// SetNowFunc overrides the timestamp source. Tests use this for stable output.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Dir returns the dump directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save snapshots the KV cache first and only then writes the dump document.
// If the cache save fails nothing is written, so a dump on disk always has a
// cache blob that was at least once valid next to it. The document's
// timestamp is stamped here; everything else is taken from doc as given.
func (s *Store) Save(ctx context.Context, name string, doc *Dump) error {
	// A dump without messages is not a conversation; rejecting it here also
	// keeps the KV-cache blob from being written for a document that would
	// fail validation on read.
	if len(doc.Messages) == 0 {
		return ErrInvalidFormat{Name: name, Reason: "empty messages"}
	}

	if err := s.cache.Save(ctx, doc.ModelID, name); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}

	doc.Timestamp = s.now().UnixMilli()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling dump: %w", err)
	}

	// Temp file plus rename so a concurrent read never sees a partial write.
	tmpFile, err := os.CreateTemp(s.dir, "dump-*.json")
	if err != nil {
		return fmt.Errorf("creating temp dump file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing temp dump file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp dump file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), s.path(name)); err != nil {
		return fmt.Errorf("persisting dump file: %w", err)
	}

	s.logger.Info("saved conversation dump",
		zap.String("model", doc.ModelID),
		zap.String("name", name),
		zap.Int("messages", len(doc.Messages)),
	)

	return nil
}

// Restore reads and validates the named dump, restores its KV cache into
// slot 0, and returns the saved messages. A restore only succeeds if both
// the document was valid and the cache actually came back.
func (s *Store) Restore(ctx context.Context, modelID, name string) ([]ChatMessage, error) {
	doc, err := s.Read(name)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Restore(ctx, modelID, name, 0); err != nil {
		return nil, err
	}

	return doc.Messages, nil
}

// Read loads and validates the named dump document without touching the KV
// cache. The reconciler uses this to inspect the runtime context before
// deciding whether the server must be relaunched.
func (s *Store) Read(name string) (*Dump, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound{Name: name}
		}
		return nil, fmt.Errorf("reading dump: %w", err)
	}

	return upgradeOnRead(name, data)
}

// List returns the base names of all dump documents in directory order.
// Listing is best-effort and feeds passive UI population, so any filesystem
// error yields an empty result instead of propagating.
func (s *Store) List() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("listing dumps failed", zap.Error(err))
		}
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), dumpExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), dumpExt))
	}
	return names
}

// Delete removes the dump document and its paired cache blob. Missing files
// are fine; deleting an already-deleted dump is a no-op.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing dump: %w", err)
	}

	blob := filepath.Join(s.dir, slot.CacheFilename(name))
	if err := os.Remove(blob); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cache blob: %w", err)
	}

	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+dumpExt)
}

// upgradeOnRead parses a dump document of any known vintage into the current
// shape. v1 documents lack runtimeContext, which stays nil; a document
// without messages was never a dump at all.
func upgradeOnRead(name string, data []byte) (*Dump, error) {
	// Parse loosely first to tell "field absent" apart from "field empty".
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, ErrInvalidFormat{Name: name, Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}

	if _, ok := probe["messages"]; !ok {
		return nil, ErrInvalidFormat{Name: name, Reason: "missing messages field"}
	}

	doc := &Dump{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, ErrInvalidFormat{Name: name, Reason: err.Error()}
	}

	// Catches both "messages": [] and "messages": null.
	if len(doc.Messages) == 0 {
		return nil, ErrInvalidFormat{Name: name, Reason: "empty messages"}
	}

	return doc, nil
}
