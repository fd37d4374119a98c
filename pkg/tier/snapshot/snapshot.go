// Package snapshot implements the read-only cache tier backed by the
// configuration documents bundled into the binary at build time.
package snapshot

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/cache"
	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
)

//go:embed data
var bundled embed.FS

// Bundled returns the documents compiled into the binary.
func Bundled() fs.FS {
	sub, err := fs.Sub(bundled, "data")
	if err != nil {
		panic(err)
	}
	return sub
}

// errNoDocument is returned when a category has no document in any format.
var errNoDocument = errors.New("no snapshot document")

// Options configures the snapshot tier.
type Options struct {
	// FS holds one document per category (default Bundled()).
	FS fs.FS

	// Categories lists the documents to load (default policy.Categories()).
	Categories []string

	// MaxEntriesPerCategory caps the flattened fields per document.
	MaxEntriesPerCategory int

	// PolicyFor supplies the TTL stamped on returned entries.
	PolicyFor func(key string) policy.Policy

	// Logger defaults to the global logger tagged with the component.
	Logger *zerolog.Logger
}

// Store is the snapshot tier. Its index is built once on first use and
// only rebuilt after Clear.
type Store struct {
	fsys       fs.FS
	categories []string
	maxFields  int
	policyFor  func(string) policy.Policy
	logger     zerolog.Logger

	mu    sync.RWMutex
	index map[string]json.RawMessage
}

var _ cache.Tier = (*Store)(nil)
var _ cache.Sizer = (*Store)(nil)

// New creates the snapshot tier. Nothing is read until the first lookup.
func New(opts Options) *Store {
	s := &Store{
		fsys:       opts.FS,
		categories: opts.Categories,
		maxFields:  opts.MaxEntriesPerCategory,
		policyFor:  opts.PolicyFor,
	}
	if s.fsys == nil {
		s.fsys = Bundled()
	}
	if len(s.categories) == 0 {
		s.categories = policy.Categories()
	}
	if s.maxFields <= 0 {
		s.maxFields = policy.DefaultCapacity().MaxEntriesPerCategory
	}
	if s.policyFor == nil {
		s.policyFor = policy.ForKey
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	} else {
		s.logger = log.With().Str("component", "snapshot-tier").Logger()
	}
	return s
}

// Load builds the index if it has not been built yet. Get calls it
// implicitly; the composition root may call it eagerly at startup.
func (s *Store) Load(ctx context.Context) error {
	_, err := s.ensureLoaded(ctx)
	return err
}

func (s *Store) ensureLoaded(ctx context.Context) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}

	idx, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.index = idx
	return idx, nil
}

// load reads every category document in parallel. A missing or invalid
// document leaves its category empty without failing the others.
func (s *Store) load(ctx context.Context) (map[string]json.RawMessage, error) {
	start := time.Now()
	docs := make([]map[string]json.RawMessage, len(s.categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range s.categories {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := s.readDocument(category)
			if err != nil {
				event := s.logger.Warn()
				if errors.Is(err, errNoDocument) {
					event = s.logger.Debug()
				}
				event.Err(err).Str("category", category).Msg("Snapshot category unavailable")
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	index := make(map[string]json.RawMessage)
	for i, category := range s.categories {
		s.flatten(index, category, docs[i])
	}

	s.logger.Debug().
		Int("categories", len(s.categories)).
		Int("keys", len(index)).
		Dur("duration", time.Since(start)).
		Msg("Snapshot loaded")

	return index, nil
}

// flatten stores the whole document under the bare category and every
// field under "category:field".
func (s *Store) flatten(index map[string]json.RawMessage, category string, doc map[string]json.RawMessage) {
	if doc == nil {
		return
	}

	whole, err := json.Marshal(doc)
	if err != nil {
		s.logger.Warn().Err(err).Str("category", category).Msg("Failed to encode snapshot category")
		return
	}
	index[category] = whole

	fields := make([]string, 0, len(doc))
	for field := range doc {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	if len(fields) > s.maxFields {
		s.logger.Warn().
			Str("category", category).
			Int("fields", len(fields)).
			Int("max", s.maxFields).
			Msg("Snapshot category truncated")
		fields = fields[:s.maxFields]
	}

	for _, field := range fields {
		index[policy.JoinKey(category, field)] = doc[field]
	}
}

// readDocument loads "<category>.json", falling back to YAML.
func (s *Store) readDocument(category string) (map[string]json.RawMessage, error) {
	data, err := fs.ReadFile(s.fsys, category+".json")
	if err == nil {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s.json: %w", category, err)
		}
		return doc, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s.json: %w", category, err)
	}

	for _, ext := range []string{".yaml", ".yml"} {
		name := category + ext
		data, err := fs.ReadFile(s.fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return decodeYAML(name, data)
	}

	return nil, fmt.Errorf("%w for %s", errNoDocument, path.Clean(category))
}

func decodeYAML(name string, data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	doc := make(map[string]json.RawMessage, len(raw))
	for field, v := range raw {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s field %s: %w", name, field, err)
		}
		doc[field] = encoded
	}
	return doc, nil
}

// Get returns the bundled value for key. Snapshot values never expire;
// the returned entry carries the category TTL so promotions use it.
func (s *Store) Get(ctx context.Context, key string) (*cache.Entry, error) {
	idx, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	value, ok := idx[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &cache.Entry{
		Value:     cache.CloneValue(value),
		WrittenAt: time.Now(),
		TTL:       s.policyFor(key).TTL,
	}, nil
}

// Set is a no-op: the snapshot is read-only.
func (s *Store) Set(_ context.Context, key string, _ json.RawMessage, _ time.Duration) error {
	s.logger.Warn().Str("key", key).Msg("Ignoring write to read-only snapshot tier")
	return nil
}

// SetMany is a no-op: the snapshot is read-only.
func (s *Store) SetMany(_ context.Context, values map[string]json.RawMessage, _ time.Duration) error {
	s.logger.Warn().Int("keys", len(values)).Msg("Ignoring bulk write to read-only snapshot tier")
	return nil
}

// Delete is a no-op: the snapshot is read-only.
func (s *Store) Delete(_ context.Context, key string) error {
	s.logger.Warn().Str("key", key).Msg("Ignoring delete on read-only snapshot tier")
	return nil
}

// Clear drops the in-memory index; the next lookup reloads the documents.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()
	return nil
}

// Has reports whether the snapshot holds key.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, err := s.Get(ctx, key)
	return err == nil
}

// Keys returns every indexed key in sorted order, loading if needed.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	idx, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of indexed keys without triggering a load.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Usage returns the bytes held by the index without triggering a load.
func (s *Store) Usage() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for k, v := range s.index {
		n += int64(len(k) + len(v))
	}
	return n
}
