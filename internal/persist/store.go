// Package persist stores one Symbol per file with atomic replacement, a
// bounded backup ring, an in-memory cache, and an optimistic version check
// for concurrent writers. A SQLite provenance log rides alongside for
// decision and cycle audit rows.
package persist

// #region imports
import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region errors

var (
	// ErrNotFound: no persisted symbol under that id.
	ErrNotFound = errors.New("symbol not found")
	// ErrAlreadyExists: SaveIfNotExists lost to an existing record.
	ErrAlreadyExists = errors.New("symbol already exists")
	// ErrVersionConflict: the stored version moved past the expectation.
	ErrVersionConflict = errors.New("version conflict")
	// ErrMalformed: the on-disk record was not a valid symbol.
	ErrMalformed = errors.New("malformed symbol record")
)

// #endregion errors

// #region events

// EventType tags store lifecycle events.
type EventType string

const (
	EventSaved     EventType = "saved"
	EventLoaded    EventType = "loaded"
	EventDeleted   EventType = "deleted"
	EventCacheHit  EventType = "cache_hit"
	EventCacheMiss EventType = "cache_miss"
)

// Event is one store lifecycle notification.
type Event struct {
	Type     EventType
	SymbolID string
	Version  int
}

// #endregion events

// #region options

// Options configures a Store. Zero value: atomic writes on, cache on,
// validation on, three backups.
type Options struct {
	Dir            string
	DisableAtomic  bool
	DisableCache   bool
	SkipValidation bool
	MaxBackups     int // 0 selects the default of 3; negative disables backups
	OnEvent        func(Event)
}

// #endregion options

// #region store

// Store is the file-backed symbol store.
type Store struct {
	opts Options

	mu    sync.Mutex
	cache map[string]symbol.Symbol
}

// NewStore creates the data directory (and its backup root) if needed.
func NewStore(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("store dir required")
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{
		opts:  opts,
		cache: make(map[string]symbol.Symbol),
	}, nil
}

func (st *Store) path(id string) string {
	return filepath.Join(st.opts.Dir, id+".json")
}

func (st *Store) backupDir(id string) string {
	return filepath.Join(st.opts.Dir, ".backups", id)
}

func (st *Store) emit(e Event) {
	if st.opts.OnEvent != nil {
		st.opts.OnEvent(e)
	}
}

// #endregion store

// #region save

// Save persists the symbol: snapshot the prior version to the backup ring,
// write the record (atomically unless disabled), refresh the cache.
func (st *Store) Save(s symbol.Symbol) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.saveLocked(s)
}

func (st *Store) saveLocked(s symbol.Symbol) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal symbol: %w", err)
	}

	if st.opts.MaxBackups > 0 {
		if err := st.snapshotBackup(s.ID); err != nil {
			return err
		}
	}

	path := st.path(s.ID)
	if st.opts.DisableAtomic {
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("write symbol: %w", err)
		}
	} else {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, raw, 0o644); err != nil {
			return fmt.Errorf("write temp: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("replace symbol file: %w", err)
		}
	}

	if !st.opts.DisableCache {
		st.cache[s.ID] = s
	}
	st.emit(Event{Type: EventSaved, SymbolID: s.ID, Version: s.Version})
	return nil
}

// snapshotBackup copies the current on-disk record into the backup ring and
// evicts the oldest entries beyond the cap.
func (st *Store) snapshotBackup(id string) error {
	prior, err := os.ReadFile(st.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // first save, nothing to snapshot
		}
		return fmt.Errorf("read prior version: %w", err)
	}

	var prev symbol.Symbol
	version := 0
	if json.Unmarshal(prior, &prev) == nil {
		version = prev.Version
	}

	dir := st.backupDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("%s.v%d.json", id, version)
	if err := os.WriteFile(filepath.Join(dir, name), prior, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	if len(entries) <= st.opts.MaxBackups {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		return backupVersion(names[i]) < backupVersion(names[j])
	})
	for _, n := range names[:len(names)-st.opts.MaxBackups] {
		os.Remove(filepath.Join(dir, n))
	}
	return nil
}

// backupVersion parses N from "<id>.vN.json"; raw filename order otherwise.
func backupVersion(name string) int {
	base := strings.TrimSuffix(name, ".json")
	i := strings.LastIndex(base, ".v")
	if i < 0 {
		return 0
	}
	var v int
	fmt.Sscanf(base[i+2:], "%d", &v)
	return v
}

// #endregion save

// #region load

// Load returns the symbol by id, from cache when enabled.
func (st *Store) Load(id string) (symbol.Symbol, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loadLocked(id)
}

func (st *Store) loadLocked(id string) (symbol.Symbol, error) {
	if !st.opts.DisableCache {
		if s, ok := st.cache[id]; ok {
			st.emit(Event{Type: EventCacheHit, SymbolID: id, Version: s.Version})
			return s, nil
		}
		st.emit(Event{Type: EventCacheMiss, SymbolID: id})
	}

	raw, err := os.ReadFile(st.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return symbol.Symbol{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return symbol.Symbol{}, fmt.Errorf("read symbol: %w", err)
	}

	var s symbol.Symbol
	if err := json.Unmarshal(raw, &s); err != nil {
		return symbol.Symbol{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !st.opts.SkipValidation {
		if err := validateShape(s); err != nil {
			return symbol.Symbol{}, err
		}
	}

	if !st.opts.DisableCache {
		st.cache[id] = s
	}
	st.emit(Event{Type: EventLoaded, SymbolID: id, Version: s.Version})
	return s, nil
}

// validateShape rejects records that don't reconstruct as symbols.
func validateShape(s symbol.Symbol) error {
	if s.Type != symbol.TypeTag {
		return fmt.Errorf("%w: type %q", symbol.ErrIntegrity, s.Type)
	}
	if !symbol.ValidID(s.ID) {
		return fmt.Errorf("%w: id %q", ErrMalformed, s.ID)
	}
	if s.Version < 1 {
		return fmt.Errorf("%w: version %d", ErrMalformed, s.Version)
	}
	if err := symbol.VerifyIntegrity(s); err != nil {
		return err
	}
	return nil
}

// #endregion load

// #region list

// Summary is the lightweight listing row.
type Summary struct {
	ID           string
	Name         string
	Status       symbol.Status
	Version      int
	Tags         []string
	CreatedAt    time.Time
	LastActivity time.Time
}

// ListOptions filters, sorts, and paginates List.
type ListOptions struct {
	Status    symbol.Status // empty = all
	Namespace string        // sanitized mission-name prefix
	Tags      []string      // all must be present
	SortBy    string        // "created_at" (default) | "last_activity" | "id"
	Offset    int
	Limit     int // 0 = no limit
}

// ListResult carries one page plus pagination state.
type ListResult struct {
	Symbols []Summary
	Total   int
	HasMore bool
}

// List enumerates persisted symbols as summaries.
func (st *Store) List(opts ListOptions) (ListResult, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	entries, err := os.ReadDir(st.opts.Dir)
	if err != nil {
		return ListResult{}, fmt.Errorf("list store dir: %w", err)
	}

	var all []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		s, err := st.loadLocked(id)
		if err != nil {
			continue // skip unreadable records; they surface on direct Load
		}
		sum := Summary{
			ID:           s.ID,
			Name:         s.Mission.Name,
			Status:       s.Status,
			Version:      s.Version,
			Tags:         s.Mission.Tags,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
		}
		if !matches(sum, opts) {
			continue
		}
		all = append(all, sum)
	}

	sortSummaries(all, opts.SortBy)

	total := len(all)
	if opts.Offset > len(all) {
		all = nil
	} else {
		all = all[opts.Offset:]
	}
	hasMore := false
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
		hasMore = true
	}

	return ListResult{Symbols: all, Total: total, HasMore: hasMore}, nil
}

func matches(sum Summary, opts ListOptions) bool {
	if opts.Status != "" && sum.Status != opts.Status {
		return false
	}
	if opts.Namespace != "" && !strings.HasPrefix(sum.ID, symbol.IDPrefix+"-"+opts.Namespace) {
		return false
	}
	for _, want := range opts.Tags {
		found := false
		for _, have := range sum.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortSummaries(all []Summary, by string) {
	sort.Slice(all, func(i, j int) bool {
		switch by {
		case "last_activity":
			return all[i].LastActivity.Before(all[j].LastActivity)
		case "id":
			return all[i].ID < all[j].ID
		default:
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
	})
}

// #endregion list

// #region simple-ops

// Exists reports whether a record is persisted under id.
func (st *Store) Exists(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.existsLocked(id)
}

func (st *Store) existsLocked(id string) bool {
	if !st.opts.DisableCache {
		if _, ok := st.cache[id]; ok {
			return true
		}
	}
	_, err := os.Stat(st.path(id))
	return err == nil
}

// Count returns the number of persisted symbols.
func (st *Store) Count() (int, error) {
	res, err := st.List(ListOptions{})
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// Delete removes the record, its cache entry, and its backup ring.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.existsLocked(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.Remove(st.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete symbol: %w", err)
	}
	os.RemoveAll(st.backupDir(id))
	delete(st.cache, id)
	st.emit(Event{Type: EventDeleted, SymbolID: id})
	return nil
}

// Clear removes every record and empties the cache.
func (st *Store) Clear() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	entries, err := os.ReadDir(st.opts.Dir)
	if err != nil {
		return fmt.Errorf("list store dir: %w", err)
	}
	for _, e := range entries {
		os.RemoveAll(filepath.Join(st.opts.Dir, e.Name()))
	}
	st.cache = make(map[string]symbol.Symbol)
	return nil
}

// #endregion simple-ops

// #region concurrency-guards

// SaveIfNotExists fails with ErrAlreadyExists when a record is present.
func (st *Store) SaveIfNotExists(s symbol.Symbol) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.existsLocked(s.ID) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, s.ID)
	}
	return st.saveLocked(s)
}

// UpdateWithVersionCheck is the optimistic-concurrency guard: the write only
// lands when the persisted version still equals expectedVersion. On
// conflict the stored record is left untouched.
func (st *Store) UpdateWithVersionCheck(s symbol.Symbol, expectedVersion int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	current, err := st.loadLocked(s.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: stored %d, expected %d", ErrVersionConflict, current.Version, expectedVersion)
	}
	return st.saveLocked(s)
}

// #endregion concurrency-guards
