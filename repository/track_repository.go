package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"musicbox/logger"
	"musicbox/model"
)

// TrackRepository defines the interface for catalog operations.
type TrackRepository interface {
	Create(ctx context.Context, track *model.Track) error
	GetByID(ctx context.Context, id string) (*model.Track, error)
	List(ctx context.Context) ([]*model.Track, error)
	// Snapshot returns the same tracks as List together with the catalog
	// version they belong to.
	Snapshot(ctx context.Context) ([]*model.Track, uint64, error)
	// Version changes whenever the catalog content may have changed.
	Version() uint64
	Count() int
	Reload() error
}

// jsonTrackRepository keeps the whole catalog in memory and mirrors it to a
// single JSON document after every insertion.
type jsonTrackRepository struct {
	mu      sync.RWMutex
	path    string
	tracks  map[string]*model.Track
	version uint64
}

// NewJSONTrackRepository loads the catalog stored at path.
// A missing or unparsable document yields an empty catalog.
func NewJSONTrackRepository(path string) (TrackRepository, error) {
	r := &jsonTrackRepository{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the in-memory catalog with the document on disk. Once a
// catalog is loaded, a malformed document is reported and the current
// tracks are kept; only the first load falls back to an empty catalog.
func (r *jsonTrackRepository) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracks, err := loadCatalog(r.path)
	if errors.Is(err, model.ErrMalformedStore) {
		if r.tracks != nil {
			return fmt.Errorf("keeping %d tracks, %s: %w", len(r.tracks), r.path, err)
		}
		logger.Warn("catalog document is not valid JSON, starting empty",
			logger.String("path", r.path),
			logger.ErrorField(err))
		tracks = make(map[string]*model.Track)
	} else if err != nil {
		return err
	}

	r.tracks = tracks
	r.version++

	logger.Info("catalog loaded", logger.String("path", r.path), logger.Int("tracks", len(tracks)))
	return nil
}

// Create inserts a track and persists the catalog. When persisting fails the
// track stays in memory; the error is still returned to the caller.
func (r *jsonTrackRepository) Create(ctx context.Context, track *model.Track) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tracks[track.ID]; exists {
		return fmt.Errorf("create track %s: %w", track.ID, model.ErrDuplicateID)
	}
	stored := *track
	r.tracks[track.ID] = &stored
	r.version++

	if err := saveCatalog(r.path, r.tracks); err != nil {
		return fmt.Errorf("failed to persist catalog after inserting %s: %w", track.ID, err)
	}
	return nil
}

// GetByID returns a copy of the track, or model.ErrNotFound.
func (r *jsonTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tracks[id]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", id, model.ErrNotFound)
	}
	out := *t
	return &out, nil
}

// List returns copies of all tracks ordered by id.
func (r *jsonTrackRepository) List(ctx context.Context) ([]*model.Track, error) {
	tracks, _, err := r.Snapshot(ctx)
	return tracks, err
}

func (r *jsonTrackRepository) Snapshot(ctx context.Context) ([]*model.Track, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tracks := make([]*model.Track, 0, len(r.tracks))
	for _, t := range r.tracks {
		out := *t
		tracks = append(tracks, &out)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	return tracks, r.version, nil
}

func (r *jsonTrackRepository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *jsonTrackRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracks)
}

func loadCatalog(path string) (map[string]*model.Track, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]*model.Track), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	tracks := make(map[string]*model.Track)
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedStore, err)
	}
	if tracks == nil {
		// document was the literal null
		tracks = make(map[string]*model.Track)
	}
	return tracks, nil
}

// saveCatalog writes the catalog to a temp file next to path and renames it
// over the target so readers never observe a partial document.
func saveCatalog(path string, tracks map[string]*model.Track) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(tracks); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp catalog: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp catalog: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp catalog: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace catalog %s: %w", path, err)
	}
	return nil
}
