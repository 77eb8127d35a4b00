package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"musicbox/model"

	"github.com/stretchr/testify/require"
)

func newTrack(id, nome string) *model.Track {
	return &model.Track{
		ID:     id,
		Nome:   nome,
		Musica: "/static/audio_files/" + id + "_song.mp3",
	}
}

func TestNewRepositoryMissingFile(t *testing.T) {
	t.Parallel()

	repo, err := NewJSONTrackRepository(filepath.Join(t.TempDir(), "music_data.json"))
	require.NoError(t, err)
	require.Equal(t, 0, repo.Count())

	tracks, err := repo.List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tracks)
	require.Empty(t, tracks)
}

func TestNewRepositoryMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "music_data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	repo, err := NewJSONTrackRepository(path)
	require.NoError(t, err)
	require.Equal(t, 0, repo.Count())
}

func TestNewRepositoryNullDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "music_data.json")
	require.NoError(t, os.WriteFile(path, []byte("null"), 0644))

	repo, err := NewJSONTrackRepository(path)
	require.NoError(t, err)
	require.Equal(t, 0, repo.Count())
	require.NoError(t, repo.Create(context.Background(), newTrack("a", "A")))
}

func TestLoadCatalogMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "music_data.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))

	_, err := loadCatalog(path)
	require.ErrorIs(t, err, model.ErrMalformedStore)
}

func TestCreateAndRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "music_data.json")

	repo, err := NewJSONTrackRepository(path)
	require.NoError(t, err)

	first := newTrack("11111111-1111-4111-8111-111111111111", "Canção do Mar")
	second := newTrack("22222222-2222-4222-8222-222222222222", "Tom & Jerry <live>")
	second.Capa = "/static/assets/" + second.ID + "_cover.png"

	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	require.Equal(t, 2, repo.Count())

	reloaded, err := NewJSONTrackRepository(path)
	require.NoError(t, err)

	before, err := repo.List(ctx)
	require.NoError(t, err)
	after, err := reloaded.List(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)

	got, err := reloaded.GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, second, got)
}

func TestCreateDocumentFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "music_data.json")
	repo, err := NewJSONTrackRepository(path)
	require.NoError(t, err)

	track := newTrack("abc", "Canção <&>")
	require.NoError(t, repo.Create(context.Background(), track))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// non-ASCII and HTML characters are written literally
	require.Contains(t, string(data), `"nome": "Canção <&>"`)
	// four space indentation
	require.Contains(t, string(data), "\n    \"abc\": {\n        \"id\": \"abc\",")

	var doc map[string]model.Track
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, *track, doc["abc"])

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCreateDuplicateID(t *testing.T) {
	t.Parallel()

	repo, err := NewJSONTrackRepository(filepath.Join(t.TempDir(), "music_data.json"))
	require.NoError(t, err)

	require.NoError(t, repo.Create(context.Background(), newTrack("same", "one")))
	err = repo.Create(context.Background(), newTrack("same", "two"))
	require.ErrorIs(t, err, model.ErrDuplicateID)

	got, err := repo.GetByID(context.Background(), "same")
	require.NoError(t, err)
	require.Equal(t, "one", got.Nome)
}

func TestCreatePersistFailureKeepsTrackInMemory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// the catalog path is a directory, so the final rename fails
	path := filepath.Join(dir, "music_data.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0755))

	repo := &jsonTrackRepository{path: path, tracks: make(map[string]*model.Track)}
	err := repo.Create(context.Background(), newTrack("x", "X"))
	require.Error(t, err)
	require.Equal(t, 1, repo.Count())
}

func TestGetByIDNotFound(t *testing.T) {
	t.Parallel()

	repo, err := NewJSONTrackRepository(filepath.Join(t.TempDir(), "music_data.json"))
	require.NoError(t, err)

	_, err = repo.GetByID(context.Background(), "missing")
	require.True(t, errors.Is(err, model.ErrNotFound))
}

func TestListReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := NewJSONTrackRepository(filepath.Join(t.TempDir(), "music_data.json"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newTrack("b", "B")))
	require.NoError(t, repo.Create(ctx, newTrack("a", "A")))

	tracks, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	require.Equal(t, "a", tracks[0].ID)
	require.Equal(t, "b", tracks[1].ID)

	tracks[0].Nome = "changed"
	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "A", got.Nome)
}

func TestConcurrentCreateKeepsEveryTrack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "music_data.json")
	repo, err := NewJSONTrackRepository(path)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("track-%02d", i)
			errs <- repo.Create(ctx, newTrack(id, id))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, n, repo.Count())

	reloaded, err := NewJSONTrackRepository(path)
	require.NoError(t, err)
	require.Equal(t, n, reloaded.Count())
}

func TestWatchReloadsOnExternalWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "music_data.json")
	repo, err := NewJSONTrackRepository(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, repo, path, func() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	external := map[string]*model.Track{"ext": newTrack("ext", "External")}
	require.Eventually(t, func() bool {
		if err := saveCatalog(path, external); err != nil {
			return false
		}
		select {
		case <-reloaded:
			return repo.Count() == 1
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	got, err := repo.GetByID(context.Background(), "ext")
	require.NoError(t, err)
	require.Equal(t, "External", got.Nome)

	cancel()
	require.NoError(t, <-done)
}

func TestReloadKeepsCatalogOnMalformedDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "music_data.json")
	repo, err := NewJSONTrackRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newTrack("a", "A")))
	require.NoError(t, repo.Create(ctx, newTrack("b", "B")))
	version := repo.Version()

	// a truncated save, as left by an editor mid-write
	require.NoError(t, os.WriteFile(path, []byte(`{"a": {`), 0644))

	err = repo.Reload()
	require.ErrorIs(t, err, model.ErrMalformedStore)
	require.Equal(t, 2, repo.Count())
	require.Equal(t, version, repo.Version())

	require.NoError(t, repo.Create(ctx, newTrack("c", "C")))

	onDisk, err := loadCatalog(path)
	require.NoError(t, err)
	require.Len(t, onDisk, 3)
	for _, id := range []string{"a", "b", "c"} {
		require.Contains(t, onDisk, id)
	}
}

func TestVersionChangesWithCatalog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "music_data.json")
	repo, err := NewJSONTrackRepository(path)
	require.NoError(t, err)

	tracks, v0, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, tracks)
	require.Equal(t, v0, repo.Version())

	require.NoError(t, repo.Create(ctx, newTrack("a", "A")))
	tracks, v1, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.NotEqual(t, v0, v1)

	err = repo.Create(ctx, newTrack("a", "again"))
	require.ErrorIs(t, err, model.ErrDuplicateID)
	require.Equal(t, v1, repo.Version())

	require.NoError(t, repo.Reload())
	require.NotEqual(t, v1, repo.Version())
}
