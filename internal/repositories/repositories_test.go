package repositories

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func seedSubscriber(t *testing.T, store *SQLiteStore, license string) *models.Subscriber {
	t.Helper()
	sub, err := store.CreateSubscriber(context.Background(), license, "")
	if err != nil {
		t.Fatalf("failed to create subscriber: %v", err)
	}
	return sub
}

func verified(title, artist string) models.VerifiedTrack {
	return models.VerifiedTrack{
		Title:    title,
		Artist:   artist,
		URI:      "https://www.youtube.com/watch?v=" + title,
		Duration: 200,
	}
}

func TestSubscriberRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create and GetByLicense", func(t *testing.T) {
		repo := NewSubscriberRepository(setupTestDB(t))

		created, err := repo.Create(ctx, "lic-123", "corner cafe")
		if err != nil {
			t.Fatalf("failed to create subscriber: %v", err)
		}

		got, err := repo.GetByLicense(ctx, "lic-123")
		if err != nil {
			t.Fatalf("failed to get subscriber: %v", err)
		}
		if got.ID != created.ID || got.Note != "corner cafe" {
			t.Errorf("unexpected subscriber %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("created_at should be populated")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := NewSubscriberRepository(setupTestDB(t))
		if _, err := repo.GetByLicense(ctx, "missing"); !errors.Is(err, shared.ErrSubscriberNotFound) {
			t.Errorf("expected ErrSubscriberNotFound, got %v", err)
		}
	})

	t.Run("DuplicateLicense", func(t *testing.T) {
		repo := NewSubscriberRepository(setupTestDB(t))
		if _, err := repo.Create(ctx, "dup", ""); err != nil {
			t.Fatalf("failed to create subscriber: %v", err)
		}
		if _, err := repo.Create(ctx, "dup", ""); err == nil {
			t.Error("expected unique violation for duplicate license")
		}
	})

	t.Run("EmptyLicense", func(t *testing.T) {
		repo := NewSubscriberRepository(setupTestDB(t))
		if _, err := repo.Create(ctx, "  ", ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("PromptsBySubscriber returns oldest first", func(t *testing.T) {
		repo := NewSubscriberRepository(setupTestDB(t))
		sub, err := repo.Create(ctx, "lic", "")
		if err != nil {
			t.Fatalf("failed to create subscriber: %v", err)
		}

		for _, text := range []string{"mellow jazz for mornings", "upbeat indie for lunch"} {
			if _, err := repo.AddPrompt(ctx, sub.ID, text, ""); err != nil {
				t.Fatalf("failed to add prompt: %v", err)
			}
		}

		prompts, err := repo.PromptsBySubscriber(ctx, sub.ID)
		if err != nil {
			t.Fatalf("failed to list prompts: %v", err)
		}
		if len(prompts) != 2 || prompts[0].Text != "mellow jazz for mornings" {
			t.Errorf("unexpected prompts %+v", prompts)
		}
	})
}

func TestTrackRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create is idempotent on title and artist", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		first, err := repo.Create(ctx, verified("Shape of You", "Ed Sheeran"))
		if err != nil {
			t.Fatalf("first create failed: %v", err)
		}

		dup := verified("Shape of You", "Ed Sheeran")
		dup.URI = "https://www.youtube.com/watch?v=other"
		second, err := repo.Create(ctx, dup)
		if err != nil {
			t.Fatalf("duplicate create should not error: %v", err)
		}

		if first.ID != second.ID {
			t.Errorf("expected same id, got %d and %d", first.ID, second.ID)
		}
		if second.URI != first.URI {
			t.Errorf("existing row should win, got uri %s", second.URI)
		}
	})

	t.Run("Create rejects incomplete tracks", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))
		if _, err := repo.Create(ctx, models.VerifiedTrack{Title: "x"}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Get NotFound", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))
		if _, err := repo.Get(ctx, 42); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
		if err := repo.SetEmbedding(ctx, 42, []float32{1}); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("Similar ranks by cosine distance", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		vectors := map[string][]float32{
			"near":     {1, 0.1, 0},
			"nearer":   {1, 0, 0},
			"far":      {0, 1, 0},
			"opposite": {-1, 0, 0},
		}
		for title, v := range vectors {
			track, err := repo.Create(ctx, verified(title, "artist"))
			if err != nil {
				t.Fatalf("failed to create track: %v", err)
			}
			if err := repo.SetEmbedding(ctx, track.ID, v); err != nil {
				t.Fatalf("failed to set embedding: %v", err)
			}
		}
		if _, err := repo.Create(ctx, verified("unembedded", "artist")); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		similar, err := repo.Similar(ctx, []float32{1, 0, 0}, 0.5)
		if err != nil {
			t.Fatalf("failed to query similar tracks: %v", err)
		}

		if len(similar) != 2 {
			t.Fatalf("expected 2 similar tracks, got %d", len(similar))
		}
		if similar[0].Title != "nearer" || similar[1].Title != "near" {
			t.Errorf("unexpected order: %s, %s", similar[0].Title, similar[1].Title)
		}
		if similar[0].Distance > similar[1].Distance {
			t.Error("results should be sorted by ascending distance")
		}
		if len(similar[0].Embedding) != 3 {
			t.Errorf("embedding should round-trip, got %v", similar[0].Embedding)
		}
	})
}

func TestPlaylistRepository(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("CreateOrGet returns the same playlist for a day", func(t *testing.T) {
		store := NewSQLiteStore(setupTestDB(t))
		sub := seedSubscriber(t, store, "lic")

		first, err := store.CreateOrGetPlaylist(ctx, sub.ID, day)
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		second, err := store.CreateOrGetPlaylist(ctx, sub.ID, day.Add(15*time.Hour))
		if err != nil {
			t.Fatalf("failed to fetch playlist: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("expected same playlist, got %d and %d", first.ID, second.ID)
		}
		if models.DayKey(first.Day) != "2024-05-01" {
			t.Errorf("unexpected day %v", first.Day)
		}

		next, err := store.CreateOrGetPlaylist(ctx, sub.ID, day.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("failed to create next playlist: %v", err)
		}
		if next.ID == first.ID {
			t.Error("a new day should get a new playlist")
		}
	})

	t.Run("concurrent CreateOrGet converges on one row", func(t *testing.T) {
		db := setupTestDB(t)
		store := NewSQLiteStore(db)
		sub := seedSubscriber(t, store, "lic")

		const workers = 16
		ids := make([]int64, workers)
		errs := make([]error, workers)

		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p, err := store.CreateOrGetPlaylist(ctx, sub.ID, day)
				if err != nil {
					errs[i] = err
					return
				}
				ids[i] = p.ID
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("worker %d failed: %v", i, err)
			}
			if ids[i] != ids[0] {
				t.Errorf("worker %d got playlist %d, want %d", i, ids[i], ids[0])
			}
		}

		count, err := NewPlaylistRepository(db).CountForSubscriber(ctx, sub.ID)
		if err != nil {
			t.Fatalf("failed to count playlists: %v", err)
		}
		if count != 1 {
			t.Errorf("expected exactly one playlist, got %d", count)
		}
	})

	t.Run("GetForDay NotFound", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		if _, err := repo.GetForDay(ctx, 1, day); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})
}

func TestSuggestionRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	day := models.Day(now, time.UTC)

	setup := func(t *testing.T) (*SQLiteStore, *models.Subscriber, *models.Playlist, []*models.Track) {
		store := NewSQLiteStore(setupTestDB(t))
		sub := seedSubscriber(t, store, "lic")
		playlist, err := store.CreateOrGetPlaylist(ctx, sub.ID, day)
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		var tracks []*models.Track
		for _, title := range []string{"one", "two", "three"} {
			track, err := store.CreateTrack(ctx, verified(title, "artist"))
			if err != nil {
				t.Fatalf("failed to create track: %v", err)
			}
			tracks = append(tracks, track)
		}
		return store, sub, playlist, tracks
	}

	t.Run("RecentlySuggested honours the window", func(t *testing.T) {
		store, sub, playlist, tracks := setup(t)

		if _, err := store.AddSuggestion(ctx, playlist.ID, tracks[0].ID, now.Add(-3*time.Hour)); err != nil {
			t.Fatalf("failed to add suggestion: %v", err)
		}
		if _, err := store.AddSuggestion(ctx, playlist.ID, tracks[1].ID, now.Add(-10*time.Minute)); err != nil {
			t.Fatalf("failed to add suggestion: %v", err)
		}

		recent, err := store.RecentlySuggested(ctx, sub.ID, now.Add(-time.Hour))
		if err != nil {
			t.Fatalf("failed to query recent suggestions: %v", err)
		}
		if len(recent) != 1 {
			t.Fatalf("expected 1 recent track, got %d", len(recent))
		}
		if _, ok := recent[tracks[1].ID]; !ok {
			t.Error("expected the track suggested ten minutes ago")
		}
	})

	t.Run("RecentlySuggested is scoped to the subscriber", func(t *testing.T) {
		store, _, playlist, tracks := setup(t)
		other := seedSubscriber(t, store, "other")

		if _, err := store.AddSuggestion(ctx, playlist.ID, tracks[0].ID, now); err != nil {
			t.Fatalf("failed to add suggestion: %v", err)
		}

		recent, err := store.RecentlySuggested(ctx, other.ID, now.Add(-time.Hour))
		if err != nil {
			t.Fatalf("failed to query recent suggestions: %v", err)
		}
		if len(recent) != 0 {
			t.Errorf("expected no suggestions for another subscriber, got %d", len(recent))
		}
	})

	t.Run("Tracklist and SetPlayback", func(t *testing.T) {
		store, sub, playlist, tracks := setup(t)

		var ids []int64
		for i, track := range tracks {
			s, err := store.AddSuggestion(ctx, playlist.ID, track.ID, now.Add(time.Duration(i)*time.Minute))
			if err != nil {
				t.Fatalf("failed to add suggestion: %v", err)
			}
			ids = append(ids, s.ID)
		}

		list, err := store.Tracklist(ctx, sub.ID, day)
		if err != nil {
			t.Fatalf("failed to load tracklist: %v", err)
		}
		if len(list) != 3 || list[0].Track.Title != "one" {
			t.Fatalf("unexpected tracklist %+v", list)
		}

		if err := store.SetPlayback(ctx, sub.ID, ids[0], now); err != nil {
			t.Fatalf("failed to set playback: %v", err)
		}
		if err := store.SetPlayback(ctx, sub.ID, ids[1], now.Add(time.Minute)); err != nil {
			t.Fatalf("failed to update playback: %v", err)
		}

		list, err = store.Tracklist(ctx, sub.ID, day)
		if err != nil {
			t.Fatalf("failed to reload tracklist: %v", err)
		}
		if len(list) != 1 || list[0].SuggestionID != ids[2] {
			t.Errorf("expected only the unplayed suggestion, got %+v", list)
		}

		playback, err := store.suggestions.Playback(ctx, sub.ID)
		if err != nil {
			t.Fatalf("failed to read playback: %v", err)
		}
		if playback.SuggestionID != ids[1] {
			t.Errorf("expected last played %d, got %d", ids[1], playback.SuggestionID)
		}
	})

	t.Run("SetPlayback rejects foreign suggestions", func(t *testing.T) {
		store, _, playlist, tracks := setup(t)
		other := seedSubscriber(t, store, "other")

		s, err := store.AddSuggestion(ctx, playlist.ID, tracks[0].ID, now)
		if err != nil {
			t.Fatalf("failed to add suggestion: %v", err)
		}

		if err := store.SetPlayback(ctx, other.ID, s.ID, now); !errors.Is(err, shared.ErrSuggestionNotFound) {
			t.Errorf("expected ErrSuggestionNotFound, got %v", err)
		}
	})
}

func TestCosineDistance(t *testing.T) {
	tc := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: 2},
		{name: "scaled", a: []float32{1, 1}, b: []float32{3, 3}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 2},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 2},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineDistance(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}
