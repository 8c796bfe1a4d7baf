package items

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laterai/internal/classifier"
	"laterai/internal/domain"
	"laterai/internal/pipeline"
	"laterai/internal/scraper"
	"laterai/internal/session"
	"laterai/internal/storage"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func setupTestDB(t *testing.T) *storage.BadgerRepository {
	t.Helper()
	repo, err := storage.NewBadgerRepository(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// flakyRepo fails updates and deletes on demand.
type flakyRepo struct {
	*storage.BadgerRepository
	failUpdate bool
	failDelete bool
}

func (r *flakyRepo) UpdateByID(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.SavedItem, error) {
	if r.failUpdate {
		return domain.SavedItem{}, &domain.PersistenceError{Op: "update", Err: errors.New("offline")}
	}
	return r.BadgerRepository.UpdateByID(ctx, id, ownerID, patch)
}

func (r *flakyRepo) DeleteByID(ctx context.Context, id, ownerID string) error {
	if r.failDelete {
		return &domain.PersistenceError{Op: "delete", Err: errors.New("offline")}
	}
	return r.BadgerRepository.DeleteByID(ctx, id, ownerID)
}

func seed(t *testing.T, repo storage.ItemRepository, owner string, titles ...string) []domain.SavedItem {
	t.Helper()
	var out []domain.SavedItem
	for _, title := range titles {
		item, err := repo.Insert(context.Background(), owner, domain.SavedItem{Title: title})
		require.NoError(t, err)
		out = append(out, item)
		time.Sleep(2 * time.Millisecond)
	}
	return out
}

func TestStore_LoadIsNewestFirst(t *testing.T) {
	repo := setupTestDB(t)
	seed(t, repo, "u1", "first", "second")
	seed(t, repo, "u2", "other")

	s := NewStore("u1", repo, 0, testLogger())
	require.NoError(t, s.Load(context.Background()))

	got := s.Items()
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Title)
	assert.Equal(t, "first", got[1].Title)
}

func TestStore_AddAndUpdate(t *testing.T) {
	s := NewStore("u1", setupTestDB(t), 0, testLogger())
	changes := 0
	s.OnChange(func() { changes++ })

	s.Add(domain.SavedItem{ID: "a", OwnerID: "u1", Title: "A"})
	s.Add(domain.SavedItem{ID: "b", OwnerID: "u1", Title: "B"})
	s.Add(domain.SavedItem{ID: "a", OwnerID: "u1", Title: "A2"})

	got := s.Items()
	require.Len(t, got, 2)
	assert.Equal(t, "A2", got[0].Title)

	assert.True(t, s.UpdateByID("b", domain.StarPatch(true)))
	b, _ := s.Get("b")
	assert.True(t, b.IsStarred)

	// Unknown ids are silently ignored.
	assert.False(t, s.UpdateByID("missing", domain.StarPatch(true)))
	assert.Equal(t, 4, changes)
}

func TestStore_ToggleStar(t *testing.T) {
	repo := setupTestDB(t)
	items := seed(t, repo, "u1", "A")
	s := NewStore("u1", repo, 0, testLogger())
	require.NoError(t, s.Load(context.Background()))

	starred, err := s.ToggleStar(context.Background(), items[0].ID)
	require.NoError(t, err)
	assert.True(t, starred)

	stored, err := repo.QueryByOwner(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.True(t, stored[0].IsStarred)

	_, err = s.ToggleStar(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ToggleStarOutsideWindow(t *testing.T) {
	repo := setupTestDB(t)
	items := seed(t, repo, "u1", "old", "new")
	s := NewStore("u1", repo, 1, testLogger())
	require.NoError(t, s.Load(context.Background()))
	_, cached := s.Get(items[0].ID)
	require.False(t, cached)

	starred, err := s.ToggleStar(context.Background(), items[0].ID)
	require.NoError(t, err)
	assert.True(t, starred)

	stored, err := repo.QueryByOwner(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, items[0].ID, stored[1].ID)
	assert.True(t, stored[1].IsStarred)

	starred, err = s.ToggleStar(context.Background(), items[0].ID)
	require.NoError(t, err)
	assert.False(t, starred)
	// The cached window is left alone.
	assert.Len(t, s.Items(), 1)
}

func TestStore_AddKeepsWindow(t *testing.T) {
	s := NewStore("u1", setupTestDB(t), 2, testLogger())
	s.Add(domain.SavedItem{ID: "a", OwnerID: "u1"})
	s.Add(domain.SavedItem{ID: "b", OwnerID: "u1"})
	s.Add(domain.SavedItem{ID: "c", OwnerID: "u1"})

	got := s.Items()
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestStore_ToggleStarRevertsOnFailure(t *testing.T) {
	repo := &flakyRepo{BadgerRepository: setupTestDB(t), failUpdate: true}
	items := seed(t, repo, "u1", "A")
	s := NewStore("u1", repo, 0, testLogger())
	require.NoError(t, s.Load(context.Background()))

	var seen []bool
	s.OnChange(func() {
		item, _ := s.Get(items[0].ID)
		seen = append(seen, item.IsStarred)
	})

	starred, err := s.ToggleStar(context.Background(), items[0].ID)
	require.Error(t, err)
	assert.False(t, starred)

	item, _ := s.Get(items[0].ID)
	assert.False(t, item.IsStarred)
	// Optimistic flip first, then the revert.
	assert.Equal(t, []bool{true, false}, seen)
}

func TestStore_Remove(t *testing.T) {
	repo := &flakyRepo{BadgerRepository: setupTestDB(t)}
	items := seed(t, repo, "u1", "A", "B")
	s := NewStore("u1", repo, 0, testLogger())
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Remove(context.Background(), items[0].ID))
	assert.Len(t, s.Items(), 1)

	repo.failDelete = true
	err := s.Remove(context.Background(), items[1].ID)
	require.Error(t, err)

	// The failed delete refetched the authoritative list.
	got := s.Items()
	require.Len(t, got, 1)
	assert.Equal(t, items[1].ID, got[0].ID)
}

type staticFetcher struct{}

func (staticFetcher) Fetch(ctx context.Context, url string) scraper.Metadata {
	return scraper.Metadata{Title: "A", Image: "http://x/i.png", URL: url}
}

type staticClassifier struct{ res classifier.Result }

func (c staticClassifier) Classify(ctx context.Context, in classifier.Input) classifier.Result {
	return c.res
}

func TestRegistry_ReflectsClassification(t *testing.T) {
	repo := setupTestDB(t)
	reg := NewRegistry(repo, 50, testLogger())
	ctx := context.Background()

	orch := pipeline.New(pipeline.Deps{
		Fetcher: staticFetcher{},
		Classifier: staticClassifier{res: classifier.Result{
			Category: domain.CategoryTechnology, Tags: []string{"ai", "web"}, Summary: "s", AIProcessed: true,
		}},
		Items:  repo,
		Logger: testLogger(),
	})
	orch.Subscribe(reg.HandleEvent)

	store, err := reg.For(ctx, "u1")
	require.NoError(t, err)
	again, err := reg.For(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, store, again)

	src := session.Verified(domain.Session{AccessToken: "t", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})
	item, err := orch.CaptureWith(ctx, src, domain.CaptureRequest{Kind: domain.KindURL, PrimaryContent: "https://example.com/a"})
	require.NoError(t, err)
	orch.Wait()

	cached, ok := store.Get(item.ID)
	require.True(t, ok)
	assert.True(t, cached.AIProcessed)
	assert.Equal(t, domain.CategoryTechnology, cached.Category)
	assert.True(t, cached.Category.Valid())
	assert.Len(t, cached.Tags, 2)
	assert.Equal(t, item.ID, store.Items()[0].ID)

	// Owners without a loaded store are not created by events.
	other := session.Verified(domain.Session{AccessToken: "t", UserID: "u2", ExpiresAt: time.Now().Add(time.Hour)})
	_, err = orch.CaptureWith(ctx, other, domain.CaptureRequest{Kind: domain.KindText, PrimaryContent: "hi"})
	require.NoError(t, err)
	orch.Wait()
	_, ok = reg.Lookup("u2")
	assert.False(t, ok)
}
