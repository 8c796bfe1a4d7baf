package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laterai/internal/classifier"
	"laterai/internal/domain"
	"laterai/internal/scraper"
	"laterai/internal/session"
)

type fakeSource struct {
	authed bool
	calls  atomic.Int32
}

func (f *fakeSource) IsAuthenticated(ctx context.Context) bool {
	f.calls.Add(1)
	return f.authed
}

func (f *fakeSource) Session(ctx context.Context) (domain.Session, error) {
	if !f.authed {
		return domain.Session{}, domain.ErrUnauthenticated
	}
	return domain.Session{AccessToken: "t", UserID: "owner-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type fakeFetcher struct {
	meta  scraper.Metadata
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) scraper.Metadata {
	f.calls.Add(1)
	m := f.meta
	m.URL = url
	return m
}

type fakeClassifier struct {
	result classifier.Result
	calls  atomic.Int32
	inputs chan classifier.Input
}

func (f *fakeClassifier) Classify(ctx context.Context, in classifier.Input) classifier.Result {
	f.calls.Add(1)
	if f.inputs != nil {
		f.inputs <- in
	}
	return f.result
}

type fakeRepo struct {
	mu        sync.Mutex
	items     map[string]domain.SavedItem
	seq       int
	insertErr error
	updateErr error
	inserts   int
	updates   int
}

func newFakeRepo() *fakeRepo { return &fakeRepo{items: map[string]domain.SavedItem{}} }

func (r *fakeRepo) Insert(ctx context.Context, ownerID string, item domain.SavedItem) (domain.SavedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return domain.SavedItem{}, &domain.PersistenceError{Op: "insert", Err: r.insertErr}
	}
	r.seq++
	item.ID = fmt.Sprintf("item-%d", r.seq)
	item.OwnerID = ownerID
	item.CreatedAt = time.Now()
	r.items[item.ID] = item.Clone()
	return item, nil
}

func (r *fakeRepo) UpdateByID(ctx context.Context, id, ownerID string, patch domain.ItemPatch) (domain.SavedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return domain.SavedItem{}, &domain.PersistenceError{Op: "update", Err: r.updateErr}
	}
	item, ok := r.items[id]
	if !ok || item.OwnerID != ownerID {
		return domain.SavedItem{}, domain.ErrNotFound
	}
	patch.Apply(&item)
	r.items[id] = item
	return item.Clone(), nil
}

func (r *fakeRepo) QueryByOwner(ctx context.Context, ownerID string, limit int) ([]domain.SavedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SavedItem
	for _, item := range r.items {
		if item.OwnerID == ownerID {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteByID(ctx context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeRepo) get(id string) domain.SavedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

type harness struct {
	orch       *Orchestrator
	src        *fakeSource
	fetcher    *fakeFetcher
	classifier *fakeClassifier
	repo       *fakeRepo
	events     chan Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	h := &harness{
		src:     &fakeSource{authed: true},
		fetcher: &fakeFetcher{meta: scraper.Metadata{Title: "A", Image: "http://x/i.png"}},
		classifier: &fakeClassifier{result: classifier.Result{
			Category: domain.CategoryTechnology, Tags: []string{"ai", "web"}, Summary: "about ai", AIProcessed: true,
		}},
		repo:   newFakeRepo(),
		events: make(chan Event, 16),
	}
	h.orch = New(Deps{
		Session:    h.src,
		Fetcher:    h.fetcher,
		Classifier: h.classifier,
		Items:      h.repo,
		Logger:     logger,
	})
	h.orch.Subscribe(func(ev Event) { h.events <- ev })
	return h
}

func (h *harness) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func (h *harness) noMore(t *testing.T) {
	t.Helper()
	h.orch.Wait()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func urlCapture(u string) domain.CaptureRequest {
	return domain.CaptureRequest{Kind: domain.KindURL, PrimaryContent: u}
}

func TestCapture_URLUsesFetchedMetadata(t *testing.T) {
	h := newHarness(t)

	item, err := h.orch.Capture(context.Background(), urlCapture("https://example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, "A", item.Title)
	assert.Equal(t, "http://x/i.png", item.ThumbnailURL)
	assert.Equal(t, "https://example.com/a", item.URL)
	assert.False(t, item.AIProcessed)
	assert.Equal(t, domain.CategoryOther, item.Category)
	assert.Empty(t, item.Tags)

	created := h.next(t)
	assert.Equal(t, EventItemCreated, created.Type)
	assert.Equal(t, item.ID, created.Item.ID)
}

func TestCapture_ClassificationEnrichesItem(t *testing.T) {
	h := newHarness(t)

	item, err := h.orch.Capture(context.Background(), urlCapture("https://example.com/a"))
	require.NoError(t, err)
	h.next(t)

	classified := h.next(t)
	assert.Equal(t, EventItemClassified, classified.Type)
	assert.Equal(t, item.ID, classified.Item.ID)
	assert.True(t, classified.Item.AIProcessed)
	assert.Equal(t, domain.CategoryTechnology, classified.Item.Category)
	assert.Len(t, classified.Item.Tags, 2)

	stored := h.repo.get(item.ID)
	assert.True(t, stored.AIProcessed)
	assert.Equal(t, "about ai", stored.AISummary)
	h.noMore(t)
}

func TestCapture_MetadataFailureDegrades(t *testing.T) {
	h := newHarness(t)
	h.fetcher.meta = scraper.Failed("", context.DeadlineExceeded)

	item, err := h.orch.Capture(context.Background(), urlCapture("https://www.example.com/slow"))
	require.NoError(t, err)
	assert.Equal(t, "example.com", item.Title)
	assert.Empty(t, item.ThumbnailURL)

	titled, err := h.orch.Capture(context.Background(), domain.CaptureRequest{
		Kind: domain.KindURL, PrimaryContent: "https://example.com/slow", Title: "Mine",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mine", titled.Title)
	h.orch.Wait()
}

func TestCapture_UnauthenticatedDoesNoIO(t *testing.T) {
	h := newHarness(t)
	h.src.authed = false

	reqs := []domain.CaptureRequest{
		urlCapture("https://example.com"),
		{Kind: domain.KindText, PrimaryContent: "hello"},
		{Kind: domain.KindImage, PrimaryContent: "https://example.com/i.png"},
	}
	for _, req := range reqs {
		_, err := h.orch.Capture(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	}

	h.noMore(t)
	assert.Equal(t, int32(0), h.fetcher.calls.Load())
	assert.Equal(t, int32(0), h.classifier.calls.Load())
	assert.Equal(t, 0, h.repo.inserts)

	_, err := h.orch.CaptureWith(context.Background(), nil, urlCapture("https://example.com"))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestCapture_InvalidRequest(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Capture(context.Background(), domain.CaptureRequest{Kind: domain.KindText})
	assert.ErrorIs(t, err, domain.ErrInvalidCapture)
	assert.Equal(t, 0, h.repo.inserts)
}

func TestCapture_InsertFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.repo.insertErr = errors.New("disk full")

	_, err := h.orch.Capture(context.Background(), urlCapture("https://example.com"))
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))

	failed := h.next(t)
	assert.Equal(t, EventItemFailed, failed.Type)
	assert.Error(t, failed.Err)
	assert.Equal(t, "https://example.com", failed.Request.PrimaryContent)
	h.noMore(t)
	assert.Equal(t, int32(0), h.classifier.calls.Load())
}

func TestCapture_EnrichmentPersistFailureStillAnnounces(t *testing.T) {
	h := newHarness(t)
	h.repo.updateErr = errors.New("timeout")

	item, err := h.orch.Capture(context.Background(), urlCapture("https://example.com"))
	require.NoError(t, err)
	h.next(t)

	classified := h.next(t)
	assert.Equal(t, EventItemClassified, classified.Type)
	assert.True(t, classified.Item.AIProcessed)
	assert.False(t, h.repo.get(item.ID).AIProcessed)
}

func TestCapture_DegradedClassificationIsNotPersisted(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = classifier.Fallback(classifier.Input{Title: "A"})

	item, err := h.orch.Capture(context.Background(), urlCapture("https://example.com"))
	require.NoError(t, err)
	h.next(t)
	h.noMore(t)

	assert.Equal(t, int32(1), h.classifier.calls.Load())
	assert.Equal(t, 0, h.repo.updates)
	assert.False(t, h.repo.get(item.ID).AIProcessed)
}

func TestCapture_ClassificationOutlivesCaller(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := h.orch.Capture(ctx, urlCapture("https://example.com"))
	require.NoError(t, err)
	cancel()

	h.next(t)
	assert.Equal(t, EventItemClassified, h.next(t).Type)
}

func TestCapture_ClassifierInput(t *testing.T) {
	h := newHarness(t)
	h.classifier.inputs = make(chan classifier.Input, 2)
	h.fetcher.meta = scraper.Metadata{Title: "Page", Description: "desc", Text: "readable body"}

	created, err := h.orch.Capture(context.Background(), urlCapture("https://example.com"))
	require.NoError(t, err)
	in := <-h.classifier.inputs
	assert.Equal(t, classifier.Input{Title: "Page", Content: "readable body", URL: "https://example.com"}, in)
	h.orch.Wait()
	assert.Equal(t, "desc", h.repo.get(created.ID).Content)

	_, err = h.orch.Capture(context.Background(), domain.CaptureRequest{
		Kind: domain.KindText, PrimaryContent: "selected words", SourceURL: "https://example.com", SourceTitle: "Tab",
	})
	require.NoError(t, err)
	in = <-h.classifier.inputs
	assert.Equal(t, classifier.Input{Title: "Tab", Content: "selected words", URL: "https://example.com"}, in)
	h.orch.Wait()
}

func TestDraft_TitleAndFieldPrecedence(t *testing.T) {
	ok := scraper.Metadata{Title: "Fetched", Image: "https://cdn/i.png", URL: "https://example.com"}

	tests := []struct {
		name    string
		req     domain.CaptureRequest
		meta    scraper.Metadata
		fetched bool
		want    domain.SavedItem
	}{
		{
			name:    "explicit title wins over fetched",
			req:     domain.CaptureRequest{Kind: domain.KindURL, PrimaryContent: "https://example.com", Title: "Mine"},
			meta:    ok,
			fetched: true,
			want:    domain.SavedItem{URL: "https://example.com", Title: "Mine", ThumbnailURL: "https://cdn/i.png"},
		},
		{
			name:    "url capture ignores the source page title",
			req:     domain.CaptureRequest{Kind: domain.KindURL, PrimaryContent: "https://example.com", SourceTitle: "Other page"},
			meta:    ok,
			fetched: true,
			want:    domain.SavedItem{URL: "https://example.com", Title: "Fetched", ThumbnailURL: "https://cdn/i.png"},
		},
		{
			name:    "page capture uses the tab title",
			req:     domain.CaptureRequest{Kind: domain.KindPage, SourceURL: "https://example.com", SourceTitle: "Tab"},
			meta:    ok,
			fetched: true,
			want:    domain.SavedItem{URL: "https://example.com", Title: "Tab", ThumbnailURL: "https://cdn/i.png"},
		},
		{
			name:    "image keeps its own thumbnail",
			req:     domain.CaptureRequest{Kind: domain.KindImage, PrimaryContent: "https://img/a.jpg", SourceURL: "https://example.com"},
			meta:    ok,
			fetched: true,
			want:    domain.SavedItem{URL: "https://example.com", Title: "Fetched", ThumbnailURL: "https://img/a.jpg"},
		},
		{
			name: "explicit content wins over selected text",
			req:  domain.CaptureRequest{Kind: domain.KindText, PrimaryContent: "selected", Content: "note"},
			want: domain.SavedItem{Title: domain.DefaultTitle, Content: "note"},
		},
		{
			name:    "explicit url wins over source url",
			req:     domain.CaptureRequest{Kind: domain.KindText, PrimaryContent: "t", URL: "https://a.example", SourceURL: "https://b.example"},
			meta:    scraper.Metadata{Title: scraper.UntitledTitle, URL: "https://a.example"},
			fetched: true,
			want:    domain.SavedItem{URL: "https://a.example", Title: "a.example", Content: "t"},
		},
		{
			name:    "fetched description fills missing content",
			req:     domain.CaptureRequest{Kind: domain.KindURL, PrimaryContent: "https://example.com"},
			meta:    scraper.Metadata{Title: "Fetched", Description: " About this page ", URL: "https://example.com"},
			fetched: true,
			want:    domain.SavedItem{URL: "https://example.com", Title: "Fetched", Content: "About this page"},
		},
		{
			name:    "own content wins over fetched description",
			req:     domain.CaptureRequest{Kind: domain.KindText, PrimaryContent: "selected", SourceURL: "https://example.com"},
			meta:    scraper.Metadata{Title: "Fetched", Description: "About this page", URL: "https://example.com"},
			fetched: true,
			want:    domain.SavedItem{URL: "https://example.com", Title: "Fetched", Content: "selected"},
		},
		{
			name:    "failed fetch falls back to host",
			req:     domain.CaptureRequest{Kind: domain.KindURL, PrimaryContent: "https://news.example.org/x"},
			meta:    scraper.Failed("https://news.example.org/x", errors.New("boom")),
			fetched: true,
			want:    domain.SavedItem{URL: "https://news.example.org/x", Title: "news.example.org"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := draftFrom(tt.req)
			mergeMetadata(&got, tt.meta, tt.fetched)
			assert.Equal(t, tt.want.URL, got.URL)
			assert.Equal(t, tt.want.Title, got.Title)
			assert.Equal(t, tt.want.Content, got.Content)
			assert.Equal(t, tt.want.ThumbnailURL, got.ThumbnailURL)
			assert.Equal(t, domain.CategoryOther, got.Category)
			assert.NotNil(t, got.Tags)
		})
	}
}

func TestReclassify(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = classifier.Fallback(classifier.Input{})

	item, err := h.orch.Capture(context.Background(), urlCapture("https://example.com"))
	require.NoError(t, err)
	h.orch.Wait()
	h.next(t)

	_, err = h.orch.Reclassify(context.Background(), h.src, item.ID)
	assert.ErrorIs(t, err, ErrClassificationUnavailable)

	h.classifier.result = classifier.Result{Category: domain.CategoryHealth, Tags: []string{"x"}, AIProcessed: true}
	updated, err := h.orch.Reclassify(context.Background(), h.src, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryHealth, updated.Category)
	assert.Equal(t, EventItemClassified, h.next(t).Type)

	_, err = h.orch.Reclassify(context.Background(), h.src, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.orch.Reclassify(context.Background(), session.Verified(domain.Session{}), item.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := newHarness(t)
	var n atomic.Int32
	unsubscribe := h.orch.Subscribe(func(Event) { n.Add(1) })
	unsubscribe()

	_, err := h.orch.Capture(context.Background(), urlCapture("https://example.com"))
	require.NoError(t, err)
	h.orch.Wait()
	assert.Equal(t, int32(0), n.Load())
}
