// Package pipeline runs the capture pipeline: normalise, enrich, store, classify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"laterai/internal/classifier"
	"laterai/internal/domain"
	"laterai/internal/metrics"
	"laterai/internal/scraper"
	"laterai/internal/session"
	"laterai/internal/storage"
)

// ErrClassificationUnavailable is returned by Reclassify when the
// classifier degraded to its fallback.
var ErrClassificationUnavailable = errors.New("classification unavailable")

// Capture results recorded in metrics.
const (
	resultCreated         = "created"
	resultUnauthenticated = "unauthenticated"
	resultInvalid         = "invalid"
	resultFailed          = "failed"
)

// Deps are the collaborators of an Orchestrator. Session may be nil
// when every capture goes through CaptureWith.
type Deps struct {
	Session    session.Source
	Fetcher    scraper.Fetcher
	Classifier classifier.Classifier
	Items      storage.ItemRepository
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Orchestrator is safe for concurrent captures.
type Orchestrator struct {
	session    session.Source
	fetcher    scraper.Fetcher
	classifier classifier.Classifier
	items      storage.ItemRepository
	log        logrus.FieldLogger
	metrics    *metrics.Metrics

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int

	wg sync.WaitGroup
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		session:    deps.Session,
		fetcher:    deps.Fetcher,
		classifier: deps.Classifier,
		items:      deps.Items,
		log:        deps.Logger.WithField("component", "pipeline"),
		metrics:    deps.Metrics,
		listeners:  make(map[int]Listener),
	}
}

// Subscribe registers l for lifecycle events and returns a function removing it.
func (o *Orchestrator) Subscribe(l Listener) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = l
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// Capture runs the pipeline with the orchestrator's own session source.
func (o *Orchestrator) Capture(ctx context.Context, req domain.CaptureRequest) (domain.SavedItem, error) {
	return o.CaptureWith(ctx, o.session, req)
}

// CaptureWith stores req for the owner of src and starts its classification
// in the background. It returns once the item exists in the store.
func (o *Orchestrator) CaptureWith(ctx context.Context, src session.Source, req domain.CaptureRequest) (domain.SavedItem, error) {
	log := o.log.WithField("kind", req.Kind)

	if src == nil || !src.IsAuthenticated(ctx) {
		log.Info("Capture rejected, login required")
		o.metrics.Capture(resultUnauthenticated)
		return domain.SavedItem{}, domain.ErrUnauthenticated
	}
	sess, err := src.Session(ctx)
	if err != nil {
		o.metrics.Capture(resultUnauthenticated)
		return domain.SavedItem{}, err
	}
	log = log.WithField("owner_id", sess.UserID)

	if err := req.Validate(); err != nil {
		log.WithError(err).Warn("Capture rejected")
		o.metrics.Capture(resultInvalid)
		return domain.SavedItem{}, err
	}

	draft := draftFrom(req)
	var meta scraper.Metadata
	if draft.URL != "" {
		meta = o.fetcher.Fetch(ctx, draft.URL)
		if !meta.OK() {
			log.WithField("url", draft.URL).WithField("error", meta.Error).Warn("Continuing without metadata")
		}
	}
	// The classifier reads the page text rather than the stored description.
	content := draft.Content
	if content == "" {
		content = meta.Text
	}
	if content == "" {
		content = meta.Description
	}
	mergeMetadata(&draft, meta, draft.URL != "")

	item, err := o.items.Insert(ctx, sess.UserID, draft)
	if err != nil {
		log.WithError(err).Error("Failed to store capture")
		o.metrics.Capture(resultFailed)
		o.emit(Event{Type: EventItemFailed, Err: err, Request: req})
		return domain.SavedItem{}, fmt.Errorf("capture: %w", err)
	}

	log.WithField("item_id", item.ID).Info("Capture stored")
	o.metrics.Capture(resultCreated)
	o.emit(Event{Type: EventItemCreated, Item: item.Clone(), Request: req})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.enrich(context.WithoutCancel(ctx), item, content)
	}()

	return item, nil
}

// Reclassify classifies a stored item again and waits for the result.
func (o *Orchestrator) Reclassify(ctx context.Context, src session.Source, id string) (domain.SavedItem, error) {
	if src == nil || !src.IsAuthenticated(ctx) {
		return domain.SavedItem{}, domain.ErrUnauthenticated
	}
	sess, err := src.Session(ctx)
	if err != nil {
		return domain.SavedItem{}, err
	}

	all, err := o.items.QueryByOwner(ctx, sess.UserID, 0)
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("reclassify: %w", err)
	}
	for _, item := range all {
		if item.ID != id {
			continue
		}
		updated, ok := o.enrich(ctx, item, item.Content)
		if !ok {
			return item, ErrClassificationUnavailable
		}
		return updated, nil
	}
	return domain.SavedItem{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
}

// Wait blocks until every background classification has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// enrich classifies item from content and persists the result. A
// degraded result is neither persisted nor announced. A failed update is
// logged and the enrichment is announced anyway.
func (o *Orchestrator) enrich(ctx context.Context, item domain.SavedItem, content string) (domain.SavedItem, bool) {
	log := o.log.WithFields(logrus.Fields{"item_id": item.ID, "owner_id": item.OwnerID})

	res := o.classifier.Classify(ctx, classifier.Input{Title: item.Title, Content: content, URL: item.URL})
	if !res.AIProcessed {
		log.Warn("Classification degraded, item left unprocessed")
		return item, false
	}

	patch := res.Patch()
	updated, err := o.items.UpdateByID(ctx, item.ID, item.OwnerID, patch)
	if err != nil {
		log.WithError(err).Warn("Failed to persist enrichment")
		updated = item.Clone()
		patch.Apply(&updated)
	}

	log.WithField("category", updated.Category).Info("Capture classified")
	o.emit(Event{Type: EventItemClassified, Item: updated.Clone(), Patch: patch})
	return updated, true
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	listeners := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// draftFrom derives the fields the capture itself supplies.
func draftFrom(req domain.CaptureRequest) domain.SavedItem {
	item := domain.SavedItem{
		URL:      strings.TrimSpace(req.URL),
		Title:    strings.TrimSpace(req.Title),
		Content:  strings.TrimSpace(req.Content),
		Category: domain.CategoryOther,
		Tags:     []string{},
	}

	if item.URL == "" && req.Kind == domain.KindURL {
		item.URL = req.PrimaryContent
	}
	if item.URL == "" {
		item.URL = req.SourceURL
	}

	switch req.Kind {
	case domain.KindText:
		if item.Content == "" {
			item.Content = req.PrimaryContent
		}
	case domain.KindImage:
		item.ThumbnailURL = req.PrimaryContent
	}

	// A url capture's source title names the page the link was on, not the link.
	if item.Title == "" && req.Kind != domain.KindURL {
		item.Title = strings.TrimSpace(req.SourceTitle)
	}
	return item
}

// mergeMetadata fills what the capture left empty from fetched metadata,
// then applies the title fallbacks.
func mergeMetadata(item *domain.SavedItem, meta scraper.Metadata, fetched bool) {
	if fetched && meta.OK() {
		if item.Title == "" && meta.Title != scraper.UntitledTitle {
			item.Title = strings.TrimSpace(meta.Title)
		}
		if item.ThumbnailURL == "" {
			item.ThumbnailURL = meta.Image
		}
		if item.Content == "" {
			item.Content = strings.TrimSpace(meta.Description)
		}
	}
	if item.Title == "" {
		item.Title = hostOf(item.URL)
	}
	if item.Title == "" {
		item.Title = domain.DefaultTitle
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
