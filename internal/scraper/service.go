package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"

	"laterai/internal/metrics"
)

const maxTextChars = 5000

// Service implements Fetcher on top of a Renderer.
type Service struct {
	renderer Renderer
	timeout  time.Duration
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewService creates a fetcher bounded by timeout per call.
func NewService(renderer Renderer, timeout time.Duration, logger logrus.FieldLogger, m *metrics.Metrics) *Service {
	return &Service{
		renderer: renderer,
		timeout:  timeout,
		log:      logger.WithField("component", "scraper"),
		metrics:  m,
	}
}

// Fetch renders url and extracts its metadata. Any failure, including
// the timeout, yields the fallback metadata instead of an error.
func (s *Service) Fetch(ctx context.Context, rawURL string) Metadata {
	log := s.log.WithField("url", rawURL)

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = errors.New("only http and https URLs are supported")
		}
		log.WithError(err).Warn("Rejected metadata fetch")
		s.metrics.MetadataFetch(metrics.OutcomeFailed)
		return Failed(rawURL, fmt.Errorf("invalid URL: %w", err))
	}

	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := s.renderer.Render(fctx, u.String())
	if err != nil {
		log.WithError(err).Warn("Metadata fetch failed")
		s.metrics.MetadataFetch(metrics.OutcomeFailed)
		return Failed(rawURL, err)
	}

	meta, err := Extract(page, u.String())
	if err != nil {
		log.WithError(err).Warn("Metadata extraction failed")
		s.metrics.MetadataFetch(metrics.OutcomeFailed)
		return Failed(rawURL, err)
	}
	meta.URL = rawURL

	if article, err := readability.FromReader(strings.NewReader(page), u); err == nil {
		meta.Text = truncate(strings.TrimSpace(article.TextContent), maxTextChars)
	} else {
		log.WithError(err).Debug("No readable text")
	}

	s.metrics.MetadataFetch(metrics.OutcomeOK)
	log.WithField("title", meta.Title).Info("Fetched metadata")
	return meta
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
