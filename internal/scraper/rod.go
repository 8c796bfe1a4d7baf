package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// RodRenderer renders pages in a headless browser so client-side
// rendered metadata is visible. A browser is launched per render.
type RodRenderer struct {
	log logrus.FieldLogger
}

func NewRodRenderer(logger logrus.FieldLogger) *RodRenderer {
	return &RodRenderer{
		log: logger.WithField("component", "rod_renderer"),
	}
}

func (r *RodRenderer) Render(ctx context.Context, url string) (htmlContent string, err error) {
	log := r.log.WithField("url", url)

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return "", errors.New("rod browser dependency not found")
	}
	l := launcher.New().Bin(path).Context(ctx)
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod browser instance")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	if err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: UserAgent}); err != nil {
		return "", fmt.Errorf("failed to set user agent: %w", err)
	}
	if err = page.Navigate(url); err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}
	if err = page.WaitLoad(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.WithError(ctx.Err()).Warn("Rendering timed out")
			return "", fmt.Errorf("rendering timed out for %s: %w", url, ctx.Err())
		}
		return "", fmt.Errorf("failed waiting for page load: %w", err)
	}

	htmlContent, err = page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	log.Debug("Page rendered")
	return htmlContent, nil
}
