// Package capture turns raw events from the capture surfaces into canonical requests.
package capture

import (
	"net/url"
	"strings"

	"laterai/internal/domain"
)

// Surface identifies where a raw event was raised.
type Surface string

const (
	SurfaceContextMenu   Surface = "context_menu"
	SurfaceShortcut      Surface = "shortcut"
	SurfaceToolbar       Surface = "toolbar"
	SurfaceContentScript Surface = "content_script"
	SurfaceForm          Surface = "form"
	SurfaceTelegram      Surface = "telegram"
	SurfaceCLI           Surface = "cli"
)

// RawEvent is the union of the signals any surface can produce.
// Surfaces fill what they know and leave the rest empty.
type RawEvent struct {
	Surface Surface `json:"surface,omitempty"`

	SelectionText string `json:"selection_text,omitempty"`
	LinkURL       string `json:"link_url,omitempty"`
	SrcURL        string `json:"src_url,omitempty"`
	MediaType     string `json:"media_type,omitempty"`

	// PageURL and PageTitle describe the tab or page the event happened on.
	PageURL   string `json:"page_url,omitempty"`
	PageTitle string `json:"page_title,omitempty"`

	// Explicit values typed by the user.
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// Normalize maps ev onto exactly one request kind:
// selection, then link, then image, then page.
func Normalize(ev RawEvent) domain.CaptureRequest {
	req := domain.CaptureRequest{
		SourceURL:   strings.TrimSpace(ev.PageURL),
		SourceTitle: strings.TrimSpace(ev.PageTitle),
		Title:       strings.TrimSpace(ev.Title),
		Content:     strings.TrimSpace(ev.Content),
	}

	selection := strings.TrimSpace(ev.SelectionText)
	link := strings.TrimSpace(ev.LinkURL)
	src := strings.TrimSpace(ev.SrcURL)

	switch {
	case selection != "":
		req.Kind = domain.KindText
		req.PrimaryContent = selection
	case link != "":
		req.Kind = domain.KindURL
		req.PrimaryContent = link
	case src != "" && isImage(ev.MediaType):
		req.Kind = domain.KindImage
		req.PrimaryContent = src
	default:
		req.Kind = domain.KindPage
	}
	return req
}

func isImage(mediaType string) bool {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return mediaType == "image" || strings.HasPrefix(mediaType, "image/")
}

// FromText builds a raw event from a free-form chat message.
// A message that is a single http(s) URL is a link; anything else is a selection.
func FromText(surface Surface, text string) RawEvent {
	text = strings.TrimSpace(text)
	if IsHTTPURL(text) && !strings.ContainsAny(text, " \n\t") {
		return RawEvent{Surface: surface, LinkURL: text}
	}
	return RawEvent{Surface: surface, SelectionText: text}
}

// IsHTTPURL reports whether s parses as an absolute http or https URL.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
