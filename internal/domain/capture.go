package domain

import (
	"fmt"
	"strings"
)

// Kind discriminates which CaptureRequest fields are meaningful.
type Kind string

const (
	KindURL   Kind = "url"
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindPage  Kind = "page"
)

// CaptureRequest is the canonical form of a capture, consumed once by the pipeline.
type CaptureRequest struct {
	Kind Kind `json:"kind"`

	// PrimaryContent is the selected text, the image URL or the link target, depending on Kind.
	PrimaryContent string `json:"primary_content,omitempty"`

	// SourceURL and SourceTitle describe the page the capture happened on.
	SourceURL   string `json:"source_url,omitempty"`
	SourceTitle string `json:"source_title,omitempty"`

	// Explicit fields entered by the user. They win over the provenance fields.
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
}

// Validate enforces that PrimaryContent is set for every kind except page,
// where a URL substitutes.
func (r CaptureRequest) Validate() error {
	switch r.Kind {
	case KindURL, KindText, KindImage:
		if strings.TrimSpace(r.PrimaryContent) == "" {
			return fmt.Errorf("%w: %s capture without content", ErrInvalidCapture, r.Kind)
		}
	case KindPage:
		if strings.TrimSpace(r.SourceURL) == "" && strings.TrimSpace(r.URL) == "" {
			return fmt.Errorf("%w: page capture without url", ErrInvalidCapture)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCapture, r.Kind)
	}
	return nil
}
