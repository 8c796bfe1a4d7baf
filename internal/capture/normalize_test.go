package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"laterai/internal/domain"
)

func TestNormalize_Precedence(t *testing.T) {
	tests := []struct {
		name string
		ev   RawEvent
		kind domain.Kind
		main string
	}{
		{
			name: "selection wins over everything",
			ev: RawEvent{SelectionText: " picked text ", LinkURL: "https://a.example", SrcURL: "https://a.example/i.png",
				MediaType: "image", PageURL: "https://page.example", PageTitle: "Page"},
			kind: domain.KindText,
			main: "picked text",
		},
		{
			name: "link wins over image",
			ev:   RawEvent{LinkURL: "https://a.example", SrcURL: "https://a.example/i.png", MediaType: "image"},
			kind: domain.KindURL,
			main: "https://a.example",
		},
		{
			name: "image needs an image media type",
			ev:   RawEvent{SrcURL: "https://a.example/i.png", MediaType: "image", PageURL: "https://page.example"},
			kind: domain.KindImage,
			main: "https://a.example/i.png",
		},
		{
			name: "mime image type counts",
			ev:   RawEvent{SrcURL: "https://a.example/i.png", MediaType: "image/png"},
			kind: domain.KindImage,
			main: "https://a.example/i.png",
		},
		{
			name: "video source falls back to page",
			ev:   RawEvent{SrcURL: "https://a.example/v.mp4", MediaType: "video", PageURL: "https://page.example"},
			kind: domain.KindPage,
		},
		{
			name: "whitespace selection is absent",
			ev:   RawEvent{SelectionText: "   ", PageURL: "https://page.example"},
			kind: domain.KindPage,
		},
		{
			name: "empty event is a page",
			ev:   RawEvent{},
			kind: domain.KindPage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Normalize(tt.ev)
			assert.Equal(t, tt.kind, req.Kind)
			assert.Equal(t, tt.main, req.PrimaryContent)

			// Same input, same output.
			assert.Equal(t, req, Normalize(tt.ev))
		})
	}
}

func TestNormalize_CarriesProvenanceAndExplicitFields(t *testing.T) {
	req := Normalize(RawEvent{
		Surface:   SurfaceForm,
		LinkURL:   "https://a.example/post",
		PageURL:   " https://page.example ",
		PageTitle: "Page",
		Title:     " My title ",
		Content:   " my note ",
	})
	assert.Equal(t, domain.KindURL, req.Kind)
	assert.Equal(t, "https://page.example", req.SourceURL)
	assert.Equal(t, "Page", req.SourceTitle)
	assert.Equal(t, "My title", req.Title)
	assert.Equal(t, "my note", req.Content)
}

func TestNormalize_PageUsesSourceURL(t *testing.T) {
	req := Normalize(RawEvent{Surface: SurfaceShortcut, PageURL: "https://page.example", PageTitle: "Tab"})
	assert.Equal(t, domain.KindPage, req.Kind)
	assert.Empty(t, req.PrimaryContent)
	assert.NoError(t, req.Validate())
}

func TestFromText(t *testing.T) {
	link := Normalize(FromText(SurfaceTelegram, " https://example.com/a "))
	assert.Equal(t, domain.KindURL, link.Kind)
	assert.Equal(t, "https://example.com/a", link.PrimaryContent)

	text := Normalize(FromText(SurfaceTelegram, "read https://example.com/a later"))
	assert.Equal(t, domain.KindText, text.Kind)

	notURL := Normalize(FromText(SurfaceTelegram, "ftp://example.com/file"))
	assert.Equal(t, domain.KindText, notURL.Kind)
}

func TestIsHTTPURL(t *testing.T) {
	assert.True(t, IsHTTPURL("http://example.com"))
	assert.True(t, IsHTTPURL("https://example.com/x?y=1"))
	assert.False(t, IsHTTPURL("example.com"))
	assert.False(t, IsHTTPURL("https://"))
	assert.False(t, IsHTTPURL("mailto:a@b.c"))
}
