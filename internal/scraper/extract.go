package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type document struct {
	title    string
	property map[string]string
	name     map[string]string
}

// Extract pulls title, description and image out of an HTML page.
// Each field takes the first non-empty source: title from og:title,
// twitter:title, then <title>; description from og:description then
// the description meta; image from og:image then twitter:image.
// Relative images are resolved against pageURL's origin.
func Extract(htmlContent, pageURL string) (Metadata, error) {
	root, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return Metadata{}, fmt.Errorf("parse html: %w", err)
	}

	doc := document{property: map[string]string{}, name: map[string]string{}}
	doc.walk(root)

	meta := Metadata{
		Title:       first(doc.property["og:title"], doc.name["twitter:title"], doc.title),
		Description: first(doc.property["og:description"], doc.name["description"]),
		Image:       first(doc.property["og:image"], doc.name["twitter:image"]),
		URL:         pageURL,
	}
	if meta.Title == "" {
		meta.Title = UntitledTitle
	}
	if meta.Image != "" {
		meta.Image = resolveImage(meta.Image, pageURL)
	}
	return meta, nil
}

func (d *document) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if d.title == "" && n.FirstChild != nil {
				d.title = strings.TrimSpace(textOf(n))
			}
		case "meta":
			var property, name, content string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "property":
					property = strings.ToLower(strings.TrimSpace(a.Val))
				case "name":
					name = strings.ToLower(strings.TrimSpace(a.Val))
				case "content":
					content = strings.TrimSpace(a.Val)
				}
			}
			if content != "" {
				// First occurrence wins, like querySelector.
				if property != "" && d.property[property] == "" {
					d.property[property] = content
				}
				if name != "" && d.name[name] == "" {
					d.name[name] = content
				}
			}
		case "svg":
			// An svg <title> is not the document title.
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.walk(c)
	}
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveImage(image, pageURL string) string {
	ref, err := url.Parse(image)
	if err != nil || ref.IsAbs() {
		return image
	}
	page, err := url.Parse(pageURL)
	if err != nil || page.Host == "" {
		return image
	}
	origin := &url.URL{Scheme: page.Scheme, Host: page.Host, Path: "/"}
	return origin.ResolveReference(ref).String()
}
