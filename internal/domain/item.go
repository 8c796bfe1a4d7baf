package domain

import "time"

// DefaultTitle is used when neither the capture nor the fetched metadata yields a title.
const DefaultTitle = "Untitled"

// MaxTags caps the number of tags an item can carry.
const MaxTags = 5

// SavedItem represents a captured piece of content owned by a single user.
type SavedItem struct {
	// ID is assigned by the store at insert time and never changes.
	ID string `json:"id"`

	// OwnerID is the user the item belongs to. All store operations are scoped by it.
	OwnerID string `json:"user_id"`

	// URL is the saved link, if any.
	URL string `json:"url,omitempty"`

	// Title is always set; it falls back to DefaultTitle.
	Title string `json:"title"`

	// Content is the raw captured text or note.
	Content string `json:"content,omitempty"`

	// ThumbnailURL is the captured image or the page's preview image.
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	// Category is one of the closed set of category labels.
	Category Category `json:"category"`

	// Tags holds at most MaxTags short labels. Order carries no meaning.
	Tags []string `json:"tags"`

	// AISummary is a short summary produced by the classifier.
	AISummary string `json:"ai_summary,omitempty"`

	// AIProcessed stays false until classification completes.
	AIProcessed bool `json:"ai_processed"`

	// IsStarred is toggled by the user.
	IsStarred bool `json:"is_starred"`

	// CreatedAt is assigned at insert time.
	CreatedAt time.Time `json:"created_at"`
}

// ItemPatch is a partial update. Nil fields are left untouched.
type ItemPatch struct {
	Title        *string   `json:"title,omitempty"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	Category     *Category `json:"category,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
	AISummary    *string   `json:"ai_summary,omitempty"`
	AIProcessed  *bool     `json:"ai_processed,omitempty"`
	IsStarred    *bool     `json:"is_starred,omitempty"`
}

// Apply merges the patch into item.
func (p ItemPatch) Apply(item *SavedItem) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.ThumbnailURL != nil {
		item.ThumbnailURL = *p.ThumbnailURL
	}
	if p.Category != nil {
		item.Category = ParseCategory(string(*p.Category))
	}
	if p.Tags != nil {
		item.Tags = CapTags(*p.Tags)
	}
	if p.AISummary != nil {
		item.AISummary = *p.AISummary
	}
	if p.AIProcessed != nil {
		item.AIProcessed = *p.AIProcessed
	}
	if p.IsStarred != nil {
		item.IsStarred = *p.IsStarred
	}
}

// StarPatch builds a patch that only sets the starred flag.
func StarPatch(starred bool) ItemPatch {
	return ItemPatch{IsStarred: &starred}
}

// EnrichmentPatch builds the patch written once classification completes.
func EnrichmentPatch(category Category, tags []string, summary string) ItemPatch {
	processed := true
	tags = CapTags(tags)
	return ItemPatch{
		Category:    &category,
		Tags:        &tags,
		AISummary:   &summary,
		AIProcessed: &processed,
	}
}

// CapTags returns a copy of tags holding at most MaxTags entries.
// The result is never nil so that it serialises as an empty list.
func CapTags(tags []string) []string {
	n := len(tags)
	if n > MaxTags {
		n = MaxTags
	}
	out := make([]string, n)
	copy(out, tags[:n])
	return out
}

// Clone returns a deep copy of the item.
func (i SavedItem) Clone() SavedItem {
	i.Tags = CapTags(i.Tags)
	return i
}
