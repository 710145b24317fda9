package domain

// Template is a published workflow as listed by the templates API.
type Template struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
	Difficulty    string   `json:"difficulty"`
	EstimatedTime string   `json:"estimated_time"`
	IsOfficial    bool     `json:"is_official"`
	UsesCount     int      `json:"uses_count"`
	LikesCount    int      `json:"likes_count"`
	Rating        float64  `json:"rating"`
	AuthorID      *string  `json:"author_id,omitempty"`
	AuthorName    *string  `json:"author_name,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
	PublishedAt   string   `json:"published_at,omitempty"`
}

// Listing exposes the fields shared filtering and sorting operate on.
func (t Template) Listing() Listing {
	return Listing{
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Tags:        t.Tags,
		PublishedAt: t.PublishedAt,
		Official:    t.IsOfficial,
	}
}

// Listing is the catalog-neutral view of a template or agent.
type Listing struct {
	Name        string
	Description string
	Category    string
	Tags        []string
	PublishedAt string
	Official    bool
}

// Listable is implemented by every catalog item.
type Listable interface {
	Listing() Listing
}

// WorkflowDetail is the materialized workflow returned by POST /templates/{id}/use.
type WorkflowDetail struct {
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"name,omitempty"`
	Nodes RawNodes `json:"nodes"`
}
