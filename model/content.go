package model

import "time"

// ContentFormat is the closed vocabulary for ContentBlock.Format.
type ContentFormat string

const (
	ContentFormatText     ContentFormat = "text"
	ContentFormatMarkdown ContentFormat = "markdown"
	ContentFormatHTML     ContentFormat = "html"
	ContentFormatJSON     ContentFormat = "json"
	ContentFormatOther    ContentFormat = "other"
)

// ContentBlock holds the body of an entry or entity, and the format it is in.
type ContentBlock struct {
	Format   ContentFormat          `json:"format"`
	Body     string                 `json:"body"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IsEmpty reports whether the block carries no body text.
func (c ContentBlock) IsEmpty() bool {
	return c.Body == ""
}

// MediaAttachment references a piece of media linked to an entity, such as a
// photo or a document; Uri may point at an s3:// location that the optional
// media resolver can stage for download.
type MediaAttachment struct {
	URI         string                 `json:"uri"`
	MediaType   string                 `json:"media_type"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// EmbeddingVector is a named vector produced by some embedding model.
type EmbeddingVector struct {
	Model     string                 `json:"model"`
	Vector    []float64              `json:"vector"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IsEmpty reports whether the vector carries no values.
func (e *EmbeddingVector) IsEmpty() bool {
	return e == nil || len(e.Vector) == 0
}

// Observation is a single note attached to an entity, usually produced by
// an extraction provider describing how the entity was encountered.
type Observation struct {
	ID         string                 `json:"id"`
	Text       string                 `json:"text"`
	Source     string                 `json:"source,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	Confidence *float64               `json:"confidence,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
