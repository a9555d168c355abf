package domain

// RetrievedChunk is one raw hit returned by a single index.
type RetrievedChunk struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Topic    string         `json:"topic,omitempty"`
	Title    string         `json:"title,omitempty"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

type FusionMode string

const (
	FusionHybrid      FusionMode = "hybrid"
	FusionVectorOnly  FusionMode = "vector_only"
	FusionKeywordOnly FusionMode = "keyword_only"
	FusionNone        FusionMode = "none"
)

// RankedChunk is a fused result with the ranks that produced it.
// A nil rank means the chunk was absent from that list.
type RankedChunk struct {
	ID          string  `json:"id"`
	Content     string  `json:"content"`
	Topic       string  `json:"topic,omitempty"`
	Title       string  `json:"title,omitempty"`
	Source      string  `json:"source,omitempty"`
	VectorRank  *int    `json:"vector_rank"`
	KeywordRank *int    `json:"keyword_rank"`
	VectorScore float64 `json:"vector_score,omitempty"`
	FusedScore  float64 `json:"fused_score"`
}

type KnowledgeQuery struct {
	Query string `json:"query"`
	Topic string `json:"topic,omitempty"`
}

type KnowledgeAnswer struct {
	Answer         string        `json:"answer"`
	Sources        []string      `json:"sources"`
	Confidence     float64       `json:"confidence"`
	Mode           FusionMode    `json:"mode"`
	Degraded       bool          `json:"degraded"`
	DegradedReason string        `json:"degraded_reason,omitempty"`
	Results        []RankedChunk `json:"results"`
}

// KnowledgeDocument is a source document loaded into the knowledge index.
type KnowledgeDocument struct {
	ID      string `json:"id" yaml:"id"`
	Topic   string `json:"topic" yaml:"topic"`
	Title   string `json:"title" yaml:"title"`
	Source  string `json:"source" yaml:"source"`
	Content string `json:"content" yaml:"content"`
}

// KnowledgeChunk is one indexed slice of a KnowledgeDocument.
type KnowledgeChunk struct {
	ID         string
	DocumentID string
	Index      int
	Topic      string
	Title      string
	Source     string
	Content    string
}
