package model

import (
	"time"

	"github.com/google/uuid"
)

type ArticleStatus string

const (
	StatusPublished ArticleStatus = "published"
)

// Article is a persisted news article. Title is the deduplication key.
type Article struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	Author      string        `json:"author,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	Content     string        `json:"content,omitempty"`
	URL         string        `json:"url,omitempty"`
	SourceName  string        `json:"source_name,omitempty"`
	Status      ArticleStatus `json:"status"`
	PublishedAt time.Time     `json:"published_at"`
	CreatedAt   time.Time     `json:"created_at"`
}

// NewArticle creates a published Article with a fresh ID.
func NewArticle(title string, publishedAt time.Time) Article {
	return Article{
		ID:          uuid.New(),
		Title:       title,
		Status:      StatusPublished,
		PublishedAt: publishedAt.UTC(),
		CreatedAt:   time.Now().UTC(),
	}
}
