package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrParse = errors.New("malformed upstream response")

// apiResponse mirrors the upstream JSON. Pointers tell "missing" apart from
// "empty" so required fields can be enforced.
type apiResponse struct {
	Status   string        `json:"status"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Articles *[]apiArticle `json:"articles"`
}

type apiSource struct {
	Name *string `json:"name"`
}

type apiArticle struct {
	Source      *apiSource `json:"source"`
	Title       *string    `json:"title"`
	Author      *string    `json:"author"`
	Description *string    `json:"description"`
	URL         *string    `json:"url"`
	PublishedAt *string    `json:"publishedAt"`
	Content     *string    `json:"content"`
}

// entry is a validated upstream article, before sanitizing.
type entry struct {
	Title       string
	Author      string
	Description string
	URL         string
	SourceName  string
	PublishedAt time.Time
	Content     string
}

// parseArticles decodes body into validated entries. Any missing required
// field or type mismatch fails the whole response; partial results are never
// returned.
func parseArticles(body []byte) ([]entry, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if resp.Articles == nil {
		return nil, fmt.Errorf("%w: no articles list", ErrParse)
	}

	entries := make([]entry, 0, len(*resp.Articles))
	for i, a := range *resp.Articles {
		e, err := a.validate()
		if err != nil {
			return nil, fmt.Errorf("%w: article %d: %v", ErrParse, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (a apiArticle) validate() (entry, error) {
	if a.Title == nil || strings.TrimSpace(*a.Title) == "" {
		return entry{}, errors.New("title is missing")
	}
	if a.PublishedAt == nil {
		return entry{}, errors.New("publishedAt is missing")
	}
	published, err := time.Parse(time.RFC3339, *a.PublishedAt)
	if err != nil {
		return entry{}, fmt.Errorf("publishedAt: %v", err)
	}

	e := entry{
		Title:       *a.Title,
		Author:      deref(a.Author),
		Description: deref(a.Description),
		URL:         deref(a.URL),
		PublishedAt: published.UTC(),
		Content:     deref(a.Content),
	}
	if a.Source != nil {
		e.SourceName = deref(a.Source.Name)
	}
	return e, nil
}

// upstreamMessage extracts the error detail from an upstream error body, if any.
func upstreamMessage(body []byte) string {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Message == "" {
		return ""
	}
	if resp.Code != "" {
		return resp.Code + ": " + resp.Message
	}
	return resp.Message
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
