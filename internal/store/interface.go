package store

import (
	"context"
	"errors"

	"newsdesk/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("article not found")
	ErrDuplicate = errors.New("article with this title already exists")
	ErrNoTitle   = errors.New("article title is empty")
)

// Store persists articles keyed by exact title. Insert must be an atomic
// compare-and-insert so concurrent fetch runs never double-insert a title.
type Store interface {
	Exists(ctx context.Context, title string) (bool, error)
	Insert(ctx context.Context, article *model.Article) (uuid.UUID, error)
	Page(ctx context.Context, index, size int) ([]model.Article, int, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Article, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// TotalPages returns ceil(count/size); zero articles means zero pages.
func TotalPages(count, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}

// normalizePage clamps a 1-based page request and returns its offset.
func normalizePage(index, size int) (int, int) {
	if size < 1 {
		size = 1
	}
	if index < 1 {
		index = 1
	}
	return (index - 1) * size, size
}

// prepare validates an article before insert and fills generated fields.
func prepare(a *model.Article) error {
	if a.Title == "" {
		return ErrNoTitle
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = model.StatusPublished
	}
	return nil
}
