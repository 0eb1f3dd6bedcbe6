// Package pagination serves pages of stored articles. Full page loads and
// AJAX requests both go through RenderPage, so ordering and page size never
// differ between them.
package pagination

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"newsdesk/internal/model"
	"newsdesk/internal/settings"

	"go.uber.org/zap"
)

var ErrInvalidPage = errors.New("invalid page number")

// Reader is the read side of the article store.
type Reader interface {
	Page(ctx context.Context, index, size int) ([]model.Article, int, error)
}

// Page is a renderable slice of articles. It is never nil-valued: an empty
// store or an out-of-range index yields no Items.
type Page struct {
	Items       []model.Article
	CurrentPage int
	TotalPages  int
	Links       []Link
}

func (p Page) Empty() bool { return len(p.Items) == 0 }

type Service struct {
	store    Reader
	settings settings.Provider
	logger   *zap.Logger
}

func New(st Reader, sp settings.Provider, logger *zap.Logger) *Service {
	return &Service{store: st, settings: sp, logger: logger}
}

// RenderPage returns page index (1-based). It has no error path: a failed
// read is logged and rendered as an empty page.
func (s *Service) RenderPage(ctx context.Context, index int) Page {
	if index < 1 {
		index = 1
	}

	items, total, err := s.store.Page(ctx, index, s.pageSize(ctx))
	if err != nil {
		s.logger.Error("Failed to read articles page", zap.Int("page", index), zap.Error(err))
		return Page{Items: []model.Article{}, CurrentPage: index}
	}

	return Page{
		Items:       items,
		CurrentPage: index,
		TotalPages:  total,
		Links:       Links(index, total),
	}
}

func (s *Service) pageSize(ctx context.Context) int {
	st, err := s.settings.Current(ctx)
	if err != nil {
		s.logger.Warn("Settings unavailable, using default page size", zap.Error(err))
		return settings.DefaultPageSize
	}
	return st.EffectivePageSize()
}

// ParsePageToken turns a client-supplied page value into a page number.
// Absent or malformed input means page 1.
func ParsePageToken(raw string) int {
	n, err := parsePage(raw)
	if err != nil {
		return 1
	}
	return n
}

// parsePage accepts "3" as well as link-style values such as "/page/3/".
func parsePage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, "page/"); i >= 0 {
		raw = strings.Trim(raw[i+len("page/"):], "/")
	}
	if raw == "" {
		return 0, ErrInvalidPage
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ErrInvalidPage
	}
	return n, nil
}
