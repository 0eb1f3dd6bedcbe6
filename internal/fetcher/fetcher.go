// Package fetcher pulls articles from the upstream news API and inserts the
// ones whose titles are not stored yet.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"newsdesk/internal/model"
	"newsdesk/internal/settings"
	"newsdesk/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20
)

// Writer is the part of the article store the fetcher needs.
type Writer interface {
	Insert(ctx context.Context, article *model.Article) (uuid.UUID, error)
}

// Config tunes the outbound request.
type Config struct {
	BaseURL string        // upstream root, DefaultBaseURL when empty
	SiteURL string        // this site's base URL, reported in User-Agent
	Timeout time.Duration // client timeout when Client is nil
	Client  *http.Client
}

type Fetcher struct {
	store     Writer
	settings  settings.Provider
	logger    *zap.Logger
	client    *http.Client
	baseURL   string
	userAgent string
	sanitizer *Sanitizer
}

func New(st Writer, sp settings.Provider, logger *zap.Logger, cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Fetcher{
		store:     st,
		settings:  sp,
		logger:    logger,
		client:    client,
		baseURL:   cfg.BaseURL,
		userAgent: userAgent(cfg.SiteURL),
		sanitizer: NewSanitizer(),
	}
}

// FetchAndStore runs one fetch. Failures end the run without writes and are
// reported in the result, never returned as errors.
func (f *Fetcher) FetchAndStore(ctx context.Context) model.FetchResult {
	started := time.Now()
	logger := f.logger.With(zap.String("run_id", uuid.NewString()))

	result := f.run(ctx, logger)
	result.StartedAt = started.UTC()
	result.Duration = time.Since(started)

	if !result.OK {
		logger.Warn("Fetch run skipped",
			zap.String("reason", string(result.Reason)),
			zap.String("error", result.Error))
		return result
	}

	logger.Info("Fetch run complete",
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("took", result.Duration))
	return result
}

func (f *Fetcher) run(ctx context.Context, logger *zap.Logger) model.FetchResult {
	// Settings are read per run; an admin may have changed them since the last one.
	s, err := f.settings.Current(ctx)
	if err != nil {
		return model.Failure(model.ReasonSettings, err)
	}
	if err := s.Validate(); err != nil {
		return model.Failure(model.ReasonSettings, err)
	}

	endpoint, err := buildURL(f.baseURL, s)
	if err != nil {
		return model.Failure(model.ReasonSettings, err)
	}

	logger.Info("Fetching articles",
		zap.String("mode", string(s.EndpointMode)),
		zap.String("query", s.SearchQuery))

	body, reason, err := f.get(ctx, endpoint)
	if err != nil {
		return model.Failure(reason, err)
	}

	entries, err := parseArticles(body)
	if err != nil {
		return model.Failure(model.ReasonParse, err)
	}

	result := model.FetchResult{OK: true}
	for _, e := range entries {
		article := f.toArticle(e)

		_, err := f.store.Insert(ctx, &article)
		switch {
		case err == nil:
			result.Inserted++
		case errors.Is(err, store.ErrDuplicate):
			result.Skipped++
		default:
			// One bad insert does not stop the rest of the batch.
			result.Failed++
			logger.Error("Failed to insert article",
				zap.String("title", e.Title),
				zap.Error(err))
		}
	}
	return result
}

// get performs the upstream call and returns the raw body on a 2xx response.
func (f *Fetcher) get(ctx context.Context, endpoint string) ([]byte, model.FailureReason, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, model.ReasonTransport, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.ReasonTransport, fmt.Errorf("upstream request: %w", redactKey(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, model.ReasonTransport, fmt.Errorf("read upstream body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := upstreamMessage(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, model.ReasonUpstream, fmt.Errorf("upstream status %d: %s", resp.StatusCode, msg)
	}
	if len(body) > maxBodyBytes {
		return nil, model.ReasonParse, fmt.Errorf("%w: body exceeds %d bytes", ErrParse, maxBodyBytes)
	}
	if isErrorStatus(body) {
		return nil, model.ReasonUpstream, fmt.Errorf("upstream error: %s", upstreamMessage(body))
	}
	return body, model.ReasonNone, nil
}

func (f *Fetcher) toArticle(e entry) model.Article {
	a := model.NewArticle(e.Title, e.PublishedAt)
	a.Author = f.sanitizer.Text(e.Author)
	a.Summary = f.sanitizer.Text(e.Description)
	a.Content = f.sanitizer.HTML(e.Content)
	a.URL = e.URL
	a.SourceName = f.sanitizer.Text(e.SourceName)
	if a.Summary == "" {
		a.Summary = f.sanitizer.Text(excerpt(a.Content, a.URL))
	}
	return a
}
