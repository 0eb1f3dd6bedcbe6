package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"newsdesk/internal/model"
	"newsdesk/internal/settings"
	"newsdesk/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const twoArticles = `{
  "status": "ok",
  "totalResults": 2,
  "articles": [
    {"source": {"id": null, "name": "Example"}, "title": "A", "author": "Ann",
     "description": "about A", "url": "https://example.com/a",
     "publishedAt": "2026-03-02T10:00:00Z", "content": "<p>A body</p>"},
    {"source": {"id": null, "name": "Example"}, "title": "B", "author": null,
     "description": "about B", "url": "https://example.com/b",
     "publishedAt": "2026-03-01T10:00:00Z", "content": null}
  ]
}`

// upstream is a fake news API that records the last request it saw.
type upstream struct {
	*httptest.Server
	mu     sync.Mutex
	last   *http.Request
	calls  atomic.Int32
	status int
	body   string
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	u := &upstream{status: status, body: body}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		u.mu.Lock()
		u.last = r.Clone(context.Background())
		status, body := u.status, u.body
		u.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) lastRequest() *http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last
}

func newStore(t *testing.T) *store.BadgerStore {
	st, err := store.NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func searchSettings(q string) *settings.Static {
	return settings.NewStatic(settings.Settings{
		APIKey:       "secret",
		EndpointMode: settings.ModeSearch,
		SearchQuery:  q,
		PageSize:     10,
	})
}

func newFetcher(st Writer, sp settings.Provider, baseURL string) *Fetcher {
	return New(st, sp, zap.NewNop(), Config{
		BaseURL: baseURL,
		SiteURL: "https://news.example.org",
	})
}

func TestFetchAndStore_SearchScenario(t *testing.T) {
	up := newUpstream(t, http.StatusOK, twoArticles)
	st := newStore(t)
	f := newFetcher(st, searchSettings("rust"), up.URL)
	ctx := context.Background()

	res := f.FetchAndStore(ctx)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Skipped)

	req := up.lastRequest()
	assert.Equal(t, "/v2/everything", req.URL.Path)
	assert.Equal(t, "rust", req.URL.Query().Get("q"))
	assert.Equal(t, "secret", req.URL.Query().Get("apiKey"))
	assert.Equal(t, "newsdesk/1.0 (https://news.example.org)", req.Header.Get("User-Agent"))

	// Same upstream answer again: nothing new.
	res = f.FetchAndStore(ctx)
	require.True(t, res.OK)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 2, res.Skipped)

	items, total, err := st.Page(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].Title, "newest first")
	assert.Equal(t, "Ann", items[0].Author)
	assert.Equal(t, "about A", items[0].Summary)
	assert.Equal(t, "Example", items[0].SourceName)
	assert.Equal(t, model.StatusPublished, items[0].Status)
	assert.Equal(t, "B", items[1].Title)
	assert.Empty(t, items[1].Author)
}

func TestFetchAndStore_HeadlinesQuery(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"status":"ok","articles":[]}`)
	sp := settings.NewStatic(settings.Settings{
		APIKey:            "secret",
		EndpointMode:      settings.ModeHeadlines,
		HeadlinesCategory: "science",
	})
	f := newFetcher(newStore(t), sp, up.URL)

	res := f.FetchAndStore(context.Background())
	require.True(t, res.OK)

	req := up.lastRequest()
	assert.Equal(t, "/v2/top-headlines", req.URL.Path)
	assert.Equal(t, "science", req.URL.Query().Get("category"))
	assert.False(t, req.URL.Query().Has("q"), "empty filter is omitted")

	sp.Set(settings.Settings{APIKey: "secret", EndpointMode: settings.ModeHeadlines, SearchQuery: "mars"})
	f.FetchAndStore(context.Background())

	req = up.lastRequest()
	assert.Equal(t, "general", req.URL.Query().Get("category"))
	assert.Equal(t, "mars", req.URL.Query().Get("q"))
}

func TestFetchAndStore_UpstreamError(t *testing.T) {
	up := newUpstream(t, http.StatusInternalServerError, "oops")
	st := newStore(t)
	f := newFetcher(st, searchSettings("rust"), up.URL)

	res := f.FetchAndStore(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, model.ReasonUpstream, res.Reason)
	assert.Contains(t, res.Error, "500")

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFetchAndStore_UpstreamErrorMessage(t *testing.T) {
	up := newUpstream(t, http.StatusUnauthorized,
		`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`)
	f := newFetcher(newStore(t), searchSettings("rust"), up.URL)

	res := f.FetchAndStore(context.Background())
	assert.Equal(t, model.ReasonUpstream, res.Reason)
	assert.Contains(t, res.Error, "apiKeyInvalid")
	assert.NotContains(t, res.Error, "secret")
}

func TestFetchAndStore_ErrorStatusWithOK(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"status":"error","code":"rateLimited","message":"slow down"}`)
	f := newFetcher(newStore(t), searchSettings("rust"), up.URL)

	res := f.FetchAndStore(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, model.ReasonUpstream, res.Reason)
}

func TestFetchAndStore_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>nope</html>"},
		{"no articles", `{"status":"ok"}`},
		{"missing title", `{"articles":[{"title":"ok","publishedAt":"2026-03-01T00:00:00Z"},{"publishedAt":"2026-03-01T00:00:00Z"}]}`},
		{"blank title", `{"articles":[{"title":"  ","publishedAt":"2026-03-01T00:00:00Z"}]}`},
		{"missing date", `{"articles":[{"title":"x"}]}`},
		{"bad date", `{"articles":[{"title":"x","publishedAt":"yesterday"}]}`},
		{"wrong type", `{"articles":[{"title":42,"publishedAt":"2026-03-01T00:00:00Z"}]}`},
		{"articles not a list", `{"articles":{"title":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, http.StatusOK, tt.body)
			st := newStore(t)
			f := newFetcher(st, searchSettings("rust"), up.URL)

			res := f.FetchAndStore(context.Background())
			assert.False(t, res.OK)
			assert.Equal(t, model.ReasonParse, res.Reason)

			n, err := st.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n, "no partial writes")
		})
	}
}

func TestFetchAndStore_TransportError(t *testing.T) {
	up := newUpstream(t, http.StatusOK, twoArticles)
	addr := up.URL
	up.Close()

	f := newFetcher(newStore(t), searchSettings("rust"), addr)
	res := f.FetchAndStore(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, model.ReasonTransport, res.Reason)
	assert.NotContains(t, res.Error, "secret", "api key is redacted")
}

func TestFetchAndStore_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	f := New(newStore(t), searchSettings("rust"), zap.NewNop(), Config{
		BaseURL: slow.URL,
		Timeout: 50 * time.Millisecond,
	})
	res := f.FetchAndStore(context.Background())
	assert.Equal(t, model.ReasonTransport, res.Reason)
}

func TestFetchAndStore_InvalidSettings(t *testing.T) {
	up := newUpstream(t, http.StatusOK, twoArticles)
	sp := settings.NewStatic(settings.Settings{EndpointMode: settings.ModeSearch})
	f := newFetcher(newStore(t), sp, up.URL)

	res := f.FetchAndStore(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, model.ReasonSettings, res.Reason)
	assert.Zero(t, up.calls.Load(), "no request without valid settings")
}

func TestFetchAndStore_DuplicateInSameResponse(t *testing.T) {
	body := `{"articles":[
		{"title":"Twice","publishedAt":"2026-03-01T00:00:00Z"},
		{"title":"Twice","publishedAt":"2026-03-02T00:00:00Z"},
		{"title":"twice","publishedAt":"2026-03-02T00:00:00Z"}]}`
	up := newUpstream(t, http.StatusOK, body)
	f := newFetcher(newStore(t), searchSettings("x"), up.URL)

	res := f.FetchAndStore(context.Background())
	require.True(t, res.OK)
	assert.Equal(t, 2, res.Inserted, "titles match case-sensitively")
	assert.Equal(t, 1, res.Skipped)
}

func TestFetchAndStore_SanitizesContent(t *testing.T) {
	body := `{"articles":[{"title":"S","author":"<b>Bob</b>","description":"<i>hi</i> there",
		"publishedAt":"2026-03-01T00:00:00Z",
		"content":"<p onclick=\"x()\">safe <a href=\"https://example.com\">link</a></p><script>alert(1)</script>"}]}`
	up := newUpstream(t, http.StatusOK, body)
	st := newStore(t)
	f := newFetcher(st, searchSettings("x"), up.URL)

	require.True(t, f.FetchAndStore(context.Background()).OK)

	items, _, err := st.Page(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	a := items[0]
	assert.Equal(t, "Bob", a.Author)
	assert.Equal(t, "hi there", a.Summary)
	assert.Contains(t, a.Content, "<p>safe")
	assert.Contains(t, a.Content, `href="https://example.com"`)
	assert.NotContains(t, a.Content, "script")
	assert.NotContains(t, a.Content, "onclick")
}

func TestFetchAndStore_SummaryFallbackHasNoMarkup(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	body := fmt.Sprintf(`{"articles":[{"title":"F","description":null,
		"publishedAt":"2026-03-01T00:00:00Z","content":"<p>%s</p>"}]}`, text)
	up := newUpstream(t, http.StatusOK, body)
	st := newStore(t)
	f := newFetcher(st, searchSettings("x"), up.URL)

	require.True(t, f.FetchAndStore(context.Background()).OK)

	items, _, err := st.Page(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotContains(t, items[0].Summary, "<")
}

// flakyWriter fails inserts for one title and delegates the rest.
type flakyWriter struct {
	Writer
	badTitle string
}

func (w flakyWriter) Insert(ctx context.Context, a *model.Article) (uuid.UUID, error) {
	if a.Title == w.badTitle {
		return uuid.Nil, errors.New("disk full")
	}
	return w.Writer.Insert(ctx, a)
}

func TestFetchAndStore_InsertFailureDoesNotBlockOthers(t *testing.T) {
	up := newUpstream(t, http.StatusOK, twoArticles)
	st := newStore(t)
	f := newFetcher(flakyWriter{Writer: st, badTitle: "A"}, searchSettings("rust"), up.URL)

	res := f.FetchAndStore(context.Background())
	require.True(t, res.OK)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Inserted)

	ok, err := st.Exists(context.Background(), "B")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFetchAndStore_ConcurrentRuns(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"articles":[`)
	for i := 0; i < 30; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"title":"T%d","publishedAt":"2026-03-01T00:%02d:00Z"}`, i, i)
	}
	sb.WriteString(`]}`)

	up := newUpstream(t, http.StatusOK, sb.String())
	st := newStore(t)
	f := newFetcher(st, searchSettings("x"), up.URL)

	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.FetchAndStore(context.Background())
			assert.True(t, res.OK)
			assert.Zero(t, res.Failed)
			inserted.Add(int32(res.Inserted))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 30, inserted.Load())
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}

func TestBuildURL(t *testing.T) {
	u, err := buildURL("https://newsapi.org/", settings.Settings{
		APIKey: "k", EndpointMode: settings.ModeSearch, SearchQuery: "go lang",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://newsapi.org/v2/everything?apiKey=k&q=go+lang", u)

	_, err = buildURL("https://newsapi.org", settings.Settings{APIKey: "k", EndpointMode: "rss"})
	assert.ErrorIs(t, err, settings.ErrInvalid)
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "newsdesk/1.0", userAgent(""))
	assert.Equal(t, "newsdesk/1.0 (https://x.org)", userAgent("https://x.org"))
}

func TestSanitizer_TextIsPlain(t *testing.T) {
	s := NewSanitizer()
	assert.Equal(t, "Tom's & Jerry's", s.Text("  <b>Tom's</b> &amp; Jerry's "))
	assert.Equal(t, "", s.Text("<script>alert(1)</script>"))
}
