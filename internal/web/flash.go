package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	flashCookie = "flash"
	flashTTL    = 5 * time.Minute
)

type flash struct {
	message string
	expires time.Time
}

// flashes holds one-shot messages shown on the next page load. The browser
// only carries an opaque id in a cookie. Messages nobody collects expire
// after flashTTL.
type flashes struct {
	mu       sync.Mutex
	messages map[string]flash
	now      func() time.Time
}

func newFlashes() *flashes {
	return &flashes{messages: make(map[string]flash), now: time.Now}
}

// set stores a message for the client
func (f *flashes) set(w http.ResponseWriter, message string) {
	id := uuid.NewString()

	f.mu.Lock()
	now := f.now()
	f.prune(now)
	f.messages[id] = flash{message: message, expires: now.Add(flashTTL)}
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(flashTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// pop retrieves and immediately deletes a message
func (f *flashes) pop(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})

	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.messages[c.Value]
	if !ok {
		return ""
	}
	delete(f.messages, c.Value)
	if !f.now().Before(fl.expires) {
		return ""
	}
	return fl.message
}

// prune drops expired messages. Caller holds mu.
func (f *flashes) prune(now time.Time) {
	for id, fl := range f.messages {
		if !now.Before(fl.expires) {
			delete(f.messages, id)
		}
	}
}
