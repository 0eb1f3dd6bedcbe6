package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"newsdesk/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const maxTxnRetries = 5

var (
	prefixTitle   = []byte("title:")
	prefixArticle = []byte("article:")
	prefixPub     = []byte("pub:")
)

// BadgerStore keeps articles in an embedded Badger database.
//
// Layout:
//
//	title:<title>             -> article id
//	article:<id>              -> JSON article
//	pub:<desc sec><desc nsec><id> -> empty, iterated for newest-first pages
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a Badger database at path.
// Pass path="" to run fully in memory (tests, throwaway runs).
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Silence default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunGC reclaims value log space until ctx is done.
func (s *BadgerStore) RunGC(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Rewrite files until nothing is left to reclaim.
			for s.db.RunValueLogGC(0.7) == nil {
			}
		}
	}
}

func (s *BadgerStore) Exists(_ context.Context, title string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(titleKey(title))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert writes the article only if its title is absent. The title lookup and
// the writes share one transaction; a racing writer makes the commit fail with
// badger.ErrConflict and the retry then observes the winner's title key.
func (s *BadgerStore) Insert(ctx context.Context, a *model.Article) (uuid.UUID, error) {
	if err := prepare(a); err != nil {
		return uuid.Nil, err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return uuid.Nil, err
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return uuid.Nil, err
		}

		err = s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(titleKey(a.Title))
			if err == nil {
				return ErrDuplicate
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := txn.Set(titleKey(a.Title), a.ID[:]); err != nil {
				return err
			}
			if err := txn.Set(articleKey(a.ID), data); err != nil {
				return err
			}
			return txn.Set(pubKey(a.PublishedAt, a.ID), nil)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return uuid.Nil, err
		}
		return a.ID, nil
	}

	return uuid.Nil, fmt.Errorf("insert %q: %w", a.Title, badger.ErrConflict)
}

func (s *BadgerStore) Get(_ context.Context, id uuid.UUID) (*model.Article, error) {
	var article model.Article
	err := s.db.View(func(txn *badger.Txn) error {
		return readArticle(txn, id, &article)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func (s *BadgerStore) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		n = countPrefix(txn, prefixPub)
		return nil
	})
	return n, err
}

// Page returns the index-th page of articles, newest first, and the total
// number of pages. Both come from the same read snapshot.
func (s *BadgerStore) Page(_ context.Context, index, size int) ([]model.Article, int, error) {
	offset, size := normalizePage(index, size)

	articles := []model.Article{}
	var total int

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixPub
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []uuid.UUID
		for it.Rewind(); it.Valid(); it.Next() {
			if total >= offset && len(ids) < size {
				id, err := idFromPubKey(it.Item().Key())
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			total++
		}

		for _, id := range ids {
			var a model.Article
			if err := readArticle(txn, id, &a); err != nil {
				return fmt.Errorf("read article %s: %w", id, err)
			}
			articles = append(articles, a)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return articles, TotalPages(total, size), nil
}

func readArticle(txn *badger.Txn, id uuid.UUID, dst *model.Article) error {
	item, err := txn.Get(articleKey(id))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

func titleKey(title string) []byte {
	return append(append([]byte{}, prefixTitle...), title...)
}

func articleKey(id uuid.UUID) []byte {
	return append(append([]byte{}, prefixArticle...), id.String()...)
}

// pubKeyLen is prefix + seconds (8) + nanos (4) + id (16). Seconds and nanos
// are kept apart so every time.Time orders correctly, not just the
// UnixNano range.
var pubKeyLen = len(prefixPub) + 8 + 4 + 16

// pubKey sorts newest first under byte-wise iteration: the sign bit of the
// seconds is flipped to order pre-epoch dates, then all bits are inverted.
func pubKey(t time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, pubKeyLen)
	key = append(key, prefixPub...)
	key = binary.BigEndian.AppendUint64(key, ^(uint64(t.Unix()) ^ (1 << 63)))
	key = binary.BigEndian.AppendUint32(key, ^uint32(t.Nanosecond()))
	return append(key, id[:]...)
}

func idFromPubKey(key []byte) (uuid.UUID, error) {
	if len(key) != pubKeyLen {
		return uuid.Nil, fmt.Errorf("malformed index key %q", key)
	}
	return uuid.FromBytes(key[pubKeyLen-16:])
}
