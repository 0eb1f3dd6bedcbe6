package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsdesk/internal/model"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps articles in a SQLite table. The UNIQUE constraint on
// title is what makes Insert atomic.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writers serialize through one connection; readers share it too.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL UNIQUE,
		author TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		published_sec INTEGER NOT NULL,
		published_nsec INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_published
		ON articles (published_sec DESC, published_nsec DESC, id ASC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exists(ctx context.Context, title string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM articles WHERE title = ?", title).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, a *model.Article) (uuid.UUID, error) {
	if err := prepare(a); err != nil {
		return uuid.Nil, err
	}

	query := `
		INSERT INTO articles (
			id, title, author, summary, content, url, source_name,
			status, published_sec, published_nsec, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID.String(),
		a.Title,
		a.Author,
		a.Summary,
		a.Content,
		a.URL,
		a.SourceName,
		string(a.Status),
		a.PublishedAt.Unix(),
		a.PublishedAt.Nanosecond(),
		a.CreatedAt.UnixNano(),
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return uuid.Nil, ErrDuplicate
		}
		return uuid.Nil, fmt.Errorf("insert %q: %w", a.Title, err)
	}
	return a.ID, nil
}

const articleColumns = `id, title, author, summary, content, url, source_name, status, published_sec, published_nsec, created_at`

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+articleColumns+" FROM articles WHERE id = ?", id.String())
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&n)
	return n, err
}

// Page reads the count and the slice inside one read transaction so
// totalPages matches the items returned.
func (s *SQLiteStore) Page(ctx context.Context, index, size int) ([]model.Article, int, error) {
	offset, size := normalizePage(index, size)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT "+articleColumns+" FROM articles ORDER BY published_sec DESC, published_nsec DESC, id ASC LIMIT ? OFFSET ?",
		size, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	articles := []model.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return articles, TotalPages(total, size), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*model.Article, error) {
	var (
		a                 model.Article
		id, status        string
		sec, nsec, create int64
	)
	err := row.Scan(&id, &a.Title, &a.Author, &a.Summary, &a.Content, &a.URL, &a.SourceName,
		&status, &sec, &nsec, &create)
	if err != nil {
		return nil, err
	}

	a.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad article id %q: %w", id, err)
	}
	a.Status = model.ArticleStatus(status)
	a.PublishedAt = time.Unix(sec, nsec).UTC()
	a.CreatedAt = time.Unix(0, create).UTC()
	return &a, nil
}
