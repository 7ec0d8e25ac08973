package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
)

// SQLiteStore persists pages and sections in a SQLite database.
type SQLiteStore struct {
	conn *sql.DB
}

// fileDSNParams uses modernc.org/sqlite's _pragma syntax; each pragma runs on
// every new connection.
const fileDSNParams = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// OpenSQLite opens (or creates) the database at path and applies migrations.
// The special path ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = path + fileDSNParams
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps a ":memory:" database on one connection.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			is_system INTEGER NOT NULL DEFAULT 0,
			is_visible INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sections (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL REFERENCES pages(id),
			type TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '{}',
			is_visible INTEGER NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sections_page ON sections(page_id)`,
	}

	for _, m := range migrations {
		if _, err := s.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

const pageColumns = `id, slug, title, is_system, is_visible, created_at, updated_at`

const sectionColumns = `id, page_id, type, content, is_visible, sort_order, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (*content.Page, error) {
	var (
		p                    content.Page
		isSystem, isVisible  int
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Slug, &p.Title, &isSystem, &isVisible, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.IsSystem = isSystem != 0
	p.IsVisible = isVisible != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func scanSection(row rowScanner) (*content.Section, error) {
	var (
		sec                  content.Section
		raw                  string
		isVisible            int
		createdAt, updatedAt string
	)
	if err := row.Scan(&sec.ID, &sec.PageID, &sec.Type, &raw, &isVisible, &sec.SortOrder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc, err := content.DecodeJSON([]byte(raw))
	if err != nil {
		// A corrupt column degrades to an empty document; the renderer falls
		// back to its defaults.
		doc = content.Document{}
	}
	sec.Content = doc
	sec.IsVisible = isVisible != 0
	sec.CreatedAt = parseTime(createdAt)
	sec.UpdatedAt = parseTime(updatedAt)
	return &sec, nil
}

// GetPage returns the page with the given slug.
func (s *SQLiteStore) GetPage(ctx context.Context, slug string) (*content.Page, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE slug = ?`, slug)
	p, err := scanPage(row)
	if err != nil {
		return nil, notFoundOr(err, "page", slug)
	}
	return p, nil
}

// GetPageByID returns the page with the given id.
func (s *SQLiteStore) GetPageByID(ctx context.Context, id string) (*content.Page, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)
	p, err := scanPage(row)
	if err != nil {
		return nil, notFoundOr(err, "page", id)
	}
	return p, nil
}

// ListPages returns all pages ordered by slug.
func (s *SQLiteStore) ListPages(ctx context.Context) ([]content.Page, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+pageColumns+` FROM pages ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := []content.Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

// CreatePage inserts a page.
func (s *SQLiteStore) CreatePage(ctx context.Context, in content.PageInput) (*content.Page, error) {
	now := time.Now().UTC()
	p := &content.Page{
		ID:        NewID(),
		Slug:      in.Slug,
		Title:     in.Title,
		IsSystem:  in.IsSystem,
		IsVisible: in.IsVisible,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO pages (`+pageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Title, boolInt(p.IsSystem), boolInt(p.IsVisible), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, duplicateSlug(in.Slug)
		}
		return nil, fmt.Errorf("insert page: %w", err)
	}
	return p, nil
}

// UpdatePage changes a page's title and visibility.
func (s *SQLiteStore) UpdatePage(ctx context.Context, id string, upd content.PageUpdate) (*content.Page, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE pages SET title = ?, is_visible = ?, updated_at = ? WHERE id = ?`,
		upd.Title, boolInt(upd.IsVisible), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update page: %w", err)
	}
	if err := requireAffected(res, "page", id); err != nil {
		return nil, err
	}
	return s.GetPageByID(ctx, id)
}

// DeletePage removes a page and its sections. System pages cannot be deleted.
func (s *SQLiteStore) DeletePage(ctx context.Context, id string) error {
	p, err := s.GetPageByID(ctx, id)
	if err != nil {
		return err
	}
	if p.IsSystem {
		return siteerrors.ErrSystemPage
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE page_id = ?`, id); err != nil {
		return fmt.Errorf("delete sections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return tx.Commit()
}

// GetSection returns one section.
func (s *SQLiteStore) GetSection(ctx context.Context, id string) (*content.Section, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id = ?`, id)
	sec, err := scanSection(row)
	if err != nil {
		return nil, notFoundOr(err, "section", id)
	}
	return sec, nil
}

// ListSections returns a page's sections in insertion order.
func (s *SQLiteStore) ListSections(ctx context.Context, pageID string) ([]content.Section, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+sectionColumns+` FROM sections WHERE page_id = ? ORDER BY rowid`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	sections := []content.Section{}
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, *sec)
	}
	return sections, rows.Err()
}

// CreateSection inserts a section into an existing page.
func (s *SQLiteStore) CreateSection(ctx context.Context, in content.SectionInput) (*content.Section, error) {
	if _, err := s.GetPageByID(ctx, in.PageID); err != nil {
		return nil, err
	}

	raw, err := in.Content.MarshalCanonical()
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	now := time.Now().UTC()
	sec := &content.Section{
		ID:        NewID(),
		PageID:    in.PageID,
		Type:      in.Type,
		Content:   in.Content.Clone(),
		IsVisible: in.IsVisible,
		SortOrder: in.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO sections (`+sectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sec.ID, sec.PageID, sec.Type, string(raw), boolInt(sec.IsVisible), sec.SortOrder,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert section: %w", err)
	}
	return sec, nil
}

// UpdateSection overwrites a section's content, visibility and order.
func (s *SQLiteStore) UpdateSection(ctx context.Context, id string, upd content.SectionUpdate) (*content.Section, error) {
	raw, err := upd.Content.MarshalCanonical()
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE sections SET content = ?, is_visible = ?, sort_order = ?, updated_at = ? WHERE id = ?`,
		string(raw), boolInt(upd.IsVisible), upd.SortOrder, formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update section: %w", err)
	}
	if err := requireAffected(res, "section", id); err != nil {
		return nil, err
	}
	return s.GetSection(ctx, id)
}

// DeleteSection removes a section.
func (s *SQLiteStore) DeleteSection(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM sections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return requireAffected(res, "section", id)
}

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return siteerrors.NewNotFoundError(kind, id)
	}
	return fmt.Errorf("get %s: %w", kind, err)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return siteerrors.NewNotFoundError(kind, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
