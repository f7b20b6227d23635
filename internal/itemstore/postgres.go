package itemstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/models"
)

const DefaultTable = "vocabulary_items"

// PostgresStore keeps one JSONB document per item, keyed by
// (category, letter, name).
type PostgresStore struct {
	db    *sql.DB
	table string
	psql  sq.StatementBuilderType
	now   func() time.Time
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{
		db:    db,
		table: table,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:   time.Now,
	}
}

// EnsureSchema creates the item table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    category   TEXT NOT NULL,
    letter     TEXT NOT NULL,
    name       TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT '',
    document   JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (category, letter, name)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create item table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key models.ItemKey) (*models.Item, error) {
	query, args, err := s.psql.Select("document").From(s.table).
		Where(sq.Eq{"category": key.Category}).
		Where(sq.Eq{"letter": key.Letter}).
		Where(sq.Eq{"name": key.Name}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var doc []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewItemNotFoundError(key.String())
		}
		return nil, fmt.Errorf("load item %s: %w", key, err)
	}
	var item models.Item
	if err := json.Unmarshal(doc, &item); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", key, err)
	}
	return &item, nil
}

// Save upserts the whole item document.
func (s *PostgresStore) Save(ctx context.Context, item *models.Item) error {
	if err := item.Key.Validate(); err != nil {
		return err
	}
	cp := item.Clone()
	now := s.now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	doc, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", cp.Key, err)
	}

	query, args, err := s.psql.Insert(s.table).
		Columns("category", "letter", "name", "status", "document", "updated_at").
		Values(cp.Key.Category, cp.Key.Letter, cp.Key.Name, string(cp.Status()), doc, now).
		Suffix("ON CONFLICT (category, letter, name) DO UPDATE SET status = EXCLUDED.status, document = EXCLUDED.document, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert item %s: %w", cp.Key, err)
	}
	return nil
}

func (s *PostgresStore) ListByCategory(ctx context.Context, category string) ([]*models.Item, error) {
	query, args, err := s.psql.Select("document").From(s.table).
		Where(sq.Eq{"category": category}).
		OrderBy("letter", "name").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*models.Item
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		var item models.Item
		if err := json.Unmarshal(doc, &item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		out = append(out, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
