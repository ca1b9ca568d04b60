package composition

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// activeKey is the config key holding the active composition id.
const activeKey = "active_composition"

type Repository interface {
	CreateComposition(ctx context.Context, c *Composition) error
	GetComposition(ctx context.Context, id string) (*Composition, error)
	ListCompositions(ctx context.Context) ([]*Composition, error)
	UpdateComposition(ctx context.Context, c *Composition) error
	DeleteComposition(ctx context.Context, id string) error

	GetActiveID(ctx context.Context) (string, error)
	SetActiveID(ctx context.Context, id string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const compositionColumns = `id, name, width, height, frame_rate, duration, snapshot, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanComposition(row scanner) (*Composition, error) {
	var c Composition
	var snapshot, createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Width, &c.Height, &c.FrameRate, &c.Duration, &snapshot, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	snap, err := timeline.UnmarshalSnapshot([]byte(snapshot))
	if err != nil {
		return nil, fmt.Errorf("composition %s: %w", c.ID, err)
	}
	c.Snapshot = snap
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func (r *SQLiteRepository) CreateComposition(ctx context.Context, c *Composition) error {
	data, err := c.Snapshot.Marshal()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO compositions (`+compositionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Width, c.Height, c.FrameRate, c.Duration, string(data),
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetComposition(ctx context.Context, id string) (*Composition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+compositionColumns+` FROM compositions WHERE id = ?`, id)
	c, err := scanComposition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *SQLiteRepository) ListCompositions(ctx context.Context) ([]*Composition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+compositionColumns+` FROM compositions ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comps []*Composition
	for rows.Next() {
		c, err := scanComposition(rows)
		if err != nil {
			return nil, err
		}
		comps = append(comps, c)
	}
	return comps, rows.Err()
}

func (r *SQLiteRepository) UpdateComposition(ctx context.Context, c *Composition) error {
	data, err := c.Snapshot.Marshal()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE compositions
		SET name = ?, width = ?, height = ?, frame_rate = ?, duration = ?, snapshot = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, c.Width, c.Height, c.FrameRate, c.Duration, string(data), c.UpdatedAt.Format(time.RFC3339), c.ID)
	return err
}

func (r *SQLiteRepository) DeleteComposition(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM compositions WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) GetActiveID(ctx context.Context) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", activeKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetActiveID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, activeKey, id)
	return err
}
