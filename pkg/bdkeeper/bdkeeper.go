// Package bdkeeper is the SQLite-backed durable store for notes and the
// pending operation queue.
package bdkeeper

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Keeper struct {
	db *sql.DB
}

// NewKeeper wraps an already opened database. The schema is not touched.
func NewKeeper(db *sql.DB) *Keeper {
	return &Keeper{
		db: db,
	}
}

// Open opens (or creates) the SQLite database at path and applies migrations.
func Open(path string) (*Keeper, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	k := NewKeeper(db)
	if err := k.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return k, nil
}

// Migrate brings the schema up to date.
func (k *Keeper) Migrate() error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(k.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (k *Keeper) GetNote(ctx context.Context, id string) (models.Note, error) {
	row := k.db.QueryRowContext(ctx,
		"SELECT id, title, content, updated_at, synced FROM notes WHERE id = ?", id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Note{}, fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return n, nil
}

func (k *Keeper) ListNotes(ctx context.Context) ([]models.Note, error) {
	rows, err := k.db.QueryContext(ctx, "SELECT id, title, content, updated_at, synced FROM notes")
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows encountered an error: %w", err)
	}
	return notes, nil
}

func (k *Keeper) PutNote(ctx context.Context, n models.Note) error {
	return putNote(ctx, k.db, n)
}

func putNote(ctx context.Context, q queryer, n models.Note) error {
	keys, values := n.Fields()
	query := fmt.Sprintf("INSERT OR REPLACE INTO notes(%s) VALUES(%s)",
		strings.Join(keys, ","), strings.Repeat("?,", len(keys)-1)+"?")
	if _, err := q.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to put note %s: %w", n.ID, err)
	}
	return nil
}

func (k *Keeper) DeleteNote(ctx context.Context, id string) error {
	if _, err := k.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	return nil
}

func (k *Keeper) GetOp(ctx context.Context, opID int64) (models.PendingOp, error) {
	row := k.db.QueryRowContext(ctx,
		"SELECT op_id, note_id, action, payload, timestamp FROM pending_ops WHERE op_id = ?", opID)
	op, err := scanOp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PendingOp{}, fmt.Errorf("pending op %d: %w", opID, storage.ErrNotFound)
	}
	if err != nil {
		return models.PendingOp{}, fmt.Errorf("failed to get pending op %d: %w", opID, err)
	}
	return op, nil
}

func (k *Keeper) ListOps(ctx context.Context) ([]models.PendingOp, error) {
	return listOps(ctx, k.db, "")
}

func listOps(ctx context.Context, q queryer, noteID string) ([]models.PendingOp, error) {
	query := "SELECT op_id, note_id, action, payload, timestamp FROM pending_ops"
	var args []interface{}
	if noteID != "" {
		query += " WHERE note_id = ?"
		args = append(args, noteID)
	}
	query += " ORDER BY timestamp, op_id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingOp
	for rows.Next() {
		op, err := scanOp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows encountered an error: %w", err)
	}
	return ops, nil
}

func (k *Keeper) PutOp(ctx context.Context, op models.PendingOp) (models.PendingOp, error) {
	return putOp(ctx, k.db, op)
}

func putOp(ctx context.Context, q queryer, op models.PendingOp) (models.PendingOp, error) {
	if !op.Action.Valid() {
		return op, fmt.Errorf("invalid action %q", op.Action)
	}
	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return op, fmt.Errorf("failed to encode payload: %w", err)
	}

	if op.OpID == 0 {
		res, err := q.ExecContext(ctx,
			"INSERT INTO pending_ops(note_id, action, payload, timestamp) VALUES(?, ?, ?, ?)",
			op.NoteID, string(op.Action), string(payload), op.Timestamp.UnixNano())
		if err != nil {
			return op, fmt.Errorf("failed to insert pending op: %w", err)
		}
		if op.OpID, err = res.LastInsertId(); err != nil {
			return op, fmt.Errorf("failed to read op id: %w", err)
		}
		return op, nil
	}

	_, err = q.ExecContext(ctx,
		"INSERT OR REPLACE INTO pending_ops(op_id, note_id, action, payload, timestamp) VALUES(?, ?, ?, ?, ?)",
		op.OpID, op.NoteID, string(op.Action), string(payload), op.Timestamp.UnixNano())
	if err != nil {
		return op, fmt.Errorf("failed to put pending op %d: %w", op.OpID, err)
	}
	return op, nil
}

func (k *Keeper) DeleteOp(ctx context.Context, opID int64) error {
	if _, err := k.db.ExecContext(ctx, "DELETE FROM pending_ops WHERE op_id = ?", opID); err != nil {
		return fmt.Errorf("failed to delete pending op %d: %w", opID, err)
	}
	return nil
}

func (k *Keeper) ReplaceNotes(ctx context.Context, notes []models.Note) error {
	return k.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM notes"); err != nil {
			return fmt.Errorf("failed to clear notes: %w", err)
		}
		for _, n := range notes {
			if err := putNote(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (k *Keeper) RemapNoteID(ctx context.Context, oldID, newID string) error {
	return k.withTx(ctx, func(tx *sql.Tx) error {
		// A refresh may already have stored the server copy; the local record wins.
		_, err := tx.ExecContext(ctx,
			"DELETE FROM notes WHERE id = ? AND EXISTS (SELECT 1 FROM notes WHERE id = ?)", newID, oldID)
		if err != nil {
			return fmt.Errorf("failed to clear target note %s: %w", newID, err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE notes SET id = ? WHERE id = ?", newID, oldID); err != nil {
			return fmt.Errorf("failed to remap note %s: %w", oldID, err)
		}

		ops, err := listOps(ctx, tx, oldID)
		if err != nil {
			return err
		}
		for _, op := range ops {
			op.NoteID = newID
			op.Payload.ID = newID
			if _, err := putOp(ctx, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (k *Keeper) ClearAll(ctx context.Context) error {
	return k.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM pending_ops"); err != nil {
			return fmt.Errorf("failed to clear pending ops: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM notes"); err != nil {
			return fmt.Errorf("failed to clear notes: %w", err)
		}
		return nil
	})
}

func (k *Keeper) Close() error {
	return k.db.Close()
}

func (k *Keeper) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(s scanner) (models.Note, error) {
	var (
		n         models.Note
		updatedAt string
	)
	if err := s.Scan(&n.ID, &n.Title, &n.Content, &updatedAt, &n.Synced); err != nil {
		return models.Note{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return models.Note{}, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	n.UpdatedAt = t
	return n, nil
}

func scanOp(s scanner) (models.PendingOp, error) {
	var (
		op      models.PendingOp
		action  string
		payload string
		ts      int64
	)
	if err := s.Scan(&op.OpID, &op.NoteID, &action, &payload, &ts); err != nil {
		return models.PendingOp{}, err
	}
	op.Action = models.Action(action)
	op.Timestamp = time.Unix(0, ts).UTC()
	if err := json.Unmarshal([]byte(payload), &op.Payload); err != nil {
		return models.PendingOp{}, fmt.Errorf("invalid payload for op %d: %w", op.OpID, err)
	}
	return op, nil
}

var _ storage.LocalStore = (*Keeper)(nil)
