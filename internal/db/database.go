package db

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Database struct {
	db  *sql.DB
	log *slog.Logger
}

type Room struct {
	RoomID    string
	Code      string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(dbPath string, log *slog.Logger) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Info("db.open", "path", dbPath)
	return &Database{db: db, log: log}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'python',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// CreateRoom inserts a room with empty code. Inserting an existing id is a
// no-op.
func (d *Database) CreateRoom(ctx context.Context, roomID, language string) error {
	if language == "" {
		language = "python"
	}
	_, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO rooms (room_id, language) VALUES (?, ?)",
		roomID, language,
	)
	return err
}

// GetRoom fetches a room by id, returning nil without error when absent.
func (d *Database) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT room_id, code, language, created_at, updated_at FROM rooms WHERE room_id = ?",
		roomID,
	)

	var r Room
	err := row.Scan(&r.RoomID, &r.Code, &r.Language, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoomCode returns the stored code for a room, empty string when the room
// is unknown.
func (d *Database) GetRoomCode(ctx context.Context, roomID string) (string, error) {
	var code string
	err := d.db.QueryRowContext(ctx,
		"SELECT code FROM rooms WHERE room_id = ?",
		roomID,
	).Scan(&code)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

// SaveRoomCode upserts the code for a room and bumps its updated_at.
func (d *Database) SaveRoomCode(ctx context.Context, roomID, code string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, code, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET
			code = excluded.code,
			updated_at = CURRENT_TIMESTAMP
	`, roomID, code)
	return err
}

// CountRooms returns the number of rooms ever created.
func (d *Database) CountRooms(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&count)
	return count, err
}
