package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
)

// PredictionEntry is one /predict outcome.
type PredictionEntry struct {
	RequestID  string    `json:"request_id"`
	Input      string    `json:"input"`
	Status     string    `json:"status"`
	Prediction string    `json:"prediction,omitempty"`
	Message    string    `json:"message,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PredictionLog appends prediction outcomes to a SQLite database.
type PredictionLog struct {
	db *sql.DB
}

// OpenPredictionLog initializes the SQLite database
func OpenPredictionLog(path string) (*PredictionLog, error) {
	if path == "" {
		return nil, errors.New("prediction log path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT NOT NULL,
        input TEXT,
        status VARCHAR(10) NOT NULL,
        prediction TEXT,
        message TEXT,
        error_kind VARCHAR(20),
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &PredictionLog{db: database}, nil
}

// Save appends one entry
func (l *PredictionLog) Save(ctx context.Context, entry PredictionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO predictions (request_id, input, status, prediction, message, error_kind, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Input, entry.Status, entry.Prediction, entry.Message, entry.ErrorKind, entry.CreatedAt)
	return err
}

// Recent returns the newest entries first
func (l *PredictionLog) Recent(ctx context.Context, limit int) ([]PredictionEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
        SELECT request_id, input, status, prediction, message, error_kind, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]PredictionEntry, 0)
	for rows.Next() {
		var e PredictionEntry
		var input, prediction, message, errorKind sql.NullString
		if err := rows.Scan(&e.RequestID, &input, &e.Status, &prediction, &message, &errorKind, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Input = input.String
		e.Prediction = prediction.String
		e.Message = message.String
		e.ErrorKind = errorKind.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close checkpoints the WAL and closes the database
func (l *PredictionLog) Close() error {
	_, err := l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return multierr.Append(err, l.db.Close())
}
