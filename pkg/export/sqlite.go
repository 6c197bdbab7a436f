package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"spindlefit/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	frame_count INTEGER NOT NULL,
	exported_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS frames (
	session_id     TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	frame_index    INTEGER NOT NULL,
	status         TEXT NOT NULL,
	provenance     TEXT,
	excluded       INTEGER NOT NULL DEFAULT 0,
	failure_reason TEXT,
	pole_a_x       REAL,
	pole_a_y       REAL,
	pole_b_x       REAL,
	pole_b_y       REAL,
	quality        REAL,
	length         REAL,
	angle          REAL,
	midpoint_x     REAL,
	midpoint_y     REAL,
	arc_length     REAL,
	area_metric    REAL,
	max_curvature  REAL,
	avg_curvature  REAL,
	PRIMARY KEY (session_id, frame_index)
);
`

// SQLiteExporter stores session results in a SQLite database.
type SQLiteExporter struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the results database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteExporter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteExporter{db: db}, nil
}

// Close closes the database.
func (e *SQLiteExporter) Close() error {
	return e.db.Close()
}

// SaveSession replaces the stored results of a session with records.
func (e *SQLiteExporter) SaveSession(ctx context.Context, sessionID uuid.UUID, source string, records []models.FrameRecord) error {
	// Start transaction
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := sessionID.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear frames: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, source, frame_count, exported_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET source = excluded.source,
			frame_count = excluded.frame_count, exported_at = excluded.exported_at`,
		id, source, len(records), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frames (session_id, frame_index, status, provenance, excluded, failure_reason,
			pole_a_x, pole_a_y, pole_b_x, pole_b_y, quality, length, angle, midpoint_x, midpoint_y,
			arc_length, area_metric, max_curvature, avg_curvature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, frameRow(id, rec)...); err != nil {
			return fmt.Errorf("failed to insert frame %d: %w", rec.Index, err)
		}
	}

	// Commit transaction
	return tx.Commit()
}

// frameRow flattens a record into the frames columns; unresolved values are NULL
func frameRow(sessionID string, rec models.FrameRecord) []interface{} {
	row := []interface{}{sessionID, rec.Index, rec.Status.String(), nil, rec.Excluded, nullString(rec.FailureReason)}

	est := rec.Estimate
	if est == nil {
		for i := 0; i < 13; i++ {
			row = append(row, nil)
		}
		return row
	}

	m := models.Measure(*est)
	row[3] = est.Provenance.String()
	row = append(row,
		est.PoleA.X, est.PoleA.Y, est.PoleB.X, est.PoleB.Y,
		est.Quality, m.Length, m.Angle, m.Midpoint.X, m.Midpoint.Y)

	if s := est.Shape; s != nil {
		row = append(row, s.ArcLength, s.AreaMetric, s.MaxCurvature, s.AvgCurvature)
	} else {
		row = append(row, nil, nil, nil, nil)
	}
	return row
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Summary is one stored session with its per-status counts.
type Summary struct {
	ID         uuid.UUID
	Source     string
	FrameCount int
	ByStatus   map[string]int
	Excluded   int
}

// SessionSummary reads back the stored counts of a session.
func (e *SQLiteExporter) SessionSummary(ctx context.Context, sessionID uuid.UUID) (*Summary, error) {
	s := &Summary{ID: sessionID, ByStatus: make(map[string]int)}

	err := e.db.QueryRowContext(ctx,
		`SELECT source, frame_count FROM sessions WHERE id = ?`, sessionID.String()).
		Scan(&s.Source, &s.FrameCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT status, COUNT(*), SUM(excluded) FROM frames
		WHERE session_id = ? GROUP BY status ORDER BY status`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count, excluded int
		if err := rows.Scan(&status, &count, &excluded); err != nil {
			return nil, fmt.Errorf("failed to scan frame counts: %w", err)
		}
		s.ByStatus[status] = count
		s.Excluded += excluded
	}
	return s, rows.Err()
}
