package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/llehouerou/reel/internal/db"
)

// Session is the persisted playback position for the last opened media,
// restored on the next startup.
type Session struct {
	URI       string
	Position  time.Duration
	Speed     float64
	Status    string
	UpdatedAt time.Time
}

func getSession(db *sql.DB) (*Session, error) {
	var s Session
	var positionMs, updatedAt int64
	var speed sql.NullFloat64
	var status sql.NullString

	row := db.QueryRow(`
		SELECT uri, position_ms, speed, status, updated_at
		FROM player_session
		WHERE id = 1
	`)
	err := row.Scan(&s.URI, &positionMs, &speed, &status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.Position = time.Duration(positionMs) * time.Millisecond
	s.Speed = dbutil.NullFloat64Value(speed)
	if s.Speed == 0 {
		s.Speed = 1.0
	}
	s.Status = dbutil.NullStringValue(status)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

func saveSession(sqlDB *sql.DB, s Session) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO player_session (id, uri, position_ms, speed, status, updated_at)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				uri = excluded.uri,
				position_ms = excluded.position_ms,
				speed = excluded.speed,
				status = excluded.status,
				updated_at = excluded.updated_at
		`, s.URI, s.Position.Milliseconds(), s.Speed, s.Status, time.Now().Unix())
		return err
	})
}

func clearSession(sqlDB *sql.DB) error {
	_, err := sqlDB.Exec(`DELETE FROM player_session WHERE id = 1`)
	return err
}
