package entities

import "time"

// DrawRecord is one persisted draw within a session's ordered history
type DrawRecord struct {
	ID        int64     `db:"id"`
	SessionID string    `db:"session_id"`
	Number    int       `db:"number"`
	Sequence  int       `db:"sequence"` // 1-based position in the session's history
	DrawnAt   time.Time `db:"drawn_at"`
}
