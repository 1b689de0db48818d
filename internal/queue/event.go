// Package queue defines message payloads exchanged over the message broker
// and the background consumer that audits awarded points.
package queue

const (
	// PointsAwardedQueue carries one PointsAwardedEvent per committed award.
	PointsAwardedQueue = "points.awarded"
	// SessionStartedQueue carries one SessionStartedEvent per new session.
	SessionStartedQueue = "session.started"
)

// PointsAwardedEvent is published after an award transaction commits.  It
// carries enough information for downstream consumers to log or notify
// without querying the primary database.
type PointsAwardedEvent struct {
	PaymentID        string `json:"payment_id"`
	HuntingSessionID string `json:"hunting_session_id"`
	BugID            string `json:"bug_id"`
	UserID           string `json:"user_id"`
	Mode             string `json:"mode"`
	Points           int    `json:"points"`
	RootCausePct     int    `json:"rootcause_pct"`
	FixPct           int    `json:"fix_pct"`
	AwardedAt        string `json:"awarded_at"`
}

// SessionStartedEvent is published when a user starts hunting a bug.
type SessionStartedEvent struct {
	HuntingSessionID string `json:"hunting_session_id"`
	BugID            string `json:"bug_id"`
	UserID           string `json:"user_id"`
	StartedAt        string `json:"started_at"`
}
