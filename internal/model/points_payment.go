package model

import (
	"fmt"
	"time"
)

// AwardMode selects how a session's base points are split between
// root-cause and fix credit.
type AwardMode string

const (
	ModeRootCause AwardMode = "rootcause"
	ModeFix       AwardMode = "fix"
	ModeBoth      AwardMode = "both"
)

// ParseAwardMode validates s as an AwardMode.
func ParseAwardMode(s string) (AwardMode, error) {
	switch m := AwardMode(s); m {
	case ModeRootCause, ModeFix, ModeBoth:
		return m, nil
	}
	return "", fmt.Errorf("invalid award mode %q (want rootcause, fix or both)", s)
}

// Breakdown records the percentage split used for an award.
type Breakdown struct {
	RootCausePct int `json:"rootcause_pct"`
	FixPct       int `json:"fix_pct"`
}

// PointsPayment is an immutable ledger entry written once per awarded
// session.  It corresponds to a row in the `points_payments` table.
type PointsPayment struct {
	ID               string    `json:"id"`                 // points_payments.id
	HuntingSessionID string    `json:"hunting_session_id"` // points_payments.hunting_session_id (unique)
	UserID           string    `json:"user_id"`            // points_payments.user_id
	BugID            string    `json:"bug_id"`             // points_payments.bug_id
	Points           int       `json:"points"`             // points_payments.points
	Breakdown        Breakdown `json:"breakdown"`          // points_payments.breakdown (JSON)
	Reason           string    `json:"reason"`             // points_payments.reason
	CreatedAt        time.Time `json:"created_at"`         // points_payments.created_at
}
