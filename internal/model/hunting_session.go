package model

import (
	"encoding/json"
	"time"
)

// SessionState names the two states of a hunting session.
type SessionState string

const (
	SessionStarted SessionState = "started"
	SessionAwarded SessionState = "awarded"
)

// SessionAward is present on a session once a reviewer has awarded it.
// Points and time are set together and never change afterwards.
type SessionAward struct {
	Points int
	At     time.Time
}

// HuntingSession is a user's claim against a bug.  A session starts in
// the started state and moves to awarded exactly once.  It corresponds to
// a row in the `hunting_sessions` table; rows are never deleted.
//
// Fields:
//  ID                 – uuid primary key.
//  BugID              – bug being hunted.
//  UserID             – hunter.
//  StartedAt          – when the hunt began.
//  ReproText          – reproduction notes, never empty.
//  PRLink             – optional link to the fix.
//  AssignedModuleLead – optional reviewer.
//  Award              – nil while started, set once awarded.
type HuntingSession struct {
	ID                 string
	BugID              string
	UserID             string
	StartedAt          time.Time
	ReproText          string
	PRLink             *string
	AssignedModuleLead *string
	Award              *SessionAward
}

// State returns the lifecycle state derived from Award.
func (s HuntingSession) State() SessionState {
	if s.Award != nil {
		return SessionAwarded
	}
	return SessionStarted
}

// AcceptedByLead is true exactly when the session has been awarded.
func (s HuntingSession) AcceptedByLead() bool { return s.Award != nil }

// MarshalJSON flattens the award into the nullable columns clients expect.
func (s HuntingSession) MarshalJSON() ([]byte, error) {
	out := struct {
		ID                 string       `json:"id"`
		BugID              string       `json:"bug_id"`
		UserID             string       `json:"user_id"`
		StartedAt          time.Time    `json:"started_at"`
		State              SessionState `json:"state"`
		ReproText          string       `json:"repro_text"`
		PRLink             *string      `json:"pr_link"`
		AssignedModuleLead *string      `json:"assigned_module_lead"`
		AcceptedByLead     bool         `json:"accepted_by_lead"`
		PointsAwarded      *int         `json:"points_awarded"`
		AwardedAt          *time.Time   `json:"awarded_at"`
	}{
		ID:                 s.ID,
		BugID:              s.BugID,
		UserID:             s.UserID,
		StartedAt:          s.StartedAt,
		State:              s.State(),
		ReproText:          s.ReproText,
		PRLink:             s.PRLink,
		AssignedModuleLead: s.AssignedModuleLead,
		AcceptedByLead:     s.AcceptedByLead(),
	}
	if s.Award != nil {
		pts, at := s.Award.Points, s.Award.At
		out.PointsAwarded = &pts
		out.AwardedAt = &at
	}
	return json.Marshal(out)
}
