package model

import "time"

// UserStats holds denormalized per-user counters.  PointsEarned must
// always equal the sum of the user's ledger points.
type UserStats struct {
	UserID         string    `json:"user_id"`         // user_stats.user_id
	BugsSolved     int       `json:"bugs_solved"`     // user_stats.bugs_solved
	BugsIdentified int       `json:"bugs_identified"` // user_stats.bugs_identified
	ActiveBugs     int       `json:"active_bugs"`     // user_stats.active_bugs
	PointsEarned   int       `json:"points_earned"`   // user_stats.points_earned
	LastUpdated    time.Time `json:"last_updated"`    // user_stats.last_updated
}
