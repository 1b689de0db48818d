package model

import "time"

// BugTag marks a user as tagged on a bug, usually one picked from the
// candidate suggestions.  A bug's tags are replaced as a whole.
type BugTag struct {
	BugID    string    `json:"bug_id"`    // bug_tag_users.bug_id
	UserID   string    `json:"user_id"`   // bug_tag_users.user_id
	TaggedBy string    `json:"tagged_by"` // bug_tag_users.tagged_by
	TaggedAt time.Time `json:"tagged_at"` // bug_tag_users.tagged_at
}
