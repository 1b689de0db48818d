package model

import (
	"fmt"
	"strings"
	"time"
)

// BugSize is the size classification of a bug.  Sizes are ordered from
// smallest to largest and each maps to a base point value in the
// point_scale table.
type BugSize string

const (
	SizeS   BugSize = "S"
	SizeM   BugSize = "M"
	SizeL   BugSize = "L"
	SizeXL  BugSize = "XL"
	Size2XL BugSize = "2XL"
	Size3XL BugSize = "3XL"
	Size4XL BugSize = "4XL"
	Size5XL BugSize = "5XL"
)

// Sizes lists every size in ascending order.
var Sizes = []BugSize{SizeS, SizeM, SizeL, SizeXL, Size2XL, Size3XL, Size4XL, Size5XL}

// ParseBugSize normalizes s (case-insensitive) into a BugSize.
func ParseBugSize(s string) (BugSize, error) {
	v := BugSize(strings.ToUpper(strings.TrimSpace(s)))
	if v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("invalid bug size %q", s)
}

// Valid reports whether z is one of the eight known sizes.
func (z BugSize) Valid() bool { return z.Rank() >= 0 }

// Rank returns the zero-based position of z in Sizes, or -1.
func (z BugSize) Rank() int {
	for i, s := range Sizes {
		if s == z {
			return i
		}
	}
	return -1
}

// BugStatus is the lifecycle state of a bug.
type BugStatus string

const (
	StatusOpen       BugStatus = "open"
	StatusInProgress BugStatus = "in_progress"
	StatusResolved   BugStatus = "resolved"
	StatusClosed     BugStatus = "closed"
)

// bugTransitions holds the forward edges of the bug lifecycle.  There is
// no edge that moves a bug backwards.
var bugTransitions = map[BugStatus]BugStatus{
	StatusOpen:       StatusInProgress,
	StatusInProgress: StatusResolved,
	StatusResolved:   StatusClosed,
}

// ParseBugStatus validates s as a BugStatus.
func ParseBugStatus(s string) (BugStatus, error) {
	v := BugStatus(strings.ToLower(strings.TrimSpace(s)))
	if v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("invalid bug status %q", s)
}

// Valid reports whether st is a known status.
func (st BugStatus) Valid() bool {
	switch st {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from st to next follows a
// forward edge of the lifecycle graph.
func (st BugStatus) CanTransitionTo(next BugStatus) bool {
	to, ok := bugTransitions[st]
	return ok && to == next
}

// Bug is a trackable unit of work that users can hunt for points.  It
// corresponds to a row in the `bugs` table.
//
// Fields:
//  ID         – uuid primary key.
//  Size       – size classification, resolved to base points via point_scale.
//  Status     – lifecycle state (open, in_progress, resolved, closed).
//  AssignedTo – optional user currently responsible for the bug.
//  CreatedBy  – user that registered the bug.
//  Details    – free text description.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Bug struct {
	ID         string    `json:"id"`          // bugs.id
	Size       BugSize   `json:"size"`        // bugs.size
	Status     BugStatus `json:"status"`      // bugs.status
	AssignedTo *string   `json:"assigned_to"` // bugs.assigned_to (nullable)
	CreatedBy  string    `json:"created_by"`  // bugs.created_by
	Details    string    `json:"details"`     // bugs.details
	CreatedAt  time.Time `json:"created_at"`  // bugs.created_at
	UpdatedAt  time.Time `json:"updated_at"`  // bugs.updated_at
}
