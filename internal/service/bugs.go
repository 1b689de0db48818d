package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/bug-hunting/internal/model"
	"github.com/iliyamo/bug-hunting/internal/repository"
)

// CreateBugInput registers a bug.  CreatedBy is the authenticated operator.
type CreateBugInput struct {
	Size       string
	Details    string
	AssignedTo *string
	CreatedBy  string
}

// CreateBug registers an open bug.
func (s *HuntingService) CreateBug(ctx context.Context, in CreateBugInput) (model.Bug, error) {
	size, err := model.ParseBugSize(in.Size)
	if err != nil {
		return model.Bug{}, &ValidationError{Field: "size", Msg: err.Error()}
	}
	details := strings.TrimSpace(in.Details)
	if details == "" {
		return model.Bug{}, invalid("details", "must not be empty")
	}
	assignee := trimmedOrNil(in.AssignedTo)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for field, id := range map[string]*string{"created_by": &in.CreatedBy, "assigned_to": assignee} {
		if id == nil {
			continue
		}
		if _, err := s.repos.Users.GetByID(ctx, *id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.Bug{}, invalid(field, "user %s does not exist", *id)
			}
			return model.Bug{}, storageErr("load user", err)
		}
	}
	b := model.Bug{Size: size, Status: model.StatusOpen, AssignedTo: assignee, CreatedBy: in.CreatedBy, Details: details}
	now := s.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if err := s.repos.Bugs.Create(ctx, &b); err != nil {
		return model.Bug{}, storageErr("insert bug", err)
	}
	s.log.Info().Str("bug_id", b.ID).Str("size", string(b.Size)).Msg("bug registered")
	return b, nil
}

// GetBug returns one bug.
func (s *HuntingService) GetBug(ctx context.Context, id string) (model.Bug, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	b, err := s.repos.Bugs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Bug{}, &NotFoundError{Entity: "bug", ID: id}
	}
	if err != nil {
		return model.Bug{}, storageErr("load bug", err)
	}
	return b, nil
}

// ListBugs returns bugs newest first.  rawStatus narrows the list to one
// status; empty means every bug.
func (s *HuntingService) ListBugs(ctx context.Context, rawStatus string, limit int) ([]model.Bug, error) {
	var f repository.BugFilter
	if strings.TrimSpace(rawStatus) != "" {
		st, err := model.ParseBugStatus(rawStatus)
		if err != nil {
			return nil, &ValidationError{Field: "status", Msg: err.Error()}
		}
		f.Status = st
	}
	f.Limit = limit
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.repos.Bugs.List(ctx, f)
	if err != nil {
		return nil, storageErr("list bugs", err)
	}
	return out, nil
}

// TagUsers replaces the users tagged on bugID with userIDs.  Duplicates
// are collapsed; every user must exist.  An empty list clears the tags.
func (s *HuntingService) TagUsers(ctx context.Context, bugID, taggedBy string, userIDs []string) ([]model.BugTag, error) {
	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]bool, len(userIDs))
	for _, raw := range userIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, invalid("user_ids", "must not contain empty ids")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []model.BugTag
	err := s.inTx(ctx, "tag users", func(tx *sql.Tx) error {
		if _, err := s.loadBugTx(ctx, tx, bugID); err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.requireUser(ctx, tx, "user_ids", id); err != nil {
				return err
			}
		}
		var err error
		out, err = s.repos.Bugs.ReplaceTagsTx(ctx, tx, bugID, taggedBy, ids, s.now().UTC())
		if err != nil {
			return storageErr("replace bug tags", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("bug_id", bugID).Int("users", len(out)).Msg("bug users tagged")
	return out, nil
}

// BugTags returns the users tagged on bugID.
func (s *HuntingService) BugTags(ctx context.Context, bugID string) ([]model.BugTag, error) {
	if _, err := s.GetBug(ctx, bugID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.repos.Bugs.ListTags(ctx, bugID)
	if err != nil {
		return nil, storageErr("list bug tags", err)
	}
	return out, nil
}

// AdvanceBugStatus moves a bug one step forward along
// open → in_progress → resolved → closed.  Any other target is a
// ValidationError; losing a race against another writer is a
// ConflictError.
func (s *HuntingService) AdvanceBugStatus(ctx context.Context, bugID, rawTo string) (model.Bug, error) {
	to, err := model.ParseBugStatus(rawTo)
	if err != nil {
		return model.Bug{}, &ValidationError{Field: "status", Msg: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out model.Bug
	err = s.inTx(ctx, "advance bug status", func(tx *sql.Tx) error {
		cur, err := s.loadBugTx(ctx, tx, bugID)
		if err != nil {
			return err
		}
		if !cur.Status.CanTransitionTo(to) {
			return invalid("status", "cannot move bug from %s to %s", cur.Status, to)
		}
		ok, err := s.repos.Bugs.TransitionTx(ctx, tx, bugID, cur.Status, to, s.now().UTC())
		if err != nil {
			return storageErr("transition bug", err)
		}
		if !ok {
			return &ConflictError{Msg: "bug status changed concurrently"}
		}
		out, err = s.loadBugTx(ctx, tx, bugID)
		return err
	})
	if err != nil {
		return model.Bug{}, err
	}
	s.log.Info().Str("bug_id", bugID).Str("status", string(to)).Msg("bug status advanced")
	return out, nil
}

// AdminBugPatch is an operator override.  Nil fields are unchanged; an
// empty AssignedTo clears the assignee.
type AdminBugPatch struct {
	Status     *string
	Size       *string
	AssignedTo *string
	Details    *string
}

// AdminUpdateBug overwrites bug fields without lifecycle checks.  The size
// is frozen once any session of the bug has been awarded, since awards
// keep the point value that was current when they were paid.
func (s *HuntingService) AdminUpdateBug(ctx context.Context, bugID string, p AdminBugPatch) (model.Bug, error) {
	var patch repository.BugPatch
	if p.Status != nil {
		st, err := model.ParseBugStatus(*p.Status)
		if err != nil {
			return model.Bug{}, &ValidationError{Field: "status", Msg: err.Error()}
		}
		patch.Status = &st
	}
	if p.Size != nil {
		sz, err := model.ParseBugSize(*p.Size)
		if err != nil {
			return model.Bug{}, &ValidationError{Field: "size", Msg: err.Error()}
		}
		patch.Size = &sz
	}
	if p.Details != nil {
		d := strings.TrimSpace(*p.Details)
		if d == "" {
			return model.Bug{}, invalid("details", "must not be empty")
		}
		patch.Details = &d
	}
	if p.AssignedTo != nil {
		if a := trimmedOrNil(p.AssignedTo); a != nil {
			patch.AssignedTo = a
		} else {
			patch.ClearAssignee = true
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out model.Bug
	err := s.inTx(ctx, "update bug", func(tx *sql.Tx) error {
		cur, err := s.loadBugTx(ctx, tx, bugID)
		if err != nil {
			return err
		}
		if patch.Size != nil && *patch.Size != cur.Size {
			awarded, err := s.repos.Sessions.HasAwardedForBugTx(ctx, tx, bugID)
			if err != nil {
				return storageErr("check awarded sessions", err)
			}
			if awarded {
				return &ConflictError{Msg: "bug size cannot change after points were awarded"}
			}
		}
		if patch.AssignedTo != nil {
			if err := s.requireUser(ctx, tx, "assigned_to", *patch.AssignedTo); err != nil {
				return err
			}
		}
		out, err = s.repos.Bugs.UpdateTx(ctx, tx, bugID, patch, s.now().UTC())
		if err != nil {
			return storageErr("update bug", err)
		}
		return nil
	})
	if err != nil {
		return model.Bug{}, err
	}
	s.log.Info().Str("bug_id", bugID).Msg("bug updated by operator")
	return out, nil
}

func (s *HuntingService) loadBugTx(ctx context.Context, tx *sql.Tx, id string) (model.Bug, error) {
	b, err := s.repos.Bugs.GetByIDTx(ctx, tx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Bug{}, &NotFoundError{Entity: "bug", ID: id}
	}
	if err != nil {
		return model.Bug{}, storageErr("load bug", err)
	}
	return b, nil
}
