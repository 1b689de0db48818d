package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/iliyamo/bug-hunting/internal/model"
	"github.com/iliyamo/bug-hunting/internal/repository"
)

// Suggestion is one ranked candidate for a bug.
type Suggestion struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Scorer ranks candidate users for a bug.  Implementations may return
// candidates in any order and may drop some; scores have no fixed range.
type Scorer interface {
	Score(ctx context.Context, bug model.Bug, candidates []model.User) ([]Suggestion, error)
}

// Suggester produces the candidate list for a bug.  It is read-only and
// recomputes on every call.
type Suggester struct {
	bugs    *repository.BugRepo
	users   *repository.UserRepo
	scorer  Scorer
	timeout time.Duration
}

// NewSuggester wires a Suggester.  A zero timeout means DefaultTimeout.
func NewSuggester(bugs *repository.BugRepo, users *repository.UserRepo, scorer Scorer, timeout time.Duration) *Suggester {
	if bugs == nil || users == nil || scorer == nil {
		panic("nil dependency passed to NewSuggester")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Suggester{bugs: bugs, users: users, scorer: scorer, timeout: timeout}
}

// Suggest returns candidates for bugID, highest score first with ties
// broken by user id.  The bug's assignee is never included.
func (s *Suggester) Suggest(ctx context.Context, bugID string) ([]Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bug, err := s.bugs.GetByID(ctx, bugID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Entity: "bug", ID: bugID}
	}
	if err != nil {
		return nil, storageErr("load bug", err)
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	candidates := make([]model.User, 0, len(users))
	for _, u := range users {
		if isAssignee(bug, u.ID) {
			continue
		}
		candidates = append(candidates, u)
	}
	scored, err := s.scorer.Score(ctx, bug, candidates)
	if err != nil {
		return nil, storageErr("score candidates", err)
	}

	out := make([]Suggestion, 0, len(scored))
	for _, sg := range scored {
		if isAssignee(bug, sg.UserID) {
			continue
		}
		out = append(out, sg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func isAssignee(b model.Bug, userID string) bool {
	return b.AssignedTo != nil && *b.AssignedTo == userID
}

// StatsScorer is the built-in ranking: solved bugs and earned points raise
// a user's score, open hunts lower it, and experience weighs more on
// larger bugs.  It is a stand-in until a dedicated recommender exists.
type StatsScorer struct {
	Stats *repository.StatsRepo
}

func (sc StatsScorer) Score(ctx context.Context, bug model.Bug, candidates []model.User) ([]Suggestion, error) {
	all, err := sc.Stats.List(ctx)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]model.UserStats, len(all))
	for _, st := range all {
		byUser[st.UserID] = st
	}
	weight := 1 + 0.25*float64(max(bug.Size.Rank(), 0))
	out := make([]Suggestion, 0, len(candidates))
	for _, u := range candidates {
		st := byUser[u.ID]
		experience := float64(st.BugsSolved) + float64(st.PointsEarned)/1000
		load := 0.5 * float64(st.ActiveBugs)
		out = append(out, Suggestion{UserID: u.ID, DisplayName: u.DisplayName, Score: experience*weight - load})
	}
	return out, nil
}
