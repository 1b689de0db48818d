package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/bug-hunting/internal/model"
	"github.com/iliyamo/bug-hunting/internal/testutil"
)

type fixedScorer map[string]float64

func (s fixedScorer) Score(_ context.Context, _ model.Bug, candidates []model.User) ([]Suggestion, error) {
	out := make([]Suggestion, 0, len(candidates))
	for _, u := range candidates {
		out = append(out, Suggestion{UserID: u.ID, DisplayName: u.DisplayName, Score: s[u.DisplayName]})
	}
	return out, nil
}

// leakyScorer ignores the candidate list and ranks everyone.
type leakyScorer struct{ ids []string }

func (s leakyScorer) Score(context.Context, model.Bug, []model.User) ([]Suggestion, error) {
	out := make([]Suggestion, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, Suggestion{UserID: id, Score: 1})
	}
	return out, nil
}

func TestSuggestOrdersByScoreAndSkipsAssignee(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	carol := testutil.CreateUser(t, f.db, "carol")
	dave := testutil.CreateUser(t, f.db, "dave")
	assignee := dave
	if _, err := f.svc.AdminUpdateBug(ctx, f.bugID, AdminBugPatch{AssignedTo: &assignee}); err != nil {
		t.Fatal(err)
	}

	sg := NewSuggester(f.repos.Bugs, f.repos.Users, fixedScorer{"carol": 3, "dave": 9, "hunter": 3, "owner": 1.5}, 0)
	got, err := sg.Suggest(ctx, f.bugID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("suggestions = %+v", got)
	}
	for _, s := range got {
		if s.UserID == dave {
			t.Fatal("assignee suggested")
		}
	}
	// carol and hunter tie at 3 and are ordered by id
	first, second := carol, f.hunter
	if second < first {
		first, second = second, first
	}
	if got[0].UserID != first || got[1].UserID != second || got[2].UserID != f.owner {
		t.Fatalf("order = %+v", got)
	}

	leaky := NewSuggester(f.repos.Bugs, f.repos.Users, leakyScorer{ids: []string{dave, carol}}, 0)
	got, err = leaky.Suggest(ctx, f.bugID)
	if err != nil || len(got) != 1 || got[0].UserID != carol {
		t.Fatalf("leaky scorer result = %+v, %v", got, err)
	}

	var nf *NotFoundError
	if _, err := sg.Suggest(ctx, "missing"); !errors.As(err, &nf) {
		t.Fatalf("missing bug err = %v", err)
	}
}

func TestStatsScorerPrefersExperiencedIdleUsers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// hunter: one solved bug and one active hunt
	s := f.start(t, f.hunter)
	if _, err := f.svc.Award(ctx, s.ID, "both"); err != nil {
		t.Fatal(err)
	}
	idle := testutil.CreateUser(t, f.db, "idle")

	sg := NewSuggester(f.repos.Bugs, f.repos.Users, StatsScorer{Stats: f.repos.Stats}, 0)
	got, err := sg.Suggest(ctx, f.bugID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].UserID != f.hunter {
		t.Fatalf("suggestions = %+v", got)
	}
	for _, s := range got[1:] {
		if s.UserID != f.owner && s.UserID != idle {
			t.Fatalf("unexpected candidate %+v", s)
		}
		if s.Score != 0 {
			t.Fatalf("inactive user score = %v, want 0", s.Score)
		}
	}
}
