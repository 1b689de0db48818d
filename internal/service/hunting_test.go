package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/database"
	"github.com/iliyamo/bug-hunting/internal/model"
	"github.com/iliyamo/bug-hunting/internal/queue"
	"github.com/iliyamo/bug-hunting/internal/repository"
	"github.com/iliyamo/bug-hunting/internal/testutil"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

type fixture struct {
	db     *sql.DB
	repos  Repos
	svc    *HuntingService
	pub    *recordingPublisher
	owner  string
	hunter string
	bugID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenSQLite(t)
	repos := Repos{
		Bugs:     repository.NewBugRepo(db),
		Sessions: repository.NewHuntingSessionRepo(db),
		Users:    repository.NewUserRepo(db),
		Scale:    repository.NewPointScaleRepo(db),
		Payments: repository.NewPointsPaymentRepo(db),
		Stats:    repository.NewStatsRepo(db, database.SQLite),
	}
	pub := &recordingPublisher{}
	svc := NewHuntingService(db, repos, zerolog.Nop(),
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(pub),
		WithTimeout(10*time.Second))
	owner := testutil.CreateUser(t, db, "owner")
	return &fixture{
		db:     db,
		repos:  repos,
		svc:    svc,
		pub:    pub,
		owner:  owner,
		hunter: testutil.CreateUser(t, db, "hunter"),
		bugID:  testutil.CreateBug(t, db, owner, "M"),
	}
}

func (f *fixture) start(t *testing.T, userID string) model.HuntingSession {
	t.Helper()
	s, err := f.svc.StartSession(context.Background(), StartSessionInput{
		BugID: f.bugID, UserID: userID, ReproText: "open the page twice",
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return s
}

func (f *fixture) stats(t *testing.T, userID string) model.UserStats {
	t.Helper()
	st, err := f.svc.UserStats(context.Background(), userID)
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	return st
}

type recordingPublisher struct {
	mu      sync.Mutex
	awarded []queue.PointsAwardedEvent
	started []queue.SessionStartedEvent
}

func (p *recordingPublisher) PointsAwarded(_ context.Context, ev queue.PointsAwardedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.awarded = append(p.awarded, ev)
	return nil
}

func (p *recordingPublisher) SessionStarted(_ context.Context, ev queue.SessionStartedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, ev)
	return nil
}

func TestStartSessionMovesOpenBugToInProgressOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	s1 := f.start(t, f.hunter)
	if s1.State() != model.SessionStarted || s1.AcceptedByLead() || !s1.StartedAt.Equal(fixedNow) {
		t.Fatalf("new session = %+v", s1)
	}
	bug, _ := f.svc.GetBug(ctx, f.bugID)
	if bug.Status != model.StatusInProgress {
		t.Fatalf("status after first session = %s", bug.Status)
	}

	second := testutil.CreateUser(t, f.db, "second")
	f.start(t, second)
	bug, _ = f.svc.GetBug(ctx, f.bugID)
	if bug.Status != model.StatusInProgress {
		t.Fatalf("status after second session = %s", bug.Status)
	}

	for _, u := range []string{f.hunter, second} {
		st := f.stats(t, u)
		if st.BugsIdentified != 1 || st.ActiveBugs != 1 || st.BugsSolved != 0 || st.PointsEarned != 0 {
			t.Fatalf("stats(%s) = %+v", u, st)
		}
	}
	if len(f.pub.started) != 2 {
		t.Fatalf("session events = %d, want 2", len(f.pub.started))
	}
}

func TestStartSessionLeavesResolvedBugAlone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.start(t, f.hunter)
	if _, err := f.svc.AdvanceBugStatus(ctx, f.bugID, "resolved"); err != nil {
		t.Fatal(err)
	}
	f.start(t, testutil.CreateUser(t, f.db, "late"))
	bug, _ := f.svc.GetBug(ctx, f.bugID)
	if bug.Status != model.StatusResolved {
		t.Fatalf("status = %s, want resolved", bug.Status)
	}
}

func TestStartSessionValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	bad := "ftp://example.com/pr/1"
	rel := "/pr/1"
	ghost := "no-such-user"
	cases := map[string]StartSessionInput{
		"empty repro":   {BugID: f.bugID, UserID: f.hunter, ReproText: "   "},
		"unknown bug":   {BugID: "missing", UserID: f.hunter, ReproText: "x"},
		"unknown user":  {BugID: f.bugID, UserID: ghost, ReproText: "x"},
		"unknown lead":  {BugID: f.bugID, UserID: f.hunter, ReproText: "x", LeadID: &ghost},
		"ftp pr link":   {BugID: f.bugID, UserID: f.hunter, ReproText: "x", PRLink: &bad},
		"relative link": {BugID: f.bugID, UserID: f.hunter, ReproText: "x", PRLink: &rel},
		"missing bug":   {UserID: f.hunter, ReproText: "x"},
	}
	for name, in := range cases {
		_, err := f.svc.StartSession(context.Background(), in)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: err = %v, want ValidationError", name, err)
		}
	}
	// nothing was written
	sessions, _ := f.svc.ListSessions(context.Background(), repository.SessionFilter{BugID: f.bugID})
	if len(sessions) != 0 {
		t.Fatalf("sessions = %d, want 0", len(sessions))
	}
	bug, _ := f.svc.GetBug(context.Background(), f.bugID)
	if bug.Status != model.StatusOpen {
		t.Fatalf("status = %s, want open", bug.Status)
	}
}

func TestStartSessionKeepsOptionalFields(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	link := " https://git.example.com/pr/42 "
	lead := f.owner
	s, err := f.svc.StartSession(context.Background(), StartSessionInput{
		BugID: f.bugID, UserID: f.hunter, ReproText: "x", PRLink: &link, LeadID: &lead,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PRLink == nil || *got.PRLink != "https://git.example.com/pr/42" {
		t.Fatalf("pr link = %v", got.PRLink)
	}
	if got.AssignedModuleLead == nil || *got.AssignedModuleLead != f.owner {
		t.Fatalf("lead = %v", got.AssignedModuleLead)
	}
}

func TestAwardBothPaysFullBase(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.hunter)

	res, err := f.svc.Award(ctx, s.ID, "both")
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	want := AwardResult{PointsAwarded: 200, Breakdown: model.Breakdown{RootCausePct: 10, FixPct: 90}}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	st := f.stats(t, f.hunter)
	if st.BugsSolved != 1 || st.PointsEarned != 200 {
		t.Fatalf("stats = %+v", st)
	}
	got, _ := f.svc.GetSession(ctx, s.ID)
	if got.Award == nil || got.Award.Points != 200 || !got.Award.At.Equal(fixedNow) || !got.AcceptedByLead() {
		t.Fatalf("session = %+v", got)
	}
	ledger, _ := f.svc.UserPayments(ctx, f.hunter)
	if len(ledger) != 1 || ledger[0].Points != 200 || ledger[0].HuntingSessionID != s.ID || ledger[0].Reason == "" {
		t.Fatalf("ledger = %+v", ledger)
	}
	if len(f.pub.awarded) != 1 || f.pub.awarded[0].Points != 200 || f.pub.awarded[0].Mode != "both" {
		t.Fatalf("award events = %+v", f.pub.awarded)
	}
}

func TestAwardRootCauseThenFixIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.hunter)

	res, err := f.svc.Award(ctx, s.ID, "rootcause")
	if err != nil {
		t.Fatal(err)
	}
	if res.PointsAwarded != 20 || res.Breakdown != (model.Breakdown{RootCausePct: 100}) {
		t.Fatalf("result = %+v", res)
	}
	_, err = f.svc.Award(ctx, s.ID, "fix")
	var aa *AlreadyAwardedError
	if !errors.As(err, &aa) {
		t.Fatalf("second award err = %v, want AlreadyAwardedError", err)
	}
	st := f.stats(t, f.hunter)
	if st.PointsEarned != 20 || st.BugsSolved != 1 {
		t.Fatalf("stats = %+v", st)
	}
	got, _ := f.svc.GetSession(ctx, s.ID)
	if got.Award.Points != 20 {
		t.Fatalf("points changed to %d", got.Award.Points)
	}
}

func TestAwardErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.hunter)

	var ve *ValidationError
	if _, err := f.svc.Award(ctx, s.ID, "half"); !errors.As(err, &ve) {
		t.Fatalf("unknown mode err = %v", err)
	}
	var nf *NotFoundError
	if _, err := f.svc.Award(ctx, "missing", "both"); !errors.As(err, &nf) {
		t.Fatalf("unknown session err = %v", err)
	}

	// a size with no scale entry is a configuration error
	if _, err := f.db.Exec(`DELETE FROM point_scale WHERE size = 'M'`); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Award(ctx, s.ID, "both"); !errors.As(err, &nf) || nf.Entity != "point scale size" {
		t.Fatalf("missing scale err = %v", err)
	}
	got, _ := f.svc.GetSession(ctx, s.ID)
	if got.State() != model.SessionStarted {
		t.Fatalf("session state = %s", got.State())
	}
}

func TestConcurrentAwardsSucceedExactlyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.start(t, f.hunter)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
		other     []error
	)
	modes := []string{"both", "rootcause", "fix"}
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(mode string) {
			defer wg.Done()
			_, err := f.svc.Award(context.Background(), s.ID, mode)
			mu.Lock()
			defer mu.Unlock()
			var aa *AlreadyAwardedError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &aa):
				rejected++
			default:
				other = append(other, err)
			}
		}(modes[i%len(modes)])
	}
	wg.Wait()

	if successes != 1 || rejected != callers-1 || len(other) != 0 {
		t.Fatalf("successes=%d rejected=%d other=%v", successes, rejected, other)
	}
	ledger, err := f.repos.Payments.ListBySession(context.Background(), s.ID)
	if err != nil || len(ledger) != 1 {
		t.Fatalf("ledger rows = %d, %v", len(ledger), err)
	}
	st := f.stats(t, f.hunter)
	if st.BugsSolved != 1 || st.PointsEarned != ledger[0].Points {
		t.Fatalf("stats = %+v, ledger points = %d", st, ledger[0].Points)
	}
}

func TestAwardFailureLeavesNoPartialState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, f.hunter)
	before := f.stats(t, f.hunter)

	testutil.FailLedgerInserts(t, f.db)
	_, err := f.svc.Award(ctx, s.ID, "both")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StorageError", err)
	}

	got, _ := f.svc.GetSession(ctx, s.ID)
	if got.State() != model.SessionStarted || got.AcceptedByLead() {
		t.Fatalf("session after failed award = %+v", got)
	}
	after := f.stats(t, f.hunter)
	if after.BugsSolved != before.BugsSolved || after.PointsEarned != before.PointsEarned ||
		after.BugsIdentified != before.BugsIdentified || after.ActiveBugs != before.ActiveBugs {
		t.Fatalf("stats changed: before %+v after %+v", before, after)
	}
	ledger, _ := f.svc.UserPayments(ctx, f.hunter)
	if len(ledger) != 0 {
		t.Fatalf("ledger = %+v", ledger)
	}
	if len(f.pub.awarded) != 0 {
		t.Fatal("event published for failed award")
	}

	// retry succeeds once the store recovers
	if _, err := f.db.Exec(`DROP TRIGGER fail_ledger`); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Award(ctx, s.ID, "both"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestPointsEarnedMatchesLedger(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	other := testutil.CreateUser(t, f.db, "other")
	sizes := []string{"S", "M", "XL", "5XL"}
	modes := []string{"rootcause", "fix", "both"}
	for i := 0; i < 12; i++ {
		user := f.hunter
		if i%3 == 0 {
			user = other
		}
		bugID := testutil.CreateBug(t, f.db, f.owner, sizes[i%len(sizes)])
		s, err := f.svc.StartSession(ctx, StartSessionInput{BugID: bugID, UserID: user, ReproText: "r"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.Award(ctx, s.ID, modes[i%len(modes)]); err != nil {
			t.Fatal(err)
		}
	}

	for _, u := range []string{f.hunter, other} {
		ledger, _ := f.svc.UserPayments(ctx, u)
		sum := 0
		for _, p := range ledger {
			sum += p.Points
		}
		st := f.stats(t, u)
		if st.PointsEarned != sum || st.BugsSolved != len(ledger) {
			t.Fatalf("user %s: stats %+v, ledger sum %d over %d rows", u, st, sum, len(ledger))
		}
	}
	rec := NewStatsReconciler(f.db, f.repos.Payments, f.repos.Stats, zerolog.Nop())
	drift, err := rec.Verify(ctx)
	if err != nil || len(drift) != 0 {
		t.Fatalf("drift = %+v, %v", drift, err)
	}
}

func TestListSessionsByState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, f.hunter)
	f.start(t, f.owner)
	if _, err := f.svc.Award(ctx, a.ID, "fix"); err != nil {
		t.Fatal(err)
	}
	awarded, err := f.svc.ListSessions(ctx, repository.SessionFilter{State: model.SessionAwarded})
	if err != nil || len(awarded) != 1 || awarded[0].ID != a.ID {
		t.Fatalf("awarded = %+v, %v", awarded, err)
	}
	started, _ := f.svc.ListSessions(ctx, repository.SessionFilter{BugID: f.bugID, State: model.SessionStarted})
	if len(started) != 1 || started[0].UserID != f.owner {
		t.Fatalf("started = %+v", started)
	}
	var ve *ValidationError
	if _, err := f.svc.ListSessions(ctx, repository.SessionFilter{State: "paused"}); !errors.As(err, &ve) {
		t.Fatalf("bad state err = %v", err)
	}
}

func TestUserStatsZeroForIdleUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	st := f.stats(t, f.owner)
	if st != (model.UserStats{UserID: f.owner}) {
		t.Fatalf("stats = %+v", st)
	}
	var nf *NotFoundError
	if _, err := f.svc.UserStats(context.Background(), "ghost"); !errors.As(err, &nf) {
		t.Fatalf("ghost err = %v", err)
	}
}

func TestStoreTimeoutIsStorageError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Award(ctx, "any", "both")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StorageError", err)
	}
}
