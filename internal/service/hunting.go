// Package service holds the bug hunting workflow: session start, the
// exactly-once award engine, bug status changes, candidate suggestion and
// stats reconciliation.  Every write runs in a single SQL transaction; no
// state is shared in memory between requests.
package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/model"
	"github.com/iliyamo/bug-hunting/internal/queue"
	"github.com/iliyamo/bug-hunting/internal/repository"
)

// DefaultTimeout bounds each store round trip when no timeout is set.
const DefaultTimeout = 5 * time.Second

// Repos bundles the repositories the workflow writes through.
type Repos struct {
	Bugs     *repository.BugRepo
	Sessions *repository.HuntingSessionRepo
	Users    *repository.UserRepo
	Scale    *repository.PointScaleRepo
	Payments *repository.PointsPaymentRepo
	Stats    *repository.StatsRepo
}

func (r Repos) complete() bool {
	return r.Bugs != nil && r.Sessions != nil && r.Users != nil && r.Scale != nil && r.Payments != nil && r.Stats != nil
}

// HuntingService implements the session and award workflow.
type HuntingService struct {
	db      *sql.DB
	repos   Repos
	pub     Publisher
	log     zerolog.Logger
	timeout time.Duration
	now     func() time.Time
}

// Option customises a HuntingService.
type Option func(*HuntingService)

// WithTimeout bounds every store call.  Exceeding it yields a StorageError.
func WithTimeout(d time.Duration) Option {
	return func(s *HuntingService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *HuntingService) { s.now = now }
}

// WithPublisher sets the event publisher.  The default drops events.
func WithPublisher(p Publisher) Option {
	return func(s *HuntingService) {
		if p != nil {
			s.pub = p
		}
	}
}

// NewHuntingService wires the workflow.  All repositories must be set.
func NewHuntingService(db *sql.DB, repos Repos, log zerolog.Logger, opts ...Option) *HuntingService {
	if db == nil || !repos.complete() {
		panic("nil dependency passed to NewHuntingService")
	}
	s := &HuntingService{
		db:      db,
		repos:   repos,
		pub:     NopPublisher{},
		log:     log.With().Str("component", "hunting").Logger(),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StartSessionInput carries the fields of a new hunting session.  UserID
// is the authenticated caller.
type StartSessionInput struct {
	BugID     string
	UserID    string
	ReproText string
	PRLink    *string
	LeadID    *string
}

// StartSession records that UserID is hunting BugID.  An open bug moves to
// in_progress; a bug in any other status is left alone so several hunters
// can work the same bug.  The hunter's identified and active counters grow
// by one.
func (s *HuntingService) StartSession(ctx context.Context, in StartSessionInput) (model.HuntingSession, error) {
	in.BugID = strings.TrimSpace(in.BugID)
	in.UserID = strings.TrimSpace(in.UserID)
	repro := strings.TrimSpace(in.ReproText)
	switch {
	case in.BugID == "":
		return model.HuntingSession{}, invalid("bug_id", "is required")
	case in.UserID == "":
		return model.HuntingSession{}, invalid("user_id", "is required")
	case repro == "":
		return model.HuntingSession{}, invalid("repro_text", "must not be empty")
	}
	prLink, err := normalizePRLink(in.PRLink)
	if err != nil {
		return model.HuntingSession{}, err
	}
	lead := trimmedOrNil(in.LeadID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	sess := model.HuntingSession{
		BugID:              in.BugID,
		UserID:             in.UserID,
		StartedAt:          now,
		ReproText:          repro,
		PRLink:             prLink,
		AssignedModuleLead: lead,
	}
	var moved bool
	err = s.inTx(ctx, "start session", func(tx *sql.Tx) error {
		if _, err := s.repos.Bugs.GetByIDTx(ctx, tx, in.BugID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return invalid("bug_id", "bug %s does not exist", in.BugID)
			}
			return storageErr("load bug", err)
		}
		if err := s.requireUser(ctx, tx, "user_id", in.UserID); err != nil {
			return err
		}
		if lead != nil {
			if err := s.requireUser(ctx, tx, "assigned_module_lead", *lead); err != nil {
				return err
			}
		}
		if err := s.repos.Sessions.CreateTx(ctx, tx, &sess); err != nil {
			return storageErr("insert session", err)
		}
		ok, err := s.repos.Bugs.TransitionTx(ctx, tx, in.BugID, model.StatusOpen, model.StatusInProgress, now)
		if err != nil {
			return storageErr("transition bug", err)
		}
		moved = ok
		if err := s.repos.Stats.RecordIdentificationTx(ctx, tx, in.UserID, now); err != nil {
			return storageErr("record identification", err)
		}
		return nil
	})
	if err != nil {
		return model.HuntingSession{}, err
	}

	s.log.Info().
		Str("session_id", sess.ID).
		Str("bug_id", sess.BugID).
		Str("user_id", sess.UserID).
		Bool("bug_started", moved).
		Msg("hunting session started")
	s.publish(ctx, func(pctx context.Context) error {
		return s.pub.SessionStarted(pctx, queue.SessionStartedEvent{
			HuntingSessionID: sess.ID,
			BugID:            sess.BugID,
			UserID:           sess.UserID,
			StartedAt:        sess.StartedAt.Format(time.RFC3339),
		})
	})
	return sess, nil
}

// AwardResult is what the award endpoint returns.
type AwardResult struct {
	PointsAwarded int             `json:"points_awarded"`
	Breakdown     model.Breakdown `json:"breakdown"`
}

// Award pays a started session according to mode.  The session update,
// the ledger entry and the stats increment commit together or not at all.
// A session that is already awarded, or that another caller awards first,
// yields AlreadyAwardedError.
func (s *HuntingService) Award(ctx context.Context, sessionID, rawMode string) (AwardResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return AwardResult{}, invalid("session_id", "is required")
	}
	mode, err := model.ParseAwardMode(strings.ToLower(strings.TrimSpace(rawMode)))
	if err != nil {
		return AwardResult{}, &ValidationError{Field: "mode", Msg: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		res     AwardResult
		payment model.PointsPayment
	)
	err = s.inTx(ctx, "award", func(tx *sql.Tx) error {
		sess, err := s.repos.Sessions.GetByIDTx(ctx, tx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Entity: "hunting session", ID: sessionID}
			}
			return storageErr("load session", err)
		}
		if sess.Award != nil {
			return &AlreadyAwardedError{SessionID: sessionID}
		}
		bug, err := s.repos.Bugs.GetByIDTx(ctx, tx, sess.BugID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Entity: "bug", ID: sess.BugID}
			}
			return storageErr("load bug", err)
		}
		base, err := s.repos.Scale.ValueForSizeTx(ctx, tx, bug.Size)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Entity: "point scale size", ID: string(bug.Size)}
			}
			return storageErr("load point scale", err)
		}

		points, breakdown := ComputeSplit(base, mode)
		now := s.now().UTC()
		ok, err := s.repos.Sessions.MarkAwardedTx(ctx, tx, sess.ID, points, now)
		if err != nil {
			return storageErr("mark session awarded", err)
		}
		if !ok {
			return &AlreadyAwardedError{SessionID: sessionID}
		}
		payment = model.PointsPayment{
			HuntingSessionID: sess.ID,
			UserID:           sess.UserID,
			BugID:            sess.BugID,
			Points:           points,
			Breakdown:        breakdown,
			Reason:           awardReason(mode),
			CreatedAt:        now,
		}
		if err := s.repos.Payments.CreateTx(ctx, tx, &payment); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return &AlreadyAwardedError{SessionID: sessionID}
			}
			return storageErr("insert ledger entry", err)
		}
		if err := s.repos.Stats.RecordSolveTx(ctx, tx, sess.UserID, points, now); err != nil {
			return storageErr("record solve", err)
		}
		res = AwardResult{PointsAwarded: points, Breakdown: breakdown}
		return nil
	})
	if err != nil {
		return AwardResult{}, err
	}

	s.log.Info().
		Str("session_id", sessionID).
		Str("user_id", payment.UserID).
		Str("mode", string(mode)).
		Int("points", res.PointsAwarded).
		Msg("session awarded")
	s.publish(ctx, func(pctx context.Context) error {
		return s.pub.PointsAwarded(pctx, queue.PointsAwardedEvent{
			PaymentID:        payment.ID,
			HuntingSessionID: payment.HuntingSessionID,
			BugID:            payment.BugID,
			UserID:           payment.UserID,
			Mode:             string(mode),
			Points:           payment.Points,
			RootCausePct:     payment.Breakdown.RootCausePct,
			FixPct:           payment.Breakdown.FixPct,
			AwardedAt:        payment.CreatedAt.Format(time.RFC3339),
		})
	})
	return res, nil
}

func awardReason(mode model.AwardMode) string {
	switch mode {
	case model.ModeRootCause:
		return "Points awarded for root cause work on bug"
	case model.ModeFix:
		return "Points awarded for fix work on bug"
	default:
		return "Points awarded for root cause and fix work on bug"
	}
}

// GetSession returns one session.
func (s *HuntingService) GetSession(ctx context.Context, id string) (model.HuntingSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	sess, err := s.repos.Sessions.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.HuntingSession{}, &NotFoundError{Entity: "hunting session", ID: id}
	}
	if err != nil {
		return model.HuntingSession{}, storageErr("load session", err)
	}
	return sess, nil
}

// ListSessions returns sessions matching f, newest first.
func (s *HuntingService) ListSessions(ctx context.Context, f repository.SessionFilter) ([]model.HuntingSession, error) {
	switch f.State {
	case "", model.SessionStarted, model.SessionAwarded:
	default:
		return nil, invalid("state", "must be started or awarded")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.repos.Sessions.List(ctx, f)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	return out, nil
}

func (s *HuntingService) requireUser(ctx context.Context, tx *sql.Tx, field, id string) error {
	ok, err := s.repos.Users.ExistsTx(ctx, tx, id)
	if err != nil {
		return storageErr("load user", err)
	}
	if !ok {
		return invalid(field, "user %s does not exist", id)
	}
	return nil
}

// inTx runs fn in a transaction and commits when it returns nil.  Errors
// from fn are returned unchanged; begin and commit failures become
// StorageError.
func (s *HuntingService) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op+": begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op+": commit", err)
	}
	committed = true
	return nil
}

// publish sends an event after commit.  Failures are logged only.
func (s *HuntingService) publish(ctx context.Context, send func(context.Context) error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := send(pctx); err != nil {
		s.log.Warn().Err(err).Msg("event publish failed")
	}
}

func normalizePRLink(raw *string) (*string, error) {
	v := trimmedOrNil(raw)
	if v == nil {
		return nil, nil
	}
	u, err := url.Parse(*v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, invalid("pr_link", "must be an absolute http(s) URL")
	}
	return v, nil
}

func trimmedOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
