package service

import (
	"context"
	"errors"

	"github.com/iliyamo/bug-hunting/internal/model"
	"github.com/iliyamo/bug-hunting/internal/repository"
)

// UserStats returns the counters of userID.  A user with no activity gets
// zero-valued stats rather than an error.
func (s *HuntingService) UserStats(ctx context.Context, userID string) (model.UserStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	st, err := s.repos.Stats.Get(ctx, userID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.UserStats{}, storageErr("load stats", err)
	}
	if _, err := s.repos.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.UserStats{}, &NotFoundError{Entity: "user", ID: userID}
		}
		return model.UserStats{}, storageErr("load user", err)
	}
	return model.UserStats{UserID: userID}, nil
}

// UserPayments returns the ledger of userID, newest first.
func (s *HuntingService) UserPayments(ctx context.Context, userID string) ([]model.PointsPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.repos.Payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list payments", err)
	}
	return out, nil
}

// PointScale returns the size to base points table.
func (s *HuntingService) PointScale(ctx context.Context) ([]model.PointScaleEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.repos.Scale.List(ctx)
	if err != nil {
		return nil, storageErr("list point scale", err)
	}
	return out, nil
}
