package service

import "github.com/iliyamo/bug-hunting/internal/model"

const (
	rootCauseShare = 10
	fixShare       = 90
)

// ComputeSplit returns the points paid for base under mode and the
// percentage breakdown recorded in the ledger.  Partial credit is rounded
// half up: rootcause pays 10%, fix pays 90%, both pays the full base.
func ComputeSplit(base int, mode model.AwardMode) (int, model.Breakdown) {
	switch mode {
	case model.ModeRootCause:
		return percentOf(base, rootCauseShare), model.Breakdown{RootCausePct: 100, FixPct: 0}
	case model.ModeFix:
		return percentOf(base, fixShare), model.Breakdown{RootCausePct: 0, FixPct: 100}
	default:
		return base, model.Breakdown{RootCausePct: rootCauseShare, FixPct: fixShare}
	}
}

func percentOf(base, pct int) int { return (base*pct + 50) / 100 }
