package engine

import (
	"strings"

	"github.com/and27/pcengine/internal/domain"
)

// SnapshotInput is the free text captured when freezing or finishing.
type SnapshotInput struct {
	Summary    string  `json:"summary"`
	Label      *string `json:"label,omitempty"`
	LeftOut    *string `json:"left_out,omitempty"`
	FutureNote *string `json:"future_note,omitempty"`
}

// BuildSnapshot normalizes a snapshot. A nil input is treated as a missing summary.
func BuildSnapshot(in *SnapshotInput) (domain.SnapshotFields, error) {
	if in == nil {
		return domain.SnapshotFields{}, domain.Invalid("summary", "summary required")
	}
	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		return domain.SnapshotFields{}, domain.Invalid("summary", "summary required")
	}
	return domain.SnapshotFields{
		Label:      normalizeOptional(in.Label),
		Summary:    summary,
		LeftOut:    normalizeOptional(in.LeftOut),
		FutureNote: normalizeOptional(in.FutureNote),
	}, nil
}

// DecisionInput justifies an active-cap override.
type DecisionInput struct {
	Reason   string `json:"reason"`
	TradeOff string `json:"trade_off"`
}

func BuildDecision(in DecisionInput) (domain.DecisionFields, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return domain.DecisionFields{}, domain.Invalid("reason", "reason required")
	}
	tradeOff := strings.TrimSpace(in.TradeOff)
	if tradeOff == "" {
		return domain.DecisionFields{}, domain.Invalid("trade_off", "trade_off required")
	}
	return domain.DecisionFields{Reason: reason, TradeOff: tradeOff}, nil
}
