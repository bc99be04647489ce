package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/and27/pcengine/internal/domain"
)

// OverrideInput asks to launch one project by freezing another.
type OverrideInput struct {
	LaunchProjectID string        `json:"launch_project_id"`
	FreezeProjectID string        `json:"freeze_project_id"`
	Snapshot        SnapshotInput `json:"snapshot"`
	Decision        DecisionInput `json:"decision"`
}

// Override freezes FreezeProjectID and launches LaunchProjectID in one
// store transaction, bypassing the cap check for that launch. The active
// count is unchanged by a successful override.
func (e Engine) Override(ctx context.Context, actorID string, in OverrideInput) (domain.OverrideResult, error) {
	res, err := e.override(ctx, actorID, in)
	e.record(domain.ActionLaunch, in.LaunchProjectID, err)
	if err == nil {
		if e.Metrics != nil {
			e.Metrics.OverridesTotal.Inc()
		}
		e.log().Info("active cap override",
			zap.String("launched_project_id", res.Launched.ID),
			zap.String("frozen_project_id", res.Frozen.ID),
			zap.String("decision_id", res.Decision.ID))
	}
	return res, err
}

func (e Engine) override(ctx context.Context, actorID string, in OverrideInput) (domain.OverrideResult, error) {
	launchID := strings.TrimSpace(in.LaunchProjectID)
	freezeID := strings.TrimSpace(in.FreezeProjectID)
	if launchID == "" {
		return domain.OverrideResult{}, domain.Invalid("launch_project_id", "launch project id required")
	}
	if freezeID == "" {
		return domain.OverrideResult{}, domain.Invalid("freeze_project_id", "freeze project id required")
	}
	if launchID == freezeID {
		return domain.OverrideResult{}, domain.Invalid("freeze_project_id", "cannot freeze and launch the same project")
	}
	snap, err := BuildSnapshot(&in.Snapshot)
	if err != nil {
		return domain.OverrideResult{}, err
	}
	decision, err := BuildDecision(in.Decision)
	if err != nil {
		return domain.OverrideResult{}, err
	}
	return e.Projects.OverrideWithFreeze(ctx, actorID, domain.OverrideRecord{
		LaunchProjectID: launchID,
		FreezeProjectID: freezeID,
		Snapshot:        snap,
		Decision:        decision,
	})
}
