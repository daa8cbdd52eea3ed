// Package migration executes staged migrations of resource allocations
// between mesh nodes. A migration moves through an explicit lifecycle
// (pending, preparing, transferring, verifying, switching, completed) with
// failure and cancellation reachable from every non-terminal state.
package migration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// StepFunc performs the real work for one migration stage. The default is a
// no-op so the state machine can run without a transport; production wiring
// installs the inter-node transfer here. Returning an error halts the
// migration at Failed.
type StepFunc func(ctx context.Context, plan model.MigrationPlan, stage model.MigrationState) error

// Options configures a Migrator.
type Options struct {
	// PreferLive selects the live strategy for new plans when true;
	// otherwise stop-and-copy is used, trading downtime for simplicity.
	PreferLive bool
	// Step overrides the per-stage work function.
	Step StepFunc
}

// Migrator owns the active-plan set and migration history.
type Migrator struct {
	mu      sync.RWMutex
	active  map[string]*model.MigrationStatus // asset id -> status
	history []model.MigrationStatus

	preferLive bool
	step       StepFunc
	now        func() time.Time
}

// New returns a Migrator with the given options.
func New(opts Options) *Migrator {
	step := opts.Step
	if step == nil {
		step = func(context.Context, model.MigrationPlan, model.MigrationState) error { return nil }
	}
	return &Migrator{
		active:     make(map[string]*model.MigrationStatus),
		preferLive: opts.PreferLive,
		step:       step,
		now:        time.Now,
	}
}

// SetClock overrides the migrator's time source. Intended for tests.
func (m *Migrator) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// PlanMigration creates a Pending plan for the asset. A second plan for an
// asset that already has an active plan is rejected.
func (m *Migrator) PlanMigration(asset model.AssetID, source, target model.NodeID, priority model.MigrationPriority) (model.MigrationPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.active[asset.ID]; ok && !st.State.Terminal() {
		return model.MigrationPlan{}, fmt.Errorf("asset %q already has an active migration plan %s", asset.ID, st.Plan.PlanID)
	}

	strategy := model.StrategyStopAndCopy
	if m.preferLive {
		strategy = model.StrategyLive
	}
	plan := model.MigrationPlan{
		PlanID:            newPlanID(),
		AssetID:           asset,
		SourceNode:        source,
		TargetNode:        target,
		Strategy:          strategy,
		Priority:          priority,
		EstimatedDuration: estimateDuration(asset.Type),
		EstimatedBytes:    estimateBytes(asset.Type),
		CreatedAt:         m.now(),
	}
	m.active[asset.ID] = &model.MigrationStatus{
		Plan:  plan,
		State: model.MigrationPending,
	}
	return plan, nil
}

// executionStages lists the stages ExecuteMigration walks through and the
// progress value reached when each stage completes.
var executionStages = []struct {
	state    model.MigrationState
	progress float64
}{
	{model.MigrationPreparing, 0},
	{model.MigrationTransferring, 50},
	{model.MigrationVerifying, 75},
	{model.MigrationSwitching, 90},
}

// ExecuteMigration advances the asset's plan from Pending through the
// remaining states. On success the status is archived to history and removed
// from the active set. A failure at any stage records the error and halts at
// Failed without applying the target-side switch.
func (m *Migrator) ExecuteMigration(ctx context.Context, asset model.AssetID) (model.MigrationStatus, error) {
	m.mu.Lock()
	st, ok := m.active[asset.ID]
	if !ok {
		m.mu.Unlock()
		return model.MigrationStatus{}, &model.AssetNotFoundError{AssetID: asset}
	}
	if st.State != model.MigrationPending {
		m.mu.Unlock()
		return *st, fmt.Errorf("migration %s is %s, not pending", st.Plan.PlanID, st.State)
	}
	st.StartedAt = m.now()
	plan := st.Plan
	m.mu.Unlock()

	for _, stage := range executionStages {
		if err := m.advance(asset.ID, stage.state); err != nil {
			return m.snapshot(asset.ID), err
		}
		if err := m.step(ctx, plan, stage.state); err != nil {
			return m.fail(asset.ID, fmt.Errorf("%s: %w", stage.state, err))
		}
		if err := ctx.Err(); err != nil {
			return m.fail(asset.ID, fmt.Errorf("%s: %w", stage.state, err))
		}
		m.setProgress(asset.ID, stage.progress, stage.state)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok = m.active[asset.ID]
	if !ok {
		// Cancelled mid-flight.
		return model.MigrationStatus{}, fmt.Errorf("migration for asset %q was cancelled", asset.ID)
	}
	st.State = model.MigrationCompleted
	st.Progress = 100
	st.FinishedAt = m.now()
	done := *st
	m.history = append(m.history, done)
	delete(m.active, asset.ID)
	return done, nil
}

// CancelMigration stops the active plan for the asset. It is only valid while
// the plan is active, and removes the plan without archiving a terminal
// status. Partially transferred target-side data is not rolled back here.
func (m *Migrator) CancelMigration(asset model.AssetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.active[asset.ID]
	if !ok {
		return &model.NotFoundError{Resource: "migration plan for asset " + asset.ID}
	}
	if st.State.Terminal() {
		return fmt.Errorf("migration %s already %s", st.Plan.PlanID, st.State)
	}
	st.State = model.MigrationCancelled
	delete(m.active, asset.ID)
	return nil
}

// Status returns the active plan status for the asset, if any.
func (m *Migrator) Status(asset model.AssetID) (model.MigrationStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.active[asset.ID]
	if !ok {
		return model.MigrationStatus{}, false
	}
	return *st, true
}

// Active returns all active migration statuses.
func (m *Migrator) Active() []model.MigrationStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MigrationStatus, 0, len(m.active))
	for _, st := range m.active {
		out = append(out, *st)
	}
	return out
}

// History returns archived migration statuses, oldest first.
func (m *Migrator) History() []model.MigrationStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MigrationStatus, len(m.history))
	copy(out, m.history)
	return out
}

// advance validates and applies a state transition on the active plan.
func (m *Migrator) advance(assetID string, next model.MigrationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.active[assetID]
	if !ok {
		return fmt.Errorf("migration for asset %q was cancelled", assetID)
	}
	if !st.State.CanTransitionTo(next) {
		return model.TransitionError("migration "+st.Plan.PlanID, st.State, next)
	}
	st.State = next
	return nil
}

// setProgress records stage completion. Transfer completion also accounts the
// plan's estimated bytes as transferred.
func (m *Migrator) setProgress(assetID string, progress float64, stage model.MigrationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.active[assetID]
	if !ok {
		return
	}
	if progress > st.Progress {
		st.Progress = progress
	}
	if stage == model.MigrationTransferring {
		st.BytesTransferred = st.Plan.EstimatedBytes
	}
}

// fail halts the plan at Failed with the given error, archives it, and
// removes it from the active set so the asset can be re-planned.
func (m *Migrator) fail(assetID string, cause error) (model.MigrationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.active[assetID]
	if !ok {
		return model.MigrationStatus{}, cause
	}
	st.State = model.MigrationFailed
	st.Error = cause.Error()
	st.FinishedAt = m.now()
	done := *st
	m.history = append(m.history, done)
	delete(m.active, assetID)
	return done, cause
}

// snapshot returns a copy of the active status, or its zero value.
func (m *Migrator) snapshot(assetID string) model.MigrationStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.active[assetID]; ok {
		return *st
	}
	return model.MigrationStatus{}
}

// estimateDuration gives a coarse per-type duration estimate used for
// scheduling and operator display.
func estimateDuration(rt model.ResourceType) time.Duration {
	switch rt {
	case model.ResourceMemory:
		return 30 * time.Second
	case model.ResourceStorage:
		return 5 * time.Minute
	case model.ResourceGPU:
		return 2 * time.Minute
	default:
		return time.Minute
	}
}

// estimateBytes gives a coarse per-type data-size estimate.
func estimateBytes(rt model.ResourceType) uint64 {
	switch rt {
	case model.ResourceMemory:
		return 4 << 30
	case model.ResourceStorage:
		return 64 << 30
	case model.ResourceGPU:
		return 8 << 30
	default:
		return 1 << 30
	}
}

func newPlanID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "mig-" + hex.EncodeToString(b)
}
