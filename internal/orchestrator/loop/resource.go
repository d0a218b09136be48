package loop

import (
	"sort"
	"time"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

// ManagedResource is the orchestrator's view of one node or cluster.
// It is only touched from the control loop.
type ManagedResource struct {
	ID        string
	lifecycle *Lifecycle

	// outstanding holds the commands awaiting a result, by correlation id.
	outstanding map[string]*model.Command

	// pending holds commands to (re-)issue once the connection is back.
	pending []*model.Command

	LastKnownGood model.ResourceState
	LastReport    *model.CommandResult
	LastError     error

	// Retries counts attempts spent on the current operation.
	Retries   int
	Exhausted bool

	// retry is the command to re-issue from Failed once retryAt has passed.
	retry   *model.Command
	retryAt time.Time

	lastHealthCheck time.Time
	UpdatedAt       time.Time
}

func newManagedResource(id string, onTransition TransitionFunc, now time.Time) *ManagedResource {
	return &ManagedResource{
		ID:              id,
		lifecycle:       NewLifecycle(model.ResourceStateUnknown, onTransition),
		outstanding:     make(map[string]*model.Command),
		lastHealthCheck: now,
		UpdatedAt:       now,
	}
}

// State returns the current lifecycle state.
func (r *ManagedResource) State() model.ResourceState {
	return r.lifecycle.State()
}

// idle reports whether nothing is in flight or queued for the resource.
func (r *ManagedResource) idle() bool {
	return len(r.outstanding) == 0 && len(r.pending) == 0
}

// resetBudget starts a fresh retry budget for a new operation.
func (r *ManagedResource) resetBudget() {
	r.Retries = 0
	r.Exhausted = false
	r.retry = nil
	r.retryAt = time.Time{}
}

// Status returns a snapshot safe to hand outside the loop.
func (r *ManagedResource) Status() model.ResourceStatus {
	ids := make([]string, 0, len(r.outstanding))
	for id := range r.outstanding {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s := model.ResourceStatus{
		ID:            r.ID,
		State:         r.State(),
		Outstanding:   ids,
		Pending:       len(r.pending),
		LastKnownGood: r.LastKnownGood,
		Retries:       r.Retries,
		Exhausted:     r.Exhausted,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.LastReport != nil {
		report := *r.LastReport
		s.LastReport = &report
	}
	if r.LastError != nil {
		s.LastError = r.LastError.Error()
	}
	return s
}
