package loop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
	"k8s.io/utils/lru"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	"github.com/autopeer-io/clusterpilot/pkg/log"
)

// Config holds the timing and retry policy of the control loop.
type Config struct {
	// CommandTimeout is how long a command may stay outstanding without a result.
	CommandTimeout time.Duration

	// TickInterval is the period of the timeout scan.
	TickInterval time.Duration

	// RetryLimit bounds the attempts spent on one operation.
	RetryLimit int

	// RetryDelay separates a rejected command from its re-issue.
	RetryDelay time.Duration

	// HealthCheckInterval spaces health-checks of ready resources; 0 disables them.
	HealthCheckInterval time.Duration

	// Reconnect is one round of reconnect attempts.
	Reconnect wait.Backoff

	// ReconnectCooldown separates an exhausted round from the next one.
	ReconnectCooldown time.Duration

	// RetiredIDs is the number of retired correlation ids remembered for diagnostics.
	RetiredIDs int
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		CommandTimeout:      30 * time.Second,
		TickInterval:        time.Second,
		RetryLimit:          3,
		RetryDelay:          5 * time.Second,
		HealthCheckInterval: time.Minute,
		Reconnect: wait.Backoff{
			Duration: 500 * time.Millisecond,
			Factor:   2.0,
			Jitter:   0.1,
			Steps:    8,
			Cap:      30 * time.Second,
		},
		ReconnectCooldown: time.Minute,
		RetiredIDs:        4096,
	}
}

type entry struct {
	cmd      *model.Command
	deadline time.Time
}

type reconnectOutcome struct {
	handle   model.ConnectionHandle
	attempts int
	err      error
}

// Orchestrator is the control loop. It is the only consumer of the delivery
// channel, the only writer of resource state and the only issuer of commands.
type Orchestrator struct {
	cfg        Config
	transport  core.Transport
	deliveries <-chan model.Delivery
	observer   core.Observer
	clock      clock.WithTicker
	log        log.Logger

	// Owned by the loop goroutine.
	resources    map[string]*ManagedResource
	outstanding  map[string]*entry
	retired      *lru.Cache
	epoch        uint64
	connected    bool
	reconnecting bool

	// lostAhead is the newest epoch reported lost before the loop adopted it.
	lostAhead    uint64
	lostAheadErr error

	requests   chan request
	reconnects chan reconnectOutcome
	done       chan struct{}

	// online mirrors connected for readers outside the loop.
	online atomic.Bool
}

// New creates an orchestrator consuming deliveries and issuing commands through transport.
func New(cfg Config, transport core.Transport, deliveries <-chan model.Delivery, obs core.Observer, clk clock.WithTicker) *Orchestrator {
	if obs == nil {
		obs = core.Observers{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if cfg.RetiredIDs <= 0 {
		cfg.RetiredIDs = DefaultConfig().RetiredIDs
	}

	return &Orchestrator{
		cfg:         cfg,
		transport:   transport,
		deliveries:  deliveries,
		observer:    obs,
		clock:       clk,
		log:         log.WithName("orchestrator"),
		resources:   make(map[string]*ManagedResource),
		outstanding: make(map[string]*entry),
		retired:     lru.New(cfg.RetiredIDs),
		requests:    make(chan request),
		reconnects:  make(chan reconnectOutcome, 1),
		done:        make(chan struct{}),
	}
}

// Run drives the loop until ctx is cancelled. initial is the connection
// established before orchestration starts; a zero handle starts reconnecting.
func (o *Orchestrator) Run(ctx context.Context, initial model.ConnectionHandle) error {
	defer close(o.done)

	if initial.Epoch > 0 {
		o.epoch = initial.Epoch
		o.setConnected(true)
		o.emit(model.Event{Type: model.EventConnected, Epoch: initial.Epoch})
	} else {
		o.startReconnect(ctx, 0)
	}

	ticker := o.clock.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.log.Info("Control loop started", "epoch", o.epoch, "commandTimeout", o.cfg.CommandTimeout, "retryLimit", o.cfg.RetryLimit)
	for {
		select {
		case <-ctx.Done():
			o.log.Info("Control loop stopped", "resources", len(o.resources), "outstanding", len(o.outstanding))
			return nil
		case d := <-o.deliveries:
			o.handleDelivery(ctx, d)
		case now := <-ticker.C():
			o.handleTick(ctx, now)
		case req := <-o.requests:
			req.run(ctx)
			close(req.done)
		case out := <-o.reconnects:
			o.handleReconnect(ctx, out)
		}
	}
}

// Connected reports whether the loop currently considers the link up.
func (o *Orchestrator) Connected() bool {
	return o.online.Load()
}

func (o *Orchestrator) setConnected(v bool) {
	o.connected = v
	o.online.Store(v)
}

func (o *Orchestrator) emit(e model.Event) {
	if e.Time.IsZero() {
		e.Time = o.clock.Now()
	}
	o.observer.Observe(e)
}

func (o *Orchestrator) handleDelivery(ctx context.Context, d model.Delivery) {
	switch d.Kind {
	case model.DeliveryResult:
		o.handleResult(ctx, d.Epoch, d.Result)
	case model.DeliveryConnectionLost:
		o.handleLost(ctx, d)
	default:
		o.log.Error(fmt.Errorf("unhandled delivery kind %v", d.Kind), "Dropping delivery")
	}
}

func (o *Orchestrator) handleResult(ctx context.Context, epoch uint64, r *model.CommandResult) {
	if r == nil {
		return
	}
	if r.Unsolicited() {
		o.handleStatus(r)
		return
	}

	if epoch != 0 && epoch < o.epoch {
		o.discard(r, model.DiscardStaleEpoch)
		return
	}

	e, ok := o.outstanding[r.CorrelationID]
	if !ok {
		reason := model.DiscardUnknown
		if v, found := o.retired.Get(r.CorrelationID); found {
			reason = v.(model.DiscardReason)
		}
		o.discard(r, reason)
		return
	}
	if e.cmd.ResourceID != r.ResourceID {
		o.discard(r, model.DiscardMismatch)
		return
	}

	res := o.resources[e.cmd.ResourceID]
	now := o.clock.Now()
	res.LastReport = r
	res.UpdatedAt = now

	event := model.Event{
		Type:          model.EventResultReceived,
		ResourceID:    res.ID,
		CorrelationID: r.CorrelationID,
		Kind:          e.cmd.Kind,
		Status:        r.Status,
		Epoch:         epoch,
	}

	switch r.Status {
	case model.ResultStatusInProgress:
		e.deadline = now.Add(o.cfg.CommandTimeout)
		o.emit(event)
		return
	case model.ResultStatusSuccess:
		o.untrack(r.CorrelationID, model.DiscardResolved)
		event.Latency = now.Sub(e.cmd.IssuedAt)
		o.emit(event)
		o.succeeded(ctx, res, e.cmd, now)
	case model.ResultStatusFailure:
		o.untrack(r.CorrelationID, model.DiscardResolved)
		event.Latency = now.Sub(e.cmd.IssuedAt)
		o.emit(event)
		o.failed(ctx, res, e.cmd, &model.CommandFailure{
			CorrelationID: r.CorrelationID,
			ResourceID:    res.ID,
			Kind:          e.cmd.Kind,
			Detail:        r.Error,
		}, now)
	default:
		o.log.Error(fmt.Errorf("unhandled result status %q", r.Status), "Ignoring result", "correlationID", r.CorrelationID)
		return
	}

	o.collect(res)
}

// handleStatus records an unsolicited status push. Outstanding commands are untouched.
func (o *Orchestrator) handleStatus(r *model.CommandResult) {
	res, ok := o.resources[r.ResourceID]
	if !ok {
		o.log.Debug("Status push for unmanaged resource", "resource", r.ResourceID, "status", r.Status)
		return
	}
	res.LastReport = r
	res.UpdatedAt = o.clock.Now()
	if r.Status == model.ResultStatusSuccess {
		res.LastKnownGood = res.State()
	}
}

func (o *Orchestrator) discard(r *model.CommandResult, reason model.DiscardReason) {
	o.emit(model.Event{
		Type:          model.EventResultDiscarded,
		ResourceID:    r.ResourceID,
		CorrelationID: r.CorrelationID,
		Status:        r.Status,
		Err:           &model.CorrelationError{CorrelationID: r.CorrelationID, ResourceID: r.ResourceID, Reason: reason},
	})
}

func (o *Orchestrator) succeeded(ctx context.Context, res *ManagedResource, cmd *model.Command, now time.Time) {
	state := res.State()
	settled := cmd.Kind != model.CommandKindHealthCheck
	switch {
	case !settled && state == model.ResourceStateFailed:
		o.fire(ctx, res, EventRecover)
		settled = true
	case settled && state == inProgressState(cmd.Kind):
		o.fire(ctx, res, EventSucceed)
	}

	// A passing health-check only settles the budget of a failed resource.
	if settled {
		res.resetBudget()
		res.LastError = nil
	}
	res.lastHealthCheck = now
	if s := res.State(); s != model.ResourceStateFailed {
		res.LastKnownGood = s
	}
}

// failed moves res to Failed and spends one attempt of its budget.
func (o *Orchestrator) failed(ctx context.Context, res *ManagedResource, cmd *model.Command, cause error, now time.Time) {
	res.LastError = cause
	o.fire(ctx, res, EventFail)

	res.Retries++
	if res.Retries >= o.cfg.RetryLimit {
		o.exhaust(res, cmd, cause)
		return
	}
	res.retry = cmd
	res.retryAt = now.Add(o.cfg.RetryDelay)
}

// exhaust gives up on res. It reports at most once per operation.
func (o *Orchestrator) exhaust(res *ManagedResource, cmd *model.Command, cause error) {
	res.retry = nil
	res.retryAt = time.Time{}
	if res.Exhausted {
		return
	}
	res.Exhausted = true
	err := &model.RetryExhausted{ResourceID: res.ID, Kind: cmd.Kind, Attempts: res.Retries, Last: cause}
	res.LastError = err
	o.emit(model.Event{
		Type:       model.EventRetryExhausted,
		ResourceID: res.ID,
		Kind:       cmd.Kind,
		Count:      res.Retries,
		Err:        err,
	})
}

func (o *Orchestrator) fire(ctx context.Context, res *ManagedResource, event string, args ...any) {
	if err := res.lifecycle.Fire(ctx, event, args...); err != nil {
		o.log.Warn("Lifecycle event rejected", "resource", res.ID, "event", event, "state", res.State(), "err", err)
	}
}

func (o *Orchestrator) handleTick(ctx context.Context, now time.Time) {
	o.expire(ctx, now)

	ids := o.sortedIDs()
	for _, id := range ids {
		res, ok := o.resources[id]
		if !ok {
			continue
		}

		if o.connected && len(res.pending) > 0 {
			o.flush(ctx, res, now)
		}

		if res.retry != nil && !now.Before(res.retryAt) && len(res.outstanding) == 0 {
			cmd := res.retry
			res.retry = nil
			res.retryAt = time.Time{}
			o.redo(ctx, res, cmd, now)
		}

		if o.cfg.HealthCheckInterval > 0 && o.connected && res.State() == model.ResourceStateReady &&
			res.idle() && now.Sub(res.lastHealthCheck) >= o.cfg.HealthCheckInterval {
			res.lastHealthCheck = now
			o.issue(ctx, res, model.NewCommandAt(res.ID, model.CommandKindHealthCheck, nil, now))
		}
	}
}

// expire retries every command past its deadline, or fails its resource
// once the retry budget is spent.
func (o *Orchestrator) expire(ctx context.Context, now time.Time) {
	var expired []*entry
	for _, e := range o.outstanding {
		if !now.Before(e.deadline) {
			expired = append(expired, e)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].cmd.IssuedAt.Before(expired[j].cmd.IssuedAt) })

	for _, e := range expired {
		res := o.resources[e.cmd.ResourceID]
		o.untrack(e.cmd.CorrelationID, model.DiscardTimedOut)
		res.Retries++
		res.UpdatedAt = now

		if res.Retries < o.cfg.RetryLimit {
			o.log.Info("Command timed out, retrying", "resource", res.ID, "kind", e.cmd.Kind, "correlationID", e.cmd.CorrelationID, "attempt", res.Retries)
			o.issue(ctx, res, e.cmd.Reissue(now))
			continue
		}

		cause := fmt.Errorf("no result for %s within %s", e.cmd.Kind, o.cfg.CommandTimeout)
		res.LastError = cause
		o.fire(ctx, res, EventFail)
		o.exhaust(res, e.cmd, cause)
	}
}

// redo re-issues cmd for a failed resource, moving it back to the matching
// in-progress state.
func (o *Orchestrator) redo(ctx context.Context, res *ManagedResource, cmd *model.Command, now time.Time) {
	next := cmd.Reissue(now)
	if event, ok := activeEvent(cmd.Kind); ok {
		if err := res.lifecycle.Fire(ctx, event, next); err != nil {
			o.log.Warn("Retry abandoned", "resource", res.ID, "kind", cmd.Kind, "err", err)
			return
		}
	}
	o.log.Info("Retrying failed command", "resource", res.ID, "kind", cmd.Kind, "attempt", res.Retries+1)
	o.issue(ctx, res, next)
}

// issue registers cmd as outstanding and hands it to the transport. Without
// a connection it is parked until the next one.
func (o *Orchestrator) issue(ctx context.Context, res *ManagedResource, cmd *model.Command) {
	res.UpdatedAt = cmd.IssuedAt
	if !o.connected {
		o.park(res, cmd)
		return
	}

	o.track(res, cmd)
	err := o.transport.Send(ctx, cmd)
	if err == nil {
		o.emit(model.Event{
			Type:          model.EventCommandIssued,
			ResourceID:    res.ID,
			CorrelationID: cmd.CorrelationID,
			Kind:          cmd.Kind,
			Epoch:         o.epoch,
		})
		return
	}

	var se *model.SendError
	if errors.As(err, &se) {
		o.log.Warn("Send failed, queued for retry", "resource", res.ID, "correlationID", cmd.CorrelationID, "err", err)
		o.untrack(cmd.CorrelationID, model.DiscardConnectionLost)
		o.park(res, cmd)
		return
	}

	o.untrack(cmd.CorrelationID, model.DiscardResolved)
	o.log.Error(err, "Command cannot be sent", "resource", res.ID, "kind", cmd.Kind)
	res.LastError = err
	o.fire(ctx, res, EventFail)
	o.exhaust(res, cmd, err)
}

func (o *Orchestrator) park(res *ManagedResource, cmd *model.Command) {
	o.retired.Add(cmd.CorrelationID, model.DiscardConnectionLost)
	res.pending = append(res.pending, cmd)
}

// flush re-issues every parked command of res with a fresh correlation id.
func (o *Orchestrator) flush(ctx context.Context, res *ManagedResource, now time.Time) int {
	parked := res.pending
	res.pending = nil
	for _, cmd := range parked {
		o.issue(ctx, res, cmd.Reissue(now))
	}
	return len(parked)
}

func (o *Orchestrator) track(res *ManagedResource, cmd *model.Command) {
	if _, dup := o.outstanding[cmd.CorrelationID]; dup {
		// Correlation ids are never reused; a duplicate is a programming error.
		panic(fmt.Sprintf("correlation id %s issued twice", cmd.CorrelationID))
	}
	o.outstanding[cmd.CorrelationID] = &entry{cmd: cmd, deadline: cmd.IssuedAt.Add(o.cfg.CommandTimeout)}
	res.outstanding[cmd.CorrelationID] = cmd
}

// untrack retires id. Late results for it are discarded with reason.
func (o *Orchestrator) untrack(id string, reason model.DiscardReason) {
	e, ok := o.outstanding[id]
	if !ok {
		return
	}
	delete(o.outstanding, id)
	if res, ok := o.resources[e.cmd.ResourceID]; ok {
		delete(res.outstanding, id)
	}
	o.retired.Add(id, reason)
}

// supersede retires everything in flight or queued for res.
func (o *Orchestrator) supersede(res *ManagedResource) {
	for id := range res.outstanding {
		o.untrack(id, model.DiscardSuperseded)
	}
	for _, cmd := range res.pending {
		o.retired.Add(cmd.CorrelationID, model.DiscardSuperseded)
	}
	res.pending = nil
}

// collect forgets a terminated resource once nothing is left in flight.
func (o *Orchestrator) collect(res *ManagedResource) {
	if res.State().Terminal() && res.idle() {
		delete(o.resources, res.ID)
		o.log.Info("Resource released", "resource", res.ID)
	}
}

func (o *Orchestrator) sortedIDs() []string {
	ids := make([]string, 0, len(o.resources))
	for id := range o.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) transitionFunc(id string) TransitionFunc {
	return func(event string, from, to model.ResourceState) {
		o.emit(model.Event{Type: model.EventStateTransition, ResourceID: id, From: from, To: to})
	}
}
