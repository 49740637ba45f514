package quorum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/randalmurphal/quorum/config"
	"github.com/randalmurphal/quorum/consensus"
	"github.com/randalmurphal/quorum/memory"
	"github.com/randalmurphal/quorum/metering"
	"github.com/randalmurphal/quorum/notify"
	"github.com/randalmurphal/quorum/provider"
	"github.com/randalmurphal/quorum/task"
)

// DefaultCallTimeout bounds a single provider call when neither the
// engine nor the request sets one.
const DefaultCallTimeout = 2 * time.Minute

// Engine dispatches tasks to providers according to an assessment and
// reconciles multi-provider responses through consensus. An Engine is
// safe for concurrent use; per-orchestration state lives on the stack.
type Engine struct {
	registry      *provider.Registry
	evaluator     consensus.Evaluator
	consensusMode consensus.Mode

	defaultProvider string
	coordinator     string
	callTimeout     time.Duration

	store     memory.Store
	namespace string
	guard     metering.Guard
	notifier  notify.Notifier
	log       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConsensusMode sets the mode used to reconcile multi-provider
// responses. Default is majority.
func WithConsensusMode(mode consensus.Mode) Option {
	return func(e *Engine) { e.consensusMode = mode }
}

// WithFaultTolerance sets the assumed faulty fraction for byzantine
// consensus and pool expansion.
func WithFaultTolerance(ft float64) Option {
	return func(e *Engine) { e.evaluator.FaultTolerance = ft }
}

// WithDefaultProvider names the provider used when an assessment
// carries no recommendations.
func WithDefaultProvider(name string) Option {
	return func(e *Engine) { e.defaultProvider = name }
}

// WithCoordinator names the provider consulted first under the
// hierarchical strategy.
func WithCoordinator(name string) Option {
	return func(e *Engine) { e.coordinator = name }
}

// WithCallTimeout bounds individual provider calls. A per-request
// constraint still takes precedence.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) { e.callTimeout = d }
}

// WithMemory attaches a result store. Requests that carry a truthy
// "storeResult" metadata key get their responses saved under the
// namespace after the orchestration settles.
func WithMemory(store memory.Store, namespace string) Option {
	return func(e *Engine) {
		e.store = store
		e.namespace = namespace
	}
}

// WithGuard attaches a metering guard consulted before every
// orchestration.
func WithGuard(g metering.Guard) Option {
	return func(e *Engine) { e.guard = g }
}

// WithNotifier attaches a lifecycle event notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an engine over the given registry.
func NewEngine(registry *provider.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:      registry,
		consensusMode: consensus.Majority,
		callTimeout:   DefaultCallTimeout,
		namespace:     "results",
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig builds an engine from resolved configuration: consensus
// mode and fault tolerance, call timeout, default and coordinator
// providers, a file-backed memory store under MemoryDir and a budget
// guard when any limit is set.
func FromConfig(cfg config.Config, registry *provider.Registry, opts ...Option) (*Engine, error) {
	base := []Option{
		WithConsensusMode(consensus.Mode(cfg.ConsensusMode)),
		WithFaultTolerance(cfg.FaultTolerance),
		WithDefaultProvider(cfg.DefaultProvider),
		WithCoordinator(cfg.Coordinator),
	}
	if cfg.CallTimeout > 0 {
		base = append(base, WithCallTimeout(cfg.CallTimeout))
	}
	if cfg.MemoryDir != "" {
		store, err := memory.NewFileStore(cfg.MemoryDir)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		base = append(base, WithMemory(store, "results"))
	}
	if cfg.Limits.MaxCalls > 0 || cfg.Limits.MaxTokens > 0 || cfg.Limits.MaxCost > 0 {
		base = append(base, WithGuard(metering.NewBudget(cfg.Limits.MaxCalls, cfg.Limits.MaxTokens, cfg.Limits.MaxCost)))
	}
	return NewEngine(registry, append(base, opts...)...), nil
}

// Execute runs one orchestration: it checks limits, dispatches the
// request per the assessment's approach, reconciles the responses and
// returns the aggregate result. The returned Result is non-nil exactly
// when the error is nil.
func (e *Engine) Execute(ctx context.Context, req task.Request, plan Assessment) (*Result, error) {
	if e.guard != nil {
		if err := e.guard.Check(req); err != nil {
			e.log.Warn("dispatch blocked by limits", "task", req.ID, "error", err)
			e.emit(ctx, notify.Event{
				Type:     notify.EventOrchestrationFailed,
				TaskID:   req.ID,
				Strategy: string(plan.Approach),
				Message:  err.Error(),
				Severity: notify.SeverityError,
			})
			return nil, err
		}
	}

	start := time.Now()
	e.log.Info("orchestration started",
		"task", req.ID,
		"type", req.Type,
		"strategy", plan.Approach)
	e.emit(ctx, notify.Event{
		Type:     notify.EventOrchestrationStarted,
		TaskID:   req.ID,
		Strategy: string(plan.Approach),
		Message:  req.Description,
		Severity: notify.SeverityInfo,
	})

	res, err := e.dispatch(ctx, req, plan)
	if err != nil {
		if e.guard != nil {
			e.guard.Release()
		}
		e.log.Error("orchestration failed", "task", req.ID, "error", err)
		e.emit(ctx, notify.Event{
			Type:     notify.EventOrchestrationFailed,
			TaskID:   req.ID,
			Strategy: string(plan.Approach),
			Message:  err.Error(),
			Severity: notify.SeverityError,
		})
		return nil, err
	}

	e.finalize(ctx, req, res, start)
	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, req task.Request, plan Assessment) (*Result, error) {
	// A sequential plan is complete with phases alone; the
	// recommendation list only backs the other strategies.
	if plan.Approach == Sequential {
		if len(plan.Phases) == 0 && len(plan.Recommendations) == 0 {
			if e.defaultProvider == "" {
				return nil, ErrEmptyAssessment
			}
			plan.Phases = []Phase{{Name: e.defaultProvider, Provider: e.defaultProvider}}
		}
		return e.runSequential(ctx, req, plan)
	}

	names := plan.Providers()
	if len(names) == 0 {
		if e.defaultProvider == "" {
			return nil, ErrEmptyAssessment
		}
		names = []string{e.defaultProvider}
	}

	switch plan.Approach {
	case SingleProvider:
		return e.runSingle(ctx, req, names[0], plan)
	case Parallel:
		return e.runParallel(ctx, req, names, plan.Approach, nil)
	case Hierarchical:
		return e.runHierarchical(ctx, req, names, plan)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, plan.Approach)
	}
}

// runSingle dispatches to exactly one provider.
func (e *Engine) runSingle(ctx context.Context, req task.Request, name string, plan Assessment) (*Result, error) {
	adapter, err := e.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, name)
	}

	resp := e.call(ctx, adapter, req)
	return &Result{
		TaskID:       req.ID,
		Success:      resp.Succeeded(),
		Results:      []task.Response{resp},
		StrategyUsed: plan.Approach,
	}, nil
}

// runParallel fans the same request out to a pool of providers and
// collects responses in completion order. Providers missing from the
// registry are skipped rather than synthesized into failures.
func (e *Engine) runParallel(ctx context.Context, req task.Request, names []string, used Approach, meta *ResultMetadata) (*Result, error) {
	adapters := e.pool(names, req)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("%w: none of %v registered", ErrProviderUnavailable, names)
	}

	e.emit(ctx, notify.Event{
		Type:     notify.EventDispatchStarted,
		TaskID:   req.ID,
		Strategy: string(used),
		Message:  fmt.Sprintf("dispatching to %d providers", len(adapters)),
		Severity: notify.SeverityInfo,
	})

	results := make(chan task.Response, len(adapters))
	for _, adapter := range adapters {
		go func(a provider.Adapter) {
			results <- e.call(ctx, a, req)
		}(adapter)
	}

	responses := make([]task.Response, 0, len(adapters))
	for range adapters {
		resp := <-results
		responses = append(responses, resp)
		eventType := notify.EventDispatchCompleted
		if !resp.Succeeded() {
			eventType = notify.EventDispatchFailed
		}
		e.emit(ctx, notify.Event{
			Type:     eventType,
			TaskID:   req.ID,
			Strategy: string(used),
			Provider: resp.Provider.Name,
			Message:  resp.Result.Reasoning,
			Severity: severityFor(resp),
		})
	}

	res := &Result{
		TaskID:       req.ID,
		Results:      responses,
		StrategyUsed: used,
	}
	if meta != nil {
		res.Metadata = *meta
	}
	e.reconcile(ctx, req, res)
	return res, nil
}

// runSequential executes the plan's phases in order. Each phase sees
// the accumulated output of the successful phases before it; a failed
// phase is recorded and skipped in the context chain, never aborting
// the pipeline.
func (e *Engine) runSequential(ctx context.Context, req task.Request, plan Assessment) (*Result, error) {
	phases := plan.Phases
	if len(phases) == 0 {
		for _, rec := range plan.Recommendations {
			phases = append(phases, Phase{Name: rec.Provider, Provider: rec.Provider})
		}
	}

	res := &Result{
		TaskID:       req.ID,
		StrategyUsed: Sequential,
	}

	accumulated := req.Context
	for _, phase := range phases {
		adapter, err := e.registry.Get(phase.Provider)
		if err != nil {
			e.log.Warn("phase provider not registered, skipping",
				"task", req.ID, "phase", phase.Name, "provider", phase.Provider)
			continue
		}

		phaseReq := req.Derive(phase.Name, phase.Description, accumulated)
		resp := e.call(ctx, adapter, phaseReq)
		res.Results = append(res.Results, resp)
		res.Metadata.PhaseNames = append(res.Metadata.PhaseNames, phase.Name)

		if resp.Succeeded() {
			if accumulated != "" {
				accumulated += "\n\n"
			}
			accumulated += fmt.Sprintf("## %s\n\n%s", phase.Name, resp.Result.Content)
		}

		e.emit(ctx, notify.Event{
			Type:     notify.EventPhaseCompleted,
			TaskID:   req.ID,
			Strategy: string(Sequential),
			Provider: phase.Provider,
			Message:  fmt.Sprintf("phase %s: %s", phase.Name, resp.Status),
			Severity: severityFor(resp),
		})
	}

	if len(res.Results) == 0 {
		return nil, fmt.Errorf("%w: no phase provider registered", ErrProviderUnavailable)
	}

	// The pipeline stands or falls with its final phase: earlier
	// failures only thin the context the last phase worked from.
	res.Success = res.Results[len(res.Results)-1].Succeeded()
	e.attachValidation(res)
	return res, nil
}

// runHierarchical consults the coordinator provider first and fans its
// plan out to the workers. Without a usable coordinator the strategy
// degrades to parallel dispatch, recorded in the result metadata.
func (e *Engine) runHierarchical(ctx context.Context, req task.Request, names []string, plan Assessment) (*Result, error) {
	coordinator, err := e.coordinatorAdapter()
	if err != nil {
		e.log.Warn("hierarchical dispatch degrading to parallel",
			"task", req.ID, "reason", err)
		meta := &ResultMetadata{DegradedMode: string(Parallel)}
		return e.runParallel(ctx, req, names, Hierarchical, meta)
	}

	coordReq := req.Derive("plan", fmt.Sprintf("Plan how to solve this task and delegate sub-work:\n\n%s", req.Description), req.Context)
	coordResp := e.call(ctx, coordinator, coordReq)
	if !coordResp.Succeeded() {
		e.log.Warn("coordinator failed, degrading to parallel",
			"task", req.ID, "coordinator", coordinator.Name(),
			"reason", coordResp.Result.Reasoning)
		meta := &ResultMetadata{DegradedMode: string(Parallel)}
		res, err := e.runParallel(ctx, req, names, Hierarchical, meta)
		if err != nil {
			return nil, err
		}
		res.Results = append([]task.Response{coordResp}, res.Results...)
		return res, nil
	}

	workers := make([]string, 0, len(names))
	for _, name := range names {
		if name != coordinator.Name() {
			workers = append(workers, name)
		}
	}
	if len(workers) == 0 {
		workers = names
	}

	workerReq := req
	workerReq.Context = joinContext(req.Context, "## Coordinator Plan", coordResp.Result.Content)

	res, err := e.runParallel(ctx, workerReq, workers, Hierarchical, nil)
	if err != nil {
		return nil, err
	}
	res.TaskID = req.ID
	res.Results = append([]task.Response{coordResp}, res.Results...)
	return res, nil
}

// pool resolves the provider names to registered, eligible adapters
// and sizes the set per the agent-count policy, expanding it under
// byzantine consensus so the quorum survives the assumed fault rate.
func (e *Engine) pool(names []string, req task.Request) []provider.Adapter {
	adapters := make([]provider.Adapter, 0, len(names))
	for _, name := range names {
		adapter, err := e.registry.Get(name)
		if err != nil {
			e.log.Warn("provider not registered, skipping", "provider", name)
			continue
		}
		if !adapter.Ready() {
			e.log.Warn("provider not ready, skipping", "provider", name)
			continue
		}
		if !adapter.CanHandle(req.Type, req.Requirements) {
			e.log.Debug("provider cannot handle task, skipping",
				"provider", name, "type", req.Type)
			continue
		}
		adapters = append(adapters, adapter)
	}

	want := agentCount(req, len(adapters))
	if e.consensusMode == consensus.Byzantine && want >= 3 {
		ft := e.evaluator.FaultTolerance
		if ft == 0 {
			ft = consensus.DefaultFaultTolerance
		}
		if ft < 1 {
			expanded := int(math.Ceil(float64(want) / (1 - ft)))
			if expanded > want {
				want = expanded
			}
		}
	}
	if want > len(adapters) {
		want = len(adapters)
	}
	return adapters[:want]
}

// agentCount is the dispatch width policy: enterprise quality gets
// three providers, everything else two, bounded by availability.
func agentCount(req task.Request, available int) int {
	n := 2
	if req.Requirements != nil && req.Requirements.Quality == task.QualityEnterprise {
		n = 3
	}
	if n > available {
		n = available
	}
	return n
}

// call runs one adapter invocation bounded by the per-call timeout.
// The adapter contract says Execute never errors; call additionally
// guarantees a terminal response even if the adapter panics or
// overruns its deadline.
func (e *Engine) call(ctx context.Context, adapter provider.Adapter, req task.Request) task.Response {
	timeout := req.Timeout(e.callTimeout)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan task.Response, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- task.FailureResponse(req.ID, adapter.Name(),
					fmt.Sprintf("provider panicked: %v", r), time.Since(start))
			}
		}()
		done <- adapter.Execute(callCtx, req)
	}()

	select {
	case resp := <-done:
		return resp
	case <-callCtx.Done():
		reason := fmt.Sprintf("timed out after %v", timeout)
		if errors.Is(callCtx.Err(), context.Canceled) {
			reason = "canceled"
		}
		return task.FailureResponse(req.ID, adapter.Name(), reason, time.Since(start))
	}
}

// reconcile runs consensus over the response set when more than one
// provider answered, and derives the aggregate success flag.
func (e *Engine) reconcile(ctx context.Context, req task.Request, res *Result) {
	successes := 0
	for _, resp := range res.Results {
		if resp.Succeeded() {
			successes++
		}
	}
	res.Success = successes > 0

	if len(res.Results) >= 2 {
		cres, err := e.evaluator.Evaluate(e.consensusMode, res.Results)
		if err != nil {
			e.log.Error("consensus evaluation failed", "task", req.ID, "error", err)
		} else {
			res.Consensus = &cres
			e.emit(ctx, notify.Event{
				Type:     notify.EventConsensusReached,
				TaskID:   req.ID,
				Strategy: string(res.StrategyUsed),
				Message:  fmt.Sprintf("%s consensus at %.2f confidence", e.consensusMode, cres.Confidence),
				Severity: notify.SeverityInfo,
				Metadata: map[string]any{
					"participants": cres.ParticipantCount,
					"faults":       cres.FaultCount,
				},
			})
		}
	}
	e.attachValidation(res)
}

// attachValidation computes cross-provider agreement for
// multi-response results.
func (e *Engine) attachValidation(res *Result) {
	if len(res.Results) < 2 {
		return
	}
	successes := 0
	confidence := 0.0
	for _, resp := range res.Results {
		if resp.Succeeded() {
			successes++
			confidence += resp.Result.Confidence
		}
	}
	v := &Validation{
		Agreement: float64(successes) / float64(len(res.Results)),
	}
	if successes > 0 {
		v.QualityScore = confidence / float64(successes)
	}
	res.Validation = v
}

// finalize aggregates performance, persists results, feeds the guard
// and emits the completion event.
func (e *Engine) finalize(ctx context.Context, req task.Request, res *Result, start time.Time) {
	perf := AggregatePerformance{TotalDuration: time.Since(start)}
	for _, resp := range res.Results {
		perf.ProvidersUsed = append(perf.ProvidersUsed, resp.Provider.Name)
		perf.TokensUsed += resp.Performance.TokensUsed
		perf.TotalCost += resp.Performance.Cost
	}
	res.Performance = perf

	if e.guard != nil {
		e.guard.Record(perf.TokensUsed, perf.TotalCost)
	}

	if e.store != nil && wantsMemory(req) {
		key := memory.Key{Namespace: e.namespace, SessionID: sessionID(req)}
		stored := true
		for _, resp := range res.Results {
			rec := memory.Record{Request: req, Response: resp, StoredAt: time.Now()}
			if err := e.store.Save(ctx, key, rec); err != nil {
				e.log.Error("memory save failed", "task", req.ID, "error", err)
				stored = false
				break
			}
		}
		res.Metadata.MemoryUsed = stored
	}

	severity := notify.SeverityInfo
	eventType := notify.EventOrchestrationCompleted
	if !res.Success {
		severity = notify.SeverityWarning
		eventType = notify.EventOrchestrationFailed
	}
	e.log.Info("orchestration completed",
		"task", req.ID,
		"success", res.Success,
		"providers", len(res.Results),
		"duration", perf.TotalDuration,
		"tokens", perf.TokensUsed)
	e.emit(ctx, notify.Event{
		Type:     eventType,
		TaskID:   req.ID,
		Strategy: string(res.StrategyUsed),
		Message:  fmt.Sprintf("completed with %d responses", len(res.Results)),
		Severity: severity,
		Metadata: map[string]any{
			"tokens": perf.TokensUsed,
			"cost":   perf.TotalCost,
		},
	})
}

// History loads prior results for the request's session from the
// memory store.
func (e *Engine) History(ctx context.Context, req task.Request) ([]memory.Record, error) {
	if e.store == nil {
		return nil, memory.ErrNotFound
	}
	return e.store.Load(ctx, memory.Key{Namespace: e.namespace, SessionID: sessionID(req)})
}

func (e *Engine) coordinatorAdapter() (provider.Adapter, error) {
	if e.coordinator == "" {
		return nil, fmt.Errorf("no coordinator configured")
	}
	adapter, err := e.registry.Get(e.coordinator)
	if err != nil {
		return nil, err
	}
	if !adapter.Ready() {
		return nil, fmt.Errorf("coordinator %s not ready", e.coordinator)
	}
	return adapter, nil
}

// emit delivers an event to the configured notifier, falling back to
// one carried on the context. Notification failures are logged and
// swallowed.
func (e *Engine) emit(ctx context.Context, event notify.Event) {
	n := e.notifier
	if n == nil {
		n = notify.NotifierFromContext(ctx)
	}
	if n == nil {
		return
	}
	event.Timestamp = time.Now()
	if err := n.Notify(ctx, event); err != nil {
		e.log.Warn("notification failed", "event", event.Type, "error", err)
	}
}

func severityFor(resp task.Response) string {
	if resp.Succeeded() {
		return notify.SeverityInfo
	}
	return notify.SeverityWarning
}

// wantsMemory reports whether the request asked for its results to be
// persisted ("storeResult" metadata key).
func wantsMemory(req task.Request) bool {
	v, err := strconv.ParseBool(req.Meta("storeResult"))
	return err == nil && v
}

func sessionID(req task.Request) string {
	if s := req.Meta("session"); s != "" {
		return s
	}
	return req.ID
}

func joinContext(existing, heading, content string) string {
	section := fmt.Sprintf("%s\n\n%s", heading, content)
	if existing == "" {
		return section
	}
	return existing + "\n\n" + section
}
