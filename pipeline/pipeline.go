package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sparesparrow/ai-servis/config"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/intent"
	"github.com/sparesparrow/ai-servis/telemetry"
)

// maxCommandTextLength bounds command text accepted by Submit (spec.md
// §4.5 step 1: "non-empty, <= configured length").
const maxCommandTextLength = 4096

// noFollowUpContextMessage is the exact response a follow_up command
// produces when the session has no last_intent to substitute (spec.md §8
// scenario 6).
const noFollowUpContextMessage = "I don't have context for a follow-up. Please be more specific."

// Dispatcher resolves the service/tool named by an intent schema and
// invokes it, returning the raw result. Implemented by the orchestrator,
// which owns the service registry and the rpc client pool (spec.md §4.5
// step 6, §4.6).
type Dispatcher interface {
	Dispatch(ctx context.Context, schema intent.Schema, params map[string]any) (any, error)
}

// SessionState is the subset of session data the pipeline needs to resolve
// follow_up intents (spec.md §4.5 "Follow-up").
type SessionState interface {
	LastIntent(sessionID string) (i intent.Intent, params map[string]any, ok bool)
	SetLastIntent(sessionID string, i intent.Intent, params map[string]any)
}

// Pipeline wires together the queue, worker pool, classifier, dispatcher,
// cache, and metrics (spec.md §4.5).
type Pipeline struct {
	queue    *Queue
	cache    *ResultCache
	metrics  *Metrics
	classifier *intent.Registry
	dispatcher Dispatcher
	sessions   SessionState

	defaultTimeout time.Duration
	workerCount    int

	logger telemetry.Logger

	mu        sync.Mutex
	inflight  map[string]context.CancelFunc
	startedAt map[string]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithSessionState attaches the follow-up resolution collaborator.
func WithSessionState(s SessionState) Option { return func(p *Pipeline) { p.sessions = s } }

// New constructs a Pipeline from a config.Store, an intent.Registry, and a
// Dispatcher.
func New(cfg *config.Store, classifier *intent.Registry, dispatcher Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		queue:          NewQueue(cfg.Int("max_queue_size", config.DefaultMaxQueueSize)),
		cache:          NewResultCache(cfg.Int("cache_size", config.DefaultCacheSize), cfg.Duration("cache_ttl", config.DefaultCacheTTL)),
		metrics:        NewMetrics(),
		classifier:     classifier,
		dispatcher:     dispatcher,
		defaultTimeout: cfg.Duration("command_timeout", config.DefaultCommandTimeout),
		workerCount:    cfg.Int("worker_count", config.DefaultWorkerCount),
		logger:         telemetry.NewNoopLogger(),
		inflight:       make(map[string]context.CancelFunc),
		startedAt:      make(map[string]time.Time),
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates and enqueues a command (spec.md §4.5 step 1).
func (p *Pipeline) Submit(cmd Command) (CommandResult, error) {
	if cmd.Text == "" {
		return CommandResult{}, &envelope.Error{Code: envelope.ErrValidationError, Message: "command text must not be empty"}
	}
	if len(cmd.Text) > maxCommandTextLength {
		return CommandResult{}, &envelope.Error{Code: envelope.ErrValidationError, Message: fmt.Sprintf("command text exceeds %d characters", maxCommandTextLength)}
	}
	if cmd.Timeout <= 0 {
		cmd.Timeout = p.defaultTimeout
	}
	if cmd.SubmittedAt.IsZero() {
		cmd.SubmittedAt = time.Now()
	}
	if cached, ok := p.cache.Get(cmd.ID); ok {
		return cached, nil
	}
	if err := p.queue.Submit(cmd); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{CommandID: cmd.ID, State: StateQueued}, nil
}

// Run starts the worker pool and the timeout monitor; it blocks until ctx
// is cancelled or Stop is called.
func (p *Pipeline) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-p.stopCh:
		}
		close(done)
	}()

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, done)
	}

	p.wg.Add(1)
	go p.timeoutMonitor(done)

	p.wg.Add(1)
	go p.periodicSweep(done)

	<-done
	p.wg.Wait()
}

// Stop ends Run.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Pipeline) worker(ctx context.Context, done <-chan struct{}) {
	defer p.wg.Done()
	for {
		cmd, ok := p.queue.Dequeue(done)
		if !ok {
			return
		}
		p.process(ctx, cmd)
	}
}

func (p *Pipeline) process(ctx context.Context, cmd Command) {
	startedAt := time.Now()
	p.mu.Lock()
	p.startedAt[cmd.ID] = startedAt
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.startedAt, cmd.ID)
		delete(p.inflight, cmd.ID)
		p.mu.Unlock()
	}()

	classification := p.classifier.Classify(cmd.Text)
	classifiedIntent := classification.Intent
	confidence := classification.Confidence
	parameters := map[string]any{}

	schema, known := p.classifier.Schema(classifiedIntent)

	if classifiedIntent == intent.FollowUp {
		resolved := false
		if p.sessions != nil {
			if lastIntent, lastParams, ok := p.sessions.LastIntent(cmd.SessionID); ok {
				classifiedIntent = lastIntent
				confidence = 0.8
				schema, known = p.classifier.Schema(lastIntent)
				for k, v := range lastParams {
					parameters[k] = v
				}
				resolved = true
			}
		}
		if !resolved {
			// spec.md §4.5 "Follow-up": a follow_up with no prior session
			// intent answers directly, without resolving a schema or
			// dispatching to any service.
			result := CommandResult{
				CommandID: cmd.ID, State: StateCompleted, Success: true,
				Result: noFollowUpContextMessage, Intent: intent.FollowUp,
				Confidence: confidence, StartedAt: startedAt, EndedAt: time.Now(),
			}
			p.cache.Put(cmd.ID, result)
			p.metrics.RecordResult(result)
			p.maybeReset()
			return
		}
	}

	if known {
		extracted := intent.Extract(cmd.Text, schema)
		for k, v := range extracted {
			parameters[k] = v
		}
	}

	var result CommandResult
	if !known {
		result = CommandResult{
			CommandID: cmd.ID, State: StateFailed, Success: false,
			ErrorCode: string(envelope.ErrNotFound), Error: fmt.Sprintf("no schema registered for intent %q", classifiedIntent),
			Intent: classifiedIntent, StartedAt: startedAt, EndedAt: time.Now(),
		}
	} else {
		validated, verrs := intent.Validate(parameters, schema)
		if len(verrs) > 0 {
			result = CommandResult{
				CommandID: cmd.ID, State: StateFailed, Success: false,
				ErrorCode: string(envelope.ErrValidationError), Error: verrs[0].Error(),
				Intent: classifiedIntent, StartedAt: startedAt, EndedAt: time.Now(),
			}
		} else {
			validated["session_id"] = cmd.SessionID
			validated["user_id"] = cmd.UserID
			if cmd.UserInfo != nil {
				validated["user_info"] = cmd.UserInfo
			}

			dctx, cancel := context.WithTimeout(ctx, cmd.Timeout)
			p.mu.Lock()
			p.inflight[cmd.ID] = cancel
			p.mu.Unlock()

			out, err := p.dispatcher.Dispatch(dctx, schema, validated)
			cancel()

			switch {
			case dctx.Err() == context.DeadlineExceeded:
				result = CommandResult{CommandID: cmd.ID, State: StateTimeout, Success: false, ErrorCode: string(envelope.ErrTimeout), Error: "command timed out", Intent: classifiedIntent, StartedAt: startedAt, EndedAt: time.Now()}
			case dctx.Err() == context.Canceled:
				result = CommandResult{CommandID: cmd.ID, State: StateCancelled, Success: false, Intent: classifiedIntent, StartedAt: startedAt, EndedAt: time.Now()}
			case err != nil:
				result = CommandResult{CommandID: cmd.ID, State: StateFailed, Success: false, ErrorCode: errorCode(err), Error: err.Error(), Intent: classifiedIntent, StartedAt: startedAt, EndedAt: time.Now()}
			default:
				result = CommandResult{CommandID: cmd.ID, State: StateCompleted, Success: true, Result: out, Intent: classifiedIntent, StartedAt: startedAt, EndedAt: time.Now()}
				if p.sessions != nil {
					p.sessions.SetLastIntent(cmd.SessionID, classifiedIntent, validated)
				}
			}
		}
	}
	result.Confidence = confidence

	p.cache.Put(cmd.ID, result)
	p.metrics.RecordResult(result)
	p.maybeReset()
}

func errorCode(err error) string {
	var rpcErr *envelope.Error
	if errors.As(err, &rpcErr) {
		return string(rpcErr.Code)
	}
	return string(envelope.ErrHandlerError)
}

// Cancel removes a queued command or flags an in-flight one for
// cooperative cancellation (spec.md §4.5 "Cancellation").
func (p *Pipeline) Cancel(id string) bool {
	if p.queue.Remove(id) {
		result := CommandResult{CommandID: id, State: StateCancelled, EndedAt: time.Now()}
		p.cache.Put(id, result)
		p.metrics.RecordResult(result)
		return true
	}
	p.mu.Lock()
	cancel, ok := p.inflight[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Result returns a previously cached terminal result.
func (p *Pipeline) Result(id string) (CommandResult, bool) {
	return p.cache.Get(id)
}

// Metrics returns the live metrics collector.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

func (p *Pipeline) timeoutMonitor(done <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// Per-command context timeouts (set in process) already cancel
			// dispatch; this sweep exists to catch commands whose worker
			// goroutine has stalled well past its deadline.
			now := time.Now()
			p.mu.Lock()
			var stale []string
			for id, started := range p.startedAt {
				if now.Sub(started) > 10*p.defaultTimeout {
					stale = append(stale, id)
				}
			}
			p.mu.Unlock()
			for _, id := range stale {
				p.logger.Warn(context.Background(), "pipeline: command exceeded monitor grace period", "command_id", id)
			}
		}
	}
}

// periodicSweep evicts expired cache entries and resets metrics every
// config.DefaultCacheSweepInterval (one hour), independent of the
// total_commands threshold check in maybeReset (spec.md §4.5). The
// cache_sweep_interval config key is not read.
func (p *Pipeline) periodicSweep(done <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(config.DefaultCacheSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.cache.Sweep()
			p.metrics.Reset()
		}
	}
}

// maybeReset clears the cache and resets metrics early once the total command
// count exceeds config.DefaultMetricsResetCount (10 000, spec.md §4.5). The
// metrics_reset_count config key is not read.
func (p *Pipeline) maybeReset() {
	if p.metrics.Total() > config.DefaultMetricsResetCount {
		p.cache.Clear()
		p.metrics.Reset()
	}
}
