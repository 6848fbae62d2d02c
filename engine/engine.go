package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/ledger"
	mw "github.com/xraph/aegis/middleware"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/observability"
	"github.com/xraph/aegis/pacing"
	"github.com/xraph/aegis/sequencer"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/store"
	"github.com/xraph/aegis/store/memory"
	"github.com/xraph/aegis/workflow"
)

// instrumentationName is the OTel scope used for engine-built middleware.
const instrumentationName = "github.com/xraph/aegis"

// Engine is the control surface of the onboarding service.
type Engine struct {
	config   aegis.Config
	def      *workflow.Definition
	handlers *step.Registry
	store    store.Store
	registry *Registry
	seq      *sequencer.Sequencer
	fanout   *notify.Fanout
	ports    []namedPort
	mws      []mw.Middleware
	pacing   pacing.Strategy
	logger   *slog.Logger

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu     sync.RWMutex
	closed bool
}

type namedPort struct {
	name string
	port notify.Port
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the engine configuration.
func WithConfig(cfg aegis.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithStore sets the record store. Defaults to store/memory.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithNotifier adds a notification port under name.
func WithNotifier(name string, p notify.Port) Option {
	return func(e *Engine) { e.ports = append(e.ports, namedPort{name: name, port: p}) }
}

// WithDefinition replaces the default onboarding workflow.
func WithDefinition(def *workflow.Definition) Option {
	return func(e *Engine) { e.def = def }
}

// WithMiddleware adds middleware to every handler invocation.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m...) }
}

// WithPacing overrides the inter-step pacing derived from the config.
func WithPacing(p pacing.Strategy) Option {
	return func(e *Engine) { e.pacing = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracerProvider sets a custom OTel TracerProvider for step tracing.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for step metrics and
// the observability port.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an Engine running the default onboarding workflow with the
// given handlers. Every step kind of the workflow must have a handler.
func New(handlers *step.Registry, opts ...Option) (*Engine, error) {
	if handlers == nil {
		return nil, errors.New("aegis: step registry is required")
	}

	e := &Engine{
		config:   aegis.DefaultConfig(),
		def:      workflow.DefaultOnboarding(),
		handlers: handlers,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := handlers.Validate(e.def); err != nil {
		return nil, fmt.Errorf("aegis: workflow %q: %w", e.def.Name(), err)
	}

	if e.store == nil {
		e.store = memory.New()
	}
	if e.pacing == nil {
		e.pacing = pacing.None{}
		if e.config.PacingDelay > 0 {
			e.pacing = pacing.NewConstant(e.config.PacingDelay)
		}
	}

	e.fanout = notify.NewFanout(e.logger)
	for _, np := range e.ports {
		e.fanout.Add(np.name, np.port)
	}

	// Observability port (custom provider or global).
	if e.meterProvider != nil {
		e.fanout.Add("metrics", observability.NewMetricsWithMeter(
			e.meterProvider.Meter(instrumentationName+"/observability")))
	} else {
		e.fanout.Add("metrics", observability.NewMetrics())
	}

	e.registry = NewRegistry(e.store, e.config.LedgerTTL, e.logger)

	e.seq = sequencer.New(handlers,
		sequencer.WithNotifier(e.fanout),
		sequencer.WithMiddleware(e.middleware()...),
		sequencer.WithPacing(e.pacing),
		sequencer.WithStepTimeout(e.config.StepTimeout),
		sequencer.WithObserver(e.registry.Persist),
		sequencer.WithLogger(e.logger),
	)

	e.registry.StartReaper(e.config.SweepInterval)
	return e, nil
}

// middleware builds the default stack: tracing → metrics → logging, then
// the caller's middleware. The sequencer adds recover and timeout inside.
func (e *Engine) middleware() []mw.Middleware {
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	all := make([]mw.Middleware, 0, 3+len(e.mws))
	all = append(all, tracingMw, metricsMw, mw.Logging(e.logger))
	all = append(all, e.mws...)
	return all
}

// ──────────────────────────────────────────────────
// Control surface
// ──────────────────────────────────────────────────

// Start validates in, registers the client and starts its onboarding run.
// It returns as soon as the run is spawned, with the ledger as created:
// in progress, at zero percent, every step pending.
func (e *Engine) Start(ctx context.Context, in client.Input) (*client.Client, ledger.Ledger, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ledger.Ledger{}, aegis.ErrShutdown
	}

	c, err := client.New(in)
	if err != nil {
		return nil, ledger.Ledger{}, err
	}
	c = c.WithStatus(client.StatusInProgress)

	run, err := e.seq.Start(ctx, c, e.def)
	if err != nil {
		return nil, ledger.Ledger{}, err
	}
	e.registry.Track(run)

	return c, run.Initial(), nil
}

// Status returns a snapshot of the client's ledger.
func (e *Engine) Status(ctx context.Context, clientID id.ClientID) (ledger.Ledger, error) {
	if run, ok := e.registry.Run(clientID); ok {
		return run.Snapshot(), nil
	}
	rec, err := e.store.Get(ctx, clientID)
	if err != nil {
		return ledger.Ledger{}, err
	}
	return rec.Ledger, nil
}

// Client returns the client with its current status.
func (e *Engine) Client(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	if run, ok := e.registry.Run(clientID); ok {
		c := clientFor(run.Client(), run.Snapshot())
		return &c, nil
	}
	rec, err := e.store.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &rec.Client, nil
}

// ListClients returns clients newest first and the total match count.
func (e *Engine) ListClients(ctx context.Context, opts store.ListOpts) ([]client.Client, int, error) {
	recs, total, err := e.store.List(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	out := make([]client.Client, len(recs))
	for i, r := range recs {
		out[i] = r.Client
	}
	return out, total, nil
}

// Decide applies an approval decision to a parked run.
func (e *Engine) Decide(ctx context.Context, clientID id.ClientID, d workflow.Decision) error {
	if run, ok := e.registry.Run(clientID); ok {
		return run.Decide(ctx, d)
	}

	rec, err := e.store.Get(ctx, clientID)
	if err != nil {
		return err
	}
	st, _, ok := rec.Ledger.Step(d.StepID)
	if !ok {
		return &aegis.NotFoundError{Kind: "step", ID: d.StepID}
	}
	return &aegis.InvalidStateError{ClientID: clientID.String(), StepID: d.StepID, State: string(st.Status)}
}

// Cancel stops a live run at its next safe point.
func (e *Engine) Cancel(ctx context.Context, clientID id.ClientID, reason string) error {
	if run, ok := e.registry.Run(clientID); ok {
		return run.Cancel(reason)
	}

	rec, err := e.store.Get(ctx, clientID)
	if err != nil {
		return err
	}
	return &aegis.InvalidStateError{ClientID: clientID.String(), State: string(rec.Ledger.Status)}
}

// Delete removes the client and its ledger. A live run is cancelled.
func (e *Engine) Delete(ctx context.Context, clientID id.ClientID) error {
	run, live := e.registry.Forget(clientID)
	if live {
		_ = run.Cancel("client deleted")
	}

	err := e.store.Delete(ctx, clientID)
	if err != nil && !(live && errors.Is(err, aegis.ErrNotFound)) {
		return err
	}

	e.logger.Info("client deleted", slog.String("client_id", clientID.String()))
	return nil
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error { return e.store.Ping(ctx) }

// Shutdown stops accepting new clients, cancels every live run and waits
// for the runs to finish or ctx to expire, then closes the store.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	runs := e.registry.Runs()
	for _, run := range runs {
		_ = run.Cancel("shutdown")
	}
	e.logger.Info("engine shutting down", slog.Int("live_runs", len(runs)))

	waitErr := e.registry.Wait(ctx)
	e.registry.StopReaper()

	if err := e.store.Close(); err != nil {
		return errors.Join(waitErr, fmt.Errorf("close store: %w", err))
	}
	return waitErr
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns the engine configuration.
func (e *Engine) Config() aegis.Config { return e.config }

// Definition returns the workflow every client runs.
func (e *Engine) Definition() *workflow.Definition { return e.def }

// Handlers returns the step handler registry.
func (e *Engine) Handlers() *step.Registry { return e.handlers }

// Registry returns the process registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Notifier returns the fan-out port every run notifies through. Ports added
// after New receive notifications from then on.
func (e *Engine) Notifier() *notify.Fanout { return e.fanout }
