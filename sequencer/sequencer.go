package sequencer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/ledger"
	"github.com/xraph/aegis/middleware"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/pacing"
	"github.com/xraph/aegis/step"
	"github.com/xraph/aegis/workflow"
)

// Observer is called with a fresh snapshot after every ledger transition,
// in transition order. It runs on the goroutine that made the change and
// must not block for long.
type Observer func(ctx context.Context, c *client.Client, snap ledger.Ledger)

// Sequencer starts runs. It is safe for concurrent use; runs share nothing
// but the Sequencer's configuration.
type Sequencer struct {
	handlers    *step.Registry
	mws         []middleware.Middleware
	notifier    notify.Port
	pacing      pacing.Strategy
	stepTimeout time.Duration
	observers   []Observer
	logger      *slog.Logger
	clock       func() time.Time
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithNotifier sets the port every notification is delivered to.
func WithNotifier(p notify.Port) Option {
	return func(s *Sequencer) { s.notifier = p }
}

// WithMiddleware appends middleware to the handler chain. Middleware added
// here wrap the built-in recover and timeout middleware.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Sequencer) { s.mws = append(s.mws, mws...) }
}

// WithPacing sets the delay strategy applied before every step but the
// first.
func WithPacing(p pacing.Strategy) Option {
	return func(s *Sequencer) { s.pacing = p }
}

// WithStepTimeout bounds every handler invocation. Zero disables it.
func WithStepTimeout(d time.Duration) Option {
	return func(s *Sequencer) { s.stepTimeout = d }
}

// WithObserver registers a callback that receives ledger snapshots.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) { s.observers = append(s.observers, o) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.clock = now }
}

// New creates a Sequencer that resolves handlers from handlers.
func New(handlers *step.Registry, opts ...Option) *Sequencer {
	s := &Sequencer{
		handlers: handlers,
		notifier: notify.Discard,
		pacing:   pacing.None{},
		logger:   slog.Default(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the ledger for c, spawns the run and returns its handle
// immediately. The run outlives ctx: only its values are inherited, and
// the run stops through Cancel.
func (s *Sequencer) Start(ctx context.Context, c *client.Client, def *workflow.Definition) (*Run, error) {
	if c == nil || c.ID.IsNil() {
		return nil, errors.New("sequencer: client with an id is required")
	}
	if def == nil || def.Len() == 0 {
		return nil, errors.New("sequencer: workflow definition is required")
	}

	r := newRun(s, ctx, c, def)

	s.logger.Info("onboarding started",
		slog.String("client_id", c.ID.String()),
		slog.String("workflow", def.Name()),
		slog.Int("steps", def.Len()),
	)

	r.initial = r.ledger.Snapshot()
	r.observe(r.ledger.Snapshot())
	go r.execute()

	return r, nil
}

// chain builds the handler chain around h. The caller's middleware are
// outermost, then panic recovery, then the step deadline.
func (s *Sequencer) chain(h step.Handler) step.Handler {
	mws := make([]middleware.Middleware, 0, len(s.mws)+2)
	mws = append(mws, s.mws...)
	mws = append(mws, middleware.Recover(s.logger), middleware.Timeout(s.stepTimeout, s.logger))
	return middleware.Wrap(h, mws...)
}
