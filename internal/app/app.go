package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"macro-meal-engine/internal/chat"
	"macro-meal-engine/internal/config"
	"macro-meal-engine/internal/database"
	"macro-meal-engine/internal/events"
	"macro-meal-engine/internal/intake"
	"macro-meal-engine/internal/llm"
	"macro-meal-engine/internal/metrics"
	"macro-meal-engine/internal/orchestrator"
	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"
	"macro-meal-engine/internal/shared"
)

// Deps are the collaborators of an Engine. Only TextGen is required.
type Deps struct {
	TextGen   llm.TextGenerator
	Reader    chat.PageReader
	Usage     *metrics.Store
	Publisher *events.Publisher
	Scheduler orchestrator.Scheduler
	Logger    *slog.Logger
}

// Engine is one meal planning session: its state, the generation
// orchestrator and the chat, plus usage accounting.
type Engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *session.Store
	planner   *planner.Planner
	orch      *orchestrator.Orchestrator
	chat      *chat.Session
	collector *metrics.Collector
	usage     *metrics.Store
	recorder  shared.MetaRecorder

	unsubscribe []func()
	closers     []func() error
}

// NewEngine wires an engine from already built dependencies.
func NewEngine(cfg *config.Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     session.NewStore(session.NewState(planner.GenerationParameters{Calories: cfg.DefaultCalories})),
		planner:   planner.NewPlanner(deps.TextGen, planner.WithTemperatures(cfg.PlanTemperature, cfg.ChatTemperature)),
		collector: metrics.NewCollector(),
		usage:     deps.Usage,
	}

	recorders := metrics.Recorders{e.collector}
	if deps.Usage != nil {
		recorders = append(recorders, deps.Usage)
	}
	e.recorder = recorders

	e.unsubscribe = append(e.unsubscribe, e.store.Subscribe(e.collector.Observe))
	if deps.Publisher != nil {
		e.unsubscribe = append(e.unsubscribe, e.store.Subscribe(deps.Publisher.Observe))
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithWindow(cfg.DebounceWindow),
		orchestrator.WithRecorder(e.recorder),
		orchestrator.WithLogger(logger.With("component", "orchestrator")),
	}
	if deps.Scheduler != nil {
		orchOpts = append(orchOpts, orchestrator.WithScheduler(deps.Scheduler))
	}
	e.orch = orchestrator.New(e.store, e.planner, orchOpts...)

	chatOpts := []chat.Option{
		chat.WithRecorder(e.recorder),
		chat.WithLogger(logger.With("component", "chat")),
	}
	if deps.Reader != nil {
		chatOpts = append(chatOpts, chat.WithPageReader(deps.Reader))
	}
	e.chat = chat.NewSession(e.store, e.planner, chatOpts...)

	return e
}

// Open builds a production engine from cfg: the configured planning
// service, the usage database and, when NATS_URL is set, the event stream.
func Open(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gen, err := llm.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	}
	closers := []func() error{gen.Close}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		gen.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	closers = append(closers, db.Close)

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		nc, p, err := events.Connect(cfg.NATSURL, logger.With("component", "events"))
		if err != nil {
			// Events are optional.
			logger.Warn("NATS unavailable, events disabled", "url", cfg.NATSURL, "error", err)
		} else {
			publisher = p
			closers = append(closers, func() error { return nc.Drain() })
		}
	}

	e := NewEngine(cfg, Deps{
		TextGen:   gen,
		Reader:    intake.NewReader(nil),
		Usage:     metrics.NewStore(db.SQL),
		Publisher: publisher,
		Logger:    logger,
	})
	e.closers = closers
	return e, nil
}

// Start schedules the initial generation when the config asks for one.
func (e *Engine) Start() {
	if e.cfg.GenerateOnStart {
		e.orch.Start()
	}
}

// Snapshot returns a copy of the session state.
func (e *Engine) Snapshot() session.State {
	return e.store.Snapshot()
}

// Subscribe registers fn for every state transition.
func (e *Engine) Subscribe(fn session.Subscriber) func() {
	return e.store.Subscribe(fn)
}

// SetCalories is the manual calorie control. The value is snapped to the
// control's step and clamped.
func (e *Engine) SetCalories(calories int) session.State {
	return e.store.Dispatch(session.SetCalories{Calories: planner.SnapCalories(calories)})
}

// SetExclusions replaces the exclusion text.
func (e *Engine) SetExclusions(exclusions string) session.State {
	return e.store.Dispatch(session.SetExclusions{Exclusions: exclusions})
}

// Submit sends a chat message. See chat.Session.Submit.
func (e *Engine) Submit(ctx context.Context, message string) (chat.Result, error) {
	return e.chat.Submit(ctx, message)
}

// ChatBusy reports whether a chat message is being processed.
func (e *Engine) ChatBusy() bool {
	return e.chat.Processing()
}

// Retry re-issues generation now with the stored parameters.
func (e *Engine) Retry() {
	e.orch.Retry()
}

// GeneratePlan runs a single generation outside the session, for one-shot
// command line use. Usage is recorded like session calls.
func (e *Engine) GeneratePlan(ctx context.Context, params planner.GenerationParameters) (*planner.MealPlan, error) {
	params.Calories = planner.ClampCalories(params.Calories)
	plan, meta, err := e.planner.GeneratePlan(ctx, params)
	if meta.AgentName != "" {
		if rerr := e.recorder.RecordMeta(meta); rerr != nil {
			e.logger.Warn("Failed to record usage", "agent", meta.AgentName, "error", rerr)
		}
	}
	return plan, err
}

// Collector returns the Prometheus collector of this engine.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

// Usage returns the usage store, nil when the engine has none.
func (e *Engine) Usage() *metrics.Store {
	return e.usage
}

// DataDir is the directory holding the usage database.
func (e *Engine) DataDir() string {
	return filepath.Dir(e.cfg.DatabasePath)
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Close stops generation and releases the engine's resources.
func (e *Engine) Close() error {
	e.orch.Close()
	for _, unsubscribe := range e.unsubscribe {
		unsubscribe()
	}

	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
