// Package rxpse adapts a packet-inspection engine's multi-pattern search
// interface to the RXP regex accelerator's asynchronous job-queue interface.
//
// The adapter does bookkeeping, protocol handling, and callback fan-out;
// match semantics belong to the accelerator and its rule compiler.
//
// # Usage
//
// Register patterns into instances, prepare them, run the one-time setup,
// then search:
//
//	engine, err := rxpse.New(rxpse.WithAgent(agent))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	in := engine.NewInstance(nil)
//	in.AddPattern([]byte("attack-string"), rxpse.Descriptor{}, ruleCtx)
//	in.PrepPatterns()
//
//	if err := engine.Setup(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	in.Search(ctx, payload, onMatch, nil)
//
// Registration must complete before the first search; each instance is
// searched from a single goroutine.
package rxpse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/titanics/rxpse/pkg/compiler"
	"github.com/titanics/rxpse/pkg/config"
	"github.com/titanics/rxpse/pkg/device"
	"github.com/titanics/rxpse/pkg/mpse"
	"github.com/titanics/rxpse/pkg/store"
	"github.com/titanics/rxpse/pkg/types"
)

// Re-export the types hosts interact with, so most callers can import just
// this package.
type (
	// Descriptor carries per-pattern attributes at registration time.
	Descriptor = types.Descriptor

	// Agent builds and frees per-match postprocessing structures.
	Agent = types.Agent

	// MatchFunc is the host match callback.
	MatchFunc = types.MatchFunc

	// Instance is one logical pattern-matching engine.
	Instance = mpse.Instance

	// Snapshot is a point-in-time copy of the engine counters.
	Snapshot = mpse.Snapshot
)

// ErrPollTimeout is returned by Search when no response arrives in time.
var ErrPollTimeout = mpse.ErrPollTimeout

// InitError reports a failed stage of the device bring-up sequence. The
// host can decide whether to disable hardware offload or abort.
type InitError struct {
	Stage string
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Engine owns the device, the coordinator, and the setup lifecycle shared
// by all instances.
type Engine struct {
	cfg    config.Config
	dev    device.Device
	agent  types.Agent
	st     store.Store
	logger *slog.Logger

	reg   *mpse.Registry
	ready bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithDevice selects the accelerator backend. The default is the software
// simulator, which needs no hardware and accepts the rule definition file
// as its program.
func WithDevice(dev device.Device) Option {
	return func(e *Engine) { e.dev = dev }
}

// WithAgent sets the default agent for instances constructed with a nil
// agent.
func WithAgent(agent types.Agent) Option {
	return func(e *Engine) { e.agent = agent }
}

// WithStore enables the match-event log.
func WithStore(st store.Store) Option {
	return func(e *Engine) { e.st = st }
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an Engine. With no options it uses the default config, the
// software device, and no match-event log.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:   config.Default(),
		agent: types.NopAgent{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.dev == nil {
		e.dev = device.NewSim(device.SimConfig{})
	}
	if e.st == nil && e.cfg.StorePath != "" {
		st, err := store.New(store.Config{Path: e.cfg.StorePath})
		if err != nil {
			return nil, fmt.Errorf("opening match-event store: %w", err)
		}
		e.st = st
	}

	e.reg = mpse.NewRegistry(e.logger)
	return e, nil
}

// NewInstance constructs a pattern-matching instance. A nil agent uses the
// engine's default. The instance's subset id is its 1-based construction
// position.
func (e *Engine) NewInstance(agent Agent) *Instance {
	if agent == nil {
		agent = e.agent
	}
	return e.reg.NewInstance(mpse.InstanceConfig{
		Agent:        agent,
		Dev:          e.dev,
		Queue:        0,
		PollTimeout:  e.cfg.PollTimeout.Std(),
		PollInterval: e.cfg.PollInterval.Std(),
		Store:        e.st,
	})
}

// CompileRules writes the rule definition file and, when an external
// compiler is configured, runs it. It returns the path of the rule program
// to load onto the device: the compiler's output, or the rule definition
// file itself when no compiler is configured (software backends accept it
// directly).
func (e *Engine) CompileRules(ctx context.Context) (string, error) {
	instances := e.reg.Instances()

	if err := compiler.Validate(instances); err != nil {
		return "", fmt.Errorf("validating patterns: %w", err)
	}
	if err := compiler.WriteRuleFileTo(e.cfg.RulesFile, instances); err != nil {
		return "", err
	}

	if e.cfg.CompilerBinary == "" {
		return e.cfg.RulesFile, nil
	}

	ccfg := compiler.Config{
		RulesFile: e.cfg.RulesFile,
		OutputDir: e.cfg.RulesDir,
		Binary:    e.cfg.CompilerBinary,
	}
	if err := compiler.Compile(ctx, ccfg); err != nil {
		return "", err
	}
	return compiler.ProgramPath(ccfg), nil
}

// Setup runs the one-time preparation after all patterns are registered:
// compile the rules, bring up the device, program the rules, and enable the
// port. Bring-up failures come back as *InitError.
func (e *Engine) Setup(ctx context.Context) error {
	program, err := e.CompileRules(ctx)
	if err != nil {
		return err
	}

	if err := e.dev.RuntimeInit(); err != nil {
		return &InitError{Stage: "io runtime", Err: err}
	}
	if err := e.dev.PortInit(e.cfg.QueueCount); err != nil {
		return &InitError{Stage: "port", Err: err}
	}
	if err := e.dev.EngineInit(); err != nil {
		return &InitError{Stage: "engine", Err: err}
	}
	if err := e.dev.ProgramRules(0, program); err != nil {
		return &InitError{Stage: "rule programming", Err: err}
	}
	if err := e.dev.Enable(); err != nil {
		return &InitError{Stage: "port enable", Err: err}
	}

	e.ready = true
	e.logger.Info("engine ready",
		"instances", e.reg.Snapshot().Instances,
		"program", program)
	return nil
}

// Ready reports whether Setup has completed.
func (e *Engine) Ready() bool { return e.ready }

// Instances returns the constructed instances in subset-id order.
func (e *Engine) Instances() []*Instance { return e.reg.Instances() }

// MaxJobLength reports the device's job size limit; longer search buffers
// are truncated.
func (e *Engine) MaxJobLength() int { return e.dev.MaxJobLength() }

// Stats copies the current counters.
func (e *Engine) Stats() Snapshot { return e.reg.Snapshot() }

// Collector exposes the counters as prometheus metrics.
func (e *Engine) Collector() *mpse.Collector { return mpse.NewCollector(e.reg) }

// Close tears down every instance, releasing its bindings through the
// agent, then disables the device and closes the match-event store.
func (e *Engine) Close() error {
	var firstErr error
	for _, in := range e.reg.Instances() {
		if err := in.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.ready {
		if err := e.dev.Disable(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.ready = false
	}
	if e.st != nil {
		if err := e.st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
