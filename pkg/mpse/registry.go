// Package mpse implements the pattern-matching instances routed to the RXP
// accelerator: pattern registration and deduplication, user-binding
// preparation, the search job state machine, and the coordinator that owns
// process-wide identifiers and counters.
package mpse

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/titanics/rxpse/pkg/device"
	"github.com/titanics/rxpse/pkg/store"
	"github.com/titanics/rxpse/pkg/types"
)

// Registry coordinates all instances sharing one device: it allocates rule
// ids and job ids, tracks the instance list, and carries the counters. It
// replaces the process-global state the original adapter kept in statics.
type Registry struct {
	logger *slog.Logger

	mu        sync.Mutex
	instances []*Instance
	ruleID    uint32 // last allocated; guarded by mu, registration is config-time

	jobID    atomic.Uint64 // last submitted job id; never handed out as 0
	counters counters
}

type counters struct {
	patterns      atomic.Uint64
	duplicates    atomic.Uint64
	jobs          atomic.Uint64
	matchLimit    atomic.Uint64
	maxPatternLen atomic.Uint64
}

// Snapshot is a point-in-time copy of the registry counters.
type Snapshot struct {
	Instances          int
	Patterns           uint64
	Duplicates         uint64
	JobsSubmitted      uint64
	MatchLimitExceeded uint64
	MaxPatternLen      uint64
}

// NewRegistry creates an empty coordinator. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// InstanceConfig wires one instance to its collaborators.
type InstanceConfig struct {
	// Agent builds and frees the per-binding postprocessing structures.
	Agent types.Agent

	// Dev is the shared accelerator. May be nil until search time.
	Dev device.Device

	// Queue is the port queue this instance submits on.
	Queue int

	// PollTimeout bounds the wait for a job's response. Zero means wait
	// without bound, which reproduces the hardware adapter's original
	// spin and is only sensible in tests.
	PollTimeout time.Duration

	// PollInterval is the delay between response polls.
	PollInterval time.Duration

	// Store, if set, receives every dispatched match event.
	Store store.Store
}

// NewInstance constructs an instance and appends it to the registry. The
// instance's 1-based position is its subset id, used both as the hardware
// routing key and as the section identifier in the generated rule file.
func (r *Registry) NewInstance(cfg InstanceConfig) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	in := &Instance{
		reg:      r,
		cfg:      cfg,
		subsetID: uint16(len(r.instances) + 1),
		byText:   make(map[string]*types.Pattern),
		ruleIDs:  make(map[uint32]*types.Pattern),
		logger:   r.logger,
	}
	r.instances = append(r.instances, in)
	return in
}

// Instances returns the instances in construction order.
func (r *Registry) Instances() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Instance, len(r.instances))
	copy(out, r.instances)
	return out
}

// Snapshot copies the current counter values.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	n := len(r.instances)
	r.mu.Unlock()

	return Snapshot{
		Instances:          n,
		Patterns:           r.counters.patterns.Load(),
		Duplicates:         r.counters.duplicates.Load(),
		JobsSubmitted:      r.counters.jobs.Load(),
		MatchLimitExceeded: r.counters.matchLimit.Load(),
		MaxPatternLen:      r.counters.maxPatternLen.Load(),
	}
}

// ResetCounters zeroes the advisory counters. Rule and job id allocation is
// not reset; ids are never reused within a process.
func (r *Registry) ResetCounters() {
	r.counters.patterns.Store(0)
	r.counters.duplicates.Store(0)
	r.counters.jobs.Store(0)
	r.counters.matchLimit.Store(0)
	r.counters.maxPatternLen.Store(0)
}

// allocRuleID hands out the next process-wide rule id, starting at 1.
func (r *Registry) allocRuleID() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ruleID++
	return r.ruleID
}

// nextJobID hands out the next job id. Job ids start at 1; the hardware
// reserves 0.
func (r *Registry) nextJobID() uint64 {
	id := r.jobID.Add(1)
	r.counters.jobs.Add(1)
	return id
}

func (r *Registry) recordPattern(rawLen int) {
	r.counters.patterns.Add(1)
	for {
		cur := r.counters.maxPatternLen.Load()
		if uint64(rawLen) <= cur {
			return
		}
		if r.counters.maxPatternLen.CompareAndSwap(cur, uint64(rawLen)) {
			return
		}
	}
}

func (r *Registry) recordDuplicate() {
	r.counters.duplicates.Add(1)
}

func (r *Registry) recordMatchLimit() {
	r.counters.matchLimit.Add(1)
}
