//go:build hyperscan

package device

import (
	"fmt"
	"sync"

	"github.com/flier/gohs/hyperscan"
)

// HyperscanDevice is a software Device backed by the Hyperscan engine.
// Unlike Sim it evaluates the escaped patterns as regexes, so it also covers
// rule programs whose patterns are not plain literals. Requires cgo and the
// hyperscan build tag.
type HyperscanDevice struct {
	cfg SimConfig // same tunables as the simulator

	mu            sync.Mutex
	runtimeReady  bool
	portReady     bool
	engineReady   bool
	enabled       bool
	numQueues     int
	dbs           map[uint16]hyperscan.BlockDatabase
	scratches     map[uint16]*hyperscan.Scratch
	pending       map[int][]*Job
	ready         map[int][]*Response
	nextDecodeErr error
}

// NewHyperscanDevice creates a Hyperscan-backed device with defaults applied.
func NewHyperscanDevice(cfg SimConfig) *HyperscanDevice {
	if cfg.MaxJobLength <= 0 {
		cfg.MaxJobLength = DefaultMaxJobLength
	}
	if cfg.MatchLimit <= 0 {
		cfg.MatchLimit = DefaultMatchLimit
	}
	return &HyperscanDevice{
		cfg:     cfg,
		pending: make(map[int][]*Job),
		ready:   make(map[int][]*Response),
	}
}

func (h *HyperscanDevice) MaxJobLength() int { return h.cfg.MaxJobLength }

func (h *HyperscanDevice) RuntimeInit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runtimeReady = true
	return nil
}

func (h *HyperscanDevice) PortInit(numQueues int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.runtimeReady {
		return fmt.Errorf("port init before runtime init")
	}
	if numQueues <= 0 {
		return fmt.Errorf("invalid queue count %d", numQueues)
	}
	h.numQueues = numQueues
	h.portReady = true
	return nil
}

func (h *HyperscanDevice) EngineInit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.portReady {
		return fmt.Errorf("engine init before port init")
	}
	h.engineReady = true
	return nil
}

// ProgramRules compiles one Hyperscan block database per subset from a rule
// definition file.
func (h *HyperscanDevice) ProgramRules(queue int, path string) error {
	subsets, err := ParseRuleFile(path)
	if err != nil {
		return fmt.Errorf("programming rules: %w", err)
	}

	dbs := make(map[uint16]hyperscan.BlockDatabase, len(subsets))
	scratches := make(map[uint16]*hyperscan.Scratch, len(subsets))
	for _, sub := range subsets {
		if len(sub.Rules) == 0 {
			continue
		}
		patterns := make([]*hyperscan.Pattern, len(sub.Rules))
		for i, r := range sub.Rules {
			p := hyperscan.NewPattern(r.Pattern, hyperscan.DotAll|hyperscan.SomLeftMost)
			p.Id = int(r.ID)
			patterns[i] = p
		}
		db, err := hyperscan.NewBlockDatabase(patterns...)
		if err != nil {
			return fmt.Errorf("compiling subset %d: %w", sub.ID, err)
		}
		scratch, err := hyperscan.NewScratch(db)
		if err != nil {
			db.Close()
			return fmt.Errorf("allocating scratch for subset %d: %w", sub.ID, err)
		}
		dbs[sub.ID] = db
		scratches[sub.ID] = scratch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.engineReady {
		return fmt.Errorf("programming rules before engine init")
	}
	if err := h.checkQueue(queue); err != nil {
		return err
	}
	h.dbs = dbs
	h.scratches = scratches
	return nil
}

func (h *HyperscanDevice) Enable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dbs == nil {
		return ErrNotProgrammed
	}
	h.enabled = true
	return nil
}

func (h *HyperscanDevice) Disable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = false
	return nil
}

func (h *HyperscanDevice) PrepareJob(spec JobSpec) (*Job, error) {
	if spec.ID == 0 {
		return nil, fmt.Errorf("job id must be non-zero")
	}
	if len(spec.Data) > h.cfg.MaxJobLength {
		return nil, fmt.Errorf("job length %d exceeds maximum %d", len(spec.Data), h.cfg.MaxJobLength)
	}
	return &Job{spec: spec}, nil
}

func (h *HyperscanDevice) EnqueueJob(queue int, job *Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled {
		return fmt.Errorf("port not enabled")
	}
	if err := h.checkQueue(queue); err != nil {
		return err
	}
	h.pending[queue] = append(h.pending[queue], job)
	return nil
}

func (h *HyperscanDevice) DispatchJobs(queue int) (sent, pending int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkQueue(queue); err != nil {
		return 0, 0, err
	}

	jobs := h.pending[queue]
	h.pending[queue] = nil

	for _, job := range jobs {
		resp, err := h.run(job)
		if err != nil {
			resp = &Response{data: &ResponseData{JobID: job.spec.ID}, err: err}
		} else if h.nextDecodeErr != nil {
			resp.err = h.nextDecodeErr
			h.nextDecodeErr = nil
		}
		h.ready[queue] = append(h.ready[queue], resp)
	}
	return len(jobs), 0, nil
}

func (h *HyperscanDevice) GetResponses(queue int, max int) ([]*Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkQueue(queue); err != nil {
		return nil, err
	}

	n := min(max, len(h.ready[queue]))
	if n == 0 {
		return nil, nil
	}
	out := h.ready[queue][:n]
	h.ready[queue] = h.ready[queue][n:]
	return out, nil
}

func (h *HyperscanDevice) ResponseData(r *Response) (*ResponseData, error) {
	if r.freed {
		return nil, fmt.Errorf("response buffer already freed")
	}
	return r.data, r.err
}

func (h *HyperscanDevice) FreeBuffer(r *Response) {
	r.freed = true
}

// Close releases the compiled databases and scratch space.
func (h *HyperscanDevice) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.scratches {
		s.Free()
	}
	for _, db := range h.dbs {
		db.Close()
	}
	h.scratches = nil
	h.dbs = nil
	return nil
}

func (h *HyperscanDevice) run(job *Job) (*Response, error) {
	data := &ResponseData{JobID: job.spec.ID}

	db := h.dbs[job.spec.Subsets[0]]
	if db == nil {
		return &Response{data: data}, nil
	}
	scratch := h.scratches[job.spec.Subsets[0]]

	var records []MatchRecord
	onMatch := func(id uint, from, to uint64, flags uint, context interface{}) error {
		records = append(records, MatchRecord{
			RuleID:   uint32(id),
			StartPtr: uint32(from),
			Length:   uint16(to - from),
		})
		return nil
	}
	if err := db.Scan(job.spec.Data, scratch, onMatch, nil); err != nil {
		return nil, fmt.Errorf("scanning job %d: %w", job.spec.ID, err)
	}

	data.DetectedMatches = uint32(len(records))
	if len(records) > h.cfg.MatchLimit {
		records = records[:h.cfg.MatchLimit]
	}
	data.Matches = records
	return &Response{data: data}, nil
}

func (h *HyperscanDevice) checkQueue(queue int) error {
	if queue < 0 || queue >= h.numQueues {
		return fmt.Errorf("queue %d out of range (have %d)", queue, h.numQueues)
	}
	return nil
}
