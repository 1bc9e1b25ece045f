package device

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/cloudflare/ahocorasick"

	"github.com/titanics/rxpse/pkg/escape"
)

// Default limits mirroring the hardware: the largest buffer one job may
// carry, and the number of match records one response can report.
const (
	DefaultMaxJobLength = 16384
	DefaultMatchLimit   = 254
)

// SimConfig configures the software device.
type SimConfig struct {
	// MaxJobLength caps the job buffer size. Defaults to DefaultMaxJobLength.
	MaxJobLength int

	// MatchLimit caps the match records reported per response; matches
	// detected beyond it are counted but not returned, reproducing the
	// hardware's overflow behavior. Defaults to DefaultMatchLimit.
	MatchLimit int
}

type simRule struct {
	id  uint32
	lit []byte
}

type simSubset struct {
	rules   []simRule
	lits    [][]byte
	matcher *ahocorasick.Matcher
}

// Sim is a software Device. It accepts a rule definition file in place of a
// compiled rule program, unescapes each pattern back to its literal bytes,
// and matches with an Aho-Corasick automaton per subset. Case-insensitive
// patterns are matched case-sensitively; the simulator models the job
// protocol, not the full matching semantics.
type Sim struct {
	cfg SimConfig

	mu            sync.Mutex
	runtimeReady  bool
	portReady     bool
	engineReady   bool
	enabled       bool
	numQueues     int
	subsets       map[uint16]*simSubset
	pending       map[int][]*Job
	ready         map[int][]*Response
	nextDecodeErr error
}

// NewSim creates a software device with defaults applied.
func NewSim(cfg SimConfig) *Sim {
	if cfg.MaxJobLength <= 0 {
		cfg.MaxJobLength = DefaultMaxJobLength
	}
	if cfg.MatchLimit <= 0 {
		cfg.MatchLimit = DefaultMatchLimit
	}
	return &Sim{
		cfg:     cfg,
		pending: make(map[int][]*Job),
		ready:   make(map[int][]*Response),
	}
}

func (s *Sim) MaxJobLength() int { return s.cfg.MaxJobLength }

func (s *Sim) RuntimeInit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtimeReady = true
	return nil
}

func (s *Sim) PortInit(numQueues int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.runtimeReady {
		return fmt.Errorf("port init before runtime init")
	}
	if numQueues <= 0 {
		return fmt.Errorf("invalid queue count %d", numQueues)
	}
	s.numQueues = numQueues
	s.portReady = true
	return nil
}

func (s *Sim) EngineInit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.portReady {
		return fmt.Errorf("engine init before port init")
	}
	s.engineReady = true
	return nil
}

// ProgramRules parses path as a rule definition file and builds one matcher
// per subset.
func (s *Sim) ProgramRules(queue int, path string) error {
	subsets, err := ParseRuleFile(path)
	if err != nil {
		return fmt.Errorf("programming rules: %w", err)
	}

	programmed := make(map[uint16]*simSubset, len(subsets))
	for _, sub := range subsets {
		ss := &simSubset{}
		for _, r := range sub.Rules {
			lit, err := escape.Literal(r.Pattern)
			if err != nil {
				return fmt.Errorf("rule %d: %w", r.ID, err)
			}
			ss.rules = append(ss.rules, simRule{id: r.ID, lit: lit})
			ss.lits = append(ss.lits, lit)
		}
		if len(ss.lits) > 0 {
			ss.matcher = ahocorasick.NewMatcher(ss.lits)
		}
		programmed[sub.ID] = ss
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.engineReady {
		return fmt.Errorf("programming rules before engine init")
	}
	if err := s.checkQueue(queue); err != nil {
		return err
	}
	s.subsets = programmed
	return nil
}

func (s *Sim) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subsets == nil {
		return ErrNotProgrammed
	}
	s.enabled = true
	return nil
}

func (s *Sim) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	return nil
}

func (s *Sim) PrepareJob(spec JobSpec) (*Job, error) {
	if spec.ID == 0 {
		return nil, fmt.Errorf("job id must be non-zero")
	}
	if len(spec.Data) > s.cfg.MaxJobLength {
		return nil, fmt.Errorf("job length %d exceeds maximum %d", len(spec.Data), s.cfg.MaxJobLength)
	}
	return &Job{spec: spec}, nil
}

func (s *Sim) EnqueueJob(queue int, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return fmt.Errorf("port not enabled")
	}
	if err := s.checkQueue(queue); err != nil {
		return err
	}
	s.pending[queue] = append(s.pending[queue], job)
	return nil
}

// DispatchJobs runs every pending job on the queue and stages its response.
func (s *Sim) DispatchJobs(queue int) (sent, pending int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkQueue(queue); err != nil {
		return 0, 0, err
	}

	jobs := s.pending[queue]
	s.pending[queue] = nil

	for _, job := range jobs {
		resp := s.run(job)
		if s.nextDecodeErr != nil {
			resp.err = s.nextDecodeErr
			s.nextDecodeErr = nil
		}
		s.ready[queue] = append(s.ready[queue], resp)
	}
	return len(jobs), 0, nil
}

func (s *Sim) GetResponses(queue int, max int) ([]*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkQueue(queue); err != nil {
		return nil, err
	}

	n := min(max, len(s.ready[queue]))
	if n == 0 {
		return nil, nil
	}
	out := s.ready[queue][:n]
	s.ready[queue] = s.ready[queue][n:]
	return out, nil
}

func (s *Sim) ResponseData(r *Response) (*ResponseData, error) {
	if r.freed {
		return nil, fmt.Errorf("response buffer already freed")
	}
	// Partial match data accompanies a decode error, as on hardware.
	return r.data, r.err
}

func (s *Sim) FreeBuffer(r *Response) {
	r.freed = true
}

// FailNextDecode makes the next dispatched response report err from
// ResponseData while still carrying its match data. Test hook.
func (s *Sim) FailNextDecode(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDecodeErr = err
}

// run searches a job buffer against the subset named in the first routing
// slot and builds its response, applying the match-report limit.
func (s *Sim) run(job *Job) *Response {
	data := &ResponseData{JobID: job.spec.ID}

	ss := s.subsets[job.spec.Subsets[0]]
	if ss == nil || ss.matcher == nil {
		return &Response{data: data}
	}

	var records []MatchRecord
	for _, hit := range ss.matcher.Match(job.spec.Data) {
		r := ss.rules[hit]
		// Report every non-overlapping occurrence of the literal.
		for off := 0; ; {
			i := bytes.Index(job.spec.Data[off:], r.lit)
			if i < 0 {
				break
			}
			records = append(records, MatchRecord{
				RuleID:   r.id,
				StartPtr: uint32(off + i),
				Length:   uint16(len(r.lit)),
			})
			off += i + len(r.lit)
		}
	}

	data.DetectedMatches = uint32(len(records))
	if len(records) > s.cfg.MatchLimit {
		records = records[:s.cfg.MatchLimit]
	}
	data.Matches = records
	return &Response{data: data}
}

func (s *Sim) checkQueue(queue int) error {
	if queue < 0 || queue >= s.numQueues {
		return fmt.Errorf("queue %d out of range (have %d)", queue, s.numQueues)
	}
	return nil
}
