package mpse

import (
	"fmt"
	"log/slog"

	"github.com/titanics/rxpse/pkg/escape"
	"github.com/titanics/rxpse/pkg/types"
)

// Instance is one logical pattern-matching engine (a hardware "subset").
// Registration is config-time and single-threaded; after PrepPatterns the
// pattern set is read-only and Search may be called, one goroutine per
// instance.
type Instance struct {
	reg      *Registry
	cfg      InstanceConfig
	subsetID uint16

	patterns []*types.Pattern          // registration order
	byText   map[string]*types.Pattern // escaped text -> pattern
	ruleIDs  map[uint32]*types.Pattern // resolves hardware match responses

	prepared bool
	logger   *slog.Logger
}

// SubsetID returns the 1-based hardware routing key of this instance.
func (in *Instance) SubsetID() uint16 { return in.subsetID }

// PatternCount returns the number of distinct patterns registered.
func (in *Instance) PatternCount() int { return len(in.patterns) }

// Patterns returns the distinct patterns in registration order.
func (in *Instance) Patterns() []*types.Pattern { return in.patterns }

// AddPattern registers one pattern occurrence. The raw bytes are escaped to
// canonical text; if an existing pattern in this instance has the same
// escaped text, the occurrence is recorded as an extra user binding on that
// pattern and no rule id is allocated. Otherwise a new pattern is created
// with the next process-wide rule id.
//
// Failures in later phases (compilation, device programming) are not
// predicted here; registration itself only rejects empty patterns.
func (in *Instance) AddPattern(raw []byte, desc types.Descriptor, user any) error {
	esc := escape.Pattern(raw)
	if esc == "" {
		return fmt.Errorf("empty pattern")
	}

	if p, ok := in.byText[esc]; ok {
		// Duplicate content: one hardware rule, multiple host bindings.
		p.AddBinding(user)
		in.reg.recordDuplicate()
		return nil
	}

	p := &types.Pattern{
		Text:    esc,
		RuleID:  in.reg.allocRuleID(),
		NoCase:  desc.NoCase,
		Negated: desc.Negated,
	}
	p.AddBinding(user)

	in.reg.recordPattern(len(raw))
	in.patterns = append(in.patterns, p)
	in.byText[esc] = p
	in.ruleIDs[p.RuleID] = p
	return nil
}

// PrepPatterns builds the postprocessing structures for every binding. For a
// non-nil user context the agent builds a negated list or a tree depending
// on the pattern; a second tree build with a nil context always follows so
// every binding ends up with a default tree shape.
func (in *Instance) PrepPatterns() error {
	for _, p := range in.patterns {
		for _, b := range p.Bindings {
			if b.User != nil {
				if p.Negated {
					if err := in.cfg.Agent.BuildNegatedList(b.User, &b.List); err != nil {
						return fmt.Errorf("building list for rule %d: %w", p.RuleID, err)
					}
				} else {
					if err := in.cfg.Agent.BuildTree(b.User, &b.Tree); err != nil {
						return fmt.Errorf("building tree for rule %d: %w", p.RuleID, err)
					}
				}
			}
			if err := in.cfg.Agent.BuildTree(nil, &b.Tree); err != nil {
				return fmt.Errorf("finalizing tree for rule %d: %w", p.RuleID, err)
			}
		}
	}
	in.prepared = true
	return nil
}

// Close releases every binding's structures through the agent: each non-nil
// user context exactly once, plus any built tree or list.
func (in *Instance) Close() error {
	for _, p := range in.patterns {
		for _, b := range p.Bindings {
			if b.User != nil {
				in.cfg.Agent.FreeUser(b.User)
				b.User = nil
			}
			if b.List != nil {
				in.cfg.Agent.FreeList(&b.List)
			}
			if b.Tree != nil {
				in.cfg.Agent.FreeTree(&b.Tree)
			}
		}
	}
	return nil
}
