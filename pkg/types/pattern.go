// Package types holds the data model shared by the rxpse packages: patterns,
// user bindings, and the host-facing agent and callback contracts.
package types

// Descriptor carries the host's per-pattern attributes at registration time.
type Descriptor struct {
	NoCase  bool // match case-insensitively
	Negated bool // match succeeds when the pattern is absent
	Literal bool // pattern is a literal byte sequence, not a regex
}

// Tree is an opaque postprocessing structure built by the host agent from a
// user context. Lists are the negated-pattern counterpart. Both are owned by
// the UserBinding they were built for and must be released through the agent.
type Tree any

// List is the negated-pattern counterpart of Tree.
type List any

// UserBinding ties one registration occurrence of a pattern to the host's
// match context. The tree and list slots are populated during the
// preparation phase.
type UserBinding struct {
	User any
	Tree Tree
	List List
}

// Pattern is one deduplicated pattern within an instance. Bindings holds one
// entry per registration occurrence that produced this escaped text, in
// registration order.
type Pattern struct {
	Text     string // escaped form; dedup key
	RuleID   uint32 // process-wide, dense, starts at 1
	NoCase   bool
	Negated  bool
	Bindings []*UserBinding
}

// AddBinding appends a registration occurrence.
func (p *Pattern) AddBinding(user any) {
	p.Bindings = append(p.Bindings, &UserBinding{User: user})
}
