package types

// Agent is the host-side collaborator that builds and releases the per-match
// postprocessing structures. The build calls receive a pointer to the
// binding's tree or list slot so a later call can see and finalize what an
// earlier call put there; BuildTree is also invoked with a nil user context
// to give every binding a default tree shape.
type Agent interface {
	// BuildTree builds or finalizes the tree in *tree for the given user
	// context. The user context may be nil.
	BuildTree(user any, tree *Tree) error

	// BuildNegatedList builds the list in *list for a negated pattern.
	BuildNegatedList(user any, list *List) error

	// FreeUser releases a user context. Called exactly once per non-nil
	// context at teardown.
	FreeUser(user any)

	// FreeTree releases a built tree and clears the slot.
	FreeTree(tree *Tree)

	// FreeList releases a built list and clears the slot.
	FreeList(list *List)
}

// MatchFunc is the host match callback. It is invoked once per user binding
// on a matched pattern, once per match record in a response, in the order
// the accelerator reported the matches. to is the end offset of the match
// within the searched buffer; ctx is the opaque value the caller passed to
// Search.
type MatchFunc func(user any, tree Tree, to int, ctx any, list List)

// NopAgent is an Agent that builds nothing and frees nothing. Useful for
// hosts that do no match postprocessing, and as a default in tools.
type NopAgent struct{}

func (NopAgent) BuildTree(any, *Tree) error        { return nil }
func (NopAgent) BuildNegatedList(any, *List) error { return nil }
func (NopAgent) FreeUser(any)                      {}
func (NopAgent) FreeTree(tree *Tree)               { *tree = nil }
func (NopAgent) FreeList(list *List)               { *list = nil }
