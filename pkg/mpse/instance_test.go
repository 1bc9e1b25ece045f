package mpse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanics/rxpse/pkg/types"
)

// countingAgent records every agent interaction for assertions.
type countingAgent struct {
	treeBuilds   []any // user contexts passed to BuildTree, nil included
	listBuilds   []any
	freedUsers   []any
	freedTrees   int
	freedLists   int
	buildTreeErr error
	buildListErr error
}

func (a *countingAgent) BuildTree(user any, tree *types.Tree) error {
	if a.buildTreeErr != nil {
		return a.buildTreeErr
	}
	a.treeBuilds = append(a.treeBuilds, user)
	if *tree == nil {
		*tree = &struct{}{}
	}
	return nil
}

func (a *countingAgent) BuildNegatedList(user any, list *types.List) error {
	if a.buildListErr != nil {
		return a.buildListErr
	}
	a.listBuilds = append(a.listBuilds, user)
	*list = &struct{}{}
	return nil
}

func (a *countingAgent) FreeUser(user any) { a.freedUsers = append(a.freedUsers, user) }

func (a *countingAgent) FreeTree(tree *types.Tree) {
	a.freedTrees++
	*tree = nil
}

func (a *countingAgent) FreeList(list *types.List) {
	a.freedLists++
	*list = nil
}

func TestAddPatternAssignsRuleIDsFromOne(t *testing.T) {
	reg := NewRegistry(nil)
	in := reg.NewInstance(InstanceConfig{Agent: &countingAgent{}})

	require.NoError(t, in.AddPattern([]byte("alpha"), types.Descriptor{}, "u1"))
	require.NoError(t, in.AddPattern([]byte("beta"), types.Descriptor{}, "u2"))

	pats := in.Patterns()
	require.Len(t, pats, 2)
	assert.Equal(t, uint32(1), pats[0].RuleID)
	assert.Equal(t, uint32(2), pats[1].RuleID)
}

func TestAddPatternDeduplicates(t *testing.T) {
	reg := NewRegistry(nil)
	in := reg.NewInstance(InstanceConfig{Agent: &countingAgent{}})

	require.NoError(t, in.AddPattern([]byte("dup"), types.Descriptor{}, "u1"))
	require.NoError(t, in.AddPattern([]byte("dup"), types.Descriptor{}, "u2"))
	require.NoError(t, in.AddPattern([]byte("dup"), types.Descriptor{}, "u3"))

	require.Equal(t, 1, in.PatternCount(), "duplicates must not allocate a new pattern")
	p := in.Patterns()[0]
	assert.Equal(t, uint32(1), p.RuleID)
	require.Len(t, p.Bindings, 3, "each occurrence keeps its own binding")
	assert.Equal(t, "u1", p.Bindings[0].User)
	assert.Equal(t, "u3", p.Bindings[2].User)

	snap := reg.Snapshot()
	assert.Equal(t, uint64(1), snap.Patterns)
	assert.Equal(t, uint64(2), snap.Duplicates)
}

func TestRuleIDsMonotonicAcrossInstances(t *testing.T) {
	reg := NewRegistry(nil)
	a := reg.NewInstance(InstanceConfig{Agent: &countingAgent{}})
	b := reg.NewInstance(InstanceConfig{Agent: &countingAgent{}})

	require.NoError(t, a.AddPattern([]byte("one"), types.Descriptor{}, nil))
	require.NoError(t, b.AddPattern([]byte("two"), types.Descriptor{}, nil))
	require.NoError(t, a.AddPattern([]byte("three"), types.Descriptor{}, nil))

	assert.Equal(t, uint32(1), a.Patterns()[0].RuleID)
	assert.Equal(t, uint32(2), b.Patterns()[0].RuleID)
	assert.Equal(t, uint32(3), a.Patterns()[1].RuleID)

	assert.Equal(t, uint16(1), a.SubsetID())
	assert.Equal(t, uint16(2), b.SubsetID())
}

func TestAddPatternRejectsEmpty(t *testing.T) {
	reg := NewRegistry(nil)
	in := reg.NewInstance(InstanceConfig{Agent: &countingAgent{}})
	assert.Error(t, in.AddPattern(nil, types.Descriptor{}, nil))
}

func TestAddPatternTracksMaxLength(t *testing.T) {
	reg := NewRegistry(nil)
	in := reg.NewInstance(InstanceConfig{Agent: &countingAgent{}})

	require.NoError(t, in.AddPattern([]byte("ab"), types.Descriptor{}, nil))
	require.NoError(t, in.AddPattern([]byte("abcdefgh"), types.Descriptor{}, nil))
	require.NoError(t, in.AddPattern([]byte("xyz"), types.Descriptor{}, nil))

	assert.Equal(t, uint64(8), reg.Snapshot().MaxPatternLen)
}

func TestPrepPatternsBuildsTreesAndLists(t *testing.T) {
	agent := &countingAgent{}
	reg := NewRegistry(nil)
	in := reg.NewInstance(InstanceConfig{Agent: agent})

	require.NoError(t, in.AddPattern([]byte("plain"), types.Descriptor{}, "u1"))
	require.NoError(t, in.AddPattern([]byte("negated"), types.Descriptor{Negated: true}, "u2"))
	require.NoError(t, in.AddPattern([]byte("nouser"), types.Descriptor{}, nil))

	require.NoError(t, in.PrepPatterns())

	// u1 gets a user tree build plus the unconditional nil build; the
	// negated binding gets a list build plus the nil tree build; the
	// userless binding gets only the nil tree build.
	assert.Equal(t, []any{"u1", nil, nil, nil}, agent.treeBuilds)
	assert.Equal(t, []any{"u2"}, agent.listBuilds)

	for _, p := range in.Patterns() {
		for _, b := range p.Bindings {
			assert.NotNil(t, b.Tree, "every binding ends up with a tree")
		}
	}
	assert.NotNil(t, in.Patterns()[1].Bindings[0].List)
}

func TestCloseFreesBindings(t *testing.T) {
	agent := &countingAgent{}
	reg := NewRegistry(nil)
	in := reg.NewInstance(InstanceConfig{Agent: agent})

	require.NoError(t, in.AddPattern([]byte("plain"), types.Descriptor{}, "u1"))
	require.NoError(t, in.AddPattern([]byte("negated"), types.Descriptor{Negated: true}, "u2"))
	require.NoError(t, in.AddPattern([]byte("nouser"), types.Descriptor{}, nil))
	require.NoError(t, in.PrepPatterns())

	require.NoError(t, in.Close())

	assert.ElementsMatch(t, []any{"u1", "u2"}, agent.freedUsers, "each non-nil user freed exactly once")
	assert.Equal(t, 3, agent.freedTrees)
	assert.Equal(t, 1, agent.freedLists)

	// A second Close must not free anything again.
	require.NoError(t, in.Close())
	assert.Len(t, agent.freedUsers, 2)
	assert.Equal(t, 3, agent.freedTrees)
}

func TestPrepPatternsPropagatesAgentError(t *testing.T) {
	agent := &countingAgent{buildTreeErr: assert.AnError}
	reg := NewRegistry(nil)
	in := reg.NewInstance(InstanceConfig{Agent: agent})
	require.NoError(t, in.AddPattern([]byte("p"), types.Descriptor{}, "u1"))
	assert.ErrorIs(t, in.PrepPatterns(), assert.AnError)

	agent = &countingAgent{buildListErr: assert.AnError}
	in = reg.NewInstance(InstanceConfig{Agent: agent})
	require.NoError(t, in.AddPattern([]byte("n"), types.Descriptor{Negated: true}, "u1"))
	assert.ErrorIs(t, in.PrepPatterns(), assert.AnError)
}

func TestResetCounters(t *testing.T) {
	reg := NewRegistry(nil)
	in := reg.NewInstance(InstanceConfig{Agent: &countingAgent{}})
	require.NoError(t, in.AddPattern([]byte("p"), types.Descriptor{}, nil))

	reg.ResetCounters()
	snap := reg.Snapshot()
	assert.Zero(t, snap.Patterns)
	assert.Zero(t, snap.Duplicates)
	assert.Zero(t, snap.MaxPatternLen)

	// Rule ids keep counting; they are never reused.
	require.NoError(t, in.AddPattern([]byte("q"), types.Descriptor{}, nil))
	assert.Equal(t, uint32(2), in.Patterns()[1].RuleID)
}
