package rxpse

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanics/rxpse/pkg/config"
	"github.com/titanics/rxpse/pkg/device"
	"github.com/titanics/rxpse/pkg/store"
	"github.com/titanics/rxpse/pkg/types"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.RulesFile = filepath.Join(t.TempDir(), "rules.txt")
	cfg.RulesDir = t.TempDir()
	return cfg
}

func TestEngineEndToEnd(t *testing.T) {
	engine, err := New(WithConfig(testConfig(t)))
	require.NoError(t, err)
	defer engine.Close()

	in := engine.NewInstance(nil)
	require.NoError(t, in.AddPattern([]byte("abc"), Descriptor{}, "u-abc"))
	require.NoError(t, in.AddPattern([]byte{'a', 0x01, 'c'}, Descriptor{}, "u-bin"))
	require.NoError(t, in.PrepPatterns())

	require.NoError(t, engine.Setup(context.Background()))
	assert.True(t, engine.Ready())

	var users []any
	mf := func(user any, tree types.Tree, to int, ctx any, list types.List) {
		users = append(users, user)
	}
	require.NoError(t, in.Search(context.Background(), []byte("abc and a\x01c"), mf, nil))

	assert.ElementsMatch(t, []any{"u-abc", "u-bin"}, users)

	snap := engine.Stats()
	assert.Equal(t, 1, snap.Instances)
	assert.Equal(t, uint64(2), snap.Patterns)
	assert.Equal(t, uint64(1), snap.JobsSubmitted)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RulesFile = ""
	_, err := New(WithConfig(cfg))
	assert.Error(t, err)
}

func TestEngineOpensStoreFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorePath = ":memory:"

	engine, err := New(WithConfig(cfg))
	require.NoError(t, err)
	defer engine.Close()

	in := engine.NewInstance(nil)
	require.NoError(t, in.AddPattern([]byte("abc"), Descriptor{}, "u"))
	require.NoError(t, in.PrepPatterns())
	require.NoError(t, engine.Setup(context.Background()))

	mf := func(any, types.Tree, int, any, types.List) {}
	require.NoError(t, in.Search(context.Background(), []byte("abc"), mf, nil))
}

func TestEngineWithExplicitStore(t *testing.T) {
	st := store.NewMemory()
	engine, err := New(WithConfig(testConfig(t)), WithStore(st))
	require.NoError(t, err)
	defer engine.Close()

	in := engine.NewInstance(nil)
	require.NoError(t, in.AddPattern([]byte("abc"), Descriptor{}, "u"))
	require.NoError(t, in.PrepPatterns())
	require.NoError(t, engine.Setup(context.Background()))

	mf := func(any, types.Tree, int, any, types.List) {}
	require.NoError(t, in.Search(context.Background(), []byte("..abc.."), mf, nil))

	n, err := st.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSetupSurfacesInitError(t *testing.T) {
	engine, err := New(WithConfig(testConfig(t)), WithDevice(&failingDevice{failStage: "port"}))
	require.NoError(t, err)

	err = engine.Setup(context.Background())
	require.Error(t, err)

	var ierr *InitError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "port", ierr.Stage)
}

func TestSetupSurfacesCompilationFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.CompilerBinary = "false" // exits non-zero

	engine, err := New(WithConfig(cfg))
	require.NoError(t, err)

	err = engine.Setup(context.Background())
	assert.Error(t, err)
	assert.False(t, engine.Ready())
}

func TestCloseTearsDownInstances(t *testing.T) {
	agent := &trackingAgent{}
	engine, err := New(WithConfig(testConfig(t)), WithAgent(agent))
	require.NoError(t, err)

	in := engine.NewInstance(nil)
	require.NoError(t, in.AddPattern([]byte("abc"), Descriptor{}, "u1"))
	require.NoError(t, in.PrepPatterns())

	require.NoError(t, engine.Close())
	assert.Equal(t, []any{"u1"}, agent.freedUsers)
}

// trackingAgent records freed user contexts.
type trackingAgent struct {
	types.NopAgent
	freedUsers []any
}

func (a *trackingAgent) FreeUser(user any) { a.freedUsers = append(a.freedUsers, user) }

// failingDevice fails one named bring-up stage.
type failingDevice struct {
	device.Device
	failStage string
}

func (d *failingDevice) MaxJobLength() int { return device.DefaultMaxJobLength }

func (d *failingDevice) RuntimeInit() error {
	return d.maybeFail("io runtime")
}

func (d *failingDevice) PortInit(int) error {
	return d.maybeFail("port")
}

func (d *failingDevice) EngineInit() error {
	return d.maybeFail("engine")
}

func (d *failingDevice) ProgramRules(int, string) error {
	return d.maybeFail("rule programming")
}

func (d *failingDevice) Enable() error {
	return d.maybeFail("port enable")
}

func (d *failingDevice) Disable() error { return nil }

func (d *failingDevice) maybeFail(stage string) error {
	if d.failStage == stage {
		return errors.New(stage + " unavailable")
	}
	return nil
}
