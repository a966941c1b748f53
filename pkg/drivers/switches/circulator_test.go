package switches

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/config"
	"github.com/armish/fireplace/pkg/module"
	"github.com/armish/fireplace/pkg/wire"
)

func newCirculator(t *testing.T, params string) *Circulator {
	t.Helper()
	c := NewCirculator()
	require.NoError(t, c.Configure(params))
	return c
}

func request(t *testing.T, a action.Action, method string, params ...any) *wire.Request {
	t.Helper()
	req, err := wire.NewRequest(a, method, params...)
	require.NoError(t, err)
	return req
}

func TestConfigure(t *testing.T) {
	c := newCirculator(t, "-p 4 -e 10.0.0.7")
	assert.Equal(t, uint64(4), c.Ports())
	assert.Equal(t, "10.0.0.7", c.Address().String())
	assert.Equal(t, CCW, c.Chirality())

	c = newCirculator(t, "-p=3")
	assert.Equal(t, uint64(3), c.Ports())
	assert.False(t, c.Address().IsValid())
}

func TestConfigureErrors(t *testing.T) {
	for _, params := range []string{"", "-p 1", "-p x", "-p 4 -e nowhere", "-q 4"} {
		err := NewCirculator().Configure(params)
		assert.ErrorIs(t, err, config.ErrInvalid, params)
	}
}

func TestChiralityRule(t *testing.T) {
	tests := []struct {
		in, out uint64
		want    Chirality
	}{
		{0, 1, CW},
		{1, 2, CW},
		{2, 3, CW},
		{1, 0, CCW},
		{2, 1, CCW},
		{0, 3, CCW},
		{3, 0, CW}, // last port
		{3, 2, CW},
	}
	for _, tt := range tests {
		c := newCirculator(t, "-p 4")
		require.True(t, c.Set(tt.in, tt.out))
		assert.Equal(t, tt.want, c.Chirality(), "%d->%d", tt.in, tt.out)
		assert.True(t, c.State(tt.in, tt.out), "%d->%d", tt.in, tt.out)
	}
}

func TestSetOutOfRange(t *testing.T) {
	c := newCirculator(t, "-p 4")
	require.True(t, c.Set(0, 1))

	assert.False(t, c.Set(4, 0))
	assert.False(t, c.Set(0, 4))
	assert.Equal(t, CW, c.Chirality(), "failed set keeps state")
}

func TestStateReflectsChirality(t *testing.T) {
	c := newCirculator(t, "-p 4")

	// Power-on state is counter-clockwise.
	assert.True(t, c.State(1, 0))
	assert.False(t, c.State(0, 1))

	require.True(t, c.Set(0, 1))
	assert.True(t, c.State(0, 1))
	assert.False(t, c.State(1, 0))
}

func TestHandleRequest(t *testing.T) {
	ctx := context.Background()
	c := newCirculator(t, "-p 4")

	resp, err := c.HandleRequest(ctx, request(t, action.Request, MethodGetState, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, true, resp.Result)

	resp, err = c.HandleRequest(ctx, request(t, action.Request, MethodGetChirality))
	require.NoError(t, err)
	assert.Equal(t, "ccw", resp.Result)

	_, err = c.HandleRequest(ctx, request(t, action.Request, "reboot"))
	assert.ErrorIs(t, err, wire.ErrMalformedInput)

	_, err = c.HandleRequest(ctx, request(t, action.Request, MethodGetState, 1))
	assert.ErrorIs(t, err, wire.ErrMalformedInput)

	_, err = c.HandleRequest(ctx, request(t, action.Request, MethodGetState, "a", "b"))
	assert.ErrorIs(t, err, wire.ErrMalformedInput)

	_, err = c.HandleRequest(ctx, request(t, action.Request, MethodGetState, -1, 0))
	assert.ErrorIs(t, err, wire.ErrMalformedInput)
}

func TestHandlePush(t *testing.T) {
	ctx := context.Background()
	c := newCirculator(t, "-p 4")

	ok, err := c.HandlePush(ctx, request(t, action.Push, MethodConfigure, 0, 1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, CW, c.Chirality())

	ok, err = c.HandlePush(ctx, request(t, action.Push, MethodConfigure, 9, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.HandlePush(ctx, request(t, action.Push, "explode", 0, 1))
	assert.ErrorIs(t, err, wire.ErrMalformedInput)
}

func TestModule(t *testing.T) {
	m, err := New("")
	require.NoError(t, err)
	assert.Equal(t, Name, m.Name())
	assert.Equal(t, []string{UnitCirculator}, m.Units())

	loaded, err := m.LoadUnit(UnitCirculator, "-p 4")
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, Capabilities, m.Capabilities())
	assert.False(t, m.Producing())

	ok, err := m.HandlePush(context.Background(), request(t, action.Push, MethodConfigure, 2, 3))
	require.NoError(t, err)
	assert.True(t, ok)

	resp, err := m.HandleRequest(context.Background(), request(t, action.Request, MethodGetState, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, true, resp.Result)
	m.UnloadUnit()

	_, err = m.LoadUnit("relay", "")
	assert.ErrorIs(t, err, module.ErrUnitNotFound)
}

func TestChiralityString(t *testing.T) {
	assert.Equal(t, "cw", CW.String())
	assert.Equal(t, "ccw", CCW.String())
	assert.Equal(t, "Chirality(7)", Chirality(7).String())
}
