package module

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/armish/fireplace/internal/testutil"
	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/metrics"
	"github.com/armish/fireplace/pkg/retry"
	"github.com/armish/fireplace/pkg/wire"
)

func newProducer(t *testing.T) *testutil.ProducerUnit {
	t.Helper()
	p := &testutil.ProducerUnit{}
	p.On("Configure", mock.Anything).Return(nil)
	return p
}

func newRequestUnit(t *testing.T) *testutil.MockUnit {
	t.Helper()
	u := &testutil.MockUnit{}
	u.On("Configure", mock.Anything).Return(nil)
	return u
}

func TestLoadUnitNotFound(t *testing.T) {
	m := New("m", action.Pack(action.Request))

	loaded, err := m.LoadUnit("missing", "")
	assert.False(t, loaded)
	assert.ErrorIs(t, err, ErrUnitNotFound)
	assert.Contains(t, err.Error(), "driver not found")
	assert.False(t, m.IsUnitLoaded())
	assert.Equal(t, StateUnloaded, m.State())
}

func TestRegisterUnitDuplicate(t *testing.T) {
	m := New("m", action.Pack(action.Request))
	factory := func() Unit { return BaseUnit{} }

	require.NoError(t, m.RegisterUnit("a", factory))
	assert.ErrorIs(t, m.RegisterUnit("a", factory), ErrDuplicate)
	assert.Panics(t, func() { m.MustRegisterUnit("a", factory) })

	m.MustRegisterUnit("b", factory)
	assert.Equal(t, []string{"a", "b"}, m.Units())
}

func TestLoadRequestOnlyUnitStartsNoProducer(t *testing.T) {
	unit := newRequestUnit(t)
	m := New("m", action.Pack(action.Request))
	m.MustRegisterUnit("u", func() Unit { return unit })

	loaded, err := m.LoadUnit("u", "-p 4")
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.True(t, m.IsUnitLoaded())
	assert.False(t, m.Producing())
	assert.Equal(t, "u", m.UnitName())
	assert.Equal(t, StateLoaded, m.State())
	unit.AssertCalled(t, "Configure", "-p 4")

	// Loading again is a no-op.
	loaded, err = m.LoadUnit("u", "")
	require.NoError(t, err)
	assert.False(t, loaded)
	unit.AssertNumberOfCalls(t, "Configure", 1)

	m.UnloadUnit()
	assert.False(t, m.IsUnitLoaded())
	assert.Equal(t, "", m.UnitName())

	// Unloading twice is a no-op.
	m.UnloadUnit()
}

func TestLoadWaitUnitStartsOneProducer(t *testing.T) {
	unit := newProducer(t)
	m := New("m", action.Pack(action.Request, action.Wait))
	m.MustRegisterUnit("p", func() Unit { return unit })

	loaded, err := m.LoadUnit("p", "")
	require.NoError(t, err)
	require.True(t, loaded)
	assert.True(t, m.Producing())

	require.Eventually(t, func() bool { return unit.Calls() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), unit.MaxConcurrent())

	m.UnloadUnit()
	assert.False(t, m.Producing())
	assert.Equal(t, int64(0), unit.Active(), "unload must join the production loop")
	assert.True(t, unit.Closed())

	calls := unit.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, unit.Calls(), "no production after unload")
}

func TestUnloadImmediatelyAfterLoad(t *testing.T) {
	m := New("m", action.Pack(action.Wait))
	m.MustRegisterUnit("p", func() Unit { return newProducer(t) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			loaded, err := m.LoadUnit("p", "")
			if err != nil || !loaded {
				t.Errorf("iteration %d: loaded=%v err=%v", i, loaded, err)
				return
			}
			m.UnloadUnit()
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("UnloadUnit right after LoadUnit did not return")
	}
	assert.False(t, m.IsUnitLoaded())
	assert.False(t, m.Producing())
}

func TestProducerFillsQueue(t *testing.T) {
	unit := newProducer(t)
	m := New("m", action.Pack(action.Reply))
	m.MustRegisterUnit("p", func() Unit { return unit })

	_, err := m.LoadUnit("p", "")
	require.NoError(t, err)
	defer m.UnloadUnit()

	for i := 0; i < 10; i++ {
		unit.Emit(buffer.NewItem([]byte{byte(i)}))
	}
	require.Eventually(t, func() bool { return m.Queue().Len() == 10 }, time.Second, time.Millisecond)

	items := m.Queue().PopAll()
	for i, item := range items {
		assert.Equal(t, []byte{byte(i)}, item.Data())
	}
}

func TestCapableUnitNarrowsModuleMask(t *testing.T) {
	unit := testutil.CapableProducer{ProducerUnit: newProducer(t), Caps: action.Pack(action.Request)}
	m := New("m", action.Pack(action.Push, action.Request, action.Wait))
	m.MustRegisterUnit("c", func() Unit { return unit })

	assert.Equal(t, action.Pack(action.Push, action.Request, action.Wait), m.Capabilities())

	_, err := m.LoadUnit("c", "")
	require.NoError(t, err)
	assert.Equal(t, action.Pack(action.Request), m.Capabilities())
	assert.False(t, m.Producing())

	m.UnloadUnit()
	assert.Equal(t, m.Declared(), m.Capabilities())
}

func TestCapabilityMismatch(t *testing.T) {
	unit := testutil.CapableProducer{ProducerUnit: newProducer(t), Caps: action.Pack(action.Request, action.Reply)}
	m := New("m", action.Pack(action.Request))
	m.MustRegisterUnit("c", func() Unit { return unit })

	_, err := m.LoadUnit("c", "")
	assert.ErrorIs(t, err, ErrCapabilityMismatch)
	assert.False(t, m.IsUnitLoaded())
	assert.True(t, unit.Closed())
}

func TestAsyncUnitMustProduce(t *testing.T) {
	m := New("m", action.Pack(action.Wait))
	m.MustRegisterUnit("u", func() Unit { return newRequestUnit(t) })

	_, err := m.LoadUnit("u", "")
	assert.ErrorIs(t, err, ErrNotProducer)
	assert.False(t, m.IsUnitLoaded())
}

func TestConfigureFailure(t *testing.T) {
	errBad := errors.New("bad ports")
	unit := &testutil.ProducerUnit{}
	unit.On("Configure", "-p x").Return(errBad)

	m := New("m", action.Pack(action.Request, action.Wait))
	m.MustRegisterUnit("u", func() Unit { return unit })

	_, err := m.LoadUnit("u", "-p x")
	assert.ErrorIs(t, err, errBad)
	assert.False(t, m.IsUnitLoaded())
	assert.False(t, m.Producing())
	assert.True(t, unit.Closed())
}

func TestModuleForwarding(t *testing.T) {
	ctx := context.Background()
	unit := newRequestUnit(t)
	m := New("m", action.Pack(action.Push, action.Request))
	m.MustRegisterUnit("u", func() Unit { return unit })

	req, err := wire.NewRequest(action.Request, "echo", "x")
	require.NoError(t, err)

	_, err = m.HandleRequest(ctx, req)
	assert.ErrorIs(t, err, ErrNothingLoaded)
	_, err = m.HandlePush(ctx, req)
	assert.ErrorIs(t, err, ErrNothingLoaded)

	_, err = m.LoadUnit("u", "")
	require.NoError(t, err)

	unit.On("HandleRequest", mock.Anything, req).Return(wire.NewResponse("x"), nil)
	unit.On("HandlePush", mock.Anything, req).Return(true, nil)

	resp, err := m.HandleRequest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "x", resp.Result)

	ok, err := m.HandlePush(ctx, req)
	require.NoError(t, err)
	assert.True(t, ok)

	unit.AssertExpectations(t)
}

func TestBaseUnitRejectsEverything(t *testing.T) {
	var u BaseUnit
	assert.NoError(t, u.Configure("anything"))
	_, err := u.HandleRequest(context.Background(), &wire.Request{})
	assert.ErrorIs(t, err, wire.ErrMalformedInput)
	_, err = u.HandlePush(context.Background(), &wire.Request{})
	assert.ErrorIs(t, err, wire.ErrMalformedInput)
}

func TestProductionErrorsBackOff(t *testing.T) {
	met := metrics.New()
	unit := newProducer(t)
	unit.Err = errors.New("device unplugged")

	m := New("m", action.Pack(action.Wait))
	m.MustRegisterUnit("p", func() Unit { return unit })
	m.attach(Options{
		Metrics: met,
		Backoff: retry.Config{Initial: 10 * time.Millisecond, Max: 10 * time.Millisecond},
	})

	_, err := m.LoadUnit("p", "")
	require.NoError(t, err)

	time.Sleep(55 * time.Millisecond)
	m.UnloadUnit()

	calls := unit.Calls()
	assert.GreaterOrEqual(t, calls, int64(2))
	assert.LessOrEqual(t, calls, int64(8), "failing producer must be paced")
	// The call interrupted by unload may go unrecorded.
	assert.InDelta(t, float64(calls), counterValue(t, met, "fireplace_module_production_errors_total"), 1)
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
	}
	return sum
}
