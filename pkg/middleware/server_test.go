package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armish/fireplace/internal/testutil"
	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/metrics"
	"github.com/armish/fireplace/pkg/module"
	"github.com/armish/fireplace/pkg/transport"
	"github.com/armish/fireplace/pkg/wire"
)

// stubManager dispatches to optional handler functions.
type stubManager struct {
	mu       sync.Mutex
	listener module.Listener

	request func(ctx context.Context, req *wire.Request) (*wire.Response, error)
	push    func(ctx context.Context, req *wire.Request) (bool, error)
}

func (m *stubManager) HandleRequest(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if m.request == nil {
		return wire.NewResponse(req.Method), nil
	}
	return m.request(ctx, req)
}

func (m *stubManager) HandlePush(ctx context.Context, req *wire.Request) (bool, error) {
	if m.push == nil {
		return true, nil
	}
	return m.push(ctx, req)
}

func (m *stubManager) SetListener(l module.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

func (m *stubManager) ClearListener() { m.SetListener(nil) }

func (m *stubManager) hasListener() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener != nil
}

func echoRequest(_ context.Context, req *wire.Request) (*wire.Response, error) {
	if req.Method != "echo" {
		return nil, wire.ErrMalformedInput
	}
	s, err := req.ParamString(0)
	if err != nil {
		return nil, err
	}
	return wire.NewResponse(s), nil
}

func testConfig(t *testing.T) (Config, *testutil.FatalRecorder) {
	t.Helper()
	rec := testutil.NewFatalRecorder()
	cfg := DefaultConfig()
	cfg.SyncRecvTimeout = 20 * time.Millisecond
	cfg.AsyncWaitTimeout = 20 * time.Millisecond
	cfg.OnFatal = rec.Fatal
	cfg.Metrics = metrics.New()
	return cfg, rec
}

func newTestServer(t *testing.T, mgr Manager, cfg Config) *Server {
	t.Helper()
	s := New(mgr, cfg)
	require.NoError(t, s.Setup(testutil.InprocEndpoint("in"), testutil.InprocEndpoint("out")))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dial(t *testing.T, endpoint string) transport.Socket {
	t.Helper()
	sock, err := transport.Dial(context.Background(), endpoint, transport.Options{
		RecvTimeout: 2 * time.Second,
		SendTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sock.Close() })
	return sock
}

func roundTrip(t *testing.T, client transport.Socket, msg string) string {
	t.Helper()
	require.NoError(t, client.Send([]byte(msg)))
	got, err := client.Recv()
	require.NoError(t, err)
	return string(got)
}

func TestNewRegistersListener(t *testing.T) {
	mgr := &stubManager{}
	cfg, _ := testConfig(t)
	s := New(mgr, cfg)
	assert.True(t, mgr.hasListener())
	assert.Equal(t, StateStopped, s.State())

	require.NoError(t, s.Close())
	assert.False(t, mgr.hasListener())
}

func TestSetup(t *testing.T) {
	cfg, _ := testConfig(t)
	s := newTestServer(t, &stubManager{}, cfg)

	assert.ErrorIs(t, s.Setup("bogus://x", ""), transport.ErrUnsupportedScheme)
	assert.ErrorIs(t, s.Setup("", "nope"), transport.ErrInvalidEndpoint)
	require.NoError(t, s.Setup(testutil.InprocEndpoint("in"), ""))

	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request)))
	assert.ErrorIs(t, s.Setup(testutil.InprocEndpoint("in"), ""), ErrRunning)

	s.Stop()
	assert.NoError(t, s.Setup(testutil.InprocEndpoint("in"), ""))
}

func TestNotifyRequestOnlyStartsSyncWorker(t *testing.T) {
	cfg, rec := testConfig(t)
	s := newTestServer(t, &stubManager{}, cfg)

	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request)))
	assert.True(t, s.Running())
	assert.Equal(t, []string{metrics.WorkerSync}, s.Workers())
	assert.NotEmpty(t, s.InboundEndpoint())
	assert.Empty(t, s.OutboundEndpoint())

	// The inbound endpoint is bound by the time Notify returns.
	_, err := transport.Listen(s.InboundEndpoint(), transport.Options{})
	assert.Error(t, err)

	assert.Empty(t, rec.Errors())
}

func TestNotifyRequestWaitStartsBothWorkers(t *testing.T) {
	cfg, _ := testConfig(t)
	s := newTestServer(t, &stubManager{}, cfg)

	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request, action.Wait)))
	assert.Equal(t, []string{metrics.WorkerSync, metrics.WorkerAsync}, s.Workers())
	assert.NotEmpty(t, s.InboundEndpoint())
	assert.NotEmpty(t, s.OutboundEndpoint())

	for _, ep := range []string{s.InboundEndpoint(), s.OutboundEndpoint()} {
		_, err := transport.Listen(ep, transport.Options{})
		assert.Error(t, err, "endpoint %s should be bound", ep)
	}
}

func TestNotifyReplyOnlyStartsAsyncWorker(t *testing.T) {
	cfg, _ := testConfig(t)
	s := newTestServer(t, &stubManager{}, cfg)

	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Reply)))
	assert.Equal(t, []string{metrics.WorkerAsync}, s.Workers())
	assert.Empty(t, s.InboundEndpoint())
}

func TestNotifyEmptyMask(t *testing.T) {
	cfg, _ := testConfig(t)
	s := newTestServer(t, &stubManager{}, cfg)

	require.NoError(t, s.Notify(buffer.NewQueue(), 0))
	assert.False(t, s.Running())
	assert.Empty(t, s.Workers())
}

func TestNotifyRequiresEndpoint(t *testing.T) {
	cfg, rec := testConfig(t)
	s := New(&stubManager{}, cfg)
	defer s.Close()

	err := s.Notify(buffer.NewQueue(), action.Pack(action.Push))
	assert.ErrorIs(t, err, ErrEndpointRequired)

	require.NoError(t, s.Setup(testutil.InprocEndpoint("in"), ""))
	err = s.Notify(buffer.NewQueue(), action.Pack(action.Push, action.Wait))
	assert.ErrorIs(t, err, ErrEndpointRequired)
	assert.False(t, s.Running())
	assert.Empty(t, rec.Errors())
}

func TestBindFailureIsFatal(t *testing.T) {
	cfg, rec := testConfig(t)
	errBind := errors.New("address in use")
	cfg.Listen = func(endpoint string, opts transport.Options) (transport.Socket, error) {
		return nil, errBind
	}
	s := newTestServer(t, &stubManager{}, cfg)

	err := s.Notify(buffer.NewQueue(), action.Pack(action.Request, action.Reply))
	assert.ErrorIs(t, err, errBind)
	assert.False(t, s.Running())
	assert.Empty(t, s.Workers())

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errBind)
}

func TestPartialBindFailureStopsStartedWorker(t *testing.T) {
	cfg, rec := testConfig(t)
	errBind := errors.New("no route")
	cfg.Listen = func(endpoint string, opts transport.Options) (transport.Socket, error) {
		if opts.RecvTimeout == 0 {
			// The async worker never receives.
			return nil, errBind
		}
		return transport.Listen(endpoint, opts)
	}
	s := newTestServer(t, &stubManager{}, cfg)
	inbound := s.iEndpoint

	err := s.Notify(buffer.NewQueue(), action.Pack(action.Request, action.Wait))
	assert.ErrorIs(t, err, errBind)
	assert.False(t, s.Running())
	assert.Len(t, rec.Errors(), 1)

	// The sync worker released its endpoint.
	sock, err := transport.Listen(inbound, transport.Options{})
	require.NoError(t, err)
	sock.Close()
}

func TestStopIsIdempotent(t *testing.T) {
	cfg, _ := testConfig(t)
	s := newTestServer(t, &stubManager{}, cfg)

	s.Stop()
	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request, action.Wait)))
	inbound := s.InboundEndpoint()

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	assert.Empty(t, s.Workers())
	assert.Empty(t, s.InboundEndpoint())

	// Endpoints are released after Stop.
	sock, err := transport.Listen(inbound, transport.Options{})
	require.NoError(t, err)
	sock.Close()
}

func TestReconfigureIsStopThenStart(t *testing.T) {
	cfg, _ := testConfig(t)
	s := newTestServer(t, &stubManager{}, cfg)

	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request, action.Wait)))
	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request)))
	assert.Equal(t, []string{metrics.WorkerSync}, s.Workers())
	assert.Empty(t, s.OutboundEndpoint())

	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Push, action.Reply)))
	assert.Equal(t, []string{metrics.WorkerSync, metrics.WorkerAsync}, s.Workers())
}

func TestEchoEndToEnd(t *testing.T) {
	cfg, rec := testConfig(t)
	s := newTestServer(t, &stubManager{request: echoRequest}, cfg)
	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request)))

	client := dial(t, s.InboundEndpoint())
	got := roundTrip(t, client, `{"action":"request","method":"echo","parameters":["x"]}`)
	assert.Equal(t, `{"result":"x","error":false}`, got)
	assert.Empty(t, rec.Errors())
}

func TestEchoOverTCP(t *testing.T) {
	cfg, _ := testConfig(t)
	s := New(&stubManager{request: echoRequest}, cfg)
	defer s.Close()
	require.NoError(t, s.Setup("tcp://127.0.0.1:0", ""))
	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request)))

	client := dial(t, s.InboundEndpoint())
	for i := 0; i < 3; i++ {
		msg := fmt.Sprintf(`{"action":"request","method":"echo","parameters":["m%d"]}`, i)
		assert.Equal(t, fmt.Sprintf(`{"result":"m%d","error":false}`, i), roundTrip(t, client, msg))
	}
}

func TestSyncWorkerErrorResponses(t *testing.T) {
	mgr := &stubManager{
		request: func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
			if req.Method == "boom" {
				return nil, errors.New("boom")
			}
			return echoRequest(ctx, req)
		},
		push: func(_ context.Context, req *wire.Request) (bool, error) {
			if req.Method == "fail" {
				return false, errors.New("switch stuck")
			}
			return req.Method == "on", nil
		},
	}
	cfg, rec := testConfig(t)
	s := newTestServer(t, mgr, cfg)
	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request, action.Push)))
	client := dial(t, s.InboundEndpoint())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"not json", `garbage`, `{"result":"malformed input","error":true}`},
		{"missing action", `{"method":"echo","parameters":[]}`, `{"result":"malformed input","error":true}`},
		{"unknown action", `{"action":"shout","method":"echo"}`, `{"result":"malformed input","error":true}`},
		{"wait on sync endpoint", `{"action":"wait","method":"x","parameters":[]}`, `{"result":"malformed input","error":true}`},
		{"reply on sync endpoint", `{"action":"reply","method":"x","parameters":[]}`, `{"result":"malformed input","error":true}`},
		{"unknown method", `{"action":"request","method":"nope","parameters":[]}`, `{"result":"malformed input","error":true}`},
		{"bad parameter", `{"action":"request","method":"echo","parameters":[1]}`, `{"result":"malformed input","error":true}`},
		{"dispatch error", `{"action":"request","method":"boom","parameters":[]}`, `{"result":"boom","error":true}`},
		{"push true", `{"action":"push","method":"on","parameters":[]}`, `{"result":true,"error":false}`},
		{"push false", `{"action":"push","method":"off","parameters":[]}`, `{"result":false,"error":false}`},
		{"push error", `{"action":"push","method":"fail","parameters":[]}`, `{"result":"switch stuck","error":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roundTrip(t, client, tt.in))
		})
	}

	// The worker survives every per-request failure.
	assert.True(t, s.Running())
	assert.Empty(t, rec.Errors())
}

func TestNilResultIsFatal(t *testing.T) {
	mgr := &stubManager{
		request: func(context.Context, *wire.Request) (*wire.Response, error) { return nil, nil },
	}
	cfg, rec := testConfig(t)
	s := newTestServer(t, mgr, cfg)
	require.NoError(t, s.Notify(buffer.NewQueue(), action.Pack(action.Request)))

	client := dial(t, s.InboundEndpoint())
	require.NoError(t, client.Send([]byte(`{"action":"request","method":"x","parameters":[]}`)))

	err := rec.Wait(2 * time.Second)
	assert.ErrorIs(t, err, ErrNilResult)
}

func TestAsyncForwardsBatchInOrder(t *testing.T) {
	cfg, rec := testConfig(t)
	cfg.Threshold = 100
	cfg.AsyncWaitTimeout = 500 * time.Millisecond
	cfg.MaxTimeouts = 4
	s := New(&stubManager{}, cfg)
	defer s.Close()
	require.NoError(t, s.Setup("", "tcp://127.0.0.1:0"))

	queue := buffer.NewQueue()
	require.NoError(t, s.Notify(queue, action.Pack(action.Wait)))
	client := dial(t, s.OutboundEndpoint())

	start := time.Now()
	for i := 0; i < 150; i++ {
		queue.Push(buffer.NewItem([]byte(fmt.Sprintf("item-%03d", i)), "meta"))
	}

	for i := 0; i < 100; i++ {
		got, err := client.Recv()
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("item-%03d", i), string(got))
	}
	fallback := cfg.AsyncWaitTimeout * time.Duration(cfg.MaxTimeouts)
	assert.Less(t, time.Since(start), fallback, "threshold release must beat the forced flush")
	assert.Empty(t, rec.Errors())
}

func TestAsyncForcedFlush(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Threshold = 100
	cfg.AsyncWaitTimeout = 10 * time.Millisecond
	cfg.MaxTimeouts = 2
	s := newTestServer(t, &stubManager{}, cfg)

	queue := buffer.NewQueue()
	require.NoError(t, s.Notify(queue, action.Pack(action.Reply)))
	client := dial(t, s.OutboundEndpoint())

	for i := 0; i < 5; i++ {
		queue.Push(buffer.NewItem([]byte{byte('a' + i)}))
	}
	for i := 0; i < 5; i++ {
		got, err := client.Recv()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte('a' + i)}, got)
	}
	assert.Equal(t, 0, queue.Len())
}

func TestAsyncDropsUndeliverableItems(t *testing.T) {
	cfg, rec := testConfig(t)
	cfg.Threshold = 1
	cfg.AsyncSendTimeout = 10 * time.Millisecond
	s := New(&stubManager{}, cfg)
	defer s.Close()
	require.NoError(t, s.Setup("", "tcp://127.0.0.1:0"))

	queue := buffer.NewQueue()
	require.NoError(t, s.Notify(queue, action.Pack(action.Wait)))

	// No client: the send times out and the item is dropped.
	queue.Push(buffer.NewItem([]byte("lost")))
	// Empty payloads are dropped too.
	queue.Push(buffer.NewItem(nil))

	require.Eventually(t, func() bool { return queue.Len() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, s.Running())
	assert.Empty(t, rec.Errors())
}

func TestServerWithManager(t *testing.T) {
	unit := &testutil.ProducerUnit{}
	unit.On("Configure", "").Return(nil)
	reg := module.NewRegistry()
	reg.MustRegister("sim", func(string) (*module.Module, error) {
		return module.New("sim", action.Pack(action.Request, action.Wait)).
			MustRegisterUnit("producer", func() module.Unit { return unit }), nil
	})
	mgr := module.NewManager(reg, module.Options{})

	cfg, rec := testConfig(t)
	cfg.Threshold = 1
	s := New(mgr, cfg)
	defer s.Close()
	require.NoError(t, s.Setup(testutil.InprocEndpoint("in"), testutil.InprocEndpoint("out")))

	require.NoError(t, mgr.LoadModule("sim", ""))
	require.NoError(t, mgr.LoadUnit("producer", ""))
	require.Equal(t, []string{metrics.WorkerSync, metrics.WorkerAsync}, s.Workers())

	out := dial(t, s.OutboundEndpoint())
	unit.Emit(buffer.NewItem([]byte("sample")))
	got, err := out.Recv()
	require.NoError(t, err)
	assert.Equal(t, "sample", string(got))

	// Unloading and closing the server leaves nothing running.
	mgr.UnloadModule()
	require.NoError(t, s.Close())
	assert.False(t, s.Running())
	assert.Empty(t, rec.Errors())
}

func TestManagerListenerAfterClose(t *testing.T) {
	unit := &testutil.MockUnit{}
	unit.On("Configure", "").Return(nil)
	reg := module.NewRegistry()
	reg.MustRegister("sim", func(string) (*module.Module, error) {
		return module.New("sim", action.Pack(action.Request)).
			MustRegisterUnit("u", func() module.Unit { return unit }), nil
	})
	mgr := module.NewManager(reg, module.Options{})

	cfg, _ := testConfig(t)
	s := New(mgr, cfg)
	require.NoError(t, s.Setup(testutil.InprocEndpoint("in"), ""))
	require.NoError(t, s.Close())

	require.NoError(t, mgr.LoadModule("sim", ""))
	require.NoError(t, mgr.LoadUnit("u", ""))
	assert.False(t, s.Running())
}
