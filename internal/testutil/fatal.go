package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FatalRecorder collects errors passed to a fatal hook instead of exiting.
type FatalRecorder struct {
	mu   sync.Mutex
	errs []error
	ch   chan error
}

// NewFatalRecorder creates an empty recorder.
func NewFatalRecorder() *FatalRecorder {
	return &FatalRecorder{ch: make(chan error, 16)}
}

// Fatal records err. It has the signature of a fatal hook.
func (r *FatalRecorder) Fatal(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()

	select {
	case r.ch <- err:
	default:
	}
}

// Errors returns the recorded errors.
func (r *FatalRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Wait returns the next recorded error, or nil after timeout.
func (r *FatalRecorder) Wait(timeout time.Duration) error {
	select {
	case err := <-r.ch:
		return err
	case <-time.After(timeout):
		return nil
	}
}

var endpointSeq atomic.Int64

// InprocEndpoint returns a process-unique inproc endpoint.
func InprocEndpoint(name string) string {
	return fmt.Sprintf("inproc://%s-%d", name, endpointSeq.Add(1))
}
