package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/c360/vitalstream/telemetry"
)

// UploadCall records one Upload invocation
type UploadCall struct {
	Batch telemetry.Batch
	At    time.Time
	Err   error
}

// MockUploader is a scripted, thread-safe uploader
type MockUploader struct {
	mu sync.Mutex

	// UploadFunc, when set, overrides the scripted results
	UploadFunc func(ctx context.Context, b telemetry.Batch) error

	// Delay is applied before each call returns; ctx cancellation cuts it short
	Delay time.Duration

	script []error
	calls  []UploadCall
}

// NewMockUploader creates an uploader that succeeds unless scripted otherwise
func NewMockUploader() *MockUploader {
	return &MockUploader{}
}

// Script queues results for the next calls, in order. Once exhausted, calls succeed.
func (m *MockUploader) Script(results ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, results...)
}

// FailAlways makes every call return err
func (m *MockUploader) FailAlways(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UploadFunc = func(context.Context, telemetry.Batch) error { return err }
}

// Upload implements the governor's Uploader interface
func (m *MockUploader) Upload(ctx context.Context, b telemetry.Batch) error {
	m.mu.Lock()
	fn := m.UploadFunc
	delay := m.Delay
	var scripted error
	if fn == nil && len(m.script) > 0 {
		scripted = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	var err error
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-timer.C:
		}
		timer.Stop()
	}

	if err == nil {
		if fn != nil {
			err = fn(ctx, b)
		} else {
			err = scripted
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, UploadCall{Batch: b, At: time.Now(), Err: err})
	m.mu.Unlock()
	return err
}

// Calls returns a copy of the call log
func (m *MockUploader) Calls() []UploadCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]UploadCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of Upload calls so far
func (m *MockUploader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// BatchIDs returns the batch id of every call, in order
func (m *MockUploader) BatchIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(m.calls))
	for i, c := range m.calls {
		ids[i] = c.Batch.ID
	}
	return ids
}

// WaitForCalls fails the test if fewer than n calls arrive within timeout
func WaitForCalls(t *testing.T, m *MockUploader, n int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.CallCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d upload calls, got %d after %v", n, m.CallCount(), timeout)
}

// MockError is a generic error for testing error paths.
type MockError struct {
	Message string
	Code    string
}

func (e *MockError) Error() string {
	return e.Message
}

// NewMockError creates a new mock error.
func NewMockError(message, code string) error {
	return &MockError{
		Message: message,
		Code:    code,
	}
}

// Common test errors
var (
	ErrMockFailed     = errors.New("mock operation failed")
	ErrMockTimeout    = errors.New("mock operation timed out")
	ErrMockConnection = errors.New("mock connection error")
)
