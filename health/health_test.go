package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/component"
)

type stubComponent struct {
	name   string
	health component.HealthStatus
	flow   component.FlowMetrics
}

func (s stubComponent) Meta() component.Metadata        { return component.Metadata{Name: s.name} }
func (s stubComponent) Health() component.HealthStatus  { return s.health }
func (s stubComponent) DataFlow() component.FlowMetrics { return s.flow }

func TestConstructors(t *testing.T) {
	h := NewHealthy("reader", "ok")
	assert.True(t, h.Healthy)
	assert.True(t, h.IsHealthy())
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("reader", "stalled")
	assert.False(t, d.Healthy)
	assert.True(t, d.IsDegraded())

	u := NewUnhealthy("reader", "disconnected")
	assert.False(t, u.Healthy)
	assert.True(t, u.IsUnhealthy())
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", ""), NewHealthy("c", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_DoesNotShareInput(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	agg := Aggregate("system", subs)
	subs[0].Message = "changed"
	assert.Empty(t, agg.SubStatuses[0].Message)
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	base := NewHealthy("root", "").WithSubStatus(NewHealthy("a", ""))
	left := base.WithSubStatus(NewHealthy("left", ""))
	right := base.WithSubStatus(NewHealthy("right", ""))

	assert.Equal(t, "left", left.SubStatuses[1].Component)
	assert.Equal(t, "right", right.SubStatuses[1].Component)
	assert.Len(t, base.SubStatuses, 1)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		absent   string
	}{
		{"socket path", "dial unix /tmp/vitalstream.sock: connect refused", "[PATH]", "/tmp/vitalstream.sock"},
		{"upload url", "post https://ingest.example.com/v1/batches: timeout", "[URL]", "ingest.example.com"},
		{"nats url", "connect nats://10.0.0.5:4222 failed", "[URL]", "10.0.0.5"},
		{"ip and port", "read 192.168.1.10:8443 reset", "[IP]", "192.168.1.10"},
		{"signing key", "signing_key=supersecret invalid", "[REDACTED]", "supersecret"},
		{"bearer", "rejected Bearer abc.def.ghi", "[REDACTED]", "abc.def.ghi"},
		{"empty", "", "", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeErrorMessage(tt.input)
			assert.Contains(t, got, tt.contains)
			assert.NotContains(t, got, tt.absent)
		})
	}
}

func TestFromComponentHealth(t *testing.T) {
	now := time.Now()

	healthy := FromComponentHealth("reader", component.HealthStatus{Healthy: true, Uptime: time.Minute, LastCheck: now},
		component.FlowMetrics{MessagesPerSecond: 60})
	assert.True(t, healthy.IsHealthy())
	require.NotNil(t, healthy.Metrics)
	assert.Equal(t, 60.0, healthy.Metrics.MessagesPerSecond)
	assert.Equal(t, now, healthy.Metrics.LastActivity)

	degraded := FromComponentHealth("reader", component.HealthStatus{Healthy: true, Degraded: true, LastError: "producer stalled"},
		component.FlowMetrics{})
	assert.True(t, degraded.IsDegraded())
	assert.Equal(t, "producer stalled", degraded.Message)

	unhealthy := FromComponentHealth("governor", component.HealthStatus{LastError: "post https://x.example/up failed", ErrorCount: 3},
		component.FlowMetrics{})
	assert.True(t, unhealthy.IsUnhealthy())
	assert.NotContains(t, unhealthy.Message, "x.example")
	assert.Equal(t, 3, unhealthy.Metrics.ErrorCount)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("reader", "connected")
	m.UpdateDegraded("governor", "circuit open to https://up.example")
	m.Update("compiler", Status{Status: StatusHealthy, Healthy: true})

	assert.Equal(t, 3, m.Count())

	got, ok := m.Get("compiler")
	require.True(t, ok)
	assert.Equal(t, "compiler", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	gov, _ := m.Get("governor")
	assert.NotContains(t, gov.Message, "up.example")

	agg := m.AggregateHealth("vitalstream")
	assert.True(t, agg.IsDegraded())
	require.Len(t, agg.SubStatuses, 3)
	assert.Equal(t, "compiler", agg.SubStatuses[0].Component)
	assert.Equal(t, "reader", agg.SubStatuses[2].Component)

	m.Remove("governor")
	assert.True(t, m.AggregateHealth("vitalstream").IsHealthy())
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.UpdateHealthy("reader", "ok")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.AggregateHealth("vitalstream")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_Watch(t *testing.T) {
	m := NewMonitor()
	reader := stubComponent{name: "reader", health: component.HealthStatus{Healthy: true}}
	governor := stubComponent{name: "governor", health: component.HealthStatus{Healthy: true, Degraded: true}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, 10*time.Millisecond, reader, governor)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.True(t, m.AggregateHealth("vitalstream").IsDegraded())
}

func TestHandler(t *testing.T) {
	m := NewMonitor()
	h := Handler(m, "vitalstream")

	m.UpdateDegraded("reader", "stalled")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusDegraded, body.Status)
	assert.Equal(t, "vitalstream", body.Component)

	m.UpdateUnhealthy("reader", "disconnected")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
