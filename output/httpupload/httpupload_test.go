package httpupload

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/output/governor"
	"github.com/c360/vitalstream/pkg/retry"
	"github.com/c360/vitalstream/testutil"
)

type capturedRequest struct {
	Method string
	Header http.Header
	Body   []byte
}

type collector struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	c.requests = append(c.requests, capturedRequest{Method: r.Method, Header: r.Header.Clone(), Body: body})
	status := c.status
	c.mu.Unlock()

	if status == 0 {
		status = http.StatusAccepted
	}
	w.WriteHeader(status)
	if status >= 300 {
		_, _ = io.WriteString(w, "  rejected by collector\n")
	}
}

func (c *collector) last(t *testing.T) capturedRequest {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.requests)
	return c.requests[len(c.requests)-1]
}

func newUploader(t *testing.T, url string, mutate func(*Config)) *Uploader {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.AllowInsecure = true
	if mutate != nil {
		mutate(&cfg)
	}
	u, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorIs(t, cfg.Validate(), errors.ErrMissingConfig)

	tests := []struct {
		name     string
		url      string
		insecure bool
		ok       bool
	}{
		{"https", "https://collector.example/v1/batches", false, true},
		{"plain http refused", "http://127.0.0.1:8080/ingest", false, false},
		{"plain http allowed", "http://127.0.0.1:8080/ingest", true, true},
		{"ftp scheme", "ftp://collector.example", true, false},
		{"no host", "https:///path", false, false},
		{"garbage", "://bad", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.URL = tt.url
			cfg.AllowInsecure = tt.insecure
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.True(t, errors.IsInvalid(cfg.Validate()))
			}
		})
	}

	cfg = DefaultConfig()
	cfg.URL = "https://collector.example"
	cfg.TLS.MinVersion = "1.0"
	assert.Error(t, cfg.Validate())
}

func TestUpload_SendsBatchWithHeaders(t *testing.T) {
	c := &collector{}
	server := httptest.NewServer(c)
	defer server.Close()

	u := newUploader(t, server.URL+"/ingest", func(cfg *Config) {
		cfg.Headers["X-Site"] = "ward-3"
	})
	b := testutil.NewBatch()

	require.NoError(t, u.Upload(context.Background(), b))

	req := c.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/x-ndjson", req.Header.Get("Content-Type"))
	assert.Equal(t, "gzip", req.Header.Get("Content-Encoding"))
	assert.Equal(t, b.ID, req.Header.Get(HeaderBatchID))
	assert.Equal(t, testutil.TestDeviceID, req.Header.Get(HeaderDeviceID))
	assert.Equal(t, "ward-3", req.Header.Get("X-Site"))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, b.Payload, req.Body)

	zr, err := gzip.NewReader(bytes.NewReader(req.Body))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, len(testutil.TestRecords), strings.Count(string(raw), "\n"))

	assert.Equal(t, int64(1), u.Sent())
	assert.Equal(t, int64(0), u.Failed())
}

func TestUpload_SignedToken(t *testing.T) {
	c := &collector{}
	server := httptest.NewServer(c)
	defer server.Close()

	key := "ward-3-shared-secret"
	u := newUploader(t, server.URL, func(cfg *Config) { cfg.SigningKey = key })
	b := testutil.NewBatch()

	require.NoError(t, u.Upload(context.Background(), b))
	first := c.last(t)
	require.NoError(t, u.Upload(context.Background(), b))
	second := c.last(t)

	auth := first.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(auth, "Bearer "))
	claims, err := VerifyBatch(strings.TrimPrefix(auth, "Bearer "), []byte(key), first.Body)
	require.NoError(t, err)
	assert.Equal(t, b.ID, claims.BatchID)
	assert.Equal(t, testutil.TestDeviceID, claims.DeviceID)
	assert.Equal(t, PayloadDigest(b.Payload), claims.SHA256)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.IssuedAt)

	again, err := VerifyBatch(strings.TrimPrefix(second.Header.Get("Authorization"), "Bearer "), []byte(key), second.Body)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, again.ID, "each upload carries a fresh nonce")

	_, err = VerifyBatch(strings.TrimPrefix(auth, "Bearer "), []byte("wrong-key"), first.Body)
	assert.Error(t, err)

	_, err = VerifyBatch(strings.TrimPrefix(auth, "Bearer "), []byte(key), []byte("tampered"))
	assert.ErrorIs(t, err, errors.ErrDataCorrupted)
}

func TestUpload_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusRequestEntityTooLarge, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := &collector{status: tt.status}
			server := httptest.NewServer(c)
			defer server.Close()

			u := newUploader(t, server.URL, nil)
			err := u.Upload(context.Background(), testutil.NewBatch())
			require.Error(t, err)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.Code)
			assert.Equal(t, "rejected by collector", statusErr.Body)
			assert.Equal(t, tt.temporary, statusErr.Temporary())
			assert.True(t, errors.IsTransient(err), "every refusal is left to the governor's retry policy")
			assert.False(t, retry.IsNonRetryable(err))
			assert.Equal(t, int64(1), u.Failed())
		})
	}
}

func TestUpload_BadRequestRetriedByGovernor(t *testing.T) {
	c := &collector{status: http.StatusBadRequest}
	server := httptest.NewServer(c)
	defer server.Close()

	outcomes := make(chan governor.Outcome, 1)
	cfg := governor.DefaultConfig()
	cfg.Retry = retry.Config{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	cfg.Breaker.FailureThreshold = 10
	gov, err := governor.New(governor.Deps{
		Config:   cfg,
		Uploader: newUploader(t, server.URL, nil),
		Outcomes: outcomes,
	})
	require.NoError(t, err)
	require.NoError(t, gov.Start(context.Background()))
	defer gov.Stop(time.Second)

	require.NoError(t, gov.Submit(testutil.NewBatch()))

	select {
	case o := <-outcomes:
		assert.Equal(t, governor.StateAbandoned, o.State)
		assert.Equal(t, 3, o.Attempts)
		assert.ErrorIs(t, o.Err, errors.ErrMaxRetriesExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.requests, 3)
}

func TestUpload_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	u := newUploader(t, server.URL, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	start := time.Now()
	err := u.Upload(context.Background(), testutil.NewBatch())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUploadTimeout)
	assert.True(t, errors.IsTransient(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUpload_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	u := newUploader(t, url, nil)
	err := u.Upload(context.Background(), testutil.NewBatch())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUploadFailed)
	assert.True(t, errors.IsTransient(err))
	assert.False(t, retry.IsNonRetryable(err))
}

func TestUpload_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	u := newUploader(t, server.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := u.Upload(ctx, testutil.NewBatch())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errors.ErrUploadTimeout)
}

func writeServerCA(t *testing.T, server *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collector-ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestUpload_TLS(t *testing.T) {
	c := &collector{}
	server := httptest.NewTLSServer(c)
	defer server.Close()

	// untrusted without the collector CA
	u := newUploader(t, server.URL, nil)
	err := u.Upload(context.Background(), testutil.NewBatch())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	caFile := writeServerCA(t, server)
	u = newUploader(t, server.URL, func(cfg *Config) { cfg.TLS.CAFiles = []string{caFile} })
	require.NoError(t, u.Upload(context.Background(), testutil.NewBatch()))
}

func TestUpload_TLSMinVersion(t *testing.T) {
	server := httptest.NewUnstartedServer(&collector{})
	server.TLS = &tls.Config{MaxVersion: tls.VersionTLS12}
	server.StartTLS()
	defer server.Close()

	caFile := writeServerCA(t, server)

	u := newUploader(t, server.URL, func(cfg *Config) { cfg.TLS.CAFiles = []string{caFile} })
	require.NoError(t, u.Upload(context.Background(), testutil.NewBatch()))

	u = newUploader(t, server.URL, func(cfg *Config) {
		cfg.TLS.CAFiles = []string{caFile}
		cfg.TLS.MinVersion = "1.3"
	})
	assert.Error(t, u.Upload(context.Background(), testutil.NewBatch()))
}

func TestUploader_WithGovernorSemantics(t *testing.T) {
	// a collector that fails once then accepts: one attempt per call, no hidden retry
	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u := newUploader(t, server.URL, nil)
	b := testutil.NewBatch()
	assert.Error(t, u.Upload(context.Background(), b))
	assert.NoError(t, u.Upload(context.Background(), b))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}
