//go:build integration

package natsupload

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/vitalstream/output/governor"
	"github.com/c360/vitalstream/testutil"
)

// startJetStream runs a JetStream-enabled broker for the test and returns its URL
func startJetStream(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.11.7-alpine",
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222", "--js"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(30*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start NATS container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func connectUploader(t *testing.T, url string) *Uploader {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url
	u, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, u.Connect(ctx))
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func TestIntegration_PublishAndDedupe(t *testing.T) {
	url := startJetStream(t)
	u := connectUploader(t, url)
	assert.True(t, u.Connected())

	ctx := context.Background()
	batches := testutil.Batches(3)
	for _, b := range batches {
		require.NoError(t, u.Upload(ctx, b))
	}
	require.NoError(t, u.Upload(ctx, batches[0]), "redelivery is acknowledged")
	assert.Equal(t, int64(3), u.Published())
	assert.Equal(t, int64(1), u.Duplicates())

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()
	js, err := jetstream.New(conn)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "VITALSTREAM")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.State.Msgs)

	msg, err := stream.GetMsg(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, batches[0].ID, msg.Header.Get("Nats-Msg-Id"))
	assert.Equal(t, "gzip", msg.Header.Get("Content-Encoding"))
	assert.Equal(t, batches[0].Payload, msg.Data)
}

func TestIntegration_ThroughGovernor(t *testing.T) {
	url := startJetStream(t)
	u := connectUploader(t, url)

	outcomes := make(chan governor.Outcome, 8)
	g, err := governor.New(governor.Deps{
		Config:   governor.DefaultConfig(),
		Uploader: u,
		Outcomes: outcomes,
	})
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))

	for _, b := range testutil.Batches(4) {
		require.NoError(t, g.Submit(b))
	}
	require.NoError(t, g.Stop(10*time.Second))

	for i := 0; i < 4; i++ {
		o := <-outcomes
		assert.Equal(t, governor.StateSucceeded, o.State, "batch %s", o.BatchID)
	}
	assert.Equal(t, int64(4), u.Published())
}
