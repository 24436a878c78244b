package testutil

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/c360/vitalstream/telemetry"
)

// TestDeviceID is the device id stamped on fixture batches
const TestDeviceID = "monitor-test"

// TestRecords contains one line of each record kind
var TestRecords = []string{
	`{"kind":"status","device_id":"monitor-test","ts":"2026-01-01T00:00:00.000Z","state":"connected"}`,
	`{"kind":"vitals","device_id":"monitor-test","seq":1,"ts":"2026-01-01T00:00:00.016Z","hr":72,"spo2":98,"rr":14,"sample_ts":1767225600016}`,
	`{"kind":"waveform","device_id":"monitor-test","seq":2,"channel":"ecg","sample_rate":250,"start_ts":1767225600020,"samples":[0.1,0.2,0.3]}`,
}

// NewBatch seals records into a gzip NDJSON batch with a fresh id
func NewBatch(records ...string) telemetry.Batch {
	if len(records) == 0 {
		records = TestRecords
	}
	raw := strings.Join(records, "\n") + "\n"

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(raw)); err != nil {
		panic(fmt.Sprintf("testutil: gzip write: %v", err))
	}
	if err := zw.Close(); err != nil {
		panic(fmt.Sprintf("testutil: gzip close: %v", err))
	}

	return telemetry.Batch{
		ID:        uuid.NewString(),
		DeviceID:  TestDeviceID,
		CreatedAt: time.Now().UTC(),
		Records:   len(records),
		RawBytes:  len(raw),
		Encoding:  telemetry.EncodingGzip,
		Payload:   buf.Bytes(),
	}
}

// Batches returns n fixture batches
func Batches(n int) []telemetry.Batch {
	out := make([]telemetry.Batch, n)
	for i := range out {
		out[i] = NewBatch(fmt.Sprintf(`{"kind":"vitals","device_id":"%s","seq":%d}`, TestDeviceID, i))
	}
	return out
}
