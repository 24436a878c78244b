package telemetry

// Record kinds written by the daemon into batches
const (
	KindVitals   = "vitals"
	KindWaveform = "waveform"
	KindStatus   = "status"
)

// VitalsRecord is the batch representation of one vitals frame
type VitalsRecord struct {
	Kind        string  `json:"kind"`
	DeviceID    string  `json:"device_id"`
	Sequence    uint64  `json:"seq"`
	Timestamp   string  `json:"ts"`
	HeartRate   float32 `json:"hr"`
	SpO2        float32 `json:"spo2"`
	RespRate    float32 `json:"rr"`
	SampleEpoch int64   `json:"sample_ts"`
}

// WaveformRecord is the batch representation of one waveform frame
type WaveformRecord struct {
	Kind       string    `json:"kind"`
	DeviceID   string    `json:"device_id"`
	Sequence   uint64    `json:"seq"`
	Channel    string    `json:"channel"`
	SampleRate uint32    `json:"sample_rate"`
	StartEpoch int64     `json:"start_ts"`
	Samples    []float32 `json:"samples"`
}

// StatusRecord captures a producer connection state change
type StatusRecord struct {
	Kind      string `json:"kind"`
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"ts"`
	State     string `json:"state"`
	Detail    string `json:"detail,omitempty"`
}
