package batch

import (
	"github.com/c360/vitalstream/input/sensor"
	"github.com/c360/vitalstream/pkg/timestamp"
	"github.com/c360/vitalstream/telemetry"
)

// recordFor converts a sensor event to its batch record
func recordFor(deviceID string, ev sensor.Event) (any, bool) {
	switch ev.Kind {
	case sensor.EventVitals:
		return telemetry.VitalsRecord{
			Kind:        telemetry.KindVitals,
			DeviceID:    deviceID,
			Sequence:    ev.Sequence,
			Timestamp:   timestamp.Format(int64(ev.Timestamp)),
			HeartRate:   ev.Vitals.HeartRate,
			SpO2:        ev.Vitals.SpO2,
			RespRate:    ev.Vitals.RespRate,
			SampleEpoch: ev.Vitals.SampleTimestamp,
		}, true
	case sensor.EventWaveform:
		return telemetry.WaveformRecord{
			Kind:       telemetry.KindWaveform,
			DeviceID:   deviceID,
			Sequence:   ev.Sequence,
			Channel:    ev.Waveform.Channel.String(),
			SampleRate: ev.Waveform.SampleRate,
			StartEpoch: ev.Waveform.StartTimestamp,
			Samples:    ev.Waveform.Valid(),
		}, true
	case sensor.EventStatus:
		return telemetry.StatusRecord{
			Kind:      telemetry.KindStatus,
			DeviceID:  deviceID,
			Timestamp: timestamp.Format(int64(ev.Timestamp)),
			State:     ev.State.String(),
			Detail:    ev.Detail,
		}, true
	default:
		return nil, false
	}
}
