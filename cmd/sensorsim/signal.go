package main

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/c360/vitalstream/frame"
)

// Waveform sample rates in Hz
const (
	ecgSampleRate   = 250
	plethSampleRate = 125
	respSampleRate  = 25
)

// generator produces plausible adult vitals and waveforms. Not safe for
// concurrent use.
type generator struct {
	rng   *rand.Rand
	start time.Time

	// next waveform sample index per channel
	cursor [3]uint64
}

func newGenerator(seed int64, start time.Time) *generator {
	return &generator{
		rng:   rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		start: start,
	}
}

func (g *generator) elapsed(now time.Time) float64 {
	return now.Sub(g.start).Seconds()
}

// Vitals drift slowly around 72 bpm, 97.5 % and 14 breaths per minute.
func (g *generator) Vitals(now time.Time) frame.VitalsPayload {
	t := g.elapsed(now)
	return frame.VitalsPayload{
		HeartRate:       float32(72 + 6*math.Sin(2*math.Pi*t/45) + g.rng.NormFloat64()*0.5),
		SpO2:            float32(math.Min(100, 97.5+math.Sin(2*math.Pi*t/120)+g.rng.NormFloat64()*0.2)),
		RespRate:        float32(14 + 2*math.Sin(2*math.Pi*t/90) + g.rng.NormFloat64()*0.3),
		SampleTimestamp: now.UnixMilli(),
	}
}

func sampleRate(ch frame.Channel) uint32 {
	switch ch {
	case frame.ChannelECG:
		return ecgSampleRate
	case frame.ChannelPleth:
		return plethSampleRate
	default:
		return respSampleRate
	}
}

// Due reports how many samples of ch have accrued by now and not yet been
// emitted.
func (g *generator) Due(ch frame.Channel, now time.Time) uint64 {
	total := uint64(g.elapsed(now) * float64(sampleRate(ch)))
	if total <= g.cursor[ch] {
		return 0
	}
	return total - g.cursor[ch]
}

// Block fills the next waveform block for ch with up to WaveformSamples
// samples and advances the channel cursor.
func (g *generator) Block(ch frame.Channel, now time.Time) *frame.WaveformPayload {
	due := g.Due(ch, now)
	if due == 0 {
		return nil
	}
	n := min(due, frame.WaveformSamples)

	rate := float64(sampleRate(ch))
	first := g.cursor[ch]
	p := &frame.WaveformPayload{
		Channel:        ch,
		SampleRate:     sampleRate(ch),
		StartTimestamp: g.start.Add(time.Duration(float64(first) / rate * float64(time.Second))).UnixMilli(),
		Count:          uint32(n),
	}
	for i := range n {
		t := float64(first+i) / rate
		p.Samples[i] = float32(g.sample(ch, t))
	}
	g.cursor[ch] += n
	return p
}

func (g *generator) sample(ch frame.Channel, t float64) float64 {
	switch ch {
	case frame.ChannelECG:
		// QRS spike once per beat at 72 bpm on a small baseline wander
		phase := math.Mod(t*1.2, 1)
		qrs := math.Exp(-math.Pow((phase-0.3)/0.015, 2))
		tWave := 0.25 * math.Exp(-math.Pow((phase-0.6)/0.06, 2))
		return qrs + tWave + 0.05*math.Sin(2*math.Pi*0.3*t) + g.rng.NormFloat64()*0.01
	case frame.ChannelPleth:
		phase := math.Mod(t*1.2, 1)
		return math.Max(0, math.Sin(math.Pi*phase)) * (0.8 + 0.2*math.Sin(2*math.Pi*t/4))
	default:
		return math.Sin(2 * math.Pi * t * 14 / 60)
	}
}
