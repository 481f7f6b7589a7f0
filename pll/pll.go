// Package pll implements the all-digital phase-locked loop (ADPLL) that
// converts a stream of flux-transition intervals into a stream of channel
// bits. The oscillator locks to the first transition, then on each
// subsequent transition estimates how many half-bit-cells elapsed, emits a
// one followed by that many minus one zeros, and nudges its own period and
// phase toward the observed transition to track drive speed variation.
package pll

// DeltaSource yields successive flux-transition intervals, in seconds. It
// returns ok=false once the underlying capture is exhausted.
type DeltaSource interface {
	Next() (delta float64, ok bool)
}

// SliceSource adapts a slice of intervals (seconds) to a DeltaSource.
type SliceSource struct {
	Deltas []float64
	pos    int
}

func NewSliceSource(deltas []float64) *SliceSource {
	return &SliceSource{Deltas: deltas}
}

func (s *SliceSource) Next() (float64, bool) {
	if s.pos >= len(s.Deltas) {
		return 0, false
	}
	d := s.Deltas[s.pos]
	s.pos++
	return d, true
}

// ADPLL is one oscillator decoding one track's worth of flux deltas.
type ADPLL struct {
	source DeltaSource

	oscPeriod    float64
	minOscPeriod float64
	maxOscPeriod float64

	windowFrac     float64
	freqAdjFactor  float64
	phaseAdjFactor float64

	transTime float64
	oscTime   float64
	zeroBits  int
}

// New locks an ADPLL to the first transition yielded by source. It returns
// ok=false if source is already exhausted (an empty track).
//
// oscPeriod is the nominal half-bit-cell period P0 (seconds), roughly
// 1/(2*bitrate). maxAdjPct bounds how far the oscillator period may drift
// from P0, as a percentage. windowPct is stored but does not affect the
// output; out-of-window transitions are neither reported nor treated as
// errors. freqAdjFactor and phaseAdjFactor are the
// proportional gains applied to the per-transition timing error.
func New(source DeltaSource, oscPeriod, maxAdjPct, windowPct, freqAdjFactor, phaseAdjFactor float64) (*ADPLL, bool) {
	first, ok := source.Next()
	if !ok {
		return nil, false
	}
	a := &ADPLL{
		source:         source,
		oscPeriod:      oscPeriod,
		minOscPeriod:   oscPeriod * (100 - maxAdjPct) / 100,
		maxOscPeriod:   oscPeriod * (100 + maxAdjPct) / 100,
		windowFrac:     windowPct / 100,
		freqAdjFactor:  freqAdjFactor,
		phaseAdjFactor: phaseAdjFactor,
		transTime:      first,
		oscTime:        first,
	}
	return a, true
}

// Next emits the next channel bit (0 or 1). ok is false once the underlying
// flux deltas are exhausted.
func (a *ADPLL) Next() (bit int, ok bool) {
	if a.zeroBits != 0 {
		a.zeroBits--
		return 0, true
	}

	hbi := 0
	var errVal float64
	for hbi <= 0 {
		delta, ok := a.source.Next()
		if !ok {
			return 0, false
		}
		a.transTime += delta
		q := (a.transTime - a.oscTime) / a.oscPeriod
		hbi = int(q + 0.5) // round half up, matching the reference model
		a.oscTime += float64(hbi) * a.oscPeriod
		errVal = a.transTime - a.oscTime
		// hbi <= 0 means the transition arrived before the expected
		// window (e.g. a write splice); loop and consume another delta.
	}

	if a.freqAdjFactor != 0 {
		a.oscPeriod += errVal * a.freqAdjFactor
		if a.oscPeriod < a.minOscPeriod {
			a.oscPeriod = a.minOscPeriod
		} else if a.oscPeriod > a.maxOscPeriod {
			a.oscPeriod = a.maxOscPeriod
		}
	}
	if a.phaseAdjFactor != 0 {
		a.oscTime += errVal * a.phaseAdjFactor
	}

	a.zeroBits = hbi - 1
	return 1, true
}

// ChannelBits drains the ADPLL to completion and returns the resulting
// channel-bit string ('0'/'1' per half-cell), the representation the track
// decoder searches for address marks.
func ChannelBits(a *ADPLL) string {
	buf := make([]byte, 0, 1<<16)
	for {
		bit, ok := a.Next()
		if !ok {
			break
		}
		buf = append(buf, byte('0'+bit))
	}
	return string(buf)
}
