// Package decoder walks a track's channel-bit stream to locate address
// marks, validate CRC-protected ID and data fields, and assemble the set of
// successfully recovered sectors for one (cylinder, head).
package decoder

import (
	"github.com/brouhaha/fluxtoimd/crc"
	"github.com/brouhaha/fluxtoimd/fluximage"
	"github.com/brouhaha/fluxtoimd/modulation"
	"github.com/brouhaha/fluxtoimd/pll"
)

// dataHalfBitTolerance is the slack, in half-bit-cells, allowed around the
// nominal ID-mark-to-data-mark distance (desc.IDToDataHalfBits, measured
// from the ID address mark's own position) before the candidate is
// abandoned.
const dataHalfBitTolerance = 50

// Sector is one fully CRC-validated sector recovered from a track.
type Sector struct {
	Number  int
	Deleted bool
	Data    []byte
}

// Logger receives non-fatal per-candidate rejections during track decode:
// bad CRC, wrong track/head, unexpected size, missing data mark, or no
// index mark when one is required. A nil Logger discards these.
type Logger interface {
	Reject(cylinder, head int, reason string)
}

// NopLogger discards all rejection reports.
type NopLogger struct{}

func (NopLogger) Reject(cylinder, head int, reason string) {}

// ADPLLTuning collects the oscillator constants that vary by run (bitrate
// override, tolerance percentages) rather than by modulation alone.
type ADPLLTuning struct {
	MaxAdjPct      float64
	WindowPct      float64
	FreqAdjFactor  float64
	PhaseAdjFactor float64
}

// DefaultTuning matches the reference ADPLL's conservative defaults: a 3%
// maximum period adjustment, a 50% window (passed on, but it does not
// affect decoding), gentle
// frequency tracking, and aggressive phase tracking.
var DefaultTuning = ADPLLTuning{
	MaxAdjPct:      3.0,
	WindowPct:      50.0,
	FreqAdjFactor:  0.005,
	PhaseAdjFactor: 0.1,
}

// DecodeTrack runs the ADPLL over block's flux deltas at the given
// oscillator period (seconds), then demodulates and extracts every sector
// it can validate for the (cylinder, head) coordinate, in the order each
// sector was first successfully decoded. requireIndex forces track
// abandonment when the modulation's index address mark is absent.
func DecodeTrack(block *fluximage.Block, desc *modulation.Descriptor, oscPeriod float64, tuning ADPLLTuning, cylinder, head int, requireIndex bool, logger Logger) []Sector {
	osc, ok := pll.New(block.Deltas(), oscPeriod, tuning.MaxAdjPct, tuning.WindowPct, tuning.FreqAdjFactor, tuning.PhaseAdjFactor)
	if !ok {
		return nil
	}
	channelBits := pll.ChannelBits(osc)
	return DecodeChannelBits(channelBits, desc, cylinder, head, requireIndex, logger)
}

// DecodeChannelBits runs the demodulate/locate/CRC-validate pipeline
// directly over an already-demodulated channel-bit string, skipping the
// ADPLL step. Exported so tests can drive it with synthetic tracks built
// directly as channel-bit strings. Sectors are returned in first-decode
// order, matching the order their address marks appear on the track.
func DecodeChannelBits(channelBits string, desc *modulation.Descriptor, cylinder, head int, requireIndex bool, logger Logger) []Sector {
	if logger == nil {
		logger = NopLogger{}
	}

	if requireIndex && desc.IndexAddressMark != "" {
		if !contains(channelBits, desc.IndexAddressMark) {
			logger.Reject(cylinder, head, "no index address mark")
			return nil
		}
	}

	var sectors []Sector
	seen := map[int]bool{}
	idReg := crc.New(desc.CRCParams())

	for _, p := range findAll(channelBits, desc.IDAddressMark) {
		idFieldBits := 16 * (desc.IDFieldLength + 2) // +2 bytes CRC trailer
		markLen := len(desc.IDAddressMark)
		end := p + markLen + idFieldBits
		if end > len(channelBits) {
			continue
		}
		slice := channelBits[p:end]
		decoded := modulation.Decode(slice)

		checkSlice := decoded
		if !desc.CRCIncludesAddressMark {
			checkSlice = decoded[markLen/16:]
		}
		idReg.Reset()
		idReg.Compute(checkSlice)
		if idReg.Get() != 0 {
			logger.Reject(cylinder, head, "bad ID field CRC")
			continue
		}

		idBytes := decoded[markLen/16 : len(decoded)-2]
		declTrack, declHead, number, size, ok := parseIDField(desc, idBytes)
		if !ok {
			logger.Reject(cylinder, head, "malformed ID field")
			continue
		}
		if declTrack != cylinder {
			logger.Reject(cylinder, head, "wrong track")
			continue
		}
		if declHead != head {
			logger.Reject(cylinder, head, "wrong head")
			continue
		}
		if !desc.ExpectedSectorSizes[size] {
			logger.Reject(cylinder, head, "unexpected sector size")
			continue
		}
		if seen[number] {
			continue
		}

		dataP, deleted, found := findDataMark(channelBits, desc, p, end)
		if !found {
			logger.Reject(cylinder, head, "no data mark within tolerance")
			continue
		}

		payloadLenBits := 16 * (size + 2)
		mark := desc.DataAddressMark
		if deleted {
			mark = desc.DeletedDataAddressMark
		}
		payloadEnd := dataP + len(mark) + payloadLenBits
		if payloadEnd > len(channelBits) {
			logger.Reject(cylinder, head, "truncated data field")
			continue
		}
		payloadSlice := channelBits[dataP:payloadEnd]
		payloadDecoded := modulation.Decode(payloadSlice)

		payloadCheck := payloadDecoded
		if !desc.CRCIncludesAddressMark {
			payloadCheck = payloadDecoded[len(mark)/16:]
		}
		idReg.Reset()
		idReg.Compute(payloadCheck)
		if idReg.Get() != 0 {
			logger.Reject(cylinder, head, "bad data field CRC")
			continue
		}

		data := payloadDecoded[len(mark)/16 : len(payloadDecoded)-2]
		seen[number] = true
		sectors = append(sectors, Sector{Number: number, Deleted: deleted, Data: data})
	}

	return sectors
}

// parseIDField extracts (track, head, sector, size) from a decoded ID
// field. FM/MFM/Intel M2FM use a 4-byte field; HP M2FM packs head and
// sector into a single second byte and always implies a 256-byte sector.
func parseIDField(desc *modulation.Descriptor, id []byte) (track, head, sector, size int, ok bool) {
	if desc.IDFieldLength == 2 {
		if len(id) < 2 {
			return 0, 0, 0, 0, false
		}
		track = int(id[0])
		sector = int(id[1] & 0x7f)
		if id[1]&0x80 != 0 {
			head = 1
		}
		size = 256
		return track, head, sector, size, true
	}
	if len(id) < 4 {
		return 0, 0, 0, 0, false
	}
	track = int(id[0])
	head = int(id[1])
	sector = int(id[2])
	size = 128 << id[3]
	return track, head, sector, size, true
}

// findDataMark searches forward from scanFrom (the end of the ID field's
// CRC trailer) for the modulation's data or deleted-data address mark,
// accepting the first one found within idMarkPos + desc.IDToDataHalfBits
// +/- dataHalfBitTolerance half-bit-cells -- the gap is measured from the
// ID address mark's own position, not from the end of the ID field.
func findDataMark(channelBits string, desc *modulation.Descriptor, idMarkPos, scanFrom int) (pos int, deleted bool, ok bool) {
	lo := idMarkPos + desc.IDToDataHalfBits - dataHalfBitTolerance
	// The window must hold the whole mark, so a mark starting at the +50
	// edge still fits.
	hi := idMarkPos + desc.IDToDataHalfBits + dataHalfBitTolerance + len(desc.DataAddressMark)
	if lo < scanFrom {
		lo = scanFrom
	}
	if hi > len(channelBits) {
		hi = len(channelBits)
	}
	if lo > hi {
		return 0, false, false
	}
	window := channelBits[lo:hi]

	bestPos, bestDeleted, found := -1, false, false
	if desc.DataAddressMark != "" {
		if i := indexOf(window, desc.DataAddressMark); i >= 0 {
			bestPos, bestDeleted, found = lo+i, false, true
		}
	}
	if desc.DeletedDataAddressMark != "" {
		if i := indexOf(window, desc.DeletedDataAddressMark); i >= 0 {
			if !found || lo+i < bestPos {
				bestPos, bestDeleted, found = lo+i, true, true
			}
		}
	}
	return bestPos, bestDeleted, found
}

// indexOf is a direct shift-compare substring search, avoiding a general
// regex engine for the fixed 16/32-character needles used here.
func indexOf(haystack, needle string) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func contains(haystack, needle string) bool {
	return indexOf(haystack, needle) >= 0
}

// findAll returns every (possibly overlapping) occurrence offset of needle
// in haystack, in ascending order.
func findAll(haystack, needle string) []int {
	var out []int
	if len(needle) == 0 {
		return out
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			out = append(out, i)
		}
	}
	return out
}

// OscPeriod returns the nominal half-bit-cell period P0 for a bitrate in
// kbps, as used to seed the ADPLL (P0 ~= 1/(2*bitrate)).
func OscPeriod(bitRateKbps int) float64 {
	return 1.0 / (2.0 * float64(bitRateKbps) * 1000.0)
}
