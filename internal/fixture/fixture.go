// Package fixture builds synthetic channel-bit tracks for decoder tests,
// the way a real flux capture would appear after the ADPLL has already run
// -- skipping flux timing entirely and writing known-good address marks,
// ID fields, and CRC-protected payloads directly as channel-bit strings.
// Grounded in the teacher's mfm.Writer track encoder, adapted to FM.
package fixture

import (
	"strings"

	"github.com/brouhaha/fluxtoimd/crc"
	"github.com/brouhaha/fluxtoimd/modulation"
)

// Sector describes one sector to place on a synthetic track.
type Sector struct {
	Number  int
	Deleted bool
	Data    []byte // must be 128 bytes for FM
}

// encodeFMByte interleaves a data byte with an all-ones clock pattern, the
// ordinary (non-mark) FM encoding used outside address marks.
func encodeFMByte(data byte) string {
	bits := make([]byte, 0, 16)
	for i := 7; i >= 0; i-- {
		d := (data >> uint(i)) & 1
		bits = append(bits, '1', '0'+d)
	}
	return string(bits)
}

func encodeFMBytes(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		sb.WriteString(encodeFMByte(b))
	}
	return sb.String()
}

func gapFM(n int) string {
	return strings.Repeat(encodeFMByte(0x00), n)
}

// SyntheticFMTrack builds a channel-bit string for an FM track at
// (cylinder, head) containing the given sectors, each with a correct CRC
// and a gap to its data mark matching the FM descriptor's nominal
// ID-to-data half-bit distance exactly (zero offset from nominal, well
// inside the decoder's tolerance window).
func SyntheticFMTrack(cylinder, head int, sectors []Sector) string {
	desc := modulation.Descriptors[modulation.FM]
	reg := crc.New(desc.CRCParams())

	var sb strings.Builder
	sb.WriteString(gapFM(40))

	for _, s := range sectors {
		idBytes := []byte{byte(cylinder), byte(head), byte(s.Number), 0} // size code 0 = 128 bytes

		idMark := desc.IDAddressMark
		sb.WriteString(idMark)
		sb.WriteString(encodeFMBytes(idBytes))
		idCRC := fieldCRC(reg, desc, idMark, idBytes)
		sb.WriteString(encodeFMBytes([]byte{byte(idCRC >> 8), byte(idCRC)}))

		// Gap to the data mark: desc.IDToDataHalfBits is measured from the
		// ID address mark's own position, not from the end of the ID
		// field, so the filler has to be shortened by the width of the
		// mark, ID bytes, and CRC trailer already written -- landing the
		// data mark dead center in the decoder's tolerance window.
		idFieldWidth := len(idMark) + 16*(desc.IDFieldLength+2)
		sb.WriteString(strings.Repeat("0", desc.IDToDataHalfBits-idFieldWidth))

		mark := markFor(desc, s.Deleted)
		sb.WriteString(mark)
		sb.WriteString(encodeFMBytes(s.Data))
		dataCRC := fieldCRC(reg, desc, mark, s.Data)
		sb.WriteString(encodeFMBytes([]byte{byte(dataCRC >> 8), byte(dataCRC)}))

		sb.WriteString(gapFM(20))
	}
	return sb.String()
}

func markFor(desc *modulation.Descriptor, deleted bool) string {
	if deleted {
		return desc.DeletedDataAddressMark
	}
	return desc.DataAddressMark
}

// fieldCRC computes the CRC-16 that the decoder expects to find trailing a
// field: over the mark plus body when the descriptor says CRC covers the
// address mark, over the body alone otherwise.
func fieldCRC(reg *crc.Register, desc *modulation.Descriptor, mark string, body []byte) uint16 {
	reg.Reset()
	if desc.CRCIncludesAddressMark {
		reg.Compute(modulation.Decode(mark))
	}
	reg.Compute(body)
	return uint16(reg.Get())
}
