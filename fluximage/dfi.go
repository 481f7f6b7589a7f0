package fluximage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultDFIFrequency is the sample clock DiscFerret captures use when the
// container itself carries no frequency field (DFI run lengths are counted
// in ticks of this clock).
const DefaultDFIFrequency = 25.0e6

// ReadDFI parses a DiscFerret DFI capture (magic "DFER" for v1, "DFE2" for
// v2) into an Image. Each DFI block is a (cylinder, head) track capture;
// v2 blocks additionally carry index-pulse markers.
func ReadDFI(r io.Reader, frequency float64) (*Image, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("dfi: reading magic: %w", err)
	}
	var version int
	switch string(magic[:]) {
	case "DFER":
		version = 1
	case "DFE2":
		version = 2
	default:
		return nil, fmt.Errorf("dfi: unrecognized magic %q", magic)
	}

	img := &Image{Blocks: map[CHS]*Block{}}
	timeIncrement := 1.0 / frequency

	for {
		var hdr struct {
			Cylinder uint16
			Head     uint16
			Sector   uint16
		}
		if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("dfi: reading block header: %w", err)
		}
		var dataLen uint32
		if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
			return nil, fmt.Errorf("dfi: reading data length: %w", err)
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("dfi: truncated block data: %w", err)
		}

		cellCounts, indexCellCounts := parseDFIRunLengths(version, data)
		block := &Block{Frequency: frequency, Revolutions: 1}
		block.AbsTransitions = make([]float64, len(cellCounts))
		for i, v := range cellCounts {
			block.AbsTransitions[i] = float64(v) * timeIncrement
		}
		block.IndexPulses = make([]float64, len(indexCellCounts))
		for i, v := range indexCellCounts {
			block.IndexPulses[i] = float64(v) * timeIncrement
		}

		img.Blocks[CHS{Cylinder: int(hdr.Cylinder), Head: int(hdr.Head), Sector: int(hdr.Sector)}] = block
	}
	return img, nil
}

// parseDFIRunLengths decodes DFI's run-length byte coding into absolute
// tick counts. v1 bytes are a plain 7-bit run length, 0 meaning "add 127 and
// keep accumulating" (a multi-byte extension). v2 adds a high bit marking an
// index-pulse marker and reserves 0x7F as a pure accumulate-127 extension,
// freeing 0x00 to mean "no-op" padding.
func parseDFIRunLengths(version int, data []byte) (transitions, indexPulses []int) {
	timeInc := 0
	switch version {
	case 1:
		for _, b := range data {
			if b&0x7f == 0 {
				timeInc += 127
				continue
			}
			timeInc += int(b & 0x7f)
			transitions = append(transitions, timeInc)
		}
	case 2:
		for _, b := range data {
			low := b & 0x7f
			switch {
			case low == 0:
				continue
			case low == 0x7f:
				timeInc += 127
			case b&0x80 != 0:
				timeInc += int(low)
				indexPulses = append(indexPulses, timeInc)
			default:
				timeInc += int(low)
				transitions = append(transitions, timeInc)
			}
		}
	}
	return transitions, indexPulses
}
