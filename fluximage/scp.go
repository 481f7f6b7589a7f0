package fluximage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SCPBaseFrequency is the SuperCard Pro capture clock; a track's actual
// sample frequency is SCPBaseFrequency / (divider + 1).
const SCPBaseFrequency = 40.0e6

// ReadSCP parses a SuperCard Pro SCP capture into an Image. SCP numbers
// "logical tracks" 0..(heads*cylinders-1) with the two heads of one
// cylinder interleaved; head_cfg selects which physical head(s) were
// actually captured. This matches the original SuperCard Pro tooling's
// head_cfg semantics (0 = both heads, 1 = head 0 only, -1 = head 1 only),
// not the inverted reading a literal transcription of some later
// documentation might suggest.
func ReadSCP(r io.ReaderAt, size int64) (*Image, error) {
	sr := io.NewSectionReader(r, 0, size)

	var magic [3]byte
	if _, err := io.ReadFull(sr, magic[:]); err != nil {
		return nil, fmt.Errorf("scp: reading magic: %w", err)
	}
	if string(magic[:]) != "SCP" {
		return nil, fmt.Errorf("scp: bad magic %q", magic)
	}

	var hdr struct {
		Version      byte
		DiskType     byte
		Revolutions  byte
		StartTrack   byte
		EndTrack     byte
		Flags        byte
		CellWidth    byte
		HeadCfg      int8
		Divider      byte
		Checksum     uint32
	}
	if err := binary.Read(sr, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("scp: reading header: %w", err)
	}

	var mainHead, heads int
	switch hdr.HeadCfg {
	case 0:
		mainHead, heads = 0, 2
	case 1:
		mainHead, heads = 0, 1
	case -1:
		mainHead, heads = 1, 1
	default:
		return nil, fmt.Errorf("scp: invalid head_cfg %d", hdr.HeadCfg)
	}

	frequency := SCPBaseFrequency / float64(int(hdr.Divider)+1)

	numTracks := int(hdr.EndTrack) - int(hdr.StartTrack) + 1
	if numTracks < 0 {
		return nil, fmt.Errorf("scp: end track %d precedes start track %d", hdr.EndTrack, hdr.StartTrack)
	}
	numPtrs := numTracks
	if heads == 1 {
		numPtrs *= 2
	}
	trackPtrs := make([]uint32, numPtrs)
	if err := binary.Read(sr, binary.LittleEndian, &trackPtrs); err != nil {
		return nil, fmt.Errorf("scp: reading track pointer table: %w", err)
	}

	img := &Image{Blocks: map[CHS]*Block{}}
	for track := int(hdr.StartTrack); track <= int(hdr.EndTrack); track++ {
		idx := track - int(hdr.StartTrack)
		var ptr uint32
		if heads == 1 {
			ptr = trackPtrs[idx*2+mainHead]
		} else {
			ptr = trackPtrs[idx]
		}
		cylinder := track / heads
		head := mainHead + track%heads
		if ptr == 0 {
			// Not captured: recorded as an empty block.
			img.Blocks[CHS{Cylinder: cylinder, Head: head, Sector: 1}] = &Block{Frequency: frequency, Revolutions: 1}
			continue
		}

		block, err := readSCPTrackBlock(sr, int64(ptr), frequency, hdr.Revolutions)
		if err != nil {
			return nil, fmt.Errorf("scp: track %d: %w", track, err)
		}
		img.Blocks[CHS{Cylinder: cylinder, Head: head, Sector: 1}] = block
	}
	return img, nil
}

// readSCPTrackBlock parses one "TRK" block: a per-revolution table of
// (duration, cell count, data offset) triples, each pointing at a run of
// big-endian 16-bit cell counts. Cell counts accumulate across revolutions
// without resetting, giving one continuous absolute time base for the
// whole block.
func readSCPTrackBlock(sr *io.SectionReader, base int64, frequency float64, revolutions byte) (*Block, error) {
	trk := io.NewSectionReader(sr, base, sr.Size()-base)

	var magic [3]byte
	if _, err := io.ReadFull(trk, magic[:]); err != nil {
		return nil, fmt.Errorf("reading TRK magic: %w", err)
	}
	if string(magic[:]) != "TRK" {
		return nil, fmt.Errorf("bad TRK magic %q", magic)
	}
	var trackNum byte
	if err := binary.Read(trk, binary.LittleEndian, &trackNum); err != nil {
		return nil, fmt.Errorf("reading track number: %w", err)
	}

	type revEntry struct {
		Duration uint32
		Length   uint32
		Offset   uint32
	}

	n := int(revolutions)
	if n < 1 {
		n = 1
	}
	revs := make([]revEntry, n)
	if err := binary.Read(trk, binary.LittleEndian, &revs); err != nil {
		return nil, fmt.Errorf("reading revolution entries: %w", err)
	}
	// The index pulse each revolution boundary implies is not recorded;
	// IndexPulses stays empty for SCP blocks.

	block := &Block{Frequency: frequency, Revolutions: len(revs)}
	var accum uint64
	for _, rev := range revs {
		data := io.NewSectionReader(sr, base+int64(rev.Offset), int64(rev.Length)*2)
		cellCounts := make([]uint16, rev.Length)
		if err := binary.Read(data, binary.BigEndian, &cellCounts); err != nil {
			return nil, fmt.Errorf("reading revolution flux data: %w", err)
		}
		for _, c := range cellCounts {
			accum += uint64(c)
			block.AbsTransitions = append(block.AbsTransitions, float64(accum)/frequency)
		}
	}
	return block, nil
}
