package fluximage

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildSCPImage assembles a minimal single-track SCP capture with one
// revolution of flux data, for a given head_cfg value.
func buildSCPImage(t *testing.T, headCfg int8, startTrack, endTrack byte) []byte {
	t.Helper()

	cellCounts := []uint16{100, 200, 300}

	var trk bytes.Buffer
	trk.WriteString("TRK")
	trk.WriteByte(0) // track number, unused by the reader
	type revEntry struct{ Duration, Length, Offset uint32 }
	// Offset is relative to the start of the TRK block; the flux data
	// immediately follows the fixed 4+12 byte header.
	entry := revEntry{Duration: 0, Length: uint32(len(cellCounts)), Offset: 16}
	binary.Write(&trk, binary.LittleEndian, entry)
	for _, c := range cellCounts {
		binary.Write(&trk, binary.BigEndian, c)
	}

	numTracks := int(endTrack) - int(startTrack) + 1
	numPtrs := numTracks
	if headCfg != 0 {
		numPtrs *= 2
	}

	var buf bytes.Buffer
	buf.WriteString("SCP")
	hdr := struct {
		Version, DiskType, Revolutions, StartTrack, EndTrack, Flags, CellWidth byte
		HeadCfg                                                                int8
		Divider                                                                byte
		Checksum                                                               uint32
	}{
		Revolutions: 1,
		StartTrack:  startTrack,
		EndTrack:    endTrack,
		HeadCfg:     headCfg,
		Divider:     0,
	}
	binary.Write(&buf, binary.LittleEndian, hdr)

	headerLen := buf.Len()
	ptrTableLen := numPtrs * 4
	trackOffset := uint32(headerLen + ptrTableLen)

	ptrs := make([]uint32, numPtrs)
	switch headCfg {
	case 0:
		ptrs[0] = trackOffset
	case 1:
		ptrs[0] = trackOffset
	case -1:
		ptrs[1] = trackOffset
	}
	binary.Write(&buf, binary.LittleEndian, ptrs)

	buf.Write(trk.Bytes())
	return buf.Bytes()
}

func TestReadSCPHeadCfgBothHeads(t *testing.T) {
	data := buildSCPImage(t, 0, 0, 0)
	img, err := ReadSCP(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ReadSCP: %v", err)
	}
	if _, ok := img.Block(0, 0); !ok {
		t.Error("expected a block at cylinder 0 head 0")
	}
}

func TestReadSCPHeadCfgHead0Only(t *testing.T) {
	data := buildSCPImage(t, 1, 0, 0)
	img, err := ReadSCP(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ReadSCP: %v", err)
	}
	if _, ok := img.Block(0, 0); !ok {
		t.Error("expected a block at cylinder 0 head 0")
	}
	if _, ok := img.Block(0, 1); ok {
		t.Error("did not expect a block at head 1 for head_cfg=1")
	}
}

func TestReadSCPHeadCfgHead1Only(t *testing.T) {
	data := buildSCPImage(t, -1, 0, 0)
	img, err := ReadSCP(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ReadSCP: %v", err)
	}
	if _, ok := img.Block(0, 1); !ok {
		t.Error("expected a block at cylinder 0 head 1 for head_cfg=-1")
	}
	if _, ok := img.Block(0, 0); ok {
		t.Error("did not expect a block at head 0 for head_cfg=-1")
	}
}

func TestReadSCPBadMagic(t *testing.T) {
	data := []byte("XXX not an scp file at all")
	if _, err := ReadSCP(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestReadSCPFluxIntervals(t *testing.T) {
	data := buildSCPImage(t, 0, 0, 0)
	img, err := ReadSCP(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ReadSCP: %v", err)
	}
	block, ok := img.Block(0, 0)
	if !ok {
		t.Fatal("expected a block")
	}
	if len(block.AbsTransitions) != 3 {
		t.Fatalf("got %d transitions, want 3", len(block.AbsTransitions))
	}
	wantFreq := SCPBaseFrequency
	if block.Frequency != wantFreq {
		t.Errorf("frequency = %v, want %v", block.Frequency, wantFreq)
	}
}
