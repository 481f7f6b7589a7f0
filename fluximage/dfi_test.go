package fluximage

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildDFIv2Block(cylinder, head, sector uint16, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("DFE2")
	binary.Write(&buf, binary.BigEndian, cylinder)
	binary.Write(&buf, binary.BigEndian, head)
	binary.Write(&buf, binary.BigEndian, sector)
	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// TestReadDFIv2BlockRunLengths exercises the documented v2 payload
// [0x20, 0x81, 0x7F, 0x7F, 0x40]: a transition at t=0x20, an index pulse at
// t=0x21, then a further 0xFE+0x40 ticks to the next transition at 0x15F.
func TestReadDFIv2BlockRunLengths(t *testing.T) {
	payload := []byte{0x20, 0x81, 0x7f, 0x7f, 0x40}
	raw := buildDFIv2Block(0, 0, 1, payload)

	img, err := ReadDFI(bytes.NewReader(raw), DefaultDFIFrequency)
	if err != nil {
		t.Fatalf("ReadDFI: %v", err)
	}
	block, ok := img.Block(0, 0)
	if !ok {
		t.Fatal("block (0,0) missing")
	}
	if len(block.AbsTransitions) != 2 {
		t.Fatalf("got %d transitions, want 2: %v", len(block.AbsTransitions), block.AbsTransitions)
	}
	wantTicks := []int{0x20, 0x15f}
	for i, want := range wantTicks {
		got := int(block.AbsTransitions[i] * DefaultDFIFrequency)
		if got != want {
			t.Errorf("transition %d = tick %d, want %d", i, got, want)
		}
	}
	if len(block.IndexPulses) != 1 {
		t.Fatalf("got %d index pulses, want 1", len(block.IndexPulses))
	}
	if got := int(block.IndexPulses[0] * DefaultDFIFrequency); got != 0x21 {
		t.Errorf("index pulse tick = %d, want 0x21", got)
	}
}

func TestReadDFIBadMagic(t *testing.T) {
	_, err := ReadDFI(bytes.NewReader([]byte("NOPE")), DefaultDFIFrequency)
	if err == nil {
		t.Error("expected an error for a bad magic value")
	}
}

func TestReadDFIMultipleBlocks(t *testing.T) {
	var raw []byte
	raw = append(raw, buildDFIv2Block(0, 0, 1, []byte{0x10})...)
	// The file carries one magic; drop the second block's copy of it.
	raw = append(raw, buildDFIv2Block(0, 1, 1, []byte{0x20})[4:]...)

	img, err := ReadDFI(bytes.NewReader(raw), DefaultDFIFrequency)
	if err != nil {
		t.Fatalf("ReadDFI: %v", err)
	}
	if len(img.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(img.Blocks))
	}
}
