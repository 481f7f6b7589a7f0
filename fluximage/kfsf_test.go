package fluximage

import (
	"bytes"
	"testing"
)

func TestDecodeKFSFStreamFlux1(t *testing.T) {
	// Three Flux1 cells (40, 80, 120), then an Info block announcing a
	// sample clock, then logical EOF.
	info := []byte("sck=24027428.5714, ick=3003428.5714\x00")
	var data []byte
	data = append(data, 40, 80, 120)
	data = append(data, 0x0d, 0x04, byte(len(info)), byte(len(info)>>8))
	data = append(data, info...)
	data = append(data, 0x0d, 0x0d, 0, 0) // OOB EOF, zero-length payload

	cells, indexCells, freq, err := decodeKFSFStream(data)
	if err != nil {
		t.Fatalf("decodeKFSFStream: %v", err)
	}
	if len(cells) != 3 {
		t.Fatalf("got %d cells, want 3: %v", len(cells), cells)
	}
	wantAccum := []float64{40, 120, 240}
	for i, want := range wantAccum {
		if cells[i] != want {
			t.Errorf("cell %d = %v, want %v", i, cells[i], want)
		}
	}
	if len(indexCells) != 0 {
		t.Errorf("got %d index pulses, want 0", len(indexCells))
	}
	if freq < 24027428 || freq > 24027429 {
		t.Errorf("frequency = %v, want ~24027428.57 (from the sck info field)", freq)
	}
}

func TestDecodeKFSFStreamFlux2AndOvl16(t *testing.T) {
	// Ovl16, then a Flux2 cell encoding 0x0005 (5 + 0x10000 overflow).
	data := []byte{0x0b, 0x00, 0x05}
	cells, _, _, err := decodeKFSFStream(data)
	if err != nil {
		t.Fatalf("decodeKFSFStream: %v", err)
	}
	if len(cells) != 1 || cells[0] != float64(0x10005) {
		t.Fatalf("cells = %v, want [%d]", cells, 0x10005)
	}
}

func TestDecodeKFSFUnknownOOBKindFails(t *testing.T) {
	data := []byte{0x0d, 0xff, 0, 0}
	_, _, _, err := decodeKFSFStream(data)
	if err == nil {
		t.Error("expected an error for an unknown OOB kind")
	}
}

func TestReadKFSFSingleStream(t *testing.T) {
	data := []byte{20, 30, 40} // three Flux1 cells (Flux1 starts at 0x0e)
	img, err := ReadKFSF(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ReadKFSF: %v", err)
	}
	block, ok := img.Block(0, 0)
	if !ok {
		t.Fatal("expected a (0,0) block for a non-zip stream")
	}
	if len(block.AbsTransitions) != 3 {
		t.Errorf("got %d transitions, want 3", len(block.AbsTransitions))
	}
}
