package imagedisk

import (
	"bytes"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	img := New(ts)

	data0 := bytes.Repeat([]byte{0xe5}, 128)
	data1 := bytes.Repeat([]byte{0x42}, 128)
	if err := img.WriteSector(0x00, 0, 0, 1, data0, false, false); err != nil {
		t.Fatalf("WriteSector sector 1: %v", err)
	}
	if err := img.WriteSector(0x00, 0, 0, 2, data1, true, false); err != nil {
		t.Fatalf("WriteSector sector 2: %v", err)
	}

	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	s1, ok := got.ReadSector(0, 0, 1)
	if !ok {
		t.Fatal("sector 1 missing after round trip")
	}
	if s1.Deleted || !bytes.Equal(s1.Data, data0) {
		t.Errorf("sector 1 = %+v, want non-deleted %x", s1, data0)
	}

	s2, ok := got.ReadSector(0, 0, 2)
	if !ok {
		t.Fatal("sector 2 missing after round trip")
	}
	if !s2.Deleted || !bytes.Equal(s2.Data, data1) {
		t.Errorf("sector 2 = %+v, want deleted %x", s2, data1)
	}
}

func TestDuplicateSectorRejected(t *testing.T) {
	img := New(time.Now())
	data := bytes.Repeat([]byte{0}, 128)
	if err := img.WriteSector(0, 0, 0, 1, data, false, false); err != nil {
		t.Fatalf("first WriteSector: %v", err)
	}
	if err := img.WriteSector(0, 0, 0, 1, data, false, false); err == nil {
		t.Error("duplicate sector without replaceOK should fail")
	}
	if err := img.WriteSector(0, 0, 0, 1, data, false, true); err != nil {
		t.Errorf("duplicate sector with replaceOK should succeed, got %v", err)
	}
}

func TestInvalidSectorSizeRejected(t *testing.T) {
	img := New(time.Now())
	if err := img.WriteSector(0, 0, 0, 1, make([]byte, 100), false, false); err == nil {
		t.Error("100-byte sector should be rejected (not a valid IMD size code)")
	}
}

func TestMixedModeTrackFailsToWrite(t *testing.T) {
	img := New(time.Now())
	data := bytes.Repeat([]byte{0}, 128)
	if err := img.WriteSector(0x00, 0, 0, 1, data, false, false); err != nil {
		t.Fatal(err)
	}
	if err := img.WriteSector(0x03, 0, 0, 2, data, false, false); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := img.Write(&buf); err == nil {
		t.Error("mixed-mode track should fail to write")
	}
}

func TestMixedSizeTrackUsesSizeMap(t *testing.T) {
	img := New(time.Now())
	small := bytes.Repeat([]byte{0}, 128)
	large := bytes.Repeat([]byte{0}, 256)
	if err := img.WriteSector(0x00, 1, 0, 1, small, false, false); err != nil {
		t.Fatal(err)
	}
	if err := img.WriteSector(0x00, 1, 0, 2, large, false, false); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	s1, _ := got.ReadSector(1, 0, 1)
	s2, _ := got.ReadSector(1, 0, 2)
	if len(s1.Data) != 128 || len(s2.Data) != 256 {
		t.Errorf("round-tripped sizes = %d, %d, want 128, 256", len(s1.Data), len(s2.Data))
	}
}
