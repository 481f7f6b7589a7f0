package decoder

import (
	"bytes"
	"testing"

	"github.com/brouhaha/fluxtoimd/internal/fixture"
	"github.com/brouhaha/fluxtoimd/modulation"
)

func TestDecodeChannelBitsSinglePerfectSector(t *testing.T) {
	desc := modulation.Descriptors[modulation.FM]
	payload := bytes.Repeat([]byte{0xe5}, 128)
	track := fixture.SyntheticFMTrack(0, 0, []fixture.Sector{
		{Number: 1, Data: payload},
	})

	sectors := DecodeChannelBits(track, desc, 0, 0, false, nil)
	if len(sectors) != 1 {
		t.Fatalf("got %d sectors, want 1: %+v", len(sectors), sectors)
	}
	s := sectors[0]
	if s.Number != 1 {
		t.Fatalf("sector number = %d, want 1", s.Number)
	}
	if s.Deleted {
		t.Error("sector 1 should not be deleted")
	}
	if !bytes.Equal(s.Data, payload) {
		t.Errorf("sector 1 payload = %x, want %x", s.Data, payload)
	}
}

func TestDecodeChannelBitsNormalAndDeletedSector(t *testing.T) {
	desc := modulation.Descriptors[modulation.FM]
	normal := bytes.Repeat([]byte{0xaa}, 128)
	deleted := bytes.Repeat([]byte{0x55}, 128)
	track := fixture.SyntheticFMTrack(3, 1, []fixture.Sector{
		{Number: 1, Data: normal},
		{Number: 2, Data: deleted, Deleted: true},
	})

	sectors := DecodeChannelBits(track, desc, 3, 1, false, nil)
	if len(sectors) != 2 {
		t.Fatalf("got %d sectors, want 2: %+v", len(sectors), sectors)
	}
	first, second := sectors[0], sectors[1]
	if first.Number != 1 || first.Deleted || !bytes.Equal(first.Data, normal) {
		t.Errorf("sector 1 = %+v, want non-deleted %x", first, normal)
	}
	if second.Number != 2 || !second.Deleted || !bytes.Equal(second.Data, deleted) {
		t.Errorf("sector 2 = %+v, want deleted %x", second, deleted)
	}
}

func TestDecodeChannelBitsRejectsWrongCylinder(t *testing.T) {
	desc := modulation.Descriptors[modulation.FM]
	track := fixture.SyntheticFMTrack(5, 0, []fixture.Sector{
		{Number: 1, Data: bytes.Repeat([]byte{0}, 128)},
	})

	var rejects []string
	logger := rejectLogger(func(cyl, head int, reason string) {
		rejects = append(rejects, reason)
	})

	sectors := DecodeChannelBits(track, desc, 6, 0, false, logger)
	if len(sectors) != 0 {
		t.Errorf("got %d sectors decoding a track recorded for cylinder 5 while expecting cylinder 6, want 0", len(sectors))
	}
	if len(rejects) == 0 {
		t.Error("expected a wrong-track rejection to be logged")
	}
}

type rejectLogger func(cylinder, head int, reason string)

func (f rejectLogger) Reject(cylinder, head int, reason string) {
	f(cylinder, head, reason)
}
