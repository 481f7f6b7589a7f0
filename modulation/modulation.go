// Package modulation describes the channel-bit encodings used by vintage
// floppy controllers: FM (IBM 3740 single density), IBM MFM (System/34
// double density), Intel M2FM (SBC 202 double density), and HP M2FM (HP
// 9895A Flexible Disc Memory). Each encoding is modelled as a descriptor of
// static data (bit rate, geometry defaults, CRC parameters) plus a set of
// address-mark channel-bit patterns computed once at package init time.
package modulation

import "github.com/brouhaha/fluxtoimd/crc"

// Kind tags which modulation a Descriptor describes.
type Kind int

const (
	FM Kind = iota
	MFM
	IntelM2FM
	HPM2FM
)

func (k Kind) String() string {
	switch k {
	case FM:
		return "fm"
	case MFM:
		return "mfm"
	case IntelM2FM:
		return "intelm2fm"
	case HPM2FM:
		return "hpm2fm"
	default:
		return "unknown"
	}
}

// Descriptor is the static record describing one channel-bit encoding.
type Descriptor struct {
	Kind Kind

	DefaultBitRateKbps       int
	DefaultSectorsPerTrack   int
	DefaultBytesPerSector    int
	DefaultFirstSector       int
	LSBFirst                 bool
	ImageDiskMode            byte
	CRCInit                  uint64
	CRCIncludesAddressMark   bool
	IDToDataHalfBits         int
	IDFieldLength            int
	ExpectedSectorSizes      map[int]bool
	RequiresIndexMark        bool

	IndexAddressMark         string // "" if not defined for this encoding
	IDAddressMark            string
	DataAddressMark          string
	DeletedDataAddressMark   string // "" if not defined
	DefectiveTrackAddressMark string // "" if not defined
	ECCDataAddressMark       string // "" if not defined
}

// CRCParams builds the CRC-16 register parameters for this modulation: the
// polynomial and width are fixed (CRC-16-CCITT), but the initial value and
// input reflection vary by encoding.
func (d *Descriptor) CRCParams() crc.Parameters {
	p := crc.CCITT
	p.Init = d.CRCInit
	p.ReflectIn = d.LSBFirst
	p.ReflectOut = false
	return p
}

// encodeMarkMSBFirst interleaves eight clock bits and eight data bits,
// clock-then-data, most-significant-bit first. Used by FM and Intel M2FM.
func encodeMarkMSBFirst(data, clock byte) string {
	bits := make([]byte, 0, 16)
	for i := 7; i >= 0; i-- {
		c := (clock >> uint(i)) & 1
		d := (data >> uint(i)) & 1
		bits = append(bits, '0'+c, '0'+d)
	}
	return string(bits)
}

// encodeMarkLSBFirst is the HP M2FM variant: bit index ascends from 0 to 7
// instead of descending, but otherwise interleaves clock-then-data exactly
// as encodeMarkMSBFirst does.
func encodeMarkLSBFirst(data, clock byte) string {
	bits := make([]byte, 0, 16)
	for i := 0; i < 8; i++ {
		c := (clock >> uint(i)) & 1
		d := (data >> uint(i)) & 1
		bits = append(bits, '0'+c, '0'+d)
	}
	return string(bits)
}

// encodeMFMMark encodes a two-byte IBM MFM mark. The clock bit paired with
// data1's bit number (6 - missingClockBit), bits numbered from the LSB, is
// forced to 0 -- the "missing clock" violation (for 0xA1 with 4 that is bit
// 2, giving the 0x4489 sync word) -- making the mark's clock pattern
// illegal and therefore unambiguous against ordinary MFM-encoded data.
func encodeMFMMark(data1 byte, missingClockBit int, data2 byte) string {
	bits := make([]byte, 0, 32)
	prevD := byte(0)
	for i := 7; i >= 0; i-- {
		d := (data1 >> uint(i)) & 1
		var c byte
		if prevD == 0 && d == 0 && i != (6-missingClockBit) {
			c = 1
		}
		bits = append(bits, '0'+c, '0'+d)
		prevD = d
	}
	for i := 7; i >= 0; i-- {
		d := (data2 >> uint(i)) & 1
		var c byte
		if prevD == 0 && d == 0 {
			c = 1
		}
		bits = append(bits, '0'+c, '0'+d)
		prevD = d
	}
	return string(bits)
}

// Descriptors holds the four built-in modulation descriptors, indexed by Kind.
var Descriptors = map[Kind]*Descriptor{
	FM: {
		Kind:                   FM,
		DefaultBitRateKbps:     250,
		DefaultSectorsPerTrack: 26,
		DefaultBytesPerSector:  128,
		DefaultFirstSector:     1,
		LSBFirst:               false,
		ImageDiskMode:          0x00,
		CRCInit:                0xFFFF,
		CRCIncludesAddressMark: true,
		IDToDataHalfBits:       400,
		IDFieldLength:          4,
		ExpectedSectorSizes:    map[int]bool{128: true},
		RequiresIndexMark:      false,
		IndexAddressMark:       encodeMarkMSBFirst(0xfc, 0xd7),
		IDAddressMark:          encodeMarkMSBFirst(0xfe, 0xc7),
		DataAddressMark:        encodeMarkMSBFirst(0xfb, 0xc7),
		DeletedDataAddressMark: encodeMarkMSBFirst(0xf8, 0xc7),
	},
	MFM: {
		Kind:                   MFM,
		DefaultBitRateKbps:     500,
		DefaultSectorsPerTrack: 26,
		DefaultBytesPerSector:  256,
		DefaultFirstSector:     1,
		LSBFirst:               false,
		ImageDiskMode:          0x03,
		CRCInit:                0xFFFF,
		CRCIncludesAddressMark: true,
		IDToDataHalfBits:       400,
		IDFieldLength:          4,
		ExpectedSectorSizes:    map[int]bool{256: true},
		RequiresIndexMark:      false,
		IndexAddressMark:       encodeMFMMark(0xc2, 3, 0xfc),
		IDAddressMark:          encodeMFMMark(0xa1, 4, 0xfe),
		DataAddressMark:        encodeMFMMark(0xa1, 4, 0xfb),
		DeletedDataAddressMark: encodeMFMMark(0xa1, 4, 0xf8),
	},
	IntelM2FM: {
		Kind:                   IntelM2FM,
		DefaultBitRateKbps:     500,
		DefaultSectorsPerTrack: 52,
		DefaultBytesPerSector:  128,
		DefaultFirstSector:     1,
		LSBFirst:               false,
		ImageDiskMode:          0x03,
		CRCInit:                0x0000,
		CRCIncludesAddressMark: true,
		IDToDataHalfBits:       600,
		IDFieldLength:          4,
		ExpectedSectorSizes:    map[int]bool{128: true},
		RequiresIndexMark:      false,
		IndexAddressMark:       encodeMarkMSBFirst(0x0c, 0x71),
		IDAddressMark:          encodeMarkMSBFirst(0x0e, 0x70),
		DataAddressMark:        encodeMarkMSBFirst(0x0b, 0x70),
		DeletedDataAddressMark: encodeMarkMSBFirst(0x08, 0x72),
	},
	HPM2FM: {
		Kind:                      HPM2FM,
		DefaultBitRateKbps:        500,
		DefaultSectorsPerTrack:    30,
		DefaultBytesPerSector:     256,
		DefaultFirstSector:        1,
		LSBFirst:                  true,
		ImageDiskMode:             0x03,
		CRCInit:                   0xFFFF,
		CRCIncludesAddressMark:    false,
		IDToDataHalfBits:          600,
		IDFieldLength:             2,
		ExpectedSectorSizes:       map[int]bool{256: true},
		RequiresIndexMark:         false,
		IDAddressMark:             encodeMarkLSBFirst(0x70, 0xe0),
		DefectiveTrackAddressMark: encodeMarkLSBFirst(0xf0, 0x0e),
		DataAddressMark:           encodeMarkLSBFirst(0x50, 0x0e),
		ECCDataAddressMark:        encodeMarkLSBFirst(0xd0, 0x0e),
	},
}

// ByName resolves one of "fm", "mfm", "intelm2fm", "hpm2fm" to its
// descriptor, matching the CLI's mutually-exclusive modulation flags.
func ByName(name string) (*Descriptor, bool) {
	switch name {
	case "fm":
		return Descriptors[FM], true
	case "mfm":
		return Descriptors[MFM], true
	case "intelm2fm":
		return Descriptors[IntelM2FM], true
	case "hpm2fm":
		return Descriptors[HPM2FM], true
	default:
		return nil, false
	}
}

// Decode packs an even-length channel-bit string (pairs of clock,data
// characters, each '0' or '1') into bytes by taking every data bit (odd
// index within each pair), in declaration order. Modulations with LSBFirst
// set still decode MSB-first over the channel-bit string itself: the
// reversal happens in how the mark/id/data bits were interleaved during
// encoding, not in how decode repacks them into bytes.
func Decode(channelBits string) []byte {
	n := len(channelBits) / 2
	out := make([]byte, 0, n/8)
	var cur byte
	count := 0
	for i := 0; i < n; i++ {
		d := channelBits[2*i+1] - '0'
		cur = (cur << 1) | d
		count++
		if count == 8 {
			out = append(out, cur)
			cur = 0
			count = 0
		}
	}
	return out
}
