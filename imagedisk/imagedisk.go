// Package imagedisk reads and writes the ImageDisk (.IMD) container format:
// an ASCII comment header terminated by 0x1A, followed by a sequence of
// per-track records (mode byte, cylinder, head, sector count, sector size
// code, sector number map, sector data). It is the output format this
// system's recovery pipeline produces.
package imagedisk

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"time"
)

var sectorSizeCodes = map[int]byte{
	128:  0,
	256:  1,
	512:  2,
	1024: 3,
	2048: 4,
	4096: 5,
}

var sectorSizesByCode = map[byte]int{
	0: 128,
	1: 256,
	2: 512,
	3: 1024,
	4: 2048,
	5: 4096,
}

// Sector is one recovered sector: its raw mode byte (encodes modulation and
// data rate per the IMD spec), whether it carried a deleted-data address
// mark, and its payload.
type Sector struct {
	Mode    byte
	Deleted bool
	Data    []byte
}

type trackCoord struct {
	Cylinder, Head int
}

// Image is an in-memory ImageDisk container, built up with WriteSector and
// serialized with Write, or populated by Read.
type Image struct {
	Comment   string
	Timestamp time.Time

	tracks map[trackCoord]map[int]*Sector
	order  map[trackCoord][]int // insertion order, mirrors write_sector call order
}

// New returns an empty Image stamped with the given timestamp (used verbatim
// in the IMD header comment line).
func New(timestamp time.Time) *Image {
	return &Image{
		Timestamp: timestamp,
		tracks:    map[trackCoord]map[int]*Sector{},
		order:     map[trackCoord][]int{},
	}
}

// WriteSector records one sector's recovered data. replaceOK permits
// overwriting an already-recorded sector at the same coordinate (the CLI
// and Read never set it); otherwise a duplicate sector number on the same
// track is an error.
func (img *Image) WriteSector(mode byte, cylinder, head, sector int, data []byte, deleted, replaceOK bool) error {
	if _, ok := sectorSizeCodes[len(data)]; !ok {
		return fmt.Errorf("imagedisk: invalid sector size %d (cyl=%d head=%d sector=%d)", len(data), cylinder, head, sector)
	}
	tc := trackCoord{cylinder, head}
	track := img.tracks[tc]
	if track == nil {
		track = map[int]*Sector{}
		img.tracks[tc] = track
	}
	if _, exists := track[sector]; exists && !replaceOK {
		return fmt.Errorf("imagedisk: duplicate sector, cyl=%d, head=%d, sector=%d", cylinder, head, sector)
	}
	if _, exists := track[sector]; !exists {
		img.order[tc] = append(img.order[tc], sector)
	}
	track[sector] = &Sector{Mode: mode, Deleted: deleted, Data: data}
	return nil
}

// ReadSector returns a previously-written or -read sector, or ok=false if
// none is recorded at that coordinate.
func (img *Image) ReadSector(cylinder, head, sector int) (*Sector, bool) {
	track, ok := img.tracks[trackCoord{cylinder, head}]
	if !ok {
		return nil, false
	}
	s, ok := track[sector]
	return s, ok
}

// Write serializes the image in ImageDisk format, tracks in (cylinder,
// head) order, sectors within a track in the order they were first
// written.
func (img *Image) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	header := fmt.Sprintf("IMD 1.18 %s\r", img.Timestamp.Format("02/01/2006 15:04:05"))
	if _, err := bw.WriteString(header); err != nil {
		return fmt.Errorf("imagedisk: writing header: %w", err)
	}
	if img.Comment != "" {
		if _, err := bw.WriteString(img.Comment + "\r"); err != nil {
			return fmt.Errorf("imagedisk: writing comment: %w", err)
		}
	}
	if err := bw.WriteByte(0x1a); err != nil {
		return fmt.Errorf("imagedisk: writing header terminator: %w", err)
	}

	coords := make([]trackCoord, 0, len(img.tracks))
	for tc := range img.tracks {
		coords = append(coords, tc)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Cylinder != coords[j].Cylinder {
			return coords[i].Cylinder < coords[j].Cylinder
		}
		return coords[i].Head < coords[j].Head
	})

	for _, tc := range coords {
		if err := img.writeTrack(bw, tc); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (img *Image) writeTrack(bw *bufio.Writer, tc trackCoord) error {
	sectorNumbers := img.order[tc]
	track := img.tracks[tc]

	var mode *byte
	var sizeCode *byte
	mixedSize := false
	for _, num := range sectorNumbers {
		s := track[num]
		if mode == nil {
			mode = &s.Mode
		} else if *mode != s.Mode {
			return fmt.Errorf("imagedisk: mixed modes on track cyl=%d head=%d", tc.Cylinder, tc.Head)
		}
		code := sectorSizeCodes[len(s.Data)]
		if sizeCode == nil {
			sizeCode = &code
		} else if *sizeCode != code {
			mixedSize = true
		}
	}
	if mode == nil {
		return nil
	}
	trackSizeCode := *sizeCode
	if mixedSize {
		trackSizeCode = 0xff
	}

	hdr := []byte{*mode, byte(tc.Cylinder), byte(tc.Head), byte(len(sectorNumbers)), trackSizeCode}
	if _, err := bw.Write(hdr); err != nil {
		return fmt.Errorf("imagedisk: writing track header: %w", err)
	}
	sectorMap := make([]byte, len(sectorNumbers))
	for i, num := range sectorNumbers {
		sectorMap[i] = byte(num)
	}
	if _, err := bw.Write(sectorMap); err != nil {
		return fmt.Errorf("imagedisk: writing sector map: %w", err)
	}
	if mixedSize {
		sizeMap := make([]byte, len(sectorNumbers))
		for i, num := range sectorNumbers {
			sizeMap[i] = sectorSizeCodes[len(track[num].Data)]
		}
		if _, err := bw.Write(sizeMap); err != nil {
			return fmt.Errorf("imagedisk: writing sector size map: %w", err)
		}
	}
	for _, num := range sectorNumbers {
		s := track[num]
		compressed := isUniform(s.Data)
		recordType := sectorRecordType(s.Deleted, compressed)
		if err := bw.WriteByte(recordType); err != nil {
			return fmt.Errorf("imagedisk: writing sector record type: %w", err)
		}
		if compressed {
			if err := bw.WriteByte(s.Data[0]); err != nil {
				return fmt.Errorf("imagedisk: writing compressed sector fill byte: %w", err)
			}
			continue
		}
		if _, err := bw.Write(s.Data); err != nil {
			return fmt.Errorf("imagedisk: writing sector data: %w", err)
		}
	}
	return nil
}

// isUniform reports whether every byte of data is identical, the condition
// under which a sector is written in compressed (single fill-byte) form.
func isUniform(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data[1:] {
		if b != data[0] {
			return false
		}
	}
	return true
}

func sectorRecordType(deleted, compressed bool) byte {
	switch {
	case !deleted && !compressed:
		return 0x01
	case !deleted && compressed:
		return 0x02
	case deleted && !compressed:
		return 0x03
	default:
		return 0x04
	}
}

// Read parses an ImageDisk container, populating a new Image.
func Read(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("imagedisk: reading magic: %w", err)
	}
	if !bytes.Equal(magic[:], []byte("IMD ")) {
		return nil, fmt.Errorf("imagedisk: not an ImageDisk file")
	}
	for {
		c, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("imagedisk: reading header: %w", err)
		}
		if c == 0x1a {
			break
		}
	}

	img := New(time.Time{})
	for {
		if err := img.readTrack(br); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return img, nil
}

func (img *Image) readTrack(br *bufio.Reader) error {
	hdr := make([]byte, 5)
	n, err := io.ReadFull(br, hdr)
	if n == 0 && err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("imagedisk: reading track header: %w", err)
	}
	mode, cylinder, head, sectorCount, sizeCode := hdr[0], int(hdr[1]), int(hdr[2]), int(hdr[3]), hdr[4]

	sectorNumbers := make([]byte, sectorCount)
	if _, err := io.ReadFull(br, sectorNumbers); err != nil {
		return fmt.Errorf("imagedisk: reading sector number map: %w", err)
	}

	sizeCodes := make([]byte, sectorCount)
	if sizeCode == 0xff {
		if _, err := io.ReadFull(br, sizeCodes); err != nil {
			return fmt.Errorf("imagedisk: reading sector size map: %w", err)
		}
	} else {
		for i := range sizeCodes {
			sizeCodes[i] = sizeCode
		}
	}

	for i, num := range sectorNumbers {
		size, ok := sectorSizesByCode[sizeCodes[i]]
		if !ok {
			return fmt.Errorf("imagedisk: invalid sector size code 0x%02x", sizeCodes[i])
		}
		recordType, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("imagedisk: reading sector record type: %w", err)
		}

		var data []byte
		switch recordType {
		case 0x01, 0x03:
			data = make([]byte, size)
			if _, err := io.ReadFull(br, data); err != nil {
				return fmt.Errorf("imagedisk: reading sector data: %w", err)
			}
		case 0x02, 0x04:
			fill, err := br.ReadByte()
			if err != nil {
				return fmt.Errorf("imagedisk: reading compressed sector fill byte: %w", err)
			}
			data = bytes.Repeat([]byte{fill}, size)
		default:
			return fmt.Errorf("imagedisk: unsupported sector record type 0x%02x", recordType)
		}

		deleted := recordType == 0x03 || recordType == 0x04
		if err := img.WriteSector(mode, cylinder, head, int(num), data, deleted, false); err != nil {
			return err
		}
	}
	return nil
}
