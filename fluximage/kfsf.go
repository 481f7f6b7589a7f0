package fluximage

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// DefaultKryoFluxFrequency is the KryoFlux board's nominal sample clock,
// used when a stream's Info OOB block carries no "sck" field.
const DefaultKryoFluxFrequency = 18.432e6 * 73 / 56

// ReadKFSF parses a KryoFlux stream capture. A capture is either a single
// raw stream (one track) or a zip archive of "trackNN.S.raw" members (one
// member per cylinder/head, the usual format a capture tool produces for a
// whole disk).
func ReadKFSF(r io.ReaderAt, size int64) (*Image, error) {
	if zr, err := zip.NewReader(r, size); err == nil {
		return readKFSFZip(zr)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(r, 0, size), data); err != nil {
		return nil, fmt.Errorf("kfsf: reading stream: %w", err)
	}
	cellCounts, indexCellCounts, freq, err := decodeKFSFStream(data)
	if err != nil {
		return nil, err
	}
	return &Image{Blocks: map[CHS]*Block{
		{Cylinder: 0, Head: 0, Sector: 1}: newBlockFromCellCounts(cellCounts, indexCellCounts, freq),
	}}, nil
}

var kfsfTrackEntryRe = regexp.MustCompile(`track(\d+)\.(\d)\.raw$`)

func readKFSFZip(zr *zip.Reader) (*Image, error) {
	img := &Image{Blocks: map[CHS]*Block{}}
	for _, f := range zr.File {
		m := kfsfTrackEntryRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		cylinder, _ := strconv.Atoi(m[1])
		head, _ := strconv.Atoi(m[2])

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("kfsf: opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("kfsf: reading %s: %w", f.Name, err)
		}

		cellCounts, indexCellCounts, freq, err := decodeKFSFStream(data)
		if err != nil {
			return nil, fmt.Errorf("kfsf: decoding %s: %w", f.Name, err)
		}
		img.Blocks[CHS{Cylinder: cylinder, Head: head, Sector: 1}] = newBlockFromCellCounts(cellCounts, indexCellCounts, freq)
	}
	return img, nil
}

type kfsfPendingIndex struct {
	targetStreamPos uint32
}

// decodeKFSFStream walks one KryoFlux in-band/out-of-band byte stream,
// returning flux-transition and index-pulse sample counts (in sck ticks)
// plus the sample clock frequency recorded in the stream's Info block, if
// any.
func decodeKFSFStream(data []byte) (cellCounts, indexCellCounts []float64, frequency float64, err error) {
	frequency = DefaultKryoFluxFrequency
	info := map[string]string{}

	i := 0
	streamPos := 0
	var overflow uint64
	var accum uint64
	var pending []kfsfPendingIndex
	eof := false

	resolvePending := func() {
		kept := pending[:0]
		for _, p := range pending {
			if uint32(streamPos) == p.targetStreamPos {
				indexCellCounts = append(indexCellCounts, float64(accum))
			} else {
				kept = append(kept, p)
			}
		}
		pending = kept
	}
	emit := func(cell uint64) {
		accum += overflow + cell
		overflow = 0
		cellCounts = append(cellCounts, float64(accum))
		resolvePending()
	}

	for i < len(data) && !eof {
		b := data[i]
		switch {
		case b <= 0x07: // Flux2
			if i+2 > len(data) {
				return nil, nil, 0, fmt.Errorf("kfsf: truncated Flux2 at offset %d", i)
			}
			emit(uint64(b)<<8 | uint64(data[i+1]))
			i += 2
			streamPos += 2
		case b == 0x08: // Nop1
			i++
			streamPos++
		case b == 0x09: // Nop2
			i += 2
			streamPos += 2
		case b == 0x0a: // Nop3
			i += 3
			streamPos += 3
		case b == 0x0b: // Ovl16
			overflow += 0x10000
			i++
			streamPos++
		case b == 0x0c: // Flux3
			if i+3 > len(data) {
				return nil, nil, 0, fmt.Errorf("kfsf: truncated Flux3 at offset %d", i)
			}
			emit(uint64(data[i+1]) | uint64(data[i+2])<<8)
			i += 3
			streamPos += 3
		case b == 0x0d: // OOB
			if i+4 > len(data) {
				return nil, nil, 0, fmt.Errorf("kfsf: truncated OOB header at offset %d", i)
			}
			kind := data[i+1]
			length := int(binary.LittleEndian.Uint16(data[i+2 : i+4]))
			payloadStart := i + 4
			if payloadStart+length > len(data) {
				return nil, nil, 0, fmt.Errorf("kfsf: truncated OOB payload at offset %d", i)
			}
			payload := data[payloadStart : payloadStart+length]
			switch kind {
			case 0x01, 0x03: // StreamInfo, StreamEnd: not needed for decode
			case 0x02: // Index
				if len(payload) >= 4 {
					pending = append(pending, kfsfPendingIndex{targetStreamPos: binary.LittleEndian.Uint32(payload[0:4])})
				}
			case 0x04: // Info
				if len(payload) == 0 || payload[len(payload)-1] != 0 {
					return nil, nil, 0, fmt.Errorf("kfsf: unterminated Info block")
				}
				parseKFSFInfoFields(strings.TrimRight(string(payload), "\x00"), info)
			case 0x0d: // EOF
				eof = true
			default:
				return nil, nil, 0, fmt.Errorf("kfsf: unknown OOB kind 0x%02x", kind)
			}
			i = payloadStart + length
		default: // 0x0e-0xff: Flux1, the byte itself is the cell count
			emit(uint64(b))
			i++
			streamPos++
		}
	}

	if len(pending) > 0 {
		log.Printf("kfsf: warning: %d index block(s) never matched a flux position", len(pending))
	}

	if v, ok := info["sck"]; ok {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil {
			frequency = f
		}
	}
	return cellCounts, indexCellCounts, frequency, nil
}

func parseKFSFInfoFields(text string, into map[string]string) {
	for _, field := range strings.Split(text, ", ") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) == 2 {
			into[kv[0]] = kv[1]
		}
	}
}
