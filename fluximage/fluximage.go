// Package fluximage parses the three binary flux-capture container formats
// this system accepts -- DiscFerret DFI, KryoFlux stream files (KFSF), and
// SuperCard Pro SCP -- into a common in-memory representation: a map from
// (cylinder, head, sector) coordinates to a Block carrying the absolute
// flux-transition times (in seconds) the track decoder's ADPLL consumes.
package fluximage

import "github.com/brouhaha/fluxtoimd/pll"

// CHS addresses one flux block by cylinder, head, and sector. Soft-sectored
// media (everything this system handles) always uses Sector 1.
type CHS struct {
	Cylinder int
	Head     int
	Sector   int
}

// Block owns one track's (or, for SCP, possibly several revolutions')
// flux-transition data. It is immutable once constructed by a reader.
type Block struct {
	Frequency      float64   // Hz; scales integer sample counts to seconds
	AbsTransitions []float64 // seconds, strictly increasing
	IndexPulses    []float64 // seconds, absolute; rotation boundaries, may be empty
	Revolutions    int
}

// Deltas returns the block's flux transitions as successive positive
// intervals (seconds) from the start of the block, suitable for driving a
// pll.ADPLL. The first interval runs from the start of the block to the
// first transition.
func (b *Block) Deltas() *pll.SliceSource {
	deltas := make([]float64, len(b.AbsTransitions))
	prev := 0.0
	for i, t := range b.AbsTransitions {
		deltas[i] = t - prev
		prev = t
	}
	return pll.NewSliceSource(deltas)
}

// Image is a fully-parsed flux capture: every block the container held,
// addressed by CHS.
type Image struct {
	Blocks map[CHS]*Block
}

// Block looks up one (cylinder, head, sector=1) block.
func (img *Image) Block(cylinder, head int) (*Block, bool) {
	b, ok := img.Blocks[CHS{Cylinder: cylinder, Head: head, Sector: 1}]
	return b, ok
}

func newBlockFromCellCounts(cellCounts, indexCellCounts []float64, frequency float64) *Block {
	b := &Block{Frequency: frequency, Revolutions: 1}
	b.AbsTransitions = make([]float64, len(cellCounts))
	for i, v := range cellCounts {
		b.AbsTransitions[i] = v / frequency
	}
	b.IndexPulses = make([]float64, len(indexCellCounts))
	for i, v := range indexCellCounts {
		b.IndexPulses[i] = v / frequency
	}
	return b
}
