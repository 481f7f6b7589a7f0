// Package crc implements a parametric CRC register following Ross Williams'
// "A Painless Guide to CRC Error Detection Algorithms" model: width, truncated
// polynomial, initial value, final XOR, and independent reflect-in/reflect-out
// flags. It supports ingestion of arbitrary bit counts (not just whole bytes)
// through ComputeInt and ComputeBits.
package crc

import upstream "github.com/snksoft/crc"

// Parameters fixes the behaviour of a CRC register. It is the same shape as
// github.com/snksoft/crc.Parameters so that the predefined catalogue entries
// in that package can be reused directly instead of being redeclared.
type Parameters = upstream.Parameters

// Predefined parameter sets reused from the snksoft/crc catalogue.
var (
	CCITT      = *upstream.CCITT
	IEEE       = *upstream.CRC32
	CRC32      = *upstream.CRC32
	Castagnoli = *upstream.Castagnoli
	CRC32C     = *upstream.Castagnoli

	// BZIP2 is CRC-32/BZIP2: same polynomial as CRC32 but without input or
	// output reflection. Not present in the snksoft/crc catalogue, so it is
	// declared here directly as a plain parameter literal.
	BZIP2 = Parameters{Width: 32, Polynomial: 0x04C11DB7, Init: 0xFFFFFFFF, ReflectIn: false, ReflectOut: false, FinalXor: 0xFFFFFFFF}
)

// Register is a running CRC computation. Unlike crc.Hash from snksoft/crc,
// which only ever consumes whole bytes through a table, Register can also
// consume a partial final byte (1-7 bits) through ComputeBits.
type Register struct {
	params  Parameters
	topBit  uint64
	widMask uint64
	reg     uint64
	tables  map[uint]*table
}

type table struct {
	width   uint
	entries []uint64
}

// New creates a Register for the given parameters. The register starts
// reset (reg = params.Init).
func New(params Parameters) *Register {
	r := &Register{
		params:  params,
		topBit:  uint64(1) << (params.Width - 1),
		widMask: (uint64(1) << params.Width) - 1,
		tables:  make(map[uint]*table),
	}
	r.Reset()
	r.makeTable(8)
	return r
}

// Reset restores the register to its initial value.
func (r *Register) Reset() {
	r.reg = r.params.Init & r.widMask
}

func reflectBits(v uint64, bitCount uint) uint64 {
	var out uint64
	for i := uint(0); i < bitCount; i++ {
		out <<= 1
		out |= v & 1
		v >>= 1
	}
	return out
}

// MakeTable precomputes a 2^width entry lookup table used to consume width
// bits of input per step. width must be at least 2; widths larger than the
// register's own order are rejected by returning silently (the caller falls
// back to the bit-serial path via ComputeBits).
func (r *Register) MakeTable(width uint) {
	r.makeTable(width)
}

func (r *Register) makeTable(width uint) {
	if width < 2 || width > r.params.Width || width > 32 {
		return
	}
	if _, ok := r.tables[width]; ok {
		return
	}
	n := uint64(1) << width
	entries := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		entries[i] = r.tableEntry(i, width)
	}
	r.tables[width] = &table{width: width, entries: entries}
}

// tableEntry computes the effect of shifting `width` zero bits through the
// register after XORing `slice` (width bits, MSB-aligned to the register's
// top `width` bits) into the top of the register, starting from a zero
// register state. This matches the slice-by-width table construction
// described for the table-accelerated path.
func (r *Register) tableEntry(slice uint64, width uint) uint64 {
	reg := (slice & ((uint64(1) << width) - 1)) << (r.params.Width - width)
	for i := uint(0); i < width; i++ {
		if reg&r.topBit != 0 {
			reg = ((reg << 1) ^ r.params.Polynomial) & r.widMask
		} else {
			reg = (reg << 1) & r.widMask
		}
	}
	return reg
}

// findTable returns the widest cached table that fits within remaining bits,
// or nil if bit-serial processing is required.
func (r *Register) findTable(remaining uint) *table {
	var best *table
	for w, t := range r.tables {
		if w <= remaining && (best == nil || w > best.width) {
			best = t
		}
	}
	return best
}

// pushBit feeds one input bit into the register: the bit is XORed into the
// outgoing MSB, the register shifts left, and the polynomial is XORed in
// when that combined MSB was set. This is the same step the table path
// takes width bits at a time.
func (r *Register) pushBit(bit uint64) {
	topSet := (r.reg&r.topBit != 0) != (bit&1 != 0)
	r.reg = (r.reg << 1) & r.widMask
	if topSet {
		r.reg ^= r.params.Polynomial
		r.reg &= r.widMask
	}
}

// ComputeInt ingests bitCount bits (MSB-first within those bitCount bits) of
// a single integer value into the register. If refin is set the bitCount-bit
// slice is bit-reversed before ingestion, matching the behaviour of a single
// input unit under Williams' model.
func (r *Register) ComputeInt(data uint64, bitCount uint) {
	if r.params.ReflectIn {
		data = reflectBits(data, bitCount)
	}
	remaining := bitCount
	for remaining > 0 {
		t := r.findTable(remaining)
		if t == nil {
			bit := (data >> (remaining - 1)) & 1
			r.pushBit(bit)
			remaining--
			continue
		}
		slice := (data >> (remaining - t.width)) & ((uint64(1) << t.width) - 1)
		idx := ((r.reg >> (r.params.Width - t.width)) ^ slice) & ((uint64(1) << t.width) - 1)
		r.reg = ((r.reg << t.width) ^ t.entries[idx]) & r.widMask
		remaining -= t.width
	}
}

// Compute ingests a sequence of bytes, each as 8 bits, in order.
func (r *Register) Compute(data []byte) {
	for _, b := range data {
		r.ComputeInt(uint64(b), 8)
	}
}

// ComputeBits ingests bitCount bits from data (a byte slice, MSB-first,
// bitCount <= len(data)*8), allowing a final partial byte.
func (r *Register) ComputeBits(data []byte, bitCount int) {
	full := bitCount / 8
	for i := 0; i < full; i++ {
		r.ComputeInt(uint64(data[i]), 8)
	}
	if rem := bitCount - full*8; rem > 0 {
		b := data[full] >> (8 - uint(rem))
		r.ComputeInt(uint64(b), uint(rem))
	}
}

// Get returns the current CRC value: the register XORed with FinalXor, bit
// reflected across the full register width if ReflectOut is set.
func (r *Register) Get() uint64 {
	v := r.reg ^ r.params.FinalXor
	v &= r.widMask
	if r.params.ReflectOut {
		v = reflectBits(v, r.params.Width)
	}
	return v
}

// CRC resets the register, computes over data, and returns Get().
func (r *Register) CRC(data []byte) uint64 {
	r.Reset()
	r.Compute(data)
	return r.Get()
}
