// Package lottery implements the authority-side winner selection among bids
// tied at the clearing price. The on-chain style protocol only verifies the
// aggregate winner count, so the selection itself must be auditable:
// SelectWinners is a deterministic seeded draw that anyone holding the seed
// can reproduce.
package lottery

import (
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/blake2b"

	"fairlaunch/internal/fairlaunch/keys"
)

// SelectWinners picks n sequence numbers from the candidate pool. Each
// candidate is ranked by a keyed digest of (auction key, seed, seq) and the
// lowest n digests win, so the draw is uniform in the seed, independent of
// input order, and reproducible by any auditor.
func SelectWinners(auction keys.Key, seed []byte, candidates []uint64, n int) []uint64 {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	if n >= len(candidates) {
		out := make([]uint64, len(candidates))
		copy(out, candidates)
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}

	type ranked struct {
		seq    uint64
		digest [32]byte
	}
	rs := make([]ranked, len(candidates))
	for i, seq := range candidates {
		rs[i] = ranked{seq: seq, digest: drawDigest(auction, seed, seq)}
	}
	sort.Slice(rs, func(i, j int) bool {
		c := compareDigests(rs[i].digest, rs[j].digest)
		if c != 0 {
			return c < 0
		}
		return rs[i].seq < rs[j].seq
	})

	out := make([]uint64, n)
	for i := range out {
		out[i] = rs[i].seq
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultStripBytes caps one strip submission. Large sales are filled with
// several strips rather than one oversized payload.
const DefaultStripBytes = 1024

// Strips packs winning sequence numbers into byte runs ready for
// bitmap-extension submissions of at most maxBytes each.
func Strips(winners []uint64, bitmapLen int, maxBytes int) []Strip {
	if maxBytes <= 0 {
		maxBytes = bitmapLen
	}
	bits := make([]byte, bitmapLen)
	for _, seq := range winners {
		if i := seq / 8; i < uint64(bitmapLen) {
			bits[i] |= 1 << (seq % 8)
		}
	}

	var strips []Strip
	i := 0
	for i < len(bits) {
		// Skip untouched bytes; runs of zeros need no submission.
		if bits[i] == 0 {
			i++
			continue
		}
		j := i
		for j < len(bits) && j-i < maxBytes && bits[j] != 0 {
			j++
		}
		strip := Strip{Offset: uint64(i), Bits: make([]byte, j-i)}
		copy(strip.Bits, bits[i:j])
		strips = append(strips, strip)
		i = j
	}
	return strips
}

// Strip is one incremental bitmap update.
type Strip struct {
	Offset uint64 `json:"offset"`
	Bits   []byte `json:"bits"`
}

func drawDigest(auction keys.Key, seed []byte, seq uint64) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(auction[:])
	h.Write(seed)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seq)
	h.Write(b[:])
	var d [32]byte
	copy(d[:], h.Sum(nil))
	return d
}

func compareDigests(a, b [32]byte) int {
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}
