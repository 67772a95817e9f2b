package models

import (
	"math/bits"

	"fairlaunch/internal/fairlaunch/keys"
)

// LotteryBitmap marks winners among tickets contesting the clearing price,
// one bit per sequence number. Created only after phase one ends, sized by
// the then-final ticket count, and filled incrementally by authority strips.
type LotteryBitmap struct {
	Auction    keys.Key `json:"auction"`
	BitmapOnes uint32   `json:"bitmap_ones"`
	Bits       []byte   `json:"bits"`
}

// NewLotteryBitmap allocates an empty bitmap covering ticketsSold sequences.
func NewLotteryBitmap(auction keys.Key, ticketsSold uint64) *LotteryBitmap {
	return &LotteryBitmap{
		Auction: auction,
		Bits:    make([]byte, (ticketsSold+7)/8),
	}
}

// Size returns the bitmap's storage allocation in bytes.
func (l *LotteryBitmap) Size() uint64 {
	return keys.SizeLotteryBase + uint64(len(l.Bits))
}

// IsWinner reports whether the bit for a sequence number is set.
func (l *LotteryBitmap) IsWinner(seq uint64) bool {
	byteIdx := seq / 8
	if byteIdx >= uint64(len(l.Bits)) {
		return false
	}
	return l.Bits[byteIdx]&(1<<(seq%8)) != 0
}

// ApplyStrip ORs a run of bytes into the bitmap at a byte offset and
// advances BitmapOnes by the number of newly set bits. OR-only application
// means a strip can never clear a winner, which keeps BitmapOnes monotone.
// capacity is the sale's token supply, which the winner count must never
// exceed.
func (l *LotteryBitmap) ApplyStrip(offset uint64, strip []byte, capacity uint64) error {
	// Checked against the remaining room so offset+len(strip) cannot wrap.
	if offset > uint64(len(l.Bits)) || uint64(len(strip)) > uint64(len(l.Bits))-offset {
		return ErrStripOutOfBounds
	}

	added := 0
	for i, b := range strip {
		cur := l.Bits[offset+uint64(i)]
		added += bits.OnesCount8(cur|b) - bits.OnesCount8(cur)
	}

	if uint64(l.BitmapOnes)+uint64(added) > capacity {
		return ErrLotteryCapacity
	}

	for i, b := range strip {
		l.Bits[offset+uint64(i)] |= b
	}
	l.BitmapOnes += uint32(added)
	return nil
}
