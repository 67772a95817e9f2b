// Package keys implements deterministic entity addressing. Every stored
// entity is located by a key derived from a namespace string plus its parent
// keys, which replaces pointer identity and makes "one ticket per buyer" a
// property of the store's create-if-absent primitive.
package keys

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	dErrors "fairlaunch/pkg/domainerrors"
)

// Namespace seed strings. These discriminate entity families within the
// shared store and must never change once auctions exist.
const (
	Namespace    = "fair_launch"
	TreasurySeed = "treasury"
	MintSeed     = "mint"
	LotterySeed  = "lottery"
)

// Key is a derived storage address.
type Key [32]byte

var zeroKey Key

// Derive computes a key from a namespace and ordered parent segments. Each
// segment is length-prefixed before hashing so ("ab","c") and ("a","bc")
// cannot collide.
func Derive(namespace string, parents ...[]byte) Key {
	h, _ := blake2b.New256(nil)
	var lp [4]byte

	binary.LittleEndian.PutUint32(lp[:], uint32(len(namespace)))
	h.Write(lp[:])
	h.Write([]byte(namespace))

	for _, p := range parents {
		binary.LittleEndian.PutUint32(lp[:], uint32(len(p)))
		h.Write(lp[:])
		h.Write(p)
	}

	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// TokenMintKey derives the sale-token identity from the authority and the
// six-character sale uuid.
func TokenMintKey(authority []byte, uuid string) Key {
	return Derive(Namespace, authority, []byte(MintSeed), []byte(uuid))
}

// AuctionKey derives the auction aggregate's address from its token mint.
func AuctionKey(tokenMint Key) Key {
	return Derive(Namespace, tokenMint[:])
}

// TreasuryKey derives the treasury destination for a sale.
func TreasuryKey(tokenMint Key) Key {
	return Derive(Namespace, tokenMint[:], []byte(TreasurySeed))
}

// LotteryKey derives the lottery bitmap address for an auction.
func LotteryKey(auction Key) Key {
	return Derive(Namespace, auction[:], []byte(LotterySeed))
}

// TicketKey derives a buyer's ticket address. One per (auction, buyer).
func TicketKey(auction Key, buyer []byte) Key {
	return Derive(Namespace, auction[:], buyer)
}

// SequenceKey derives the reverse-lookup address for a ticket's sale order.
func SequenceKey(auction Key, seq uint64) Key {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seq)
	return Derive(Namespace, auction[:], b[:])
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool { return k == zeroKey }

// String returns the hex form used in URLs and logs.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// MarshalText renders the key as hex in JSON payloads.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the hex form.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Parse decodes a hex key string.
func Parse(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(Key{}) {
		return Key{}, dErrors.New(dErrors.CodeInvalidInput, "key must be 64 hex characters")
	}
	var k Key
	copy(k[:], b)
	return k, nil
}

// Storage sizing constants in bytes, fixed at entity creation.
const (
	SizeAuctionBase   = 148
	SizePerTick       = 16
	SizeTicket        = 82
	SizeSequenceIndex = 40
	SizeLotteryBase   = 45
)

// AuctionSize returns the allocation for an auction with the given tick count.
func AuctionSize(tickCount uint64) uint64 {
	return SizeAuctionBase + SizePerTick*tickCount
}

// LotterySize returns the allocation for a bitmap covering sold tickets,
// one bit per sequence number.
func LotterySize(ticketsSold uint64) uint64 {
	return SizeLotteryBase + (ticketsSold+7)/8
}
