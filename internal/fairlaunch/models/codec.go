package models

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"fairlaunch/internal/fairlaunch/keys"
	id "fairlaunch/pkg/domain"
	dErrors "fairlaunch/pkg/domainerrors"
)

// Entities persist in fixed-size records; these codecs lay fields out so
// every encoding fits its allocation from the keys package exactly:
// auction 148 + 16 per tick, ticket 82, sequence index 40, bitmap 45 + bits.
// All integers are little endian; times persist as unix seconds.

var (
	magicAuction = [4]byte{'F', 'L', 'A', '1'}
	magicTicket  = [4]byte{'F', 'L', 'T', '1'}
	magicLottery = [4]byte{'F', 'L', 'L', '1'}
)

const (
	flagTreasuryMint = 1 << 0
	flagMedian       = 1 << 1
	flagPhase3Start  = 1 << 2
	flagPhase3End    = 1 << 3
)

var errCorruptRecord = dErrors.New(dErrors.CodeIntegrity, "stored record is corrupt")

// MarshalBinary encodes the aggregate into its fixed-size record.
func (a *Auction) MarshalBinary() ([]byte, error) {
	buf := make([]byte, a.Size())
	copy(buf[0:4], magicAuction[:])
	copy(buf[4:20], a.Authority.Bytes())
	copy(buf[20:26], a.Config.UUID)

	var flags byte
	if a.TreasuryMint != nil {
		flags |= flagTreasuryMint
		copy(buf[27:43], a.TreasuryMint.Bytes())
	}
	if a.DecidedMedian != nil {
		flags |= flagMedian
		binary.LittleEndian.PutUint64(buf[139:147], *a.DecidedMedian)
	}

	binary.LittleEndian.PutUint64(buf[43:51], a.Config.PriceRangeStart)
	binary.LittleEndian.PutUint64(buf[51:59], a.Config.PriceRangeEnd)
	binary.LittleEndian.PutUint64(buf[59:67], a.Config.TickSize)
	binary.LittleEndian.PutUint64(buf[67:75], a.Config.NumberOfTokens)
	putUnix(buf[75:83], a.Config.PhaseOneStart)
	putUnix(buf[83:91], a.Config.PhaseOneEnd)
	putUnix(buf[91:99], a.Config.PhaseTwoEnd)
	if a.Config.PhaseThreeStart != nil {
		flags |= flagPhase3Start
		putUnix(buf[99:107], *a.Config.PhaseThreeStart)
	}
	if a.Config.PhaseThreeEnd != nil {
		flags |= flagPhase3End
		putUnix(buf[107:115], *a.Config.PhaseThreeEnd)
	}
	binary.LittleEndian.PutUint64(buf[115:123], a.TicketsSoldPhaseOne)
	binary.LittleEndian.PutUint64(buf[123:131], a.TicketsRemainingPhaseTwo)
	binary.LittleEndian.PutUint64(buf[131:139], a.TicketsPunchedPhaseThree)
	buf[26] = flags

	off := keys.SizeAuctionBase
	for _, b := range a.Histogram {
		binary.LittleEndian.PutUint64(buf[off:off+8], b.Price)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], b.Count)
		off += keys.SizePerTick
	}
	return buf, nil
}

// UnmarshalBinary decodes the aggregate and re-derives its addressing keys
// from the persisted authority and uuid.
func (a *Auction) UnmarshalBinary(buf []byte) error {
	if len(buf) < keys.SizeAuctionBase || [4]byte(buf[0:4]) != magicAuction {
		return errCorruptRecord
	}
	if (len(buf)-keys.SizeAuctionBase)%keys.SizePerTick != 0 {
		return errCorruptRecord
	}

	a.Authority = id.AuthorityID(uuid.UUID(buf[4:20]))
	a.Config.UUID = string(buf[20:26])
	flags := buf[26]

	if flags&flagTreasuryMint != 0 {
		cid := id.CurrencyID(uuid.UUID(buf[27:43]))
		a.TreasuryMint = &cid
	} else {
		a.TreasuryMint = nil
	}

	a.Config.PriceRangeStart = binary.LittleEndian.Uint64(buf[43:51])
	a.Config.PriceRangeEnd = binary.LittleEndian.Uint64(buf[51:59])
	a.Config.TickSize = binary.LittleEndian.Uint64(buf[59:67])
	a.Config.NumberOfTokens = binary.LittleEndian.Uint64(buf[67:75])
	a.Config.PhaseOneStart = getUnix(buf[75:83])
	a.Config.PhaseOneEnd = getUnix(buf[83:91])
	a.Config.PhaseTwoEnd = getUnix(buf[91:99])
	a.Config.PhaseThreeStart = nil
	a.Config.PhaseThreeEnd = nil
	if flags&flagPhase3Start != 0 {
		t := getUnix(buf[99:107])
		a.Config.PhaseThreeStart = &t
	}
	if flags&flagPhase3End != 0 {
		t := getUnix(buf[107:115])
		a.Config.PhaseThreeEnd = &t
	}
	a.TicketsSoldPhaseOne = binary.LittleEndian.Uint64(buf[115:123])
	a.TicketsRemainingPhaseTwo = binary.LittleEndian.Uint64(buf[123:131])
	a.TicketsPunchedPhaseThree = binary.LittleEndian.Uint64(buf[131:139])
	a.DecidedMedian = nil
	if flags&flagMedian != 0 {
		m := binary.LittleEndian.Uint64(buf[139:147])
		a.DecidedMedian = &m
	}

	a.TokenMint = keys.TokenMintKey(a.Authority.Bytes(), a.Config.UUID)
	a.Key = keys.AuctionKey(a.TokenMint)
	a.Treasury = keys.TreasuryKey(a.TokenMint)

	tickCount := (len(buf) - keys.SizeAuctionBase) / keys.SizePerTick
	a.Histogram = make([]Bucket, tickCount)
	off := keys.SizeAuctionBase
	for i := range a.Histogram {
		a.Histogram[i].Price = binary.LittleEndian.Uint64(buf[off : off+8])
		a.Histogram[i].Count = binary.LittleEndian.Uint64(buf[off+8 : off+16])
		off += keys.SizePerTick
	}
	return nil
}

const ticketEncodedSize = 4 + 32 + 16 + 8 + 1 + 8

// MarshalBinary encodes the ticket. The encoding is 69 bytes, inside the
// 82-byte allocation.
func (t *Ticket) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ticketEncodedSize)
	copy(buf[0:4], magicTicket[:])
	copy(buf[4:36], t.Auction[:])
	copy(buf[36:52], t.Buyer.Bytes())
	binary.LittleEndian.PutUint64(buf[52:60], t.Amount)
	buf[60] = byte(t.State)
	binary.LittleEndian.PutUint64(buf[61:69], t.Seq)
	return buf, nil
}

// UnmarshalBinary decodes the ticket.
func (t *Ticket) UnmarshalBinary(buf []byte) error {
	if len(buf) < ticketEncodedSize || [4]byte(buf[0:4]) != magicTicket {
		return errCorruptRecord
	}
	copy(t.Auction[:], buf[4:36])
	t.Buyer = id.BuyerID(uuid.UUID(buf[36:52]))
	t.Amount = binary.LittleEndian.Uint64(buf[52:60])
	t.State = TicketState(buf[60])
	if !t.State.IsValid() {
		return errCorruptRecord
	}
	t.Seq = binary.LittleEndian.Uint64(buf[61:69])
	return nil
}

// MarshalBinary encodes the sequence index, exactly filling its 40 bytes.
func (s *SequenceIndex) MarshalBinary() ([]byte, error) {
	buf := make([]byte, keys.SizeSequenceIndex)
	copy(buf[0:32], s.Ticket[:])
	binary.LittleEndian.PutUint64(buf[32:40], s.Seq)
	return buf, nil
}

// UnmarshalBinary decodes the sequence index.
func (s *SequenceIndex) UnmarshalBinary(buf []byte) error {
	if len(buf) < keys.SizeSequenceIndex {
		return errCorruptRecord
	}
	copy(s.Ticket[:], buf[0:32])
	s.Seq = binary.LittleEndian.Uint64(buf[32:40])
	return nil
}

// MarshalBinary encodes the bitmap, exactly filling 45 + len(bits) bytes.
func (l *LotteryBitmap) MarshalBinary() ([]byte, error) {
	buf := make([]byte, l.Size())
	copy(buf[0:4], magicLottery[:])
	copy(buf[4:36], l.Auction[:])
	binary.LittleEndian.PutUint32(buf[36:40], l.BitmapOnes)
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(l.Bits)))
	copy(buf[keys.SizeLotteryBase:], l.Bits)
	return buf, nil
}

// UnmarshalBinary decodes the bitmap.
func (l *LotteryBitmap) UnmarshalBinary(buf []byte) error {
	if len(buf) < keys.SizeLotteryBase || [4]byte(buf[0:4]) != magicLottery {
		return errCorruptRecord
	}
	copy(l.Auction[:], buf[4:36])
	l.BitmapOnes = binary.LittleEndian.Uint32(buf[36:40])
	n := binary.LittleEndian.Uint32(buf[40:44])
	if uint64(len(buf)) < keys.SizeLotteryBase+uint64(n) {
		return errCorruptRecord
	}
	l.Bits = make([]byte, n)
	copy(l.Bits, buf[keys.SizeLotteryBase:keys.SizeLotteryBase+uint64(n)])
	return nil
}

func putUnix(dst []byte, t time.Time) {
	binary.LittleEndian.PutUint64(dst, uint64(t.Unix()))
}

func getUnix(src []byte) time.Time {
	return time.Unix(int64(binary.LittleEndian.Uint64(src)), 0).UTC()
}
