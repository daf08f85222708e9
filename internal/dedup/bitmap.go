package dedup

import (
	"errors"
	"fmt"
	"math/bits"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// HeaderSize is the account prefix before the bitmap: an 8 byte
	// discriminator, the settlement address and the record capacity.
	HeaderSize = 8 + 32 + 8
	// MaxUpsizeBytes is the most a single upsize may grow the account by.
	MaxUpsizeBytes = 10_240
)

var (
	ErrAlreadyInitialized = errors.New("claim bitmap is already fully sized")
	ErrNotInitialized     = errors.New("claim bitmap is not sized for the index")
	ErrIndexOutOfRange    = errors.New("claim index out of range")
)

type Header struct {
	Discriminator [8]byte
	Settlement    solana.PublicKey
	MaxRecords    uint64
}

// ClaimBitmap records which merkle leaves of one settlement were paid.
// Bit 0 is the most significant bit of byte 0.
type ClaimBitmap struct {
	header Header
	bitmap []byte
}

// New returns a bitmap that still has to be grown with Upsize.
func New(header Header) *ClaimBitmap {
	return &ClaimBitmap{header: header}
}

// Decode reads the account data of a claim bitmap. The bitmap part may be
// shorter than the target size while upsizing is in progress.
func Decode(data []byte) (*ClaimBitmap, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("claim bitmap account of %d bytes is shorter than header size %d", len(data), HeaderSize)
	}
	var header Header
	if err := bin.NewBorshDecoder(data[:HeaderSize]).Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode claim bitmap header: %w", err)
	}
	b := &ClaimBitmap{header: header, bitmap: append([]byte(nil), data[HeaderSize:]...)}
	if len(b.bitmap) > b.TargetSize() {
		b.bitmap = b.bitmap[:b.TargetSize()]
	}
	return b, nil
}

func TargetSize(maxRecords uint64) int {
	return int((maxRecords + 7) / 8)
}

// UpsizeCalls is how many Upsize calls a fresh bitmap of maxRecords needs.
func UpsizeCalls(maxRecords uint64) int {
	return (TargetSize(maxRecords) + MaxUpsizeBytes - 1) / MaxUpsizeBytes
}

func (b *ClaimBitmap) Header() Header {
	return b.header
}

func (b *ClaimBitmap) MaxRecords() uint64 {
	return b.header.MaxRecords
}

func (b *ClaimBitmap) TargetSize() int {
	return TargetSize(b.header.MaxRecords)
}

func (b *ClaimBitmap) Size() int {
	return len(b.bitmap)
}

func (b *ClaimBitmap) IsFullySized() bool {
	return b.Size() >= b.TargetSize()
}

// Upsize grows the bitmap by at most MaxUpsizeBytes and returns the new size.
func (b *ClaimBitmap) Upsize() (int, error) {
	if b.IsFullySized() {
		return b.Size(), ErrAlreadyInitialized
	}
	grow := min(b.TargetSize()-b.Size(), MaxUpsizeBytes)
	b.bitmap = append(b.bitmap, make([]byte, grow)...)
	return b.Size(), nil
}

func (b *ClaimBitmap) position(index uint64) (int, byte, error) {
	if index >= b.header.MaxRecords {
		return 0, 0, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, b.header.MaxRecords)
	}
	byteIndex := int(index / 8)
	if byteIndex >= len(b.bitmap) {
		return 0, 0, fmt.Errorf("%w: index %d needs %d bytes, have %d", ErrNotInitialized, index, byteIndex+1, len(b.bitmap))
	}
	return byteIndex, byte(0x80) >> (index % 8), nil
}

func (b *ClaimBitmap) IsSet(index uint64) (bool, error) {
	byteIndex, mask, err := b.position(index)
	if err != nil {
		return false, err
	}
	return b.bitmap[byteIndex]&mask != 0, nil
}

// TryToSet returns true when the bit flipped from unset to set and false when
// it was already set.
func (b *ClaimBitmap) TryToSet(index uint64) (bool, error) {
	byteIndex, mask, err := b.position(index)
	if err != nil {
		return false, err
	}
	if b.bitmap[byteIndex]&mask != 0 {
		return false, nil
	}
	b.bitmap[byteIndex] |= mask
	return true, nil
}

func (b *ClaimBitmap) NumberOfSetBits() uint64 {
	var count uint64
	for _, v := range b.bitmap {
		count += uint64(bits.OnesCount8(v))
	}
	return count
}

// Bytes returns a copy of the bitmap without the header.
func (b *ClaimBitmap) Bytes() []byte {
	return append([]byte(nil), b.bitmap...)
}

// Clone returns an independent copy, used to apply changes atomically.
func (b *ClaimBitmap) Clone() *ClaimBitmap {
	return &ClaimBitmap{header: b.header, bitmap: b.Bytes()}
}
