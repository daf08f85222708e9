package dedup

import (
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/stakebonds/bonds-settlement/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sized(t *testing.T, maxRecords uint64) *ClaimBitmap {
	t.Helper()
	b := New(Header{Settlement: testutil.RandomPubkey(), MaxRecords: maxRecords})
	for !b.IsFullySized() {
		_, err := b.Upsize()
		require.NoError(t, err)
	}
	return b
}

func TestUpsize(t *testing.T) {
	const maxRecords = 200_000 // 25000 bytes, three upsizes
	b := New(Header{Settlement: testutil.RandomPubkey(), MaxRecords: maxRecords})
	assert.Equal(t, 25_000, b.TargetSize())
	assert.Equal(t, 3, UpsizeCalls(maxRecords))

	_, err := b.IsSet(0)
	require.ErrorIs(t, err, ErrNotInitialized)

	size, err := b.Upsize()
	require.NoError(t, err)
	assert.Equal(t, MaxUpsizeBytes, size)

	_, err = b.IsSet(MaxUpsizeBytes*8 - 1)
	require.NoError(t, err)
	_, err = b.IsSet(MaxUpsizeBytes * 8)
	require.ErrorIs(t, err, ErrNotInitialized)

	size, err = b.Upsize()
	require.NoError(t, err)
	assert.Equal(t, 2*MaxUpsizeBytes, size)
	size, err = b.Upsize()
	require.NoError(t, err)
	assert.Equal(t, 25_000, size)

	_, err = b.Upsize()
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, 25_000, b.Size())
}

func TestTryToSetExactlyOnce(t *testing.T) {
	for _, n := range []uint64{1, 7, 8, 9, 64, 1001} {
		b := sized(t, n)
		assert.Equal(t, int((n+7)/8), b.Size())

		for i := range n {
			ok, err := b.TryToSet(i)
			require.NoError(t, err)
			assert.True(t, ok, "first set of %d", i)
		}
		for i := range n {
			ok, err := b.TryToSet(i)
			require.NoError(t, err)
			assert.False(t, ok, "second set of %d", i)

			set, err := b.IsSet(i)
			require.NoError(t, err)
			assert.True(t, set)
		}
		assert.Equal(t, n, b.NumberOfSetBits())

		_, err := b.TryToSet(n)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	}
}

func TestBitOrder(t *testing.T) {
	b := sized(t, 16)
	ok, err := b.TryToSet(0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.TryToSet(9)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []byte{0x80, 0x40}, b.Bytes())

	set, err := b.IsSet(1)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestDecode(t *testing.T) {
	header := Header{Discriminator: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, Settlement: testutil.RandomPubkey(), MaxRecords: 20}
	data, err := bin.MarshalBorsh(&header)
	require.NoError(t, err)
	require.Len(t, data, HeaderSize)
	data = append(data, 0x80, 0x00)

	b, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, header, b.Header())
	assert.Equal(t, 2, b.Size())
	assert.False(t, b.IsFullySized())

	set, err := b.IsSet(0)
	require.NoError(t, err)
	assert.True(t, set)
	_, err = b.IsSet(16)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = Decode(data[:HeaderSize-1])
	require.Error(t, err)
}

func TestClone(t *testing.T) {
	b := sized(t, 8)
	clone := b.Clone()
	ok, err := clone.TryToSet(3)
	require.NoError(t, err)
	require.True(t, ok)

	set, err := b.IsSet(3)
	require.NoError(t, err)
	assert.False(t, set)
}
