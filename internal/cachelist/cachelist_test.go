package cachelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ids := make([]uint32, 5000)
	for i := range ids {
		ids[i] = uint32(i / 3) // repetitive, compresses well
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			buf, err := Encode(ids, c)
			require.NoError(t, err)
			if c != CompressionNone {
				assert.Less(t, len(buf), 4*len(ids))
				assert.Equal(t, byte(c), buf[8])
			}

			got, err := Decode(buf)
			require.NoError(t, err)
			assert.Equal(t, ids, got)
		})
	}
}

func TestEncode_IncompressibleFallsBack(t *testing.T) {
	buf, err := Encode([]uint32{7}, CompressionZSTD)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionNone), buf[8])

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, got)
}

func TestDecode_Corrupt(t *testing.T) {
	buf, err := Encode([]uint32{1, 2, 3}, CompressionNone)
	require.NoError(t, err)

	bad := append([]byte(nil), buf...)
	bad[headerSize] ^= 0xFF
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(buf[:10])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, c)
	_, err = ParseCompression("snappy")
	assert.Error(t, err)
}
