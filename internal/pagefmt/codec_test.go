package pagefmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string
	Count int
	Tags  []string
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, level := range []CompressionLevel{
		CompressionNone, CompressionVeryLow, CompressionLow, CompressionMedium, CompressionHigh,
	} {
		in := sample{Name: "leaf", Count: 3, Tags: []string{"a", "b", "c"}}
		data, err := Encode(&in, level)
		require.NoError(t, err)

		var out sample
		require.NoError(t, Decode(data, &out))
		assert.Equal(t, in, out)
	}
}

func TestEncodeHasExpectedMagic(t *testing.T) {
	data, err := Encode(&sample{Name: "x"}, CompressionNone)
	require.NoError(t, err)
	require.True(t, len(data) >= 8)
	assert.Equal(t, MagicBytes[:], data[:8])
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data, err := Encode(&sample{Name: "x"}, CompressionNone)
	require.NoError(t, err)
	data[0] ^= 0xFF

	var out sample
	err = Decode(data, &out)
	require.Error(t, err)
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	data, err := Encode(&sample{Name: "x", Count: 42}, CompressionNone)
	require.NoError(t, err)
	// Flip a byte inside the payload region, after the 17-byte header.
	data[20] ^= 0xFF

	var out sample
	err = Decode(data, &out)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedFile(t *testing.T) {
	data, err := Encode(&sample{Name: "x"}, CompressionNone)
	require.NoError(t, err)

	var out sample
	err = Decode(data[:10], &out)
	require.Error(t, err)
}
