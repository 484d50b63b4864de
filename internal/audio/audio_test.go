package audio

import (
	"encoding/base64"
	"errors"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	dec, err := NewDecoder(t.TempDir())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for _, size := range []int{0, 1, 2, 3, 255, 4096, 70000} {
		original := make([]byte, size)
		rng.Read(original)

		res, err := dec.Decode(base64.StdEncoding.EncodeToString(original))
		require.NoError(t, err)

		got, err := res.Bytes()
		require.NoError(t, err)
		assert.Equal(t, original, got, "size %d", size)
		assert.True(t, strings.HasPrefix(res.URL(), "file://"), res.URL())
	}
}

func TestDecodeEmptyPayloadIsEmptyClip(t *testing.T) {
	dec, err := NewDecoder(t.TempDir())
	require.NoError(t, err)

	res, err := dec.Decode("")
	require.NoError(t, err)
	got, err := res.Bytes()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeDetectsWAV(t *testing.T) {
	dec, err := NewDecoder(t.TempDir())
	require.NoError(t, err)

	wav := append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 8)...)
	res, err := dec.Decode(base64.StdEncoding.EncodeToString(wav))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Path, ".wav"), res.Path)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	dec, err := NewDecoder(t.TempDir())
	require.NoError(t, err)

	_, err = dec.Decode("   ")
	assert.True(t, errors.Is(err, ErrEmpty))

	_, err = dec.Decode("!!not base64!!")
	assert.Error(t, err)
}

func TestReleaseRemovesFiles(t *testing.T) {
	dec, err := NewDecoder(t.TempDir())
	require.NoError(t, err)

	res, err := dec.Decode(base64.StdEncoding.EncodeToString([]byte("clip")))
	require.NoError(t, err)
	require.NoError(t, dec.Release())

	_, err = os.Stat(res.Path)
	assert.True(t, os.IsNotExist(err))
}
