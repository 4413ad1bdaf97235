package core

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"target_kind":"metal_mine","level_or_quantity":3}`), 40)

	packed, err := Compress(payload)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(payload), "repetitive payload should shrink")

	unpacked, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, payload, unpacked)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decompress([]byte("definitely not an lz4 frame"))
	assert.Error(t, err)
}

func TestHashIsStable(t *testing.T) {
	a := Hash([]byte("planet-7/building"))
	b := Hash([]byte("planet-7/building"))
	c := Hash([]byte("planet-7/research"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}
