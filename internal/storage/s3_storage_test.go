package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureObjectKey(t *testing.T) {
	key, err := SignatureObjectKey("signatures/abc/", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "signatures/abc/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	other, err := SignatureObjectKey("signatures/abc/", "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	key, err = SignatureObjectKey("signatures/abc/", "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	_, err = SignatureObjectKey("signatures/abc/", "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}
