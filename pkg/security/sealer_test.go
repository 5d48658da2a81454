package security

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketsettle-backend/pkg/config"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestSealOpenRoundTrip(t *testing.T) {
	sealer, err := NewSealerFromKey(testKey())
	require.NoError(t, err)

	sealed, err := sealer.Seal("DE89370400440532013000")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "DE89370400440532013000")

	again, err := sealer.Seal("DE89370400440532013000")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "DE89370400440532013000", plain)
}

func TestOpenRejectsForeignKey(t *testing.T) {
	sealer, err := NewSealerFromKey(testKey())
	require.NoError(t, err)
	other, err := NewSealerFromKey(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	sealed, err := sealer.Seal("GB29NWBK60161331926819")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrUnsealFailed)

	_, err = sealer.Open("not-base64!")
	assert.ErrorIs(t, err, ErrUnsealFailed)
}

func TestNewSealerFromConfig(t *testing.T) {
	cfg := config.SecurityConfig{BankAccountKey: base64.StdEncoding.EncodeToString(testKey())}
	_, err := NewSealer(cfg)
	require.NoError(t, err)

	_, err = NewSealer(config.SecurityConfig{BankAccountKey: base64.StdEncoding.EncodeToString([]byte("short"))})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMaskIBAN(t *testing.T) {
	assert.Equal(t, "DE****************3000", MaskIBAN("de89 3704 0044 0532 0130 00"))
	assert.Equal(t, "****", MaskIBAN("1234"))
	assert.Equal(t, "3000", Last4("DE89370400440532013000"))
}
