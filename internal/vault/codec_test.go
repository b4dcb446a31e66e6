package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(New("test-secret", "k1"))

	sealed, err := codec.EncryptField("refresh-token")
	require.NoError(t, err)
	assert.NotEqual(t, "refresh-token", sealed)

	assert.Equal(t, "refresh-token", codec.DecryptField(sealed))
}

func TestCodec_EmptyPassthrough(t *testing.T) {
	codec := NewCodec(New("test-secret", "k1"))

	sealed, err := codec.EncryptField("")
	require.NoError(t, err)
	assert.Equal(t, "", sealed)

	assert.Equal(t, "", codec.DecryptField(""))
}

// A corrupt stored envelope must not fail the surrounding read; the
// codec swallows the error and yields an empty value.
func TestCodec_UnreadableYieldsEmpty(t *testing.T) {
	codec := NewCodec(New("test-secret", "k1"))

	assert.Equal(t, "", codec.DecryptField("garbage"))

	other := NewCodec(New("different-secret", "k1"))
	sealed, err := other.EncryptField("token")
	require.NoError(t, err)
	assert.Equal(t, "", codec.DecryptField(sealed))
}
