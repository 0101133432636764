package qr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEncryptedQRProducesPNG(t *testing.T) {
	gen := NewGenerator("test-secret")

	png, err := gen.GenerateEncryptedQR(Payload{Code: "ABC123", EventID: "event1"})
	require.NoError(t, err)
	require.NotEmpty(t, png)

	// PNG magic bytes.
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	gen := NewGenerator("test-secret")
	payload := Payload{Code: "ABC123", EventID: "event1"}

	data, err := encryptAES([]byte(`{"code":"ABC123","event_id":"event1"}`), gen.secret)
	require.NoError(t, err)

	got, err := gen.DecryptPayload(data)
	require.NoError(t, err)
	assert.Equal(t, payload, *got)
}

func TestDecryptWithWrongSecretFails(t *testing.T) {
	gen := NewGenerator("test-secret")
	other := NewGenerator("other-secret")

	data, err := encryptAES([]byte(`{"code":"ABC123","event_id":"event1"}`), gen.secret)
	require.NoError(t, err)

	// Wrong key yields garbage that fails JSON decoding.
	_, err = other.DecryptPayload(data)
	assert.Error(t, err)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	gen := NewGenerator("test-secret")

	_, err := gen.DecryptPayload("AAAA")
	assert.Error(t, err)
}
