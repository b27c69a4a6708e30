package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"object":"whatsapp_business_account","entry":[]}`),
		[]byte(""),
		[]byte("çãõ unicode body \x00 with nul"),
	}
	for _, p := range payloads {
		require.NoError(t, Verify(p, Sign(p, "s3cr3t"), "s3cr3t"))
	}
}

func TestVerifyRejectsSingleBitMutations(t *testing.T) {
	body := []byte(`{"entry":[{"id":"123"}]}`)
	secret := "app-secret"
	header := Sign(body, secret)

	for i := 0; i < len(body); i++ {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 1 << bit
			assert.ErrorIs(t, Verify(mutated, header, secret), ErrMismatch, "byte %d bit %d", i, bit)
		}
	}

	for i := 0; i < len(secret); i++ {
		for bit := 0; bit < 8; bit++ {
			s := []byte(secret)
			s[i] ^= 1 << bit
			assert.ErrorIs(t, Verify(body, header, string(s)), ErrMismatch)
		}
	}
}

func TestVerifyHardRejections(t *testing.T) {
	body := []byte(`{}`)
	good := Sign(body, "k")

	cases := []struct {
		name   string
		header string
		secret string
		want   error
	}{
		{"missing header", "", "k", ErrMissingSignature},
		{"no secret", good, "", ErrNoSecret},
		{"wrong prefix", "sha1=" + strings.TrimPrefix(good, "sha256="), "k", ErrMalformed},
		{"not hex", "sha256=zzzz", "k", ErrMalformed},
		{"short digest", "sha256=abcd", "k", ErrMalformed},
		{"mismatch", Sign([]byte(`{"x":1}`), "k"), "k", ErrMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, Verify(body, tc.header, tc.secret), tc.want)
		})
	}
}

func TestVerifyToken(t *testing.T) {
	assert.True(t, VerifyToken("abc", "abc"))
	assert.False(t, VerifyToken("abc", "abd"))
	assert.False(t, VerifyToken("", ""))
	assert.False(t, VerifyToken("abc", ""))
}
