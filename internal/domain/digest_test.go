package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloSHA256 = "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestParseDigest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "valid sha256", input: helloSHA256, want: helloSHA256},
		{name: "uppercase hex is lowercased", input: strings.ToUpper(helloSHA256), want: helloSHA256},
		{name: "sha512", input: "sha512:" + strings.Repeat("ab", 64), want: "sha512:" + strings.Repeat("ab", 64)},
		{name: "empty", input: "", wantErr: true},
		{name: "missing separator", input: "sha256", wantErr: true},
		{name: "too many separators", input: "sha256:abc:def", wantErr: true},
		{name: "empty algorithm", input: ":abcdef", wantErr: true},
		{name: "empty hex", input: "sha256:", wantErr: true},
		{name: "non hex characters", input: "sha256:xyz", wantErr: true},
		{name: "unknown algorithm", input: "md5:d41d8cd98f00b204e9800998ecf8427e", wantErr: true},
		{name: "malformed algorithm", input: "sha-:abcdef", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDigest(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrDigestInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseDigest_RoundTrip(t *testing.T) {
	inputs := []string{
		"sha256:" + strings.Repeat("a", 64),
		"sha256:" + strings.Repeat("F", 64),
		"SHA256:" + strings.Repeat("0123456789abcdef", 4),
	}

	for _, input := range inputs {
		d, err := ParseDigest(input)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(input), d.String())
	}
}

func TestDigest_Validate(t *testing.T) {
	d, err := ParseDigest(helloSHA256)
	require.NoError(t, err)

	assert.True(t, d.Validate([]byte("hello")))
	assert.False(t, d.Validate([]byte("hello!")))
	assert.Equal(t, d, SHA256Of([]byte("hello")))
}

func TestFromBytes(t *testing.T) {
	d, err := FromBytes(SHA512, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, SHA512, d.Algorithm())
	assert.Len(t, d.Hex(), 128)
	assert.True(t, d.Validate([]byte("hello")))

	_, err = FromBytes(Algorithm("md5"), []byte("hello"))
	assert.ErrorIs(t, err, ErrDigestInvalid)
}

func TestDigest_TextMarshaling(t *testing.T) {
	d := SHA256Of([]byte("hello"))

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, helloSHA256, string(text))

	var decoded Digest
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, d, decoded)

	assert.Error(t, decoded.UnmarshalText([]byte("nope")))
}
