package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "latest"},
		{name: "leading underscore", input: "_v1"},
		{name: "dots and dashes", input: "v1.2.3-rc.1"},
		{name: "max length", input: strings.Repeat("a", 128)},
		{name: "too long", input: strings.Repeat("a", 129), wantErr: true},
		{name: "leading dot", input: ".v1", wantErr: true},
		{name: "leading dash", input: "-v1", wantErr: true},
		{name: "contains slash", input: "v1/beta", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, err := ParseTag(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTagInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, tag.String())
		})
	}
}

func TestParseReference(t *testing.T) {
	t.Run("digest wins", func(t *testing.T) {
		ref, err := ParseReference("sha256:" + strings.Repeat("a", 64))
		require.NoError(t, err)
		_, ok := ref.(Digest)
		assert.True(t, ok)
	})

	t.Run("tag fallback", func(t *testing.T) {
		ref, err := ParseReference("latest")
		require.NoError(t, err)
		tag, ok := ref.(Tag)
		require.True(t, ok)
		assert.Equal(t, "latest", tag.String())
	})

	t.Run("empty fails", func(t *testing.T) {
		_, err := ParseReference("")
		assert.ErrorIs(t, err, ErrReferenceInvalid)
	})

	t.Run("neither grammar", func(t *testing.T) {
		_, err := ParseReference("sha256:not-hex!")
		assert.ErrorIs(t, err, ErrReferenceInvalid)
	})
}
