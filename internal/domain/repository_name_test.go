package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepositoryName(t *testing.T) {
	host := Host{Name: "localhost", Port: 5000}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "single component", input: "alpine"},
		{name: "nested", input: "library/alpine"},
		{name: "separators", input: "my-org/my_app.web/a__b"},
		{name: "repeated dashes", input: "a--b"},
		{name: "uppercase", input: "Library/alpine", wantErr: true},
		{name: "trailing slash", input: "library/", wantErr: true},
		{name: "leading separator", input: "-app", wantErr: true},
		{name: "triple underscore", input: "a___b", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRepositoryName(tt.input, host)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrRepositoryNameInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestParseRepositoryName_LengthBoundary(t *testing.T) {
	tests := []struct {
		name string
		host Host
	}{
		{name: "with port", host: Host{Name: "localhost", Port: 5000}},
		{name: "without port", host: Host{Name: "registry.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := 255 - tt.host.QualifiedLength()

			_, err := ParseRepositoryName(strings.Repeat("a", room), tt.host)
			assert.NoError(t, err)

			_, err = ParseRepositoryName(strings.Repeat("a", room+1), tt.host)
			assert.ErrorIs(t, err, ErrRepositoryNameInvalid)
		})
	}
}

func TestHost_QualifiedLength(t *testing.T) {
	assert.Equal(t, len("localhost:5000/"), Host{Name: "localhost", Port: 5000}.QualifiedLength())
	assert.Equal(t, len("localhost/"), Host{Name: "localhost"}.QualifiedLength())
}
