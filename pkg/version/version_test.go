package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	t.Cleanup(func() { Set("dev", "unknown", "unknown") })

	Set("v1.2.3", "abc123", "2026-01-02")

	assert.Equal(t, "v1.2.3", Version())
	assert.Equal(t, "abc123", Commit())
	assert.Equal(t, "2026-01-02", BuildDate())
	assert.Equal(t, "ocistore v1.2.3 (commit abc123, built 2026-01-02)", String())
}
