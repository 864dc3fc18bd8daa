package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_Fallback(t *testing.T) {
	assert.NotEmpty(t, String())
}

func TestString_Ldflags(t *testing.T) {
	saved := Version
	t.Cleanup(func() { Version = saved })

	Version = "v1.2.3"

	assert.Equal(t, "v1.2.3", String())
}
