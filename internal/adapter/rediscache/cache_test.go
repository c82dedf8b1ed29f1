package rediscache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"resources:d-1:", "resources:d-1:"},
		{"resources:d-*:", `resources:d-\*:`},
		{"resources:d-?:", `resources:d-\?:`},
		{"resources:[d]:", `resources:\[d\]:`},
		{`resources:d-\:`, `resources:d-\\:`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, globEscape(tt.in), tt.in)
	}
}
