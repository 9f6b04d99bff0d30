package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameFromEmail(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"ada.lovelace@example.com", "Ada Lovelace"},
		{"ada.king-lovelace@example.com", "Ada Lovelace"},
		{"grace@example.com", "Grace"},
		{"alan_turing+console@example.com", "Alan Console"},
		{"", ""},
		{"...@example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.expected, NameFromEmail(tt.email))
		})
	}
}
