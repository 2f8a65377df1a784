package login

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		local bool
	}{
		{"/", "/", true},
		{"/account/profile?tab=1", "/account/profile?tab=1", true},
		{"~/account", "/account", true},
		{"~", "", false},
		{"~account", "", false},
		{"", "", false},
		{"account", "", false},
		{"//evil.example", "", false},
		{"/\\evil.example", "", false},
		{"https://evil.example/", "", false},
		{"/ok\r\nSet-Cookie: x=1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := LocalPath(tt.in)
			assert.Equal(t, tt.local, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.local, IsLocalURL(tt.in))
		})
	}
}
