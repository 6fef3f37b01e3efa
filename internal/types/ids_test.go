package types

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallIDFrom_RejectsBiasedBytes(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
		want string
	}{
		{
			name: "high bytes skipped",
			src:  append([]byte{252, 253, 254, 255, 0, 1, 2, 3, 4, 5, 6, 251}, make([]byte, 4)...),
			want: "abcdefg9",
		},
		{
			name: "whole chunk rejected",
			src: append(bytes.Repeat([]byte{255}, 16),
				36, 37, 38, 39, 40, 41, 42, 43, 0, 0, 0, 0, 0, 0, 0, 0),
			want: "abcdefgh",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := installIDFrom(bytes.NewReader(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInstallIDFrom_ShortReader(t *testing.T) {
	_, err := installIDFrom(bytes.NewReader(bytes.Repeat([]byte{255}, 20)))
	assert.Error(t, err)
}

func TestNewInstallID(t *testing.T) {
	seen := make(map[string]bool)
	for range 200 {
		id, err := NewInstallID()
		require.NoError(t, err)
		require.Len(t, id, InstallIDLength)
		for _, c := range id {
			require.True(t, strings.ContainsRune(installAlphabet, c), "unexpected char %q in %q", c, id)
		}
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
}
