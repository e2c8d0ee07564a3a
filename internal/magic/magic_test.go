package magic

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMachO(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{name: "thin 64", data: []byte{0xcf, 0xfa, 0xed, 0xfe, 0x0c}, want: true},
		{name: "thin 32", data: []byte{0xce, 0xfa, 0xed, 0xfe}, want: true},
		{name: "fat", data: []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 2}, want: true},
		{name: "plist", data: []byte("<?xml version")},
		{name: "short", data: []byte{0xcf, 0xfa}},
		{name: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsMachO(bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsMachOFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a/bin", []byte{0xca, 0xfe, 0xba, 0xbe}, 0o755))

	ok, err := IsMachOFile(fs, "/a/bin")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = IsMachOFile(fs, "/a/missing")
	assert.Error(t, err)
}
