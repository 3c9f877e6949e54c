package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"sure\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := Confirm(strings.NewReader(tt.input), &out, "Install 2025.11.2?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "Install 2025.11.2? [y/N]")
	}
}

func TestDisabledSpinnerIsNoop(t *testing.T) {
	var out bytes.Buffer
	s := NewSpinner(&out, false, "Waiting")
	s.Start()
	s.Update("Still waiting")
	s.Fail("failed")
	assert.Empty(t, out.String())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "100.0 MiB", FormatBytes(100<<20))
}

func TestKeyValueTable(t *testing.T) {
	var out bytes.Buffer
	KeyValueTable(&out, [][2]string{{"Channel", "stable"}, {"Keep backup", "false"}})
	assert.Contains(t, out.String(), "stable")
	assert.Contains(t, out.String(), "Keep backup")
}

func TestTable(t *testing.T) {
	var out bytes.Buffer
	Table(&out, []string{"Current", "Latest"}, [][]string{{"2025.11.1", "2025.11.2"}})
	assert.Contains(t, out.String(), "2025.11.2")
}
