package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRollingFileSizeMBParsing(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", defaultRollingFileSizeMB},
		{"100MB", 100},
		{"1GB", 1024},
		{"250", 250},
		{"garbage", defaultRollingFileSizeMB},
		{"0MB", defaultRollingFileSizeMB},
	}
	for _, c := range cases {
		got := LoggerConfig{RollingFileSize: c.in}.rollingFileSizeMB()
		require.Equal(t, c.want, got, "input %q", c.in)
	}
}
