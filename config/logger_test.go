package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/config"
)

func TestLoggerBuildToStdoutWhenNoFilePath(t *testing.T) {
	l := config.LoggerConfig{}.Build(0)
	require.NotNil(t, l)
}

func TestLoggerBuildToRollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	l := config.LoggerConfig{LogFilePath: path, RollingFileSize: "50MB"}.Build(0)
	require.NotNil(t, l)

	l.Infow("hello")
}

func TestLoggerBuildWithNodeIDAttachesField(t *testing.T) {
	l := config.LoggerConfig{NodeID: "node-1"}.Build(0)
	require.NotNil(t, l)
}
