package config

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/arpa-network/randcast-node/log"
)

// Build constructs the process logger from the logger block (spec.md §6
// logger: node_id, context_logging, log_file_path, rolling_file_size),
// writing to a rolling file via gopkg.in/natefinch/lumberjack.v2 when
// log_file_path is set, or stdout otherwise. Grounded on
// ethereum-go-ethereum's go.mod, which already lists lumberjack for this
// exact rolling-log-file role.
func (c LoggerConfig) Build(level int) log.Logger {
	var sink zapcore.WriteSyncer
	isJSON := true
	if c.LogFilePath == "" {
		sink = zapcore.AddSync(os.Stdout)
		isJSON = false
	} else {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename: c.LogFilePath,
			MaxSize:  c.rollingFileSizeMB(),
			Compress: true,
		})
	}
	l := log.New(sink, level, isJSON)
	if c.NodeID != "" {
		l = l.With("node_id", c.NodeID)
	}
	return l
}

const defaultRollingFileSizeMB = 100

// rollingFileSizeMB parses rolling_file_size (e.g. "100MB", "1GB",
// or a bare megabyte count) into lumberjack's MaxSize unit (megabytes).
func (c LoggerConfig) rollingFileSizeMB() int {
	raw := strings.TrimSpace(strings.ToUpper(c.RollingFileSize))
	if raw == "" {
		return defaultRollingFileSizeMB
	}
	switch {
	case strings.HasSuffix(raw, "GB"):
		n, err := strconv.Atoi(strings.TrimSuffix(raw, "GB"))
		if err == nil && n > 0 {
			return n * 1024
		}
	case strings.HasSuffix(raw, "MB"):
		n, err := strconv.Atoi(strings.TrimSuffix(raw, "MB"))
		if err == nil && n > 0 {
			return n
		}
	default:
		n, err := strconv.Atoi(raw)
		if err == nil && n > 0 {
			return n
		}
	}
	return defaultRollingFileSizeMB
}
