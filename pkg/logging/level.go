// Package logging provides leveled logging for graphsync, backed by zap.
package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Level represents the logging verbosity level
type Level int

const (
	// LevelQuiet shows only warnings and errors
	LevelQuiet Level = iota
	// LevelNormal shows standard progress (default)
	LevelNormal
	// LevelVerbose shows every captured or replayed entry
	LevelVerbose
	// LevelDebug shows all internal details for debugging
	LevelDebug
)

var levelNames = map[string]Level{
	"quiet":   LevelQuiet,
	"normal":  LevelNormal,
	"verbose": LevelVerbose,
	"debug":   LevelDebug,
}

// ParseLevel maps a verbosity name to a Level. An empty name means normal.
func ParseLevel(name string) (Level, error) {
	if name == "" {
		return LevelNormal, nil
	}
	level, ok := levelNames[name]
	if !ok {
		return LevelNormal, fmt.Errorf("invalid verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", name)
	}
	return level, nil
}

func (l Level) String() string {
	for name, level := range levelNames {
		if level == l {
			return name
		}
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

func (l Level) zapLevel() zapcore.Level {
	switch {
	case l <= LevelQuiet:
		return zapcore.WarnLevel
	case l == LevelNormal:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
