// Package qmlog builds the structured logger used across the engine: a
// *zap.Logger configured the way a long-running server process wants it
// (console output in development, JSON in production), plus a handful of
// field constructors so every subsystem tags its log lines the same way
// (file id, record id, user id, transaction id).
package qmlog

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger. development=true gets human-readable console output
// at debug level; development=false gets JSON output at info level, the
// shape a log shipper expects in production.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	return cfg.Build()
}

// MustNew is New, panicking on error; suitable for process startup where a
// broken logging config should abort immediately rather than run unlogged.
func MustNew(development bool) *zap.Logger {
	l, err := New(development)
	if err != nil {
		panic(fmt.Sprintf("qmlog: %v", err))
	}
	return l
}

// FileID tags a log line with the dynamic-hash or directory file id a
// message concerns.
func FileID(id int) zap.Field { return zap.Int("file_id", id) }

// RecordID tags a log line with the record id a message concerns.
func RecordID(id string) zap.Field { return zap.String("record_id", id) }

// UserID tags a log line with the user/session number a message concerns.
func UserID(uid int32) zap.Field { return zap.Int32("uid", uid) }

// TxnID tags a log line with the transaction id a message concerns.
func TxnID(id uint32) zap.Field { return zap.Uint32("txn_id", id) }

// FatalCorruption logs msg at Fatal (terminating the process after flush),
// mirroring log_printf's role for unrecoverable structural corruption
// detected mid-operation (a bad block chain, an impossible header field):
// continuing risks writing more damage on top of what is already there.
func FatalCorruption(log *zap.Logger, msg string, fields ...zap.Field) {
	log.Fatal(msg, fields...)
}

// Sync flushes buffered log entries, swallowing ENOTTY/EINVAL: zap's stderr
// sink returns these when stderr is a terminal or pipe that doesn't support
// fsync, which is not a real logging failure.
func Sync(log *zap.Logger) error {
	err := log.Sync()
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) {
		return nil
	}
	return err
}

// NewNop returns a logger that discards everything, for tests and for any
// caller that has not yet decided on a real logging sink.
func NewNop() *zap.Logger { return zap.NewNop() }

// Level parses a level name (debug/info/warn/error) the way a config file
// would carry it, defaulting to info on an unrecognized value.
func Level(name string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.Set(name); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
