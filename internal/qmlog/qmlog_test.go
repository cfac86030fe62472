package qmlog

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// enottySyncer is a sink whose Sync fails the way a terminal stderr does.
type enottySyncer struct{}

func (enottySyncer) Write(p []byte) (int, error) { return len(p), nil }
func (enottySyncer) Sync() error { return syscall.ENOTTY }

func TestNewDevelopmentAndProduction(t *testing.T) {
	dev, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, dev)

	prod, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, prod)
}

func TestFieldConstructors(t *testing.T) {
	require.Equal(t, "file_id", FileID(7).Key)
	require.Equal(t, "record_id", RecordID("1001").Key)
	require.Equal(t, "uid", UserID(3).Key)
	require.Equal(t, "txn_id", TxnID(42).Key)
}

func TestSyncIgnoresENOTTY(t *testing.T) {
	log := NewNop()
	require.NoError(t, Sync(log))

	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	tty := zap.New(zapcore.NewCore(enc, enottySyncer{}, zapcore.InfoLevel))
	require.ErrorIs(t, tty.Sync(), syscall.ENOTTY)
	require.NoError(t, Sync(tty))
}

func TestLevelParsesKnownNames(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, Level("debug"))
	require.Equal(t, zapcore.ErrorLevel, Level("error"))
}

func TestLevelDefaultsToInfoOnUnknown(t *testing.T) {
	require.Equal(t, zapcore.InfoLevel, Level("not-a-level"))
}
