package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeIni(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qm.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// newSysDir creates a QMSYS directory tree with a stub global catalogue, the
// minimum read_config's final check requires for Load to succeed.
func newSysDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gcat"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gcat", "$CPROC"), []byte{}, 0o644))
	return dir
}

func TestLoadAppliesDefaults(t *testing.T) {
	sysdir := newSysDir(t)
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, sysdir, cfg.SysDir)
	require.Equal(t, 80, cfg.NumFiles)
	require.Equal(t, 100, cfg.NumLocks)
	require.Equal(t, 63, cfg.MaxIDLen)
	require.Equal(t, 4, cfg.SortMrg)
	require.True(t, cfg.RingWait)
	require.True(t, cfg.TxChar)
}

func TestLoadMissingQMSYSFails(t *testing.T) {
	path := writeIni(t, "[QM]\nNUMFILES=10\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "QMSYS")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
}

func TestLoadMissingGlobalCatalogueFails(t *testing.T) {
	path := writeIni(t, "[QM]\nQMSYS="+t.TempDir()+"\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "catalogue")
}

func TestFixUsersAndPortMapParse(t *testing.T) {
	sysdir := newSysDir(t)
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nFIXUSERS=100,50\nPORTMAP=4000,200,20\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.FixUsersBase)
	require.Equal(t, 50, cfg.FixUsersRange)
	require.Equal(t, 4000, cfg.PortMapBasePort)
	require.Equal(t, 200, cfg.PortMapBaseUser)
	require.Equal(t, 20, cfg.PortMapRange)
}

func TestFixUsersPortMapOverlapRejected(t *testing.T) {
	sysdir := newSysDir(t)
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nFIXUSERS=100,50\nPORTMAP=4000,120,10\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "overlap")
}

func TestFixUsersRangeBeyondLimitRejected(t *testing.T) {
	sysdir := newSysDir(t)
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nFIXUSERS=65500,100\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "FIXUSERS")
}

func TestRangeCheckRejectsOutOfBoundsSortMrg(t *testing.T) {
	sysdir := newSysDir(t)
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nSORTMRG=1\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "SORTMRG")
}

func TestErrLogFloorsAtTenKB(t *testing.T) {
	sysdir := newSysDir(t)
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nERRLOG=1\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(10240), cfg.ErrLog)
}

func TestSortWorkDirFallsBackToTempDir(t *testing.T) {
	sysdir := newSysDir(t)
	tmp := t.TempDir()
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nTEMPDIR="+tmp+"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, tmp, cfg.TempDir)
	require.Equal(t, tmp, cfg.SortWorkDir)
}

func TestNonexistentTempDirFallsBackToDefault(t *testing.T) {
	sysdir := newSysDir(t)
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nTEMPDIR=/no/such/directory\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEqual(t, "/no/such/directory", cfg.TempDir)
}

func TestSortMemParsedInKilobytes(t *testing.T) {
	sysdir := newSysDir(t)
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nSORTMEM=2048\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(2048*1024), cfg.SortMem.Bytes())
}

func TestDebugDumpdirAndFlagParamsParse(t *testing.T) {
	sysdir := newSysDir(t)
	dumpdir := t.TempDir()
	path := writeIni(t, "[QM]\nQMSYS="+sysdir+"\nDEBUG=3\nDUMPDIR="+dumpdir+"\nPDUMP=1\nNETFILES=2\nFILERULE=1\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Debug)
	require.Equal(t, dumpdir, cfg.DumpDir)
	require.Equal(t, 1, cfg.PDump)
	require.Equal(t, 2, cfg.NetFiles)
	require.Equal(t, 1, cfg.FileRule)
}
