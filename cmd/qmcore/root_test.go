package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestWriteReadSelectRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CUSTOMERS")

	runCmd(t, "--dir", dir, "write", "1001", "Alice")
	runCmd(t, "--dir", dir, "write", "1002", "Bob")

	got := runCmd(t, "--dir", dir, "read", "1001")
	require.Equal(t, "Alice\n", got)

	ids := runCmd(t, "--dir", dir, "select")
	require.Contains(t, ids, "1001")
	require.Contains(t, ids, "1002")
}

func TestDeleteRemovesRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CUSTOMERS")
	runCmd(t, "--dir", dir, "write", "a", "v1")
	runCmd(t, "--dir", dir, "delete", "a")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--dir", dir, "read", "a"})
	require.Error(t, cmd.Execute())
}

func TestSortOrdersNumericIDs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CUSTOMERS")
	for _, id := range []string{"30", "5", "100", "20"} {
		runCmd(t, "--dir", dir, "write", id, "v"+id)
	}

	got := runCmd(t, "--dir", dir, "sort", "--numeric")
	require.Equal(t, "5\tv5\n20\tv20\n30\tv30\n100\tv100\n", got)
}

func TestConfigLoadsAndPrintsResolvedValues(t *testing.T) {
	sysdir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(sysdir, "gcat"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sysdir, "gcat", "$CPROC"), []byte{}, 0o644))

	path := filepath.Join(t.TempDir(), "qm.ini")
	require.NoError(t, os.WriteFile(path, []byte("[QM]\nQMSYS="+sysdir+"\n"), 0o644))

	got := runCmd(t, "--dir", "unused", "config", path)
	require.Contains(t, got, "QMSYS       "+sysdir)
}
