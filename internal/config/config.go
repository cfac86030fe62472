// Package config loads and validates the qm.ini configuration file: file
// handle/lock/user limits, FIXUSERS/PORTMAP user-number ranges, sort and
// directory-file tuning, and the paths read_config checks before a process
// will start.
//
// Grounded on gplsrc/config.c (read_config): parameter defaults, the
// SORTWORK-falls-back-to-TEMPDIR-falls-back-to-$TMP resolution chain, the
// FIXUSERS/PORTMAP overlap check, and rangecheck's bounds per parameter.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"gopkg.in/ini.v1"
)

// maxHiUserNo mirrors MIN_HI_USER_NO: the highest user number FIXUSERS and
// PORTMAP ranges may extend to.
const maxHiUserNo = 65535

// defaultMaxIDLen mirrors MAXIDLEN's floor: a configured value below this is
// a validation error, not silently clamped.
const defaultMaxIDLen = 63

// maxGroupSize mirrors MAX_GROUP_SIZE: the largest GRPSIZE accepted, equal
// to dh.MaxGroupSize.
const maxGroupSize = 8

// Config holds one qm.ini's resolved settings after validation.
type Config struct {
	SysDir  string // QMSYS: required, the account/catalogue root
	NumUsers int
	CmdStack int
	NumFiles int
	NumLocks int
	MaxIDLen int
	Deadlock bool
	FDSLimit int

	FixUsersBase  int
	FixUsersRange int
	PortMapBasePort int
	PortMapBaseUser int
	PortMapRange    int

	ErrLog int64 // bytes

	GroupSize int
	IntPrec   int
	LptrHigh  int
	LptrWide  int
	MaxCall   int
	RecCache  int
	SortMrg   int

	SortMem    datasize.ByteSize
	SortWorkDir string
	TempDir     string

	SafeDir  bool
	MustLock bool
	RingWait bool
	TxChar   bool
	FSync    int
	YearBase int
	Startup  string

	Debug    int // DEBUG: OR-combined bit flags
	DumpDir  string
	PDump    int // PDUMP: OR-combined bit flags
	NetFiles int // NETFILES: OR-combined bit flags
	FileRule int // FILERULE: OR-combined bit flags
}

// defaults mirrors read_config's pre-parse initialization.
func defaults() Config {
	return Config{
		NumUsers: 1,
		CmdStack: 99,
		NumFiles: 80,
		NumLocks: 100,
		MaxIDLen: defaultMaxIDLen,
		FDSLimit: 32767,

		GroupSize: 1,
		IntPrec:   13,
		LptrHigh:  66,
		LptrWide:  80,
		MaxCall:   10000,
		RecCache:  0,
		SortMrg:   4,

		SortMem:  datasize.ByteSize(1 << 20),
		RingWait: true,
		TxChar:   true,
		YearBase: 1930,
	}
}

// Load reads and validates path, a qm.ini-format file with all keys under a
// [QM] section. Unset keys keep their default; every known key may be
// repeated (later occurrences simply overwrite earlier ones, mirroring the
// original's linear scan-and-replace rather than an OR-combine, since
// datasize/ini parsing has no notion of "additive").
func Load(path string) (*Config, error) {
	cfg := defaults()

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %s not found: %w", path, err)
	}
	sec := f.Section("QM")

	if err := bindInt(sec, "NUMUSERS", &cfg.NumUsers); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "CMDSTACK", &cfg.CmdStack); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "NUMFILES", &cfg.NumFiles); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "NUMLOCKS", &cfg.NumLocks); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "MAXIDLEN", &cfg.MaxIDLen); err != nil {
		return nil, err
	}
	if err := bindBool(sec, "DEADLOCK", &cfg.Deadlock); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "FDS", &cfg.FDSLimit); err != nil {
		return nil, err
	}

	cfg.SysDir = sec.Key("QMSYS").String()

	if k := sec.Key("FIXUSERS"); k.String() != "" {
		base, rng, err := splitPair(k.String())
		if err != nil {
			return nil, fmt.Errorf("config: FIXUSERS: %w", err)
		}
		cfg.FixUsersBase, cfg.FixUsersRange = base, rng
	}
	if k := sec.Key("PORTMAP"); k.String() != "" {
		port, user, rng, err := splitTriple(k.String())
		if err != nil {
			return nil, fmt.Errorf("config: PORTMAP: %w", err)
		}
		cfg.PortMapBasePort, cfg.PortMapBaseUser, cfg.PortMapRange = port, user, rng
	}

	if errlogKB, err := sec.Key("ERRLOG").Int(); err == nil {
		cfg.ErrLog = int64(errlogKB) * 1024
	}

	if err := bindInt(sec, "GRPSIZE", &cfg.GroupSize); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "INTPREC", &cfg.IntPrec); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "LPTRHIGH", &cfg.LptrHigh); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "LPTRWIDE", &cfg.LptrWide); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "MAXCALL", &cfg.MaxCall); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "RECCACHE", &cfg.RecCache); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "SORTMRG", &cfg.SortMrg); err != nil {
		return nil, err
	}

	if sortMemKB, err := sec.Key("SORTMEM").Int(); err == nil {
		cfg.SortMem = datasize.ByteSize(sortMemKB) * datasize.KB
	}
	cfg.SortWorkDir = sec.Key("SORTWORK").String()
	cfg.TempDir = sec.Key("TEMPDIR").String()

	if err := bindBool(sec, "SAFEDIR", &cfg.SafeDir); err != nil {
		return nil, err
	}
	if err := bindBool(sec, "MUSTLOCK", &cfg.MustLock); err != nil {
		return nil, err
	}
	if err := bindBool(sec, "RINGWAIT", &cfg.RingWait); err != nil {
		return nil, err
	}
	if err := bindBool(sec, "TXCHAR", &cfg.TxChar); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "FSYNC", &cfg.FSync); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "YEARBASE", &cfg.YearBase); err != nil {
		return nil, err
	}
	cfg.Startup = sec.Key("STARTUP").String()

	if err := bindInt(sec, "DEBUG", &cfg.Debug); err != nil {
		return nil, err
	}
	cfg.DumpDir = sec.Key("DUMPDIR").String()
	if err := bindInt(sec, "PDUMP", &cfg.PDump); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "NETFILES", &cfg.NetFiles); err != nil {
		return nil, err
	}
	if err := bindInt(sec, "FILERULE", &cfg.FileRule); err != nil {
		return nil, err
	}

	resolveDirs(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindInt(sec *ini.Section, key string, dst *int) error {
	k := sec.Key(key)
	if k.String() == "" {
		return nil
	}
	v, err := k.Int()
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = v
	return nil
}

func bindBool(sec *ini.Section, key string, dst *bool) error {
	k := sec.Key(key)
	if k.String() == "" {
		return nil
	}
	v, err := k.Int()
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = v != 0
	return nil
}

func splitPair(s string) (a, b int, err error) {
	n, err := fmt.Sscanf(s, "%d,%d", &a, &b)
	if err != nil || n != 2 {
		return 0, 0, fmt.Errorf("expected base,range got %q", s)
	}
	return a, b, nil
}

func splitTriple(s string) (a, b, c int, err error) {
	n, err := fmt.Sscanf(s, "%d,%d,%d", &a, &b, &c)
	if err != nil || n != 3 {
		return 0, 0, 0, fmt.Errorf("expected port,baseuser,range got %q", s)
	}
	return a, b, c, nil
}

// resolveDirs applies the TEMPDIR-then-$TMP-then-/tmp fallback chain, and
// then SORTWORK-falls-back-to-TEMPDIR, exactly as read_config does so every
// other component can assume both directories are always non-empty.
func resolveDirs(cfg *Config) {
	if cfg.TempDir != "" && !isDir(cfg.TempDir) {
		cfg.TempDir = ""
	}
	if cfg.TempDir == "" {
		if tmp := os.Getenv("TMP"); tmp != "" {
			cfg.TempDir = tmp
		} else {
			cfg.TempDir = "/tmp"
		}
	}

	if cfg.SortWorkDir != "" && !isDir(cfg.SortWorkDir) {
		cfg.SortWorkDir = ""
	}
	if cfg.SortWorkDir == "" {
		cfg.SortWorkDir = cfg.TempDir
	}
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// validate mirrors read_config's post-parse checks: QMSYS required,
// FIXUSERS/PORTMAP range bounds and mutual overlap, and rangecheck's bounds
// on the remaining tunables.
func (cfg *Config) validate() error {
	if cfg.SysDir == "" {
		return fmt.Errorf("config: no QMSYS parameter in configuration file")
	}

	if cfg.PortMapRange != 0 &&
		cfg.PortMapBaseUser+cfg.PortMapRange-1 > maxHiUserNo {
		return fmt.Errorf("config: PORTMAP user numbers extend beyond %d", maxHiUserNo)
	}

	if cfg.FixUsersBase != 0 {
		if cfg.FixUsersBase+cfg.FixUsersRange-1 > maxHiUserNo {
			return fmt.Errorf("config: FIXUSERS user numbers extend beyond %d", maxHiUserNo)
		}
		if cfg.PortMapRange != 0 && rangesOverlap(
			cfg.PortMapBaseUser, cfg.PortMapRange,
			cfg.FixUsersBase, cfg.FixUsersRange) {
			return fmt.Errorf("config: PORTMAP and FIXUSERS user numbers overlap")
		}
	}

	if cfg.ErrLog != 0 && cfg.ErrLog < 10240 {
		cfg.ErrLog = 10240
	}

	checks := []struct {
		name           string
		value, lo, hi int
	}{
		{"GRPSIZE", cfg.GroupSize, 1, maxGroupSize},
		{"INTPREC", cfg.IntPrec, 0, 14},
		{"LPTRHIGH", cfg.LptrHigh, 10, 32767},
		{"LPTRWIDE", cfg.LptrWide, 10, 1000},
		{"MAXCALL", cfg.MaxCall, 10, 1000000},
		{"RECCACHE", cfg.RecCache, 0, 32},
		{"SORTMRG", cfg.SortMrg, 2, 10},
		{"MAXIDLEN", cfg.MaxIDLen, defaultMaxIDLen, 255},
	}
	for _, c := range checks {
		if c.value < c.lo || c.value > c.hi {
			return fmt.Errorf("config: invalid value for %s configuration parameter", c.name)
		}
	}

	cprocPath := filepath.Join(cfg.SysDir, "gcat", "$CPROC")
	if _, err := os.Stat(cprocPath); err != nil {
		return fmt.Errorf("config: global catalogue missing or corrupt")
	}

	return nil
}

func rangesOverlap(aBase, aRange, bBase, bRange int) bool {
	if aRange == 0 || bRange == 0 {
		return false
	}
	aEnd, bEnd := aBase+aRange-1, bBase+bRange-1
	return aBase <= bEnd && bBase <= aEnd
}
