package dh

import "fmt"

// Err is the closed dh_err code type. Every DH
// call sets one of these on failure; the caller decides whether to raise an
// interpreter error or surface it directly.
type Err int

const (
	ErrNone Err = iota
	ErrFileNotFound
	ErrExclusive
	ErrReadError
	ErrWriteError
	ErrHeaderCorrupt
	ErrVersionUnsupported
	ErrIDLen
	ErrTooManyFiles
	ErrAKCrossCheck
	ErrAKHeaderCorrupt
	ErrAKNotFound
	ErrTrusted
	ErrNoMemory
	ErrRecordNotFound
	ErrHashType
	ErrPointerError
)

func (e Err) String() string {
	switch e {
	case ErrNone:
		return "ok"
	case ErrFileNotFound:
		return "file not found"
	case ErrExclusive:
		return "file already open exclusively"
	case ErrReadError:
		return "read error"
	case ErrWriteError:
		return "write error"
	case ErrHeaderCorrupt:
		return "header corrupt (PSFH fault)"
	case ErrVersionUnsupported:
		return "file version not supported"
	case ErrIDLen:
		return "record id exceeds configured maximum length"
	case ErrTooManyFiles:
		return "too many open files"
	case ErrAKCrossCheck:
		return "AK subfile cross-check failed"
	case ErrAKHeaderCorrupt:
		return "AK header corrupt"
	case ErrAKNotFound:
		return "AK subfile not found"
	case ErrTrusted:
		return "trusted access required"
	case ErrNoMemory:
		return "out of memory"
	case ErrRecordNotFound:
		return "record not found"
	case ErrHashType:
		return "not a hashed (DH) file"
	case ErrPointerError:
		return "invalid block pointer (file corrupt)"
	default:
		return fmt.Sprintf("dh error %d", int(e))
	}
}

// Error adapts Err to the error interface so DH functions can return a
// plain Go error while callers that need the code can type-assert *Error
// or compare with errors.Is against a sentinel built from an Err.
type Error struct {
	Code Err
	Op   string // e.g. "dh_open", "dh_read"
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return e.Code.String()
}

// Is reports whether target is an *Error with the same Code, so errors.Is
// matches a sentinel built from an Err whatever its Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func wrapErr(op string, code Err) error {
	if code == ErrNone {
		return nil
	}
	return &Error{Code: code, Op: op}
}

// CodeOf extracts the Err code from an error returned by this package,
// defaulting to ErrNone if err is nil and ErrReadError for any error that
// is not an *Error.
func CodeOf(err error) Err {
	if err == nil {
		return ErrNone
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrReadError
}
