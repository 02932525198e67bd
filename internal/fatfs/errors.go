package fatfs

import "golang.org/x/xerrors"

// Error kinds returned by the filesystem API. Callers compare with
// errors.Is; internal plumbing wraps these with xerrors.Errorf("%w") for
// additional context without losing the sentinel.
var (
	ErrNotPermitted = xerrors.New("not permitted")
	ErrNotFound     = xerrors.New("no such file or directory")
	ErrPermDenied   = xerrors.New("permission denied")
	ErrNotDir       = xerrors.New("not a directory")
	ErrIsDir        = xerrors.New("is a directory")
	ErrExists       = xerrors.New("file exists")
	ErrNotEmpty     = xerrors.New("directory not empty")
	ErrNoSpace      = xerrors.New("no space left on device")
	ErrInvalidArg   = xerrors.New("invalid argument")
	ErrBusy         = xerrors.New("resource busy")
)
