package kernel

import "golang.org/x/xerrors"

// Process-API error sentinels, parallel to the fatfs package's own error
// table: callers compare with errors.Is, never string matching.
var (
	ErrNoSuchProcess = xerrors.New("kernel: no such process")
	ErrInvalidState  = xerrors.New("kernel: process not in a valid state for this signal")
	ErrNoChildren    = xerrors.New("kernel: process has no children")
	ErrInvalidArg    = xerrors.New("kernel: invalid argument")
)
