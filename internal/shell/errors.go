package shell

import (
	"errors"

	"github.com/pennos-project/pennos/internal/fatfs"
	"github.com/pennos-project/pennos/internal/kernel"
)

var errMissingRedirectTarget = errors.New("shell: redirection operator with no target")

// errPrefix is the fixed error-message prefix table: the shell reports a
// failed call by writing prefix+verb to standard error rather than the
// raw Go error text.
var errPrefix = map[error]string{
	fatfs.ErrNotPermitted:   "NOT PERMITTED: ",
	fatfs.ErrNotFound:       "NO SUCH FILE/DIRECTORY: ",
	fatfs.ErrPermDenied:     "PERMISSION DENIED: ",
	fatfs.ErrNotDir:         "NOT A DIRECTORY: ",
	fatfs.ErrIsDir:          "IS A DIRECTORY: ",
	fatfs.ErrExists:         "FILE EXISTS: ",
	fatfs.ErrNotEmpty:       "DIRECTORY NOT EMPTY: ",
	fatfs.ErrNoSpace:        "NO SPACE LEFT ON DEVICE: ",
	fatfs.ErrInvalidArg:     "INVALID ARGUMENT: ",
	fatfs.ErrBusy:           "RESOURCE BUSY: ",
	kernel.ErrNoSuchProcess: "NO SUCH PROCESS: ",
	kernel.ErrInvalidState:  "INVALID STATE: ",
	kernel.ErrNoChildren:    "NO CHILDREN: ",
	kernel.ErrInvalidArg:    "INVALID ARGUMENT: ",
}

// reportError writes err to the shell's own standard error (never
// redirected), formatted as "<prefix><verb>\n" if err is a recognized
// sentinel, or "<verb>: <err>\n" otherwise.
func reportError(verb string, err error) {
	if err == nil {
		return
	}
	for sentinel, prefix := range errPrefix {
		if errors.Is(err, sentinel) {
			writeErr(prefix + verb + "\n")
			return
		}
	}
	writeErr(verb + ": " + err.Error() + "\n")
}
