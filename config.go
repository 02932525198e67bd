// Package pennos provides the process-global wiring shared between the
// kernel, filesystem and shell packages: host signal bridging and the
// command-line Config.
package pennos

// Config carries the values parsed from the command line (see cmd/pennos)
// down into the kernel and shell without resorting to package-level
// globals, per the "process-wide state... encapsulate as an explicit
// kernel value" design note.
type Config struct {
	// FSImage is the path to the backing file mounted as the root
	// filesystem.
	FSImage string

	// LogFile is the path event-log lines are appended to. Defaults to
	// "log.txt".
	LogFile string
}
