package diag

import (
	"github.com/tliron/commonlog"
)

// ConfigureLogging wires process-wide logging the way cmd/kanso-lsp does:
// commonlog.Configure(verbosity, logPath), then a named logger per
// subsystem. verbosity 0 is silent; each increment enables one more level
// (info, debug, ...), mirroring the teacher's CLI verbosity flag.
func ConfigureLogging(verbosity int, logPath *string) {
	commonlog.Configure(verbosity, logPath)
}

// Logger returns a named commonlog logger, the same call the teacher's
// LSP server and CLI make to get a per-component logger.
func Logger(name string) commonlog.Logger {
	return commonlog.GetLogger(name)
}
