package logging

import (
	"log/slog"
	"runtime/debug"
)

// Recover logs a recovered panic with its stack trace. Deferred at every
// asynchronous entry point so a failure in one handler never takes down the
// daemon or its other surfaces.
func Recover(log *slog.Logger, where string) {
	if r := recover(); r != nil {
		if log == nil {
			log = slog.Default()
		}
		log.Error("recovered from panic",
			"where", where,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}
