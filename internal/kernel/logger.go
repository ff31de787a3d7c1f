package kernel

import "go.uber.org/zap"

// SugaredLogger adapts *zap.SugaredLogger to kthread.Logger and gives every
// subsystem a named child logger, mirroring the reference's DEBUG('f', ...)
// /DEBUG('v', ...) flag letters as logger names instead of a global flag
// string.
type SugaredLogger struct {
	*zap.SugaredLogger
}

// NewLogger wraps z.Sugar() as a SugaredLogger.
func NewLogger(z *zap.Logger) *SugaredLogger {
	return &SugaredLogger{SugaredLogger: z.Sugar()}
}

// Named returns a child logger tagged with name, for a specific subsystem
// (e.g. "fs", "vm", "sched").
func (l *SugaredLogger) Named(name string) *SugaredLogger {
	return &SugaredLogger{SugaredLogger: l.SugaredLogger.Named(name)}
}
