// Package gclog is congc's structured logging seam, kept separate from the
// driver so the rest of the module never imports logrus directly — mirrors
// the teacher's practice of isolating its own logging helpers in a
// dedicated package to avoid import cycles with the types it logs.
package gclog

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the narrow surface the collector needs. A nil *Logger is
// valid and logs nothing; hosts that want their own sink can pass any
// *logrus.Logger via New.
type Logger struct {
	entry *logrus.Entry
}

// New wraps an existing *logrus.Logger. A nil logger falls back to
// logrus.StandardLogger().
func New(base *logrus.Logger) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logger{entry: logrus.NewEntry(base)}
}

// Cycle logs one completed mark/sweep cycle.
func (l *Logger) Cycle(reclaimed, live, capacity uint64, d time.Duration) {
	if l == nil {
		return
	}
	l.entry.WithFields(logrus.Fields{
		"reclaimed_bytes": reclaimed,
		"live":            live,
		"capacity":        capacity,
		"duration":        d,
	}).Debug("congc: collection cycle complete")
}

// Resize logs a registry grow/shrink rehash.
func (l *Logger) Resize(oldCapacity, newCapacity uint64) {
	if l == nil {
		return
	}
	l.entry.WithFields(logrus.Fields{
		"old_capacity": oldCapacity,
		"new_capacity": newCapacity,
	}).Trace("congc: registry resized")
}

// Stopped logs collector shutdown.
func (l *Logger) Stopped(reclaimed uint64) {
	if l == nil {
		return
	}
	l.entry.WithField("reclaimed_bytes", reclaimed).Info("congc: collector stopped")
}
