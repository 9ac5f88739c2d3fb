// Package audittest provides a recording auditor for tests.
package audittest

import (
	"context"
	"sync"

	"github.com/chalkboard/chalkboard/chalkd/audit"
	"github.com/chalkboard/chalkboard/chalkd/database"
)

// Recorder collects exported events for assertions.
type Recorder struct {
	mu   sync.Mutex
	logs []database.AuditLog
}

var _ audit.Auditor = (*Recorder)(nil)

func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Export(_ context.Context, alog database.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, alog)
	return nil
}

// Logs returns a copy of everything exported so far.
func (r *Recorder) Logs() []database.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]database.AuditLog, len(r.logs))
	copy(out, r.logs)
	return out
}

// Contains reports whether any exported event has the given action.
func (r *Recorder) Contains(action database.AuditAction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, alog := range r.logs {
		if alog.Action == action {
			return true
		}
	}
	return false
}
