package logger

import (
	"fmt"
	"sync"
	"time"
)

const recentErrorCap = 20

// errorRing keeps the last few error lines in memory for the health report.
type errorRing struct {
	mu      sync.Mutex
	entries []string
	next    int
	full    bool
}

func newErrorRing(capacity int) *errorRing {
	return &errorRing{entries: make([]string, capacity)}
}

func (r *errorRing) add(msg string, fields []Field) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), msg)
	for _, f := range fields {
		k, v := f.GetKeyValue()
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = line
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns the buffered lines, newest first.
func (r *errorRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.entries)
	}
	out := make([]string, 0, size)
	for i := 1; i <= size; i++ {
		out = append(out, r.entries[(r.next-i+len(r.entries))%len(r.entries)])
	}
	return out
}
