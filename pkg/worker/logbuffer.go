package worker

import (
	"strings"
	"sync"
)

const defaultLogBufferLines = 2000

// LogBuffer is a bounded in-memory ring of log lines backing the worker's
// /logs endpoint. It implements io.Writer so it can sit behind a slog
// handler alongside stderr.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = defaultLogBufferLines
	}

	return &LogBuffer{max: maxLines}
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		b.lines = append(b.lines, line)
	}

	if overflow := len(b.lines) - b.max; overflow > 0 {
		b.lines = append(b.lines[:0], b.lines[overflow:]...)
	}

	return len(p), nil
}

// Dump returns the buffered lines, oldest first.
func (b *LogBuffer) Dump() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.lines, "\n")
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.lines)
}
