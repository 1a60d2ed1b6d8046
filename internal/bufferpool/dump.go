package bufferpool

import (
	"fmt"
	"io"
)

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Fprintf(format string, a ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, a...)
}

// Dump writes one line per frame: file, page, pins and flags.
// Debugging aid only.
func (m *Manager) Dump(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ew := &errWriter{w: w}
	ew.Fprintf("buffer pool: %d frames, %d indexed, hand=%d\n", len(m.descs), m.index.count(), m.clock.Hand())
	for i := range m.descs {
		d := &m.descs[i]
		if !d.valid {
			ew.Fprintf("%4d  -\n", i)
			continue
		}
		ew.Fprintf("%4d  file=%s page=%d pin=%d dirty=%t ref=%t valid\n",
			i, d.file.ID(), d.pageNo, d.pinCount, d.dirty, d.refBit)
	}
	return ew.err
}
