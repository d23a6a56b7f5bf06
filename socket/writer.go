package socket

import "sync"

// connWriter owns all writes to one transport handle. Frames are handed over
// without blocking and written in order on the writer's own goroutine, so a
// stalled write never holds the client lock.
type connWriter struct {
	conn Transport

	mu      sync.Mutex
	cond    *sync.Cond
	pending [][]byte
	writing bool
	stopped bool
}

func newConnWriter(conn Transport) *connWriter {
	w := &connWriter{conn: conn}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// enqueue appends frames behind everything already pending.
func (w *connWriter) enqueue(frames ...[]byte) {
	if len(frames) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending = append(w.pending, frames...)
	w.cond.Signal()
}

// backlog counts frames not yet written, including one being written.
func (w *connWriter) backlog() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// stop ends the writer and returns the frames it had not started writing. A
// frame whose write is in progress is not returned.
func (w *connWriter) stop() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	unsent := w.pending
	if w.writing && len(unsent) > 0 {
		unsent = unsent[1:]
	}
	w.pending = nil
	w.cond.Broadcast()
	return unsent
}

// run writes pending frames until stop or the first write error. After an
// error the failed frame stays at the head of pending so stop returns it,
// unless stop already ran during the write, which failed reports as
// superseded.
func (w *connWriter) run(sent func(), failed func(err error, superseded bool)) {
	for {
		w.mu.Lock()
		for len(w.pending) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.mu.Unlock()
			return
		}
		frame := w.pending[0]
		w.writing = true
		w.mu.Unlock()

		err := w.conn.Send(frame)

		w.mu.Lock()
		w.writing = false
		superseded := w.stopped
		if err == nil && !superseded {
			w.pending = w.pending[1:]
		}
		w.mu.Unlock()

		if err != nil {
			failed(err, superseded)
			return
		}
		sent()
	}
}
