package socket

// OverflowPolicy decides what a bounded outbound queue does when full.
type OverflowPolicy uint8

const (
	// DropOldest evicts the head of the queue to make room.
	DropOldest OverflowPolicy = iota
	// RejectNew refuses the new frame with ErrQueueFull.
	RejectNew
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case RejectNew:
		return "reject-new"
	default:
		return "unknown"
	}
}

// outboundQueue buffers serialized frames while the connection is not open.
// It is not safe for concurrent use; the client lock guards it.
type outboundQueue struct {
	frames [][]byte
	limit  int
	policy OverflowPolicy
}

func newOutboundQueue(limit int, policy OverflowPolicy) *outboundQueue {
	return &outboundQueue{limit: limit, policy: policy}
}

// push appends a frame. dropped is true when an older frame was evicted.
func (q *outboundQueue) push(frame []byte) (dropped bool, err error) {
	if q.limit > 0 && len(q.frames) >= q.limit {
		if q.policy == RejectNew {
			return false, ErrQueueFull
		}
		q.frames[0] = nil
		q.frames = q.frames[1:]
		dropped = true
	}
	q.frames = append(q.frames, frame)
	return dropped, nil
}

// pushFront puts frames back at the head in their original order. The limit
// is not applied: these frames were already accepted once.
func (q *outboundQueue) pushFront(frames [][]byte) {
	if len(frames) == 0 {
		return
	}
	merged := make([][]byte, 0, len(frames)+len(q.frames))
	merged = append(merged, frames...)
	q.frames = append(merged, q.frames...)
}

// drain removes and returns every frame in insertion order.
func (q *outboundQueue) drain() [][]byte {
	frames := q.frames
	q.frames = nil
	return frames
}

func (q *outboundQueue) clear() {
	q.frames = nil
}

func (q *outboundQueue) len() int {
	return len(q.frames)
}
