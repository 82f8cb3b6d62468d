package mqtt

// bufferedMsg is a serialized message waiting for a connection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds the newest messages published while offline, oldest
// first. The caller synchronizes access.
type ringBuffer struct {
	slots    []bufferedMsg
	capacity int
	start    int // index of the oldest message
	count    int
	dropping bool // a message was dropped since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{slots: make([]bufferedMsg, capacity), capacity: capacity}
}

// push stores msg, evicting the oldest message when full. It returns true
// only for the first eviction after a drain.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	if r.count < r.capacity {
		r.slots[(r.start+r.count)%r.capacity] = msg
		r.count++
		return false
	}
	r.slots[r.start] = msg
	r.start = (r.start + 1) % r.capacity
	first := !r.dropping
	r.dropping = true
	return first
}

// drainAll empties the buffer and returns its messages oldest first.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]bufferedMsg, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.slots[(r.start+i)%r.capacity])
	}
	*r = ringBuffer{slots: r.slots, capacity: r.capacity}
	return out
}

func (r *ringBuffer) len() int { return r.count }
