package mqtt

// pending is a serialized message held for replay after reconnection.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox keeps the newest messages published while the broker is away.
// Once full, each push evicts the oldest entry. Not safe for concurrent use.
type outbox struct {
	slots   []pending
	next    int
	n       int
	dropped int // evictions since the last drain
}

func newOutbox(size int) *outbox {
	if size < 1 {
		size = 1
	}
	return &outbox{slots: make([]pending, size)}
}

// push stores m and reports whether an older message was evicted.
func (o *outbox) push(m pending) bool {
	o.slots[o.next] = m
	o.next = (o.next + 1) % len(o.slots)
	if o.n < len(o.slots) {
		o.n++
		return false
	}
	o.dropped++
	return true
}

// drain returns the held messages oldest first and empties the outbox.
func (o *outbox) drain() []pending {
	if o.n == 0 {
		return nil
	}
	size := len(o.slots)
	first := (o.next - o.n + size) % size
	out := make([]pending, 0, o.n)
	for i := 0; i < o.n; i++ {
		out = append(out, o.slots[(first+i)%size])
	}
	o.next, o.n, o.dropped = 0, 0, 0
	return out
}

func (o *outbox) len() int { return o.n }
