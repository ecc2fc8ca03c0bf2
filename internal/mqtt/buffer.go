package mqtt

import "log/slog"

// pendingMsg is a serialized message waiting for the broker connection.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while disconnected, replayed oldest first
// on reconnect. When full the oldest message is dropped.
// Not safe for concurrent use; caller must synchronize.
type outbox struct {
	ring    []pendingMsg
	next    int // slot for the next push
	size    int
	dropped int // total messages dropped since creation
	warned  bool
}

func newOutbox(capacity int) *outbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &outbox{ring: make([]pendingMsg, capacity)}
}

func (o *outbox) push(msg pendingMsg) {
	capacity := len(o.ring)
	if o.size == capacity {
		o.dropped++
		if !o.warned {
			slog.Warn("mqtt: outbox full, dropping oldest", "capacity", capacity)
			o.warned = true
		}
	} else {
		o.size++
	}
	o.ring[o.next] = msg
	o.next = (o.next + 1) % capacity
}

// drain empties the outbox, returning messages oldest first.
func (o *outbox) drain() []pendingMsg {
	if o.size == 0 {
		return nil
	}
	capacity := len(o.ring)
	oldest := (o.next - o.size + capacity) % capacity
	out := make([]pendingMsg, 0, o.size)
	for i := 0; i < o.size; i++ {
		out = append(out, o.ring[(oldest+i)%capacity])
	}
	o.size = 0
	o.next = 0
	o.warned = false
	return out
}

func (o *outbox) len() int {
	return o.size
}
