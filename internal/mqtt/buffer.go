package mqtt

import "go.uber.org/zap"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while disconnected, oldest first.
// Not safe for concurrent use; the caller must synchronize.
//
// A retained message replaces any buffered retained message on the same
// topic, since the broker would only keep the last one. When full, the
// oldest QoS 0 message is evicted first so sessions outlive status updates.
type outbox struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int
	log      *zap.Logger
}

func newOutbox(capacity int, log *zap.Logger) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &outbox{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
		log:      log,
	}
}

func (o *outbox) push(msg bufferedMsg) {
	if msg.retained {
		for i, m := range o.msgs {
			if m.retained && m.topic == msg.topic {
				o.remove(i)
				break
			}
		}
	}

	if len(o.msgs) == o.capacity {
		victim := 0
		for i, m := range o.msgs {
			if m.qos == 0 {
				victim = i
				break
			}
		}
		if o.dropped == 0 {
			o.log.Warn("mqtt buffer full, dropping messages", zap.Int("capacity", o.capacity))
		}
		o.dropped++
		o.remove(victim)
	}
	o.msgs = append(o.msgs, msg)
}

func (o *outbox) remove(i int) {
	copy(o.msgs[i:], o.msgs[i+1:])
	o.msgs = o.msgs[:len(o.msgs)-1]
}

// requeue puts msgs back ahead of anything pushed since they were drained.
// Retained supersession and eviction apply as if they had never left.
func (o *outbox) requeue(msgs []bufferedMsg) {
	newer := o.msgs
	o.msgs = make([]bufferedMsg, 0, o.capacity)
	for _, m := range msgs {
		o.push(m)
	}
	for _, m := range newer {
		o.push(m)
	}
}

// drainAll returns the buffered messages in publish order and empties the
// outbox.
func (o *outbox) drainAll() []bufferedMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	if o.dropped > 0 {
		o.log.Warn("mqtt messages lost while disconnected", zap.Int("dropped", o.dropped))
	}

	result := make([]bufferedMsg, len(o.msgs))
	copy(result, o.msgs)
	o.msgs = o.msgs[:0]
	o.dropped = 0
	return result
}

func (o *outbox) len() int {
	return len(o.msgs)
}
