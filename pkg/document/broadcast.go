package document

// subscriberBuffer is the per-connection capacity of the presence broadcast
// channel. A subscriber that falls this far behind is dropped and must
// reconnect for a fresh sync.
const subscriberBuffer = 16

// subscriber receives presence broadcasts (language, user info, cursors) for
// one connection. The channel is closed when the subscriber is dropped for
// lagging, which the connection loop treats as a fatal overflow.
type subscriber struct {
	ch chan ServerMsg
}

// subscribe registers a new presence subscriber. Connections subscribe
// before taking their initial sync snapshot, so updates raced with the
// snapshot are delivered at least once rather than lost.
func (d *Document) subscribe() *subscriber {
	s := &subscriber{ch: make(chan ServerMsg, subscriberBuffer)}
	d.subMu.Lock()
	d.subs[s] = struct{}{}
	d.subMu.Unlock()
	return s
}

// unsubscribe removes a subscriber. Safe to call after the subscriber was
// already dropped by broadcast.
func (d *Document) unsubscribe(s *subscriber) {
	d.subMu.Lock()
	delete(d.subs, s)
	d.subMu.Unlock()
}

// broadcast fans a message out to every subscriber without blocking. A full
// subscriber channel means the connection is not draining fast enough; it is
// removed and its channel closed so the connection loop exits.
func (d *Document) broadcast(msg ServerMsg) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for s := range d.subs {
		select {
		case s.ch <- msg:
		default:
			delete(d.subs, s)
			close(s.ch)
			d.metrics.RecordSubscriberDropped()
		}
	}
}
