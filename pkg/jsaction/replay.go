package jsaction

// Queue holds events that arrived before their handler, in arrival order.
type Queue struct {
	items []EventInfo
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns a copy of the queued events.
func (q *Queue) Items() []EventInfo {
	return append([]EventInfo(nil), q.items...)
}

func (q *Queue) push(info EventInfo) {
	q.items = append(q.items, info)
}

// Take removes every entry for which match returns true and returns them in
// arrival order. The remaining entries keep their relative order.
func (q *Queue) Take(match func(EventInfo) bool) []EventInfo {
	var taken []EventInfo
	kept := q.items[:0]
	for _, info := range q.items {
		if match(info) {
			taken = append(taken, info)
			continue
		}
		kept = append(kept, info)
	}
	// Clear the tail so removed events are not retained by the backing array.
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = EventInfo{}
	}
	q.items = kept
	return taken
}

// Replay is the default Replayer. It removes every entry whose action now
// has a handler and delivers one event per action: the most recent payload,
// at the position where the action first appeared. Entries without a
// handler stay queued for a later pass.
func Replay(q *Queue, d *Dispatcher) {
	scanned := q.Len()
	taken := q.Take(d.CanDispatch)
	if len(taken) == 0 {
		return
	}

	order := make([]ActionKey, 0, len(taken))
	latest := make(map[ActionKey]EventInfo, len(taken))
	superseded := 0
	for _, info := range taken {
		prev, seen := latest[info.Action]
		if !seen {
			order = append(order, info.Action)
		} else {
			superseded++
			if d.hooks.OnSuperseded != nil {
				d.hooks.OnSuperseded(prev, info)
			}
		}
		latest[info.Action] = info
	}

	for _, key := range order {
		d.deliver(latest[key])
	}

	d.logger.Debug("jsaction: replayed events",
		"delivered", len(order),
		"superseded", superseded,
		"remaining", q.Len())
	if d.hooks.OnReplay != nil {
		d.hooks.OnReplay(ReplayStats{
			Scanned:    scanned,
			Delivered:  len(order),
			Superseded: superseded,
			Remaining:  q.Len(),
		})
	}
}
