package protocol

import "fmt"

// Event is a DOM event reported by the client. The target is addressed by
// its hydration token when it has one and always by its element path below
// the body.
type Event struct {
	Seq   uint64 // Client sequence number, increasing per connection
	Type  string // DOM event type, "click"
	Token string // data-hid of the target, may be empty
	Path  []int  // Element-child indices from the body to the target
}

// EncodeEvent encodes an Event payload.
func EncodeEvent(ev *Event) []byte {
	e := NewEncoder()
	EncodeEventTo(e, ev)
	return e.Bytes()
}

// EncodeEventTo encodes an Event using e.
func EncodeEventTo(e *Encoder, ev *Event) {
	e.WriteUvarint(ev.Seq)
	e.WriteString(ev.Type)
	e.WriteString(ev.Token)
	e.WriteUvarint(uint64(len(ev.Path)))
	for _, idx := range ev.Path {
		e.WriteUvarint(uint64(idx))
	}
}

// DecodeEvent decodes an Event payload.
func DecodeEvent(data []byte) (*Event, error) {
	d := NewDecoder(data)
	ev, err := DecodeEventFrom(d)
	if err != nil {
		return nil, err
	}
	return ev, d.finish()
}

// DecodeEventFrom decodes an Event from d.
func DecodeEventFrom(d *Decoder) (*Event, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	typ, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	if typ == "" {
		return nil, fmt.Errorf("protocol: event without type")
	}
	token, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	n, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > MaxPathLen {
		return nil, ErrAllocationTooLarge
	}
	path := make([]int, n)
	for i := range path {
		idx, err := d.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if idx > MaxPathLen*MaxPathLen {
			return nil, fmt.Errorf("protocol: path index %d out of range", idx)
		}
		path[i] = int(idx)
	}
	return &Event{Seq: seq, Type: typ, Token: token, Path: path}, nil
}
