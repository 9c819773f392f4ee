package protocol

// Ack is the server's receipt for one event.
type Ack struct {
	Seq     uint64 // Sequence number of the acknowledged event
	Pending uint64 // Events waiting for a handler on the page
	Booted  bool   // The page has been upgraded
}

// EncodeAck encodes an Ack payload.
func EncodeAck(a *Ack) []byte {
	e := NewEncoder()
	e.WriteUvarint(a.Seq)
	e.WriteUvarint(a.Pending)
	e.WriteBool(a.Booted)
	return e.Bytes()
}

// DecodeAck decodes an Ack payload.
func DecodeAck(data []byte) (*Ack, error) {
	d := NewDecoder(data)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	pending, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	booted, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	return &Ack{Seq: seq, Pending: pending, Booted: booted}, d.finish()
}
