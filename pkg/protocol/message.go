package protocol

import "fmt"

// Message is one of *Event, *Control, *Ack or *ErrorMessage.
type Message any

// Marshal encodes msg as a complete frame.
func Marshal(msg Message, flags FrameFlags) ([]byte, error) {
	var (
		ft      FrameType
		payload []byte
	)
	switch m := msg.(type) {
	case *Event:
		ft, payload = FrameEvent, EncodeEvent(m)
	case *Control:
		ft, payload = FrameControl, EncodeControl(m)
	case *Ack:
		ft, payload = FrameAck, EncodeAck(m)
	case *ErrorMessage:
		ft, payload = FrameError, EncodeErrorMessage(m)
	default:
		return nil, fmt.Errorf("protocol: cannot marshal %T", msg)
	}
	return NewFrame(ft, flags, payload).Encode()
}

// Unmarshal decodes a complete frame into its message.
func Unmarshal(data []byte) (Message, FrameFlags, error) {
	f, err := DecodeFrame(data)
	if err != nil {
		return nil, 0, err
	}
	var msg Message
	switch f.Type {
	case FrameEvent:
		msg, err = DecodeEvent(f.Payload)
	case FrameControl:
		msg, err = DecodeControl(f.Payload)
	case FrameAck:
		msg, err = DecodeAck(f.Payload)
	case FrameError:
		msg, err = DecodeErrorMessage(f.Payload)
	}
	if err != nil {
		return nil, f.Flags, fmt.Errorf("protocol: decode %s: %w", f.Type, err)
	}
	return msg, f.Flags, nil
}
