package protocol

import "fmt"

// ControlType identifies the type of control message.
type ControlType uint8

const (
	ControlBoot  ControlType = 0x01 // Client bundle loaded, upgrade the page
	ControlPing  ControlType = 0x02 // Client/server ping
	ControlPong  ControlType = 0x03 // Response to ping
	ControlClose ControlType = 0x04 // Page close
)

// String returns the string representation of the control type.
func (ct ControlType) String() string {
	switch ct {
	case ControlBoot:
		return "Boot"
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	case ControlClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// CloseReason indicates why a page is being closed.
type CloseReason uint8

const (
	CloseNormal         CloseReason = 0x00 // Normal closure
	CloseGoingAway      CloseReason = 0x01 // Client or server going away
	CloseServerShutdown CloseReason = 0x02 // Server shutting down
	CloseError          CloseReason = 0x03 // Error occurred
)

// String returns the string representation of the close reason.
func (cr CloseReason) String() string {
	switch cr {
	case CloseNormal:
		return "Normal"
	case CloseGoingAway:
		return "GoingAway"
	case CloseServerShutdown:
		return "ServerShutdown"
	case CloseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Control is a control message. Timestamp is set for Ping and Pong, Reason
// for Close.
type Control struct {
	Type      ControlType
	Timestamp uint64 // Unix milliseconds
	Reason    CloseReason
}

// EncodeControl encodes a Control payload.
func EncodeControl(c *Control) []byte {
	e := NewEncoder()
	e.WriteByte(byte(c.Type))
	switch c.Type {
	case ControlPing, ControlPong:
		e.WriteUvarint(c.Timestamp)
	case ControlClose:
		e.WriteByte(byte(c.Reason))
	}
	return e.Bytes()
}

// DecodeControl decodes a Control payload.
func DecodeControl(data []byte) (*Control, error) {
	d := NewDecoder(data)
	b, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	c := &Control{Type: ControlType(b)}
	switch c.Type {
	case ControlBoot:
	case ControlPing, ControlPong:
		if c.Timestamp, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
	case ControlClose:
		r, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		c.Reason = CloseReason(r)
	default:
		return nil, fmt.Errorf("protocol: unknown control type 0x%02x", b)
	}
	return c, d.finish()
}
