package protocol

import (
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestUvarint(t *testing.T) {
	tests := []struct {
		value uint64
		size  int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{1<<64 - 1, 10},
	}
	for _, tt := range tests {
		e := NewEncoder()
		e.WriteUvarint(tt.value)
		if e.Len() != tt.size {
			t.Errorf("WriteUvarint(%d) size = %d, want %d", tt.value, e.Len(), tt.size)
		}
		got, err := NewDecoder(e.Bytes()).ReadUvarint()
		if err != nil || got != tt.value {
			t.Errorf("ReadUvarint() = %d, %v, want %d", got, err, tt.value)
		}
	}
}

func TestUvarintOverflow(t *testing.T) {
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}
	if _, err := NewDecoder(data).ReadUvarint(); !errors.Is(err, ErrVarintOverflow) {
		t.Errorf("ReadUvarint() error = %v, want ErrVarintOverflow", err)
	}
}

func TestReadStringLimits(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(MaxStringLen + 1)
	if _, err := NewDecoder(e.Bytes()).ReadString(); !errors.Is(err, ErrAllocationTooLarge) {
		t.Errorf("oversized ReadString() error = %v, want ErrAllocationTooLarge", err)
	}

	e.Reset()
	e.WriteUvarint(10)
	e.WriteBytes([]byte("abc"))
	if _, err := NewDecoder(e.Bytes()).ReadString(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short ReadString() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestFrame(t *testing.T) {
	f := NewFrame(FrameEvent, FlagEarly, []byte{1, 2, 3})
	data, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if want := []byte{0x01, 0x01, 0x00, 0x03, 1, 2, 3}; !reflect.DeepEqual(data, want) {
		t.Errorf("Encode() = %v, want %v", data, want)
	}

	got, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if got.Type != FrameEvent || !got.Flags.Has(FlagEarly) || !reflect.DeepEqual(got.Payload, f.Payload) {
		t.Errorf("DecodeFrame() = %+v", got)
	}
}

func TestFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", []byte{0x01, 0x00}, io.ErrUnexpectedEOF},
		{"short payload", []byte{0x01, 0x00, 0x00, 0x05, 1}, io.ErrUnexpectedEOF},
		{"unknown type", []byte{0x7F, 0x00, 0x00, 0x00}, ErrInvalidFrameType},
		{"trailing", []byte{0x02, 0x00, 0x00, 0x01, 1, 9}, ErrTrailingBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("DecodeFrame() error = %v, want %v", err, tt.want)
			}
		})
	}

	big := NewFrame(FrameEvent, 0, make([]byte, MaxPayloadSize+1))
	if _, err := big.Encode(); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Encode(big) error = %v, want ErrFrameTooLarge", err)
	}
}

func TestMarshalMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"event", &Event{Seq: 3, Type: "click", Token: "h2", Path: []int{0, 1, 1, 0, 2}}},
		{"event without token", &Event{Seq: 1, Type: "click", Path: []int{}}},
		{"boot", &Control{Type: ControlBoot}},
		{"ping", &Control{Type: ControlPing, Timestamp: 1700000000000}},
		{"close", &Control{Type: ControlClose, Reason: CloseServerShutdown}},
		{"ack", &Ack{Seq: 9, Pending: 2, Booted: true}},
		{"error", &ErrorMessage{Code: ErrNoTarget, Message: "no element at [9]", Fatal: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.msg, 0)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			got, _, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("Unmarshal() = %#v, want %#v", got, tt.msg)
			}
		})
	}

	if _, err := Marshal("nope", 0); err == nil {
		t.Error("Marshal(string) error = nil, want error")
	}
}

func TestDecodeEventRejects(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(1)
	e.WriteString("")
	if _, err := DecodeEvent(e.Bytes()); err == nil {
		t.Error("DecodeEvent(no type) error = nil, want error")
	}

	e.Reset()
	e.WriteUvarint(1)
	e.WriteString("click")
	e.WriteString("")
	e.WriteUvarint(MaxPathLen + 1)
	if _, err := DecodeEvent(e.Bytes()); !errors.Is(err, ErrAllocationTooLarge) {
		t.Errorf("DecodeEvent(long path) error = %v, want ErrAllocationTooLarge", err)
	}
}

func TestDecodeControlUnknown(t *testing.T) {
	if _, err := DecodeControl([]byte{0x42}); err == nil {
		t.Error("DecodeControl(0x42) error = nil, want error")
	}
}

func TestStrings(t *testing.T) {
	if FrameAck.String() != "Ack" || FrameType(0x99).String() != "Unknown" {
		t.Error("FrameType.String mismatch")
	}
	if ControlBoot.String() != "Boot" || CloseGoingAway.String() != "GoingAway" {
		t.Error("control String mismatch")
	}
	err := &ErrorMessage{Code: ErrPageNotFound, Message: "gone"}
	if err.Error() != "protocol: PageNotFound: gone" {
		t.Errorf("Error() = %q", err.Error())
	}
}
