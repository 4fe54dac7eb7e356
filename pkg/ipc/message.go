package ipc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// MessageType distinguishes the three kinds of IPC message.
type MessageType uint8

const (
	TypeCall   MessageType = 1
	TypeReply  MessageType = 2
	TypeSignal MessageType = 3
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case TypeCall:
		return "CALL"
	case TypeReply:
		return "REPLY"
	case TypeSignal:
		return "SIGNAL"
	default:
		return "UNKNOWN"
	}
}

// Message is one frame on the IPC socket.
//
// CBOR encoding:
//
//	{
//	  1: type,    // 1=call, 2=reply, 3=signal
//	  2: id,      // call id, echoed in the reply
//	  3: name,    // method for calls and replies, signal name for signals
//	  4: code,    // errcode value of a reply, 0 on success
//	  5: body     // call arguments, reply result, or signal payload
//	}
type Message struct {
	Type MessageType     `cbor:"1,keyasint"`
	ID   uint64          `cbor:"2,keyasint,omitempty"`
	Name string          `cbor:"3,keyasint,omitempty"`
	Code int             `cbor:"4,keyasint,omitempty"`
	Body cbor.RawMessage `cbor:"5,keyasint,omitempty"`
}

// Err returns the reply's error, or nil on success.
func (m *Message) Err() error {
	if m.Code == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", m.Name, errcode.Code(m.Code))
}

// encodeMessage encodes a message with body v.
func encodeMessage(m Message, v any) ([]byte, error) {
	body, err := wire.EncodePayload(v)
	if err != nil {
		return nil, err
	}
	m.Body = body
	return wire.Marshal(m)
}

func decodeMessage(data []byte) (Message, error) {
	var m Message
	if err := wire.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch m.Type {
	case TypeCall, TypeReply, TypeSignal:
		return m, nil
	default:
		return Message{}, fmt.Errorf("decode message: unknown type %d", m.Type)
	}
}
