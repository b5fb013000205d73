// Package wire implements the §6 control frame: the fixed-width
// little-endian protocol every transport in the federation carries. A frame
// is atomic per route — nothing in this package reorders or splits one once
// built.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/timmyreynolds/HELICS/internal/ids"
)

// Action identifies the kind of a control frame.
type Action uint32

const (
	ActionUnknown Action = iota
	ActionRegister
	ActionAck
	ActionMessage
	ActionSetValue
	ActionTimeRequest
	ActionTimeGrant
	ActionQuery
	ActionQueryReply
	ActionError
	ActionDisconnect
	ActionInitGrant
	ActionExecGrant
	ActionRegisterInterface
	ActionAddDependency
	ActionRemoveDependency
	ActionFilterMessage
	ActionTranslatedMessage
)

func (a Action) String() string {
	switch a {
	case ActionRegister:
		return "register"
	case ActionAck:
		return "ack"
	case ActionMessage:
		return "message"
	case ActionSetValue:
		return "set_value"
	case ActionTimeRequest:
		return "time_request"
	case ActionTimeGrant:
		return "time_grant"
	case ActionQuery:
		return "query"
	case ActionQueryReply:
		return "query_reply"
	case ActionError:
		return "error"
	case ActionDisconnect:
		return "disconnect"
	case ActionInitGrant:
		return "init_grant"
	case ActionExecGrant:
		return "exec_grant"
	case ActionRegisterInterface:
		return "register_interface"
	case ActionAddDependency:
		return "add_dependency"
	case ActionRemoveDependency:
		return "remove_dependency"
	case ActionFilterMessage:
		return "filter_message"
	case ActionTranslatedMessage:
		return "translated_message"
	default:
		return "unknown"
	}
}

// Flag bits carried in a frame's flags field.
type Flag uint16

const (
	FlagIterating Flag = 1 << iota
	FlagRequired
	FlagCloned
	FlagError
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Endpoint is the (federate, handle) pair addressed by a frame's source or
// dest field.
type Endpoint struct {
	Federate ids.GlobalFederateId
	Handle   ids.InterfaceHandle
}

func (e Endpoint) encode() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(e.Federate))
	binary.LittleEndian.PutUint32(b[4:8], uint32(e.Handle))
	return b
}

func decodeEndpoint(b []byte) Endpoint {
	return Endpoint{
		Federate: ids.GlobalFederateId(int32(binary.LittleEndian.Uint32(b[0:4]))),
		Handle:   ids.InterfaceHandle(int32(binary.LittleEndian.Uint32(b[4:8]))),
	}
}

// Frame is the in-memory form of a control frame.
type Frame struct {
	Action     Action
	Source     Endpoint
	Dest       Endpoint
	MessageID  uint32
	Time       int64 // fixed-point nanoseconds
	Flags      Flag
	Counter    uint16
	Name       string
	Info       string
	Payload    []byte

	// Local carries an in-process closure for a command posted through
	// Base.RunSync. It never crosses the wire: Encode ignores it, and a
	// frame built for real transport never sets it.
	Local func()
}

// Encode serializes the frame to its fixed-width little-endian wire form.
func (f *Frame) Encode() []byte {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(f.Action))
	buf.Write(hdr[:])

	src := f.Source.encode()
	buf.Write(src[:])
	dst := f.Dest.encode()
	buf.Write(dst[:])

	var rest [4 + 8 + 2 + 2]byte
	binary.LittleEndian.PutUint32(rest[0:4], f.MessageID)
	binary.LittleEndian.PutUint64(rest[4:12], uint64(f.Time))
	binary.LittleEndian.PutUint16(rest[12:14], uint16(f.Flags))
	binary.LittleEndian.PutUint16(rest[14:16], f.Counter)
	buf.Write(rest[:])

	writeLenPrefixed(&buf, []byte(f.Name))
	writeLenPrefixed(&buf, []byte(f.Info))
	writeLenPrefixed(&buf, f.Payload)

	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf.Write(lenBytes[:])
	buf.Write(data)
}

// Decode parses a frame from its wire form. It returns an error rather than
// panicking on truncated input, since frames may arrive from an
// adversarial or buggy peer.
func Decode(data []byte) (*Frame, error) {
	const fixedLen = 4 + 8 + 8 + 4 + 8 + 2 + 2
	if len(data) < fixedLen {
		return nil, fmt.Errorf("wire: frame too short: %d bytes", len(data))
	}

	f := &Frame{}
	f.Action = Action(binary.LittleEndian.Uint32(data[0:4]))
	f.Source = decodeEndpoint(data[4:12])
	f.Dest = decodeEndpoint(data[12:20])
	f.MessageID = binary.LittleEndian.Uint32(data[20:24])
	f.Time = int64(binary.LittleEndian.Uint64(data[24:32]))
	f.Flags = Flag(binary.LittleEndian.Uint16(data[32:34]))
	f.Counter = binary.LittleEndian.Uint16(data[34:36])

	rest := data[fixedLen:]
	var err error
	var name, info, payload []byte

	name, rest, err = readLenPrefixed(rest)
	if err != nil {
		return nil, fmt.Errorf("wire: reading name: %w", err)
	}
	info, rest, err = readLenPrefixed(rest)
	if err != nil {
		return nil, fmt.Errorf("wire: reading info: %w", err)
	}
	payload, _, err = readLenPrefixed(rest)
	if err != nil {
		return nil, fmt.Errorf("wire: reading payload: %w", err)
	}

	f.Name = string(name)
	f.Info = string(info)
	f.Payload = payload
	return f, nil
}

func readLenPrefixed(data []byte) (value, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, io.ErrUnexpectedEOF
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return data[:n], data[n:], nil
}
