package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message types on the /ws channel.
const (
	TypeRegister     = "register"
	TypeUnregister   = "unregister"
	TypePing         = "ping"
	TypePointsUpdate = "points_update"
	TypePong         = "pong"
	TypeError        = "error"
)

var ErrBadMessage = errors.New("bad message")

// ClientMessage is one decoded inbound frame.
type ClientMessage interface {
	clientMessage()
}

type RegisterMessage struct {
	CustomerCode string
}

type UnregisterMessage struct{}

type PingMessage struct{}

func (RegisterMessage) clientMessage()   {}
func (UnregisterMessage) clientMessage() {}
func (PingMessage) clientMessage()       {}

type inbound struct {
	Type         string `json:"type"`
	CustomerCode string `json:"customerCode"`
}

// DecodeClientMessage parses a client frame. Unknown types and a register
// without a code are ErrBadMessage.
func DecodeClientMessage(b []byte) (ClientMessage, error) {
	var in inbound
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	switch in.Type {
	case TypeRegister:
		code := strings.TrimSpace(in.CustomerCode)
		if code == "" {
			return nil, fmt.Errorf("%w: customerCode is required", ErrBadMessage)
		}
		return RegisterMessage{CustomerCode: code}, nil
	case TypeUnregister:
		return UnregisterMessage{}, nil
	case TypePing:
		return PingMessage{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadMessage, in.Type)
	}
}

// PointsUpdate is pushed to the customer's page when the balance changes.
type PointsUpdate struct {
	Type   string `json:"type"`
	Points int64  `json:"points"`
}

type errorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pong struct {
	Type string `json:"type"`
}

func encodePointsUpdate(points int64) []byte {
	b, _ := json.Marshal(PointsUpdate{Type: TypePointsUpdate, Points: points})
	return b
}

func encodeError(msg string) []byte {
	b, _ := json.Marshal(errorReply{Type: TypeError, Message: msg})
	return b
}

func encodePong() []byte {
	b, _ := json.Marshal(pong{Type: TypePong})
	return b
}
