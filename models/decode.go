package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformed is returned for frames that are not a JSON object or whose
// fields have the wrong shape.
var ErrMalformed = errors.New("malformed frame")

// TypeOf returns the "type" field of a frame without decoding the rest of it.
func TypeOf(frame []byte) Kind {
	return Kind(gjson.GetBytes(frame, "type").String())
}

// Decode turns an inbound frame into its concrete variant. Frames with a
// missing or unknown type decode to Ignored. Unknown fields are ignored.
func Decode(frame []byte) (Message, error) {
	if !gjson.ValidBytes(frame) || !gjson.ParseBytes(frame).IsObject() {
		return nil, ErrMalformed
	}

	kind := TypeOf(frame)
	var msg Message
	switch kind {
	case KindUpdateUserData:
		msg = &UpdateUserData{}
	case KindJoinGroup:
		msg = &JoinGroup{}
	case KindLeaveGroup:
		return LeaveGroup{}, nil
	case KindSelectOutput:
		msg = &SelectOutput{}
	case KindKeypress:
		msg = &Keypress{}
	case KindRenameOutput:
		msg = &RenameOutput{}
	case KindPong:
		msg = &Pong{}
	case KindRegisterDevice:
		msg = &RegisterDevice{}
	default:
		return Ignored{Type: string(kind)}, nil
	}

	if err := json.Unmarshal(frame, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return deref(msg), nil
}

func deref(msg Message) Message {
	switch m := msg.(type) {
	case *UpdateUserData:
		return *m
	case *JoinGroup:
		return *m
	case *SelectOutput:
		return *m
	case *Keypress:
		return *m
	case *RenameOutput:
		return *m
	case *Pong:
		return *m
	case *RegisterDevice:
		return *m
	}
	return msg
}

// Encode marshals an outbound frame. Outbound frames only hold strings,
// numbers, slices and maps, so marshalling does not fail.
func Encode(v any) []byte {
	frame, _ := json.Marshal(v)
	return frame
}
