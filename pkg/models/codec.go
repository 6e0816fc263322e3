package models

import (
	"encoding/json"
	"fmt"
)

// State tags used in the persisted JSON encoding. Stable: the states table
// outlives deployments, and an unknown tag on load is fatal.
const (
	TagWaitingForOpinion = "waiting_for_opinion"
	TagWaitingForName    = "waiting_for_name"
	TagInactive          = "inactive"
	TagAsking            = "asking"
	TagWaiting           = "waiting"
	TagActive            = "active"
	TagAsked             = "asked"
)

// Tag returns the persisted tag for a state. Initial has no tag: it is
// virtual and never written.
func Tag(s UserState) string {
	switch s.(type) {
	case WaitingForOpinion:
		return TagWaitingForOpinion
	case WaitingForName:
		return TagWaitingForName
	case Inactive:
		return TagInactive
	case Asking:
		return TagAsking
	case Waiting:
		return TagWaiting
	case Active:
		return TagActive
	case Asked:
		return TagAsked
	}
	panic(fmt.Sprintf("state %T has no persisted tag", s))
}

type envelope struct {
	Tag string `json:"tag"`
}

// EncodeState serialises a state as tag-and-fields JSON for the states table.
// Initial is virtual and must never be encoded.
func EncodeState(s UserState) ([]byte, error) {
	var v any
	switch st := s.(type) {
	case Initial:
		return nil, fmt.Errorf("uid %d: Initial state is virtual and cannot be persisted", st.ID)
	case WaitingForOpinion:
		v = struct {
			Tag string `json:"tag"`
			WaitingForOpinion
		}{TagWaitingForOpinion, st}
	case WaitingForName:
		v = struct {
			Tag string `json:"tag"`
			WaitingForName
		}{TagWaitingForName, st}
	case Inactive:
		v = struct {
			Tag string `json:"tag"`
			Inactive
		}{TagInactive, st}
	case Asking:
		v = struct {
			Tag string `json:"tag"`
			Asking
		}{TagAsking, st}
	case Waiting:
		v = struct {
			Tag string `json:"tag"`
			Waiting
		}{TagWaiting, st}
	case Active:
		v = struct {
			Tag string `json:"tag"`
			Active
		}{TagActive, st}
	case Asked:
		v = struct {
			Tag string `json:"tag"`
			Asked
		}{TagAsked, st}
	default:
		return nil, fmt.Errorf("unknown state type %T", s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode state for uid %d: %w", s.UID(), err)
	}
	return data, nil
}

// DecodeState parses tag-and-fields JSON back into a state value.
// An unknown tag is an error; the caller treats it as fatal on boot.
func DecodeState(data []byte) (UserState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode state envelope: %w", err)
	}

	var (
		s   UserState
		err error
	)
	switch env.Tag {
	case TagWaitingForOpinion:
		var st WaitingForOpinion
		err = json.Unmarshal(data, &st)
		s = st
	case TagWaitingForName:
		var st WaitingForName
		err = json.Unmarshal(data, &st)
		s = st
	case TagInactive:
		var st Inactive
		err = json.Unmarshal(data, &st)
		s = st
	case TagAsking:
		var st Asking
		err = json.Unmarshal(data, &st)
		s = st
	case TagWaiting:
		var st Waiting
		err = json.Unmarshal(data, &st)
		s = st
	case TagActive:
		var st Active
		err = json.Unmarshal(data, &st)
		s = st
	case TagAsked:
		var st Asked
		err = json.Unmarshal(data, &st)
		s = st
	default:
		return nil, fmt.Errorf("unknown state tag %q", env.Tag)
	}
	if err != nil {
		return nil, fmt.Errorf("decode state with tag %q: %w", env.Tag, err)
	}
	return s, nil
}
