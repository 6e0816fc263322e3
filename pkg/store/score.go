package store

import (
	"github.com/bridgecall/bridgecall/pkg/models"
)

// Score is the derived priority for "who should we ask next". Lower sorts
// first. Class ranks the state kind, Tiebreak orders within a class:
//
//	Waiting              → (1, searchingUntil)  — closest to giving up wins
//	Asking, nobody waits → (2, askingUntil)     — reservable, earliest free
//	Active               → (3, -since)          — most recently active wins
type Score struct {
	Class    int
	Tiebreak int64
}

// Less orders scores lexicographically.
func (s Score) Less(other Score) bool {
	if s.Class != other.Class {
		return s.Class < other.Class
	}
	return s.Tiebreak < other.Tiebreak
}

// SearchScore returns the priority of state as a candidate holding the given
// opinion, or ok=false if the state is not eligible to be asked.
func SearchScore(state models.UserState, opinion models.Opinion) (Score, bool) {
	reg, ok := state.(models.Registered)
	if !ok {
		return Score{}, false
	}
	if reg.Profile().Opinion != opinion {
		return Score{}, false
	}
	switch s := state.(type) {
	case models.Waiting:
		return Score{Class: 1, Tiebreak: int64(s.SearchingUntil)}, true
	case models.Asking:
		if s.WaitedBy != models.None {
			return Score{}, false
		}
		return Score{Class: 2, Tiebreak: int64(s.AskingUntil)}, true
	case models.Active:
		return Score{Class: 3, Tiebreak: -int64(s.Since)}, true
	default:
		return Score{}, false
	}
}
