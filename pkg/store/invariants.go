package store

import (
	"fmt"

	"github.com/bridgecall/bridgecall/pkg/models"
)

// CheckInvariants verifies link symmetry, time ordering, and index coherence
// over the whole store. It is O(n log n) and meant for tests and debugging;
// the matcher relies on these holding and panics at the point of violation.
func (db *DB) CheckInvariants() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for uid, state := range db.states {
		if state.UID() != uid {
			return fmt.Errorf("uid %d: state carries uid %d", uid, state.UID())
		}
		switch s := state.(type) {
		case models.Asking:
			asked, ok := db.states[s.AskedUID].(models.Asked)
			if !ok {
				return fmt.Errorf("uid %d: Asking(asked_uid=%d) but counterpart is %T",
					uid, s.AskedUID, db.states[s.AskedUID])
			}
			if asked.AskedBy != uid {
				return fmt.Errorf("uid %d: Asked(%d).asked_by = %d", uid, s.AskedUID, asked.AskedBy)
			}
			if asked.Until != s.AskingUntil {
				return fmt.Errorf("uid %d: asking_until %d != asked until %d",
					uid, s.AskingUntil, asked.Until)
			}
			if s.WaitedBy != models.None {
				waiting, ok := db.states[s.WaitedBy].(models.Waiting)
				if !ok || waiting.WaitingFor != uid {
					return fmt.Errorf("uid %d: waited_by %d is not Waiting(waiting_for=%d)",
						uid, s.WaitedBy, uid)
				}
			}
			if s.NextRefresh > s.SearchingUntil {
				return fmt.Errorf("uid %d: next_refresh after searching_until", uid)
			}
			if s.AskingUntil > s.SearchingUntil {
				return fmt.Errorf("uid %d: asking_until after searching_until", uid)
			}
		case models.Waiting:
			if s.WaitingFor != models.None {
				asking, ok := db.states[s.WaitingFor].(models.Asking)
				if !ok || asking.WaitedBy != uid {
					return fmt.Errorf("uid %d: waiting_for %d is not Asking(waited_by=%d)",
						uid, s.WaitingFor, uid)
				}
			}
			if s.NextRefresh > s.SearchingUntil {
				return fmt.Errorf("uid %d: next_refresh after searching_until", uid)
			}
		}

		if sched, ok := state.Sched(); ok {
			key, present := db.bySched.Contains(uid)
			if !present || key != sched {
				return fmt.Errorf("uid %d: sched %d missing or stale in bySched", uid, sched)
			}
		} else if _, present := db.bySched.Contains(uid); present {
			return fmt.Errorf("uid %d: present in bySched with no sched", uid)
		}

		for _, opinion := range models.Opinions {
			score, ok := SearchScore(state, opinion)
			got, present := db.byScore[opinion].Contains(uid)
			if ok != present {
				return fmt.Errorf("uid %d: byScore[%s] membership mismatch", uid, opinion)
			}
			if ok && got != score {
				return fmt.Errorf("uid %d: byScore[%s] stale score", uid, opinion)
			}
		}
	}

	if db.bySched.Len() > len(db.states) {
		return fmt.Errorf("bySched has %d entries for %d states", db.bySched.Len(), len(db.states))
	}
	return nil
}
