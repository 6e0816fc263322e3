package matcher

import (
	"fmt"

	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/store"
	"github.com/bridgecall/bridgecall/pkg/timeutil"
)

// searchForMatch runs one search round for self against the opposing
// opinion's candidate index and transitions self (and the candidate)
// accordingly. It returns found=true only on an immediate match, in which
// case msgs carries the two FoundPartner messages.
//
// If self is already searching its window is reused; otherwise a fresh
// window opens at ts.
func searchForMatch(tx *store.Tx, ts timeutil.Timestamp, self models.Registered) (bool, []models.OutboundMessage) {
	p := self.Profile()

	var searchingUntil, nextRefresh timeutil.Timestamp
	if s, ok := self.(models.Searching); ok {
		searchingUntil, nextRefresh = s.Window()
	} else {
		searchingUntil = ts.Add(SearchDuration)
		nextRefresh = ts.Add(SearchUpdateInterval)
	}

	other := tx.SearchForUser(p.Opinion.Other())
	switch o := other.(type) {
	case models.Waiting:
		// Immediate match. If the candidate had reserved an Asking user
		// as runner-up, dissolve that reservation first.
		if o.WaitingFor != models.None {
			reserved := mustAsking(tx.Get(o.WaitingFor))
			if reserved.WaitedBy != o.ID {
				panic(fmt.Sprintf("uid %d: reservation asymmetry with %d", o.ID, reserved.ID))
			}
			reserved.WaitedBy = models.None
			tx.Set(reserved)
		}
		surveyAt := ts.Add(SurveyDuration)
		tx.Set(models.Inactive{Person: p, SurveyAt: surveyAt})
		tx.Set(models.Inactive{Person: o.Person, SurveyAt: surveyAt})
		tx.Log(ts, "match", map[string]any{"a": p.ID, "b": o.ID})
		return true, []models.OutboundMessage{
			foundPartner(p.ID, o.Person),
			foundPartner(o.ID, p),
		}

	case models.Asking:
		// The candidate is mid-ask with no runner-up yet; reserve it if we
		// can outlast its ask deadline.
		if o.WaitedBy != models.None {
			panic(fmt.Sprintf("uid %d: scored Asking already has waited_by", o.ID))
		}
		if o.AskingUntil <= searchingUntil {
			tx.Set(models.Waiting{
				Person:         p,
				SearchingUntil: searchingUntil,
				NextRefresh:    nextRefresh,
				WaitingFor:     o.ID,
			})
			o.WaitedBy = p.ID
			tx.Set(o)
		} else {
			tx.Set(models.Waiting{
				Person:         p,
				SearchingUntil: searchingUntil,
				NextRefresh:    nextRefresh,
			})
		}
		return false, nil

	case models.Active:
		// Promote the passive candidate to being asked, if the answer
		// window fits inside our search window.
		askingUntil := ts.Add(AskingDuration)
		if askingUntil <= searchingUntil {
			tx.Set(models.Asking{
				Person:         p,
				SearchingUntil: searchingUntil,
				NextRefresh:    nextRefresh,
				AskedUID:       o.ID,
				AskingUntil:    askingUntil,
			})
			tx.Set(models.Asked{
				Person:  o.Person,
				Until:   askingUntil,
				AskedBy: p.ID,
			})
			return false, []models.OutboundMessage{{
				UID:    o.ID,
				Kind:   models.KindAreYouAvailable,
				Params: models.MessageParams{OtherSex: p.Sex},
			}}
		}
		tx.Set(models.Waiting{
			Person:         p,
			SearchingUntil: searchingUntil,
			NextRefresh:    nextRefresh,
		})
		return false, nil

	case nil:
		tx.Set(models.Waiting{
			Person:         p,
			SearchingUntil: searchingUntil,
			NextRefresh:    nextRefresh,
		})
		return false, nil

	default:
		panic(fmt.Sprintf("search returned ineligible state %T", other))
	}
}

// foundPartner builds the FoundPartner message for uid, carrying the
// counterpart's identity so the recipient can place the call.
func foundPartner(uid models.Uid, other models.Person) models.OutboundMessage {
	return models.OutboundMessage{
		UID:  uid,
		Kind: models.KindFoundPartner,
		Params: models.MessageParams{
			OtherUID:  other.ID,
			OtherName: other.Name,
			OtherSex:  other.Sex,
		},
	}
}
