// Package matcher implements the pairing state machine. Given the current
// transaction, an explicit timestamp, and one normalized input, it applies
// state transitions and returns the ordered outbound messages.
//
// The matcher never reads the wall clock and never blocks; the scheduler
// driver serializes invocations, so there is no locking here. Invariant
// violations (link asymmetry, impossible states) panic: the dataset is
// trusted, so a violation means this run is corrupt.
package matcher

import (
	"fmt"
	"strings"

	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/store"
	"github.com/bridgecall/bridgecall/pkg/timeutil"
)

// HandleUpdate is the top-level dispatch. All state transitions happen
// through tx; the returned messages are delivered only after the
// transaction commits.
func HandleUpdate(tx *store.Tx, ts timeutil.Timestamp, upd models.InboundUpdate) []models.OutboundMessage {
	state := tx.Get(upd.UID)

	switch {
	case upd.Start != nil:
		tx.Log(ts, "start", map[string]any{"uid": upd.UID})
		return handleStart(tx, ts, state, upd.Start.DisplayName)
	case upd.Text != nil:
		return handleText(tx, ts, state, upd.Text.Text)
	case upd.Callback != nil:
		return handleCallback(tx, ts, state, upd.Callback.Cmd)
	case upd.Tick:
		return handleTick(tx, ts, state)
	}
	return unexpected(tx, ts, upd.UID)
}

// handleStart force-resets the user to WaitingForOpinion. Any protocol links
// the user holds are released first so no counterpart is left dangling.
func handleStart(tx *store.Tx, ts timeutil.Timestamp, state models.UserState, displayName string) []models.OutboundMessage {
	uid := state.UID()
	msgs := []models.OutboundMessage{
		models.Msg(uid, models.KindWelcome),
		models.Msg(uid, models.KindAskOpinion),
	}

	switch s := state.(type) {
	case models.Asking:
		asked := mustAsked(tx.Get(s.AskedUID), uid)
		tx.Set(models.Inactive{Person: asked.Person})
		msgs = append(msgs, models.Msg(asked.ID, models.KindAfterAskingTimedOut))
		tx.Set(models.WaitingForOpinion{ID: uid, DisplayName: displayName})
		if s.WaitedBy != models.None {
			msgs = append(msgs, releaseWaiter(tx, ts, s.WaitedBy, uid)...)
		}
	case models.Waiting:
		tx.Set(models.WaitingForOpinion{ID: uid, DisplayName: displayName})
		if s.WaitingFor != models.None {
			clearReservation(tx, s.WaitingFor, uid)
		}
	case models.Asked:
		tx.Set(models.WaitingForOpinion{ID: uid, DisplayName: displayName})
		msgs = append(msgs, releaseAsker(tx, ts, s.AskedBy, uid)...)
	default:
		tx.Set(models.WaitingForOpinion{ID: uid, DisplayName: displayName})
	}
	return msgs
}

func handleText(tx *store.Tx, ts timeutil.Timestamp, state models.UserState, text string) []models.OutboundMessage {
	switch s := state.(type) {
	case models.Initial:
		// A user we have never seen sent free text; treat it like /start
		// so they land in the registration flow.
		return handleStart(tx, ts, state, "")
	case models.WaitingForName:
		name := strings.TrimSpace(text)
		if name == "" {
			return unexpected(tx, ts, s.ID)
		}
		tx.Set(models.Inactive{Person: models.Person{
			ID:      s.ID,
			Name:    name,
			Sex:     s.Sex,
			Opinion: s.Opinion,
		}})
		return []models.OutboundMessage{
			models.Msg(s.ID, models.KindRegistered),
			models.Msg(s.ID, models.KindInactive),
		}
	default:
		return unexpected(tx, ts, state.UID())
	}
}

func handleCallback(tx *store.Tx, ts timeutil.Timestamp, state models.UserState, cmd models.Cmd) []models.OutboundMessage {
	switch s := state.(type) {
	case models.Initial:
		return handleStart(tx, ts, state, "")

	case models.WaitingForOpinion:
		sex, opinion, ok := cmd.OpinionCmd()
		if !ok {
			return unexpected(tx, ts, s.ID)
		}
		tx.Set(models.WaitingForName{
			ID:          s.ID,
			DisplayName: s.DisplayName,
			Sex:         sex,
			Opinion:     opinion,
		})
		return []models.OutboundMessage{models.Msg(s.ID, models.KindTypeName)}

	case models.Inactive:
		switch {
		case cmd == models.CmdImAvailableNow:
			return startSearch(tx, ts, s)
		case cmd.IsSurveyReply():
			return []models.OutboundMessage{{
				UID:    s.ID,
				Kind:   models.KindThanksForAnswering,
				Params: models.MessageParams{Reply: cmd},
			}}
		}
		return unexpected(tx, ts, s.ID)

	case models.Active:
		switch cmd {
		case models.CmdImAvailableNow:
			return startSearch(tx, ts, s)
		case models.CmdImNoLongerAvailable:
			tx.Set(models.Inactive{Person: s.Person})
			return []models.OutboundMessage{models.Msg(s.ID, models.KindAfterReplyUnavailable)}
		}
		return unexpected(tx, ts, s.ID)

	case models.Asking:
		if cmd == models.CmdStopSearching {
			return stopOrTimeoutSearch(tx, ts, s, true)
		}
		return unexpected(tx, ts, s.ID)

	case models.Waiting:
		if cmd == models.CmdStopSearching {
			return stopOrTimeoutSearch(tx, ts, s, true)
		}
		return unexpected(tx, ts, s.ID)

	case models.Asked:
		switch cmd {
		case models.CmdAnswerAvailable:
			return acceptAsk(tx, ts, s)
		case models.CmdAnswerUnavailable:
			return declineAsk(tx, ts, s, models.KindAfterReplyUnavailable)
		}
		return unexpected(tx, ts, s.ID)

	default:
		return unexpected(tx, ts, state.UID())
	}
}

// handleTick processes a scheduler tick. A tick that no longer matches the
// user's state (the sched moved or vanished since the driver's probe) is
// silently discarded.
func handleTick(tx *store.Tx, ts timeutil.Timestamp, state models.UserState) []models.OutboundMessage {
	switch s := state.(type) {
	case models.Inactive:
		if s.SurveyAt == 0 || s.SurveyAt.After(ts) {
			return nil
		}
		tx.Set(models.Inactive{Person: s.Person})
		return []models.OutboundMessage{models.Msg(s.ID, models.KindHowWasTheCall)}

	case models.Asking:
		return searchingTick(tx, ts, s)

	case models.Waiting:
		return searchingTick(tx, ts, s)

	case models.Asked:
		if s.Until.After(ts) {
			return nil
		}
		return declineAsk(tx, ts, s, models.KindAfterAskingTimedOut)

	default:
		return nil
	}
}

// startSearch handles IM_AVAILABLE_NOW from an idle user: run a search
// round, and if no partner was found tell the user we are searching.
func startSearch(tx *store.Tx, ts timeutil.Timestamp, self models.Registered) []models.OutboundMessage {
	found, msgs := searchForMatch(tx, ts, self)
	if found {
		return msgs
	}
	out := []models.OutboundMessage{{
		UID:    self.UID(),
		Kind:   models.KindSearching,
		Params: models.MessageParams{SecondsLeft: SearchDuration.Seconds()},
	}}
	return append(out, msgs...)
}

// searchingTick applies the countdown-refresh or search-timeout path.
func searchingTick(tx *store.Tx, ts timeutil.Timestamp, self models.Searching) []models.OutboundMessage {
	searchingUntil, _ := self.Window()
	if searchingUntil.After(ts) {
		nextRefresh := timeutil.MinTimestamp(searchingUntil, ts.Add(SearchUpdateInterval))
		secondsLeft := searchingUntil.Sub(ts).CeilTo(SearchUpdateInterval)
		switch s := self.(type) {
		case models.Asking:
			s.NextRefresh = nextRefresh
			tx.Set(s)
		case models.Waiting:
			s.NextRefresh = nextRefresh
			tx.Set(s)
		}
		return []models.OutboundMessage{{
			UID:    self.UID(),
			Kind:   models.KindUpdateSearching,
			Params: models.MessageParams{SecondsLeft: secondsLeft.Seconds()},
		}}
	}
	return stopOrTimeoutSearch(tx, ts, self, false)
}

// stopOrTimeoutSearch ends a search window, either because the user pressed
// STOP_SEARCHING (stop=true) or because the window expired. Any links to an
// asked counterpart or a runner-up reservation are released, and a released
// runner-up immediately re-searches.
func stopOrTimeoutSearch(tx *store.Tx, ts timeutil.Timestamp, self models.Searching, stop bool) []models.OutboundMessage {
	p := self.Profile()

	var msgs []models.OutboundMessage
	if stop {
		msgs = append(msgs, models.Msg(p.ID, models.KindAfterStopSearch))
	} else {
		msgs = append(msgs, models.Msg(p.ID, models.KindSearchTimedOut))
	}

	asking, wasAsking := self.(models.Asking)
	if wasAsking {
		asked := mustAsked(tx.Get(asking.AskedUID), p.ID)
		tx.Set(models.Inactive{Person: asked.Person})
		msgs = append(msgs, models.Msg(asked.ID, models.KindAfterAskingTimedOut))
	}

	if stop {
		tx.Set(models.Inactive{Person: p})
	} else {
		tx.Set(models.Active{Person: p, Since: ts})
	}

	if wasAsking && asking.WaitedBy != models.None {
		msgs = append(msgs, releaseWaiter(tx, ts, asking.WaitedBy, p.ID)...)
	}
	if waiting, ok := self.(models.Waiting); ok && waiting.WaitingFor != models.None {
		clearReservation(tx, waiting.WaitingFor, p.ID)
	}
	return msgs
}

// acceptAsk handles ANSWER_AVAILABLE: the asked user and the asker become a
// match. If the asker had a runner-up waiting, the runner-up re-searches —
// after the two FoundPartner messages, so partner hand-off always precedes
// cascade output.
func acceptAsk(tx *store.Tx, ts timeutil.Timestamp, self models.Asked) []models.OutboundMessage {
	asker := mustAsking(tx.Get(self.AskedBy))
	if asker.AskedUID != self.ID {
		panic(fmt.Sprintf("uid %d: asked by %d who is asking %d", self.ID, asker.ID, asker.AskedUID))
	}

	surveyAt := ts.Add(SurveyDuration)
	tx.Set(models.Inactive{Person: self.Person, SurveyAt: surveyAt})
	tx.Set(models.Inactive{Person: asker.Person, SurveyAt: surveyAt})
	tx.Log(ts, "match", map[string]any{"a": self.ID, "b": asker.ID})
	msgs := []models.OutboundMessage{
		foundPartner(self.ID, asker.Person),
		foundPartner(asker.ID, self.Person),
	}

	if asker.WaitedBy != models.None {
		msgs = append(msgs, releaseWaiter(tx, ts, asker.WaitedBy, asker.ID)...)
	}
	return msgs
}

// declineAsk handles ANSWER_UNAVAILABLE and the ask deadline expiring. The
// asked user goes idle with no survey; the asker immediately tries the next
// candidate.
func declineAsk(tx *store.Tx, ts timeutil.Timestamp, self models.Asked, kind models.MessageKind) []models.OutboundMessage {
	tx.Set(models.Inactive{Person: self.Person})
	msgs := []models.OutboundMessage{models.Msg(self.ID, kind)}
	msgs = append(msgs, releaseAsker(tx, ts, self.AskedBy, self.ID)...)
	return msgs
}

// releaseAsker re-runs the search for an Asking user whose asked counterpart
// went away (declined, timed out, or restarted). A runner-up reservation on
// the asker is dissolved first; if the asker's re-search does not consume
// the runner-up, the runner-up re-searches too.
func releaseAsker(tx *store.Tx, ts timeutil.Timestamp, askerUID, askedUID models.Uid) []models.OutboundMessage {
	asker := mustAsking(tx.Get(askerUID))
	if asker.AskedUID != askedUID {
		panic(fmt.Sprintf("uid %d: asker %d is asking %d", askedUID, askerUID, asker.AskedUID))
	}

	waiter := asker.WaitedBy
	if waiter != models.None {
		w := mustWaiting(tx.Get(waiter), askerUID)
		w.WaitingFor = models.None
		tx.Set(w)
		asker.WaitedBy = models.None
		tx.Set(asker)
	}

	_, msgs := searchForMatch(tx, ts, asker)

	if waiter != models.None {
		// The asker's search may have matched the runner-up; only
		// re-search if they are in fact still waiting.
		if w, ok := tx.Get(waiter).(models.Waiting); ok {
			_, more := searchForMatch(tx, ts, w)
			msgs = append(msgs, more...)
		}
	}
	return msgs
}

// releaseWaiter dissolves the reservation held by waiterUID on onUID and
// re-runs the waiter's search.
func releaseWaiter(tx *store.Tx, ts timeutil.Timestamp, waiterUID, onUID models.Uid) []models.OutboundMessage {
	w := mustWaiting(tx.Get(waiterUID), onUID)
	w.WaitingFor = models.None
	tx.Set(w)
	_, msgs := searchForMatch(tx, ts, w)
	return msgs
}

// clearReservation removes selfUID's runner-up claim on the Asking user.
func clearReservation(tx *store.Tx, askingUID, selfUID models.Uid) {
	a := mustAsking(tx.Get(askingUID))
	if a.WaitedBy != selfUID {
		panic(fmt.Sprintf("uid %d: reservation on %d held by %d", selfUID, askingUID, a.WaitedBy))
	}
	a.WaitedBy = models.None
	tx.Set(a)
}

func unexpected(tx *store.Tx, ts timeutil.Timestamp, uid models.Uid) []models.OutboundMessage {
	tx.Log(ts, "unexpected", map[string]any{"uid": uid})
	return []models.OutboundMessage{models.Msg(uid, models.KindUnexpected)}
}

func mustAsking(state models.UserState) models.Asking {
	a, ok := state.(models.Asking)
	if !ok {
		panic(fmt.Sprintf("uid %d: expected Asking, got %T", state.UID(), state))
	}
	return a
}

func mustAsked(state models.UserState, by models.Uid) models.Asked {
	a, ok := state.(models.Asked)
	if !ok {
		panic(fmt.Sprintf("uid %d: expected Asked, got %T", state.UID(), state))
	}
	if a.AskedBy != by {
		panic(fmt.Sprintf("uid %d: asked by %d, expected %d", a.ID, a.AskedBy, by))
	}
	return a
}

func mustWaiting(state models.UserState, waitingFor models.Uid) models.Waiting {
	w, ok := state.(models.Waiting)
	if !ok {
		panic(fmt.Sprintf("uid %d: expected Waiting, got %T", state.UID(), state))
	}
	if w.WaitingFor != waitingFor {
		panic(fmt.Sprintf("uid %d: waiting for %d, expected %d", w.ID, w.WaitingFor, waitingFor))
	}
	return w
}
