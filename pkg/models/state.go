package models

import (
	"github.com/bridgecall/bridgecall/pkg/timeutil"
)

// Uid is the Telegram-assigned user id, the primary key for all state.
// Zero is never a valid uid; optional uid fields use zero to mean "none".
type Uid int64

// None marks an absent optional uid (WaitedBy, WaitingFor).
const None Uid = 0

// UserState is the closed variant of per-user states. Exactly one variant is
// active per uid at any time. Transitions happen only inside a matcher
// transaction; values are immutable — a transition constructs a new value.
//
// Cross-state links (Asking↔Asked, Asking↔Waiting) are represented by uid
// indirection only; navigation always goes through Tx.Get.
type UserState interface {
	UID() Uid
	// Sched returns the timestamp at which this state wants a scheduler
	// tick, if any: Inactive's survey prompt, a searcher's next countdown
	// refresh, or an Asked user's answer deadline.
	Sched() (timeutil.Timestamp, bool)

	userState()
}

// Person carries the registration fields shared by all registered variants.
type Person struct {
	ID      Uid     `json:"uid"`
	Name    string  `json:"name"`
	Sex     Sex     `json:"sex"`
	Opinion Opinion `json:"opinion"`
}

// UID returns the user id.
func (p Person) UID() Uid { return p.ID }

// Registered is implemented by the five post-registration variants.
type Registered interface {
	UserState
	Profile() Person
}

// Searching is implemented by Asking and Waiting: the user is inside an
// active search window.
type Searching interface {
	Registered
	Window() (searchingUntil, nextRefresh timeutil.Timestamp)
}

// Initial is the virtual state of a user that never interacted. It is not
// persisted; Tx.Get returns it when no row exists.
type Initial struct {
	ID Uid `json:"uid"`
}

// WaitingForOpinion is a user that sent /start and was asked for their side.
type WaitingForOpinion struct {
	ID          Uid    `json:"uid"`
	DisplayName string `json:"display_name"`
}

// WaitingForName is a user that chose a side and was asked for the display
// name to hand to partners.
type WaitingForName struct {
	ID          Uid     `json:"uid"`
	DisplayName string  `json:"display_name"`
	Sex         Sex     `json:"sex"`
	Opinion     Opinion `json:"opinion"`
}

// Inactive is a registered, idle user. SurveyAt, when set, schedules the
// post-call survey prompt.
type Inactive struct {
	Person
	SurveyAt timeutil.Timestamp `json:"survey_at,omitempty"` // zero = none
}

// Asking is a searching user with an "are you available?" outstanding to
// AskedUID. WaitedBy, when set, is the searcher that reserved us as
// runner-up.
type Asking struct {
	Person
	SearchingUntil timeutil.Timestamp `json:"searching_until"`
	NextRefresh    timeutil.Timestamp `json:"next_refresh"`
	AskedUID       Uid                `json:"asked_uid"`
	AskingUntil    timeutil.Timestamp `json:"asking_until"`
	WaitedBy       Uid                `json:"waited_by,omitempty"` // None = nobody
}

// Waiting is a searching user not currently asking anyone. WaitingFor, when
// set, points at the Asking user whose Asked we reserved as runner-up.
type Waiting struct {
	Person
	SearchingUntil timeutil.Timestamp `json:"searching_until"`
	NextRefresh    timeutil.Timestamp `json:"next_refresh"`
	WaitingFor     Uid                `json:"waiting_for,omitempty"` // None = nobody
}

// Active is a user whose search window expired; passively eligible to be
// asked until they say they are no longer available.
type Active struct {
	Person
	Since timeutil.Timestamp `json:"since"`
}

// Asked is a user with a pending "are you available?" from AskedBy, to be
// answered before Until.
type Asked struct {
	Person
	Until   timeutil.Timestamp `json:"until"`
	AskedBy Uid                `json:"asked_by"`
}

func (Initial) userState()           {}
func (WaitingForOpinion) userState() {}
func (WaitingForName) userState()    {}
func (Inactive) userState()          {}
func (Asking) userState()            {}
func (Waiting) userState()           {}
func (Active) userState()            {}
func (Asked) userState()             {}

// UID returns the user id.
func (s Initial) UID() Uid { return s.ID }

// UID returns the user id.
func (s WaitingForOpinion) UID() Uid { return s.ID }

// UID returns the user id.
func (s WaitingForName) UID() Uid { return s.ID }

// Sched is undefined for the pre-registration states.
func (Initial) Sched() (timeutil.Timestamp, bool)           { return 0, false }
func (WaitingForOpinion) Sched() (timeutil.Timestamp, bool) { return 0, false }
func (WaitingForName) Sched() (timeutil.Timestamp, bool)    { return 0, false }

// Sched returns the survey prompt time, if one is pending.
func (s Inactive) Sched() (timeutil.Timestamp, bool) {
	return s.SurveyAt, s.SurveyAt != 0
}

// Sched returns the next countdown refresh.
func (s Asking) Sched() (timeutil.Timestamp, bool) { return s.NextRefresh, true }

// Sched returns the next countdown refresh.
func (s Waiting) Sched() (timeutil.Timestamp, bool) { return s.NextRefresh, true }

// Sched is undefined: Active users wait passively.
func (Active) Sched() (timeutil.Timestamp, bool) { return 0, false }

// Sched returns the answer deadline.
func (s Asked) Sched() (timeutil.Timestamp, bool) { return s.Until, true }

// Profile returns the shared registration fields.
func (s Inactive) Profile() Person { return s.Person }
func (s Asking) Profile() Person   { return s.Person }
func (s Waiting) Profile() Person  { return s.Person }
func (s Active) Profile() Person   { return s.Person }
func (s Asked) Profile() Person    { return s.Person }

// Window returns the search window bounds.
func (s Asking) Window() (timeutil.Timestamp, timeutil.Timestamp) {
	return s.SearchingUntil, s.NextRefresh
}

// Window returns the search window bounds.
func (s Waiting) Window() (timeutil.Timestamp, timeutil.Timestamp) {
	return s.SearchingUntil, s.NextRefresh
}
