package models

// MessageKind enumerates the abstract message catalog the matcher emits.
// Rendering (language, gendered text, keyboards) is the adapter's job.
type MessageKind string

// MessageKind values.
const (
	KindUnexpected            MessageKind = "unexpected"
	KindWelcome               MessageKind = "welcome"
	KindAskOpinion            MessageKind = "ask_opinion"
	KindTypeName              MessageKind = "type_name"
	KindRegistered            MessageKind = "registered"
	KindInactive              MessageKind = "inactive"
	KindSearching             MessageKind = "searching"
	KindUpdateSearching       MessageKind = "update_searching"
	KindFoundPartner          MessageKind = "found_partner"
	KindAreYouAvailable       MessageKind = "are_you_available"
	KindAfterAskingTimedOut   MessageKind = "after_asking_timed_out"
	KindAfterReplyUnavailable MessageKind = "after_reply_unavailable"
	KindSearchTimedOut        MessageKind = "search_timed_out"
	KindAfterStopSearch       MessageKind = "after_stop_search"
	KindHowWasTheCall         MessageKind = "how_was_the_call"
	KindThanksForAnswering    MessageKind = "thanks_for_answering"
)

// MessageParams carries the kind-specific payload. Only the fields relevant
// to the kind are set.
type MessageParams struct {
	// UpdateSearching
	SecondsLeft int64 `json:"seconds_left,omitempty"`

	// FoundPartner: the counterpart's identity. AreYouAvailable: OtherSex only.
	OtherUID  Uid    `json:"other_uid,omitempty"`
	OtherName string `json:"other_name,omitempty"`
	OtherSex  Sex    `json:"other_sex,omitempty"`

	// ThanksForAnswering
	Reply Cmd `json:"reply,omitempty"`
}

// OutboundMessage is one message the matcher wants delivered, in order.
type OutboundMessage struct {
	UID    Uid           `json:"uid"`
	Kind   MessageKind   `json:"kind"`
	Params MessageParams `json:"params"`
}

// Msg builds a parameterless outbound message.
func Msg(uid Uid, kind MessageKind) OutboundMessage {
	return OutboundMessage{UID: uid, Kind: kind}
}
