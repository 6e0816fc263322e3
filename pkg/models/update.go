package models

// InboundUpdate is a normalized input for the matcher. The Telegram adapter
// classifies webhook payloads into one of the four shapes; the scheduler
// synthesises Tick.
type InboundUpdate struct {
	UID Uid

	Start    *StartInput
	Text     *TextInput
	Callback *CallbackInput
	Tick     bool
}

// StartInput is a /start command, carrying the chat-platform display name.
type StartInput struct {
	DisplayName string
}

// TextInput is a free-text reply; only meaningful while WaitingForName.
type TextInput struct {
	Text string
}

// CallbackInput is a button press.
type CallbackInput struct {
	Cmd Cmd
}

// NewStart builds a /start update.
func NewStart(uid Uid, displayName string) InboundUpdate {
	return InboundUpdate{UID: uid, Start: &StartInput{DisplayName: displayName}}
}

// NewText builds a free-text update.
func NewText(uid Uid, text string) InboundUpdate {
	return InboundUpdate{UID: uid, Text: &TextInput{Text: text}}
}

// NewCallback builds a button-press update.
func NewCallback(uid Uid, cmd Cmd) InboundUpdate {
	return InboundUpdate{UID: uid, Callback: &CallbackInput{Cmd: cmd}}
}

// NewTick builds a scheduler tick.
func NewTick(uid Uid) InboundUpdate {
	return InboundUpdate{UID: uid, Tick: true}
}
