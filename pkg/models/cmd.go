package models

// Cmd is the closed set of button commands a user can send.
// The values double as Telegram callback_data payloads, so they must stay
// stable across deployments.
type Cmd string

// Cmd values.
const (
	CmdOpinionMalePro   Cmd = "opinion_male_pro"
	CmdOpinionMaleCon   Cmd = "opinion_male_con"
	CmdOpinionFemalePro Cmd = "opinion_female_pro"
	CmdOpinionFemaleCon Cmd = "opinion_female_con"

	CmdImAvailableNow      Cmd = "im_available_now"
	CmdStopSearching       Cmd = "stop_searching"
	CmdImNoLongerAvailable Cmd = "im_no_longer_available"

	CmdAnswerAvailable   Cmd = "answer_available"
	CmdAnswerUnavailable Cmd = "answer_unavailable"

	// CmdSched reserves the scheduler's wake-up in the wire namespace.
	// Ticks arrive as InboundUpdate.Tick; ParseCmd refuses this string,
	// so a forged callback gets an Unexpected reply like any stale button.
	CmdSched Cmd = "sched"

	CmdSurvey1         Cmd = "s1"
	CmdSurvey2         Cmd = "s2"
	CmdSurvey3         Cmd = "s3"
	CmdSurvey4         Cmd = "s4"
	CmdSurvey5         Cmd = "s5"
	CmdSurveyDidntTalk Cmd = "s_didnt_talk"
	CmdSurveyNoAnswer  Cmd = "s_no_answer"
)

var allCmds = map[Cmd]bool{
	CmdOpinionMalePro:      true,
	CmdOpinionMaleCon:      true,
	CmdOpinionFemalePro:    true,
	CmdOpinionFemaleCon:    true,
	CmdImAvailableNow:      true,
	CmdStopSearching:       true,
	CmdImNoLongerAvailable: true,
	CmdAnswerAvailable:     true,
	CmdAnswerUnavailable:   true,
	CmdSurvey1:             true,
	CmdSurvey2:             true,
	CmdSurvey3:             true,
	CmdSurvey4:             true,
	CmdSurvey5:             true,
	CmdSurveyDidntTalk:     true,
	CmdSurveyNoAnswer:      true,
}

// ParseCmd maps a callback_data string to a Cmd. The webhook adapter runs
// every button press through it; CmdSched is deliberately not parseable.
func ParseCmd(s string) (Cmd, bool) {
	c := Cmd(s)
	return c, allCmds[c]
}

// OpinionCmd decomposes an opinion-choice command into its sex and opinion.
func (c Cmd) OpinionCmd() (Sex, Opinion, bool) {
	switch c {
	case CmdOpinionMalePro:
		return Male, Pro, true
	case CmdOpinionMaleCon:
		return Male, Con, true
	case CmdOpinionFemalePro:
		return Female, Pro, true
	case CmdOpinionFemaleCon:
		return Female, Con, true
	}
	return "", "", false
}

// IsSurveyReply reports whether c is one of the post-call survey answers.
func (c Cmd) IsSurveyReply() bool {
	switch c {
	case CmdSurvey1, CmdSurvey2, CmdSurvey3, CmdSurvey4, CmdSurvey5,
		CmdSurveyDidntTalk, CmdSurveyNoAnswer:
		return true
	}
	return false
}
