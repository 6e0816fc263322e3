package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bridgecall/bridgecall/pkg/timeutil"
)

func person(uid Uid) Person {
	return Person{ID: uid, Name: "Dana", Sex: Female, Opinion: Pro}
}

func TestSchedDerivation(t *testing.T) {
	_, ok := (Initial{ID: 1}).Sched()
	assert.False(t, ok)
	_, ok = (WaitingForOpinion{ID: 1}).Sched()
	assert.False(t, ok)
	_, ok = (Active{Person: person(1), Since: 100}).Sched()
	assert.False(t, ok, "Active waits passively, no tick")

	// Inactive schedules only while a survey is pending.
	_, ok = (Inactive{Person: person(1)}).Sched()
	assert.False(t, ok)
	ts, ok := (Inactive{Person: person(1), SurveyAt: 500}).Sched()
	assert.True(t, ok)
	assert.Equal(t, timeutil.Timestamp(500), ts)

	ts, ok = (Waiting{Person: person(1), SearchingUntil: 160, NextRefresh: 105}).Sched()
	assert.True(t, ok)
	assert.Equal(t, timeutil.Timestamp(105), ts)

	ts, ok = (Asking{
		Person: person(1), SearchingUntil: 160, NextRefresh: 105,
		AskedUID: 2, AskingUntil: 119,
	}).Sched()
	assert.True(t, ok)
	assert.Equal(t, timeutil.Timestamp(105), ts)

	ts, ok = (Asked{Person: person(1), Until: 119, AskedBy: 2}).Sched()
	assert.True(t, ok)
	assert.Equal(t, timeutil.Timestamp(119), ts)
}

func TestParseCmd(t *testing.T) {
	cmd, ok := ParseCmd("im_available_now")
	assert.True(t, ok)
	assert.Equal(t, CmdImAvailableNow, cmd)

	_, ok = ParseCmd("bogus")
	assert.False(t, ok)

	// The scheduler's synthetic command must never parse from the wire.
	_, ok = ParseCmd("sched")
	assert.False(t, ok)
}

func TestOpinionCmd(t *testing.T) {
	sex, opinion, ok := CmdOpinionFemaleCon.OpinionCmd()
	assert.True(t, ok)
	assert.Equal(t, Female, sex)
	assert.Equal(t, Con, opinion)

	_, _, ok = CmdStopSearching.OpinionCmd()
	assert.False(t, ok)
}

func TestIsSurveyReply(t *testing.T) {
	assert.True(t, CmdSurvey3.IsSurveyReply())
	assert.True(t, CmdSurveyDidntTalk.IsSurveyReply())
	assert.False(t, CmdImAvailableNow.IsSurveyReply())
}

func TestOpinionOther(t *testing.T) {
	assert.Equal(t, Con, Pro.Other())
	assert.Equal(t, Pro, Con.Other())
}
