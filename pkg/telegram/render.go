package telegram

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bridgecall/bridgecall/pkg/models"
)

// Rendered is a platform-ready message: final text, entities, and keyboard.
type Rendered struct {
	Text     string
	Entities []MessageEntity
	Keyboard *InlineKeyboardMarkup

	// EditInPlace asks the dispatcher to edit the last tracked message for
	// the recipient instead of sending a new one (countdown refreshes).
	EditInPlace bool
}

// All user-facing text is Hebrew. Two substitution markers keep the
// templates single-sourced: [a/b] picks a for male and b for female
// recipients, [a|b] picks a for reform supporters and b for opponents
// (the slots name the counterpart, so they read inverted on purpose).
const (
	unexpectedMsg = "אני מצטער, לא הבנתי. תוכלו ללחוץ על אחת התגובות המוכנות מראש?"

	welcomeMsg = `
שלום! אני בוט שמקשר בין אנשים שמתנגדים לרפורמה המשפטית ובין אנשים שתומכים בה.
אם אתם רוצים לשוחח בשיחת אחד-על-אחד עם מישהו שחושב אחרת מכם, אני אשמח לעזור!

(לשון זכר/נקבה תשמש רק כדי שאדע איך לפנות אליך, ולא תועבר למשתמשים אחרים.)
`

	askOpinionMsg = "מה העמדה שלך?"

	typeNameMsg = `
מעולה. איך קוראים לך? כת[וב/בי] לי את השם שלך, ואני אציג אותו רק למי
שאקשר אותך אליו לשיחה.
`

	registeredMsg = "תודה, רשמתי את השם שלך."

	inactiveMsg = `
כשתרצ[ה/י] לשוחח עם [מתנגד|תומך] רפורמה, לח[ץ/צי] על הכפתור למטה ואחפש
מישהו שפנוי עכשיו.
`

	searchingMsg = "מחפש...\n\n(%d שניות נותרו)"

	foundPartnerMsg = `
מצאתי! דבר[/י] עכשיו עם {}. אפשר פשוט ללחוץ על השם ולהתחיל שיחה קולית
כאן בטלגרם.
`

	areYouAvailableMaleMsg = `
[מתנגד|תומך] רפורמה פנוי עכשיו לשיחה. האם את[ה/] פנוי[/ה] לדבר איתו עכשיו?
`
	areYouAvailableFemaleMsg = `
[מתנגדת|תומכת] רפורמה פנויה עכשיו לשיחה. האם את[ה/] פנוי[/ה] לדבר איתה עכשיו?
`

	afterAskingTimedOutMsg = `
אין צורך לענות יותר, השיחה כבר לא מחכה. אם ת[רצה/רצי] לשוחח, לח[ץ/צי] על
הכפתור ואחפש מישהו.
`

	afterReplyUnavailableMsg = `
בסדר גמור. כשתרצ[ה/י] לשוחח, לח[ץ/צי] על הכפתור.
`

	searchTimedOutMsg = `
לא מצאתי אף אחד שפנוי כרגע, מצטער. אני אשאל אותך כשמישהו יחפש שיחה.
אם את[ה/] כבר לא פנוי[/ה], לח[ץ/צי] על הכפתור.
`

	afterStopSearchMsg = `
הפסקתי לחפש. כשתרצ[ה/י] לשוחח, לח[ץ/צי] על הכפתור.
`

	howWasTheCallMsg = "איך הייתה השיחה?"

	thanksForAnsweringMsg = "תודה על המשוב!"
)

// Inline keyboard button captions, keyed by the callback command they send.
var cmdText = map[models.Cmd]string{
	models.CmdOpinionFemaleCon: "אני מתנגדת לרפורמה\n🙅‍♀️",
	models.CmdOpinionFemalePro: "אני תומכת ברפורמה\n🙋‍♀️",
	models.CmdOpinionMaleCon:   "אני מתנגד לרפורמה\n🙅‍♂️",
	models.CmdOpinionMalePro:   "אני תומך ברפורמה\n🙋‍♂️",

	models.CmdImAvailableNow:      "אני פנוי[/ה] עכשיו לשיחה עם [מתנגד|תומך] רפורמה",
	models.CmdStopSearching:       "הפסק לחפש",
	models.CmdImNoLongerAvailable: "אני כבר לא פנוי[/ה]",

	models.CmdAnswerAvailable:   "אני פנוי[/ה] עכשיו",
	models.CmdAnswerUnavailable: "לא עכשיו",

	models.CmdSurvey1:         "1",
	models.CmdSurvey2:         "2",
	models.CmdSurvey3:         "3",
	models.CmdSurvey4:         "4",
	models.CmdSurvey5:         "5",
	models.CmdSurveyDidntTalk: "לא דיברנו",
	models.CmdSurveyNoAnswer:  "לא הייתה תשובה",
}

var markerRe = regexp.MustCompile(`\[([^/|\[\]]*)([/|])([^/|\[\]]*)\]`)

// adjustStr resolves the [a/b] and [a|b] markers for the recipient and
// removes word-wrap newlines.
func adjustStr(s string, sex models.Sex, opinion models.Opinion) string {
	s = removeWordWrapNewlines(s)
	return markerRe.ReplaceAllStringFunc(s, func(m string) string {
		g := markerRe.FindStringSubmatch(m)
		first, sep, second := g[1], g[2], g[3]
		if sep == "/" {
			if sex == models.Female {
				return second
			}
			return first
		}
		if opinion == models.Con {
			return second
		}
		return first
	})
}

// removeWordWrapNewlines turns single newlines into spaces, keeping blank
// lines as paragraph breaks, and trims the result.
func removeWordWrapNewlines(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for i, r := range runes {
		if r == '\n' {
			prevNL := i > 0 && runes[i-1] == '\n'
			nextNL := i+1 < len(runes) && runes[i+1] == '\n'
			if !prevNL && !nextNL {
				out = append(out, ' ')
				continue
			}
		}
		out = append(out, r)
	}
	return strings.TrimSpace(string(out))
}

// utf16Len returns the length of s in UTF-16 code units, the unit Telegram
// uses for entity offsets.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// keyboard builds a one-row inline keyboard from commands, adjusting each
// caption for the recipient.
func keyboard(sex models.Sex, opinion models.Opinion, rows ...[]models.Cmd) *InlineKeyboardMarkup {
	kb := make([][]InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]InlineKeyboardButton, 0, len(row))
		for _, cmd := range row {
			btns = append(btns, InlineKeyboardButton{
				Text:         adjustStr(cmdText[cmd], sex, opinion),
				CallbackData: string(cmd),
			})
		}
		kb = append(kb, btns)
	}
	return &InlineKeyboardMarkup{InlineKeyboard: kb}
}

// opinionKeyboard is the four-way sex-and-opinion chooser shown on signup.
func opinionKeyboard() *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{
			{Text: cmdText[models.CmdOpinionFemaleCon], CallbackData: string(models.CmdOpinionFemaleCon)},
			{Text: cmdText[models.CmdOpinionFemalePro], CallbackData: string(models.CmdOpinionFemalePro)},
		},
		{
			{Text: cmdText[models.CmdOpinionMaleCon], CallbackData: string(models.CmdOpinionMaleCon)},
			{Text: cmdText[models.CmdOpinionMalePro], CallbackData: string(models.CmdOpinionMalePro)},
		},
	}}
}

// Render turns an abstract outbound message into platform text, entities and
// keyboard. sex and opinion describe the recipient and drive the gendered
// substitutions; they are zero values for pre-registration kinds.
func Render(msg models.OutboundMessage, sex models.Sex, opinion models.Opinion) (Rendered, error) {
	switch msg.Kind {
	case models.KindUnexpected:
		return Rendered{Text: unexpectedMsg}, nil

	case models.KindWelcome:
		return Rendered{Text: removeWordWrapNewlines(welcomeMsg)}, nil

	case models.KindAskOpinion:
		return Rendered{Text: askOpinionMsg, Keyboard: opinionKeyboard()}, nil

	case models.KindTypeName:
		return Rendered{Text: adjustStr(typeNameMsg, sex, opinion)}, nil

	case models.KindRegistered:
		return Rendered{Text: registeredMsg}, nil

	case models.KindInactive:
		return Rendered{
			Text:     adjustStr(inactiveMsg, sex, opinion),
			Keyboard: keyboard(sex, opinion, []models.Cmd{models.CmdImAvailableNow}),
		}, nil

	case models.KindSearching, models.KindUpdateSearching:
		return Rendered{
			Text:        fmt.Sprintf(searchingMsg, msg.Params.SecondsLeft),
			Keyboard:    keyboard(sex, opinion, []models.Cmd{models.CmdStopSearching}),
			EditInPlace: msg.Kind == models.KindUpdateSearching,
		}, nil

	case models.KindFoundPartner:
		return renderFoundPartner(msg, sex, opinion)

	case models.KindAreYouAvailable:
		text := areYouAvailableMaleMsg
		if msg.Params.OtherSex == models.Female {
			text = areYouAvailableFemaleMsg
		}
		return Rendered{
			Text: adjustStr(text, sex, opinion),
			Keyboard: keyboard(sex, opinion, []models.Cmd{
				models.CmdAnswerAvailable, models.CmdAnswerUnavailable,
			}),
		}, nil

	case models.KindAfterAskingTimedOut:
		return Rendered{
			Text:     adjustStr(afterAskingTimedOutMsg, sex, opinion),
			Keyboard: keyboard(sex, opinion, []models.Cmd{models.CmdImAvailableNow}),
		}, nil

	case models.KindAfterReplyUnavailable:
		return Rendered{
			Text:     adjustStr(afterReplyUnavailableMsg, sex, opinion),
			Keyboard: keyboard(sex, opinion, []models.Cmd{models.CmdImAvailableNow}),
		}, nil

	case models.KindSearchTimedOut:
		return Rendered{
			Text:     adjustStr(searchTimedOutMsg, sex, opinion),
			Keyboard: keyboard(sex, opinion, []models.Cmd{models.CmdImNoLongerAvailable}),
		}, nil

	case models.KindAfterStopSearch:
		return Rendered{
			Text:     adjustStr(afterStopSearchMsg, sex, opinion),
			Keyboard: keyboard(sex, opinion, []models.Cmd{models.CmdImAvailableNow}),
		}, nil

	case models.KindHowWasTheCall:
		return Rendered{
			Text: howWasTheCallMsg,
			Keyboard: keyboard(sex, opinion,
				[]models.Cmd{
					models.CmdSurvey1, models.CmdSurvey2, models.CmdSurvey3,
					models.CmdSurvey4, models.CmdSurvey5,
				},
				[]models.Cmd{models.CmdSurveyDidntTalk, models.CmdSurveyNoAnswer},
			),
		}, nil

	case models.KindThanksForAnswering:
		return Rendered{Text: thanksForAnsweringMsg}, nil
	}
	return Rendered{}, fmt.Errorf("unknown message kind %q", msg.Kind)
}

// renderFoundPartner interpolates a text_mention entity for the counterpart
// so the recipient can tap the name and start a voice call.
func renderFoundPartner(msg models.OutboundMessage, sex models.Sex, opinion models.Opinion) (Rendered, error) {
	if msg.Params.OtherUID == models.None || msg.Params.OtherName == "" {
		return Rendered{}, fmt.Errorf("found-partner message for uid %d missing counterpart", msg.UID)
	}
	template := adjustStr(foundPartnerMsg, sex, opinion)
	prefix, suffix, ok := strings.Cut(template, "{}")
	if !ok {
		return Rendered{}, fmt.Errorf("found-partner template missing placeholder")
	}
	name := msg.Params.OtherName
	return Rendered{
		Text: prefix + name + suffix,
		Entities: []MessageEntity{{
			Type:   "text_mention",
			Offset: utf16Len(prefix),
			Length: utf16Len(name),
			User:   &User{ID: int64(msg.Params.OtherUID), FirstName: name},
		}},
	}, nil
}
