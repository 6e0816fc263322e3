package models

import "fmt"

// Sex is used only to address the user with correctly gendered text.
// It is never forwarded to other users except as part of FoundPartner
// rendering ("he/she is waiting for your call").
type Sex string

// Sex values.
const (
	Male   Sex = "male"
	Female Sex = "female"
)

// Validate checks that the value is a known Sex.
func (s Sex) Validate() error {
	switch s {
	case Male, Female:
		return nil
	}
	return fmt.Errorf("invalid sex: %q", string(s))
}

// Opinion is the user's side on the polarizing topic.
type Opinion string

// Opinion values.
const (
	Pro Opinion = "pro"
	Con Opinion = "con"
)

// Other returns the opposing opinion.
func (o Opinion) Other() Opinion {
	switch o {
	case Pro:
		return Con
	case Con:
		return Pro
	}
	panic(fmt.Sprintf("invalid opinion: %q", string(o)))
}

// Validate checks that the value is a known Opinion.
func (o Opinion) Validate() error {
	switch o {
	case Pro, Con:
		return nil
	}
	return fmt.Errorf("invalid opinion: %q", string(o))
}

// Opinions lists both opinions, for iterating the per-opinion indexes.
var Opinions = []Opinion{Pro, Con}
