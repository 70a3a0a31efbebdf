// Package identify defines the identification form: the ordered fields a
// join requester has to answer, and the pure validation rules for each one.
package identify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxNameLength is the exclusive upper bound on name field lengths, in runes.
const maxNameLength = 100

// Rejection explains, in words meant for the user, why a submitted value was
// refused. Rules return it; they never send it.
type Rejection struct {
	Reason string
}

// Rule validates raw text and returns the value to record, or a Rejection.
// Rules are pure: no I/O, no state.
type Rule func(text string) (string, *Rejection)

// Field is one step of the identification form.
type Field struct {
	Name     string // key the validated value is recorded under
	Noun     string // how the field is referred to in messages
	Prompt   string // sent to the user when this step is reached
	Validate Rule
}

// Well-known field names in a completed form.
const (
	FieldSurname   = "surname"
	FieldFirstName = "firstname"
	FieldClass     = "class"
)

// Form returns the ordered identification fields. The order is the dialogue
// order; completing the last field completes the form.
func Form() []Field {
	return []Field{
		{
			Name:     FieldSurname,
			Noun:     "surname",
			Prompt:   "Send me your surname.",
			Validate: nameRule("Surname"),
		},
		{
			Name:     FieldFirstName,
			Noun:     "given name",
			Prompt:   "Now send me your given name.",
			Validate: nameRule("Given name"),
		},
		{
			Name:     FieldClass,
			Noun:     "class",
			Prompt:   "Now send me your class, e.g. 5A or 10B.",
			Validate: classRule,
		},
	}
}

// nameRule accepts any text shorter than maxNameLength runes, verbatim.
func nameRule(display string) Rule {
	return func(text string) (string, *Rejection) {
		if utf8.RuneCountInString(text) >= maxNameLength {
			return "", &Rejection{Reason: fmt.Sprintf("%s is too long, keep it under %d characters.", display, maxNameLength)}
		}
		return text, nil
	}
}

// classPattern matches an integer grade followed by one or more letters,
// Latin or Cyrillic, with nothing else around them.
var classPattern = regexp.MustCompile(`^([0-9]+)([A-Za-zА-Яа-яЁё]+)$`)

// classRule validates a class label such as "5A" or "10B". The grade must be
// between 1 and 11; the accepted value is uppercased.
func classRule(text string) (string, *Rejection) {
	m := classPattern.FindStringSubmatch(text)
	if m == nil {
		return "", &Rejection{Reason: "The class must be NUMBER then LETTER, e.g. 5A, 10B or 8C."}
	}

	grade, err := strconv.Atoi(m[1])
	if err != nil {
		// Only reachable when the digits overflow int.
		return "", &Rejection{Reason: "The class number cannot be greater than 11."}
	}

	if grade < 1 {
		return "", &Rejection{Reason: "The class number cannot be less than 1."}
	}
	if grade > 11 {
		return "", &Rejection{Reason: "The class number cannot be greater than 11."}
	}

	return strings.ToUpper(text), nil
}
