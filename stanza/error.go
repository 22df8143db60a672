package stanza

import (
	"strings"

	"golang.org/x/text/language"
)

// ErrorType is the RFC 6120 §8.3.2 error type attribute: it tells the
// recipient whether and how an operation might be retried.
type ErrorType string

// The defined stanza error types.
const (
	ErrAuth     ErrorType = "auth"
	ErrCancel   ErrorType = "cancel"
	ErrContinue ErrorType = "continue"
	ErrModify   ErrorType = "modify"
	ErrWait     ErrorType = "wait"
)

// Condition is one of the stanza error conditions defined in RFC 6120
// §8.3.3.
type Condition string

// The defined stanza error conditions.
const (
	BadRequest            Condition = "bad-request"
	Conflict              Condition = "conflict"
	FeatureNotImplemented Condition = "feature-not-implemented"
	Forbidden             Condition = "forbidden"
	ItemNotFound          Condition = "item-not-found"
	NotAcceptable         Condition = "not-acceptable"
	NotAllowed            Condition = "not-allowed"
	NotAuthorized         Condition = "not-authorized"
	ServiceUnavailable    Condition = "service-unavailable"
	UndefinedCondition    Condition = "undefined-condition"
)

// Error is a parsed <error/> child of a stanza, implementing the error
// interface so it can be returned directly from request/response helpers.
type Error struct {
	Type      ErrorType
	Condition Condition
	Lang      language.Tag
	Text      string
}

// Error implements the error interface, preferring the human-readable text
// when present and falling back to the machine-readable condition.
func (e Error) Error() string {
	if e.Text != "" {
		return e.Text
	}
	return string(e.Condition)
}

// ErrorFromElement extracts a stanza-level error from a stanza's <error/>
// child, if any. ok is false if the stanza carries no <error/> element.
func ErrorFromElement(e *Element) (se Error, ok bool) {
	errEl := e.Child("error")
	if errEl == nil {
		return Error{}, false
	}
	if t, present := errEl.Attr("type"); present {
		se.Type = ErrorType(t)
	}
	for _, c := range errEl.Children {
		if c.Name == "text" {
			se.Text = c.CharData
			if l, present := c.Attr("xml:lang"); present {
				se.Lang, _ = language.Parse(l)
			}
			continue
		}
		if !strings.Contains(c.Name, " ") {
			se.Condition = Condition(c.Name)
		}
	}
	return se, true
}
