package registration

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Condition rule operators
const (
	OpIs          = "is"
	OpIsNot       = "isnot"
	OpContains    = "contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGreaterThan = ">"
	OpLessThan    = "<"
)

// Condition logic types
const (
	LogicAll = "all"
	LogicAny = "any"
)

// Payment statuses that release delayed feeds
const (
	PaymentPaid   = "Paid"
	PaymentActive = "Active"
)

// Feed connects a form to a webinar
type Feed struct {
	ID        string            `json:"id"`
	FormID    string            `json:"formId"`
	Name      string            `json:"feedName"`
	WebinarID string            `json:"webinarId"` // may contain merge tags
	FieldMap  map[string]string `json:"fieldMap"`  // registrant field -> form field id
	Condition *Condition        `json:"condition,omitempty"`
	Active    bool              `json:"active"`
	CreatedAt time.Time         `json:"createdAt"`

	// DelayUntilPaid holds the feed back until the entry's payment completes
	DelayUntilPaid bool `json:"delayUntilPaid,omitempty"`
}

// Condition restricts which entries a feed processes. With LogicAll (the
// default) every rule must match, with LogicAny at least one.
type Condition struct {
	LogicType string `json:"logicType,omitempty"`
	Rules     []Rule `json:"rules"`
}

// Rule compares one entry field against a value
type Rule struct {
	FieldID  string `json:"fieldId"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Entry is a submitted form entry
type Entry struct {
	ID            string            `json:"id"`
	FormID        string            `json:"formId"`
	Values        map[string]string `json:"values"` // form field id -> value
	PaymentStatus string            `json:"paymentStatus,omitempty"`
}

// IsPaid reports whether the entry's payment has completed
func (e *Entry) IsPaid() bool {
	return strings.EqualFold(e.PaymentStatus, PaymentPaid) ||
		strings.EqualFold(e.PaymentStatus, PaymentActive)
}

// ValidOperator reports whether op is a known rule operator. The empty
// operator means OpIs.
func ValidOperator(op string) bool {
	switch op {
	case "", OpIs, OpIsNot, OpContains, OpStartsWith, OpEndsWith, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// NewFeedID returns a random feed identifier
func NewFeedID() string {
	return uuid.NewString()
}

// Matches reports whether the entry satisfies the condition.
// A nil condition or one without rules matches everything.
func (c *Condition) Matches(entry *Entry) bool {
	if c == nil || len(c.Rules) == 0 {
		return true
	}

	matchAny := c.LogicType == LogicAny
	for _, rule := range c.Rules {
		if rule.Matches(entry) == matchAny {
			return matchAny
		}
	}
	return !matchAny
}

// Matches evaluates the rule against the entry. Text comparisons ignore
// case and surrounding space; > and < compare numbers and fail on
// non-numeric input.
func (r Rule) Matches(entry *Entry) bool {
	got := strings.TrimSpace(entry.Values[r.FieldID])
	want := strings.TrimSpace(r.Value)
	lgot, lwant := strings.ToLower(got), strings.ToLower(want)

	switch r.Operator {
	case OpIsNot:
		return lgot != lwant
	case OpContains:
		return strings.Contains(lgot, lwant)
	case OpStartsWith:
		return strings.HasPrefix(lgot, lwant)
	case OpEndsWith:
		return strings.HasSuffix(lgot, lwant)
	case OpGreaterThan, OpLessThan:
		a, errA := strconv.ParseFloat(got, 64)
		b, errB := strconv.ParseFloat(want, 64)
		if errA != nil || errB != nil {
			return false
		}
		if r.Operator == OpGreaterThan {
			return a > b
		}
		return a < b
	default:
		return lgot == lwant
	}
}

// mergeTagRegex matches {3} and {Label:3} style tags
var mergeTagRegex = regexp.MustCompile(`\{(?:[^{}:]*:)?([A-Za-z0-9_.]+)\}`)

// ResolveMergeTags replaces merge tags in s with entry values. Tags for
// fields missing from the entry resolve to the empty string.
func ResolveMergeTags(s string, entry *Entry) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return mergeTagRegex.ReplaceAllStringFunc(s, func(tag string) string {
		m := mergeTagRegex.FindStringSubmatch(tag)
		return entry.Values[m[1]]
	})
}

// HasMergeTags reports whether s contains merge tags
func HasMergeTags(s string) bool {
	return mergeTagRegex.MatchString(s)
}
