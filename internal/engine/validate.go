package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/and27/pcengine/internal/domain"
)

// MaxNextActionLength is the default limit on next-action text, in characters.
const MaxNextActionLength = 140

func ValidateName(name string) (string, error) {
	v := strings.TrimSpace(name)
	if v == "" {
		return "", domain.Invalid("name", "name required")
	}
	return v, nil
}

// ValidateNextAction trims text and checks it against max characters. A
// non-positive max uses MaxNextActionLength.
func ValidateNextAction(text string, max int) (string, error) {
	if max <= 0 {
		max = MaxNextActionLength
	}
	v := strings.TrimSpace(text)
	if v == "" {
		return "", domain.Invalid("next_action", "next action required")
	}
	if utf8.RuneCountInString(v) > max {
		return "", domain.Invalid("next_action", "next action must be %d characters or fewer", max)
	}
	return v, nil
}

func ParseStatus(value string) (domain.Status, error) {
	v := domain.Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range domain.Statuses {
		if v == s {
			return s, nil
		}
	}
	return "", domain.Invalid("status", "invalid status %q", value)
}

// normalizeOptional trims optional text; blank becomes nil.
func normalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
