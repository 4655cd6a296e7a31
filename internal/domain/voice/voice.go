package voice

import (
	"errors"
	"fmt"
	"strings"
)

// Voice is the speech persona used for narration and generation requests.
type Voice string

const (
	Man        Voice = "man"
	Woman      Voice = "woman"
	Passionate Voice = "passionate"
	Witch      Voice = "witch"

	Default = Man
)

var ErrUnknown = errors.New("unknown voice")

// All returns the voices in display order.
func All() []Voice {
	return []Voice{Man, Woman, Passionate, Witch}
}

func (v Voice) String() string {
	return string(v)
}

func (v Voice) Valid() bool {
	for _, known := range All() {
		if v == known {
			return true
		}
	}
	return false
}

// Parse accepts a voice name in any case. Surrounding whitespace is ignored.
func Parse(s string) (Voice, error) {
	v := Voice(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return v, nil
}

// OrDefault returns v when it is a known voice and Default otherwise.
func OrDefault(s string) Voice {
	v, err := Parse(s)
	if err != nil {
		return Default
	}
	return v
}
