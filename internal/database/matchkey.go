package database

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchFunc is applied to both sides of an overlap comparison
type MatchFunc string

const (
	// MatchEqual compares values directly
	MatchEqual MatchFunc = ""
	// MatchDay compares values truncated to the day
	MatchDay MatchFunc = "trunc"
	// MatchNullSafe treats two NULLs as equal
	MatchNullSafe MatchFunc = "nvl"
)

// MatchKey is one column of an overlap key
type MatchKey struct {
	Column string
	Func   MatchFunc
}

func (k MatchKey) String() string {
	if k.Func == MatchEqual {
		return k.Column
	}
	return fmt.Sprintf("%s(%s)", k.Func, k.Column)
}

var matchKeyPattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*(.+?)\s*\)\s*$`)

// ParseMatchKey parses "col" or "fn(col)". Only trunc and nvl keep their
// meaning. Any other function compares the inner column directly.
func ParseMatchKey(s string) (MatchKey, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return MatchKey{}, fmt.Errorf("empty overlap key")
	}

	fn := MatchEqual
	if m := matchKeyPattern.FindStringSubmatch(raw); m != nil {
		switch MatchFunc(strings.ToLower(m[1])) {
		case MatchDay:
			fn = MatchDay
		case MatchNullSafe:
			fn = MatchNullSafe
		}
		raw = m[2]
	}

	col := strings.Trim(raw, "\"'`[]")
	if col == "" {
		return MatchKey{}, fmt.Errorf("invalid overlap key %q", s)
	}
	return MatchKey{Column: col, Func: fn}, nil
}

// ParseMatchKeys parses each key in order
func ParseMatchKeys(keys []string) ([]MatchKey, error) {
	parsed := make([]MatchKey, 0, len(keys))
	for _, k := range keys {
		mk, err := ParseMatchKey(k)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, mk)
	}
	return parsed, nil
}
