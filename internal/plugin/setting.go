package plugin

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the setting value types spec.md §3 names ("bool/int/str/
// color/timelength/list").
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
	KindColor
	KindTimeLength
	KindList
)

// Setting is one plugin-owned configuration value (spec.md §3's Setting
// entity; SPEC_FULL.md §3 adds Secret for AES-256-GCM-at-rest values).
type Setting struct {
	OwnerID    string
	Name       string
	Kind       Kind
	Default    string
	value      string
	ReadOnly   bool
	Hidden     bool
	Secret     bool
	PostSetMsg string
	ModifiedCB func(oldValue, newValue string)
}

// NewSetting creates a Setting with its value initialized to def.
func NewSetting(name string, kind Kind, def string) *Setting {
	return &Setting{Name: name, Kind: kind, Default: def, value: def}
}

// Value returns the setting's current raw string value.
func (s *Setting) Value() string {
	return s.value
}

// Set validates v against Kind and, on success, replaces the value,
// returning the old value so the caller (the "settings" capability that
// Base.AddSetting installs) can raise ev_<owner_id>_var_<name>_modified per
// spec.md §3.
func (s *Setting) Set(v string) (oldValue string, err error) {
	if s.ReadOnly {
		return "", fmt.Errorf("setting %s is read-only", s.Name)
	}
	if err := s.validate(v); err != nil {
		return "", fmt.Errorf("setting %s: %w", s.Name, err)
	}
	old := s.value
	s.value = v
	if s.ModifiedCB != nil {
		s.ModifiedCB(old, v)
	}
	return old, nil
}

func (s *Setting) validate(v string) error {
	switch s.Kind {
	case KindBool:
		_, err := strconv.ParseBool(v)
		return err
	case KindInt:
		_, err := strconv.Atoi(v)
		return err
	case KindTimeLength:
		_, err := ParseTimeLength(v)
		return err
	case KindString, KindColor, KindList:
		return nil
	default:
		return fmt.Errorf("unknown setting kind %d", s.Kind)
	}
}

// Bool returns the setting's value parsed as a bool, or false on parse
// error (callers that require correctness should validate at Set time).
func (s *Setting) Bool() bool {
	b, _ := strconv.ParseBool(s.value)
	return b
}

// Int returns the setting's value parsed as an int.
func (s *Setting) Int() int {
	n, _ := strconv.Atoi(s.value)
	return n
}

// List splits a KindList setting's value on commas, trimming whitespace.
func (s *Setting) List() []string {
	if s.value == "" {
		return nil
	}
	parts := strings.Split(s.value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
