package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleID holds identifiers the college API emits either as JSON numbers or strings.
type FlexibleID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(b), err)
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) String() string { return string(id) }

// IsZero reports whether the id is empty.
func (id FlexibleID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }
