package tms

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
)

// field holds a broker value that may arrive as a JSON string, a bare number
// or null. present records whether the key appeared at all.
type field struct {
	val     string
	present bool
}

func (f *field) UnmarshalJSON(b []byte) error {
	f.present = true
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		f.val = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.val = strings.TrimSpace(s)
		return nil
	}
	f.val = string(b)
	return nil
}

func (f field) String() string { return f.val }

// set reports a present, non-blank value.
func (f field) set() bool { return f.present && f.val != "" }
