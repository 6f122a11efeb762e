package portrait

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexString decodes a JSON string, number or boolean into trimmed text.
// Upstream systems are inconsistent about quoting identifiers and codes.
// JSON null, empty strings and non-scalar values decode to the zero value.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		// Objects and arrays where a scalar is expected are treated as absent.
		*f = ""
		return nil
	}
	if v {
		*f = "true"
	} else {
		*f = "false"
	}
	return nil
}

func (f FlexString) String() string { return string(f) }

func (f FlexString) Present() bool { return f != "" }

// Value returns the text, or nil when absent. Graph writers treat nil as
// "remove the property".
func (f FlexString) Value() any {
	if f == "" {
		return nil
	}
	return string(f)
}

// Or returns the text, or def when absent.
func (f FlexString) Or(def string) string {
	if f == "" {
		return def
	}
	return string(f)
}
