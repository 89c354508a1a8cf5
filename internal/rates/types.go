package rates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Entry is one currency row of the API payload.
type Entry struct {
	Ccy     string `json:"ccy"`
	BaseCcy string `json:"base_ccy"`
	Buy     Value  `json:"buy"`
	Sale    Value  `json:"sale"`
}

// Value holds a rate exactly as the API sent it. The API uses strings, but
// plain JSON numbers are accepted as well.
type Value string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Value(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("rate value %s: %w", b, err)
	}
	*v = Value(n.String())
	return nil
}

// OrNA returns the value, or "N/A" when the API omitted it.
func (v Value) OrNA() string {
	if v == "" {
		return "N/A"
	}
	return string(v)
}

// Float parses the value.
func (v Value) Float() (float64, error) {
	return strconv.ParseFloat(string(v), 64)
}
