package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Num is an optional number. The zero value is absent, which is distinct from
// zero: an absent weight means "no load entered", not "0 kg".
//
// Absent values encode as "" to stay compatible with backups written by the
// web client. Decoding never fails on a well-formed JSON value: anything that
// is not a JSON number decodes as absent.
type Num struct {
	Value float64
	Valid bool
}

// N returns a present Num.
func N(v float64) Num {
	return Num{Value: v, Valid: true}
}

// Or returns the value, or def when absent.
func (n Num) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

func (n Num) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (n Num) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte(`""`), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Num) UnmarshalJSON(data []byte) error {
	*n = Num{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '"' || data[0] == 'n' || data[0] == 't' || data[0] == 'f' || data[0] == '[' || data[0] == '{' {
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return nil
	}
	*n = N(v)
	return nil
}

// NumFrom converts a generic decoded JSON value into a Num.
func NumFrom(v any) Num {
	switch x := v.(type) {
	case float64:
		return N(x)
	case int:
		return N(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Num{}
		}
		return N(f)
	}
	return Num{}
}
