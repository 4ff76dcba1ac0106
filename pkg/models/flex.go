package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexInt decodes JSON numbers that ZoneMinder emits inconsistently:
// older API versions quote numeric fields ("Id": "3"), newer ones do
// not ("Id": 3). Empty strings and null decode to zero.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = FlexInt(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

func (f FlexInt) Int() int     { return int(f) }
func (f FlexInt) Int64() int64 { return int64(f) }
