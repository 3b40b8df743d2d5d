package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// The backend is an aggregation over several provider APIs and emits the
// same field as bool/string/number depending on the upstream. These Flex
// types absorb that drift at the decode boundary so the rest of the client
// sees one shape.

type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*b = false
		return nil
	}

	switch trimmed[0] {
	case 't':
		*b = true
		return nil
	case 'f':
		*b = false
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "y", "on":
			*b = true
		default:
			*b = false
		}
		return nil
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*b = n != 0
		return nil
	}
}

func (b FlexBool) Bool() bool { return bool(b) }

type FlexInt int

func (i *FlexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*i = 0
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*i = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*i = 0
			return nil
		}
		*i = FlexInt(int(parsed))
		return nil
	}

	var n float64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*i = FlexInt(int(n))
	return nil
}

func (i FlexInt) Int() int { return int(i) }

type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = 0
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexFloat(parsed)
		return nil
	}

	var n float64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = FlexFloat(n)
	return nil
}

func (f FlexFloat) Float() float64 { return float64(f) }

// FlexString decodes strings and bare numbers into a string (entity IDs come
// back as numbers from some provider endpoints).
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}

	if trimmed[0] == '"' {
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

// firstNonEmpty coalesces alternate wire names for the same field.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
