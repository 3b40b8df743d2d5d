package transport

import (
	"net/url"
	"strconv"
	"strings"
)

// Query assembles a query string, dropping parameters whose value is empty.
type Query map[string]string

func (q Query) Values() url.Values {
	values := url.Values{}
	for key, value := range q {
		if strings.TrimSpace(value) == "" {
			continue
		}
		values.Set(key, value)
	}
	return values
}

// Itoa formats a positive int for a query parameter; zero maps to "" so the
// parameter is dropped.
func Itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// Btoa formats a bool query parameter.
func Btoa(b bool) string {
	return strconv.FormatBool(b)
}
