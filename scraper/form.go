package scraper

import (
	"net/url"
	"strings"
)

// Form is an ordered list of form-urlencoded fields. The portal's handlers
// read fields by name, but keeping insertion order makes request bodies
// reproducible and diffable against browser captures.
type Form struct {
	keys   []string
	values map[string]string
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{values: make(map[string]string)}
}

// Set adds key or replaces its value in place.
func (f *Form) Set(key, value string) *Form {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
	return f
}

// Get returns the value of key, or "".
func (f *Form) Get(key string) string {
	return f.values[key]
}

// Keys returns field names in insertion order.
func (f *Form) Keys() []string {
	return append([]string(nil), f.keys...)
}

// Encode renders the form as an application/x-www-form-urlencoded body.
// Spaces become "+" as browsers send them.
func (f *Form) Encode() string {
	var b strings.Builder
	for i, k := range f.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.values[k]))
	}
	return b.String()
}

// Values returns the form as url.Values.
func (f *Form) Values() url.Values {
	v := make(url.Values, len(f.keys))
	for _, k := range f.keys {
		v.Set(k, f.values[k])
	}
	return v
}
