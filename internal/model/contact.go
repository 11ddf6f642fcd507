// internal/model/contact.go
package model

import "strings"

const (
	FieldPhone   = "phone"
	FieldName    = "name"
	FieldCompany = "company"

	DefaultName    = "Customer"
	DefaultCompany = "N/A"
)

// Contact is one recipient's field set, keyed by field name.
type Contact map[string]string

// Phone returns the raw phone value and whether it is present and non-empty.
func (c Contact) Phone() (string, bool) {
	phone, ok := c[FieldPhone]
	if !ok || phone == "" {
		return "", false
	}
	return phone, true
}

// WithDefaults fills the CSV defaults for name and company in place.
func (c Contact) WithDefaults() Contact {
	if strings.TrimSpace(c[FieldName]) == "" {
		c[FieldName] = DefaultName
	}
	if strings.TrimSpace(c[FieldCompany]) == "" {
		c[FieldCompany] = DefaultCompany
	}
	return c
}
