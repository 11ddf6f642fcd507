// internal/service/template_service.go
package service

import (
	"strings"

	appErrors "github.com/unclebandit/smsleopard-intake/internal/errors"
	"github.com/unclebandit/smsleopard-intake/internal/model"
)

// RenderTemplate substitutes every {field} in template with the contact's value.
// Keys are case sensitive and must exist in the contact; {{ and }} are literal
// braces.
func RenderTemplate(template string, contact model.Contact) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		ch := template[i]
		switch ch {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", appErrors.NewMalformedTemplate("single '{' encountered")
			}
			key := template[i+1 : i+1+end]
			if key == "" {
				return "", appErrors.NewMalformedTemplate("empty placeholder '{}'")
			}
			if strings.ContainsRune(key, '{') {
				return "", appErrors.NewMalformedTemplate("unexpected '{' in placeholder")
			}
			value, ok := contact[key]
			if !ok {
				return "", appErrors.NewMissingField(key)
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", appErrors.NewMalformedTemplate("single '}' encountered")
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}
