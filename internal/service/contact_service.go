package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	appErrors "github.com/unclebandit/smsleopard-intake/internal/errors"
	"github.com/unclebandit/smsleopard-intake/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseContactsCSV turns an uploaded CSV into contacts. The first row names the
// fields; names and values are trimmed. Rows without a phone are dropped and
// admitted rows get the default name and company.
func ParseContactsCSV(data []byte) ([]model.Contact, error) {
	if !utf8.Valid(data) {
		return nil, appErrors.NewCSVParse(errors.New("file is not valid UTF-8"))
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []model.Contact{}, nil
	}
	if err != nil {
		return nil, appErrors.NewCSVParse(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	contacts := []model.Contact{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErrors.NewCSVParse(err)
		}

		contact := make(model.Contact, len(header))
		for i, value := range record {
			if i >= len(header) {
				break
			}
			contact[header[i]] = strings.TrimSpace(value)
		}
		if _, ok := contact.Phone(); !ok {
			continue
		}
		contacts = append(contacts, contact.WithDefaults())
	}
	return contacts, nil
}
