// internal/controller/message_controller.go
package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	appErrors "github.com/unclebandit/smsleopard-intake/internal/errors"
	"github.com/unclebandit/smsleopard-intake/internal/model"
	"github.com/unclebandit/smsleopard-intake/internal/service"
)

const acceptedMessage = "Messages are being processed."

type MessageController struct {
	IngestService  *service.IngestService
	MaxUploadBytes int64
	Logger         *slog.Logger
}

func NewMessageController(ingest *service.IngestService, maxUploadBytes int64, logger *slog.Logger) *MessageController {
	return &MessageController{
		IngestService:  ingest,
		MaxUploadBytes: maxUploadBytes,
		Logger:         logger.With("layer", "controller", "component", "messageController"),
	}
}

type submitResponse struct {
	Message string `json:"message"`
	*service.BatchResult
}

// SubmitMessages accepts {"contacts": [...], "message": "..."}.
func (c *MessageController) SubmitMessages(w http.ResponseWriter, r *http.Request) {
	contacts, template, err := decodeSubmission(r.Body)
	if err != nil {
		c.writeError(w, err)
		return
	}

	result, err := c.IngestService.ProcessBatch(r.Context(), contacts, template)
	if err != nil {
		c.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, submitResponse{Message: acceptedMessage, BatchResult: result})
}

// UploadCSV accepts a multipart form with a "file" CSV part and a "message" template.
func (c *MessageController) UploadCSV(w http.ResponseWriter, r *http.Request) {
	if c.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, c.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(c.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			respondError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// a file part sent with an empty filename is parsed as a plain value
		if r.MultipartForm != nil && len(r.MultipartForm.Value["file"]) > 0 {
			respondError(w, http.StatusBadRequest, "No selected file")
			return
		}
		respondError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	template := r.FormValue("message")
	if strings.TrimSpace(template) == "" {
		respondError(w, http.StatusBadRequest, "No message provided")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		respondError(w, http.StatusBadRequest, "File must be a CSV")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.Logger.Error("Failed to read upload", slog.String("filename", header.Filename), slog.Any("error", err))
		respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	result, err := c.IngestService.ProcessCSV(r.Context(), data, template)
	if err != nil {
		c.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, submitResponse{Message: acceptedMessage, BatchResult: result})
}

// Preview renders a template for one contact without persisting anything.
func (c *MessageController) Preview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contact json.RawMessage `json:"contact"`
		Message *string         `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == nil || len(body.Contact) == 0 {
		respondError(w, http.StatusBadRequest, "Invalid data")
		return
	}
	contact, err := decodeContact(body.Contact)
	if err != nil {
		c.writeError(w, err)
		return
	}

	rendered, err := service.RenderTemplate(*body.Message, contact)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"rendered_message": rendered})
}

func (c *MessageController) writeError(w http.ResponseWriter, err error) {
	if appErrors.IsInputError(err) {
		c.Logger.Warn("Rejected batch", slog.Any("error", err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.Logger.Error("Batch failed", slog.Any("error", err))
	respondError(w, http.StatusInternalServerError, "failed to record messages")
}

func decodeSubmission(body io.Reader) ([]model.Contact, string, error) {
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload == nil {
		return nil, "", appErrors.NewInputShape("Invalid data")
	}
	rawContacts, hasContacts := payload["contacts"]
	rawMessage, hasMessage := payload["message"]
	if !hasContacts || !hasMessage {
		return nil, "", appErrors.NewInputShape("Invalid data")
	}

	var template string
	if err := json.Unmarshal(rawMessage, &template); err != nil || firstByte(rawMessage) != '"' {
		return nil, "", appErrors.NewInputShape("Message should be a string")
	}

	var elements []json.RawMessage
	if firstByte(rawContacts) != '[' || json.Unmarshal(rawContacts, &elements) != nil {
		return nil, "", appErrors.NewInputShape("Contacts should be a list")
	}

	contacts := make([]model.Contact, 0, len(elements))
	for i, raw := range elements {
		contact, err := decodeContact(raw)
		if err != nil {
			return nil, "", appErrors.NewInputShape("Contact %d should be an object", i)
		}
		contacts = append(contacts, contact)
	}
	return contacts, template, nil
}

// decodeContact flattens one JSON object into string fields. Strings pass
// through, numbers and booleans keep their literal text, null drops the
// field, nested values become compact JSON.
func decodeContact(raw json.RawMessage) (model.Contact, error) {
	if firstByte(raw) != '{' {
		return nil, appErrors.NewInputShape("Contact should be an object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, appErrors.NewInputShape("Contact should be an object")
	}

	contact := make(model.Contact, len(fields))
	for key, value := range fields {
		switch firstByte(value) {
		case 'n':
			continue
		case '"':
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return nil, appErrors.NewInputShape("Invalid value for %q", key)
			}
			contact[key] = s
		case '{', '[':
			var buf bytes.Buffer
			if err := json.Compact(&buf, value); err != nil {
				return nil, appErrors.NewInputShape("Invalid value for %q", key)
			}
			contact[key] = buf.String()
		default:
			contact[key] = string(bytes.TrimSpace(value))
		}
	}
	return contact, nil
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
