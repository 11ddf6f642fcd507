// internal/service/ingest_service.go
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appErrors "github.com/unclebandit/smsleopard-intake/internal/errors"
	"github.com/unclebandit/smsleopard-intake/internal/model"
	"github.com/unclebandit/smsleopard-intake/internal/queue"
	"github.com/unclebandit/smsleopard-intake/internal/repository"
)

// OutcomeStore is the slice of the repository the pipeline writes through.
type OutcomeStore interface {
	BeginBatch(ctx context.Context) (repository.OutcomeBatch, error)
}

// IngestService renders, validates, deduplicates and records contact batches.
type IngestService struct {
	Store     OutcomeStore
	Validator PhoneValidator
	// Queue and Topic are optional; when set, a BatchRecorded event is
	// published after every commit.
	Queue  queue.Queue
	Topic  string
	Logger *slog.Logger

	tracer trace.Tracer
	now    func() time.Time
}

// BatchResult summarises one committed batch. Duplicates are reported on
// their own and are not part of TotalContacts.
type BatchResult struct {
	BatchID           string `json:"batch_id"`
	Processed         int    `json:"processed"`
	Failed            int    `json:"failed"`
	SkippedDuplicates int    `json:"skipped_duplicates"`
	TotalContacts     int    `json:"total_contacts"`
}

func NewIngestService(store OutcomeStore, validator PhoneValidator, q queue.Queue, topic string, logger *slog.Logger) *IngestService {
	return &IngestService{
		Store:     store,
		Validator: validator,
		Queue:     q,
		Topic:     topic,
		Logger:    logger.With("layer", "service", "component", "ingestService"),
		tracer:    otel.Tracer("ingest-service"),
		now:       time.Now,
	}
}

// ProcessCSV normalizes an uploaded CSV and runs the admitted contacts
// through the pipeline.
func (s *IngestService) ProcessCSV(ctx context.Context, data []byte, template string) (*BatchResult, error) {
	contacts, err := ParseContactsCSV(data)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, appErrors.ErrNoContacts
	}
	return s.process(ctx, model.SourceCSV, contacts, template)
}

// ProcessBatch runs JSON-submitted contacts through the pipeline as given.
func (s *IngestService) ProcessBatch(ctx context.Context, contacts []model.Contact, template string) (*BatchResult, error) {
	return s.process(ctx, model.SourceJSON, contacts, template)
}

func (s *IngestService) process(ctx context.Context, source model.BatchSource, contacts []model.Contact, template string) (*BatchResult, error) {
	ctx, span := s.startSpan(ctx, "ProcessBatch")
	defer span.End()

	result := &BatchResult{BatchID: uuid.NewString()}
	log := s.Logger.With(slog.String("batch_id", result.BatchID), slog.String("source", string(source)))
	span.SetAttributes(
		attribute.String("batch.id", result.BatchID),
		attribute.String("batch.source", string(source)),
		attribute.Int("batch.contacts", len(contacts)),
	)

	batch, err := s.Store.BeginBatch(ctx)
	if err != nil {
		return nil, s.storeFailure(span, log, "begin", err)
	}
	defer batch.Rollback()

	for i, contact := range contacts {
		outcome := s.Evaluate(contact, template)

		inserted, err := batch.TryInsert(ctx, outcome)
		if err != nil {
			return nil, s.storeFailure(span, log, "insert", err)
		}
		if !inserted {
			result.SkippedDuplicates++
			log.Debug("Duplicate contact skipped", slog.Int("index", i))
			continue
		}

		result.TotalContacts++
		if outcome.Status == model.StatusSuccess {
			result.Processed++
		} else {
			result.Failed++
			log.Debug("Contact failed", slog.Int("index", i), slog.String("reason", outcome.ErrorMessage))
		}
	}

	if err := batch.Commit(); err != nil {
		return nil, s.storeFailure(span, log, "commit", err)
	}

	span.SetAttributes(
		attribute.Int("batch.processed", result.Processed),
		attribute.Int("batch.failed", result.Failed),
		attribute.Int("batch.skipped", result.SkippedDuplicates),
	)
	log.Info("Batch recorded",
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
		slog.Int("skipped_duplicates", result.SkippedDuplicates),
		slog.Int("total_contacts", result.TotalContacts))

	s.publish(log, source, result)
	return result, nil
}

// Evaluate decides the outcome for one contact without touching the store.
// The first matching rule wins: rendering failure, oversize message, missing
// phone, invalid phone, success.
func (s *IngestService) Evaluate(contact model.Contact, template string) *model.MessageOutcome {
	phone, hasPhone := contact.Phone()
	destination := phone
	if !hasPhone {
		destination = model.MissingDestination
	}

	message, err := RenderTemplate(template, contact)
	if err != nil {
		return failed(destination, template, err.Error())
	}
	if utf8.RuneCountInString(message) > model.MaxMessageLength {
		return failed(destination, message, model.ReasonMessageTooLong)
	}

	if !hasPhone {
		return failed(model.MissingDestination, message, model.ReasonMissingPhone)
	}
	if err := s.Validator.Validate(phone); err != nil {
		return failed(phone, message, err.Error())
	}
	return &model.MessageOutcome{Destination: phone, Message: message, Status: model.StatusSuccess}
}

func failed(destination, message, reason string) *model.MessageOutcome {
	return &model.MessageOutcome{
		Destination:  destination,
		Message:      fitMessage(message),
		Status:       model.StatusFailed,
		ErrorMessage: truncateRunes(reason, model.MaxErrorMessageLength),
	}
}

// digestLength is the hex digest appended to a shortened message, plus its separator.
const digestLength = 9

// fitMessage shortens text over the column limit and appends a digest of the
// full text, so two long messages that share a prefix keep distinct dedup keys.
func fitMessage(message string) string {
	if utf8.RuneCountInString(message) <= model.MaxMessageLength {
		return message
	}
	sum := sha256.Sum256([]byte(message))
	return truncateRunes(message, model.MaxMessageLength-digestLength) + "#" + hex.EncodeToString(sum[:4])
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func (s *IngestService) publish(log *slog.Logger, source model.BatchSource, result *BatchResult) {
	if s.Queue == nil || s.Topic == "" {
		return
	}
	evt := model.BatchRecorded{
		BatchID:           result.BatchID,
		Source:            source,
		Processed:         result.Processed,
		Failed:            result.Failed,
		SkippedDuplicates: result.SkippedDuplicates,
		TotalContacts:     result.TotalContacts,
		RecordedAt:        s.clock().UTC(),
	}
	if err := s.Queue.Publish(s.Topic, evt); err != nil {
		log.Warn("Failed to publish batch event", slog.Any("error", err))
	}
}

func (s *IngestService) storeFailure(span trace.Span, log *slog.Logger, op string, err error) error {
	wrapped := appErrors.NewStoreFailure(op, err)
	span.RecordError(wrapped)
	span.SetStatus(codes.Error, wrapped.Error())
	log.Error("Batch aborted", slog.String("op", op), slog.Any("error", err))
	return wrapped
}

func (s *IngestService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := s.tracer
	if tracer == nil {
		tracer = otel.Tracer("ingest-service")
	}
	return tracer.Start(ctx, name)
}

func (s *IngestService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
