package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/smsleopard-intake/internal/db"
	appErrors "github.com/unclebandit/smsleopard-intake/internal/errors"
	"github.com/unclebandit/smsleopard-intake/internal/logger"
	"github.com/unclebandit/smsleopard-intake/internal/model"
	"github.com/unclebandit/smsleopard-intake/internal/queue"
	"github.com/unclebandit/smsleopard-intake/internal/repository"
	"github.com/unclebandit/smsleopard-intake/internal/service"
)

const validPhone = "+14155552671"

func newIngest(store service.OutcomeStore) *service.IngestService {
	return service.NewIngestService(store, service.NewPhoneValidator(), nil, "", logger.Discard())
}

func TestProcessBatchMixedContacts(t *testing.T) {
	store := NewMockOutcomeStore()
	svc := newIngest(store)

	result, err := svc.ProcessBatch(context.Background(), []model.Contact{
		{"phone": validPhone, "name": "Ann"},
		{"name": "Bob"},
		{"phone": "abc", "name": "Cy"},
	}, "Hi {name}")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 3, result.TotalContacts)
	assert.Equal(t, 0, result.SkippedDuplicates)
	assert.NotEmpty(t, result.BatchID)

	rows := store.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, model.MessageOutcome{ID: 1, Destination: validPhone, Message: "Hi Ann", Status: model.StatusSuccess}, rows[0])
	assert.Equal(t, model.MessageOutcome{ID: 2, Destination: "N/A", Message: "Hi Bob", Status: model.StatusFailed, ErrorMessage: "Missing phone number"}, rows[1])
	assert.Equal(t, "abc", rows[2].Destination)
	assert.Equal(t, model.StatusFailed, rows[2].Status)
	assert.NotEmpty(t, rows[2].ErrorMessage)
	assert.NotEqual(t, "Invalid phone number", rows[2].ErrorMessage)
}

func TestProcessBatchEmptyPhoneIsMissing(t *testing.T) {
	store := NewMockOutcomeStore()
	_, err := newIngest(store).ProcessBatch(context.Background(), []model.Contact{{"phone": ""}}, "Hello")
	require.NoError(t, err)

	rows := store.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "N/A", rows[0].Destination)
	assert.Equal(t, "Missing phone number", rows[0].ErrorMessage)
}

func TestProcessBatchInvalidNumber(t *testing.T) {
	store := NewMockOutcomeStore()
	result, err := newIngest(store).ProcessBatch(context.Background(), []model.Contact{{"phone": "+12000000000"}}, "Hello")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	rows := store.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "+12000000000", rows[0].Destination)
	assert.Equal(t, "Invalid phone number", rows[0].ErrorMessage)
}

func TestProcessBatchBindingFailureIsolatedToContact(t *testing.T) {
	store := NewMockOutcomeStore()
	result, err := newIngest(store).ProcessBatch(context.Background(), []model.Contact{
		{"phone": validPhone, "name": "Ann", "zip": "00100"},
		{"phone": "+447911123456", "name": "Bob"},
		{"name": "Cy"},
	}, "Hi {name} at {zip}")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 3, result.TotalContacts)

	rows := store.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "Hi Ann at 00100", rows[0].Message)

	// binding failures keep the raw phone and the unsubstituted template
	assert.Equal(t, "+447911123456", rows[1].Destination)
	assert.Equal(t, "Hi {name} at {zip}", rows[1].Message)
	assert.Equal(t, `missing template field "zip"`, rows[1].ErrorMessage)

	assert.Equal(t, "N/A", rows[2].Destination)
	assert.Equal(t, `missing template field "zip"`, rows[2].ErrorMessage)
}

func TestProcessBatchDeduplicates(t *testing.T) {
	store := NewMockOutcomeStore()
	svc := newIngest(store)
	ctx := context.Background()
	contacts := []model.Contact{
		{"phone": validPhone, "name": "Ann"},
		{"phone": validPhone, "name": "Ann"},
		{"name": "Bob"},
	}

	first, err := svc.ProcessBatch(ctx, contacts, "Hi {name}")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 2, first.TotalContacts)
	assert.Equal(t, 1, first.SkippedDuplicates)

	second, err := svc.ProcessBatch(ctx, contacts, "Hi {name}")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, 0, second.TotalContacts)
	assert.Equal(t, 3, second.SkippedDuplicates)

	assert.Len(t, store.Rows(), 2)
}

func TestProcessBatchMessageTooLong(t *testing.T) {
	store := NewMockOutcomeStore()
	long := strings.Repeat("é", 201)
	result, err := newIngest(store).ProcessBatch(context.Background(), []model.Contact{{"phone": validPhone, "body": long}}, "{body}")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	rows := store.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Message exceeds 200 characters", rows[0].ErrorMessage)
	assert.Equal(t, 200, utf8.RuneCountInString(rows[0].Message))
	assert.True(t, strings.HasPrefix(rows[0].Message, strings.Repeat("é", 191)+"#"), rows[0].Message)
}

func TestProcessBatchLongMessagesSharingPrefixAreDistinct(t *testing.T) {
	store := NewMockOutcomeStore()
	template := strings.Repeat("x", 210) + "{tail}"

	result, err := newIngest(store).ProcessBatch(context.Background(), []model.Contact{
		{"phone": validPhone, "tail": "A"},
		{"phone": validPhone, "tail": "B"},
		{"phone": validPhone, "tail": "A"},
	}, template)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, result.TotalContacts)
	assert.Equal(t, 1, result.SkippedDuplicates)

	rows := store.Rows()
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].Message, rows[1].Message)
	for _, row := range rows {
		assert.Equal(t, 200, utf8.RuneCountInString(row.Message))
		assert.Equal(t, "Message exceeds 200 characters", row.ErrorMessage)
	}
}

func TestProcessBatchStoreFailures(t *testing.T) {
	cause := errors.New("disk I/O error")
	contacts := []model.Contact{{"phone": validPhone}}

	for name, configure := range map[string]func(*MockOutcomeStore){
		"begin":  func(s *MockOutcomeStore) { s.BeginErr = cause },
		"insert": func(s *MockOutcomeStore) { s.InsertErr = cause },
		"commit": func(s *MockOutcomeStore) { s.CommitErr = cause },
	} {
		t.Run(name, func(t *testing.T) {
			store := NewMockOutcomeStore()
			configure(store)

			result, err := newIngest(store).ProcessBatch(context.Background(), contacts, "Hello")
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, appErrors.IsStoreFailure(err))
			assert.ErrorIs(t, err, cause)
			assert.Empty(t, store.Rows())
		})
	}
}

func TestProcessCSVMatchesJSONPath(t *testing.T) {
	csvStore := NewMockOutcomeStore()
	jsonStore := NewMockOutcomeStore()
	template := "Hi {name} from {company}"
	ctx := context.Background()

	csvResult, err := newIngest(csvStore).ProcessCSV(ctx, []byte("phone,name\n+14155552671,\n,Skipped\nabc,Cy\n"), template)
	require.NoError(t, err)
	assert.Equal(t, 1, csvResult.Processed)
	assert.Equal(t, 1, csvResult.Failed)
	assert.Equal(t, 2, csvResult.TotalContacts)

	jsonResult, err := newIngest(jsonStore).ProcessBatch(ctx, []model.Contact{
		{"phone": "+14155552671", "name": "Customer", "company": "N/A"},
		{"phone": "abc", "name": "Cy", "company": "N/A"},
	}, template)
	require.NoError(t, err)

	assert.Equal(t, jsonResult.Processed, csvResult.Processed)
	assert.Equal(t, jsonResult.Failed, csvResult.Failed)
	assert.Equal(t, jsonStore.Rows(), csvStore.Rows())
	assert.Equal(t, "Hi Customer from N/A", csvStore.Rows()[0].Message)
}

func TestProcessCSVRejectsInput(t *testing.T) {
	svc := newIngest(NewMockOutcomeStore())

	_, err := svc.ProcessCSV(context.Background(), []byte("phone,name\n,Ann\n"), "Hi")
	assert.ErrorIs(t, err, appErrors.ErrNoContacts)

	_, err = svc.ProcessCSV(context.Background(), []byte("phone\n\"unterminated\n"), "Hi")
	var parseErr *appErrors.CSVParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestProcessBatchPublishesEvent(t *testing.T) {
	q := queue.NewInMemoryQueue(logger.Discard())
	var (
		mu     sync.Mutex
		events []model.BatchRecorded
	)
	require.NoError(t, q.Subscribe("message_outcomes", func(payload any) error {
		evt, err := queue.DecodeBatchRecorded(payload)
		if err != nil {
			return err
		}
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
		return nil
	}))

	svc := service.NewIngestService(NewMockOutcomeStore(), service.NewPhoneValidator(), q, "message_outcomes", logger.Discard())
	result, err := svc.ProcessBatch(context.Background(), []model.Contact{{"phone": validPhone}, {"phone": validPhone}}, "Hello")
	require.NoError(t, err)
	q.Wait()

	require.Len(t, events, 1)
	assert.Equal(t, result.BatchID, events[0].BatchID)
	assert.Equal(t, model.SourceJSON, events[0].Source)
	assert.Equal(t, 1, events[0].Processed)
	assert.Equal(t, 1, events[0].SkippedDuplicates)
	assert.WithinDuration(t, time.Now(), events[0].RecordedAt, time.Minute)
}

func TestProcessBatchIgnoresPublishFailure(t *testing.T) {
	// no subscribers: Publish fails, the batch still stands
	q := queue.NewInMemoryQueue(logger.Discard())
	store := NewMockOutcomeStore()
	svc := service.NewIngestService(store, service.NewPhoneValidator(), q, "message_outcomes", logger.Discard())

	result, err := svc.ProcessBatch(context.Background(), []model.Contact{{"phone": validPhone}}, "Hello")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Len(t, store.Rows(), 1)
}

func TestProcessBatchAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	conn, dialect, err := db.Open(ctx, filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn, dialect))
	repo := repository.NewOutcomeRepository(conn, dialect)
	svc := newIngest(repo)

	contacts := []model.Contact{
		{"phone": validPhone, "name": "Ann"},
		{"name": "Bob"},
		{"phone": "abc", "name": "Cy"},
	}

	var wg sync.WaitGroup
	results := make([]*service.BatchResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.ProcessBatch(ctx, contacts, "Hi {name}")
			if assert.NoError(t, err) {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		require.NotNil(t, r)
		total += r.TotalContacts
	}
	assert.Equal(t, 3, total, "exactly one batch records each pair")

	rows, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []model.Status{model.StatusSuccess, model.StatusFailed, model.StatusFailed},
		[]model.Status{rows[0].Status, rows[1].Status, rows[2].Status})
}
