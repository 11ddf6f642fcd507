package model

import "time"

type BatchSource string

const (
	SourceJSON BatchSource = "json"
	SourceCSV  BatchSource = "csv"
)

// BatchRecorded is published once a batch has been committed.
type BatchRecorded struct {
	BatchID           string      `json:"batch_id"`
	Source            BatchSource `json:"source"`
	Processed         int         `json:"processed"`
	Failed            int         `json:"failed"`
	SkippedDuplicates int         `json:"skipped_duplicates"`
	TotalContacts     int         `json:"total_contacts"`
	RecordedAt        time.Time   `json:"recorded_at"`
}
