package domain

import (
	"time"
)

// ElectionStatus transitions are driven by administrative tooling outside
// this service; the core only reads them.
type ElectionStatus string

const (
	ElectionUpcoming  ElectionStatus = "upcoming"
	ElectionActive    ElectionStatus = "active"
	ElectionCompleted ElectionStatus = "completed"
)

type TransactionType string

const (
	TransactionBlindSigIssue TransactionType = "blindSigIssue"
	TransactionVote          TransactionType = "vote"
)

type TransactionSource string

const (
	SourceUpload TransactionSource = "upload"
	SourceBatch  TransactionSource = "batch"
	SourceWatch  TransactionSource = "watch"
)

type Election struct {
	ID                string         `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	StartTime         time.Time      `json:"start_time" db:"start_time"`
	EndTime           time.Time      `json:"end_time" db:"end_time"`
	Status            ElectionStatus `json:"status" db:"status"`
	RegisteredVoters  int64          `json:"registered_voters" db:"registered_voters"`
	BulletinsIssued   int64          `json:"bulletins_issued" db:"bulletins_issued"`
	VotesCast         int64          `json:"votes_cast" db:"votes_cast"`
	ParticipationRate float64        `json:"participation_rate" db:"participation_rate"`
	UpdatedAt         time.Time      `json:"-" db:"updated_at"`
}

// Constituency identifiers are smart contract addresses and assumed
// globally unique. Cumulative fields are written exclusively by the
// metrics calculator; Version backs its optimistic concurrency check.
type Constituency struct {
	ID                string    `json:"id" db:"id"`
	ElectionID        string    `json:"election_id" db:"election_id"`
	Name              string    `json:"name" db:"name"`
	Region            string    `json:"region" db:"region"`
	RegisteredVoters  int64     `json:"registered_voters" db:"registered_voters"`
	BulletinsIssued   int64     `json:"bulletins_issued" db:"bulletins_issued"`
	VotesCast         int64     `json:"votes_cast" db:"votes_cast"`
	ParticipationRate float64   `json:"participation_rate" db:"participation_rate"`
	AnomalyScore      float64   `json:"anomaly_score" db:"anomaly_score"`
	AnomalyCount      int64     `json:"anomaly_count" db:"anomaly_count"`
	LastActivity      time.Time `json:"last_activity" db:"last_activity"`
	Version           int64     `json:"-" db:"version"`
}

// DataMap holds the free-form nested payloads carried by chain
// transactions. No schema is enforced beyond "is a mapping"; consumers
// extract known keys defensively.
type DataMap map[string]any

// String returns the value for key if present and a string.
func (m DataMap) String(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

type Transaction struct {
	ID             string            `json:"-" db:"id"`
	TxID           string            `json:"tx_id" db:"tx_id"`
	ConstituencyID string            `json:"constituency_id" db:"constituency_id"`
	BlockHeight    int64             `json:"block_height" db:"block_height"`
	Timestamp      time.Time         `json:"timestamp" db:"timestamp"`
	Type           TransactionType   `json:"type" db:"type"`
	RawData        DataMap           `json:"raw_data" db:"raw_data"`
	OperationData  DataMap           `json:"operation_data" db:"operation_data"`
	Status         string            `json:"status" db:"status"`
	Source         TransactionSource `json:"source" db:"source"`
	Anomaly        bool              `json:"anomaly" db:"anomaly"`
	CreatedAt      time.Time         `json:"-" db:"created_at"`
}

// HourlyStat is keyed by (constituency, election, hour-aligned timestamp);
// re-aggregation upserts the row rather than appending.
type HourlyStat struct {
	ConstituencyID    string    `json:"constituency_id" db:"constituency_id"`
	ElectionID        string    `json:"election_id" db:"election_id"`
	Hour              time.Time `json:"hour" db:"hour"`
	BulletinsIssued   int64     `json:"bulletins_issued" db:"bulletins_issued"`
	VotesCast         int64     `json:"votes_cast" db:"votes_cast"`
	TransactionCount  int64     `json:"transaction_count" db:"transaction_count"`
	BulletinVelocity  float64   `json:"bulletin_velocity" db:"bulletin_velocity"`
	VoteVelocity      float64   `json:"vote_velocity" db:"vote_velocity"`
	ParticipationRate float64   `json:"participation_rate" db:"participation_rate"`
	AnomalyCount      int64     `json:"anomaly_count" db:"anomaly_count"`
	UpdatedAt         time.Time `json:"-" db:"updated_at"`
}

// FileMetadata is extracted from an export's filename and, when present,
// the Region/Election/ConstituencyName/ConstituencyId directory hierarchy.
type FileMetadata struct {
	ConstituencyID   string    `json:"constituency_id"`
	Date             time.Time `json:"date"`
	HourRange        string    `json:"hour_range"`
	Region           string    `json:"region,omitempty"`
	ElectionName     string    `json:"election_name,omitempty"`
	ConstituencyName string    `json:"constituency_name,omitempty"`
	Filename         string    `json:"filename"`
	Source           TransactionSource `json:"-"`
}

// RawTransaction is one parsed CSV row before validation.
type RawTransaction struct {
	TxID          string
	BlockHeight   int64
	Timestamp     time.Time
	Type          TransactionType
	RawData       DataMap
	OperationData DataMap
}

type RejectedTransaction struct {
	Index  int    `json:"index"`
	TxID   string `json:"tx_id,omitempty"`
	Reason string `json:"reason"`
}

// BatchResult reports per-item outcomes for one batch: every input row is
// exactly one of persisted, skipped-duplicate, or rejected-invalid.
type BatchResult struct {
	Persisted int                   `json:"persisted"`
	Skipped   int                   `json:"skipped"`
	Rejected  []RejectedTransaction `json:"rejected"`
}

func (r BatchResult) Total() int {
	return r.Persisted + r.Skipped + len(r.Rejected)
}

type ProcessingResult struct {
	Filename              string                `json:"filename"`
	ConstituencyID        string                `json:"constituency_id"`
	Date                  string                `json:"date"`
	HourRange             string                `json:"hour_range"`
	TransactionsProcessed int                   `json:"transactions_processed"`
	DuplicatesSkipped     int                   `json:"duplicates_skipped"`
	RowsSkipped           int                   `json:"rows_skipped"`
	Rejected              []RejectedTransaction `json:"rejected,omitempty"`
}

type FileFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type DirectoryProcessingResult struct {
	FilesProcessed        int           `json:"files_processed"`
	TransactionsProcessed int           `json:"transactions_processed"`
	DuplicatesSkipped     int           `json:"duplicates_skipped"`
	Failures              []FileFailure `json:"failures,omitempty"`
}

type TriggerKind string

const (
	TriggerNewTransaction TriggerKind = "new-transaction"
	TriggerScheduled      TriggerKind = "scheduled"
	TriggerManual         TriggerKind = "manual"
)

// UpdateTask asks the scheduler to re-aggregate and recalculate metrics
// for one constituency. Tasks live only in the queue; they are discarded
// after success or moved to the dead task log after retries are exhausted.
type UpdateTask struct {
	ID             string      `json:"id"`
	Trigger        TriggerKind `json:"trigger"`
	ConstituencyID string      `json:"constituency_id"`
	ElectionID     string      `json:"election_id"`
	// WindowFrom/WindowTo bound the hours to re-aggregate. Zero values
	// mean no explicit window; the executor falls back to a trailing one.
	WindowFrom time.Time `json:"window_from"`
	WindowTo   time.Time `json:"window_to"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}

type DeadTask struct {
	Task     UpdateTask `json:"task"`
	Error    string     `json:"error"`
	FailedAt time.Time  `json:"failed_at"`
}

type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Duration returns the bucket width. Months are approximated at 30 days;
// bucket alignment truncates to the width in UTC.
func (g Granularity) Duration() time.Duration {
	switch g {
	case GranularityDay:
		return 24 * time.Hour
	case GranularityWeek:
		return 7 * 24 * time.Hour
	case GranularityMonth:
		return 30 * 24 * time.Hour
	default:
		return time.Hour
	}
}

func ParseGranularity(s string) (Granularity, bool) {
	switch Granularity(s) {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth:
		return Granularity(s), true
	case "":
		return GranularityHour, true
	}
	return "", false
}

type MetricsBucket struct {
	Start            time.Time `json:"start"`
	BulletinsIssued  int64     `json:"bulletins_issued"`
	VotesCast        int64     `json:"votes_cast"`
	TransactionCount int64     `json:"transaction_count"`
	AnomalyCount     int64     `json:"anomaly_count"`
}

type ConstituencyMetrics struct {
	ConstituencyID    string          `json:"constituency_id"`
	ElectionID        string          `json:"election_id"`
	BulletinsIssued   int64           `json:"bulletins_issued"`
	VotesCast         int64           `json:"votes_cast"`
	RegisteredVoters  int64           `json:"registered_voters"`
	ParticipationRate float64         `json:"participation_rate"`
	AnomalyScore      float64         `json:"anomaly_score"`
	AnomalyCount      int64           `json:"anomaly_count"`
	Granularity       Granularity     `json:"granularity"`
	Buckets           []MetricsBucket `json:"buckets"`
}
