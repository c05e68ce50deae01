package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
)

// Outcome classifies one candidate transaction. Duplicate is a skip, not
// an error.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeRejected
)

type ValidationResult struct {
	Outcome Outcome
	Reason  string
}

// Validator checks candidate transactions against the store. All lookups
// are read-only; the validator never writes.
type Validator struct {
	constituencies domain.ConstituencyRepository
	transactions   domain.TransactionRepository
}

func NewValidator(constituencies domain.ConstituencyRepository, transactions domain.TransactionRepository) *Validator {
	return &Validator{
		constituencies: constituencies,
		transactions:   transactions,
	}
}

// ValidateConstituency confirms the file's constituency exists before any
// row is processed. A missing constituency fails the whole file.
func (v *Validator) ValidateConstituency(ctx context.Context, constituencyID string) (*domain.Constituency, error) {
	c, err := v.constituencies.GetByID(ctx, constituencyID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConstituencyNotFound, constituencyID)
	}
	return c, nil
}

// Validate yields exactly one outcome per row. Lookup failures are
// returned as errors so the caller can retry the batch rather than
// misclassify rows.
func (v *Validator) Validate(ctx context.Context, row domain.RawTransaction, meta *domain.FileMetadata) (ValidationResult, error) {
	if reason, ok := checkFields(row); !ok {
		return ValidationResult{Outcome: OutcomeRejected, Reason: reason}, nil
	}

	exists, err := v.transactions.Exists(ctx, meta.ConstituencyID, row.TxID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("duplicate lookup: %w", err)
	}
	if exists {
		return ValidationResult{Outcome: OutcomeDuplicate}, nil
	}

	return ValidationResult{Outcome: OutcomeAccepted}, nil
}

func checkFields(row domain.RawTransaction) (string, bool) {
	switch {
	case row.TxID == "":
		return "missing transaction id", false
	case row.BlockHeight <= 0:
		return fmt.Sprintf("invalid block height %d", row.BlockHeight), false
	case row.Timestamp.IsZero():
		return "missing timestamp", false
	case row.Timestamp.After(time.Now().Add(24 * time.Hour)):
		return "timestamp in the future", false
	case row.Type == "":
		return "missing transaction type", false
	case row.RawData == nil:
		return "missing raw data", false
	}
	return "", true
}
