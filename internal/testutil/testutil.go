package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
)

// CreateTestElection creates a test election with default values
func CreateTestElection(t *testing.T) domain.Election {
	t.Helper()
	start := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	return domain.Election{
		ID:               "election-" + uuid.New().String()[:8],
		Name:             "Test Election",
		StartTime:        start,
		EndTime:          start.Add(12 * time.Hour),
		Status:           domain.ElectionActive,
		RegisteredVoters: 10000,
	}
}

// CreateTestConstituency creates a test constituency bound to an election
func CreateTestConstituency(t *testing.T, electionID string) domain.Constituency {
	t.Helper()
	return domain.Constituency{
		ID:               "KT1Test" + uuid.New().String()[:8],
		ElectionID:       electionID,
		Name:             "Test Constituency",
		Region:           "TestRegion",
		RegisteredVoters: 1000,
	}
}

// CreateTestTransaction creates a test transaction with default values
func CreateTestTransaction(t *testing.T, constituencyID string) domain.Transaction {
	t.Helper()
	return domain.Transaction{
		TxID:           uuid.New().String(),
		ConstituencyID: constituencyID,
		BlockHeight:    100,
		Timestamp:      time.Date(2026, 8, 20, 8, 15, 0, 0, time.UTC),
		Type:           domain.TransactionVote,
		RawData:        domain.DataMap{"signature": "sig-" + uuid.New().String()[:8]},
		OperationData:  domain.DataMap{},
		Status:         "processed",
		Source:         domain.SourceUpload,
	}
}

// CreateTestTransactions creates multiple test transactions spaced one hour apart
func CreateTestTransactions(t *testing.T, constituencyID string, count int) []domain.Transaction {
	t.Helper()
	txs := make([]domain.Transaction, count)
	for i := 0; i < count; i++ {
		txs[i] = CreateTestTransaction(t, constituencyID)
		txs[i].BlockHeight = int64(100 + i)
		txs[i].Timestamp = txs[i].Timestamp.Add(time.Duration(i) * time.Hour)
		if i%2 == 0 {
			txs[i].Type = domain.TransactionBlindSigIssue
		}
	}
	return txs
}

// AssertTransactionsEqual asserts that two transactions carry the same chain data
func AssertTransactionsEqual(t *testing.T, expected, actual domain.Transaction) {
	t.Helper()
	require.Equal(t, expected.TxID, actual.TxID)
	require.Equal(t, expected.ConstituencyID, actual.ConstituencyID)
	require.Equal(t, expected.BlockHeight, actual.BlockHeight)
	require.Equal(t, expected.Type, actual.Type)
	require.True(t, expected.Timestamp.Equal(actual.Timestamp))
}

// ValidateContractAddress validates if a string looks like a voting contract address
func ValidateContractAddress(address string) bool {
	if len(address) < 10 {
		return false
	}
	return address[:3] == "KT1"
}

// ExportFilename builds an export filename for the given constituency and hour window
func ExportFilename(constituencyID string, date time.Time, fromHour, toHour int) string {
	return fmt.Sprintf("%s_%s_%02d00-%02d00.csv",
		constituencyID, date.Format("2006-01-02"), fromHour, toHour)
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met within timeout of %v", timeout)
}

// TestContext creates a test context with timeout
func TestContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 30*time.Second)
}
