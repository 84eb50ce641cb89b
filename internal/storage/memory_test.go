package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txengine/internal/models"
)

func sampleAudit(id uint64, finalizedAt time.Time) *models.OperationAudit {
	return &models.OperationAudit{
		OperationID:    id,
		Submitter:      "GAAZI4TCR3TY5OJHCTJC2A4QSY6CJWJH5IAJTGKIN2ER7LBNVKOCCWN7",
		Network:        "devnet",
		Target:         "contract-a",
		Priority:       "normal",
		FinalState:     "executed",
		ReservedAmount: 50,
		SettledCost:    30,
		ResourceLimit:  10,
		ResourceUsed:   6,
		Denom:          "native",
		SubmittedAt:    finalizedAt.Add(-time.Second),
		FinalizedAt:    finalizedAt,
	}
}

func TestMemoryRepositorySaveAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveOperationAudit(ctx, sampleAudit(1, time.Now())))

	audit, err := repo.GetOperationAudit(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, audit)
	assert.Equal(t, "executed", audit.FinalState)
	assert.Equal(t, int64(30), audit.SettledCost)

	missing, err := repo.GetOperationAudit(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRepositoryFirstWriteWins(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := sampleAudit(1, time.Now())
	require.NoError(t, repo.SaveOperationAudit(ctx, first))

	second := sampleAudit(1, time.Now())
	second.FinalState = "failed"
	require.NoError(t, repo.SaveOperationAudit(ctx, second))

	audit, err := repo.GetOperationAudit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "executed", audit.FinalState)
}

func TestMemoryRepositoryListNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Now()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, repo.SaveOperationAudit(ctx, sampleAudit(i, base.Add(time.Duration(i)*time.Second))))
	}

	all, err := repo.ListOperationAudits(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, uint64(5), all[0].OperationID)
	assert.Equal(t, uint64(1), all[4].OperationID)

	page, err := repo.ListOperationAudits(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(4), page[0].OperationID)
	assert.Equal(t, uint64(3), page[1].OperationID)

	past, err := repo.ListOperationAudits(ctx, 10, 99)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestMemoryRepositorySettlements(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	records := []models.SettlementRecord{
		{OperationID: 1, Payee: "platform-fees", Role: "platform", AmountPaid: 0, Bps: 250, Denom: "native", SettledAt: now},
		{OperationID: 1, Payee: "provider-fees", Role: "provider", AmountPaid: 30, Bps: 0, Denom: "native", SettledAt: now},
	}
	require.NoError(t, repo.SaveSettlements(ctx, records))

	got, err := repo.ListSettlements(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "provider", got[1].Role)
	assert.Equal(t, int64(30), got[1].AmountPaid)

	empty, err := repo.ListSettlements(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
