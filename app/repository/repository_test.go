package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/internal/pkg/testutil"
)

func TestTransitionFromPending_ConditionalOnStatus(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()
	txn := testutil.PendingTransaction(t, db, 1, "1.00")

	now := time.Now()
	won, err := repo.TransitionFromPending(ctx, txn.Reference, models.TransactionStatusCompleted, TransitionFields{ExternalReference: "EXT-1", CompletedAt: &now})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.TransitionFromPending(ctx, txn.Reference, models.TransactionStatusFailed, TransitionFields{FailureReason: "late"})
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := repo.GetByReference(ctx, txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, stored.Status)
	assert.Equal(t, "EXT-1", stored.ExternalRef())
	assert.Empty(t, stored.FailureReason)
	assert.NotNil(t, stored.CompletedAt)

	_, err = repo.TransitionFromPending(ctx, txn.Reference, models.TransactionStatusPending, TransitionFields{})
	assert.Error(t, err)
}

func TestSetExternalReference_OnlyWhilePending(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()
	txn := testutil.PendingTransaction(t, db, 1, "1.00")

	require.NoError(t, repo.SetExternalReference(ctx, txn.Reference, "EXT-1"))
	_, err := repo.TransitionFromPending(ctx, txn.Reference, models.TransactionStatusFailed, TransitionFields{})
	require.NoError(t, err)
	require.NoError(t, repo.SetExternalReference(ctx, txn.Reference, "EXT-2"))

	stored, err := repo.GetByReference(ctx, txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, "EXT-1", stored.ExternalRef())
}

func TestListUnderCredited(t *testing.T) {
	db := testutil.NewDB(t)
	txns := NewTransactionRepository(db)
	votes := NewVoteRepository(db)
	ctx := context.Background()

	full := testutil.PendingTransaction(t, db, 1, "1.00")
	short := testutil.PendingTransaction(t, db, 2, "2.00")
	pending := testutil.PendingTransaction(t, db, 2, "2.00")
	for _, txn := range []*models.Transaction{full, short} {
		_, err := txns.TransitionFromPending(ctx, txn.Reference, models.TransactionStatusCompleted, TransitionFields{})
		require.NoError(t, err)
	}

	vote := func(txn *models.Transaction, seq int) models.Vote {
		return models.Vote{
			EventID: 1, CategoryID: 1, NomineeID: 1, VoterPhone: txn.VoterPhone,
			TransactionID: txn.ID, Seq: seq, PaymentReference: txn.Reference,
			Amount: decimal.RequireFromString("1.00"), PaymentStatus: models.TransactionStatusCompleted,
			VotedAt: time.Now(),
		}
	}
	n, err := votes.CreateMissing(ctx, []models.Vote{vote(full, 1), vote(short, 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// same ordinal again is ignored
	n, err = votes.CreateMissing(ctx, []models.Vote{vote(short, 1)})
	require.NoError(t, err)
	assert.Zero(t, n)

	under, err := txns.ListUnderCredited(ctx, 10)
	require.NoError(t, err)
	require.Len(t, under, 1)
	assert.Equal(t, short.ID, under[0].ID)

	stale, err := txns.ListStalePending(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, pending.ID, stale[0].ID)
}

func TestFindSettledByHash(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	first := &models.WebhookEvent{Provider: "payproxy", Reference: "VF-1", PayloadJSON: "{}", PayloadHash: "h1"}
	require.NoError(t, repo.Create(ctx, first))
	assert.Equal(t, models.WebhookOutcomeReceived, first.Outcome)

	second := &models.WebhookEvent{Provider: "payproxy", Reference: "VF-1", PayloadJSON: "{}", PayloadHash: "h1"}
	require.NoError(t, repo.Create(ctx, second))

	prior, err := repo.FindSettledByHash(ctx, "h1", second.ID)
	require.NoError(t, err)
	assert.Nil(t, prior, "a received delivery is not settled")

	require.NoError(t, repo.MarkProcessed(ctx, first.ID, models.WebhookOutcomeApplied, ""))
	prior, err = repo.FindSettledByHash(ctx, "h1", second.ID)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, first.ID, prior.ID)

	prior, err = repo.FindSettledByHash(ctx, "h1", first.ID)
	require.NoError(t, err)
	assert.Nil(t, prior)

	events, err := repo.ListByReference(ctx, "VF-1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.NotNil(t, events[0].ProcessedAt)
}
