package services

import (
	"context"
	"testing"

	"step-challenge-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestCreateWithdrawalRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, "u1", 100)

	_, err := f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 0, Address: "0xabc"})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: -5, Address: "0xabc"})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 101, Address: "0xabc"})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 10, Address: " "})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	req, err := f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 100, Address: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, req.Status)
	assert.Equal(t, int64(100), f.account(t, "u1").CoinBalance, "balance is not debited on request")

	_, err = f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 1, Address: "0xabc"})
	assert.ErrorIs(t, err, ErrPendingWithdrawal)
}

func TestSettleWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, "u1", 100)

	req, err := f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 40, Address: "0xabc"})
	require.NoError(t, err)

	approved, err := f.Withdrawals.Settle(ctx, req.ID, SettleInput{Status: models.WithdrawalApproved, Remarks: strp("looks fine")})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalApproved, approved.Status)
	assert.Equal(t, "looks fine", approved.Remarks)
	assert.Equal(t, int64(100), f.account(t, "u1").CoinBalance)

	paid, err := f.Withdrawals.Settle(ctx, req.ID, SettleInput{Status: models.WithdrawalPaid, TxID: strp("tx-1")})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPaid, paid.Status)
	assert.Equal(t, "tx-1", paid.TxID)
	assert.Equal(t, "looks fine", paid.Remarks)
	require.NotNil(t, paid.ProcessedAt)
	assert.Equal(t, int64(60), f.account(t, "u1").CoinBalance)

	_, err = f.Withdrawals.Settle(ctx, req.ID, SettleInput{Status: models.WithdrawalPaid})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = f.Withdrawals.Settle(ctx, req.ID, SettleInput{Status: models.WithdrawalRejected})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, int64(60), f.account(t, "u1").CoinBalance, "paid exactly once")
}

func TestSettlePaidRechecksBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, "u1", 50)

	req, err := f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 50, Address: "0xabc"})
	require.NoError(t, err)

	f.setBalance(t, "u1", 20)
	_, err = f.Withdrawals.Settle(ctx, req.ID, SettleInput{Status: models.WithdrawalPaid})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	var stored models.WithdrawalRequest
	require.NoError(t, f.DB.Where("id = ?", req.ID).First(&stored).Error)
	assert.Equal(t, models.WithdrawalPending, stored.Status)
	assert.Equal(t, int64(20), f.account(t, "u1").CoinBalance)
}

func TestSettleRejectsUnknownAndInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, "u1", 50)
	req, err := f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 10, Address: "0xabc"})
	require.NoError(t, err)

	_, err = f.Withdrawals.Settle(ctx, "not-a-uuid", SettleInput{Status: models.WithdrawalPaid})
	assert.ErrorIs(t, err, ErrWithdrawalNotFound)
	_, err = f.Withdrawals.Settle(ctx, "9b6f3c1a-0000-4000-8000-000000000000", SettleInput{Status: models.WithdrawalPaid})
	assert.ErrorIs(t, err, ErrWithdrawalNotFound)

	var verr *ValidationError
	_, err = f.Withdrawals.Settle(ctx, req.ID, SettleInput{Status: models.WithdrawalPending})
	assert.ErrorAs(t, err, &verr)
	_, err = f.Withdrawals.Settle(ctx, req.ID, SettleInput{Status: "Cancelled"})
	assert.ErrorAs(t, err, &verr)
}

func TestRejectedRequestFreesPendingSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, "u1", 30)

	req, err := f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 30, Address: "0xabc"})
	require.NoError(t, err)
	_, err = f.Withdrawals.Settle(ctx, req.ID, SettleInput{Status: models.WithdrawalRejected, Remarks: strp("bad address")})
	require.NoError(t, err)

	_, err = f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 30, Address: "0xdef"})
	require.NoError(t, err)

	mine, err := f.Withdrawals.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "0xdef", mine[0].Address)
	assert.Equal(t, models.WithdrawalRejected, mine[1].Status)
}

func TestListAllWithdrawals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, "u1", 30)
	f.setBalance(t, "u2", 30)
	require.NoError(t, f.DB.Model(&models.Account{}).Where("id = ?", "u1").
		Updates(map[string]interface{}{"first_name": "Ada", "last_name": "Lovelace"}).Error)

	r1, err := f.Withdrawals.Create(ctx, "u1", WithdrawalInput{Amount: 10, Address: "a"})
	require.NoError(t, err)
	_, err = f.Withdrawals.Create(ctx, "u2", WithdrawalInput{Amount: 10, Address: "b"})
	require.NoError(t, err)
	_, err = f.Withdrawals.Settle(ctx, r1.ID, SettleInput{Status: models.WithdrawalApproved})
	require.NoError(t, err)

	all, err := f.Withdrawals.ListAll(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "u2", all[0].UserID)

	approved, err := f.Withdrawals.ListAll(ctx, "Approved")
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "Ada", approved[0].FirstName)
	assert.Equal(t, "Lovelace", approved[0].LastName)
	assert.Equal(t, int64(10), approved[0].Amount)

	_, err = f.Withdrawals.ListAll(ctx, "Lost")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
