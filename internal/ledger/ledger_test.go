package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice    = "GAAZI4TCR3TY5OJHCTJC2A4QSY6CJWJH5IAJTGKIN2ER7LBNVKOCCWN7"
	provider = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	platform = "GBBD47IF6LWK7P7MDEVSCWR7DPUWV3NY3DTQEVFL4NAT4AQH3ZLLFLA5"
)

func TestDeposit(t *testing.T) {
	l := New(Config{})

	require.NoError(t, l.Deposit(alice, DenomNative, 100))
	assert.Equal(t, int64(100), l.Balance(alice, DenomNative))
	assert.Equal(t, int64(100), l.Available(alice, DenomNative))

	// Deposits accumulate
	require.NoError(t, l.Deposit(alice, DenomNative, 50))
	assert.Equal(t, int64(150), l.Balance(alice, DenomNative))
}

func TestDepositValidation(t *testing.T) {
	l := New(Config{MinDeposit: 10, MaxDeposit: 1000})

	assert.ErrorIs(t, l.Deposit(alice, DenomNative, 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit(alice, DenomNative, -5), ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit(alice, DenomNative, 5), ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit(alice, DenomNative, 5000), ErrInvalidAmount)

	require.NoError(t, l.Deposit(alice, DenomNative, 10))
	require.NoError(t, l.Deposit(alice, DenomNative, 1000))
}

func TestDepositTokenDenoms(t *testing.T) {
	l := New(Config{})

	require.NoError(t, l.Deposit(alice, "usdc", 500))
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	assert.Equal(t, int64(500), l.Balance(alice, "usdc"))
	assert.Equal(t, int64(100), l.Balance(alice, DenomNative))
	assert.Equal(t, int64(0), l.Balance(alice, "other"))
}

func TestWithdraw(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	require.NoError(t, l.Withdraw(alice, DenomNative, 60))
	assert.Equal(t, int64(40), l.Balance(alice, DenomNative))

	assert.ErrorIs(t, l.Withdraw(alice, DenomNative, 41), ErrInsufficientBalance)
	assert.ErrorIs(t, l.Withdraw(provider, DenomNative, 1), ErrUnknownAccount)
	assert.ErrorIs(t, l.Withdraw(alice, DenomNative, 0), ErrInvalidAmount)
}

func TestWithdrawRespectsEscrow(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	_, err := l.Reserve(alice, DenomNative, 70)
	require.NoError(t, err)

	// Only the non-reserved 30 may leave
	assert.ErrorIs(t, l.Withdraw(alice, DenomNative, 31), ErrInsufficientBalance)
	require.NoError(t, l.Withdraw(alice, DenomNative, 30))
}

func TestReserve(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	resID, err := l.Reserve(alice, DenomNative, 50)
	require.NoError(t, err)
	require.NotEmpty(t, resID)

	// Balance unchanged, available reduced
	assert.Equal(t, int64(100), l.Balance(alice, DenomNative))
	assert.Equal(t, int64(50), l.Available(alice, DenomNative))
	assert.Equal(t, 1, l.OutstandingReservations())
	assert.Equal(t, int64(50), l.EscrowedTotal(DenomNative))

	// A second hold may not exceed what is left
	_, err = l.Reserve(alice, DenomNative, 51)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestRelease(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	resID, err := l.Reserve(alice, DenomNative, 50)
	require.NoError(t, err)

	require.NoError(t, l.Release(resID))
	assert.Equal(t, int64(100), l.Balance(alice, DenomNative))
	assert.Equal(t, int64(100), l.Available(alice, DenomNative))
	assert.Equal(t, 0, l.OutstandingReservations())

	// A released reservation is gone
	assert.ErrorIs(t, l.Release(resID), ErrUnknownReservation)
}

func TestSettleSplitsCostAndRefundsRemainder(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	resID, err := l.Reserve(alice, DenomNative, 50)
	require.NoError(t, err)

	// 30 of the 50 hold is consumed: 2.5% platform fee, provider takes the rest
	paid, err := l.Settle(resID, 30, []Payout{
		{Payee: platform, Role: "platform", Bps: 250},
		{Payee: provider, Role: "provider", Bps: 0},
	})
	require.NoError(t, err)
	require.Len(t, paid, 2)

	// 30 * 250 / 10000 = 0 (rounds down); the last payee absorbs the rest
	assert.Equal(t, int64(0), paid[0].Amount)
	assert.Equal(t, int64(30), paid[1].Amount)

	// Submitter paid 30 and got the unused 20 back
	assert.Equal(t, int64(70), l.Balance(alice, DenomNative))
	assert.Equal(t, int64(70), l.Available(alice, DenomNative))
	assert.Equal(t, int64(30), l.Balance(provider, DenomNative))
	assert.Equal(t, 0, l.OutstandingReservations())

	snap, ok := l.Snapshot(alice)
	require.True(t, ok)
	assert.Equal(t, int64(30), snap.TotalFeesPaid)
	assert.Equal(t, uint64(1), snap.TotalOperations)
}

func TestSettleLastPayeeAbsorbsRounding(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 1000))

	resID, err := l.Reserve(alice, DenomNative, 1000)
	require.NoError(t, err)

	paid, err := l.Settle(resID, 999, []Payout{
		{Payee: platform, Role: "platform", Bps: 3333},
		{Payee: provider, Role: "provider", Bps: 6667},
	})
	require.NoError(t, err)

	// 999 * 3333 / 10000 = 332; last payee gets 999 - 332 = 667
	assert.Equal(t, int64(332), paid[0].Amount)
	assert.Equal(t, int64(667), paid[1].Amount)
	assert.Equal(t, int64(999), paid[0].Amount+paid[1].Amount)
}

func TestSettleFullRefundOnZeroCost(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	resID, err := l.Reserve(alice, DenomNative, 50)
	require.NoError(t, err)

	paid, err := l.Settle(resID, 0, []Payout{
		{Payee: provider, Role: "provider", Bps: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), paid[0].Amount)

	assert.Equal(t, int64(100), l.Balance(alice, DenomNative))
	assert.Equal(t, int64(0), l.Balance(provider, DenomNative))
}

func TestSettleValidation(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	resID, err := l.Reserve(alice, DenomNative, 50)
	require.NoError(t, err)

	dist := []Payout{{Payee: provider, Role: "provider", Bps: 0}}

	_, err = l.Settle(resID, -1, dist)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.Settle(resID, 10, nil)
	assert.ErrorIs(t, err, ErrInvalidDistribution)

	_, err = l.Settle(resID, 10, []Payout{{Payee: "", Bps: 100}})
	assert.ErrorIs(t, err, ErrInvalidDistribution)

	_, err = l.Settle(resID, 10, []Payout{
		{Payee: platform, Bps: 6000},
		{Payee: provider, Bps: 6000},
	})
	assert.ErrorIs(t, err, ErrInvalidDistribution)

	// Cost above the hold fails but keeps the reservation alive
	_, err = l.Settle(resID, 51, dist)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 1, l.OutstandingReservations())

	// The hold can still settle afterwards
	_, err = l.Settle(resID, 50, dist)
	require.NoError(t, err)

	_, err = l.Settle("no-such-reservation", 10, dist)
	assert.ErrorIs(t, err, ErrUnknownReservation)
}

func TestConcurrentReserveNeverOverdraws(t *testing.T) {
	l := New(Config{})
	require.NoError(t, l.Deposit(alice, DenomNative, 100))

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(alice, DenomNative, 10)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}

	// Exactly 10 holds of 10 fit in a balance of 100
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, int64(0), l.Available(alice, DenomNative))
	assert.Equal(t, int64(100), l.Balance(alice, DenomNative))
}

func TestSnapshotUnknownAccount(t *testing.T) {
	l := New(Config{})
	_, ok := l.Snapshot(alice)
	assert.False(t, ok)
}
