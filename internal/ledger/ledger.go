package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DenomNative is the denomination of the native balance. Any other denom is
// tracked as a token balance.
const DenomNative = "native"

// Sentinel errors for comparison with errors.Is
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrUnknownReservation  = errors.New("unknown reservation")
	ErrInvalidDistribution = errors.New("invalid fee distribution")
)

// Payout is one entry of a settlement distribution. Bps is the share of the
// settled cost in basis points; shares must sum to at most 10000 and the
// remainder of the cost is credited to the last payee in the list.
type Payout struct {
	Payee string
	Role  string
	Bps   uint32
}

// Paid is the realized amount credited to a payee during settlement
type Paid struct {
	Payee  string
	Role   string
	Bps    uint32
	Amount int64
}

// Config bounds single deposits. Zero values disable the corresponding bound.
type Config struct {
	MinDeposit int64
	MaxDeposit int64
}

// AccountSnapshot is a read-only copy of one account's balances
type AccountSnapshot struct {
	Account         string           `json:"account"`
	NativeBalance   int64            `json:"native_balance"`
	TokenBalances   map[string]int64 `json:"token_balances,omitempty"`
	Reserved        map[string]int64 `json:"reserved,omitempty"`
	TotalFeesPaid   int64            `json:"total_fees_paid"`
	TotalOperations uint64           `json:"total_operations"`
}

// account holds one account's balances. Mutations take the account lock so
// concurrent operations on different accounts never contend.
type account struct {
	mu sync.Mutex

	native   int64
	tokens   map[string]int64
	reserved map[string]int64

	totalFeesPaid   int64
	totalOperations uint64
}

func (a *account) balance(denom string) int64 {
	if denom == DenomNative {
		return a.native
	}
	return a.tokens[denom]
}

func (a *account) credit(denom string, amount int64) {
	if denom == DenomNative {
		a.native += amount
		return
	}
	a.tokens[denom] += amount
}

func (a *account) debit(denom string, amount int64) {
	if denom == DenomNative {
		a.native -= amount
		return
	}
	a.tokens[denom] -= amount
}

// available is the balance not held in escrow for the given denom
func (a *account) available(denom string) int64 {
	return a.balance(denom) - a.reserved[denom]
}

// reservation is an escrow hold against a single account
type reservation struct {
	id      string
	account string
	denom   string
	amount  int64
}

// Ledger tracks per-account balances and escrow reservations. Accounts are
// created lazily on first deposit.
type Ledger struct {
	cfg Config

	mu       sync.RWMutex
	accounts map[string]*account

	resMu        sync.Mutex
	reservations map[string]*reservation
}

// New creates an empty ledger
func New(cfg Config) *Ledger {
	return &Ledger{
		cfg:          cfg,
		accounts:     make(map[string]*account),
		reservations: make(map[string]*reservation),
	}
}

// getOrCreate returns the account entry, creating it if needed
func (l *Ledger) getOrCreate(id string) *account {
	l.mu.RLock()
	acct, ok := l.accounts[id]
	l.mu.RUnlock()
	if ok {
		return acct
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok = l.accounts[id]; ok {
		return acct
	}
	acct = &account{
		tokens:   make(map[string]int64),
		reserved: make(map[string]int64),
	}
	l.accounts[id] = acct
	return acct
}

// get returns the account entry without creating it
func (l *Ledger) get(id string) (*account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[id]
	return acct, ok
}

// Deposit credits amount to the account's balance in the given denom
func (l *Ledger) Deposit(accountID, denom string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive, got %d", ErrInvalidAmount, amount)
	}
	if l.cfg.MinDeposit > 0 && amount < l.cfg.MinDeposit {
		return fmt.Errorf("%w: deposit %d below minimum %d", ErrInvalidAmount, amount, l.cfg.MinDeposit)
	}
	if l.cfg.MaxDeposit > 0 && amount > l.cfg.MaxDeposit {
		return fmt.Errorf("%w: deposit %d above maximum %d", ErrInvalidAmount, amount, l.cfg.MaxDeposit)
	}

	acct := l.getOrCreate(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	acct.credit(denom, amount)

	slog.Debug("Ledger: deposit",
		"account", accountID,
		"denom", denom,
		"amount", amount,
	)
	return nil
}

// Withdraw debits the account's available (non-reserved) balance
func (l *Ledger) Withdraw(accountID, denom string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdraw amount must be positive, got %d", ErrInvalidAmount, amount)
	}

	acct, ok := l.get(accountID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if amount > acct.available(denom) {
		return fmt.Errorf("%w: withdraw %d exceeds available %d (%s)",
			ErrInsufficientBalance, amount, acct.available(denom), denom)
	}
	acct.debit(denom, amount)
	return nil
}

// Reserve moves amount from the account's available balance into escrow and
// returns the reservation id. The hold remains until Settle or Release.
func (l *Ledger) Reserve(accountID, denom string, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: reserve amount must be positive, got %d", ErrInvalidAmount, amount)
	}

	acct, ok := l.get(accountID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}

	acct.mu.Lock()
	if amount > acct.available(denom) {
		available := acct.available(denom)
		acct.mu.Unlock()
		return "", fmt.Errorf("%w: reserve %d exceeds available %d (%s)",
			ErrInsufficientBalance, amount, available, denom)
	}
	acct.reserved[denom] += amount
	acct.mu.Unlock()

	res := &reservation{
		id:      uuid.NewString(),
		account: accountID,
		denom:   denom,
		amount:  amount,
	}

	l.resMu.Lock()
	l.reservations[res.id] = res
	l.resMu.Unlock()

	slog.Debug("Ledger: reserved",
		"account", accountID,
		"denom", denom,
		"amount", amount,
		"reservation_id", res.id,
	)
	return res.id, nil
}

// takeReservation removes and returns the reservation, if it exists
func (l *Ledger) takeReservation(id string) (*reservation, error) {
	l.resMu.Lock()
	defer l.resMu.Unlock()
	res, ok := l.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReservation, id)
	}
	delete(l.reservations, id)
	return res, nil
}

// Settle resolves a reservation: actualCost is split among the distribution
// payees and the unused remainder of the hold is returned to the account.
// The last payee receives whatever share of actualCost the bps splits leave
// unassigned. actualCost may not exceed the reserved amount.
func (l *Ledger) Settle(reservationID string, actualCost int64, distribution []Payout) ([]Paid, error) {
	if actualCost < 0 {
		return nil, fmt.Errorf("%w: settlement cost must be non-negative, got %d", ErrInvalidAmount, actualCost)
	}
	if len(distribution) == 0 {
		return nil, fmt.Errorf("%w: distribution is empty", ErrInvalidDistribution)
	}
	var totalBps uint32
	for _, p := range distribution {
		if p.Payee == "" {
			return nil, fmt.Errorf("%w: payee is empty", ErrInvalidDistribution)
		}
		totalBps += p.Bps
	}
	if totalBps > 10000 {
		return nil, fmt.Errorf("%w: shares sum to %d bps, max 10000", ErrInvalidDistribution, totalBps)
	}

	res, err := l.takeReservation(reservationID)
	if err != nil {
		return nil, err
	}
	if actualCost > res.amount {
		// Put the hold back so the caller can retry or release
		l.resMu.Lock()
		l.reservations[res.id] = res
		l.resMu.Unlock()
		return nil, fmt.Errorf("%w: cost %d exceeds reserved %d", ErrInvalidAmount, actualCost, res.amount)
	}

	acct, ok := l.get(res.account)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, res.account)
	}

	// Release the hold and debit the actual cost in one critical section so
	// no intermediate balance is observable.
	acct.mu.Lock()
	acct.reserved[res.denom] -= res.amount
	if acct.reserved[res.denom] <= 0 {
		delete(acct.reserved, res.denom)
	}
	acct.debit(res.denom, actualCost)
	acct.totalFeesPaid += actualCost
	acct.totalOperations++
	acct.mu.Unlock()

	// Credit the payees. Integer bps shares round down; the last payee
	// absorbs the rounding remainder.
	paid := make([]Paid, 0, len(distribution))
	var distributed int64
	for i, p := range distribution {
		share := actualCost * int64(p.Bps) / 10000
		if i == len(distribution)-1 {
			share = actualCost - distributed
		}
		distributed += share
		if share > 0 {
			payee := l.getOrCreate(p.Payee)
			payee.mu.Lock()
			payee.credit(res.denom, share)
			payee.mu.Unlock()
		}
		paid = append(paid, Paid{Payee: p.Payee, Role: p.Role, Bps: p.Bps, Amount: share})
	}

	slog.Debug("Ledger: settled",
		"reservation_id", reservationID,
		"account", res.account,
		"cost", actualCost,
		"refund", res.amount-actualCost,
		"payees", len(distribution),
	)
	return paid, nil
}

// Release refunds the full reservation back to the account's available balance
func (l *Ledger) Release(reservationID string) error {
	res, err := l.takeReservation(reservationID)
	if err != nil {
		return err
	}

	acct, ok := l.get(res.account)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, res.account)
	}

	acct.mu.Lock()
	acct.reserved[res.denom] -= res.amount
	if acct.reserved[res.denom] <= 0 {
		delete(acct.reserved, res.denom)
	}
	acct.mu.Unlock()

	slog.Debug("Ledger: released",
		"reservation_id", reservationID,
		"account", res.account,
		"amount", res.amount,
	)
	return nil
}

// Balance returns the total balance for the denom, escrowed funds included
func (l *Ledger) Balance(accountID, denom string) int64 {
	acct, ok := l.get(accountID)
	if !ok {
		return 0
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance(denom)
}

// Available returns the balance minus outstanding reservations for the denom
func (l *Ledger) Available(accountID, denom string) int64 {
	acct, ok := l.get(accountID)
	if !ok {
		return 0
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.available(denom)
}

// Snapshot returns a copy of the account's balances, or false if the account
// has never been funded
func (l *Ledger) Snapshot(accountID string) (AccountSnapshot, bool) {
	acct, ok := l.get(accountID)
	if !ok {
		return AccountSnapshot{}, false
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	snap := AccountSnapshot{
		Account:         accountID,
		NativeBalance:   acct.native,
		TotalFeesPaid:   acct.totalFeesPaid,
		TotalOperations: acct.totalOperations,
	}
	if len(acct.tokens) > 0 {
		snap.TokenBalances = make(map[string]int64, len(acct.tokens))
		for d, v := range acct.tokens {
			snap.TokenBalances[d] = v
		}
	}
	if len(acct.reserved) > 0 {
		snap.Reserved = make(map[string]int64, len(acct.reserved))
		for d, v := range acct.reserved {
			snap.Reserved[d] = v
		}
	}
	return snap, true
}

// OutstandingReservations returns the number of unresolved escrow holds
func (l *Ledger) OutstandingReservations() int {
	l.resMu.Lock()
	defer l.resMu.Unlock()
	return len(l.reservations)
}

// EscrowedTotal sums all outstanding holds in the given denom
func (l *Ledger) EscrowedTotal(denom string) int64 {
	l.resMu.Lock()
	defer l.resMu.Unlock()
	var total int64
	for _, res := range l.reservations {
		if res.denom == denom {
			total += res.amount
		}
	}
	return total
}
