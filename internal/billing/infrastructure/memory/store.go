package memory

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	billing "housing-ledger/internal/billing/domain"
)

var errReadOnly = errors.New("memory ledger: write in read-only unit of work")

// Store is an in-memory ledger. Units of work run one at a time against a
// private copy of the state, which replaces the shared state on success.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Do implements billing.UnitOfWork.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, ledger billing.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &ledger{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ReadOnly implements billing.UnitOfWork. fn reads the state published by the
// last committed Do; the lock is held only to take that snapshot, so writers
// are never blocked by a running read.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, ledger billing.Ledger) error) error {
	s.mu.RLock()
	snapshot := s.state
	s.mu.RUnlock()

	return fn(ctx, &ledger{st: snapshot, readOnly: true})
}

// AddAccount seeds an account.
func (s *Store) AddAccount(account billing.Account) {
	s.publish(func(st *state) {
		st.accounts[account.ID] = account
	})
}

// AddReading seeds a meter reading.
func (s *Store) AddReading(reading billing.Reading) {
	reading.Period = billing.MonthStart(reading.Period)
	s.publish(func(st *state) {
		st.readings = append(st.readings, reading)
	})
}

// AddTariff seeds a tariff.
func (s *Store) AddTariff(tariff billing.Tariff) {
	tariff.EffectiveFrom = billing.DayStart(tariff.EffectiveFrom)
	s.publish(func(st *state) {
		st.tariffs = append(st.tariffs, tariff)
	})
}

// publish applies change to a copy of the state and swaps it in. Published
// states are never modified, which is what lets ReadOnly run unlocked.
func (s *Store) publish(change func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	change(next)
	s.state = next
}

// BillCount returns the number of stored bills.
func (s *Store) BillCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.bills)
}

type ledger struct {
	st       *state
	readOnly bool
}

func (l *ledger) Accounts() billing.AccountRepository { return accountRepository{l} }
func (l *ledger) Bills() billing.BillRepository       { return billRepository{l} }
func (l *ledger) Payments() billing.PaymentRepository { return paymentRepository{l} }
func (l *ledger) Readings() billing.ReadingRepository { return readingRepository{l} }
func (l *ledger) Tariffs() billing.TariffRepository   { return tariffRepository{l} }
func (l *ledger) Query() billing.LedgerQuery          { return ledgerQuery{l} }

func (l *ledger) writable() error {
	if l.readOnly {
		return errReadOnly
	}
	return nil
}

type state struct {
	accounts map[string]billing.Account
	bills    map[string]billing.Bill
	billKeys map[string]string
	payments map[string]billing.Payment
	readings []billing.Reading
	tariffs  []billing.Tariff
}

func newState() *state {
	return &state{
		accounts: make(map[string]billing.Account),
		bills:    make(map[string]billing.Bill),
		billKeys: make(map[string]string),
		payments: make(map[string]billing.Payment),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.bills {
		out.bills[k] = v
	}
	for k, v := range s.billKeys {
		out.billKeys[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	out.readings = append([]billing.Reading(nil), s.readings...)
	out.tariffs = append([]billing.Tariff(nil), s.tariffs...)
	return out
}
