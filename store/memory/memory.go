/*
Package memory is the in-memory booking.TxStore used by tests and local
development.

PURPOSE:
  Behaviorally equivalent to store/sqlite without the driver: same
  interfaces, same nil-on-missing semantics, same transaction contract.

TRANSACTIONS:
  WithTx holds the store's write lock for the duration of the function,
  so transactions are serialized. A deep snapshot is taken up front and
  restored when the function fails, which gives all-or-nothing semantics
  without a real transaction log. The transactional view reaches the
  tables directly instead of re-locking, so nesting a read inside WithTx
  cannot self-deadlock.

COPY DISCIPLINE:
  Every Put/Update stores a private copy and every Get returns one, so a
  caller mutating a returned struct never mutates store state.
*/
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warp/booking-engine/booking"
)

// Memory implements booking.TxStore over plain maps.
type Memory struct {
	mu   sync.RWMutex
	data *tables
}

// New returns an empty store.
func New() *Memory {
	return &Memory{data: newTables()}
}

// WithTx runs fn against a transactional view. On error the pre-tx
// snapshot is restored.
func (m *Memory) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&txView{data: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// ===== DIRECT (AUTO-COMMIT) ACCESS =====

func (m *Memory) PutSession(ctx context.Context, s *booking.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.putSession(s)
}

func (m *Memory) GetSession(ctx context.Context, id booking.SessionID) (*booking.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getSession(id)
}

func (m *Memory) UpdateSession(ctx context.Context, s *booking.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateSession(s)
}

func (m *Memory) InstructorSessionsInRange(ctx context.Context, id booking.InstructorID, from, to time.Time) ([]*booking.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.instructorSessionsInRange(id, from, to)
}

func (m *Memory) PutPackage(ctx context.Context, p *booking.CreditPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.putPackage(p)
}

func (m *Memory) GetPackage(ctx context.Context, id booking.PackageID) (*booking.CreditPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getPackage(id)
}

func (m *Memory) PackagesByCustomer(ctx context.Context, id booking.CustomerID) ([]*booking.CreditPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.packagesByCustomer(id)
}

func (m *Memory) UpdateBalance(ctx context.Context, id booking.PackageID, remaining int, retired bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateBalance(id, remaining, retired)
}

func (m *Memory) PutBooking(ctx context.Context, b *booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.putBooking(b)
}

func (m *Memory) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getBooking(id)
}

func (m *Memory) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateBooking(b)
}

func (m *Memory) ConfirmedCount(ctx context.Context, id booking.SessionID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.confirmedCount(id)
}

func (m *Memory) ConfirmedBooking(ctx context.Context, sessionID booking.SessionID, customerID booking.CustomerID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.confirmedBooking(sessionID, customerID)
}

func (m *Memory) AppendEntry(ctx context.Context, e booking.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.appendEntry(e)
}

func (m *Memory) EntriesByPackage(ctx context.Context, id booking.PackageID) ([]booking.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.entriesByPackage(id)
}

func (m *Memory) PutWaitlistEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.putWaitlistEntry(w)
}

func (m *Memory) GetWaitlistEntry(ctx context.Context, id booking.WaitlistID) (*booking.WaitlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getWaitlistEntry(id)
}

func (m *Memory) UpdateWaitlistEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateWaitlistEntry(w)
}

func (m *Memory) DeleteWaitlistEntry(ctx context.Context, id booking.WaitlistID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteWaitlistEntry(id)
}

func (m *Memory) WaitlistBySession(ctx context.Context, id booking.SessionID) ([]*booking.WaitlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.waitlistBySession(id)
}

func (m *Memory) NextWaitlistPosition(ctx context.Context, id booking.SessionID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.nextWaitlistPosition(id)
}

// ===== TRANSACTIONAL VIEW =====

// txView hits the tables without locking; WithTx already holds the write
// lock for the whole transaction.
type txView struct {
	data *tables
}

func (t *txView) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	// Already inside a transaction; run in place.
	return fn(t)
}

func (t *txView) PutSession(ctx context.Context, s *booking.Session) error { return t.data.putSession(s) }
func (t *txView) GetSession(ctx context.Context, id booking.SessionID) (*booking.Session, error) {
	return t.data.getSession(id)
}
func (t *txView) UpdateSession(ctx context.Context, s *booking.Session) error {
	return t.data.updateSession(s)
}
func (t *txView) InstructorSessionsInRange(ctx context.Context, id booking.InstructorID, from, to time.Time) ([]*booking.Session, error) {
	return t.data.instructorSessionsInRange(id, from, to)
}
func (t *txView) PutPackage(ctx context.Context, p *booking.CreditPackage) error {
	return t.data.putPackage(p)
}
func (t *txView) GetPackage(ctx context.Context, id booking.PackageID) (*booking.CreditPackage, error) {
	return t.data.getPackage(id)
}
func (t *txView) PackagesByCustomer(ctx context.Context, id booking.CustomerID) ([]*booking.CreditPackage, error) {
	return t.data.packagesByCustomer(id)
}
func (t *txView) UpdateBalance(ctx context.Context, id booking.PackageID, remaining int, retired bool) error {
	return t.data.updateBalance(id, remaining, retired)
}
func (t *txView) PutBooking(ctx context.Context, b *booking.Booking) error {
	return t.data.putBooking(b)
}
func (t *txView) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	return t.data.getBooking(id)
}
func (t *txView) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	return t.data.updateBooking(b)
}
func (t *txView) ConfirmedCount(ctx context.Context, id booking.SessionID) (int, error) {
	return t.data.confirmedCount(id)
}
func (t *txView) ConfirmedBooking(ctx context.Context, sessionID booking.SessionID, customerID booking.CustomerID) (*booking.Booking, error) {
	return t.data.confirmedBooking(sessionID, customerID)
}
func (t *txView) AppendEntry(ctx context.Context, e booking.LedgerEntry) error {
	return t.data.appendEntry(e)
}
func (t *txView) EntriesByPackage(ctx context.Context, id booking.PackageID) ([]booking.LedgerEntry, error) {
	return t.data.entriesByPackage(id)
}
func (t *txView) PutWaitlistEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	return t.data.putWaitlistEntry(w)
}
func (t *txView) GetWaitlistEntry(ctx context.Context, id booking.WaitlistID) (*booking.WaitlistEntry, error) {
	return t.data.getWaitlistEntry(id)
}
func (t *txView) UpdateWaitlistEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	return t.data.updateWaitlistEntry(w)
}
func (t *txView) DeleteWaitlistEntry(ctx context.Context, id booking.WaitlistID) error {
	return t.data.deleteWaitlistEntry(id)
}
func (t *txView) WaitlistBySession(ctx context.Context, id booking.SessionID) ([]*booking.WaitlistEntry, error) {
	return t.data.waitlistBySession(id)
}
func (t *txView) NextWaitlistPosition(ctx context.Context, id booking.SessionID) (int, error) {
	return t.data.nextWaitlistPosition(id)
}
