/*
Package ledger owns the authoritative remaining balance of credit packages.

PURPOSE:
  Balance mutation is the one piece of shared mutable state in the engine
  and every change goes through here: a pessimistic per-package lock
  serializes the read-modify-write, and each change appends a provenance
  entry naming the booking that caused it in the same store transaction
  as the balance write.

CRITICAL INVARIANTS:
  1. SERIALIZED: no two balance mutations of one package interleave.
     Two concurrent debits of 1 against balance 1 yield exactly one
     success; the balance ends at 0, never negative, never 1.
  2. BOUNDED: remaining stays within [0, originally granted].
  3. EXPIRY GATES DEBITS ONLY: an expired package rejects new debits even
     with balance left, but refunds always land - the credit was paid for.
  4. PROVENANCE: every delta has an append-only entry referencing the
     booking attempt behind it.

COMPOSING WITH BOOKINGS:
  The booking insert and the debit that pays for it must commit together.
  Callers open the critical section with WithPackage, run their own
  store.WithTx, and call DebitTx/CreditTx with the transactional view:

    err := led.WithPackage(ctx, pkgID, func() error {
        return store.WithTx(ctx, func(tx booking.Store) error {
            if _, err := led.DebitTx(ctx, tx, pkgID, cost, bookingID); err != nil {
                return err
            }
            return tx.PutBooking(ctx, b)
        })
    })

  The standalone Debit/Credit helpers wrap exactly that for callers with
  no extra rows to write.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/booking-engine/booking"
)

// Ledger performs atomic debit/credit operations on package balances.
type Ledger struct {
	store booking.TxStore
	locks *booking.KeyMutex
	log   zerolog.Logger
	now   func() time.Time
}

// New creates a Ledger over the given store. Lock waits are capped at
// lockWait; a lapsed wait surfaces as the retryable ErrLockTimeout.
func New(store booking.TxStore, lockWait time.Duration, log zerolog.Logger) *Ledger {
	return &Ledger{
		store: store,
		locks: booking.NewKeyMutex(lockWait),
		log:   log,
		now:   time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// WithPackage runs fn inside the package's critical section. All balance
// reads that feed a write must happen inside it.
func (l *Ledger) WithPackage(ctx context.Context, id booking.PackageID, fn func() error) error {
	if err := l.locks.Lock(ctx, string(id)); err != nil {
		return err
	}
	defer l.locks.Unlock(string(id))
	return fn()
}

// =============================================================================
// DEBIT / CREDIT
// =============================================================================

// Debit atomically consumes amount units from the package. Returns the new
// balance, or PackageNotFound / PackageExpired / InsufficientCredits.
func (l *Ledger) Debit(ctx context.Context, id booking.PackageID, amount int, ref booking.BookingID) (int, error) {
	var balance int
	err := l.WithPackage(ctx, id, func() error {
		return l.store.WithTx(ctx, func(tx booking.Store) error {
			var err error
			balance, err = l.DebitTx(ctx, tx, id, amount, ref)
			return err
		})
	})
	return balance, err
}

// Credit atomically refunds amount units to the package. Used only by
// cancellation; not gated by expiry.
func (l *Ledger) Credit(ctx context.Context, id booking.PackageID, amount int, ref booking.BookingID) (int, error) {
	var balance int
	err := l.WithPackage(ctx, id, func() error {
		return l.store.WithTx(ctx, func(tx booking.Store) error {
			var err error
			balance, err = l.CreditTx(ctx, tx, id, amount, ref)
			return err
		})
	})
	return balance, err
}

// DebitTx performs the debit against a transactional store view. The
// caller must hold the package's critical section (WithPackage) and owns
// the transaction boundary.
func (l *Ledger) DebitTx(ctx context.Context, tx booking.Store, id booking.PackageID, amount int, ref booking.BookingID) (int, error) {
	if amount <= 0 {
		return 0, &booking.InvalidRequestError{Reason: "debit amount must be positive"}
	}

	pkg, err := tx.GetPackage(ctx, id)
	if err != nil {
		return 0, err
	}
	if pkg == nil {
		return 0, &booking.NotFoundError{Kind: "package", ID: string(id)}
	}
	if pkg.ExpiredAt(l.now()) {
		return 0, booking.ErrPackageExpired
	}
	if pkg.Remaining < amount {
		return 0, &booking.InsufficientCreditsError{
			PackageID: id,
			Required:  amount,
			Available: pkg.Remaining,
		}
	}

	newBalance := pkg.Remaining - amount
	retired := newBalance == 0
	if err := tx.UpdateBalance(ctx, id, newBalance, retired); err != nil {
		return 0, err
	}
	if err := tx.AppendEntry(ctx, booking.LedgerEntry{
		ID:        uuid.NewString(),
		PackageID: id,
		Kind:      booking.EntryDebit,
		Delta:     -amount,
		Balance:   newBalance,
		BookingID: ref,
		CreatedAt: l.now(),
	}); err != nil {
		return 0, err
	}

	l.log.Debug().
		Str("package", string(id)).
		Str("booking", string(ref)).
		Int("amount", amount).
		Int("balance", newBalance).
		Msg("ledger debit")
	return newBalance, nil
}

// CreditTx performs the refund against a transactional store view under
// the same contract as DebitTx. The refund is capped by the originally
// granted total; crossing it means the caller is refunding something that
// was never debited.
func (l *Ledger) CreditTx(ctx context.Context, tx booking.Store, id booking.PackageID, amount int, ref booking.BookingID) (int, error) {
	if amount <= 0 {
		return 0, &booking.InvalidRequestError{Reason: "credit amount must be positive"}
	}

	pkg, err := tx.GetPackage(ctx, id)
	if err != nil {
		return 0, err
	}
	if pkg == nil {
		return 0, &booking.NotFoundError{Kind: "package", ID: string(id)}
	}

	newBalance := pkg.Remaining + amount
	if newBalance > pkg.TotalGranted() {
		return 0, &booking.InvalidRequestError{Reason: "refund would exceed originally granted credits"}
	}

	if err := tx.UpdateBalance(ctx, id, newBalance, false); err != nil {
		return 0, err
	}
	if err := tx.AppendEntry(ctx, booking.LedgerEntry{
		ID:        uuid.NewString(),
		PackageID: id,
		Kind:      booking.EntryRefund,
		Delta:     amount,
		Balance:   newBalance,
		BookingID: ref,
		CreatedAt: l.now(),
	}); err != nil {
		return 0, err
	}

	l.log.Debug().
		Str("package", string(id)).
		Str("booking", string(ref)).
		Int("amount", amount).
		Int("balance", newBalance).
		Msg("ledger refund")
	return newBalance, nil
}

// Grant registers a freshly purchased package and writes its opening
// grant entry in one transaction. The balance starts at the granted
// total; a grant is the only entry kind without a booking reference.
func (l *Ledger) Grant(ctx context.Context, pkg *booking.CreditPackage) error {
	if len(pkg.Allowances) == 0 {
		return &booking.InvalidRequestError{Reason: "package must carry at least one allowance"}
	}
	total := pkg.TotalGranted()
	if total <= 0 {
		return &booking.InvalidRequestError{Reason: "package must grant at least one credit"}
	}

	pkg.Remaining = total
	pkg.Retired = false
	return l.WithPackage(ctx, pkg.ID, func() error {
		return l.store.WithTx(ctx, func(tx booking.Store) error {
			existing, err := tx.GetPackage(ctx, pkg.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				return &booking.InvalidRequestError{Reason: "package already registered"}
			}
			if err := tx.PutPackage(ctx, pkg); err != nil {
				return err
			}
			if err := tx.AppendEntry(ctx, booking.LedgerEntry{
				ID:        uuid.NewString(),
				PackageID: pkg.ID,
				Kind:      booking.EntryGrant,
				Delta:     total,
				Balance:   total,
				Reason:    "package purchase",
				CreatedAt: l.now(),
			}); err != nil {
				return err
			}
			l.log.Info().
				Str("package", string(pkg.ID)).
				Str("customer", string(pkg.CustomerID)).
				Int("granted", total).
				Msg("package registered")
			return nil
		})
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// Entries returns the package's provenance trail, oldest first.
func (l *Ledger) Entries(ctx context.Context, id booking.PackageID) ([]booking.LedgerEntry, error) {
	return l.store.EntriesByPackage(ctx, id)
}

// Balance returns the current remaining balance.
func (l *Ledger) Balance(ctx context.Context, id booking.PackageID) (int, error) {
	pkg, err := l.store.GetPackage(ctx, id)
	if err != nil {
		return 0, err
	}
	if pkg == nil {
		return 0, &booking.NotFoundError{Kind: "package", ID: string(id)}
	}
	return pkg.Remaining, nil
}
