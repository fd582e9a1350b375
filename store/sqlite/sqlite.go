/*
Package sqlite provides the SQLite-backed implementation of booking.TxStore.

PURPOSE:
  Persists sessions, credit packages, bookings, ledger entries, and
  waitlist entries. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

KEY TABLES:
  sessions:       Bookable time slots
  packages:       Credit packages; allowances embedded as JSON
  bookings:       Enrollments, one row per booking, never deleted
  ledger_entries: Append-only balance change log
  waitlist:       FIFO queue entries per session

DEFENSIVE INDEXES:
  The engine enforces the business invariants under its own locks; two
  unique indexes back the critical ones at the storage layer as well:
  - one CONFIRMED booking per (session, customer)
  - one waitlist position per session

TRANSACTIONS:
  WithTx wraps fn in a database transaction. A store-level mutex
  serializes transactions so concurrent writers see SQLITE_BUSY never
  instead of sometimes. Reads outside WithTx go straight to the pool.

WAL MODE:
  The database is opened with WAL and foreign keys on. In-memory
  databases are pinned to a single connection, otherwise every new pool
  connection would see its own empty ":memory:" database.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a versioned
  migration tool (golang-migrate, goose).
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/booking-engine/booking"
)

// Store implements booking.TxStore over SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes WithTx
	queries
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Each pool connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, queries: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		capacity INTEGER NOT NULL,
		status TEXT NOT NULL,
		instructor_id TEXT NOT NULL,
		instructor_tier INTEGER NOT NULL,
		ad_hoc BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Instructor double-booking guard (hot path on ad-hoc creation)
	CREATE INDEX IF NOT EXISTS idx_sessions_instructor
		ON sessions(instructor_id, status, start_at);

	CREATE TABLE IF NOT EXISTS packages (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		allowances_json TEXT NOT NULL,
		remaining INTEGER NOT NULL,
		purchased_at TEXT NOT NULL,
		expires_at TEXT,
		retired BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_packages_customer
		ON packages(customer_id);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		package_id TEXT,
		allowance_id TEXT,
		credits_debited INTEGER NOT NULL,
		status TEXT NOT NULL,
		reschedule_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		cancelled_at TEXT,
		cancel_reason TEXT,
		cancelled_by TEXT,
		cancelled_by_self BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_session_status
		ON bookings(session_id, status);

	-- One live booking per customer per session
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_unique_confirmed
		ON bookings(session_id, customer_id)
		WHERE status = 'CONFIRMED';

	-- Append-only: no UPDATE or DELETE is ever issued on this table
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		package_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		delta INTEGER NOT NULL,
		balance INTEGER NOT NULL,
		booking_id TEXT,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_package
		ON ledger_entries(package_id);

	CREATE TABLE IF NOT EXISTS waitlist (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		notified_at TEXT,
		claim_expires_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_waitlist_unique_position
		ON waitlist(session_id, position);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_waitlist_unique_customer
		ON waitlist(session_id, customer_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// QUERIES - shared by the pool and by open transactions
// =============================================================================

// dbtx is the subset of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements booking.Store against either a *sql.DB or a *sql.Tx.
type queries struct {
	db dbtx
}

// ===== SESSIONS =====

const sessionColumns = `id, kind, start_at, end_at, capacity, status, instructor_id, instructor_tier, ad_hoc, created_at`

func (q *queries) PutSession(ctx context.Context, s *booking.Session) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Kind, fmtTime(s.StartAt), fmtTime(s.EndAt), s.Capacity,
		s.Status, s.InstructorID, s.InstructorTier, s.AdHoc, fmtTime(s.CreatedAt),
	)
	return err
}

func (q *queries) GetSession(ctx context.Context, id booking.SessionID) (*booking.Session, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (q *queries) UpdateSession(ctx context.Context, s *booking.Session) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE sessions
		SET kind = ?, start_at = ?, end_at = ?, capacity = ?, status = ?,
		    instructor_id = ?, instructor_tier = ?, ad_hoc = ?
		WHERE id = ?`,
		s.Kind, fmtTime(s.StartAt), fmtTime(s.EndAt), s.Capacity, s.Status,
		s.InstructorID, s.InstructorTier, s.AdHoc, s.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, "session", string(s.ID))
}

func (q *queries) InstructorSessionsInRange(ctx context.Context, id booking.InstructorID, from, to time.Time) ([]*booking.Session, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE instructor_id = ? AND status = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at`,
		id, booking.SessionScheduled, fmtTime(to), fmtTime(from),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*booking.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*booking.Session, error) {
	var s booking.Session
	var startAt, endAt, createdAt string
	err := row.Scan(&s.ID, &s.Kind, &startAt, &endAt, &s.Capacity,
		&s.Status, &s.InstructorID, &s.InstructorTier, &s.AdHoc, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.StartAt, err = parseTime(startAt); err != nil {
		return nil, err
	}
	if s.EndAt, err = parseTime(endAt); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// ===== PACKAGES =====

func (q *queries) PutPackage(ctx context.Context, p *booking.CreditPackage) error {
	allowances, err := json.Marshal(p.Allowances)
	if err != nil {
		return fmt.Errorf("failed to marshal allowances: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO packages (id, customer_id, allowances_json, remaining, purchased_at, expires_at, retired)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CustomerID, string(allowances), p.Remaining,
		fmtTime(p.PurchasedAt), fmtTimePtr(p.ExpiresAt), p.Retired,
	)
	return err
}

func (q *queries) GetPackage(ctx context.Context, id booking.PackageID) (*booking.CreditPackage, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, customer_id, allowances_json, remaining, purchased_at, expires_at, retired
		FROM packages WHERE id = ?`, id)
	return scanPackage(row)
}

func (q *queries) PackagesByCustomer(ctx context.Context, id booking.CustomerID) ([]*booking.CreditPackage, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, customer_id, allowances_json, remaining, purchased_at, expires_at, retired
		FROM packages WHERE customer_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*booking.CreditPackage
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) UpdateBalance(ctx context.Context, id booking.PackageID, remaining int, retired bool) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE packages SET remaining = ?, retired = ? WHERE id = ?`,
		remaining, retired, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "package", string(id))
}

func scanPackage(row rowScanner) (*booking.CreditPackage, error) {
	var p booking.CreditPackage
	var allowances, purchasedAt string
	var expiresAt sql.NullString
	err := row.Scan(&p.ID, &p.CustomerID, &allowances, &p.Remaining,
		&purchasedAt, &expiresAt, &p.Retired)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(allowances), &p.Allowances); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowances: %w", err)
	}
	if p.PurchasedAt, err = parseTime(purchasedAt); err != nil {
		return nil, err
	}
	if p.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ===== BOOKINGS =====

const bookingColumns = `id, session_id, customer_id, package_id, allowance_id, credits_debited, status, reschedule_count, created_at, cancelled_at, cancel_reason, cancelled_by, cancelled_by_self`

func (q *queries) PutBooking(ctx context.Context, b *booking.Booking) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SessionID, b.CustomerID, nullPackageID(b.PackageID), nullAllowanceID(b.AllowanceID),
		b.CreditsDebited, b.Status, b.RescheduleCount, fmtTime(b.CreatedAt),
		fmtTimePtr(b.CancelledAt), b.CancelReason, b.CancelledBy, b.CancelledBySelf,
	)
	return err
}

func (q *queries) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

func (q *queries) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, reschedule_count = ?, cancelled_at = ?,
		    cancel_reason = ?, cancelled_by = ?, cancelled_by_self = ?
		WHERE id = ?`,
		b.Status, b.RescheduleCount, fmtTimePtr(b.CancelledAt),
		b.CancelReason, b.CancelledBy, b.CancelledBySelf, b.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, "booking", string(b.ID))
}

func (q *queries) ConfirmedCount(ctx context.Context, id booking.SessionID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE session_id = ? AND status = ?`,
		id, booking.BookingConfirmed).Scan(&n)
	return n, err
}

func (q *queries) ConfirmedBooking(ctx context.Context, sessionID booking.SessionID, customerID booking.CustomerID) (*booking.Booking, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE session_id = ? AND customer_id = ? AND status = ?
		LIMIT 1`,
		sessionID, customerID, booking.BookingConfirmed)
	return scanBooking(row)
}

func scanBooking(row rowScanner) (*booking.Booking, error) {
	var b booking.Booking
	var createdAt string
	var packageID, allowanceID, cancelledAt, cancelReason, cancelledBy sql.NullString
	err := row.Scan(&b.ID, &b.SessionID, &b.CustomerID, &packageID, &allowanceID,
		&b.CreditsDebited, &b.Status, &b.RescheduleCount, &createdAt,
		&cancelledAt, &cancelReason, &cancelledBy, &b.CancelledBySelf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if packageID.Valid {
		id := booking.PackageID(packageID.String)
		b.PackageID = &id
	}
	if allowanceID.Valid {
		id := booking.AllowanceID(allowanceID.String)
		b.AllowanceID = &id
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.CancelledAt, err = parseTimePtr(cancelledAt); err != nil {
		return nil, err
	}
	b.CancelReason = cancelReason.String
	b.CancelledBy = cancelledBy.String
	return &b, nil
}

// ===== LEDGER ENTRIES =====

func (q *queries) AppendEntry(ctx context.Context, e booking.LedgerEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, package_id, kind, delta, balance, booking_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PackageID, e.Kind, e.Delta, e.Balance, e.BookingID, e.Reason, fmtTime(e.CreatedAt),
	)
	return err
}

func (q *queries) EntriesByPackage(ctx context.Context, id booking.PackageID) ([]booking.LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, package_id, kind, delta, balance, booking_id, reason, created_at
		FROM ledger_entries WHERE package_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.LedgerEntry
	for rows.Next() {
		var e booking.LedgerEntry
		var createdAt string
		var bookingID, reason sql.NullString
		if err := rows.Scan(&e.ID, &e.PackageID, &e.Kind, &e.Delta, &e.Balance,
			&bookingID, &reason, &createdAt); err != nil {
			return nil, err
		}
		e.BookingID = booking.BookingID(bookingID.String)
		e.Reason = reason.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ===== WAITLIST =====

const waitlistColumns = `id, session_id, customer_id, position, created_at, notified_at, claim_expires_at`

func (q *queries) PutWaitlistEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO waitlist (`+waitlistColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.SessionID, w.CustomerID, w.Position, fmtTime(w.CreatedAt),
		fmtTimePtr(w.NotifiedAt), fmtTimePtr(w.ClaimExpiresAt),
	)
	return err
}

func (q *queries) GetWaitlistEntry(ctx context.Context, id booking.WaitlistID) (*booking.WaitlistEntry, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist WHERE id = ?`, id)
	return scanWaitlistEntry(row)
}

func (q *queries) UpdateWaitlistEntry(ctx context.Context, w *booking.WaitlistEntry) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE waitlist SET position = ?, notified_at = ?, claim_expires_at = ? WHERE id = ?`,
		w.Position, fmtTimePtr(w.NotifiedAt), fmtTimePtr(w.ClaimExpiresAt), w.ID,
	)
	if err != nil {
		return err
	}
	return mustAffect(res, "waitlist entry", string(w.ID))
}

func (q *queries) DeleteWaitlistEntry(ctx context.Context, id booking.WaitlistID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM waitlist WHERE id = ?`, id)
	return err
}

func (q *queries) WaitlistBySession(ctx context.Context, id booking.SessionID) ([]*booking.WaitlistEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+waitlistColumns+` FROM waitlist WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*booking.WaitlistEntry
	for rows.Next() {
		w, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (q *queries) NextWaitlistPosition(ctx context.Context, id booking.SessionID) (int, error) {
	var next int
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist WHERE session_id = ?`, id).Scan(&next)
	return next, err
}

func scanWaitlistEntry(row rowScanner) (*booking.WaitlistEntry, error) {
	var w booking.WaitlistEntry
	var createdAt string
	var notifiedAt, claimExpiresAt sql.NullString
	err := row.Scan(&w.ID, &w.SessionID, &w.CustomerID, &w.Position,
		&createdAt, &notifiedAt, &claimExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if w.NotifiedAt, err = parseTimePtr(notifiedAt); err != nil {
		return nil, err
	}
	if w.ClaimExpiresAt, err = parseTimePtr(claimExpiresAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// ===== HELPERS =====

// Times are stored as RFC3339 UTC text so lexicographic comparison in
// SQL matches chronological order.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func nullPackageID(id *booking.PackageID) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullAllowanceID(id *booking.AllowanceID) any {
	if id == nil {
		return nil
	}
	return *id
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func mustAffect(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &booking.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
