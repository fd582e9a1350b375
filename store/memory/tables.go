package memory

import (
	"sort"
	"time"

	"github.com/warp/booking-engine/booking"
)

// tables holds the actual state. All methods assume the caller holds the
// store lock; Memory and txView provide the locking (or its absence).
type tables struct {
	sessions map[booking.SessionID]*booking.Session
	packages map[booking.PackageID]*booking.CreditPackage
	bookings map[booking.BookingID]*booking.Booking
	entries  map[booking.PackageID][]booking.LedgerEntry
	waitlist map[booking.WaitlistID]*booking.WaitlistEntry
}

func newTables() *tables {
	return &tables{
		sessions: make(map[booking.SessionID]*booking.Session),
		packages: make(map[booking.PackageID]*booking.CreditPackage),
		bookings: make(map[booking.BookingID]*booking.Booking),
		entries:  make(map[booking.PackageID][]booking.LedgerEntry),
		waitlist: make(map[booking.WaitlistID]*booking.WaitlistEntry),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for id, s := range t.sessions {
		c.sessions[id] = cloneSession(s)
	}
	for id, p := range t.packages {
		c.packages[id] = clonePackage(p)
	}
	for id, b := range t.bookings {
		c.bookings[id] = cloneBooking(b)
	}
	for id, es := range t.entries {
		c.entries[id] = append([]booking.LedgerEntry(nil), es...)
	}
	for id, w := range t.waitlist {
		c.waitlist[id] = cloneWaitlistEntry(w)
	}
	return c
}

// ===== SESSIONS =====

func (t *tables) putSession(s *booking.Session) error {
	t.sessions[s.ID] = cloneSession(s)
	return nil
}

func (t *tables) getSession(id booking.SessionID) (*booking.Session, error) {
	s, ok := t.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (t *tables) updateSession(s *booking.Session) error {
	if _, ok := t.sessions[s.ID]; !ok {
		return &booking.NotFoundError{Kind: "session", ID: string(s.ID)}
	}
	t.sessions[s.ID] = cloneSession(s)
	return nil
}

func (t *tables) instructorSessionsInRange(id booking.InstructorID, from, to time.Time) ([]*booking.Session, error) {
	var out []*booking.Session
	for _, s := range t.sessions {
		if s.InstructorID == id && s.Status == booking.SessionScheduled && s.Overlaps(from, to) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// ===== PACKAGES =====

func (t *tables) putPackage(p *booking.CreditPackage) error {
	t.packages[p.ID] = clonePackage(p)
	return nil
}

func (t *tables) getPackage(id booking.PackageID) (*booking.CreditPackage, error) {
	p, ok := t.packages[id]
	if !ok {
		return nil, nil
	}
	return clonePackage(p), nil
}

func (t *tables) packagesByCustomer(id booking.CustomerID) ([]*booking.CreditPackage, error) {
	var out []*booking.CreditPackage
	for _, p := range t.packages {
		if p.CustomerID == id {
			out = append(out, clonePackage(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tables) updateBalance(id booking.PackageID, remaining int, retired bool) error {
	p, ok := t.packages[id]
	if !ok {
		return &booking.NotFoundError{Kind: "package", ID: string(id)}
	}
	p.Remaining = remaining
	p.Retired = retired
	return nil
}

// ===== BOOKINGS =====

func (t *tables) putBooking(b *booking.Booking) error {
	t.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (t *tables) getBooking(id booking.BookingID) (*booking.Booking, error) {
	b, ok := t.bookings[id]
	if !ok {
		return nil, nil
	}
	return cloneBooking(b), nil
}

func (t *tables) updateBooking(b *booking.Booking) error {
	if _, ok := t.bookings[b.ID]; !ok {
		return &booking.NotFoundError{Kind: "booking", ID: string(b.ID)}
	}
	t.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (t *tables) confirmedCount(id booking.SessionID) (int, error) {
	n := 0
	for _, b := range t.bookings {
		if b.SessionID == id && b.Status == booking.BookingConfirmed {
			n++
		}
	}
	return n, nil
}

func (t *tables) confirmedBooking(sessionID booking.SessionID, customerID booking.CustomerID) (*booking.Booking, error) {
	for _, b := range t.bookings {
		if b.SessionID == sessionID && b.CustomerID == customerID && b.Status == booking.BookingConfirmed {
			return cloneBooking(b), nil
		}
	}
	return nil, nil
}

// ===== LEDGER ENTRIES =====

func (t *tables) appendEntry(e booking.LedgerEntry) error {
	t.entries[e.PackageID] = append(t.entries[e.PackageID], e)
	return nil
}

func (t *tables) entriesByPackage(id booking.PackageID) ([]booking.LedgerEntry, error) {
	return append([]booking.LedgerEntry(nil), t.entries[id]...), nil
}

// ===== WAITLIST =====

func (t *tables) putWaitlistEntry(w *booking.WaitlistEntry) error {
	t.waitlist[w.ID] = cloneWaitlistEntry(w)
	return nil
}

func (t *tables) getWaitlistEntry(id booking.WaitlistID) (*booking.WaitlistEntry, error) {
	w, ok := t.waitlist[id]
	if !ok {
		return nil, nil
	}
	return cloneWaitlistEntry(w), nil
}

func (t *tables) updateWaitlistEntry(w *booking.WaitlistEntry) error {
	if _, ok := t.waitlist[w.ID]; !ok {
		return &booking.NotFoundError{Kind: "waitlist entry", ID: string(w.ID)}
	}
	t.waitlist[w.ID] = cloneWaitlistEntry(w)
	return nil
}

func (t *tables) deleteWaitlistEntry(id booking.WaitlistID) error {
	delete(t.waitlist, id)
	return nil
}

func (t *tables) waitlistBySession(id booking.SessionID) ([]*booking.WaitlistEntry, error) {
	var out []*booking.WaitlistEntry
	for _, w := range t.waitlist {
		if w.SessionID == id {
			out = append(out, cloneWaitlistEntry(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *tables) nextWaitlistPosition(id booking.SessionID) (int, error) {
	max := 0
	for _, w := range t.waitlist {
		if w.SessionID == id && w.Position > max {
			max = w.Position
		}
	}
	return max + 1, nil
}

// ===== COPY HELPERS =====

func cloneSession(s *booking.Session) *booking.Session {
	c := *s
	return &c
}

func clonePackage(p *booking.CreditPackage) *booking.CreditPackage {
	c := *p
	c.Allowances = append([]booking.Allowance(nil), p.Allowances...)
	if p.ExpiresAt != nil {
		exp := *p.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	c := *b
	if b.PackageID != nil {
		id := *b.PackageID
		c.PackageID = &id
	}
	if b.AllowanceID != nil {
		id := *b.AllowanceID
		c.AllowanceID = &id
	}
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

func cloneWaitlistEntry(w *booking.WaitlistEntry) *booking.WaitlistEntry {
	c := *w
	if w.NotifiedAt != nil {
		at := *w.NotifiedAt
		c.NotifiedAt = &at
	}
	if w.ClaimExpiresAt != nil {
		at := *w.ClaimExpiresAt
		c.ClaimExpiresAt = &at
	}
	return &c
}
