package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
)

// memStore is an in-memory stand-in for the Postgres repositories. Every
// operation runs under one mutex, mirroring the row locks the real queries take.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	rooms    map[int64]*models.Room
	users    map[int64]*models.User
	bookings map[int64]*models.Booking
	payments map[string]*models.Payment
	sessions map[string]*models.UserSession
	events   []*models.PaymentEvent

	// duplicateRefs makes the next N payment inserts collide
	duplicateRefs int
	paymentErr    error
}

func newMemStore() *memStore {
	return &memStore{
		rooms:    make(map[int64]*models.Room),
		users:    make(map[int64]*models.User),
		bookings: make(map[int64]*models.Booking),
		payments: make(map[string]*models.Payment),
		sessions: make(map[string]*models.UserSession),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addRoom(room models.Room) *models.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room.ID == 0 {
		room.ID = m.id()
	}
	m.rooms[room.ID] = &room
	return &room
}

func (m *memStore) booking(id int64) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

func (m *memStore) payment(ref string) models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.payments[ref]
}

func (m *memStore) eventTypes() []models.PaymentEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]models.PaymentEventType, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.EventType)
	}
	return types
}

func (m *memStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// failPendingLocked fails a booking's pending payments; caller holds mu
func (m *memStore) failPendingLocked(bookingID int64) []string {
	var refs []string
	for ref, p := range m.payments {
		if p.BookingID == bookingID && p.Status == models.PaymentStatusPending {
			p.Status = models.PaymentStatusFailed
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs
}

// ---------------------------------------------------------------------------

type memRooms struct{ *memStore }

func (r memRooms) GetByID(_ context.Context, id int64) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *room
	return &cp, nil
}

func (r memRooms) GetBySlug(_ context.Context, slug string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.Slug == slug {
			cp := *room
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memRooms) ListAvailable(_ context.Context) ([]models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rooms []models.Room
	for _, room := range r.rooms {
		if room.IsAvailable {
			rooms = append(rooms, *room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].PricePerNight < rooms[j].PricePerNight })
	return rooms, nil
}

func (r memRooms) ListFreeForStay(ctx context.Context, stay models.StayRange) ([]models.Room, error) {
	candidates, _ := r.ListAvailable(ctx)
	r.mu.Lock()
	bookings := make([]models.Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		bookings = append(bookings, *b)
	}
	r.mu.Unlock()
	return AvailableRooms(candidates, bookings, stay), nil
}

// ---------------------------------------------------------------------------

type memUsers struct{ *memStore }

func (u memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (u memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (u memUsers) InsertGuestIfAbsent(_ context.Context, email, firstName, lastName, phone string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Email == email {
			return nil, nil
		}
	}
	user := &models.User{
		ID:        u.id(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Phone:     models.NewNullString(phone),
		Role:      models.RoleGuest,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	u.users[user.ID] = user
	cp := *user
	return &cp, nil
}

func (u memUsers) Create(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.users {
		if existing.Email == user.Email {
			return database.ErrEmailTaken
		}
	}
	user.ID = u.id()
	user.IsActive = true
	user.CreatedAt = time.Now()
	cp := *user
	u.users[user.ID] = &cp
	return nil
}

func (u memUsers) UpdateLastLogin(_ context.Context, id int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.users[id]; ok {
		user.LastLogin = models.NullTime{}
		user.LastLogin.Time, user.LastLogin.Valid = time.Now(), true
	}
	return nil
}

// ---------------------------------------------------------------------------

type memBookings struct{ *memStore }

func (b memBookings) CreateIfAvailable(_ context.Context, booking *models.Booking, validate func(room *models.Room) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, ok := b.rooms[booking.RoomID]
	if !ok {
		return database.ErrRoomNotFound
	}
	if !room.IsAvailable {
		return database.ErrRoomUnavailable
	}
	if validate != nil {
		if err := validate(room); err != nil {
			return err
		}
	}
	for _, existing := range b.bookings {
		if existing.RoomID == booking.RoomID && existing.Status.IsActive() && existing.Stay().Overlaps(booking.Stay()) {
			return database.ErrRoomUnavailable
		}
	}

	booking.ID = b.id()
	booking.Status = models.BookingStatusPending
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	cp := *booking
	b.bookings[booking.ID] = &cp
	return nil
}

func (b memBookings) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	booking, ok := b.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *booking
	return &cp, nil
}

func (b memBookings) TransitionStatus(_ context.Context, id int64, next models.BookingStatus) (*models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	booking, ok := b.bookings[id]
	if !ok {
		return nil, database.ErrBookingNotFound
	}
	if err := booking.Status.ValidateTransition(next); err != nil {
		return nil, err
	}
	booking.Status = next
	cp := *booking
	return &cp, nil
}

func (b memBookings) Cancel(_ context.Context, id int64) (*models.Booking, []string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	booking, ok := b.bookings[id]
	if !ok {
		return nil, nil, database.ErrBookingNotFound
	}
	if err := booking.Status.ValidateTransition(models.BookingStatusCancelled); err != nil {
		return nil, nil, err
	}
	booking.Status = models.BookingStatusCancelled
	refs := b.failPendingLocked(id)
	cp := *booking
	return &cp, refs, nil
}

func (b memBookings) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var stale []models.Booking
	for _, booking := range b.bookings {
		if booking.Status == models.BookingStatusPending && booking.CreatedAt.Before(cutoff) {
			stale = append(stale, *booking)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (b memBookings) ExpirePending(_ context.Context, id int64, cutoff time.Time) (bool, []string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	booking, ok := b.bookings[id]
	if !ok || booking.Status != models.BookingStatusPending || !booking.CreatedAt.Before(cutoff) {
		return false, nil, nil
	}
	booking.Status = models.BookingStatusCancelled
	return true, b.failPendingLocked(id), nil
}

// ---------------------------------------------------------------------------

type memPayments struct{ *memStore }

func (p memPayments) Create(_ context.Context, payment *models.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paymentErr != nil {
		return p.paymentErr
	}
	if p.duplicateRefs > 0 {
		p.duplicateRefs--
		return database.ErrDuplicateReference
	}
	if _, ok := p.payments[payment.Reference]; ok {
		return database.ErrDuplicateReference
	}
	for _, existing := range p.payments {
		if existing.BookingID == payment.BookingID && existing.Status != models.PaymentStatusFailed {
			return database.ErrActivePayment
		}
	}
	payment.ID = p.id()
	payment.Status = models.PaymentStatusPending
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	cp := *payment
	p.payments[payment.Reference] = &cp
	return nil
}

func (p memPayments) GetByReference(_ context.Context, reference string) (*models.PaymentWithBooking, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payment, ok := p.payments[reference]
	if !ok {
		return nil, nil
	}
	booking := p.bookings[payment.BookingID]
	joined := &models.PaymentWithBooking{
		Payment:       *payment,
		UserID:        booking.UserID,
		RoomID:        booking.RoomID,
		BookingStatus: booking.Status,
	}
	if user, ok := p.users[booking.UserID]; ok {
		joined.GuestEmail = user.Email
	}
	return joined, nil
}

func (p memPayments) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var stale []models.Payment
	for _, payment := range p.payments {
		if payment.Status == models.PaymentStatusPending && payment.CreatedAt.Before(cutoff) {
			stale = append(stale, *payment)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (p memPayments) MarkFailed(_ context.Context, reference string, gatewayResponse models.JSONB) (*models.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payment, ok := p.payments[reference]
	if !ok {
		return nil, database.ErrPaymentNotFound
	}
	if payment.Status != models.PaymentStatusFailed {
		if err := payment.Status.ValidateTransition(models.PaymentStatusFailed); err != nil {
			return nil, err
		}
		payment.Status = models.PaymentStatusFailed
		payment.GatewayResponse = gatewayResponse
	}
	cp := *payment
	return &cp, nil
}

func (p memPayments) SettleSuccess(_ context.Context, reference string, gatewayResponse models.JSONB) (*models.Settlement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payment, ok := p.payments[reference]
	if !ok {
		return nil, database.ErrPaymentNotFound
	}
	booking := p.bookings[payment.BookingID]

	if payment.Status == models.PaymentStatusSuccess && booking.Status == models.BookingStatusPaid {
		pc, bc := *payment, *booking
		return &models.Settlement{Payment: &pc, Booking: &bc, AlreadySettled: true}, nil
	}
	if err := payment.Status.ValidateTransition(models.PaymentStatusSuccess); err != nil {
		return nil, err
	}

	next := booking.Status
	if next == models.BookingStatusPending {
		next = models.BookingStatusConfirmed
	}
	if err := next.ValidateTransition(models.BookingStatusPaid); err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusPaid
	payment.Status = models.PaymentStatusSuccess
	payment.GatewayResponse = gatewayResponse
	pc, bc := *payment, *booking
	return &models.Settlement{Payment: &pc, Booking: &bc}, nil
}

// ---------------------------------------------------------------------------

type memEvents struct{ *memStore }

func (e memEvents) Log(_ context.Context, event *models.PaymentEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	event.ID = e.id()
	e.events = append(e.events, event)
	return nil
}

type memSessions struct{ *memStore }

func (s memSessions) Create(_ context.Context, session *models.UserSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.CreatedAt = time.Now()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s memSessions) GetActive(_ context.Context, id string) (*models.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || !session.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s memSessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// ---------------------------------------------------------------------------

// fakeGateway scripts Paystack answers per reference
type fakeGateway struct {
	mu          sync.Mutex
	initErr     error
	initCalls   []InitializeTransactionParams
	verifyCalls int

	// statuses are returned in order; the last one repeats
	statuses  map[string][]string
	verifyErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string][]string)}
}

func (g *fakeGateway) script(reference string, statuses ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[reference] = statuses
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}

func (g *fakeGateway) InitializeTransaction(_ context.Context, params InitializeTransactionParams) (*PaystackInitializeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls = append(g.initCalls, params)
	if g.initErr != nil {
		return nil, g.initErr
	}
	resp := &PaystackInitializeResponse{Status: true, Message: "Authorization URL created"}
	resp.Data.AuthorizationURL = "https://checkout.paystack.com/" + params.Reference
	resp.Data.AccessCode = "ac_" + params.Reference
	resp.Data.Reference = params.Reference
	return resp, nil
}

func (g *fakeGateway) VerifyTransaction(_ context.Context, reference string) (*PaystackVerifyResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}

	status := PaystackStatusAbandoned
	if queue := g.statuses[reference]; len(queue) > 0 {
		status = queue[0]
		if len(queue) > 1 {
			g.statuses[reference] = queue[1:]
		}
	}
	return &PaystackVerifyResponse{
		Status:  true,
		Message: "Verification successful",
		Data:    PaystackTransaction{Status: status, Reference: reference},
		Raw:     models.JSONB{"status": true, "data": map[string]interface{}{"status": status}},
	}, nil
}
