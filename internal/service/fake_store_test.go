package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/train-ticket-booking/internal/model"
	"github.com/iliyamo/train-ticket-booking/internal/queue"
	"github.com/iliyamo/train-ticket-booking/internal/repository"
)

// memStore is an in-memory BookingStore.  InTx holds one mutex for the
// whole transaction and restores a snapshot when fn fails, which gives the
// same all-or-nothing and serialized behaviour the MySQL store relies on.
type memStore struct {
	mu         sync.Mutex
	schedules  map[uint64]model.Schedule
	pools      map[uint64]int
	bookings   map[uint64]model.Booking
	passengers map[uint64][]model.Passenger
	nextID     uint64

	failPassengers error
}

func newMemStore() *memStore {
	return &memStore{
		schedules:  map[uint64]model.Schedule{},
		pools:      map[uint64]int{},
		bookings:   map[uint64]model.Booking{},
		passengers: map[uint64][]model.Passenger{},
	}
}

func (m *memStore) addSchedule(id uint64, seats int, price model.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[id] = model.Schedule{ID: id, TrainID: 1, OriginID: 1, DestinationID: 2,
		Price: price, AvailableSeats: seats, IsActive: true}
	m.pools[id] = seats
}

func (m *memStore) available(id uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[id].AvailableSeats
}

func (m *memStore) setPrice(id uint64, p model.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.schedules[id]
	s.Price = p
	m.schedules[id] = s
}

func (m *memStore) setActive(id uint64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.schedules[id]
	s.IsActive = active
	m.schedules[id] = s
}

func (m *memStore) bookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

type memSnapshot struct {
	schedules  map[uint64]model.Schedule
	bookings   map[uint64]model.Booking
	passengers map[uint64][]model.Passenger
	nextID     uint64
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		schedules:  make(map[uint64]model.Schedule, len(m.schedules)),
		bookings:   make(map[uint64]model.Booking, len(m.bookings)),
		passengers: make(map[uint64][]model.Passenger, len(m.passengers)),
		nextID:     m.nextID,
	}
	for k, v := range m.schedules {
		s.schedules[k] = v
	}
	for k, v := range m.bookings {
		s.bookings[k] = v
	}
	for k, v := range m.passengers {
		s.passengers[k] = append([]model.Passenger(nil), v...)
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.schedules, m.bookings, m.passengers, m.nextID = s.schedules, s.bookings, s.passengers, s.nextID
}

func (m *memStore) InTx(ctx context.Context, fn func(q repository.TxQueries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) GetDetail(ctx context.Context, id uint64) (model.BookingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detailLocked(id)
}

func (m *memStore) detailLocked(id uint64) (model.BookingDetail, error) {
	b, ok := m.bookings[id]
	if !ok {
		return model.BookingDetail{}, repository.ErrBookingNotFound
	}
	s := m.schedules[b.ScheduleID]
	return model.BookingDetail{
		Booking:    b,
		Price:      s.Price,
		Passengers: append([]model.Passenger{}, m.passengers[id]...),
	}, nil
}

func (m *memStore) ListDetails(ctx context.Context, userID *uint64) ([]model.BookingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.BookingDetail{}
	for id := m.nextID; id >= 1; id-- {
		b, ok := m.bookings[id]
		if !ok || (userID != nil && b.UserID != *userID) {
			continue
		}
		d, _ := m.detailLocked(id)
		out = append(out, d)
	}
	return out, nil
}

type memTx struct{ m *memStore }

func (t memTx) GetSchedule(ctx context.Context, id uint64) (model.Schedule, error) {
	s, ok := t.m.schedules[id]
	if !ok {
		return s, repository.ErrScheduleNotFound
	}
	return s, nil
}

func (t memTx) ReserveSeats(ctx context.Context, scheduleID uint64, n int) error {
	if n < 1 {
		return repository.ErrInvalidSeatCount
	}
	s, ok := t.m.schedules[scheduleID]
	if !ok {
		return repository.ErrScheduleNotFound
	}
	if s.AvailableSeats < n {
		return repository.ErrInsufficientSeats
	}
	s.AvailableSeats -= n
	t.m.schedules[scheduleID] = s
	return nil
}

func (t memTx) ReleaseSeats(ctx context.Context, scheduleID uint64, n int) error {
	if n < 1 {
		return repository.ErrInvalidSeatCount
	}
	s, ok := t.m.schedules[scheduleID]
	if !ok {
		return repository.ErrScheduleNotFound
	}
	s.AvailableSeats += n
	if pool := t.m.pools[scheduleID]; s.AvailableSeats > pool {
		s.AvailableSeats = pool
	}
	t.m.schedules[scheduleID] = s
	return nil
}

func (t memTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	for _, other := range t.m.bookings {
		if other.BookingCode == b.BookingCode {
			return repository.ErrDuplicate
		}
	}
	t.m.nextID++
	b.ID = t.m.nextID
	b.CreatedAt = b.BookingDate
	b.UpdatedAt = b.BookingDate
	t.m.bookings[b.ID] = *b
	return nil
}

func (t memTx) InsertPassengers(ctx context.Context, bookingID uint64, ps []model.Passenger) error {
	if t.m.failPassengers != nil {
		return t.m.failPassengers
	}
	for i := range ps {
		ps[i].ID = uint64(i + 1)
		ps[i].BookingID = bookingID
	}
	t.m.passengers[bookingID] = append([]model.Passenger(nil), ps...)
	return nil
}

func (t memTx) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	b, ok := t.m.bookings[id]
	if !ok {
		return b, repository.ErrBookingNotFound
	}
	return b, nil
}

func (t memTx) CountPassengers(ctx context.Context, bookingID uint64) (int, error) {
	return len(t.m.passengers[bookingID]), nil
}

func (t memTx) UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus, paymentDate *time.Time) (model.Booking, error) {
	b, ok := t.m.bookings[id]
	if !ok {
		return b, repository.ErrBookingNotFound
	}
	if b.Status != from {
		return b, repository.ErrInvalidTransition
	}
	b.Status = to
	if paymentDate != nil {
		p := *paymentDate
		b.PaymentDate = &p
	}
	t.m.bookings[id] = b
	return b, nil
}

// memIdem is an in-memory IdempotencyStore.
type memIdem struct {
	mu   sync.Mutex
	keys map[string]uint64 // 0 = in flight
}

func newMemIdem() *memIdem { return &memIdem{keys: map[string]uint64{}} }

func (i *memIdem) Claim(ctx context.Context, key string) (uint64, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if id, ok := i.keys[key]; ok {
		return id, false, nil
	}
	i.keys[key] = 0
	return 0, true, nil
}

func (i *memIdem) Complete(ctx context.Context, key string, bookingID uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[key] = bookingID
	return nil
}

func (i *memIdem) Release(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keys, key)
	return nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingEvent
	err    error
}

func (p *recordingPublisher) PublishBookingEvent(ctx context.Context, ev queue.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
