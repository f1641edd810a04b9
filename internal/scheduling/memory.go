package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend is an in-process scheduling backend for local runs and tests.
// It opens weekday slots between 09:00 and 17:00 in its location and, like
// hosted practice systems, reports slot times in that location.
type MemoryBackend struct {
	mu           sync.Mutex
	loc          *time.Location
	duration     time.Duration
	appointments map[string]*Appointment
	patients     map[string]Patient
	idempotent   map[string]string
	failures     map[string]error
	calls        map[string]int
}

func NewMemoryBackend(loc *time.Location, slotDuration time.Duration) *MemoryBackend {
	if loc == nil {
		loc = time.UTC
	}
	if slotDuration <= 0 {
		slotDuration = 15 * time.Minute
	}
	return &MemoryBackend{
		loc:          loc,
		duration:     slotDuration,
		appointments: make(map[string]*Appointment),
		patients:     make(map[string]Patient),
		idempotent:   make(map[string]string),
		failures:     make(map[string]error),
		calls:        make(map[string]int),
	}
}

// FailWith makes every call of op return err until cleared with a nil err.
func (m *MemoryBackend) FailWith(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls reports how many times op reached the backend.
func (m *MemoryBackend) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Appointment returns a copy of a stored appointment.
func (m *MemoryBackend) Appointment(id string) (Appointment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return Appointment{}, false
	}
	return *a, true
}

// Seed stores an appointment as if it had been booked earlier.
func (m *MemoryBackend) Seed(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := a
	m.appointments[a.ID] = &c
}

// SeedPatient registers a known patient.
func (m *MemoryBackend) SeedPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryBackend) enter(op string) error {
	m.calls[op]++
	if err, ok := m.failures[op]; ok {
		return err
	}
	return nil
}

func (m *MemoryBackend) ListAvailability(ctx context.Context, q AvailabilityQuery) ([]SlotOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListAvailability); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: OpListAvailability, Kind: ErrUnavailable, Err: err}
	}

	taken := make(map[int64]bool)
	for _, a := range m.appointments {
		if a.CancelledAt == nil && a.PractitionerID == q.PractitionerID {
			taken[a.Start.Unix()] = true
		}
	}

	var out []SlotOption
	day := time.Date(q.From.In(m.loc).Year(), q.From.In(m.loc).Month(), q.From.In(m.loc).Day(), 0, 0, 0, 0, m.loc)
	for ; day.Before(q.To); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		open := day.Add(9 * time.Hour)
		closing := day.Add(17 * time.Hour)
		for start := open; start.Add(m.duration).Compare(closing) <= 0; start = start.Add(m.duration) {
			if start.Before(q.From) || !start.Before(q.To) || taken[start.Unix()] {
				continue
			}
			out = append(out, SlotOption{
				Start:             start,
				End:               start.Add(m.duration),
				PractitionerID:    q.PractitionerID,
				AppointmentTypeID: q.AppointmentTypeID,
			})
		}
	}
	return out, nil
}

func (m *MemoryBackend) CreateAppointment(_ context.Context, req AppointmentRequest, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCreateAppointment); err != nil {
		return "", err
	}
	if id, ok := m.idempotent[idempotencyKey]; ok && idempotencyKey != "" {
		return id, nil
	}
	for _, a := range m.appointments {
		if a.CancelledAt == nil && a.PractitionerID == req.PractitionerID && a.Start.Equal(req.Start) {
			return "", &Error{Op: OpCreateAppointment, Status: 409, Kind: ErrConflict, Err: fmt.Errorf("slot %s taken", req.Start.Format(time.RFC3339))}
		}
	}
	id := "appt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	m.appointments[id] = &Appointment{
		ID:                id,
		PatientID:         req.PatientID,
		PractitionerID:    req.PractitionerID,
		AppointmentTypeID: req.AppointmentTypeID,
		Start:             req.Start.UTC(),
	}
	if idempotencyKey != "" {
		m.idempotent[idempotencyKey] = id
	}
	return id, nil
}

func (m *MemoryBackend) PatchAppointment(_ context.Context, id string, start time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpPatchAppointment); err != nil {
		return err
	}
	a, ok := m.appointments[id]
	if !ok || a.CancelledAt != nil {
		return &Error{Op: OpPatchAppointment, Status: 410, Kind: ErrConflict}
	}
	a.Start = start.UTC()
	return nil
}

func (m *MemoryBackend) CancelAppointment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCancelAppointment); err != nil {
		return err
	}
	a, ok := m.appointments[id]
	if !ok {
		return &Error{Op: OpCancelAppointment, Status: 404, Kind: ErrConflict}
	}
	if a.CancelledAt == nil {
		now := time.Now().UTC()
		a.CancelledAt = &now
	}
	return nil
}

func (m *MemoryBackend) ListAppointments(_ context.Context, patientID string, from time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListAppointments); err != nil {
		return nil, err
	}
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID && !a.Start.Before(from) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *MemoryBackend) FindPatients(_ context.Context, phone, name string) ([]Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpFindPatients); err != nil {
		return nil, err
	}
	var out []Patient
	for _, p := range m.patients {
		if p.Phone != phone {
			continue
		}
		if name != "" && !strings.EqualFold(p.Name, name) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryBackend) CreatePatient(_ context.Context, p Patient) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCreatePatient); err != nil {
		return "", err
	}
	p.ID = "pat_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	m.patients[p.ID] = p
	return p.ID, nil
}
