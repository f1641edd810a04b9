package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/antoniostano/phonedesk/internal/reliability"
)

// replacementAttempts bounds the create retries after a fallback cancel.
const replacementAttempts = 3

// Executor wraps the backend with bounded timeouts, idempotent writes, the
// reschedule fallback and a last-known availability cache.
type Executor struct {
	backend Backend
	idem    *IdempotencyStore
	timeout time.Duration
	flight  singleflight.Group

	cacheMu sync.Mutex
	cache   map[string][]SlotOption

	observe func(op, outcome string)
}

func NewExecutor(backend Backend, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Executor{
		backend: backend,
		idem:    NewIdempotencyStore(),
		timeout: timeout,
		cache:   make(map[string][]SlotOption),
	}
}

// SetObserver registers a callback receiving (operation, outcome) pairs.
func (e *Executor) SetObserver(fn func(op, outcome string)) {
	e.observe = fn
}

// Forget releases idempotency records of a finished call.
func (e *Executor) Forget(callSid string) {
	e.idem.Forget(callSid)
}

func (e *Executor) record(op string, err error) {
	if e.observe == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnavailable):
		outcome = "unavailable"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case errors.Is(err, ErrUnsupported):
		outcome = "unsupported"
	default:
		outcome = "fatal"
	}
	e.observe(op, outcome)
}

// bounded applies the executor timeout and maps a context expiry onto ErrUnavailable.
func (e *Executor) bounded(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	err := fn(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) && !errors.Is(err, ErrUnavailable) {
		err = &Error{Op: op, Kind: ErrUnavailable, Err: err}
	}
	if err != nil {
		var be *Error
		if !errors.As(err, &be) {
			err = &Error{Op: op, Kind: ErrFatal, Err: err}
		}
	}
	e.record(op, err)
	return err
}

// ListAvailability returns free slots ordered by start time. An empty result
// is not an error. When the backend is unavailable the last answer for the
// same query is served if there is one.
func (e *Executor) ListAvailability(ctx context.Context, q AvailabilityQuery) ([]SlotOption, error) {
	key := fmt.Sprintf("%s|%s|%d|%d", q.PractitionerID, q.AppointmentTypeID, q.From.Unix(), q.To.Unix())

	var slots []SlotOption
	err := e.bounded(ctx, OpListAvailability, func(ctx context.Context) error {
		var err error
		slots, err = e.backend.ListAvailability(ctx, q)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			e.cacheMu.Lock()
			cached, ok := e.cache[key]
			e.cacheMu.Unlock()
			if ok {
				logger.WarnContext(ctx, "serving cached availability", "error", err)
				return cached, nil
			}
		}
		return nil, err
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	e.cacheMu.Lock()
	e.cache[key] = slots
	e.cacheMu.Unlock()
	return slots, nil
}

// CreateAppointment books once per key: a retried identical request returns
// the appointment created the first time.
func (e *Executor) CreateAppointment(ctx context.Context, key IdempotencyKey, req AppointmentRequest) (string, error) {
	if id, ok := e.idem.Get(key); ok {
		return id, nil
	}
	v, err, _ := e.flight.Do(key.String(), func() (any, error) {
		if id, ok := e.idem.Get(key); ok {
			return id, nil
		}
		var id string
		err := e.bounded(ctx, OpCreateAppointment, func(ctx context.Context) error {
			var err error
			id, err = e.backend.CreateAppointment(ctx, req, key.UUID())
			return err
		})
		if err != nil {
			return "", err
		}
		e.idem.Put(key, id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// RescheduleResult describes how an appointment was moved.
type RescheduleResult struct {
	AppointmentID string
	FellBack      bool
	// Cancelled is set with an error when the fallback cancelled the old
	// appointment but could not book the replacement. The caller must finish
	// with CreateAppointment under the same key.
	Cancelled bool
}

// Reschedule moves appt to newStart with PATCH. When the backend does not
// support PATCH it cancels the old appointment and creates a new one for the
// same patient, practitioner and type, retrying an unavailable backend with
// the same key. Other failures are returned as is.
func (e *Executor) Reschedule(ctx context.Context, key IdempotencyKey, appt Appointment, newStart time.Time) (RescheduleResult, error) {
	if id, ok := e.idem.Get(key); ok {
		return RescheduleResult{AppointmentID: id, FellBack: id != appt.ID}, nil
	}

	err := e.bounded(ctx, OpPatchAppointment, func(ctx context.Context) error {
		return e.backend.PatchAppointment(ctx, appt.ID, newStart)
	})
	if err == nil {
		e.idem.Put(key, appt.ID)
		return RescheduleResult{AppointmentID: appt.ID}, nil
	}
	if !errors.Is(err, ErrUnsupported) {
		return RescheduleResult{}, err
	}

	logger.InfoContext(ctx, "patch unsupported, falling back to cancel and create", "appointment_id", appt.ID, "error", err)
	if e.observe != nil {
		e.observe("reschedule", "fallback")
	}
	if err := e.Cancel(ctx, appt.ID); err != nil {
		return RescheduleResult{}, fmt.Errorf("reschedule fallback cancel: %w", err)
	}
	req := AppointmentRequest{
		PatientID:         appt.PatientID,
		PractitionerID:    appt.PractitionerID,
		AppointmentTypeID: appt.AppointmentTypeID,
		Start:             newStart,
	}
	var id string
	err = reliability.Retry(ctx, replacementAttempts, 100*time.Millisecond, time.Second, isUnavailable, func(ctx context.Context) error {
		var err error
		id, err = e.CreateAppointment(ctx, key, req)
		return err
	})
	if err != nil {
		logger.ErrorContext(ctx, "old appointment cancelled, replacement not booked", "appointment_id", appt.ID, "error", err)
		return RescheduleResult{FellBack: true, Cancelled: true}, fmt.Errorf("reschedule fallback create: %w", err)
	}
	return RescheduleResult{AppointmentID: id, FellBack: true}, nil
}

// Cancel is eventually idempotent: cancelling an already cancelled appointment succeeds.
func (e *Executor) Cancel(ctx context.Context, id string) error {
	return e.bounded(ctx, OpCancelAppointment, func(ctx context.Context) error {
		return e.backend.CancelAppointment(ctx, id)
	})
}

// NextUpcoming returns the earliest future, non-cancelled appointment of a
// patient, or nil when there is none.
func (e *Executor) NextUpcoming(ctx context.Context, patientID string, now time.Time) (*Appointment, error) {
	var list []Appointment
	err := e.bounded(ctx, OpListAppointments, func(ctx context.Context) error {
		var err error
		list, err = e.backend.ListAppointments(ctx, patientID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	var next *Appointment
	for i := range list {
		a := list[i]
		if a.CancelledAt != nil || !a.Start.After(now) {
			continue
		}
		if next == nil || a.Start.Before(next.Start) {
			next = &a
		}
	}
	return next, nil
}

// ResolvePatient finds a patient by phone and name, creating one when create
// is set and nobody matches. found reports whether the patient already existed.
func (e *Executor) ResolvePatient(ctx context.Context, phone, name string, create bool) (p Patient, found bool, err error) {
	var matches []Patient
	err = e.bounded(ctx, OpFindPatients, func(ctx context.Context) error {
		var err error
		matches, err = e.backend.FindPatients(ctx, phone, name)
		return err
	})
	if err != nil {
		return Patient{}, false, err
	}
	for _, m := range matches {
		if name == "" || strings.EqualFold(strings.TrimSpace(m.Name), strings.TrimSpace(name)) {
			return m, true, nil
		}
	}
	if len(matches) == 1 && name == "" {
		return matches[0], true, nil
	}
	if !create {
		return Patient{}, false, nil
	}

	p = Patient{Name: name, Phone: phone}
	err = e.bounded(ctx, OpCreatePatient, func(ctx context.Context) error {
		var err error
		p.ID, err = e.backend.CreatePatient(ctx, p)
		return err
	})
	if err != nil {
		return Patient{}, false, err
	}
	return p, false, nil
}
