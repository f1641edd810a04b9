package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var sydney = mustLoad("Australia/Sydney")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func seededBackend(t *testing.T) (*MemoryBackend, Appointment) {
	t.Helper()
	b := NewMemoryBackend(sydney, 15*time.Minute)
	appt := Appointment{
		ID:                "appt_existing",
		PatientID:         "pat_1",
		PractitionerID:    "pr_1",
		AppointmentTypeID: "type_1",
		Start:             time.Date(2030, 3, 4, 10, 0, 0, 0, sydney).UTC(),
	}
	b.Seed(appt)
	return b, appt
}

func TestIdempotencyKeyUUIDStable(t *testing.T) {
	a := IdempotencyKey{CallSid: "CA1", Participant: 1, Turn: 4}
	b := IdempotencyKey{CallSid: "CA1", Participant: 1, Turn: 4}
	if a.UUID() != b.UUID() {
		t.Fatalf("UUID() differs for equal keys: %q vs %q", a.UUID(), b.UUID())
	}
	c := IdempotencyKey{CallSid: "CA1", Participant: 2, Turn: 4}
	if a.UUID() == c.UUID() {
		t.Fatalf("UUID() equal for different participants")
	}
}

func TestCreateAppointmentDeduplicatesByKey(t *testing.T) {
	b := NewMemoryBackend(sydney, 15*time.Minute)
	exec := NewExecutor(b, time.Second)
	key := IdempotencyKey{CallSid: "CA1", Participant: 0, Turn: 3}
	req := AppointmentRequest{PatientID: "pat_1", PractitionerID: "pr_1", Start: time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)}

	first, err := exec.CreateAppointment(t.Context(), key, req)
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	second, err := exec.CreateAppointment(t.Context(), key, req)
	if err != nil {
		t.Fatalf("CreateAppointment() retry error = %v", err)
	}
	if first != second {
		t.Fatalf("CreateAppointment() ids = %q, %q, want equal", first, second)
	}
	if got := b.Calls(OpCreateAppointment); got != 1 {
		t.Fatalf("backend create calls = %d, want 1", got)
	}
}

func TestCreateAppointmentConcurrentSameKey(t *testing.T) {
	b := NewMemoryBackend(sydney, 15*time.Minute)
	exec := NewExecutor(b, time.Second)
	key := IdempotencyKey{CallSid: "CA2", Participant: 1, Turn: 5}
	req := AppointmentRequest{PatientID: "pat_1", PractitionerID: "pr_1", Start: time.Date(2030, 3, 4, 1, 0, 0, 0, time.UTC)}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := exec.CreateAppointment(context.Background(), key, req)
			if err != nil {
				t.Errorf("CreateAppointment() error = %v", err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent ids differ: %v", ids)
		}
	}
}

func TestRescheduleUsesPatchWhenSupported(t *testing.T) {
	b, appt := seededBackend(t)
	exec := NewExecutor(b, time.Second)
	newStart := appt.Start.Add(24 * time.Hour)

	res, err := exec.Reschedule(t.Context(), IdempotencyKey{CallSid: "CA3", Turn: 2}, appt, newStart)
	if err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}
	if res.FellBack || res.AppointmentID != appt.ID {
		t.Fatalf("Reschedule() = %+v, want in-place patch", res)
	}
	got, _ := b.Appointment(appt.ID)
	if !got.Start.Equal(newStart) {
		t.Fatalf("start = %v, want %v", got.Start, newStart)
	}
}

func TestRescheduleFallbackMatchesPatchOutcome(t *testing.T) {
	b, appt := seededBackend(t)
	b.FailWith(OpPatchAppointment, &Error{Op: OpPatchAppointment, Status: 405, Kind: ErrUnsupported})
	exec := NewExecutor(b, time.Second)
	newStart := appt.Start.Add(48 * time.Hour)

	res, err := exec.Reschedule(t.Context(), IdempotencyKey{CallSid: "CA4", Turn: 2}, appt, newStart)
	if err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}
	if !res.FellBack {
		t.Fatalf("Reschedule() FellBack = false, want true")
	}

	old, _ := b.Appointment(appt.ID)
	if old.CancelledAt == nil {
		t.Fatalf("old appointment still active")
	}
	next, err := exec.NextUpcoming(t.Context(), appt.PatientID, appt.Start.Add(-time.Hour))
	if err != nil {
		t.Fatalf("NextUpcoming() error = %v", err)
	}
	if next == nil {
		t.Fatalf("NextUpcoming() = nil, want moved appointment")
	}
	if !next.Start.Equal(newStart) || next.PractitionerID != appt.PractitionerID || next.AppointmentTypeID != appt.AppointmentTypeID {
		t.Fatalf("NextUpcoming() = %+v, want same patient/practitioner/type at %v", next, newStart)
	}
}

func TestRescheduleFallbackCreateOutageReportsCancellation(t *testing.T) {
	b, appt := seededBackend(t)
	b.FailWith(OpPatchAppointment, &Error{Op: OpPatchAppointment, Status: 405, Kind: ErrUnsupported})
	b.FailWith(OpCreateAppointment, &Error{Op: OpCreateAppointment, Status: 503, Kind: ErrUnavailable})
	exec := NewExecutor(b, time.Second)
	key := IdempotencyKey{CallSid: "CA6", Turn: 2}
	newStart := appt.Start.Add(48 * time.Hour)

	res, err := exec.Reschedule(t.Context(), key, appt, newStart)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Reschedule() error = %v, want ErrUnavailable", err)
	}
	if !res.Cancelled || !res.FellBack {
		t.Fatalf("Reschedule() = %+v, want cancelled fallback", res)
	}
	if got := b.Calls(OpCreateAppointment); got != replacementAttempts {
		t.Fatalf("create calls = %d, want %d", got, replacementAttempts)
	}
	if old, _ := b.Appointment(appt.ID); old.CancelledAt == nil {
		t.Fatalf("old appointment still active")
	}

	// The backend recovers and the replacement is booked under the same key.
	b.FailWith(OpCreateAppointment, nil)
	id, err := exec.CreateAppointment(t.Context(), key, AppointmentRequest{
		PatientID:         appt.PatientID,
		PractitionerID:    appt.PractitionerID,
		AppointmentTypeID: appt.AppointmentTypeID,
		Start:             newStart,
	})
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	next, err := exec.NextUpcoming(t.Context(), appt.PatientID, appt.Start.Add(-time.Hour))
	if err != nil {
		t.Fatalf("NextUpcoming() error = %v", err)
	}
	if next == nil || next.ID != id || !next.Start.Equal(newStart) {
		t.Fatalf("NextUpcoming() = %+v, want replacement %s at %v", next, id, newStart)
	}
}

func TestRescheduleConflictDoesNotFallBack(t *testing.T) {
	b, appt := seededBackend(t)
	b.FailWith(OpPatchAppointment, &Error{Op: OpPatchAppointment, Status: 410, Kind: ErrConflict})
	exec := NewExecutor(b, time.Second)

	_, err := exec.Reschedule(t.Context(), IdempotencyKey{CallSid: "CA5", Turn: 2}, appt, appt.Start.Add(time.Hour))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Reschedule() error = %v, want ErrConflict", err)
	}
	if got := b.Calls(OpCancelAppointment); got != 0 {
		t.Fatalf("cancel calls = %d, want 0", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b, appt := seededBackend(t)
	exec := NewExecutor(b, time.Second)
	for i := 0; i < 2; i++ {
		if err := exec.Cancel(t.Context(), appt.ID); err != nil {
			t.Fatalf("Cancel() #%d error = %v", i+1, err)
		}
	}
	next, err := exec.NextUpcoming(t.Context(), appt.PatientID, appt.Start.Add(-time.Hour))
	if err != nil {
		t.Fatalf("NextUpcoming() error = %v", err)
	}
	if next != nil {
		t.Fatalf("NextUpcoming() = %+v, want nil after cancel", next)
	}
}

func TestListAvailabilityServesCacheWhenUnavailable(t *testing.T) {
	b := NewMemoryBackend(sydney, 30*time.Minute)
	exec := NewExecutor(b, time.Second)
	from := time.Date(2030, 3, 4, 0, 0, 0, 0, sydney)
	q := AvailabilityQuery{PractitionerID: "pr_1", From: from, To: from.Add(24 * time.Hour)}

	fresh, err := exec.ListAvailability(t.Context(), q)
	if err != nil || len(fresh) == 0 {
		t.Fatalf("ListAvailability() = %d slots, %v", len(fresh), err)
	}
	for i := 1; i < len(fresh); i++ {
		if fresh[i].Start.Before(fresh[i-1].Start) {
			t.Fatalf("slots not ordered at %d", i)
		}
	}

	b.FailWith(OpListAvailability, &Error{Op: OpListAvailability, Status: 503, Kind: ErrUnavailable})
	cached, err := exec.ListAvailability(t.Context(), q)
	if err != nil {
		t.Fatalf("ListAvailability() with cache error = %v", err)
	}
	if len(cached) != len(fresh) {
		t.Fatalf("cached slots = %d, want %d", len(cached), len(fresh))
	}

	other := q
	other.PractitionerID = "pr_2"
	if _, err := exec.ListAvailability(t.Context(), other); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ListAvailability() uncached error = %v, want ErrUnavailable", err)
	}
}

func TestListAvailabilityWeekendIsEmpty(t *testing.T) {
	exec := NewExecutor(NewMemoryBackend(sydney, 15*time.Minute), time.Second)
	sat := time.Date(2030, 3, 2, 0, 0, 0, 0, sydney)
	slots, err := exec.ListAvailability(t.Context(), AvailabilityQuery{PractitionerID: "pr_1", From: sat, To: sat.Add(48 * time.Hour)})
	if err != nil {
		t.Fatalf("ListAvailability() error = %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("ListAvailability() = %d slots, want 0", len(slots))
	}
}

func TestResolvePatient(t *testing.T) {
	b := NewMemoryBackend(sydney, 15*time.Minute)
	b.SeedPatient(Patient{ID: "pat_jo", Name: "Jo Smith", Phone: "+61400000000"})
	exec := NewExecutor(b, time.Second)

	p, found, err := exec.ResolvePatient(t.Context(), "+61400000000", "jo smith", false)
	if err != nil || !found || p.ID != "pat_jo" {
		t.Fatalf("ResolvePatient() = %+v, %v, %v", p, found, err)
	}

	p, found, err = exec.ResolvePatient(t.Context(), "+61400000000", "Sam Smith", true)
	if err != nil || found || p.ID == "" {
		t.Fatalf("ResolvePatient(create) = %+v, %v, %v", p, found, err)
	}

	_, found, err = exec.ResolvePatient(t.Context(), "+61499999999", "Nobody", false)
	if err != nil || found {
		t.Fatalf("ResolvePatient(missing) found = %v, err = %v", found, err)
	}
}

func TestExecutorTimeoutIsUnavailable(t *testing.T) {
	exec := NewExecutor(slowBackend{NewMemoryBackend(sydney, 15*time.Minute)}, 20*time.Millisecond)
	var outcomes []string
	exec.SetObserver(func(op, outcome string) { outcomes = append(outcomes, op+":"+outcome) })

	_, err := exec.NextUpcoming(t.Context(), "pat_1", time.Now())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("NextUpcoming() error = %v, want ErrUnavailable", err)
	}
	if len(outcomes) != 1 || outcomes[0] != "list_appointments:unavailable" {
		t.Fatalf("observed = %v", outcomes)
	}
}

type slowBackend struct{ *MemoryBackend }

func (s slowBackend) ListAppointments(ctx context.Context, _ string, _ time.Time) ([]Appointment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
