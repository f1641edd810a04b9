package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPBackendPatchFallbackStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "method not allowed", status: http.StatusMethodNotAllowed, want: ErrUnsupported},
		{name: "not implemented", status: http.StatusNotImplemented, want: ErrUnsupported},
		{name: "gone", status: http.StatusGone, want: ErrConflict},
		{name: "unavailable", status: http.StatusServiceUnavailable, want: ErrUnavailable},
		{name: "bad request", status: http.StatusBadRequest, want: ErrFatal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPatch {
					t.Errorf("method = %s, want PATCH", r.Method)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			b := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL})
			err := b.PatchAppointment(t.Context(), "appt_1", time.Now())
			if !errors.Is(err, tc.want) {
				t.Fatalf("PatchAppointment() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestHTTPBackendConfiguredFallbackStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL, Policy: StatusPolicy{PatchFallbackStatuses: []int{405}}})
	if err := b.PatchAppointment(t.Context(), "appt_1", time.Now()); !errors.Is(err, ErrConflict) {
		t.Fatalf("PatchAppointment() error = %v, want ErrConflict", err)
	}
}

func TestHTTPBackendCreateSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/appointment" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		var req AppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.PatientID != "pat_1" {
			t.Errorf("patientId = %q", req.PatientID)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "appt_new"})
	}))
	defer srv.Close()

	b := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	id, err := b.CreateAppointment(t.Context(), AppointmentRequest{PatientID: "pat_1", PractitionerID: "pr_1", Start: time.Now()}, "key-1")
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	if id != "appt_new" || gotKey != "key-1" || gotAuth != "Bearer secret" {
		t.Fatalf("id=%q key=%q auth=%q", id, gotKey, gotAuth)
	}
}

func TestHTTPBackendCancelTreatsConflictAsDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/appointment/appt_1/cancel" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	if err := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL}).CancelAppointment(t.Context(), "appt_1"); err != nil {
		t.Fatalf("CancelAppointment() error = %v", err)
	}
}

func TestHTTPBackendRetriesReads(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"start": "2030-03-04T00:00:00Z", "end": "2030-03-04T00:15:00Z"}})
	}))
	defer srv.Close()

	b := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL, RetryAttempts: 2})
	slots, err := b.ListAvailability(t.Context(), AvailabilityQuery{PractitionerID: "pr_1", From: time.Now(), To: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("ListAvailability() error = %v", err)
	}
	if len(slots) != 1 || slots[0].PractitionerID != "pr_1" {
		t.Fatalf("ListAvailability() = %+v", slots)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Load())
	}
}

func TestHTTPBackendDoesNotRetryWrites(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewHTTPBackend(HTTPConfig{BaseURL: srv.URL, RetryAttempts: 3})
	_, err := b.CreateAppointment(t.Context(), AppointmentRequest{}, "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CreateAppointment() error = %v, want ErrUnavailable", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}
