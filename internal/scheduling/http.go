package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/antoniostano/phonedesk/internal/reliability"
)

// Backend operation names, used in errors, spans and metrics.
const (
	OpListAvailability  = "list_availability"
	OpCreateAppointment = "create_appointment"
	OpPatchAppointment  = "patch_appointment"
	OpCancelAppointment = "cancel_appointment"
	OpListAppointments  = "list_appointments"
	OpFindPatients      = "find_patients"
	OpCreatePatient     = "create_patient"
)

// HTTPConfig configures the REST scheduling backend.
type HTTPConfig struct {
	BaseURL       string
	APIKey        string
	RetryAttempts int
	Policy        StatusPolicy
}

// HTTPBackend talks to the scheduling system over its REST surface. Reads are
// retried on transient failures; writes are never retried here.
type HTTPBackend struct {
	baseURL  string
	apiKey   string
	attempts int
	policy   StatusPolicy
	client   *http.Client
}

func NewHTTPBackend(cfg HTTPConfig) *HTTPBackend {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &HTTPBackend{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		attempts: attempts,
		policy:   cfg.Policy,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

type slotPayload struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	PractitionerID string    `json:"practitionerId"`
}

func (b *HTTPBackend) ListAvailability(ctx context.Context, q AvailabilityQuery) ([]SlotOption, error) {
	params := url.Values{}
	params.Set("practitioner", q.PractitionerID)
	params.Set("type", q.AppointmentTypeID)
	params.Set("from", q.From.UTC().Format(time.RFC3339))
	params.Set("to", q.To.UTC().Format(time.RFC3339))

	var payload []slotPayload
	if err := b.read(ctx, OpListAvailability, "/availability?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	out := make([]SlotOption, 0, len(payload))
	for _, s := range payload {
		practitioner := s.PractitionerID
		if practitioner == "" {
			practitioner = q.PractitionerID
		}
		out = append(out, SlotOption{Start: s.Start, End: s.End, PractitionerID: practitioner, AppointmentTypeID: q.AppointmentTypeID})
	}
	return out, nil
}

func (b *HTTPBackend) CreateAppointment(ctx context.Context, req AppointmentRequest, idempotencyKey string) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	if err := b.do(ctx, OpCreateAppointment, http.MethodPost, "/appointment", req, headers, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &Error{Op: OpCreateAppointment, Kind: ErrFatal, Err: errors.New("response missing id")}
	}
	return created.ID, nil
}

func (b *HTTPBackend) PatchAppointment(ctx context.Context, id string, start time.Time) error {
	body := map[string]string{"start": start.UTC().Format(time.RFC3339)}
	return b.do(ctx, OpPatchAppointment, http.MethodPatch, "/appointment/"+url.PathEscape(id), body, nil, nil)
}

func (b *HTTPBackend) CancelAppointment(ctx context.Context, id string) error {
	err := b.do(ctx, OpCancelAppointment, http.MethodPatch, "/appointment/"+url.PathEscape(id)+"/cancel", nil, nil, nil)
	var be *Error
	// The backend answers 409 for an appointment that is already cancelled.
	if errors.As(err, &be) && be.Status == http.StatusConflict {
		return nil
	}
	return err
}

func (b *HTTPBackend) ListAppointments(ctx context.Context, patientID string, from time.Time) ([]Appointment, error) {
	params := url.Values{}
	params.Set("patientId", patientID)
	params.Set("from", from.UTC().Format(time.RFC3339))
	var out []Appointment
	if err := b.read(ctx, OpListAppointments, "/appointments?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].PatientID == "" {
			out[i].PatientID = patientID
		}
	}
	return out, nil
}

func (b *HTTPBackend) FindPatients(ctx context.Context, phone, name string) ([]Patient, error) {
	params := url.Values{}
	params.Set("phone", phone)
	if strings.TrimSpace(name) != "" {
		params.Set("name", name)
	}
	var out []Patient
	if err := b.read(ctx, OpFindPatients, "/patients?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) CreatePatient(ctx context.Context, p Patient) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := b.do(ctx, OpCreatePatient, http.MethodPost, "/patient", p, nil, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &Error{Op: OpCreatePatient, Kind: ErrFatal, Err: errors.New("response missing id")}
	}
	return created.ID, nil
}

func (b *HTTPBackend) read(ctx context.Context, op, path string, out any) error {
	return reliability.Retry(ctx, b.attempts, 100*time.Millisecond, time.Second, isUnavailable, func(ctx context.Context) error {
		return b.do(ctx, op, http.MethodGet, path, nil, nil, out)
	})
}

func (b *HTTPBackend) do(ctx context.Context, op, method, path string, body any, headers map[string]string, out any) error {
	ctx, span := tracer.Start(ctx, "scheduling "+op)
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: ErrFatal, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Kind: ErrFatal, Err: fmt.Errorf("create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	res, err := b.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &Error{Op: op, Kind: ErrUnavailable, Err: err}
	}
	defer res.Body.Close()
	span.SetAttributes(attribute.Int("response.status_code", res.StatusCode))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		kind := b.policy.classify(op, res.StatusCode)
		span.SetStatus(codes.Error, kind.Error())
		return &Error{Op: op, Status: res.StatusCode, Kind: kind, Err: errors.New(strings.TrimSpace(string(detail)))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &Error{Op: op, Kind: ErrFatal, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
