package scheduling

import (
	"context"
	"time"
)

// SlotOption is a bookable time returned by an availability query.
type SlotOption struct {
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	PractitionerID    string    `json:"practitionerId"`
	AppointmentTypeID string    `json:"appointmentTypeId,omitempty"`
}

// AvailabilityQuery selects free slots for one practitioner and appointment type.
type AvailabilityQuery struct {
	PractitionerID    string
	AppointmentTypeID string
	From              time.Time
	To                time.Time
}

// AppointmentRequest is everything needed to create an appointment.
type AppointmentRequest struct {
	PatientID         string    `json:"patientId"`
	PractitionerID    string    `json:"practitionerId"`
	AppointmentTypeID string    `json:"typeId"`
	Start             time.Time `json:"start"`
}

// Appointment is an existing booking as reported by the backend.
type Appointment struct {
	ID                string     `json:"id"`
	PatientID         string     `json:"patientId"`
	PractitionerID    string     `json:"practitionerId"`
	AppointmentTypeID string     `json:"typeId"`
	Start             time.Time  `json:"start"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
}

type Patient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Backend is the capability surface of the external scheduling system.
type Backend interface {
	ListAvailability(ctx context.Context, q AvailabilityQuery) ([]SlotOption, error)
	CreateAppointment(ctx context.Context, req AppointmentRequest, idempotencyKey string) (string, error)
	PatchAppointment(ctx context.Context, id string, start time.Time) error
	CancelAppointment(ctx context.Context, id string) error
	ListAppointments(ctx context.Context, patientID string, from time.Time) ([]Appointment, error)
	FindPatients(ctx context.Context, phone, name string) ([]Patient, error)
	CreatePatient(ctx context.Context, p Patient) (string, error)
}
