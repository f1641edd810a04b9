package callstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrMalformedState is returned when a persisted blob cannot be turned back into a CallState.
var ErrMalformedState = errors.New("malformed call state")

const codecVersion = 1

type wireParticipant struct {
	N   string  `json:"n"`
	R   string  `json:"r,omitempty"`
	PID *string `json:"pid,omitempty"`
	AID *string `json:"aid,omitempty"`
}

type wireSlot struct {
	S  int64  `json:"s"`
	E  int64  `json:"e"`
	PR string `json:"pr"`
	AT string `json:"at,omitempty"`
}

// wireState is the compact persisted shape. Keys are kept short because the blob
// is written on every turn.
type wireState struct {
	V   int               `json:"v"`
	S   string            `json:"s"`
	T   string            `json:"t,omitempty"`
	F   string            `json:"f,omitempty"`
	N   int               `json:"n"`
	St  string            `json:"st"`
	I   string            `json:"i"`
	G   bool              `json:"g,omitempty"`
	P   []wireParticipant `json:"p,omitempty"`
	TP  *string           `json:"tp,omitempty"`
	NP  *bool             `json:"np,omitempty"`
	RS  bool              `json:"rs,omitempty"`
	GC  *int              `json:"gc,omitempty"`
	AC  bool              `json:"ac,omitempty"`
	AID *string           `json:"aid,omitempty"`
	PID *string           `json:"pid,omitempty"`
	RR  bool              `json:"rr,omitempty"`
	H   bool              `json:"h,omitempty"`
	HR  *string           `json:"hr,omitempty"`
	CN  *string           `json:"cn,omitempty"`
	PS  *wireSlot         `json:"ps,omitempty"`
	SO  int               `json:"so,omitempty"`
	XS  *int64            `json:"xs,omitempty"`
	FC  int               `json:"fc,omitempty"`
	RP  *int              `json:"rp,omitempty"`
}

// Encode serializes a state. It is total and deterministic: equal states always
// produce identical bytes. Times are stored with second precision in UTC.
func Encode(s CallState) []byte {
	w := wireState{
		V:   codecVersion,
		S:   s.CallSid,
		T:   s.TenantID,
		F:   s.FromNumber,
		N:   s.TurnIndex,
		St:  string(s.Stage),
		I:   string(s.Intent),
		G:   s.GroupBooking,
		TP:  s.TimePreference,
		NP:  s.NewPatient,
		RS:  s.RequestSlots,
		GC:  s.GroupBookingComplete,
		AC:  s.AppointmentCreated,
		AID: s.AppointmentID,
		PID: s.PatientID,
		RR:  s.IsReschedule,
		H:   s.HandoffTriggered,
		HR:  s.HandoffReason,
		CN:  s.CallerName,
		SO:  s.SlotOffset,
		FC:  s.Failures,
		RP:  s.PendingReplacement,
	}
	for _, p := range s.Participants {
		w.P = append(w.P, wireParticipant{N: p.Name, R: p.Relation, PID: p.PatientID, AID: p.AppointmentID})
	}
	if s.PendingSlot != nil {
		w.PS = &wireSlot{
			S:  s.PendingSlot.Start.Unix(),
			E:  s.PendingSlot.End.Unix(),
			PR: s.PendingSlot.PractitionerID,
			AT: s.PendingSlot.AppointmentTypeID,
		}
	}
	if s.ExistingStart != nil {
		w.XS = Ptr(s.ExistingStart.Unix())
	}

	// Marshal of a struct made of strings, ints, bools and pointers to them cannot fail.
	out, _ := json.Marshal(w)
	return out
}

// Decode parses a persisted blob. Unknown keys, trailing data, unknown enum
// values and broken invariants are all rejected with ErrMalformedState.
func Decode(raw []byte) (CallState, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return CallState{}, fmt.Errorf("%w: empty blob", ErrMalformedState)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var w wireState
	if err := dec.Decode(&w); err != nil {
		return CallState{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return CallState{}, fmt.Errorf("%w: trailing data", ErrMalformedState)
	}
	if w.V != codecVersion {
		return CallState{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedState, w.V)
	}

	s := CallState{
		CallSid:              w.S,
		TenantID:             w.T,
		FromNumber:           w.F,
		TurnIndex:            w.N,
		Stage:                Stage(w.St),
		Intent:               Intent(w.I),
		GroupBooking:         w.G,
		TimePreference:       w.TP,
		NewPatient:           w.NP,
		RequestSlots:         w.RS,
		GroupBookingComplete: w.GC,
		AppointmentCreated:   w.AC,
		AppointmentID:        w.AID,
		PatientID:            w.PID,
		IsReschedule:         w.RR,
		HandoffTriggered:     w.H,
		HandoffReason:        w.HR,
		CallerName:           w.CN,
		SlotOffset:           w.SO,
		Failures:             w.FC,
		PendingReplacement:   w.RP,
	}
	for _, p := range w.P {
		if p.N == "" {
			return CallState{}, fmt.Errorf("%w: participant without name", ErrMalformedState)
		}
		s.Participants = append(s.Participants, Participant{Name: p.N, Relation: p.R, PatientID: p.PID, AppointmentID: p.AID})
	}
	if w.PS != nil {
		if w.PS.PR == "" || w.PS.E < w.PS.S {
			return CallState{}, fmt.Errorf("%w: invalid pending slot", ErrMalformedState)
		}
		s.PendingSlot = &SlotRef{
			Start:             time.Unix(w.PS.S, 0).UTC(),
			End:               time.Unix(w.PS.E, 0).UTC(),
			PractitionerID:    w.PS.PR,
			AppointmentTypeID: w.PS.AT,
		}
	}
	if w.XS != nil {
		s.ExistingStart = Ptr(time.Unix(*w.XS, 0).UTC())
	}

	if err := s.Validate(); err != nil {
		return CallState{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return s, nil
}
