package callstate

import (
	"fmt"
	"time"
)

// Intent is the bounded set of caller goals the engine understands.
type Intent string

const (
	IntentNone       Intent = "none"
	IntentBook       Intent = "book"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentOperator   Intent = "operator"
	IntentInfo       Intent = "info"
	IntentFees       Intent = "fees"
	IntentUnknown    Intent = "unknown"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentNone, IntentBook, IntentReschedule, IntentCancel, IntentOperator, IntentInfo, IntentFees, IntentUnknown:
		return true
	default:
		return false
	}
}

// Stage is the position of a call in the dialogue state machine.
type Stage string

const (
	StageGreeting                    Stage = "greeting"
	StageIdentifyCaller              Stage = "identify_caller"
	StageAwaitIntent                 Stage = "await_intent"
	StageBookingSlotNegotiation      Stage = "booking_slot"
	StageRescheduleConfirm           Stage = "reschedule_confirm"
	StageCancelConfirm               Stage = "cancel_confirm"
	StageGroupBookingCollect         Stage = "group_collect"
	StageGroupBookingSlotNegotiation Stage = "group_slot"
	StageOfferBookNew                Stage = "offer_book_new"
	StageOfferRebook                 Stage = "offer_rebook"
	StageAnythingElse                Stage = "anything_else"
	StageConfirmed                   Stage = "confirmed"
	StageHandoff                     Stage = "handoff"
	StageEnd                         Stage = "end"
)

func (s Stage) Valid() bool {
	switch s {
	case StageGreeting, StageIdentifyCaller, StageAwaitIntent, StageBookingSlotNegotiation,
		StageRescheduleConfirm, StageCancelConfirm, StageGroupBookingCollect,
		StageGroupBookingSlotNegotiation, StageOfferBookNew, StageOfferRebook,
		StageAnythingElse, StageConfirmed, StageHandoff, StageEnd:
		return true
	default:
		return false
	}
}

// Terminal reports whether the call should stop gathering speech after this stage.
func (s Stage) Terminal() bool {
	return s == StageHandoff || s == StageEnd
}

// Participant is one person booked during a group booking. Participants are
// identified by position, two entries may share a name.
type Participant struct {
	Name          string
	Relation      string
	PatientID     *string
	AppointmentID *string
}

// SlotRef is the identifying part of an offered slot option, folded into state
// while the caller decides on it.
type SlotRef struct {
	Start             time.Time
	End               time.Time
	PractitionerID    string
	AppointmentTypeID string
}

// CallState is the persisted conversation progress of one in-progress call.
type CallState struct {
	CallSid    string
	TenantID   string
	FromNumber string
	TurnIndex  int

	Stage  Stage
	Intent Intent

	GroupBooking         bool
	Participants         []Participant
	TimePreference       *string
	NewPatient           *bool
	RequestSlots         bool
	GroupBookingComplete *int

	AppointmentCreated bool
	AppointmentID      *string
	PatientID          *string
	IsReschedule       bool

	HandoffTriggered bool
	HandoffReason    *string

	CallerName    *string
	PendingSlot   *SlotRef
	SlotOffset    int
	ExistingStart *time.Time
	Failures      int

	// PendingReplacement is set once a cancel-and-create reschedule has
	// cancelled the old appointment but not yet booked the new one. It holds
	// the turn whose idempotency key the outstanding create uses.
	PendingReplacement *int
}

// New returns the default state for the first turn of a call.
func New(callSid, tenantID, fromNumber string) CallState {
	return CallState{
		CallSid:    callSid,
		TenantID:   tenantID,
		FromNumber: fromNumber,
		Stage:      StageGreeting,
		Intent:     IntentNone,
	}
}

// Validate checks the structural invariants every persisted state must hold.
func (s CallState) Validate() error {
	if s.CallSid == "" {
		return fmt.Errorf("call sid is required")
	}
	if s.TurnIndex < 0 {
		return fmt.Errorf("turn index must be >= 0")
	}
	if !s.Stage.Valid() {
		return fmt.Errorf("unknown stage %q", s.Stage)
	}
	if !s.Intent.Valid() {
		return fmt.Errorf("unknown intent %q", s.Intent)
	}
	if s.AppointmentCreated && s.AppointmentID == nil {
		return fmt.Errorf("appointment created without appointment id")
	}
	if s.GroupBookingComplete != nil {
		if *s.GroupBookingComplete != len(s.Participants) {
			return fmt.Errorf("group booking complete count %d does not match %d participants", *s.GroupBookingComplete, len(s.Participants))
		}
		if !s.AppointmentCreated {
			return fmt.Errorf("group booking complete without appointment")
		}
	}
	if s.PendingReplacement != nil && !s.IsReschedule {
		return fmt.Errorf("pending replacement outside a reschedule")
	}
	if s.SlotOffset < 0 || s.Failures < 0 {
		return fmt.Errorf("counters must be >= 0")
	}
	return nil
}

// Instant is the form every time held in state takes: UTC with whole seconds.
// Backends answer in their own zone, so times are passed through it when folded in.
func Instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
