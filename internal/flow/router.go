package flow

import (
	"context"
	"errors"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/antoniostano/phonedesk/internal/callstate"
	"github.com/antoniostano/phonedesk/internal/interpret"
	"github.com/antoniostano/phonedesk/internal/scheduling"
	"github.com/antoniostano/phonedesk/internal/speech"
)

// Handoff reasons recorded in CallState.HandoffReason.
const (
	ReasonCallerRequest = "caller_request"
	ReasonUnrecognized  = "unrecognized_input"
	ReasonScheduling    = "scheduling_error"
	ReasonInternal      = "internal_error"
)

const defaultMaxFailures = 3

type Config struct {
	Location          *time.Location
	PractitionerID    string
	AppointmentTypeID string
	MaxFailures       int
	Now               func() time.Time
}

// Router is the dialogue state machine. It computes the next CallState and
// prompt from the current state and one interpreted utterance, calling the
// scheduling executor when a step needs the backend.
type Router struct {
	exec *scheduling.Executor
	cfg  Config
}

func NewRouter(exec *scheduling.Executor, cfg Config) *Router {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Router{exec: exec, cfg: cfg}
}

type turnInput struct {
	in            interpret.Result
	turn          int
	now           time.Time
	callerChanged bool
}

// Transition never mutates prev. Handoff is absorbing: once triggered every
// later turn lands in the handoff stage whatever the caller says.
func (r *Router) Transition(ctx context.Context, prev callstate.CallState, in interpret.Result, turn int) (callstate.CallState, speech.Prompt) {
	ctx, span := tracer.Start(ctx, "flow.transition", trace.WithAttributes(
		attribute.String("call.stage", string(prev.Stage)),
		attribute.Int("call.turn", turn),
	))
	defer span.End()

	var st callstate.CallState
	if err := copier.CopyWithOption(&st, &prev, copier.Option{DeepCopy: true}); err != nil {
		logger.ErrorContext(ctx, "clone call state", "call_sid", prev.CallSid, "error", err)
		st = callstate.New(prev.CallSid, prev.TenantID, prev.FromNumber)
		st.TurnIndex = turn
		return st, r.handoff(&st, ReasonInternal)
	}
	st.TurnIndex = turn

	if st.HandoffTriggered || st.Stage == callstate.StageHandoff {
		st.HandoffTriggered = true
		st.Stage = callstate.StageHandoff
		return st, speech.Prompt{Key: speech.KeyHandoff}
	}
	if st.Stage == callstate.StageEnd {
		return st, speech.Prompt{Key: speech.KeyGoodbye}
	}
	if in.Intent != nil && *in.Intent == callstate.IntentOperator {
		return st, r.handoff(&st, ReasonCallerRequest)
	}

	t := &turnInput{in: in, turn: turn, now: r.cfg.Now()}
	t.callerChanged = absorbCaller(&st, in)

	p, ok := r.dispatch(ctx, &st, t)
	if st.HandoffTriggered {
		return st, p
	}
	if ok {
		st.Failures = 0
	} else {
		st.Failures++
		if st.Failures >= r.cfg.MaxFailures {
			return st, r.handoff(&st, ReasonUnrecognized)
		}
	}
	span.SetAttributes(attribute.String("call.next_stage", string(st.Stage)))
	return st, p
}

// dispatch returns the prompt and whether the utterance was usable; an
// unusable one counts towards the consecutive failure limit.
func (r *Router) dispatch(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	switch st.Stage {
	case callstate.StageGreeting:
		if t.in.Empty {
			st.Stage = callstate.StageAwaitIntent
			return speech.Prompt{Key: speech.KeyGreeting}, true
		}
		return r.routeIntent(ctx, st, t)
	case callstate.StageAwaitIntent, callstate.StageAnythingElse, callstate.StageConfirmed:
		return r.routeIntent(ctx, st, t)
	case callstate.StageIdentifyCaller:
		return r.identify(ctx, st, t)
	case callstate.StageBookingSlotNegotiation:
		return r.negotiateSlot(ctx, st, t)
	case callstate.StageRescheduleConfirm:
		return r.confirmReschedule(ctx, st, t)
	case callstate.StageCancelConfirm:
		return r.confirmCancel(ctx, st, t)
	case callstate.StageGroupBookingCollect, callstate.StageGroupBookingSlotNegotiation:
		return r.collectGroup(ctx, st, t)
	case callstate.StageOfferBookNew, callstate.StageOfferRebook:
		return r.offerBooking(ctx, st, t)
	default:
		logger.ErrorContext(ctx, "no route for stage", "call_sid", st.CallSid, "stage", st.Stage)
		return r.handoff(st, ReasonInternal), true
	}
}

func (r *Router) routeIntent(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	if t.in.Empty {
		return speech.Prompt{Key: speech.KeyReprompt}, false
	}
	intent := callstate.IntentUnknown
	if t.in.Intent != nil {
		intent = *t.in.Intent
	}

	switch intent {
	case callstate.IntentBook:
		beginAttempt(st, intent)
		absorbTimePreference(st, t.in)
		if t.in.GroupRequested || len(t.in.Participants) >= 2 {
			st.GroupBooking = true
			st.Participants = append(st.Participants, t.in.Participants...)
		}
		return r.advance(ctx, st, t)
	case callstate.IntentReschedule, callstate.IntentCancel:
		beginAttempt(st, intent)
		return r.advance(ctx, st, t)
	case callstate.IntentInfo:
		st.Intent = intent
		st.Stage = callstate.StageAnythingElse
		return speech.Prompt{Lead: speech.KeyInfo, Key: speech.KeyAnythingElse}, true
	case callstate.IntentFees:
		st.Intent = intent
		st.Stage = callstate.StageAnythingElse
		return speech.Prompt{Lead: speech.KeyFees, Key: speech.KeyAnythingElse}, true
	}

	if st.Stage == callstate.StageAnythingElse || st.Stage == callstate.StageConfirmed {
		if c := t.in.Confirmation; c != nil {
			if !*c {
				st.Stage = callstate.StageEnd
				return speech.Prompt{Key: speech.KeyGoodbye}, true
			}
			st.Stage = callstate.StageAwaitIntent
			return speech.Prompt{Key: speech.KeyHowCanIHelp}, true
		}
	}
	if st.Stage == callstate.StageGreeting {
		st.Stage = callstate.StageAwaitIntent
	}
	return speech.Prompt{Key: speech.KeyReprompt}, false
}

// advance asks for whatever the current goal still lacks, or performs the
// next backend step when nothing is missing.
func (r *Router) advance(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	switch st.Intent {
	case callstate.IntentBook:
		if st.GroupBooking {
			return r.advanceGroup(ctx, st, t)
		}
		if p, ok, done := r.requirePatient(ctx, st, true); !done {
			return p, ok
		}
		return r.advanceSlot(ctx, st, t, speech.KeyNone)
	case callstate.IntentReschedule, callstate.IntentCancel:
		if p, ok, done := r.requirePatient(ctx, st, false); !done {
			return p, ok
		}
		return r.lookupExisting(ctx, st, t)
	default:
		st.Stage = callstate.StageAwaitIntent
		return speech.Prompt{Key: speech.KeyHowCanIHelp}, true
	}
}

func (r *Router) identify(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	if st.Intent == callstate.IntentNone || st.Intent == callstate.IntentUnknown {
		return r.routeIntent(ctx, st, t)
	}
	tp := false
	if st.Intent == callstate.IntentBook {
		tp = absorbTimePreference(st, t.in)
	}
	if t.callerChanged || tp {
		return r.advance(ctx, st, t)
	}
	if st.Intent == callstate.IntentBook && st.CallerName != nil && st.NewPatient == nil && t.in.Confirmation != nil {
		// Answer to "have you been to see us before?".
		st.NewPatient = callstate.Ptr(!*t.in.Confirmation)
		return r.advance(ctx, st, t)
	}
	// A yes after a backend hiccup retries the lookup.
	if c := t.in.Confirmation; c != nil && *c && st.CallerName != nil {
		return r.advance(ctx, st, t)
	}
	key := speech.KeyAskName
	if st.CallerName != nil {
		key = speech.KeyAskNewPatient
	}
	return speech.Prompt{Lead: speech.KeyReprompt, Key: key}, false
}

// requirePatient resolves the caller to a backend patient. done is false when
// the turn must stop here with p.
func (r *Router) requirePatient(ctx context.Context, st *callstate.CallState, create bool) (p speech.Prompt, ok bool, done bool) {
	if st.PatientID != nil {
		return speech.Prompt{}, true, true
	}
	st.Stage = callstate.StageIdentifyCaller
	if st.CallerName == nil {
		return speech.Prompt{Key: speech.KeyAskName}, true, false
	}
	if create && st.NewPatient == nil {
		return speech.Prompt{Key: speech.KeyAskNewPatient}, true, false
	}

	patient, found, err := r.exec.ResolvePatient(ctx, st.FromNumber, *st.CallerName, create)
	if err != nil {
		p, ok = r.schedulingFailure(ctx, st, err)
		return p, ok, false
	}
	if !found && !create {
		st.Stage = callstate.StageOfferBookNew
		return speech.Prompt{Key: speech.KeyNoAppointment}, true, false
	}
	st.PatientID = callstate.Ptr(patient.ID)
	return speech.Prompt{}, true, true
}

func (r *Router) advanceSlot(ctx context.Context, st *callstate.CallState, t *turnInput, lead speech.Key) (speech.Prompt, bool) {
	st.Stage = callstate.StageBookingSlotNegotiation
	if st.TimePreference == nil {
		return speech.Prompt{Lead: lead, Key: speech.KeyAskTime}, true
	}
	if st.PendingSlot != nil {
		return offerPrompt(lead, st.PendingSlot), true
	}
	return r.offerSlot(ctx, st, t, lead)
}

// offerSlot fetches availability for the time preference and offers the
// option at SlotOffset. Running out of options clears the preference so the
// caller can give a new one.
func (r *Router) offerSlot(ctx context.Context, st *callstate.CallState, t *turnInput, lead speech.Key) (speech.Prompt, bool) {
	st.Stage = callstate.StageBookingSlotNegotiation
	st.RequestSlots = true
	slots, err := r.availability(ctx, st, t)
	if errors.Is(err, errBadWindow) {
		st.TimePreference = nil
		st.RequestSlots = false
		return speech.Prompt{Lead: speech.KeyReprompt, Key: speech.KeyAskTime}, false
	}
	if err != nil {
		return r.schedulingFailure(ctx, st, err)
	}
	st.RequestSlots = false

	if st.SlotOffset >= len(slots) {
		key := speech.KeyNoAvailability
		if st.SlotOffset > 0 {
			key = speech.KeyNoMoreSlots
		}
		st.TimePreference = nil
		st.SlotOffset = 0
		st.PendingSlot = nil
		return speech.Prompt{Lead: lead, Key: key}, true
	}
	s := slots[st.SlotOffset]
	st.PendingSlot = &callstate.SlotRef{
		Start:             callstate.Instant(s.Start),
		End:               callstate.Instant(s.End),
		PractitionerID:    s.PractitionerID,
		AppointmentTypeID: s.AppointmentTypeID,
	}
	return offerPrompt(lead, st.PendingSlot), true
}

func (r *Router) negotiateSlot(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	in := t.in
	if st.PendingSlot == nil {
		if absorbTimePreference(st, in) {
			st.SlotOffset = 0
			return r.offerSlot(ctx, st, t, speech.KeyNone)
		}
		if st.TimePreference != nil && st.RequestSlots {
			return r.offerSlot(ctx, st, t, speech.KeyNone)
		}
		return speech.Prompt{Lead: speech.KeyReprompt, Key: speech.KeyAskTime}, false
	}

	if in.Confirmation == nil {
		return offerPrompt(speech.KeyReprompt, st.PendingSlot), false
	}
	if !*in.Confirmation {
		st.PendingSlot = nil
		if in.TimePreference != nil && (st.TimePreference == nil || *in.TimePreference != *st.TimePreference) {
			// "no, tomorrow morning instead" is an explicit correction.
			st.TimePreference = callstate.Ptr(*in.TimePreference)
			st.SlotOffset = 0
		} else {
			st.SlotOffset++
		}
		return r.offerSlot(ctx, st, t, speech.KeyNone)
	}
	return r.commit(ctx, st, t)
}

func (r *Router) commit(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	if st.PatientID == nil {
		if p, ok, done := r.requirePatient(ctx, st, !st.IsReschedule); !done {
			return p, ok
		}
	}
	slot := *st.PendingSlot
	key := scheduling.IdempotencyKey{CallSid: st.CallSid, Participant: 0, Turn: t.turn}
	if st.IsReschedule {
		return r.commitReschedule(ctx, st, t, key, slot)
	}

	id, err := r.exec.CreateAppointment(ctx, key, scheduling.AppointmentRequest{
		PatientID:         *st.PatientID,
		PractitionerID:    slot.PractitionerID,
		AppointmentTypeID: slot.AppointmentTypeID,
		Start:             slot.Start,
	})
	if errors.Is(err, scheduling.ErrConflict) {
		st.PendingSlot = nil
		return r.offerSlot(ctx, st, t, speech.KeySlotTaken)
	}
	if err != nil {
		return r.schedulingFailure(ctx, st, err)
	}

	st.AppointmentCreated = true
	st.AppointmentID = callstate.Ptr(id)
	st.PendingSlot = nil
	st.Stage = callstate.StageConfirmed
	logger.InfoContext(ctx, "appointment booked", "call_sid", st.CallSid, "appointment_id", id)
	return speech.Prompt{Key: speech.KeyBooked, Slot: callstate.Ptr(slot.Start)}, true
}

func (r *Router) commitReschedule(ctx context.Context, st *callstate.CallState, t *turnInput, key scheduling.IdempotencyKey, slot callstate.SlotRef) (speech.Prompt, bool) {
	if st.PendingReplacement != nil {
		return r.bookReplacement(ctx, st, t, slot)
	}
	existing, err := r.exec.NextUpcoming(ctx, *st.PatientID, t.now)
	if err != nil {
		return r.schedulingFailure(ctx, st, err)
	}
	if existing == nil || st.AppointmentID == nil || existing.ID != *st.AppointmentID {
		return r.appointmentGone(ctx, st, t)
	}

	res, err := r.exec.Reschedule(ctx, key, *existing, slot.Start)
	if res.Cancelled {
		// The old appointment is gone. Later turns book the replacement
		// directly instead of looking the appointment up again.
		st.PendingReplacement = callstate.Ptr(t.turn)
		st.AppointmentID = nil
		return r.replacementFailed(ctx, st, t, err)
	}
	if errors.Is(err, scheduling.ErrConflict) {
		return r.appointmentGone(ctx, st, t)
	}
	if err != nil {
		return r.schedulingFailure(ctx, st, err)
	}
	return r.rescheduled(ctx, st, res.AppointmentID, res.FellBack, slot)
}

// bookReplacement finishes a cancel-and-create reschedule whose create failed
// on an earlier turn.
func (r *Router) bookReplacement(ctx context.Context, st *callstate.CallState, t *turnInput, slot callstate.SlotRef) (speech.Prompt, bool) {
	key := scheduling.IdempotencyKey{CallSid: st.CallSid, Participant: 0, Turn: *st.PendingReplacement}
	id, err := r.exec.CreateAppointment(ctx, key, scheduling.AppointmentRequest{
		PatientID:         *st.PatientID,
		PractitionerID:    slot.PractitionerID,
		AppointmentTypeID: slot.AppointmentTypeID,
		Start:             slot.Start,
	})
	if err != nil {
		return r.replacementFailed(ctx, st, t, err)
	}
	st.PendingReplacement = nil
	return r.rescheduled(ctx, st, id, true, slot)
}

func (r *Router) replacementFailed(ctx context.Context, st *callstate.CallState, t *turnInput, err error) (speech.Prompt, bool) {
	if errors.Is(err, scheduling.ErrConflict) {
		// Nothing was booked under that key; the next slot gets a fresh one.
		st.PendingReplacement = callstate.Ptr(t.turn + 1)
		st.PendingSlot = nil
		return r.offerSlot(ctx, st, t, speech.KeySlotTaken)
	}
	return r.schedulingFailure(ctx, st, err)
}

func (r *Router) rescheduled(ctx context.Context, st *callstate.CallState, id string, fellBack bool, slot callstate.SlotRef) (speech.Prompt, bool) {
	st.AppointmentCreated = true
	st.AppointmentID = callstate.Ptr(id)
	st.ExistingStart = callstate.Ptr(callstate.Instant(slot.Start))
	st.PendingSlot = nil
	st.Stage = callstate.StageConfirmed
	logger.InfoContext(ctx, "appointment rescheduled", "call_sid", st.CallSid, "appointment_id", id, "fell_back", fellBack)
	return speech.Prompt{Key: speech.KeyRescheduled, Slot: callstate.Ptr(slot.Start)}, true
}

// appointmentGone tells the caller the appointment changed underneath us and
// looks it up again.
func (r *Router) appointmentGone(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	st.AppointmentID = nil
	st.AppointmentCreated = false
	st.ExistingStart = nil
	st.IsReschedule = false
	st.PendingReplacement = nil
	st.PendingSlot = nil
	st.TimePreference = nil
	st.SlotOffset = 0
	p, ok := r.lookupExisting(ctx, st, t)
	if p.Lead == speech.KeyNone {
		p.Lead = speech.KeyAppointmentGone
	}
	return p, ok
}

func (r *Router) lookupExisting(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	st.Stage = callstate.StageIdentifyCaller
	appt, err := r.exec.NextUpcoming(ctx, *st.PatientID, t.now)
	if err != nil {
		return r.schedulingFailure(ctx, st, err)
	}
	if appt == nil {
		st.Stage = callstate.StageOfferBookNew
		return speech.Prompt{Key: speech.KeyNoAppointment}, true
	}
	st.AppointmentID = callstate.Ptr(appt.ID)
	st.ExistingStart = callstate.Ptr(callstate.Instant(appt.Start))
	if st.Intent == callstate.IntentReschedule {
		st.Stage = callstate.StageRescheduleConfirm
		return speech.Prompt{Key: speech.KeyConfirmReschedule, Slot: st.ExistingStart}, true
	}
	st.Stage = callstate.StageCancelConfirm
	return speech.Prompt{Key: speech.KeyConfirmCancel, Slot: st.ExistingStart}, true
}

func (r *Router) confirmReschedule(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	c := t.in.Confirmation
	if c == nil {
		return speech.Prompt{Lead: speech.KeyReprompt, Key: speech.KeyConfirmReschedule, Slot: st.ExistingStart}, false
	}
	if !*c {
		keepExisting(st)
		return speech.Prompt{Key: speech.KeyKeptAppointment}, true
	}
	st.IsReschedule = true
	absorbTimePreference(st, t.in)
	return r.advanceSlot(ctx, st, t, speech.KeyNone)
}

func (r *Router) confirmCancel(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	c := t.in.Confirmation
	if c == nil {
		return speech.Prompt{Lead: speech.KeyReprompt, Key: speech.KeyConfirmCancel, Slot: st.ExistingStart}, false
	}
	if !*c {
		keepExisting(st)
		return speech.Prompt{Key: speech.KeyKeptAppointment}, true
	}

	if st.AppointmentID == nil {
		return r.lookupExisting(ctx, st, t)
	}
	id := *st.AppointmentID
	err := r.exec.Cancel(ctx, id)
	if errors.Is(err, scheduling.ErrConflict) {
		return r.appointmentGone(ctx, st, t)
	}
	if err != nil {
		return r.schedulingFailure(ctx, st, err)
	}
	logger.InfoContext(ctx, "appointment cancelled", "call_sid", st.CallSid, "appointment_id", id)
	st.AppointmentID = nil
	st.ExistingStart = nil
	st.Stage = callstate.StageOfferRebook
	return speech.Prompt{Key: speech.KeyCancelled}, true
}

func (r *Router) offerBooking(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	c := t.in.Confirmation
	if c == nil {
		key := speech.KeyNoAppointment
		if st.Stage == callstate.StageOfferRebook {
			key = speech.KeyCancelled
		}
		return speech.Prompt{Lead: speech.KeyReprompt, Key: key}, false
	}
	if !*c {
		st.Stage = callstate.StageEnd
		return speech.Prompt{Key: speech.KeyGoodbye}, true
	}
	beginAttempt(st, callstate.IntentBook)
	absorbTimePreference(st, t.in)
	return r.advance(ctx, st, t)
}

// schedulingFailure turns a backend error into what the caller hears. An
// unavailable backend is an apology that counts as a failed turn; anything
// unexpected hands the call to staff.
func (r *Router) schedulingFailure(ctx context.Context, st *callstate.CallState, err error) (speech.Prompt, bool) {
	if errors.Is(err, scheduling.ErrUnavailable) {
		logger.WarnContext(ctx, "scheduling backend unavailable", "call_sid", st.CallSid, "stage", st.Stage, "error", err)
		return speech.Prompt{Key: speech.KeyTryLater}, false
	}
	logger.ErrorContext(ctx, "scheduling request failed", "call_sid", st.CallSid, "stage", st.Stage, "error", err)
	return r.handoff(st, ReasonScheduling), true
}

func (r *Router) handoff(st *callstate.CallState, reason string) speech.Prompt {
	st.HandoffTriggered = true
	st.HandoffReason = callstate.Ptr(reason)
	st.Stage = callstate.StageHandoff
	st.PendingSlot = nil
	return speech.Prompt{Key: speech.KeyHandoff}
}

var errBadWindow = errors.New("time preference has no usable window")

func (r *Router) availability(ctx context.Context, st *callstate.CallState, t *turnInput) ([]scheduling.SlotOption, error) {
	from, to, err := ResolveWindow(*st.TimePreference, t.now, r.cfg.Location)
	if err != nil {
		logger.WarnContext(ctx, "resolve time preference", "call_sid", st.CallSid, "error", err)
		return nil, errBadWindow
	}
	if !from.Before(to) {
		return nil, nil
	}
	return r.exec.ListAvailability(ctx, scheduling.AvailabilityQuery{
		PractitionerID:    r.cfg.PractitionerID,
		AppointmentTypeID: r.cfg.AppointmentTypeID,
		From:              from,
		To:                to,
	})
}

// beginAttempt starts a fresh goal. Caller identity survives; everything tied
// to the previous booking attempt does not.
func beginAttempt(st *callstate.CallState, intent callstate.Intent) {
	st.Intent = intent
	st.GroupBooking = false
	st.Participants = nil
	st.TimePreference = nil
	st.RequestSlots = false
	st.GroupBookingComplete = nil
	st.AppointmentCreated = false
	st.AppointmentID = nil
	st.IsReschedule = false
	st.PendingReplacement = nil
	st.PendingSlot = nil
	st.SlotOffset = 0
	st.ExistingStart = nil
}

func keepExisting(st *callstate.CallState) {
	st.AppointmentID = nil
	st.ExistingStart = nil
	st.IsReschedule = false
	st.PendingReplacement = nil
	st.Stage = callstate.StageAnythingElse
}

func absorbCaller(st *callstate.CallState, in interpret.Result) bool {
	changed := false
	if st.CallerName == nil && in.CallerName != nil {
		st.CallerName = callstate.Ptr(*in.CallerName)
		changed = true
	}
	if st.NewPatient == nil && in.NewPatient != nil {
		st.NewPatient = callstate.Ptr(*in.NewPatient)
		changed = true
	}
	return changed
}

// absorbTimePreference fills an empty preference. It never replaces one that
// is already set.
func absorbTimePreference(st *callstate.CallState, in interpret.Result) bool {
	if st.TimePreference != nil || in.TimePreference == nil {
		return false
	}
	st.TimePreference = callstate.Ptr(*in.TimePreference)
	st.RequestSlots = true
	return true
}

func offerPrompt(lead speech.Key, slot *callstate.SlotRef) speech.Prompt {
	return speech.Prompt{Lead: lead, Key: speech.KeyOfferSlot, Slot: callstate.Ptr(slot.Start)}
}
