package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/antoniostano/phonedesk/internal/callstate"
	"github.com/antoniostano/phonedesk/internal/scheduling"
	"github.com/antoniostano/phonedesk/internal/speech"
)

func (r *Router) collectGroup(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	changed := false
	if len(st.Participants) < 2 && len(t.in.Participants) > 0 {
		st.Participants = append(st.Participants, t.in.Participants...)
		changed = true
	}
	if absorbTimePreference(st, t.in) {
		changed = true
	}

	// The gate is checked before anything else so a booking interrupted by a
	// backend outage resumes on the next turn, whatever was said.
	if GroupGate(*st) {
		return r.executeGroup(ctx, st, t)
	}
	if !changed {
		p, _ := r.advanceGroup(ctx, st, t)
		p.Lead = speech.KeyReprompt
		return p, false
	}
	return r.advanceGroup(ctx, st, t)
}

func (r *Router) advanceGroup(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	if len(st.Participants) < 2 {
		st.Stage = callstate.StageGroupBookingCollect
		return speech.Prompt{Key: speech.KeyAskParticipants}, true
	}
	st.Stage = callstate.StageGroupBookingSlotNegotiation
	if st.TimePreference == nil {
		return speech.Prompt{Key: speech.KeyAskGroupTime, Names: participantNames(st)}, true
	}
	if GroupGate(*st) {
		return r.executeGroup(ctx, st, t)
	}
	st.Stage = callstate.StageConfirmed
	return speech.Prompt{Key: speech.KeyAnythingElse}, true
}

// executeGroup books every participant that has no appointment yet, one slot
// each, in mention order. Participants booked on an earlier turn are skipped
// so a resumed booking never duplicates.
func (r *Router) executeGroup(ctx context.Context, st *callstate.CallState, t *turnInput) (speech.Prompt, bool) {
	ctx, span := tracer.Start(ctx, "flow.group_booking", trace.WithAttributes(
		attribute.Int("group.participants", len(st.Participants)),
	))
	defer span.End()

	slots, err := r.availability(ctx, st, t)
	if errors.Is(err, errBadWindow) {
		st.TimePreference = nil
		st.RequestSlots = false
		return speech.Prompt{Lead: speech.KeyReprompt, Key: speech.KeyAskGroupTime, Names: participantNames(st)}, false
	}
	if err != nil {
		return r.schedulingFailure(ctx, st, err)
	}
	st.RequestSlots = false

	var first *time.Time
	next := 0
	for i := range st.Participants {
		p := &st.Participants[i]
		if p.AppointmentID != nil {
			continue
		}
		if p.PatientID == nil {
			name := p.Name
			if p.Relation == "self" && st.CallerName != nil {
				name = *st.CallerName
			}
			patient, _, err := r.exec.ResolvePatient(ctx, st.FromNumber, name, true)
			if err != nil {
				return r.schedulingFailure(ctx, st, err)
			}
			p.PatientID = callstate.Ptr(patient.ID)
		}

		booked := false
		for next < len(slots) && !booked {
			s := slots[next]
			next++
			key := scheduling.IdempotencyKey{CallSid: st.CallSid, Participant: i, Turn: t.turn}
			id, err := r.exec.CreateAppointment(ctx, key, scheduling.AppointmentRequest{
				PatientID:         *p.PatientID,
				PractitionerID:    s.PractitionerID,
				AppointmentTypeID: s.AppointmentTypeID,
				Start:             s.Start,
			})
			if errors.Is(err, scheduling.ErrConflict) {
				continue
			}
			if err != nil {
				return r.schedulingFailure(ctx, st, err)
			}
			p.AppointmentID = callstate.Ptr(id)
			booked = true
			if first == nil {
				first = callstate.Ptr(s.Start)
			}
		}
		if !booked {
			// Not enough room for everyone; keep what is booked and ask for another time.
			st.TimePreference = nil
			return speech.Prompt{Key: speech.KeyNoAvailability}, true
		}
	}

	n := len(st.Participants)
	st.GroupBookingComplete = &n
	st.AppointmentCreated = true
	st.AppointmentID = callstate.Ptr(*st.Participants[0].AppointmentID)
	st.Stage = callstate.StageConfirmed
	logger.InfoContext(ctx, "group booking complete", "call_sid", st.CallSid, "participants", n)
	return speech.Prompt{Key: speech.KeyGroupBooked, Names: participantNames(st), Slot: first}, true
}

// participantNames is how participants are read back to the caller: the
// caller is "you", an unnamed relative is "your son".
func participantNames(st *callstate.CallState) []string {
	names := make([]string, 0, len(st.Participants))
	for _, p := range st.Participants {
		switch {
		case p.Relation == "self":
			names = append(names, "you")
		case p.Relation != "" && strings.EqualFold(p.Name, p.Relation):
			names = append(names, "your "+p.Relation)
		default:
			names = append(names, p.Name)
		}
	}
	return names
}
