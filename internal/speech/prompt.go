package speech

import (
	"fmt"
	"strings"
	"time"
)

// Key names one entry of the prompt catalogue.
type Key string

const (
	KeyNone              Key = ""
	KeyGreeting          Key = "greeting"
	KeyHowCanIHelp       Key = "how_can_i_help"
	KeyReprompt          Key = "reprompt"
	KeyAskName           Key = "ask_name"
	KeyAskNewPatient     Key = "ask_new_patient"
	KeyAskTime           Key = "ask_time"
	KeyOfferSlot         Key = "offer_slot"
	KeyNoAvailability    Key = "no_availability"
	KeyNoMoreSlots       Key = "no_more_slots"
	KeySlotTaken         Key = "slot_taken"
	KeyBooked            Key = "booked"
	KeyConfirmReschedule Key = "confirm_reschedule"
	KeyRescheduled       Key = "rescheduled"
	KeyConfirmCancel     Key = "confirm_cancel"
	KeyCancelled         Key = "cancelled"
	KeyKeptAppointment   Key = "kept_appointment"
	KeyNoAppointment     Key = "no_appointment"
	KeyAppointmentGone   Key = "appointment_gone"
	KeyAskParticipants   Key = "ask_participants"
	KeyAskGroupTime      Key = "ask_group_time"
	KeyGroupBooked       Key = "group_booked"
	KeyInfo              Key = "info"
	KeyFees              Key = "fees"
	KeyAnythingElse      Key = "anything_else"
	KeyTryLater          Key = "try_later"
	KeyHandoff           Key = "handoff"
	KeyGoodbye           Key = "goodbye"
	KeyMalformed         Key = "malformed"
)

// Prompt is what the router wants said next. Lead is an optional preface
// rendered before Key ("that time was just taken" before a new offer).
type Prompt struct {
	Key   Key
	Lead  Key
	Slot  *time.Time
	Names []string
}

// Composer renders prompts into sanitized speakable text.
type Composer struct {
	clinic string
	loc    *time.Location
}

func NewComposer(clinicName string, loc *time.Location) *Composer {
	clinic := strings.TrimSpace(clinicName)
	if clinic == "" {
		clinic = "the clinic"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{clinic: clinic, loc: loc}
}

// Render returns the spoken text for p. Every output passes through Sanitize.
func (c *Composer) Render(p Prompt) string {
	parts := make([]string, 0, 2)
	if p.Lead != KeyNone {
		parts = append(parts, c.text(p.Lead, p))
	}
	parts = append(parts, c.text(p.Key, p))
	return Sanitize(strings.Join(parts, " "))
}

func (c *Composer) text(k Key, p Prompt) string {
	switch k {
	case KeyNone:
		return ""
	case KeyGreeting:
		return fmt.Sprintf("Thanks for calling %s. How can I help you today?", c.clinic)
	case KeyHowCanIHelp:
		return "Sure. What can I help you with?"
	case KeyReprompt:
		return "Sorry, I didn't quite catch that. Could you say that again?"
	case KeyAskName:
		return "Can I get your name, please?"
	case KeyAskNewPatient:
		return "Have you been to see us before?"
	case KeyAskTime:
		return "What day and time would suit you?"
	case KeyOfferSlot:
		return fmt.Sprintf("I have %s. Would that work for you?", c.when(p.Slot))
	case KeyNoAvailability:
		return "I'm sorry, there's nothing free at that time. Is there another day or time that suits?"
	case KeyNoMoreSlots:
		return "That's all I have in that window. Would another day or time work?"
	case KeySlotTaken:
		return "Sorry, that time was just taken."
	case KeyBooked:
		return fmt.Sprintf("You're all booked in for %s. Is there anything else I can help with?", c.when(p.Slot))
	case KeyConfirmReschedule:
		return fmt.Sprintf("I can see your appointment on %s. Is that the one you'd like to move?", c.when(p.Slot))
	case KeyRescheduled:
		return fmt.Sprintf("Done, your appointment is now %s. Is there anything else I can help with?", c.when(p.Slot))
	case KeyConfirmCancel:
		return fmt.Sprintf("I can see your appointment on %s. Would you like me to cancel it?", c.when(p.Slot))
	case KeyCancelled:
		return "That appointment is cancelled. Would you like to book another time?"
	case KeyKeptAppointment:
		return "No problem, I've left it as it is. Is there anything else I can help with?"
	case KeyNoAppointment:
		return "I couldn't find an upcoming appointment for you. Would you like to book a new one?"
	case KeyAppointmentGone:
		return "Sorry, that appointment is no longer available."
	case KeyAskParticipants:
		return "Who would you like to book appointments for?"
	case KeyAskGroupTime:
		return fmt.Sprintf("Great, appointments for %s. What day and time would suit?", joinNames(p.Names))
	case KeyGroupBooked:
		return fmt.Sprintf("All done. I've booked %s, starting %s. Is there anything else I can help with?", joinNames(p.Names), c.when(p.Slot))
	case KeyInfo:
		return fmt.Sprintf("%s is open weekdays from 9 am to 5 pm.", c.clinic)
	case KeyFees:
		return "A standard consultation is bulk billed for eligible patients. Our reception team can go through any gap fees with you."
	case KeyAnythingElse:
		return "Is there anything else I can help with?"
	case KeyTryLater:
		return "Sorry, I'm having trouble reaching our booking system right now. Let's try that again in a moment."
	case KeyHandoff:
		return "I'll put you through to one of our team now."
	case KeyGoodbye:
		return fmt.Sprintf("Thanks for calling %s. Goodbye.", c.clinic)
	case KeyMalformed:
		return "Sorry, something went wrong on our end. Please call back and we'll help you straight away."
	default:
		return ""
	}
}

func (c *Composer) when(t *time.Time) string {
	if t == nil {
		return "that time"
	}
	local := t.In(c.loc)
	clock := local.Format("3:04 pm")
	if local.Minute() == 0 {
		clock = local.Format("3 pm")
	}
	return local.Format("Monday 2 January") + " at " + clock
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return "everyone"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
