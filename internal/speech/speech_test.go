package speech

import (
	"strings"
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text unchanged", in: "You're booked for Monday.", want: "You're booked for Monday."},
		{name: "drops snake case control token", in: "Transferring you now END_CALL", want: "Transferring you now"},
		{name: "drops known system word", in: "HANDOFF Let me get someone.", want: "Let me get someone."},
		{name: "drops bracketed placeholders", in: "Hello [INTENT] there {{name}} <break>", want: "Hello there"},
		{name: "keeps short capitals", in: "Your GP will see you at 3 PM.", want: "Your GP will see you at 3 PM."},
		{name: "drops markdown and urls", in: "See **our** [site](https://example.com) now", want: "See our site now"},
		{name: "collapses whitespace", in: "  one \n\t two   ", want: "one two"},
		{name: "tidies punctuation left by removed token", in: "Goodbye STATE_DONE.", want: "Goodbye."},
		{name: "only control tokens", in: "HANDOFF END_CALL", want: ""},
		{name: "only noise", in: " *** ### ", want: ""},
		{name: "empty", in: "", want: ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Sanitize(tc.in)
			if got != tc.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	for _, in := range []string{"Hi NEXT_STAGE there!", "You're all set, Jo.", "[x] ok"} {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Fatalf("Sanitize(Sanitize(%q)) = %q, want %q", in, twice, once)
		}
	}
}

func TestComposerRenderFormatsSlotInClinicZone(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c := NewComposer("Harbour Medical", loc)
	slot := time.Date(2030, 3, 4, 23, 30, 0, 0, time.UTC) // 10:30 am AEDT on the 5th

	got := c.Render(Prompt{Key: KeyOfferSlot, Lead: KeySlotTaken, Slot: &slot})
	want := "Sorry, that time was just taken. I have Tuesday 5 March at 10:30 am. Would that work for you?"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestComposerRenderEveryKeyIsSpeakable(t *testing.T) {
	c := NewComposer("", time.UTC)
	slot := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	keys := []Key{
		KeyGreeting, KeyHowCanIHelp, KeyReprompt, KeyAskName, KeyAskNewPatient, KeyAskTime,
		KeyOfferSlot, KeyNoAvailability, KeyNoMoreSlots, KeySlotTaken, KeyBooked,
		KeyConfirmReschedule, KeyRescheduled, KeyConfirmCancel, KeyCancelled, KeyKeptAppointment,
		KeyNoAppointment, KeyAppointmentGone, KeyAskParticipants, KeyAskGroupTime, KeyGroupBooked,
		KeyInfo, KeyFees, KeyAnythingElse, KeyTryLater, KeyHandoff, KeyGoodbye, KeyMalformed,
	}
	for _, k := range keys {
		got := c.Render(Prompt{Key: k, Slot: &slot, Names: []string{"Jo", "Sam"}})
		if got == "" {
			t.Fatalf("Render(%q) is empty", k)
		}
		if strings.Contains(got, "_") {
			t.Fatalf("Render(%q) = %q contains an underscore", k, got)
		}
	}
}

func TestJoinNames(t *testing.T) {
	cases := map[string][]string{
		"everyone":       nil,
		"Jo":             {"Jo"},
		"Jo and Sam":     {"Jo", "Sam"},
		"Jo, Sam and Al": {"Jo", "Sam", "Al"},
	}
	for want, in := range cases {
		if got := joinNames(in); got != want {
			t.Fatalf("joinNames(%v) = %q, want %q", in, got, want)
		}
	}
}
