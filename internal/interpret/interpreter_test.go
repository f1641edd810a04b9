package interpret

import (
	"context"
	"testing"

	"github.com/antoniostano/phonedesk/internal/callstate"
)

type countingClassifier struct {
	calls int
}

func (c *countingClassifier) Classify(context.Context, string, string) (Classification, error) {
	c.calls++
	return Classification{Intent: callstate.IntentBook, Confidence: 0.9, Source: SourceLLM}, nil
}

func TestInterpretSkipsClassifierForPendingSlot(t *testing.T) {
	cls := &countingClassifier{}
	in := New(cls)
	st := callstate.New("CA1", "", "")
	st.Stage = callstate.StageGroupBookingSlotNegotiation
	st.GroupBooking = true

	res := in.Interpret(context.Background(), "yeah mate, this arvo works", "", st, "")
	if cls.calls != 0 {
		t.Fatalf("classifier calls = %d, want 0", cls.calls)
	}
	if res.TimePreference == nil || *res.TimePreference != "today afternoon" {
		t.Fatalf("TimePreference = %v, want today afternoon", res.TimePreference)
	}
}

func TestInterpretClassifiesWhenAwaitingIntent(t *testing.T) {
	cls := &countingClassifier{}
	in := New(cls)
	st := callstate.New("CA1", "", "")
	st.Stage = callstate.StageAwaitIntent

	res := in.Interpret(context.Background(), "I need to see someone about my knee", "", st, "")
	if cls.calls != 1 {
		t.Fatalf("classifier calls = %d, want 1", cls.calls)
	}
	if res.Intent == nil || *res.Intent != callstate.IntentBook {
		t.Fatalf("Intent = %v, want book", res.Intent)
	}
}

func TestInterpretOperatorRequestIsDeterministic(t *testing.T) {
	cls := &countingClassifier{}
	in := New(cls)
	st := callstate.New("CA1", "", "")
	st.Stage = callstate.StageBookingSlotNegotiation

	res := in.Interpret(context.Background(), "can I just speak to a receptionist", "", st, "")
	if res.Intent == nil || *res.Intent != callstate.IntentOperator || res.Source != SourceDeterministic {
		t.Fatalf("Interpret() = %+v, want deterministic operator", res)
	}
	if cls.calls != 0 {
		t.Fatalf("classifier calls = %d, want 0", cls.calls)
	}
}

func TestInterpretNoMatchLeavesSlotsAbsent(t *testing.T) {
	in := New(nil)
	st := callstate.New("CA1", "", "")
	st.Stage = callstate.StageBookingSlotNegotiation
	for _, utterance := range []string{"yes please", "I have back pain", "John Smith"} {
		res := in.Interpret(context.Background(), utterance, "", st, "")
		if res.TimePreference != nil {
			t.Fatalf("Interpret(%q) TimePreference = %q, want absent", utterance, *res.TimePreference)
		}
	}
}

func TestInterpretReadsLooseIntroductionsOnlyWhenAsked(t *testing.T) {
	in := New(NewKeywordClassifier())
	cases := []struct {
		stage     callstate.Stage
		utterance string
		want      string
	}{
		{stage: callstate.StageAwaitIntent, utterance: "I'm really sick and need to book"},
		{stage: callstate.StageAwaitIntent, utterance: "it's about my appointment, I need to cancel"},
		{stage: callstate.StageAwaitIntent, utterance: "this is urgent, can I book in"},
		{stage: callstate.StageAwaitIntent, utterance: "I'm unwell, can I see the doctor"},
		{stage: callstate.StageAwaitIntent, utterance: "it's Jo, I'd like to book"},
		{stage: callstate.StageAwaitIntent, utterance: "my name is Jo Smith, I'd like to book", want: "Jo Smith"},
		{stage: callstate.StageIdentifyCaller, utterance: "it's Jo Smith", want: "Jo Smith"},
		{stage: callstate.StageIdentifyCaller, utterance: "I'm really sick", want: ""},
	}
	for _, tc := range cases {
		st := callstate.New("CA1", "", "")
		st.Stage = tc.stage
		st.Intent = callstate.IntentBook
		res := in.Interpret(context.Background(), tc.utterance, "", st, "")
		got := ""
		if res.CallerName != nil {
			got = *res.CallerName
		}
		if got != tc.want {
			t.Fatalf("Interpret(%q) at %s CallerName = %q, want %q", tc.utterance, tc.stage, got, tc.want)
		}
	}
}
