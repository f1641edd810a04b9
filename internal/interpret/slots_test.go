package interpret

import (
	"reflect"
	"testing"

	"github.com/antoniostano/phonedesk/internal/callstate"
)

func TestExtractConfirmation(t *testing.T) {
	cases := []struct {
		in, digits string
		want       bool
		wantOK     bool
	}{
		{in: "yes please", want: true, wantOK: true},
		{in: "yeah that works", want: true, wantOK: true},
		{in: "yeah nah", want: false, wantOK: true},
		{in: "no, how about tomorrow", want: false, wantOK: true},
		{in: "that's not right", want: false, wantOK: true},
		{digits: "1", want: true, wantOK: true},
		{digits: "2", want: false, wantOK: true},
		{in: "I have back pain", wantOK: false},
	}
	for _, tc := range cases {
		got, ok := ExtractConfirmation(tc.in, tc.digits)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("ExtractConfirmation(%q, %q) = %v, %v; want %v, %v", tc.in, tc.digits, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestExtractCallerName(t *testing.T) {
	cases := []struct {
		in     string
		asked  bool
		want   string
		wantOK bool
	}{
		{in: "Hi, my name is Jane Smith", want: "Jane Smith", wantOK: true},
		{in: "my name's jane and I need to book", want: "Jane", wantOK: true},
		{in: "it's jane", asked: true, want: "Jane", wantOK: true},
		{in: "this is Tom from work", asked: true, want: "Tom", wantOK: true},
		{in: "it's jane", wantOK: false},
		{in: "I'm calling to book an appointment", asked: true, wantOK: false},
		{in: "I'm really sick and need to book", wantOK: false},
		{in: "I'm really sick and need to book", asked: true, wantOK: false},
		{in: "it's about my appointment, I need to cancel", wantOK: false},
		{in: "it's about my appointment, I need to cancel", asked: true, wantOK: false},
		{in: "this is urgent, can I book in", wantOK: false},
		{in: "this is urgent, can I book in", asked: true, wantOK: false},
		{in: "I'm unwell, can I see the doctor", wantOK: false},
		{in: "I'm unwell, can I see the doctor", asked: true, wantOK: false},
		{in: "I'm so sorry, I'm running late", asked: true, wantOK: false},
	}
	for _, tc := range cases {
		got, ok := ExtractCallerName(tc.in, tc.asked)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("ExtractCallerName(%q, asked=%v) = %q, %v; want %q, %v", tc.in, tc.asked, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestExtractBareName(t *testing.T) {
	if got, ok := ExtractBareName("John Smith"); !ok || got != "John Smith" {
		t.Fatalf("ExtractBareName(John Smith) = %q, %v", got, ok)
	}
	for _, in := range []string{"yes please", "I have back pain", "tomorrow", "one two three four"} {
		if got, ok := ExtractBareName(in); ok {
			t.Fatalf("ExtractBareName(%q) = %q, want no name", in, got)
		}
	}
}

func TestExtractParticipantsKeepsMentionOrder(t *testing.T) {
	got, ok := ExtractParticipants("I'd like to book me and my son Jack and my daughter", "Sam")
	if !ok {
		t.Fatalf("ExtractParticipants() found none")
	}
	want := []callstate.Participant{
		{Name: "Sam", Relation: "self"},
		{Name: "Jack", Relation: "son"},
		{Name: "Daughter", Relation: "daughter"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractParticipants() = %+v, want %+v", got, want)
	}
}

func TestExtractParticipantsSelfWithoutName(t *testing.T) {
	got, ok := ExtractParticipants("me and my son", "")
	if !ok || len(got) != 2 || got[0].Name != "you" || got[0].Relation != "self" {
		t.Fatalf("ExtractParticipants() = %+v, want caller as \"you\"", got)
	}
}

func TestExtractParticipantsAllowsDuplicateNames(t *testing.T) {
	got, _ := ExtractParticipants("my son Alex and my daughter Alex", "")
	if len(got) != 2 || got[0].Name != "Alex" || got[1].Name != "Alex" {
		t.Fatalf("ExtractParticipants() = %+v, want two Alex entries", got)
	}
}

func TestMentionsGroup(t *testing.T) {
	if !MentionsGroup("can I book both of us in") {
		t.Fatalf("MentionsGroup(both of us) = false")
	}
	if !MentionsGroup("me and my wife") {
		t.Fatalf("MentionsGroup(me and my wife) = false")
	}
	if MentionsGroup("I need an appointment for me") {
		t.Fatalf("MentionsGroup(single) = true")
	}
}

func TestExtractNewPatient(t *testing.T) {
	if got, ok := ExtractNewPatient("I haven't been before"); !ok || !got {
		t.Fatalf("ExtractNewPatient(haven't been before) = %v, %v; want true, true", got, ok)
	}
	if got, ok := ExtractNewPatient("I'm an existing patient"); !ok || got {
		t.Fatalf("ExtractNewPatient(existing) = %v, %v; want false, true", got, ok)
	}
}
