package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +61 (2) 9123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIDateOfBirth(t *testing.T) {
	out, changed := RedactPII("my date of birth is the fourth of july, and I'm free tomorrow")
	if !changed || strings.Contains(out, "july") {
		t.Fatalf("RedactPII() = %q, %v", out, changed)
	}
	if !strings.Contains(out, "tomorrow") {
		t.Fatalf("RedactPII() dropped the rest of the sentence: %q", out)
	}

	out, _ = RedactPII("born 12/03/1985")
	if !strings.Contains(out, "[REDACTED_DATE]") {
		t.Fatalf("RedactPII() = %q, want date marker", out)
	}
}

func TestRedactPIILeavesSchedulingTalkAlone(t *testing.T) {
	in := "tomorrow at 10:30 am for me and my son"
	if out, changed := RedactPII(in); changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v", in, out, changed)
	}
}

func TestMaskPhone(t *testing.T) {
	cases := map[string]string{
		"+61400123456": "********456",
		"12":           "**",
		"":             "",
	}
	for in, want := range cases {
		if got := MaskPhone(in); got != want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}
