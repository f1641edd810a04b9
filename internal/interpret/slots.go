package interpret

import (
	"regexp"
	"sort"
	"strings"

	"github.com/antoniostano/phonedesk/internal/callstate"
)

var (
	negativeRe = regexp.MustCompile(`\b(no|nope|nah|not|don't|do not|doesn't|does not|wrong|incorrect|negative)\b`)
	positiveRe = regexp.MustCompile(`\b(yes|yeah|yep|yup|sure|correct|right|ok|okay|perfect|absolutely|definitely|please|sounds good|go ahead|that works|works for me|lovely|great)\b`)

	newPatientRe      = regexp.MustCompile(`\b(new patient|first time|never been|haven't been|have not been|not been before|new here|brand new)\b`)
	existingPatientRe = regexp.MustCompile(`\b(existing patient|been before|returning|i've been|regular|already a patient|seen (?:dr|doctor)\b)`)

	// explicitNameRe is an unmistakable introduction, trusted in any stage.
	explicitNameRe = regexp.MustCompile(`\b(?:my name is|my name's|name's)\s+([a-z][a-z'-]+(?:\s+[a-z][a-z'-]+)?)`)
	// introNameRe also describes situations ("i'm unwell", "it's about"), so it
	// only counts as a name right after the caller was asked for one.
	introNameRe = regexp.MustCompile(`\b(?:this is|it's|it is|i'm|i am)\s+([a-z][a-z'-]+(?:\s+[a-z][a-z'-]+)?)`)

	relationWords = `son|daughter|wife|husband|partner|mum|mom|mother|dad|father|brother|sister|child|kid|baby|grandmother|grandfather|nan|friend`
	relationRe    = regexp.MustCompile(`\bmy\s+(` + relationWords + `)\b(?:\s*,?\s*(?:(?:called|named|who is|whose name is)\s+)?([a-z][a-z'-]+))?`)
	selfRe        = regexp.MustCompile(`\b(me|myself)\b`)
	groupRe       = regexp.MustCompile(`\b(both of us|(?:all|both) of us|the (?:whole )?family|my kids|my children|the kids|(?:two|three|four) appointments|(?:two|three|four) of us)\b`)
)

// nameStopWords are words that follow "my son"/"i'm" without being a name.
var nameStopWords = map[string]bool{
	"and": true, "is": true, "too": true, "also": true, "as": true, "for": true, "at": true,
	"who": true, "needs": true, "will": true, "please": true, "would": true, "wants": true,
	"calling": true, "looking": true, "after": true, "trying": true, "wanting": true,
	"hoping": true, "a": true, "an": true, "the": true, "new": true, "not": true, "just": true,
	"here": true, "ringing": true, "phoning": true, "wondering": true, "from": true, "speaking": true, "again": true,
	"yes": true, "no": true, "yeah": true, "nah": true, "ok": true, "okay": true, "sure": true,
	"hi": true, "hello": true, "book": true, "booking": true, "cancel": true, "reschedule": true,
	"appointment": true, "need": true, "want": true, "to": true, "with": true, "on": true,
	"in": true, "has": true, "have": true, "can": true, "could": true, "i": true, "me": true,
	"um": true, "uh": true, "today": true, "tomorrow": true, "morning": true, "afternoon": true,
	"both": true, "my": true, "sorry": true,
	"about": true, "really": true, "so": true, "very": true, "quite": true, "pretty": true,
	"urgent": true, "sick": true, "unwell": true, "ill": true, "sore": true, "feeling": true,
	"having": true, "going": true, "getting": true, "running": true, "late": true, "worried": true,
	"fine": true, "good": true, "well": true, "actually": true, "still": true, "only": true,
	"bit": true, "pregnant": true, "concerned": true, "regarding": true, "re": true,
	"that": true, "this": true, "it": true, "because": true, "emergency": true, "pain": true,
	"booked": true, "due": true, "over": true, "back": true, "home": true, "busy": true,
}

// ExtractConfirmation reads a yes/no answer. Negative phrasing wins so that
// "yeah nah" is a no.
func ExtractConfirmation(text, digits string) (bool, bool) {
	switch strings.TrimSpace(digits) {
	case "1":
		return true, true
	case "2":
		return false, true
	}
	text = Normalize(text)
	if text == "" {
		return false, false
	}
	if negativeRe.MatchString(text) {
		return false, true
	}
	if positiveRe.MatchString(text) {
		return true, true
	}
	return false, false
}

// ExtractNewPatient reports whether the caller said they are new or returning.
func ExtractNewPatient(text string) (bool, bool) {
	text = Normalize(text)
	if newPatientRe.MatchString(text) {
		return true, true
	}
	if existingPatientRe.MatchString(text) {
		return false, true
	}
	return false, false
}

// ExtractCallerName finds an introduced name ("my name is jane smith"). The
// looser "it's jane" and "i'm jane" forms are only read when asked is set,
// i.e. the caller was just asked for their name.
func ExtractCallerName(text string, asked bool) (string, bool) {
	text = Normalize(text)
	if name, ok := firstName(explicitNameRe, text); ok {
		return name, true
	}
	if asked {
		return firstName(introNameRe, text)
	}
	return "", false
}

func firstName(re *regexp.Regexp, text string) (string, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		if nameStopWords[words[0]] {
			continue
		}
		if len(words) == 2 && nameStopWords[words[1]] {
			words = words[:1]
		}
		return titleCase(strings.Join(words, " ")), true
	}
	return "", false
}

// ExtractBareName treats a short answer made only of non-stop words as a name.
// Used when the caller was just asked for their name.
func ExtractBareName(text string) (string, bool) {
	text = strings.Trim(Normalize(text), ".,!? ")
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 3 {
		return "", false
	}
	for _, w := range words {
		if nameStopWords[w] || !isAlphaWord(w) {
			return "", false
		}
	}
	if _, ok := ExtractTimePreference(text); ok {
		return "", false
	}
	return titleCase(text), true
}

// ExtractParticipants lists the people a caller wants to book, in the order
// they were mentioned. selfName is used for "me"/"myself".
func ExtractParticipants(text, selfName string) ([]callstate.Participant, bool) {
	text = Normalize(text)
	type hit struct {
		pos int
		p   callstate.Participant
	}
	var hits []hit

	for _, idx := range relationRe.FindAllStringSubmatchIndex(text, -1) {
		relation := text[idx[2]:idx[3]]
		name := ""
		if idx[4] >= 0 {
			name = text[idx[4]:idx[5]]
		}
		if name == "" || nameStopWords[name] {
			name = relation
		}
		hits = append(hits, hit{pos: idx[0], p: callstate.Participant{Name: titleCase(name), Relation: relation}})
	}
	if len(hits) > 0 || groupRe.MatchString(text) {
		if loc := selfRe.FindStringIndex(text); loc != nil {
			name := strings.TrimSpace(selfName)
			if name == "" {
				name = "you"
			}
			hits = append(hits, hit{pos: loc[0], p: callstate.Participant{Name: name, Relation: "self"}})
		}
	}
	if len(hits) == 0 {
		return nil, false
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]callstate.Participant, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.p)
	}
	return out, true
}

// MentionsGroup reports phrasing that implies more than one person is being booked.
func MentionsGroup(text string) bool {
	text = Normalize(text)
	if groupRe.MatchString(text) {
		return true
	}
	return (relationRe.MatchString(text) && selfRe.MatchString(text)) ||
		len(relationRe.FindAllString(text, -1)) >= 2
}

func isAlphaWord(w string) bool {
	for _, r := range w {
		if (r < 'a' || r > 'z') && r != '\'' && r != '-' {
			return false
		}
	}
	return w != ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
