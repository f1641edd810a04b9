package interpret

import (
	"context"
	"regexp"

	"github.com/antoniostano/phonedesk/internal/callstate"
)

type keywordRule struct {
	intent callstate.Intent
	re     *regexp.Regexp
}

// keywordRules are checked in order; "change my appointment" must hit
// reschedule before the generic booking words.
var keywordRules = []keywordRule{
	{callstate.IntentOperator, regexp.MustCompile(`\b(operator|receptionist|human|real person|front desk|(?:speak|talk) to (?:someone|somebody|a person|a staff member|staff))\b`)},
	{callstate.IntentReschedule, regexp.MustCompile(`\b(reschedule|re-schedule|change|move|different time|push (?:it )?back|another time|bring (?:it )?forward)\b`)},
	{callstate.IntentCancel, regexp.MustCompile(`\b(cancel|can't make|cannot make|won't make|can't come|won't be able to make)\b`)},
	{callstate.IntentFees, regexp.MustCompile(`\b(fees?|cost|costs|price|how much|bulk bill(?:ing)?|charge|payment|gap)\b`)},
	{callstate.IntentInfo, regexp.MustCompile(`\b(hours|open|opening|closing|address|where are you|location|located|parking|directions)\b`)},
	{callstate.IntentBook, regexp.MustCompile(`\b(book|booking|appointment|schedule|see (?:the|a) (?:doctor|gp|dentist|physio)|make an|come in|check ?up)\b`)},
}

// KeywordClassifier matches a fixed lexicon. It never fails: anything it does
// not recognize is IntentUnknown.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

func (k *KeywordClassifier) Classify(_ context.Context, utterance, _ string) (Classification, error) {
	return Classification{Intent: KeywordIntent(utterance), Confidence: keywordConfidence(utterance), Source: SourceKeyword}, nil
}

// KeywordIntent returns the first lexicon intent present in the utterance.
func KeywordIntent(utterance string) callstate.Intent {
	text := Normalize(utterance)
	for _, rule := range keywordRules {
		if rule.re.MatchString(text) {
			return rule.intent
		}
	}
	return callstate.IntentUnknown
}

func keywordConfidence(utterance string) float64 {
	if KeywordIntent(utterance) == callstate.IntentUnknown {
		return 0
	}
	return 0.6
}
