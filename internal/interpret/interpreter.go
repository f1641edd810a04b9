package interpret

import (
	"context"

	"github.com/antoniostano/phonedesk/internal/callstate"
)

// Result holds whatever the utterance told us. Nil fields were not present
// and must not overwrite state.
type Result struct {
	Intent         *callstate.Intent
	Confidence     float64
	Source         string
	TimePreference *string
	Participants   []callstate.Participant
	GroupRequested bool
	Confirmation   *bool
	CallerName     *string
	NewPatient     *bool
	Empty          bool
}

// Interpreter runs the deterministic extractors and, when the call is waiting
// for a goal, the intent classifier.
type Interpreter struct {
	classifier Classifier
}

func New(classifier Classifier) *Interpreter {
	if classifier == nil {
		classifier = NewFallbackClassifier(nil, 0, 0)
	}
	return &Interpreter{classifier: classifier}
}

// Interpret never fails; an utterance it cannot read yields an empty Result.
func (in *Interpreter) Interpret(ctx context.Context, utterance, digits string, st callstate.CallState, contextHint string) Result {
	text := Normalize(utterance)
	res := Result{Empty: text == "" && digits == ""}
	if res.Empty {
		return res
	}

	if tp, ok := ExtractTimePreference(text); ok {
		res.TimePreference = &tp
	}
	if yes, ok := ExtractConfirmation(text, digits); ok {
		res.Confirmation = &yes
	}
	if isNew, ok := ExtractNewPatient(text); ok {
		res.NewPatient = &isNew
	}
	asked := st.Stage == callstate.StageIdentifyCaller
	if name, ok := ExtractCallerName(text, asked); ok {
		res.CallerName = &name
	} else if asked {
		if name, ok := ExtractBareName(text); ok {
			res.CallerName = &name
		}
	}

	selfName := ""
	if res.CallerName != nil {
		selfName = *res.CallerName
	} else if st.CallerName != nil {
		selfName = *st.CallerName
	}
	if ps, ok := ExtractParticipants(text, selfName); ok {
		res.Participants = ps
	}
	res.GroupRequested = MentionsGroup(text)

	// An explicit request for a person is honoured in every stage.
	if KeywordIntent(text) == callstate.IntentOperator {
		res.Intent = callstate.Ptr(callstate.IntentOperator)
		res.Confidence = 1
		res.Source = SourceDeterministic
		return res
	}

	if !awaitingIntent(st) || text == "" {
		return res
	}
	c, _ := in.classifier.Classify(ctx, text, contextHint)
	res.Intent = &c.Intent
	res.Confidence = c.Confidence
	res.Source = c.Source
	return res
}

func awaitingIntent(st callstate.CallState) bool {
	switch st.Stage {
	case callstate.StageGreeting, callstate.StageAwaitIntent, callstate.StageAnythingElse, callstate.StageConfirmed:
		return true
	case callstate.StageIdentifyCaller:
		return st.Intent == callstate.IntentNone
	default:
		return false
	}
}
