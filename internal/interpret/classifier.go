package interpret

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antoniostano/phonedesk/internal/callstate"
)

const (
	SourceLLM           = "llm"
	SourceKeyword       = "keyword"
	SourceDeterministic = "deterministic"
)

// Classification is the result of mapping a free-form utterance to an intent.
type Classification struct {
	Intent     callstate.Intent
	Confidence float64
	Source     string
}

// Classifier maps an utterance to one of the bounded intents. contextHint
// describes what the caller was last asked.
type Classifier interface {
	Classify(ctx context.Context, utterance, contextHint string) (Classification, error)
}

// FallbackClassifier tries a probabilistic primary under a bounded timeout and
// falls back to the keyword lexicon on timeout, error, low confidence or when
// no primary is configured. It never returns an error.
type FallbackClassifier struct {
	primary       Classifier
	fallback      *KeywordClassifier
	timeout       time.Duration
	minConfidence float64
	onFallback    func(reason string)
}

func NewFallbackClassifier(primary Classifier, timeout time.Duration, minConfidence float64) *FallbackClassifier {
	if timeout <= 0 {
		timeout = 400 * time.Millisecond
	}
	return &FallbackClassifier{
		primary:       primary,
		fallback:      NewKeywordClassifier(),
		timeout:       timeout,
		minConfidence: minConfidence,
	}
}

// SetFallbackHook registers a callback invoked with the reason each time the keyword path is used.
func (c *FallbackClassifier) SetFallbackHook(hook func(reason string)) {
	c.onFallback = hook
}

func (c *FallbackClassifier) Classify(ctx context.Context, utterance, contextHint string) (Classification, error) {
	if c.primary == nil {
		return c.useFallback(ctx, utterance, contextHint, "unconfigured"), nil
	}

	primaryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	got, err := c.primary.Classify(primaryCtx, utterance, contextHint)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(primaryCtx.Err(), context.DeadlineExceeded):
		return c.useFallback(ctx, utterance, contextHint, "timeout"), nil
	case err != nil:
		logger.WarnContext(ctx, "intent classifier failed", "error", err)
		return c.useFallback(ctx, utterance, contextHint, "error"), nil
	case !got.Intent.Valid() || got.Intent == callstate.IntentNone:
		return c.useFallback(ctx, utterance, contextHint, "invalid"), nil
	case got.Confidence < c.minConfidence:
		kw := c.useFallback(ctx, utterance, contextHint, "low_confidence")
		if kw.Intent != callstate.IntentUnknown {
			return kw, nil
		}
		return got, nil
	}
	got.Source = SourceLLM
	return got, nil
}

func (c *FallbackClassifier) useFallback(ctx context.Context, utterance, contextHint, reason string) Classification {
	if c.onFallback != nil {
		c.onFallback(reason)
	}
	out, _ := c.fallback.Classify(ctx, utterance, contextHint)
	return out
}

// StaticClassifier returns a fixed classification; used for tests and local runs.
type StaticClassifier struct {
	Result Classification
	Err    error
	Delay  time.Duration
}

func (s StaticClassifier) Classify(ctx context.Context, _, _ string) (Classification, error) {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return Classification{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if s.Err != nil {
		return Classification{}, fmt.Errorf("static classifier: %w", s.Err)
	}
	return s.Result, nil
}
