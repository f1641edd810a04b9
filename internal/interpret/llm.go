package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/antoniostano/phonedesk/internal/callstate"
)

const classifierSystemPrompt = `You classify what a caller to a medical clinic's phone line wants.
Answer with exactly one intent:
- book: make a new appointment
- reschedule: move an existing appointment to another time
- cancel: cancel an existing appointment
- operator: speak to a human or staff member
- info: opening hours, address, parking or other clinic information
- fees: prices, gap fees, billing
- unknown: anything else
Confidence is your probability between 0 and 1 that the intent is correct.`

// intentOutput is the structured response the model must produce.
type intentOutput struct {
	Intent     string  `json:"intent" jsonschema:"enum=book,enum=reschedule,enum=cancel,enum=operator,enum=info,enum=fees,enum=unknown"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
}

// LLMClassifier asks an OpenAI-compatible chat completions endpoint for a
// schema-constrained intent classification.
type LLMClassifier struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	schema *jsonschema.Schema
}

func NewLLMClassifier(url, apiKey, model string) *LLMClassifier {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return &LLMClassifier{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		schema: reflector.Reflect(&intentOutput{}),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *chatJSONSchema `json:"json_schema,omitempty"`
}

type chatJSONSchema struct {
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
	Strict bool               `json:"strict"`
}

type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	Temperature    float64            `json:"temperature"`
	ResponseFormat chatResponseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *LLMClassifier) Classify(ctx context.Context, utterance, contextHint string) (Classification, error) {
	ctx, span := tracer.Start(ctx, "classify intent")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	prompt := utterance
	if strings.TrimSpace(contextHint) != "" {
		prompt = fmt.Sprintf("The assistant last asked: %q\nThe caller said: %q", contextHint, utterance)
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: chatResponseFormat{
			Type:       "json_schema",
			JSONSchema: &chatJSONSchema{Name: "intentOutput", Schema: c.schema, Strict: true},
		},
	})
	if err != nil {
		return Classification{}, c.fail(span, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Classification{}, c.fail(span, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return Classification{}, c.fail(span, fmt.Errorf("send request: %w", err))
	}
	defer res.Body.Close()
	span.SetAttributes(attribute.Int("response.status_code", res.StatusCode))

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Classification{}, c.fail(span, fmt.Errorf("classifier http status %d: %s", res.StatusCode, string(msg)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Classification{}, c.fail(span, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return Classification{}, c.fail(span, fmt.Errorf("classifier returned no choices"))
	}

	content := parsed.Choices[0].Message.Content
	// Some models wrap JSON in a fenced block even in schema mode.
	if split := strings.Split(content, "```"); len(split) > 1 {
		content = strings.TrimPrefix(strings.TrimSpace(split[1]), "json")
	}
	var out intentOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Classification{}, c.fail(span, fmt.Errorf("unmarshal classification: %w", err))
	}

	intent := callstate.Intent(strings.ToLower(strings.TrimSpace(out.Intent)))
	if !intent.Valid() || intent == callstate.IntentNone {
		return Classification{}, c.fail(span, fmt.Errorf("unknown intent %q", out.Intent))
	}
	span.SetAttributes(attribute.String("response.intent", string(intent)))
	return Classification{Intent: intent, Confidence: out.Confidence, Source: SourceLLM}, nil
}

func (c *LLMClassifier) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
