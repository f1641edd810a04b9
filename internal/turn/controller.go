package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/antoniostano/phonedesk/internal/callstate"
	"github.com/antoniostano/phonedesk/internal/calls"
	"github.com/antoniostano/phonedesk/internal/flow"
	"github.com/antoniostano/phonedesk/internal/interpret"
	"github.com/antoniostano/phonedesk/internal/observability"
	"github.com/antoniostano/phonedesk/internal/policy"
	"github.com/antoniostano/phonedesk/internal/scheduling"
	"github.com/antoniostano/phonedesk/internal/speech"
)

// Request is one inbound turn webhook.
type Request struct {
	CallSid string
	From    string
	To      string
	Speech  string
	Digits  string
	// Turn is the index carried in the gather action URL. Zero means the
	// initial webhook of the call.
	Turn int
}

// Response is what the telephony layer should do next. It is persisted with
// the state so a redelivered turn gets the exact same answer.
type Response struct {
	Text           string `json:"text"`
	Gather         bool   `json:"gather"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	NextTurn       int    `json:"next_turn,omitempty"`
	TransferNumber string `json:"transfer_number,omitempty"`
}

type Config struct {
	TenantID             string
	HandoffNumber        string
	GatherTimeoutSeconds int
	// MutationTimeout bounds routing once it has started. Routing runs
	// detached from the webhook context so a booking in flight completes
	// even if the caller hangs up.
	MutationTimeout time.Duration
	// LogUtterances adds the redacted caller utterance to turn logs.
	LogUtterances bool
	Logger        *slog.Logger
}

type Controller struct {
	store    callstate.Store
	calls    *calls.Registry
	interp   *interpret.Interpreter
	router   *flow.Router
	composer *speech.Composer
	exec     *scheduling.Executor
	metrics  *observability.Metrics
	cfg      Config
	log      *slog.Logger
}

func NewController(
	store callstate.Store,
	registry *calls.Registry,
	interp *interpret.Interpreter,
	router *flow.Router,
	composer *speech.Composer,
	exec *scheduling.Executor,
	metrics *observability.Metrics,
	cfg Config,
) *Controller {
	if cfg.GatherTimeoutSeconds <= 0 {
		cfg.GatherTimeoutSeconds = 5
	}
	if cfg.MutationTimeout <= 0 {
		cfg.MutationTimeout = 15 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger
	}
	c := &Controller{
		store:    store,
		calls:    registry,
		interp:   interp,
		router:   router,
		composer: composer,
		exec:     exec,
		metrics:  metrics,
		cfg:      cfg,
		log:      log,
	}
	registry.SetExpireHook(func(call calls.Call) {
		c.forget(context.Background(), call.Sid, "inactive")
	})
	return c
}

// Handle runs one turn. It always produces something to say; failures are
// turned into a spoken apology or a handoff here and never escape.
func (c *Controller) Handle(ctx context.Context, req Request) Response {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "turn.handle", trace.WithAttributes(
		attribute.String("call.sid", req.CallSid),
		attribute.Int("call.turn", req.Turn),
	))
	defer span.End()

	release, err := c.calls.Acquire(ctx, req.CallSid, req.From)
	if errors.Is(err, calls.ErrEnded) {
		c.log.InfoContext(ctx, "turn for ended call", "call_sid", req.CallSid, "turn", req.Turn)
		c.observeOutcome(observability.OutcomeEnded)
		return Response{Text: c.composer.Render(speech.Prompt{Key: speech.KeyGoodbye})}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.WarnContext(ctx, "turn lock not acquired", "call_sid", req.CallSid, "error", err)
		c.observeOutcome(observability.OutcomeFatal)
		return Response{Text: c.composer.Render(speech.Prompt{Key: speech.KeyTryLater}), Gather: true, TimeoutSeconds: c.cfg.GatherTimeoutSeconds, NextTurn: req.Turn}
	}
	defer release()
	c.setActive()

	resp, outcome := c.run(ctx, req)
	span.SetAttributes(attribute.String("turn.outcome", outcome))
	c.observeOutcome(outcome)
	if c.metrics != nil {
		c.metrics.ObserveTurnLatency(time.Since(started))
	}
	return resp
}

// Retire drops everything held for a call that has ended. A turn of the call
// still running is allowed to commit first so its write cannot outlive the delete.
func (c *Controller) Retire(ctx context.Context, callSid, reason string) {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*c.cfg.MutationTimeout)
	defer cancel()
	_, done, err := c.calls.Finish(waitCtx, callSid)
	switch {
	case err == nil:
		defer done()
	case errors.Is(err, calls.ErrNotFound):
	default:
		// The stale sweep removes whatever the stuck turn writes later.
		c.log.WarnContext(ctx, "retire without turn lock", "call_sid", callSid, "error", err)
	}
	c.forget(ctx, callSid, reason)
}

// SweepStale deletes stored state nobody wrote to for olderThan. It catches
// records whose call was dropped from the registry without a final delete.
func (c *Controller) SweepStale(ctx context.Context, olderThan time.Duration) int {
	sids, err := c.store.DeleteStale(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		c.log.ErrorContext(ctx, "sweep stale call state", "error", err)
		return 0
	}
	for _, sid := range sids {
		c.exec.Forget(sid)
		if c.metrics != nil {
			c.metrics.CallEvents.WithLabelValues("retired_stale").Inc()
		}
		c.log.InfoContext(ctx, "call retired", "call_sid", sid, "reason", "stale")
	}
	return len(sids)
}

// StartSweeper runs SweepStale every interval until ctx is done.
func (c *Controller) StartSweeper(ctx context.Context, interval, olderThan time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.SweepStale(ctx, olderThan)
			}
		}
	}()
}

func (c *Controller) forget(ctx context.Context, callSid, reason string) {
	if err := c.store.Delete(ctx, callSid); err != nil {
		c.log.ErrorContext(ctx, "delete call state", "call_sid", callSid, "error", err)
	}
	c.exec.Forget(callSid)
	if c.metrics != nil {
		c.metrics.CallEvents.WithLabelValues("retired_" + reason).Inc()
	}
	c.setActive()
	c.log.InfoContext(ctx, "call retired", "call_sid", callSid, "reason", reason)
}

func (c *Controller) run(ctx context.Context, req Request) (resp Response, outcome string) {
	st := callstate.New(req.CallSid, c.cfg.TenantID, req.From)
	turn := req.Turn
	defer func() {
		if rec := recover(); rec != nil {
			c.log.ErrorContext(ctx, "turn panicked", "call_sid", req.CallSid, "turn", turn, "panic", fmt.Sprint(rec))
			resp, outcome = c.escalate(ctx, st, turn), observability.OutcomeFatal
		}
	}()

	phase := time.Now()
	rec, err := c.store.Get(ctx, req.CallSid)
	switch {
	case errors.Is(err, callstate.ErrNotFound):
		if c.metrics != nil {
			c.metrics.CallEvents.WithLabelValues("started").Inc()
		}
		if turn <= 0 {
			turn = 1
		}
	case err != nil:
		c.log.ErrorContext(ctx, "load call state", "call_sid", req.CallSid, "error", err)
		return c.escalate(ctx, st, turn), observability.OutcomeFatal
	default:
		if turn <= 0 {
			turn = 1
		}
		if turn <= rec.TurnIndex {
			// Only the last committed response is kept, so an older redelivery
			// gets that one rather than the answer it originally produced.
			var prior Response
			if err := json.Unmarshal(rec.Response, &prior); err == nil {
				c.log.InfoContext(ctx, "duplicate turn", "call_sid", req.CallSid, "turn", turn, "committed", rec.TurnIndex)
				return prior, observability.OutcomeDuplicate
			}
			c.log.WarnContext(ctx, "stored response unreadable", "call_sid", req.CallSid, "turn", rec.TurnIndex)
		}
		decoded, err := callstate.Decode(rec.State)
		if err != nil {
			return c.malformed(ctx, req.CallSid, err), observability.OutcomeMalformed
		}
		st = decoded
		if turn <= st.TurnIndex {
			turn = st.TurnIndex + 1
		}
	}
	c.observeStage("load_state", phase)

	phase = time.Now()
	in := c.interp.Interpret(ctx, req.Speech, req.Digits, st, contextHint(st))
	if in.Source != "" && c.metrics != nil {
		c.metrics.ClassifierSources.WithLabelValues(in.Source).Inc()
	}
	c.observeStage("interpret", phase)

	phase = time.Now()
	routeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.MutationTimeout)
	next, prompt := c.router.Transition(routeCtx, st, in, turn)
	cancel()
	c.observeStage("route", phase)
	if err := next.Validate(); err != nil {
		c.log.ErrorContext(ctx, "router produced invalid state", "call_sid", req.CallSid, "turn", turn, "error", err)
		return c.escalate(ctx, st, turn), observability.OutcomeFatal
	}
	st = next

	resp = c.respond(st, c.composer.Render(prompt), turn)
	c.logTurn(ctx, req, st, in, turn)

	phase = time.Now()
	c.commit(ctx, st, resp)
	c.observeStage("store_state", phase)

	if st.HandoffTriggered {
		return resp, observability.OutcomeHandoff
	}
	return resp, observability.OutcomeAccepted
}

func (c *Controller) respond(st callstate.CallState, text string, turn int) Response {
	resp := Response{Text: text}
	switch st.Stage {
	case callstate.StageHandoff:
		resp.TransferNumber = c.cfg.HandoffNumber
	case callstate.StageEnd:
	default:
		resp.Gather = true
		resp.TimeoutSeconds = c.cfg.GatherTimeoutSeconds
		resp.NextTurn = turn + 1
	}
	return resp
}

// commit writes state and response in one Put. The write is detached from the
// webhook so a hang-up cannot lose a booking that already happened.
func (c *Controller) commit(ctx context.Context, st callstate.CallState, resp Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		c.log.ErrorContext(ctx, "encode response", "call_sid", st.CallSid, "error", err)
		return
	}
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.MutationTimeout)
	defer cancel()
	err = c.store.Put(putCtx, callstate.Record{
		CallSid:   st.CallSid,
		TurnIndex: st.TurnIndex,
		State:     callstate.Encode(st),
		Response:  raw,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		c.log.ErrorContext(ctx, "store call state", "call_sid", st.CallSid, "turn", st.TurnIndex, "error", err)
	}
}

// escalate hands the caller to staff after an unexpected failure.
func (c *Controller) escalate(ctx context.Context, st callstate.CallState, turn int) Response {
	if turn <= st.TurnIndex {
		turn = st.TurnIndex + 1
	}
	st.TurnIndex = turn
	st.Stage = callstate.StageHandoff
	st.HandoffTriggered = true
	st.HandoffReason = callstate.Ptr(flow.ReasonInternal)
	resp := c.respond(st, c.composer.Render(speech.Prompt{Key: speech.KeyHandoff}), turn)
	c.commit(ctx, st, resp)
	return resp
}

// malformed ends a call whose stored state cannot be read. Only that call's
// record is removed.
func (c *Controller) malformed(ctx context.Context, callSid string, cause error) Response {
	c.log.ErrorContext(ctx, "malformed call state", "call_sid", callSid, "error", cause)
	if err := c.store.Delete(context.WithoutCancel(ctx), callSid); err != nil {
		c.log.ErrorContext(ctx, "delete malformed call state", "call_sid", callSid, "error", err)
	}
	c.exec.Forget(callSid)
	return Response{Text: c.composer.Render(speech.Prompt{Key: speech.KeyMalformed})}
}

func (c *Controller) logTurn(ctx context.Context, req Request, st callstate.CallState, in interpret.Result, turn int) {
	attrs := []any{
		"call_sid", req.CallSid,
		"from", policy.MaskPhone(req.From),
		"turn", turn,
		"stage", string(st.Stage),
		"intent", string(st.Intent),
	}
	if c.cfg.LogUtterances {
		utterance, redacted := policy.RedactPII(req.Speech)
		attrs = append(attrs, "utterance", utterance, "redacted", redacted)
	}
	if in.Source != "" {
		attrs = append(attrs, "classifier", in.Source, "confidence", in.Confidence)
	}
	if st.HandoffReason != nil {
		attrs = append(attrs, "handoff_reason", *st.HandoffReason)
	}
	c.log.InfoContext(ctx, "turn", attrs...)
}

func (c *Controller) observeStage(stage string, since time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveTurnStage(stage, time.Since(since))
	}
}

func (c *Controller) observeOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveTurnOutcome(outcome)
	}
}

func (c *Controller) setActive() {
	if c.metrics != nil {
		c.metrics.ActiveCalls.Set(float64(c.calls.ActiveCount()))
	}
}
