// Package engine drives the lifecycle of logical completion requests:
// admission, streaming, retry with backoff, rate-limit back-pressure,
// tool-call reconciliation, and terminal-state delivery.
//
// Information Hiding: callers see Submit and the Handle it returns; the
// attempt loop, backoff arithmetic, and shared provider limit windows stay
// behind this package boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/reconcile"
	"github.com/loomlabs/loom/registry"
	"github.com/loomlabs/loom/tokens"
)

// Engine runs logical requests against registered provider adapters. Safe
// for concurrent use; each Submit spawns an independent run loop.
type Engine struct {
	reg      *registry.Registry
	adapters map[string]llm.Adapter
	policy   RetryPolicy
	limits   *providerLimits
	log      zerolog.Logger
	obs      Observer

	// sleep is swappable so retry timing is testable without wall-clock
	// waits. It must honor ctx.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithObserver attaches a lifecycle observer, e.g. a usage recorder.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.obs = obs }
}

// WithRetryPolicy overrides the default retry tuning.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// New builds an engine over a model registry and a set of adapters keyed by
// provider name.
func New(reg *registry.Registry, adapters map[string]llm.Adapter, opts ...Option) *Engine {
	e := &Engine{
		reg:      reg,
		adapters: adapters,
		policy:   DefaultRetryPolicy(),
		limits:   newProviderLimits(),
		log:      zerolog.Nop(),
		obs:      nopObserver{},
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates the request against the model's capabilities and context
// window, then starts it asynchronously. Admission failures are returned
// synchronously; everything after admission arrives on the handle's event
// channel.
func (e *Engine) Submit(ctx context.Context, req *llm.Request, modelID string) (*Handle, error) {
	model, err := e.reg.Resolve(modelID)
	if err != nil {
		return nil, fmt.Errorf("resolve model %q: %w", modelID, err)
	}

	if len(req.Tools) > 0 && !model.Supports(registry.CapTools) {
		return nil, llm.NewError(model.Provider, llm.ErrModelUnavailable,
			fmt.Errorf("model %s does not support tool use", model.ID))
	}
	if req.HasImages() && !model.Supports(registry.CapVision) {
		return nil, llm.NewError(model.Provider, llm.ErrModelUnavailable,
			fmt.Errorf("model %s does not support image input", model.ID))
	}
	if est := tokens.Estimate(req); model.ContextWindow > 0 && est > model.ContextWindow {
		return nil, llm.NewError(model.Provider, llm.ErrModelUnavailable,
			fmt.Errorf("request of ~%d tokens exceeds %s context window of %d", est, model.ID, model.ContextWindow))
	}

	adapter, ok := e.adapters[model.Provider]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", model.Provider)
	}

	h := newHandle(ctx)
	e.obs.RequestStarted(h.id, model.Provider, model.ID, req)
	e.log.Debug().
		Stringer("request_id", h.id).
		Str("provider", model.Provider).
		Str("model", model.ID).
		Int("messages", len(req.Messages)).
		Msg("request submitted")

	go e.run(h, adapter, req, model)
	return h, nil
}

// run is the per-request attempt loop. It owns the handle's state and event
// channel until a terminal state is reached.
func (e *Engine) run(h *Handle, adapter llm.Adapter, req *llm.Request, model registry.Model) {
	bo := e.policy.newBackOff()
	rec := reconcile.New(model.Provider, req.Tools)
	seq := 0

	for att := 1; ; att++ {
		a := &attempt{number: att, startedAt: time.Now()}

		if d := e.limits.Delay(model.Provider, time.Now()); d > 0 {
			e.log.Debug().
				Stringer("request_id", h.id).
				Str("provider", model.Provider).
				Dur("delay", d).
				Msg("waiting out provider rate limit window")
			if err := e.sleep(h.ctx, d); err != nil {
				e.terminate(h, rec, StateCancelled, llm.NewError(model.Provider, llm.ErrCancelled, err), false)
				return
			}
		}

		h.setState(StateStreaming)
		e.forward(h, &seq, llm.StatusUpdate{State: StateStreaming.String(), Attempt: att})

		stream, err := adapter.OpenStream(h.ctx, req, model.ID)
		if err != nil {
			a.err = llm.Classify(model.Provider, err)
		} else {
			e.consume(h, stream, rec, a, &seq, model.Provider)
		}

		switch {
		case a.err == nil:
			// Stop was forwarded by consume; the request is complete.
			e.terminate(h, rec, StateSucceeded, nil, false)
			return

		case a.err.Kind == llm.ErrCancelled:
			e.terminate(h, rec, StateCancelled, a.err, false)
			return

		case !a.err.Retryable || a.contentDelivered || att >= e.policy.MaxAttempts:
			// A retry after delivered content would replay output the
			// caller already has; surface instead.
			final := a.err
			if final.Retryable {
				final = final.Fatal()
			}
			e.log.Warn().
				Stringer("request_id", h.id).
				Int("attempt", att).
				Str("kind", final.Kind.String()).
				Bool("content_delivered", a.contentDelivered).
				Err(final.Err).
				Msg("request failed")
			e.terminate(h, rec, StateFailed, final, true)
			return
		}

		delay := bo.NextBackOff()
		if e.policy.RespectRetryAfter && a.err.RetryAfter > 0 {
			delay = a.err.RetryAfter
		}
		if a.err.Kind == llm.ErrRateLimited {
			e.limits.Block(model.Provider, time.Now(), delay)
		}

		h.setState(StateRetrying)
		e.forward(h, &seq, llm.StatusUpdate{State: StateRetrying.String(), Attempt: att})
		e.log.Info().
			Stringer("request_id", h.id).
			Int("attempt", att).
			Str("kind", a.err.Kind.String()).
			Dur("backoff", delay).
			Msg("retrying after transient failure")

		if err := e.sleep(h.ctx, delay); err != nil {
			e.terminate(h, rec, StateCancelled, llm.NewError(model.Provider, llm.ErrCancelled, err), false)
			return
		}
	}
}

// consume drains one attempt's stream, forwarding normalized events and
// feeding the reconciler. On return a.err is nil only if the stream reached
// a clean Stop.
func (e *Engine) consume(h *Handle, stream llm.Stream, rec *reconcile.Reconciler, a *attempt, seq *int, provider string) {
	defer stream.Close()

	// Stop is held back until EOF confirms nothing fatal trails it.
	var stop *llm.Stop

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if stop == nil {
					a.err = llm.NewError(provider, llm.ErrMalformedResponse,
						errors.New("stream ended without a stop event"))
					return
				}
				// A cancel racing the held-back Stop wins: a Stop that was
				// never handed over must not count as success.
				if !e.forward(h, seq, *stop) {
					a.err = llm.NewError(provider, llm.ErrCancelled, h.ctx.Err())
				}
				return
			}
			a.err = llm.Classify(provider, err)
			return
		}

		if h.ctx.Err() != nil {
			a.err = llm.NewError(provider, llm.ErrCancelled, h.ctx.Err())
			return
		}

		switch v := ev.(type) {
		case llm.TextDelta, llm.ThinkingDelta:
			a.contentDelivered = true
			e.forward(h, seq, ev)

		case llm.ToolCallStart:
			a.contentDelivered = true
			if cerr := rec.Start(v.ID, v.Name); cerr != nil {
				e.forward(h, seq, cerr)
				continue
			}
			e.forward(h, seq, ev)

		case llm.ToolCallDelta:
			a.contentDelivered = true
			rec.Append(v.ID, v.Fragment)
			e.forward(h, seq, ev)

		case llm.ToolCallEnd:
			call, cerr := rec.Finish(v.ID)
			if cerr != nil {
				// Scoped to one call id; the stream keeps going.
				e.forward(h, seq, cerr)
				continue
			}
			e.forward(h, seq, call)

		case llm.UsageUpdate:
			merged := h.acct.Record(v.Usage)
			e.forward(h, seq, llm.UsageUpdate{Usage: merged})

		case llm.Stop:
			stop = &v

		case *llm.Error:
			a.err = v
			return

		default:
			e.forward(h, seq, ev)
		}
	}
}

// forward delivers one event to the caller and the observer. Delivery blocks
// on a slow caller but yields to cancellation; it reports whether the event
// was actually handed over.
func (e *Engine) forward(h *Handle, seq *int, ev llm.Event) bool {
	select {
	case h.events <- ev:
		e.obs.EventForwarded(h.id, *seq, ev)
		*seq++
		return true
	case <-h.ctx.Done():
		return false
	}
}

// terminate moves the handle to its terminal state, emitting the terminal
// error event when one exists. Unfinished tool calls are abandoned either
// way.
func (e *Engine) terminate(h *Handle, rec *reconcile.Reconciler, s State, err *llm.Error, blocking bool) {
	rec.Abandon()

	if err != nil {
		if blocking {
			select {
			case h.events <- err:
			case <-h.ctx.Done():
			}
		} else {
			// Cancellation path: the caller may already be gone, so the
			// terminal event is delivered best-effort. Handle.Err stays
			// authoritative.
			select {
			case h.events <- err:
			default:
			}
		}
	}

	h.finish(s, err)
	usage := h.acct.Snapshot()
	e.obs.RequestFinished(h.id, s.String(), usage)
	e.log.Debug().
		Stringer("request_id", h.id).
		Str("state", s.String()).
		Uint64("input_tokens", usage.InputTokens).
		Uint64("output_tokens", usage.OutputTokens).
		Msg("request finished")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
