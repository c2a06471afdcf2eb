// Package repair asks a completion service to fix broken or duplicated
// JSON-LD, parses its answer defensively and re-validates, retrying a
// bounded number of times until the result is valid.
package repair

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/teranos/ldschema/ai/completion"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/validate"
	"github.com/teranos/ldschema/logger"
)

// DefaultMaxRetries allows three attempts in total
const DefaultMaxRetries = 2

var tracer = otel.Tracer("ldschema.repair")

// Completer is the part of the completion client the loop needs
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (*completion.Response, error)
}

// Observer is told the outcome of every attempt
type Observer interface {
	RepairAttempt(retry int, valid bool)
}

// Result is the outcome of a repair. Valid false with RetryCount at the
// maximum means the loop gave up; Data then holds the last candidate.
type Result struct {
	Valid      bool     `json:"valid"`
	Data       any      `json:"data,omitempty"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
	RetryCount int      `json:"retry_count"`
}

// Report returns the result as a validation report
func (r *Result) Report() jsonld.Report {
	return jsonld.Report{Valid: r.Valid, Errors: r.Errors, Warnings: r.Warnings}
}

// Repairer runs the bounded repair loop
type Repairer struct {
	client     Completer
	validator  *validate.Validator
	maxRetries int
	observer   Observer
	logger     *zap.SugaredLogger
}

// Option configures a Repairer
type Option func(*Repairer)

// WithMaxRetries overrides DefaultMaxRetries
func WithMaxRetries(n int) Option {
	return func(r *Repairer) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithObserver reports attempts, typically to metrics
func WithObserver(o Observer) Option {
	return func(r *Repairer) { r.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Repairer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Repairer. A nil validator uses the default catalog.
func New(client Completer, v *validate.Validator, opts ...Option) *Repairer {
	if v == nil {
		v = validate.New(nil)
	}
	r := &Repairer{
		client:     client,
		validator:  v,
		maxRetries: DefaultMaxRetries,
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Repair sends raw and priorErrors to the service and validates the answer.
// An invalid answer is fed back with the accumulated errors until it
// validates or the retry budget is spent. Transport failures and
// unparsable answers return an error immediately.
func (r *Repairer) Repair(ctx context.Context, raw string, priorErrors []string) (*Result, error) {
	candidate := raw
	errs := appendUnique(nil, priorErrors...)

	for retry := 0; ; retry++ {
		doc, report, err := r.attempt(ctx, candidate, errs, retry)
		if err != nil {
			return nil, err
		}

		if report.Valid {
			r.logger.Infow("Repair converged", logger.FieldRetryCount, retry, "warnings", len(report.Warnings))
			return &Result{Valid: true, Data: doc, Errors: []string{}, Warnings: report.Warnings, RetryCount: retry}, nil
		}

		if retry >= r.maxRetries {
			r.logger.Warnw("Repair exhausted retries",
				logger.FieldRetryCount, retry,
				logger.FieldErrorCount, len(report.Errors),
				"top_errors", report.TopErrors(5))
			return &Result{Valid: false, Data: doc, Errors: report.Errors, Warnings: report.Warnings, RetryCount: retry}, nil
		}

		errs = appendUnique(errs, report.Errors...)
		next, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.Wrap(err, "encode repair candidate")
		}
		candidate = string(next)
	}
}

// attempt runs one completion round trip plus validation under its own span
func (r *Repairer) attempt(ctx context.Context, candidate string, errs []string, retry int) (any, jsonld.Report, error) {
	ctx, span := tracer.Start(ctx, "repair.attempt",
		trace.WithAttributes(
			attribute.Int("repair.retry", retry),
			attribute.Int("repair.prior_errors", len(errs)),
		),
	)
	defer span.End()

	resp, err := r.client.Complete(ctx, completion.Request{
		Messages: []completion.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(candidate, errs)},
		},
		ResponseFormat: completion.JSONObject,
		OperationType:  "repair",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, jsonld.Report{}, errors.Wrapf(err, "repair attempt %d", retry)
	}

	doc, err := Normalize(resp.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparsable response")
		r.logger.Warnw("Repair response not parsable", logger.FieldRetryCount, retry, logger.FieldError, err)
		return nil, jsonld.Report{}, err
	}

	report := r.Check(doc)
	span.SetAttributes(
		attribute.Bool("repair.valid", report.Valid),
		attribute.Int("repair.errors", len(report.Errors)),
	)
	span.SetStatus(codes.Ok, "")
	if r.observer != nil {
		r.observer.RepairAttempt(retry, report.Valid)
	}
	r.logger.Debugw("Repair attempt validated",
		logger.FieldRetryCount, retry,
		"valid", report.Valid,
		logger.FieldErrorCount, len(report.Errors))
	return doc, report, nil
}

// Check validates a repaired document, including the one-per-graph rule for
// singleton types
func (r *Repairer) Check(doc any) jsonld.Report {
	report := r.validator.ValidateDocument(doc)
	validate.CheckSingletons(jsonld.FlattenGraph(doc), &report)
	return report
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst)+len(items))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}
