// Package workflow runs the operator-triggered paths over one content item:
// validate, repair through the completion service, score confidence, then
// publish or park the result for human review.
//
// Each run follows the artifact state machine in jsonld/quality:
//
//	generated -> validated -> published
//	generated -> validated -> repaired -> validated -> published
//	(validated | repaired) -> pending_review -> published | discarded
//
// The stored record keeps the last published data. A candidate waiting for
// review lives in the review queue until it is approved, so an unresolved
// run never replaces what is already live.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/ldschema/content"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/quality"
	"github.com/teranos/ldschema/jsonld/repair"
	"github.com/teranos/ldschema/jsonld/validate"
	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/storage"
)

// Operation names, used in outcomes, logs and metrics
const (
	OpRepair   = "repair"
	OpGenerate = "generate"
	OpApprove  = "approve"
	OpDiscard  = "discard"
	OpRestore  = "restore"
)

// DefaultConcurrency bounds RepairAll when Config.Concurrency is unset
const DefaultConcurrency = 4

// Outcome is the result of one workflow call for one subject
type Outcome struct {
	SubjectID  string                `json:"subject_id"`
	Operation  string                `json:"operation"`
	State      quality.State         `json:"state"`
	Report     jsonld.Report         `json:"report"`
	Confidence quality.ConfidenceMap `json:"confidence,omitempty"`
	Overall    float64               `json:"overall"`
	RetryCount int                   `json:"retry_count"`
	Reason     string                `json:"reason,omitempty"`
	Data       any                   `json:"data,omitempty"`
	Error      string                `json:"error,omitempty"` // bulk runs only
}

// Observer is told how every call ended
type Observer interface {
	WorkflowOutcome(operation string, state quality.State)
}

// Config wires a Service. Content, Validator, Repairer, Schemas, History,
// Events and Review are required.
type Config struct {
	Content   content.Source
	Validator *validate.Validator
	Repairer  *repair.Repairer
	Completer repair.Completer // generation; nil disables Generate
	Schemas   *storage.SchemaStore
	History   *storage.HistoryStore
	Events    *storage.EventLog
	Review    *quality.ReviewQueue

	ReviewThreshold float64 // 0 = quality.DefaultThreshold
	Concurrency     int
	SiteName        string
	SiteURL         string

	Observer Observer
	Logger   *zap.SugaredLogger
}

// Service runs workflow operations. It is safe for concurrent use; every
// call works on its own subject and carries no shared render state.
type Service struct {
	content   content.Source
	validator *validate.Validator
	repairer  *repair.Repairer
	completer repair.Completer
	schemas   *storage.SchemaStore
	history   *storage.HistoryStore
	events    *storage.EventLog
	review    *quality.ReviewQueue

	threshold   float64
	concurrency int
	siteName    string
	siteURL     string

	observer Observer
	logger   *zap.SugaredLogger
}

// New validates cfg and creates a Service
func New(cfg Config) (*Service, error) {
	var missing []string
	if cfg.Content == nil {
		missing = append(missing, "content")
	}
	if cfg.Validator == nil {
		missing = append(missing, "validator")
	}
	if cfg.Repairer == nil {
		missing = append(missing, "repairer")
	}
	if cfg.Schemas == nil || cfg.History == nil || cfg.Events == nil {
		missing = append(missing, "storage")
	}
	if cfg.Review == nil {
		missing = append(missing, "review queue")
	}
	if len(missing) > 0 {
		return nil, errors.NewInvalidRequestError("workflow config missing %s", strings.Join(missing, ", "))
	}

	s := &Service{
		content:     cfg.Content,
		validator:   cfg.Validator,
		repairer:    cfg.Repairer,
		completer:   cfg.Completer,
		schemas:     cfg.Schemas,
		history:     cfg.History,
		events:      cfg.Events,
		review:      cfg.Review,
		threshold:   cfg.ReviewThreshold,
		concurrency: cfg.Concurrency,
		siteName:    cfg.SiteName,
		siteURL:     cfg.SiteURL,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
	}
	if s.threshold <= 0 {
		s.threshold = quality.DefaultThreshold
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	return s, nil
}

// Repair repairs the structured data currently stored for contentID, or
// the schema carried in its content metadata when nothing is stored yet
func (s *Service) Repair(ctx context.Context, contentID string, actor storage.Actor) (*Outcome, error) {
	c, err := s.content.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	raw, err := s.currentRaw(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.runRaw(ctx, OpRepair, contentID, raw, c, actor)
}

// RepairRaw repairs an operator-supplied blob for subjectID. Content
// fields, when the subject is known content, are the confidence source.
func (s *Service) RepairRaw(ctx context.Context, subjectID, raw string, actor storage.Actor) (*Outcome, error) {
	if subjectID == "" {
		return nil, errors.NewInvalidRequestError("repair needs a subject id")
	}
	if strings.TrimSpace(raw) == "" {
		return nil, errors.NewInvalidRequestError("nothing to repair for %s", subjectID)
	}
	c, err := s.content.GetContent(ctx, subjectID)
	if err != nil {
		if !errors.IsNotFoundError(err) && !errors.IsInvalidRequestError(err) {
			return nil, err
		}
		c = &content.Content{ID: subjectID, Fields: map[string]any{}, Metadata: map[string]any{}}
	}
	return s.runRaw(ctx, OpRepair, subjectID, raw, c, actor)
}

func (s *Service) currentRaw(ctx context.Context, c *content.Content) (string, error) {
	rec, err := s.schemas.Get(ctx, c.ID)
	switch {
	case err == nil && !isNullData(rec.Data):
		return string(rec.Data), nil
	case err != nil && !errors.IsNotFoundError(err):
		return "", err
	}

	switch v := c.Metadata["schema"].(type) {
	case nil:
	case string:
		if strings.TrimSpace(v) != "" {
			return v, nil
		}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", errors.Wrapf(err, "encode schema metadata of %s", c.ID)
		}
		return string(data), nil
	}
	return "", errors.NewInvalidRequestError("content %s has no structured data to repair", c.ID)
}

func (s *Service) runRaw(ctx context.Context, op, subjectID, raw string, c *content.Content, actor storage.Actor) (*Outcome, error) {
	doc, err := repair.Normalize(raw)
	if err != nil {
		// Unparsable input still goes to the service; the loop re-validates its answer
		s.logger.Infow("Input is not JSON, sending to repair",
			logger.FieldContentID, subjectID,
			logger.FieldError, err)
		doc = nil
	}
	return s.run(ctx, op, subjectID, doc, raw, c, actor)
}

// run takes a parsed candidate (nil when the input did not parse) through
// validation, repair, scoring and publication
func (s *Service) run(ctx context.Context, op, subjectID string, doc any, raw string, c *content.Content, actor storage.Actor) (*Outcome, error) {
	lc := lifecycle{subject: subjectID, state: quality.StateGenerated}
	out := &Outcome{SubjectID: subjectID, Operation: op}

	var report jsonld.Report
	if doc == nil {
		report = *jsonld.NewReport()
		report.AddError("", "Input is not valid JSON")
	} else {
		report = s.repairer.Check(doc)
	}
	if err := lc.to(quality.StateValidated); err != nil {
		return nil, err
	}
	s.logValidation(ctx, subjectID, c, report, doc)

	if !report.Valid {
		result, err := s.repairer.Repair(ctx, raw, report.Errors)
		if err != nil {
			s.logFix(ctx, subjectID, false, err)
			if !errors.Is(err, errors.ErrAIResponseParse) {
				s.logSystemError(ctx, "repair failed", subjectID, err)
			}
			return nil, errors.Wrapf(err, "repair %s", subjectID)
		}
		if err := lc.to(quality.StateRepaired); err != nil {
			return nil, err
		}
		s.logFix(ctx, subjectID, result.Valid, nil)

		doc = result.Data
		report = result.Report()
		out.RetryCount = result.RetryCount

		if !result.Valid {
			if err := lc.to(quality.StatePendingReview); err != nil {
				return nil, err
			}
			out.Reason = fmt.Sprintf("unresolved after %d retries: %s",
				result.RetryCount, strings.Join(report.TopErrors(3), "; "))
		} else if err := lc.to(quality.StateValidated); err != nil {
			return nil, err
		}
	}

	out.Data = doc
	out.Report = report
	out.Confidence = ScoreDocument(doc, c.Fields)
	out.Overall = quality.Overall(out.Confidence)

	if lc.state == quality.StateValidated {
		if quality.NeedsReview(out.Confidence, s.threshold) {
			if err := lc.to(quality.StatePendingReview); err != nil {
				return nil, err
			}
			out.Reason = fmt.Sprintf("low confidence %.2f < %.2f", out.Overall, s.threshold)
			if low := quality.LowFields(out.Confidence, s.threshold); len(low) > 0 {
				out.Reason += ": " + strings.Join(low, ", ")
			}
		} else if err := lc.to(quality.StatePublished); err != nil {
			return nil, err
		}
	}
	out.State = lc.state
	if !out.State.Terminal() {
		return nil, errors.Newf("%s for %s stopped in non-terminal state %s", op, subjectID, out.State)
	}

	if err := s.persist(ctx, out, actor); err != nil {
		return nil, err
	}
	s.finish(out)
	return out, nil
}

// persist writes the outcome: publish saves a history version and replaces
// the record data, review flags the candidate and keeps the live data
func (s *Service) persist(ctx context.Context, out *Outcome, actor storage.Actor) error {
	data, err := json.Marshal(out.Data)
	if err != nil {
		return errors.Wrapf(err, "encode result for %s", out.SubjectID)
	}

	rec, err := s.schemas.Get(ctx, out.SubjectID)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			return err
		}
		rec = &storage.SchemaRecord{ContentID: out.SubjectID}
	}
	report := out.Report
	rec.Report = &report
	rec.Confidence = out.Confidence
	rec.Overall = out.Overall
	rec.State = out.State
	rec.PendingReview = out.State == quality.StatePendingReview
	rec.ReviewReason = out.Reason

	switch out.State {
	case quality.StatePublished:
		if _, err := s.history.Save(ctx, out.SubjectID, data, actor); err != nil {
			return err
		}
		rec.Data = data
		if err := s.clearReview(ctx, out.SubjectID); err != nil {
			return err
		}
	case quality.StatePendingReview:
		if _, err := s.review.Flag(ctx, out.SubjectID, out.Reason, out.Overall, out.Data); err != nil {
			return err
		}
	}
	return s.schemas.Save(ctx, rec)
}

// clearReview drops a stale review entry once newer data is published
func (s *Service) clearReview(ctx context.Context, subjectID string) error {
	if err := s.review.Discard(ctx, subjectID); err != nil && !errors.IsNotFoundError(err) {
		return err
	}
	return nil
}

func (s *Service) finish(out *Outcome) {
	if s.observer != nil {
		s.observer.WorkflowOutcome(out.Operation, out.State)
	}
	s.logger.Infow("Workflow finished",
		logger.FieldOperation, out.Operation,
		logger.FieldContentID, out.SubjectID,
		logger.FieldState, string(out.State),
		logger.FieldConfidence, out.Overall,
		logger.FieldRetryCount, out.RetryCount,
		logger.FieldReason, out.Reason)
}

// ScoreDocument scores every top-level node against source. Fields of a
// lone node keep their names; in a graph they are prefixed with the node's
// type, plus its index when the type repeats.
func ScoreDocument(doc any, source map[string]any) quality.ConfidenceMap {
	cm := quality.ConfidenceMap{}
	items, ok := jsonld.GraphItems(doc)
	if !ok {
		return cm
	}

	seen := map[string]int{}
	for i, item := range items {
		node, ok := jsonld.AsNode(item)
		if !ok || node.IsReference() {
			continue
		}
		prefix := ""
		if len(items) > 1 {
			typ := node.PrimaryType()
			if seen[typ] > 0 {
				typ = fmt.Sprintf("%s[%d]", typ, i)
			}
			seen[node.PrimaryType()]++
			prefix = typ + "."
		}
		for field, score := range quality.Score(map[string]any(node), source) {
			cm[prefix+field] = score
		}
	}
	return cm
}

func (s *Service) logValidation(ctx context.Context, subjectID string, c *content.Content, report jsonld.Report, doc any) {
	var types []string
	if items, ok := jsonld.GraphItems(doc); ok {
		for _, item := range items {
			if n, ok := jsonld.AsNode(item); ok {
				types = append(types, n.Types()...)
			}
		}
	}
	sort.Strings(types)
	if err := s.events.LogValidation(ctx, subjectID, c.Text("url"), report, types); err != nil {
		s.logger.Warnw("Failed to log validation", logger.FieldContentID, subjectID, logger.FieldError, err)
	}
}

func (s *Service) logFix(ctx context.Context, subjectID string, success bool, fixErr error) {
	if err := s.events.LogFix(ctx, subjectID, success, fixErr); err != nil {
		s.logger.Warnw("Failed to log fix", logger.FieldContentID, subjectID, logger.FieldError, err)
	}
}

func (s *Service) logSystemError(ctx context.Context, msg, subjectID string, cause error) {
	fields := map[string]any{"subject_id": subjectID, "error": cause.Error()}
	if err := s.events.LogSystemError(ctx, msg, fields); err != nil {
		s.logger.Warnw("Failed to log system error", logger.FieldContentID, subjectID, logger.FieldError, err)
	}
}

// lifecycle enforces legal state moves within one run
type lifecycle struct {
	subject string
	state   quality.State
}

func (l *lifecycle) to(next quality.State) error {
	if !quality.CanTransition(l.state, next) {
		return errors.Newf("illegal state transition %s -> %s for %s", l.state, next, l.subject)
	}
	l.state = next
	return nil
}

func isNullData(data json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(data))
	return trimmed == "" || trimmed == "null"
}
