package workflow

import (
	"context"
	"encoding/json"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/quality"
	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/storage"
)

// Approve publishes the candidate parked for subjectID and removes the
// review entry
func (s *Service) Approve(ctx context.Context, subjectID string, actor storage.Actor) (*Outcome, error) {
	entry, err := s.review.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	rec, err := s.recordFor(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if rec.State != "" && !quality.CanTransition(rec.State, quality.StatePublished) {
		return nil, errors.NewInvalidRequestError("%s is %s and cannot be published", subjectID, rec.State)
	}

	if _, err := s.history.Save(ctx, subjectID, entry.Data, actor); err != nil {
		return nil, err
	}
	rec.Data = entry.Data
	rec.State = quality.StatePublished
	rec.PendingReview = false
	rec.ReviewReason = ""
	if err := s.schemas.Save(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.review.Approve(ctx, subjectID); err != nil {
		return nil, err
	}

	out := s.outcomeFor(OpApprove, rec)
	s.logger.Infow("Review approved and published",
		logger.FieldContentID, subjectID,
		logger.FieldUserID, actor.ID)
	s.finish(out)
	return out, nil
}

// Discard drops the candidate parked for subjectID. Published data, if
// any, stays live.
func (s *Service) Discard(ctx context.Context, subjectID string) (*Outcome, error) {
	if err := s.review.Discard(ctx, subjectID); err != nil {
		return nil, err
	}

	rec, err := s.recordFor(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	rec.State = quality.StateDiscarded
	rec.PendingReview = false
	rec.ReviewReason = ""
	if err := s.schemas.Save(ctx, rec); err != nil {
		return nil, err
	}

	out := s.outcomeFor(OpDiscard, rec)
	s.finish(out)
	return out, nil
}

// Restore makes history version index the published data, saving the
// current data as a new version first
func (s *Service) Restore(ctx context.Context, contentID string, index int, actor storage.Actor) (*Outcome, error) {
	rec, err := s.recordFor(ctx, contentID)
	if err != nil {
		return nil, err
	}
	var current json.RawMessage
	if !isNullData(rec.Data) {
		current = rec.Data
	}

	version, err := s.history.Restore(ctx, contentID, index, current, actor)
	if err != nil {
		return nil, err
	}

	doc, err := jsonld.Parse(version.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode version %d of %s", index, contentID)
	}
	report := s.repairer.Check(doc)

	if err := s.clearReview(ctx, contentID); err != nil {
		return nil, err
	}
	rec.Data = version.Data
	rec.Report = &report
	rec.State = quality.StatePublished
	rec.PendingReview = false
	rec.ReviewReason = ""
	if err := s.schemas.Save(ctx, rec); err != nil {
		return nil, err
	}

	out := s.outcomeFor(OpRestore, rec)
	out.Data = doc
	s.finish(out)
	return out, nil
}

func (s *Service) recordFor(ctx context.Context, subjectID string) (*storage.SchemaRecord, error) {
	rec, err := s.schemas.Get(ctx, subjectID)
	if errors.IsNotFoundError(err) {
		return &storage.SchemaRecord{ContentID: subjectID}, nil
	}
	return rec, err
}

func (s *Service) outcomeFor(op string, rec *storage.SchemaRecord) *Outcome {
	out := &Outcome{
		SubjectID:  rec.ContentID,
		Operation:  op,
		State:      rec.State,
		Confidence: rec.Confidence,
		Overall:    rec.Overall,
	}
	if rec.Report != nil {
		out.Report = *rec.Report
	}
	if !isNullData(rec.Data) {
		var data any
		if err := json.Unmarshal(rec.Data, &data); err == nil {
			out.Data = data
		}
	}
	return out
}
