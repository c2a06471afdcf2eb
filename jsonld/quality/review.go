package quality

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/ldschema/errors"
)

// Review entry statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// ReviewEntry is one result waiting for a human decision
type ReviewEntry struct {
	ID         string          `json:"id"`
	SubjectID  string          `json:"subject_id"`
	Reason     string          `json:"reason"`
	Confidence float64         `json:"confidence"`
	Data       json.RawMessage `json:"data,omitempty"`
	FlaggedAt  time.Time       `json:"flagged_at"`
	Status     string          `json:"status"`
}

// ReviewStore persists entries keyed by subject id. Put overwrites;
// Remove on a missing subject returns an error wrapping errors.ErrNotFound.
type ReviewStore interface {
	Put(ctx context.Context, entry ReviewEntry) error
	Get(ctx context.Context, subjectID string) (*ReviewEntry, error)
	Remove(ctx context.Context, subjectID string) error
	List(ctx context.Context, status string) ([]ReviewEntry, error)
}

// ReviewQueue flags, lists and resolves entries over a ReviewStore
type ReviewQueue struct {
	store   ReviewStore
	timeNow func() time.Time
	logger  *zap.SugaredLogger
}

// NewReviewQueue creates a queue. A nil store keeps entries in memory.
func NewReviewQueue(store ReviewStore, logger *zap.SugaredLogger) *ReviewQueue {
	if store == nil {
		store = NewMemoryReviewStore()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ReviewQueue{store: store, timeNow: time.Now, logger: logger}
}

// Flag creates or overwrites the pending entry for subjectID
func (q *ReviewQueue) Flag(ctx context.Context, subjectID, reason string, confidence float64, data any) (*ReviewEntry, error) {
	if subjectID == "" {
		return nil, errors.NewInvalidRequestError("review entry needs a subject id")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "encode review data for %s", subjectID)
	}

	entry := ReviewEntry{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		Reason:     reason,
		Confidence: confidence,
		Data:       raw,
		FlaggedAt:  q.timeNow().UTC(),
		Status:     StatusPending,
	}
	if err := q.store.Put(ctx, entry); err != nil {
		return nil, errors.Wrapf(err, "flag %s for review", subjectID)
	}

	q.logger.Infow("Flagged for review",
		"subject_id", subjectID,
		"reason", reason,
		"confidence", confidence)
	return &entry, nil
}

// Get returns the entry for subjectID
func (q *ReviewQueue) Get(ctx context.Context, subjectID string) (*ReviewEntry, error) {
	return q.store.Get(ctx, subjectID)
}

// Approve removes the entry; the caller publishes its data
func (q *ReviewQueue) Approve(ctx context.Context, subjectID string) error {
	if err := q.store.Remove(ctx, subjectID); err != nil {
		return err
	}
	q.logger.Infow("Review approved", "subject_id", subjectID)
	return nil
}

// Discard removes the entry without publishing
func (q *ReviewQueue) Discard(ctx context.Context, subjectID string) error {
	if err := q.store.Remove(ctx, subjectID); err != nil {
		return err
	}
	q.logger.Infow("Review discarded", "subject_id", subjectID)
	return nil
}

// Pending lists pending entries in flag order
func (q *ReviewQueue) Pending(ctx context.Context) ([]ReviewEntry, error) {
	return q.store.List(ctx, StatusPending)
}

// Count returns the number of pending entries
func (q *ReviewQueue) Count(ctx context.Context) (int, error) {
	pending, err := q.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// MemoryReviewStore keeps entries in process, in insertion order
type MemoryReviewStore struct {
	mu      sync.Mutex
	order   []string
	entries map[string]ReviewEntry
}

// NewMemoryReviewStore creates an empty store
func NewMemoryReviewStore() *MemoryReviewStore {
	return &MemoryReviewStore{entries: make(map[string]ReviewEntry)}
}

func (m *MemoryReviewStore) Put(_ context.Context, entry ReviewEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.SubjectID]; !exists {
		m.order = append(m.order, entry.SubjectID)
	}
	m.entries[entry.SubjectID] = entry
	return nil
}

func (m *MemoryReviewStore) Get(_ context.Context, subjectID string) (*ReviewEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[subjectID]
	if !ok {
		return nil, errors.NewNotFoundError("review entry %s", subjectID)
	}
	return &e, nil
}

func (m *MemoryReviewStore) Remove(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[subjectID]; !ok {
		return errors.NewNotFoundError("review entry %s", subjectID)
	}
	delete(m.entries, subjectID)
	for i, id := range m.order {
		if id == subjectID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryReviewStore) List(_ context.Context, status string) ([]ReviewEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReviewEntry, 0, len(m.order))
	for _, id := range m.order {
		if e := m.entries[id]; e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}
