package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ldschema/errors"
)

func TestScore(t *testing.T) {
	t.Run("exact match and baseline", func(t *testing.T) {
		cm := Score(map[string]any{"name": "Acme", "description": "x"}, map[string]any{"name": "Acme"})
		assert.Equal(t, ConfidenceMap{"name": 1.0, "description": 0.5}, cm)
		assert.Equal(t, 0.75, Overall(cm))
	})

	tests := []struct {
		name      string
		field     string
		generated any
		source    any
		want      float64
	}{
		{"empty string", "name", "  ", "Acme", ScoreEmpty},
		{"nil", "logo", nil, nil, ScoreEmpty},
		{"empty list", "sameAs", []any{}, nil, ScoreEmpty},
		{"substring", "name", "Acme Corporation", "Acme", ScoreSubstring},
		{"trusted without source", "telephone", "555-0100", nil, ScoreTrusted},
		{"trusted with differing source", "url", "https://a.example/", "https://b.example/", ScoreTrusted},
		{"fuzzy with differing source", "description", "A school", "Preschool in town", ScoreFuzzy},
		{"fuzzy without source", "review", "Great", nil, ScoreBaseline},
		{"other field", "priceRange", "$$", nil, ScoreBaseline},
		{"numbers compare by value", "ratingValue", "4.5", 4.5, ScoreExact},
		{"objects compare deeply", "geo", map[string]any{"latitude": "1"}, map[string]any{"latitude": "1"}, ScoreExact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := map[string]any{}
			if tt.source != nil {
				source[tt.field] = tt.source
			}
			cm := Score(map[string]any{tt.field: tt.generated}, source)
			assert.Equal(t, tt.want, cm[tt.field])
		})
	}

	t.Run("keywords are not scored", func(t *testing.T) {
		cm := Score(map[string]any{"@type": "Organization", "@context": "https://schema.org", "name": "A"}, nil)
		assert.Len(t, cm, 1)
	})
}

func TestOverallAndNeedsReview(t *testing.T) {
	assert.Equal(t, 0.0, Overall(nil))
	assert.True(t, NeedsReview(nil, DefaultThreshold))

	cm := ConfidenceMap{"a": 1.0, "b": 0.5, "c": 0.6}
	assert.Equal(t, 0.7, Overall(cm))
	assert.False(t, NeedsReview(cm, DefaultThreshold))

	cm["d"] = 0.5
	assert.Equal(t, 0.65, Overall(cm))
	assert.True(t, NeedsReview(cm, DefaultThreshold))

	assert.Equal(t, []string{"b", "c", "d"}, LowFields(cm, DefaultThreshold))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateGenerated, StateValidated))
	assert.True(t, CanTransition(StateValidated, StateRepaired))
	assert.True(t, CanTransition(StateRepaired, StateValidated))
	assert.True(t, CanTransition(StateRepaired, StatePendingReview))
	assert.True(t, CanTransition(StatePendingReview, StatePublished))
	assert.True(t, CanTransition(StatePendingReview, StateDiscarded))

	assert.False(t, CanTransition(StateGenerated, StatePublished))
	assert.False(t, CanTransition(StateDiscarded, StatePublished))
	assert.False(t, CanTransition(StatePublished, StatePendingReview))

	assert.True(t, StatePendingReview.Terminal())
	assert.False(t, StateRepaired.Terminal())
}

func TestReviewQueue(t *testing.T) {
	ctx := context.Background()
	q := NewReviewQueue(nil, nil)

	_, err := q.Flag(ctx, "post-1", "retries exhausted", 0, map[string]any{"@type": "Organization"})
	require.NoError(t, err)
	_, err = q.Flag(ctx, "post-2", "low confidence", 0.55, nil)
	require.NoError(t, err)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-flagging overwrites instead of adding
	entry, err := q.Flag(ctx, "post-1", "low confidence", 0.6, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, entry.Status)
	assert.NotEmpty(t, entry.ID)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "post-1", pending[0].SubjectID)
	assert.Equal(t, "low confidence", pending[0].Reason)

	require.NoError(t, q.Approve(ctx, "post-1"))
	require.NoError(t, q.Discard(ctx, "post-2"))

	n, err = q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	err = q.Approve(ctx, "post-1")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = q.Get(ctx, "post-2")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = q.Flag(ctx, "", "x", 0, nil)
	assert.True(t, errors.IsInvalidRequestError(err))
}
