package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrapf(ErrRateLimited, "completion attempt %d", 2)

	assert.True(t, Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "completion attempt 2")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", Wrap(ErrRateLimited, "429"), true},
		{"server fault", Wrap(ErrServiceUnavailable, "503"), true},
		{"timeout", ErrTimeout, true},
		{"unauthorized", Wrap(ErrUnauthorized, "401"), false},
		{"no api key", ErrNoAPIKey, false},
		{"parse error", Wrap(ErrAIResponseParse, "preview"), false},
		{"unclassified", New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestNotFoundHelpers(t *testing.T) {
	err := NewNotFoundError("review entry %s", "post-42")

	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "post-42")
	assert.False(t, IsNotFoundError(nil))
}

func TestInvalidRequestHelper(t *testing.T) {
	err := NewInvalidRequestError("history index %d out of range", 11)

	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "history index 11 out of range")
}

func TestWithHintAndDetail(t *testing.T) {
	err := WithHint(ErrNoAPIKey, "set completion.api_key")
	err = WithDetail(err, "base_url=https://api.openai.com/v1")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "set completion.api_key", hints[0])

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.True(t, Is(err, ErrNoAPIKey))
}

func TestStackTrace(t *testing.T) {
	err := Wrap(New("with stack"), "outer")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func ExampleWrap() {
	err := Wrap(ErrServiceUnavailable, "chat completion")
	fmt.Println(err)
	// Output: chat completion: service unavailable
}
