package oracle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

type fakeInterpreter struct {
	errs  []error
	calls int
	out   *Candidate
}

func (f *fakeInterpreter) Interpret(context.Context, string) (*Candidate, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return f.out, nil
}

func noSleepRetrier(maxRetries int) (*Retrier, *[]time.Duration) {
	r := NewRetrier(Policy{MaxRetries: maxRetries, Backoff: time.Second}, nil)
	waits := []time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestRetryingInterpreter_RecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	r, waits := noSleepRetrier(10)
	want := &Candidate{Instructions: []CandidateInstruction{{Text: "ok"}}}
	fake := &fakeInterpreter{
		errs: []error{ErrTransient, genai.APIError{Code: 503}},
		out:  want,
	}

	got, err := (&RetryingInterpreter{Next: fake, Retrier: r}).Interpret(context.Background(), "p")
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestRetryingInterpreter_ExhaustionReturnsOracleFailure(t *testing.T) {
	t.Parallel()

	r, _ := noSleepRetrier(10)
	errs := make([]error, 20)
	for i := range errs {
		errs[i] = fmt.Errorf("call %d: %w", i, ErrTransient)
	}
	fake := &fakeInterpreter{errs: errs}

	_, err := (&RetryingInterpreter{Next: fake, Retrier: r}).Interpret(context.Background(), "p")

	var failure *model.OracleFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 11, failure.Attempts)
	assert.Equal(t, 11, fake.calls)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestRetryingInterpreter_MalformedIsNotRetried(t *testing.T) {
	t.Parallel()

	r, _ := noSleepRetrier(10)
	fake := &fakeInterpreter{errs: []error{fmt.Errorf("%w: bad json", model.ErrMalformedCandidate)}}

	_, err := (&RetryingInterpreter{Next: fake, Retrier: r}).Interpret(context.Background(), "p")
	assert.ErrorIs(t, err, model.ErrMalformedCandidate)
	assert.Equal(t, 1, fake.calls)

	var failure *model.OracleFailure
	assert.False(t, errors.As(err, &failure))
}

func TestRetryingInterpreter_PermanentErrorFailsFast(t *testing.T) {
	t.Parallel()

	r, _ := noSleepRetrier(10)
	fake := &fakeInterpreter{errs: []error{genai.APIError{Code: 400, Message: "bad request"}}}

	_, err := (&RetryingInterpreter{Next: fake, Retrier: r}).Interpret(context.Background(), "p")

	var failure *model.OracleFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 1, failure.Attempts)
}

func TestRetrier_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	r := NewRetrier(Policy{MaxRetries: 10, Backoff: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "test", func(context.Context) error {
		calls++
		cancel()
		return ErrTransient
	})

	var failure *model.OracleFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTransient(genai.APIError{Code: 429}))
	assert.True(t, IsTransient(genai.APIError{Code: 500}))
	assert.False(t, IsTransient(genai.APIError{Code: 403}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(ErrUnavailable))
	assert.False(t, IsTransient(nil))
}
