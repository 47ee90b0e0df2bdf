package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSaga_CompensatesExecutedStepsInReverse(t *testing.T) {
	var trail []string
	step := func(name string, fail bool) SagaStep {
		return SagaStep{
			Name: name,
			Execute: func(context.Context) error {
				trail = append(trail, "exec:"+name)
				if fail {
					return errors.New(name + " failed")
				}
				return nil
			},
			Compensate: func(context.Context) error {
				trail = append(trail, "undo:"+name)
				return nil
			},
		}
	}

	s := NewSaga("test", zap.NewNop())
	s.AddStep(step("a", false))
	s.AddStep(SagaStep{Name: "no_undo", Execute: func(context.Context) error {
		trail = append(trail, "exec:no_undo")
		return nil
	}})
	s.AddStep(step("b", false))
	s.AddStep(step("c", true))
	s.AddStep(step("d", false))

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 'c'")
	assert.Equal(t, []string{"exec:a", "exec:no_undo", "exec:b", "exec:c", "undo:b", "undo:a"}, trail)
}

type codedError struct{ code string }

func (e *codedError) Error() string { return e.code }

func TestSaga_WrapsStepError(t *testing.T) {
	s := NewSaga("test", zap.NewNop())
	s.AddStep(SagaStep{Name: "only", Execute: func(context.Context) error {
		return &codedError{code: "COUPON_EXHAUSTED"}
	}})

	err := s.Execute(context.Background())
	var coded *codedError
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, "COUPON_EXHAUSTED", coded.code)
}

func TestSaga_CompensationFailureDoesNotStopOthers(t *testing.T) {
	var undone []string
	s := NewSaga("test", zap.NewNop())
	s.AddStep(SagaStep{
		Name:       "first",
		Execute:    func(context.Context) error { return nil },
		Compensate: func(context.Context) error { undone = append(undone, "first"); return nil },
	})
	s.AddStep(SagaStep{
		Name:       "second",
		Execute:    func(context.Context) error { return nil },
		Compensate: func(context.Context) error { undone = append(undone, "second"); return errors.New("boom") },
	})
	s.AddStep(SagaStep{Name: "third", Execute: func(context.Context) error { return errors.New("fail") }})

	require.Error(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"second", "first"}, undone)
}

func TestSaga_AllStepsSucceed(t *testing.T) {
	ran := 0
	s := NewSaga("test", zap.NewNop())
	for i := 0; i < 3; i++ {
		s.AddStep(SagaStep{Name: "step", Execute: func(context.Context) error { ran++; return nil }})
	}
	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, 3, ran)
}
