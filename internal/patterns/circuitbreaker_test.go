package patterns

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test-open", "test")
	boom := errors.New("gateway down")

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", cb.GetState())

	calls := 0
	_, err := cb.Execute(func() (interface{}, error) {
		calls++
		return nil, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), "test-open is open")
	assert.Zero(t, calls, "open circuit fails fast")
}

func TestCircuitBreaker_PassesResults(t *testing.T) {
	cb := NewCircuitBreaker("test-pass", "test")

	v, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreaker_NilRunsDirectly(t *testing.T) {
	var cb *CircuitBreakerWrapper

	v, err := cb.Execute(func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, "disabled", cb.GetState())
}

func TestFormatError(t *testing.T) {
	assert.Nil(t, FormatError("c", nil))

	plain := errors.New("x")
	assert.Equal(t, plain, FormatError("c", plain))

	err := FormatError("c", gobreaker.ErrTooManyRequests)
	assert.ErrorIs(t, err, gobreaker.ErrTooManyRequests)
	assert.Contains(t, err.Error(), "half-open")
}
