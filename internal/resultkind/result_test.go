package resultkind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		Validation:     400,
		NotFound:       404,
		OptimisticLock: 409,
		Conflict:       409,
		BusinessRule:   422,
		Unauthorized:   401,
		Forbidden:      403,
		Infrastructure: 503,
		Internal:       500,
		Concurrency:    500,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), "kind=%s", kind)
	}
}

func TestNewRule(t *testing.T) {
	err := NewRule("policy.activate.not_draft", "policy is not in draft state")
	assert.Equal(t, BusinessRule, err.Kind)
	assert.Contains(t, err.Error(), "policy.activate.not_draft")
}

func TestResultOk(t *testing.T) {
	r := Ok(42)
	assert.True(t, r.IsOk())
	assert.Equal(t, 42, r.Value)
}

func TestResultErr(t *testing.T) {
	r := Err[int](New(OptimisticLock, "version mismatch"))
	assert.False(t, r.IsOk())
	assert.Equal(t, OptimisticLock, r.Err.Kind)
}
