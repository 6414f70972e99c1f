package svcerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorImplementsErrorInterface(t *testing.T) {
	err := InvalidMethod("foo.bar")
	assert.Equal(t, `invalid_method: invalid method "foo.bar"`, err.Error())
}

func TestValidationConstructorsSetKindAndStatus(t *testing.T) {
	cases := []*Error{
		InvalidRequestID(),
		InvalidUserID(),
		ObjectExpected("params"),
		ArrayExpected("args"),
		InvalidLength("args", 2),
		ValidationError("bad input"),
	}
	for _, e := range cases {
		assert.Equal(t, KindValidation, e.Kind)
		assert.Equal(t, 400, e.Status)
	}
}

func TestHTTPErrorIncludesBodySnippet(t *testing.T) {
	err := HTTPError(502, "upstream down")
	assert.Equal(t, KindDecode, err.Kind)
	assert.Equal(t, 502, err.Status)
	assert.Contains(t, err.Message, "upstream down")
}

func TestHTTPErrorOmitsEmptySnippet(t *testing.T) {
	err := HTTPError(500, "")
	assert.NotContains(t, err.Message, ":")
}

func TestPoolConstructors(t *testing.T) {
	assert.Equal(t, KindPool, PoolOverflow().Kind)
	assert.Equal(t, 503, PoolOverflow().Status)
	assert.Equal(t, KindPool, NoPool().Kind)
	assert.Equal(t, KindPool, PoolError("boom").Kind)
}

func TestAuthHTTPCarriesUpstreamStatus(t *testing.T) {
	err := AuthHTTP(403)
	assert.Equal(t, KindAuth, err.Kind)
	assert.Equal(t, 403, err.Status)
}

func TestFatalHasNoHTTPStatus(t *testing.T) {
	err := Fatal("processor invariant violated")
	assert.Equal(t, KindFatal, err.Kind)
	assert.Equal(t, 0, err.Status)
}
