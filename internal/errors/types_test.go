package errors

import (
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientClassification(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(fmt.Errorf("boom"), "")))
	assert.False(t, IsTransient(NewPermanentError(fmt.Errorf("timeout"), "")),
		"an explicit permanent wrapper wins over message patterns")

	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: fmt.Errorf("refused")}))
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(fmt.Errorf("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(fmt.Errorf("role profile malformed")))
}

func TestIsPermanentClassification(t *testing.T) {
	assert.True(t, IsPermanent(NewPermanentError(fmt.Errorf("x"), "")))
	assert.False(t, IsPermanent(NewTransientError(fmt.Errorf("not found"), "not found")))
	assert.True(t, IsPermanent(fmt.Errorf("task not found")))
	assert.True(t, IsPermanent(fmt.Errorf("401 Unauthorized")))
	assert.False(t, IsPermanent(fmt.Errorf("disk wobbled")))
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeDegraded, GetErrorType(NewDegradedError(fmt.Errorf("partial"), "")))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(fmt.Errorf("connection refused")))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(fmt.Errorf("schema mismatch")),
		"unclassified errors default to permanent")
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	assert.False(t, IsTransientHTTPStatus(200))
	assert.False(t, IsTransientHTTPStatus(400))
	assert.False(t, IsTransientHTTPStatus(404))
}

func TestErrorMessagesAndUnwrap(t *testing.T) {
	inner := fmt.Errorf("socket closed")
	te := NewTransientError(inner, "agent unreachable")
	assert.Equal(t, "agent unreachable", te.Error())
	assert.Equal(t, inner, te.Unwrap())

	bare := &TransientError{Err: inner}
	assert.Contains(t, bare.Error(), "socket closed")
}
