package server

import (
	"errors"
	"testing"
)

func TestServerError_WithErrorCodeAndUnwrap(t *testing.T) {
	if WithErrorCode(nil, "X") != nil {
		t.Errorf("expected nil when err is nil")
	}

	base := errors.New("base")
	wrapped := WithErrorCode(base, "CODE123")
	if wrapped.(*withCodeError).Code() != "CODE123" {
		t.Errorf("expected CODE123")
	}
	if !errors.Is(wrapped, base) {
		t.Errorf("unwrap mismatch")
	}
}

func TestServerError_NewInvalidPortError(t *testing.T) {
	err := NewInvalidPortError(99999)
	if !errors.Is(err, ErrInvalidPort) {
		t.Errorf("expected invalid port err")
	}
	if ErrorCode(err) != errorCodeInvalidPort {
		t.Errorf("expected code invalid_port")
	}
}

func TestServerError_WrapInvalidConfig(t *testing.T) {
	if WrapInvalidConfig(nil) != nil {
		t.Errorf("expected nil for nil input")
	}
	e := errors.New("bad")
	err := WrapInvalidConfig(e)
	if !errors.Is(err, e) {
		t.Errorf("unwrap mismatch")
	}
	if ErrorCode(err) != errorCodeInvalidConfig {
		t.Errorf("expected invalid_config code")
	}
}

func TestServerError_WrapListen(t *testing.T) {
	if WrapListen(nil) != nil {
		t.Errorf("expected nil for nil input")
	}
	err := WrapListen(errors.New("s"))
	if ErrorCode(err) != errorCodeListenFailed {
		t.Errorf("expected listen_failed code")
	}
}

func TestServerError_WrapUserDB(t *testing.T) {
	if WrapUserDB(nil) != nil {
		t.Errorf("expected nil for nil input")
	}
	err := WrapUserDB(errors.New("s"))
	if ErrorCode(err) != errorCodeUserDBFailed {
		t.Errorf("expected userdb_failed code")
	}
}

func TestServerError_WrapInit(t *testing.T) {
	if WrapInit(nil) != nil {
		t.Errorf("expected nil for nil input")
	}
	err := WrapInit(errors.New("s"))
	if ErrorCode(err) != errorCodeInitFailed {
		t.Errorf("expected init_failed code")
	}
}

func TestServerError_WrapRuntime(t *testing.T) {
	if WrapRuntime(nil) != nil {
		t.Errorf("expected nil for nil input")
	}
	err := WrapRuntime(errors.New("s"))
	if ErrorCode(err) != errorCodeRuntimeFailed {
		t.Errorf("expected runtime_failed code")
	}
}

func TestServerError_WrapCleanup(t *testing.T) {
	if WrapCleanup(nil) != nil {
		t.Errorf("expected nil for nil input")
	}
	err := WrapCleanup(errors.New("s"))
	if ErrorCode(err) != errorCodeCleanupFailed {
		t.Errorf("expected cleanup_failed code")
	}
}

func TestServerError_ErrorCodeBranches(t *testing.T) {
	if ErrorCode(nil) != "" {
		t.Errorf("expected empty for nil")
	}

	coded := WithErrorCode(errors.New("x"), "CUSTOM")
	if ErrorCode(coded) != "CUSTOM" {
		t.Errorf("expected CUSTOM")
	}

	if ErrorCode(ErrInvalidPort) != errorCodeInvalidPort {
		t.Errorf("expected invalid port code")
	}
	if ErrorCode(ErrMissingDependency) != errorCodeInitFailed {
		t.Errorf("expected init failed code")
	}
	if ErrorCode(errors.New("random")) != errorCodeRuntimeFailed {
		t.Errorf("expected runtime_failed fallback")
	}
}

func TestServerError_ExitCode(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{nil, 0},
		{ErrInvalidPort, 2},
		{WithErrorCode(errors.New("x"), errorCodeInvalidConfig), 2},
		{WithErrorCode(errors.New("x"), errorCodeListenFailed), 7},
		{WithErrorCode(errors.New("x"), errorCodeUserDBFailed), 7},
		{WithErrorCode(errors.New("x"), errorCodeInitFailed), 7},
		{ErrMissingDependency, 7},
		{WithErrorCode(errors.New("x"), "UNKNOWN_CODE"), 1}, // default branch
		{errors.New("random"), 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.expected {
			t.Errorf("ExitCode(%v)=%d, want %d", tt.err, got, tt.expected)
		}
	}
}

func TestServerError_Suggestions(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{errorCodeInvalidPort, true},
		{errorCodeInvalidConfig, true},
		{errorCodeListenFailed, true},
		{errorCodeUserDBFailed, true},
		{errorCodeInitFailed, true},
		{errorCodeRuntimeFailed, true},
		{errorCodeCleanupFailed, true},
		{"UNKNOWN_CODE", false},
	}
	for _, tt := range tests {
		err := WithErrorCode(errors.New("x"), tt.code)
		sugs := Suggestions(err)
		if tt.want && len(sugs) == 0 {
			t.Errorf("expected suggestions for %v", tt.code)
		}
		if !tt.want && sugs != nil {
			t.Errorf("expected nil for %v", tt.code)
		}
	}
	if Suggestions(nil) != nil {
		t.Errorf("expected nil for nil err")
	}
}
