package pipelineerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_Error(t *testing.T) {
	err := New(KindNotFound, "doc X")
	if err.Error() != "not_found: doc X" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindStorageIO, "write failed", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindTimeout, true},
		{KindProviderTransport, true},
		{KindRateLimited, true},
		{KindEmbeddingFailure, true},
		{KindStorageIO, true},
		{KindFileNotFound, false},
		{KindUnknownTask, false},
		{KindInvalidInput, false},
		{KindAuthFailure, false},
		{KindDimensionMismatch, false},
		{KindCancelled, false},
		{KindMissingVariable, false},
		{KindUnknownPlaceholder, false},
		{KindConfigInvalid, false},
		{KindQueueFull, false},
		{KindNotFound, false},
	}
	for _, c := range cases {
		err := New(c.kind, "x")
		if got := err.Retryable(); got != c.want {
			t.Errorf("%s: Retryable() = %v, want %v", c.kind, got, c.want)
		}
		if got := Retryable(err); got != c.want {
			t.Errorf("%s: package Retryable() = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestIs(t *testing.T) {
	err := New(KindQueueFull, "full")
	if !Is(err, KindQueueFull) {
		t.Error("expected Is to match KindQueueFull")
	}
	if Is(err, KindTimeout) {
		t.Error("expected Is to reject KindTimeout")
	}
	if Is(errors.New("plain"), KindTimeout) {
		t.Error("expected Is to reject non-pipelineerr errors")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(New(KindAuthFailure, "bad key")) != KindAuthFailure {
		t.Error("expected KindAuthFailure")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty Kind for non-pipelineerr errors")
	}
}

func TestWrapFormatsWrappedCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindProviderTransport, "ollama", cause)
	msg := fmt.Sprintf("%v", err)
	if msg != "provider_transport: ollama: dial tcp: refused" {
		t.Errorf("unexpected message: %q", msg)
	}
}
