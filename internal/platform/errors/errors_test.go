package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeStaleScene, "scene is behind")
	if !errors.Is(err, New(CodeStaleScene, "different message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(err, New(CodeNotFound, "scene is behind")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(CodeUnknown, "append failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeActorNotMember, http.StatusForbidden},
		{CodeStaleScene, http.StatusConflict},
		{CodeAlreadyResolved, http.StatusConflict},
		{CodePreconditionNotMet, http.StatusConflict},
		{CodeCommandInvalid, http.StatusBadRequest},
		{CodeValidationSchema, http.StatusBadRequest},
		{CodeContentIntegrity, http.StatusUnprocessableEntity},
		{CodeNotFound, http.StatusNotFound},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("code %s: expected status %d, got %d", tc.code, tc.want, got)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(CodeAlreadyRecorded, "dup")); got != CodeAlreadyRecorded {
		t.Fatalf("expected %s, got %s", CodeAlreadyRecorded, got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("expected %s for foreign error, got %s", CodeUnknown, got)
	}
}
