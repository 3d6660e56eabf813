package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewUsesRegisteredMessage(t *testing.T) {
	err := New(CodeMountFailure, "")
	if err.Message() != "resource pack mount failed" {
		t.Fatalf("unexpected default message %q", err.Message())
	}
	if got := err.Error(); got != "[MOUNT_FAILURE] resource pack mount failed" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("open foo.pck: %w", stdErrors.New("permission denied"))
	err := Wrap(CodeMountFailure, cause, "mount", WithMetadata("path", "foo.pck"))

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected cause in message, got %q", err.Error())
	}
	if err.Metadata()["path"] != "foo.pck" {
		t.Fatalf("unexpected metadata %v", err.Metadata())
	}
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeResourceMiss, "")
	wrapped := fmt.Errorf("dispatch: %w", Wrap(CodeResourceMiss, nil, "script missing"))

	if !stdErrors.Is(wrapped, sentinel) {
		t.Fatalf("expected code match through wrapping")
	}
	if stdErrors.Is(wrapped, New(CodeMountFailure, "")) {
		t.Fatalf("different codes must not match")
	}
	if CodeOf(wrapped) != CodeResourceMiss {
		t.Fatalf("unexpected code %s", CodeOf(wrapped))
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
}

func TestSilentAndAlertAttributes(t *testing.T) {
	cases := []struct {
		code   Code
		silent bool
		alert  bool
	}{
		{CodeResourceMiss, true, false},
		{CodeInstantiationMiss, true, false},
		{CodeMountFailure, false, true},
		{CodeModuleLoadFailure, false, true},
		{CodeNotifyFailure, false, false},
		{CodeAddonPanic, false, true},
	}
	for _, tc := range cases {
		err := fmt.Errorf("wrapped: %w", New(tc.code, ""))
		if IsSilent(err) != tc.silent {
			t.Errorf("%s: silent = %v, want %v", tc.code, IsSilent(err), tc.silent)
		}
		if ShouldAlert(err) != tc.alert {
			t.Errorf("%s: alert = %v, want %v", tc.code, ShouldAlert(err), tc.alert)
		}
	}
}

func TestOverrides(t *testing.T) {
	err := New(CodeNotifyFailure, "", WithAlert(true), WithSeverity(SeverityCritical))
	if !err.ShouldAlert() || err.Severity() != SeverityCritical {
		t.Fatalf("overrides not applied: alert=%v severity=%s", err.ShouldAlert(), err.Severity())
	}
	if SeverityOf(stdErrors.New("x")) != SeverityCritical {
		t.Fatalf("unknown errors should be critical")
	}
}

func TestRegister(t *testing.T) {
	const code Code = "TEST_ONLY"
	Register(code, Attributes{Message: "test only", Severity: SeverityInfo, Silent: true})
	if !New(code, "").Silent() || New(code, "").Message() != "test only" {
		t.Fatalf("registered attributes not used")
	}
	if AttributesOf("NOT_REGISTERED").Message != AttributesOf(CodeUnknown).Message {
		t.Fatalf("unregistered codes should fall back to UNKNOWN")
	}
}

func TestNilError(t *testing.T) {
	var err *Error
	if err.Error() != "" || err.Code() != CodeUnknown || err.Silent() || err.ShouldAlert() {
		t.Fatalf("nil receiver should be inert")
	}
	if _, ok := From(nil); ok {
		t.Fatalf("From(nil) should report false")
	}
}
