package rewind

import "testing"

func TestState_String_Healthy(t *testing.T) {
	if s := StateHealthy.String(); s != "healthy" {
		t.Errorf("expected 'healthy', got %q", s)
	}
}

func TestState_String_Degraded(t *testing.T) {
	if s := StateDegraded.String(); s != "degraded" {
		t.Errorf("expected 'degraded', got %q", s)
	}
}

func TestState_String_Closed(t *testing.T) {
	if s := StateClosed.String(); s != "closed" {
		t.Errorf("expected 'closed', got %q", s)
	}
}

func TestState_String_Unknown(t *testing.T) {
	if s := State(999).String(); s != "unknown" {
		t.Errorf("expected 'unknown', got %q", s)
	}
}
