package transcript

import "testing"

func TestNormalizeRole(t *testing.T) {
	cases := map[string]string{
		" System ": "system",
		"USER":     "user",
		"":         "system",
	}
	for in, want := range cases {
		if got := NormalizeRole(in); got != want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToolSummary(t *testing.T) {
	if got := ToolSummary("demo.lookup", true, -1); got != "[tool:demo.lookup] ok" {
		t.Errorf("got %q", got)
	}
	if got := ToolSummary("demo.lookup", false, 12); got != "[tool:demo.lookup] failed (12ms)" {
		t.Errorf("got %q", got)
	}
}

func TestPreflightBlockedSummary(t *testing.T) {
	if got := PreflightBlockedSummary(2); got != "[preflight] blocked: missing 2 required tool(s)" {
		t.Errorf("got %q", got)
	}
}
