package commands

import (
	"strings"
	"testing"
)

func TestFormatSessionsTable(t *testing.T) {
	t.Parallel()

	sessions := []sessionView{
		{Supplicant: "00:12:34:56:78:9a", Port: "44:44:44:44:44:44", State: "IDLE2"},
	}

	out, err := formatSessions(sessions, formatTable)
	if err != nil {
		t.Fatalf("formatSessions: %v", err)
	}
	if !strings.Contains(out, "00:12:34:56:78:9a") {
		t.Errorf("table output missing supplicant: %q", out)
	}
	if !strings.Contains(out, "SUPPLICANT") {
		t.Errorf("table output missing header: %q", out)
	}
}

func TestFormatSessionsJSON(t *testing.T) {
	t.Parallel()

	sessions := []sessionView{
		{Supplicant: "00:12:34:56:78:9a", Port: "44:44:44:44:44:44", State: "SUCCESS2"},
	}

	out, err := formatSessions(sessions, formatJSON)
	if err != nil {
		t.Fatalf("formatSessions: %v", err)
	}
	if !strings.Contains(out, `"state": "SUCCESS2"`) {
		t.Errorf("json output missing state field: %q", out)
	}
}

func TestFormatSessionsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	if _, err := formatSessions(nil, "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
