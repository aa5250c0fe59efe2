package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"not-an-email":         "***@***",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactPhone(t *testing.T) {
	got := RedactPhone("+15551234567")
	if !strings.HasSuffix(got, "67") {
		t.Errorf("expected last two digits kept, got %q", got)
	}
	if strings.Contains(got[:len(got)-2], "5") {
		t.Errorf("expected leading digits masked, got %q", got)
	}
	if RedactPhone("12") != "***" {
		t.Errorf("short numbers should be fully masked")
	}
}

func TestLogRedactsEmailFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Info("send queued", "email", "jane.roe@example.com", "campaign", "c-1")

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if entry["email"] != "ja***@example.com" {
		t.Errorf("email not redacted: %q", entry["email"])
	}
	if entry["campaign"] != "c-1" {
		t.Errorf("non-PII field altered: %q", entry["campaign"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %q", entry["level"])
	}
}

func TestLogRedactsEmbeddedEmails(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Warn("bounce received", "detail", "mailbox jane.roe@example.com unavailable")

	if strings.Contains(buf.String(), "jane.roe@example.com") {
		t.Errorf("embedded email leaked: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(WARN)
	defer func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	}()

	Debug("noise")
	Info("still noise")
	Warn("kept")

	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if buf.Len() == 0 || lines != 1 {
		t.Fatalf("expected exactly one entry, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != DEBUG || ParseLevel("WARNING") != WARN || ParseLevel("bogus") != INFO {
		t.Fatal("ParseLevel mapping wrong")
	}
}
