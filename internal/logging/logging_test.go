package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithOutput(&buf, "debug", "")
	if err != nil {
		t.Fatal(err)
	}
	l.WithField("day", "2026-10-20").Debug("placed")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if line["msg"] != "placed" || line["day"] != "2026-10-20" || line["level"] != "debug" {
		t.Fatalf("line = %v", line)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatal("bad level accepted")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("bad format accepted")
	}
}
