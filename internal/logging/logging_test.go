package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/raysh454/secscan/internal/logging"
)

func TestStdoutLogger_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewLogger(&buf, "dispatch")

	l.Warn("scanner degraded", logging.F("scanner", "trivy"), logging.Err(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if entry["level"] != "warn" {
		t.Errorf("expected level warn, got %v", entry["level"])
	}
	if entry["component"] != "dispatch" {
		t.Errorf("expected component dispatch, got %v", entry["component"])
	}
	fields, _ := entry["fields"].(map[string]any)
	if fields["scanner"] != "trivy" || fields["error"] != "boom" {
		t.Errorf("unexpected fields: %v", fields)
	}
}

func TestStdoutLogger_WithKeepsFieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewLogger(&buf, "root")

	child := l.With(logging.F("component", "inspect"), logging.F("scan_id", "abc"))
	child.Info("detected")

	line := buf.String()
	if !strings.Contains(line, `"component":"inspect"`) {
		t.Errorf("expected child component in %s", line)
	}
	if !strings.Contains(line, `"scan_id":"abc"`) {
		t.Errorf("expected persistent field in %s", line)
	}
}
