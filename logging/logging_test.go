package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupWriter(&buf, "warn", FormatJSON); err != nil {
		t.Fatal(err)
	}
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("hidden")
	log.Warn().Str("move", "e2e4").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev["message"] != "shown" || ev["move"] != "e2e4" || ev["level"] != "warn" {
		t.Errorf("unexpected event %v", ev)
	}
}

func TestSetupErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupWriter(&buf, "loud", FormatJSON); err == nil {
		t.Errorf("expected error for bad level")
	}
	if err := SetupWriter(&buf, "info", "xml"); err == nil {
		t.Errorf("expected error for bad format")
	}
}

func TestPrettyJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewPrettyJSONWriter(&buf)

	in := []byte(`{"level":"info","n":3}` + "\n")
	n, err := w.Write(in)
	if err != nil || n != len(in) {
		t.Fatalf("write = %d,%v", n, err)
	}
	want := "{\n  \"level\": \"info\",\n  \"n\": 3\n}\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if _, err := w.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "not json\n" {
		t.Errorf("non-JSON line altered: %q", buf.String())
	}
}
