package schema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseLang(t *testing.T) {
	tests := []struct {
		in      string
		want    Lang
		wantErr bool
	}{
		{"", LangFR, false},
		{"fr", LangFR, false},
		{"ar", LangAR, false},
		{"en", "", true},
		{"fr; DROP TABLE services", "", true},
	}

	for _, tt := range tests {
		got, err := ParseLang(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedLang) {
				t.Errorf("ParseLang(%q) error = %v, want ErrUnsupportedLang", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLang(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLang(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCategoryLabel(t *testing.T) {
	if got := CategoryLabel("education", LangFR); got != "Éducation" {
		t.Errorf("CategoryLabel(education, fr) = %q", got)
	}
	if got := CategoryLabel("transport", LangAR); got != "النقل" {
		t.Errorf("CategoryLabel(transport, ar) = %q", got)
	}
	if got := CategoryLabel("other", LangAR); got != "other" {
		t.Errorf("CategoryLabel(other, ar) = %q, want passthrough", got)
	}
}

func TestDefaultSeed(t *testing.T) {
	seed, err := DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed() failed: %v", err)
	}

	if len(seed.Services) != 5 {
		t.Errorf("len(Services) = %d, want 5", len(seed.Services))
	}
	if len(seed.Documents) != 2 {
		t.Errorf("len(Documents) = %d, want 2", len(seed.Documents))
	}
	if len(seed.FAQ) != 2 {
		t.Errorf("len(FAQ) = %d, want 2", len(seed.FAQ))
	}
	if len(seed.Procedures) == 0 {
		t.Error("expected default procedures")
	}

	found := false
	for _, s := range seed.Services {
		if s.ID == "driver-license" {
			found = true
			if s.Offline {
				t.Error("driver-license should not be available offline")
			}
		}
	}
	if !found {
		t.Error("driver-license missing from default seed")
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad difficulty": "services:\n  - id: x\n    title_fr: a\n    title_ar: b\n    category: c\n    difficulty: extreme\n",
		"missing title":  "documents:\n  - id: x\n    title_fr: a\n",
		"unknown field":  "services:\n  - id: x\n    colour: red\n",
		"faq no answer":  "faq:\n  - question_fr: q\n    question_ar: q\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSeed([]byte(doc)); err == nil {
				t.Error("ParseSeed() should fail")
			}
		})
	}
}

func TestParseSeed_Empty(t *testing.T) {
	seed, err := ParseSeed(nil)
	if err != nil {
		t.Fatalf("ParseSeed(nil) failed: %v", err)
	}
	if seed.Len() != 0 {
		t.Errorf("Len() = %d, want 0", seed.Len())
	}
}

func TestReadSeedDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"01-services.yaml": "services:\n  - id: a\n    title_fr: A\n    title_ar: أ\n    category: health\n",
		"02-faq.yml":       "faq:\n  - question_fr: q\n    question_ar: س\n    answer_fr: r\n    answer_ar: ج\n",
		"notes.txt":        "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	seed, err := ReadSeedDir(dir)
	if err != nil {
		t.Fatalf("ReadSeedDir() failed: %v", err)
	}
	if len(seed.Services) != 1 || len(seed.FAQ) != 1 {
		t.Errorf("got %d services and %d faq, want 1 and 1", len(seed.Services), len(seed.FAQ))
	}
}

func TestAction_StoredData(t *testing.T) {
	a := Action{Type: ActionSearch}
	if got := a.StoredData(); got != "null" {
		t.Errorf("StoredData() = %q, want null", got)
	}

	a.Data = json.RawMessage(`{"q":"passport"}`)
	if got := a.StoredData(); got != `{"q":"passport"}` {
		t.Errorf("StoredData() = %q", got)
	}
}

func TestAction_Validate(t *testing.T) {
	if err := (&Action{}).Validate(); err == nil {
		t.Error("Validate() should reject empty type")
	}
	if err := (&Action{Type: "X", Data: json.RawMessage(`{bad`)}).Validate(); err == nil {
		t.Error("Validate() should reject invalid JSON data")
	}
	if err := (&Action{Type: "X"}).Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestQueueItem_Validate(t *testing.T) {
	now := time.Now()
	item := QueueItem{ActionType: "SEARCH", ActionData: json.RawMessage("null")}
	if err := item.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	item.Synced = true
	if err := item.Validate(); err == nil {
		t.Error("Validate() should reject synced without synced_at")
	}

	item.SyncedAt = &now
	if err := item.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestFormatTime_SortsLexically(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	earlier := FormatTime(base)
	later := FormatTime(base.Add(time.Microsecond))

	if !(earlier < later) {
		t.Errorf("%q should sort before %q", earlier, later)
	}
	if len(earlier) != len(later) {
		t.Error("formatted timestamps must be fixed width")
	}

	parsed, err := ParseTime(earlier)
	if err != nil {
		t.Fatalf("ParseTime() failed: %v", err)
	}
	if !parsed.Equal(base) {
		t.Errorf("ParseTime() = %v, want %v", parsed, base)
	}
}
