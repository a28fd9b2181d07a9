package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger
}

const validDocument = `{
  "meta": {
    "id": "bacon-framework",
    "name": "Bacon Framework",
    "version": "2.1.0",
    "author": "pm-team",
    "complexity": "high",
    "tags": ["delivery"]
  },
  "board": {
    "title": "${PROJECT_NAME} Board",
    "cardProperties": []
  },
  "phases": [
    {
      "number": 1,
      "name": "Discovery",
      "tasks": [
        {"id": "T0101", "title": "Kickoff", "checklist": ["Invite people", {"title": "Book room", "checked": true}]}
      ]
    }
  ]
}`

func writeTemplate(t *testing.T, root, category, id, content string) string {
	t.Helper()
	dir := filepath.Join(root, category, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "template.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "framework", "bacon-framework", validDocument)

	store := NewStore(root, quietLogger())
	summaries, warnings := store.Discover("")
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	s := summaries[0]
	if s.ID != "bacon-framework" || s.Version != "2.1.0" || s.Category != "framework" {
		t.Errorf("summary = %+v", s)
	}
	if s.PhaseCount != 1 || s.TaskCount != 1 {
		t.Errorf("counts = %d phases, %d tasks", s.PhaseCount, s.TaskCount)
	}
}

func TestDiscoverCategoryFilter(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "framework", "bacon-framework", validDocument)
	writeTemplate(t, root, "exported", "other", `{"meta":{"id":"other","name":"Other"},"board":{"title":"B","cardProperties":[]},"phases":[]}`)

	store := NewStore(root, quietLogger())
	summaries, _ := store.Discover("exported")
	if len(summaries) != 1 || summaries[0].ID != "other" {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestDiscoverDefaultsMissingMeta(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "framework", "minimal", `{"meta":{"id":"minimal","name":"Minimal"},"board":{"title":"B","cardProperties":[]},"phases":[]}`)

	store := NewStore(root, quietLogger())
	summaries, _ := store.Discover("")
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries", len(summaries))
	}
	s := summaries[0]
	if s.Version != "0.0.0" || s.Author != "Unknown" || s.Complexity != "medium" {
		t.Errorf("defaults not applied: %+v", s)
	}
}

func TestDiscoverSkipsInvalidWithWarning(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "framework", "bacon-framework", validDocument)
	badPath := writeTemplate(t, root, "framework", "broken", "{not json")
	writeTemplate(t, root, "framework", "invalid", `{"meta":{"id":"invalid"},"board":{"title":"B","cardProperties":[]},"phases":[]}`)

	store := NewStore(root, quietLogger())
	summaries, warnings := store.Discover("")
	if len(summaries) != 1 {
		t.Errorf("got %d summaries, want only the valid one", len(summaries))
	}
	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want 2: %v", len(warnings), warnings)
	}
	found := false
	for _, w := range warnings {
		if w.Path == badPath && w.Reason != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %+v, want entry for %s", warnings, badPath)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope"), quietLogger())
	summaries, warnings := store.Discover("")
	if len(summaries) != 0 || len(warnings) != 0 {
		t.Errorf("got %v / %v from missing root", summaries, warnings)
	}
}

func TestLoadNormalizesChecklist(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "framework", "bacon-framework", validDocument)

	store := NewStore(root, quietLogger())
	tmpl, err := store.Load("bacon-framework")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checklist := tmpl.Phases[0].Tasks[0].Checklist
	if len(checklist) != 2 {
		t.Fatalf("checklist = %+v", checklist)
	}
	if checklist[0].Title != "Invite people" || checklist[0].Checked {
		t.Errorf("bare string item = %+v, want unchecked", checklist[0])
	}
	if checklist[1].Title != "Book room" || !checklist[1].Checked {
		t.Errorf("object item = %+v", checklist[1])
	}
}

func TestLoadNotFound(t *testing.T) {
	store := NewStore(t.TempDir(), quietLogger())
	if _, err := store.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "framework", "bacon-framework", validDocument)

	store := NewStore(root, quietLogger())
	tmpl, err := store.Load("bacon-framework")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tmpl.Meta.Version = "2.2.0"
	tmpl.Feedback.Pending = append(tmpl.Feedback.Pending, domain.FeedbackProposal{
		ID:     "FP-2026-03-14-abc123",
		Type:   "add_task",
		Change: domain.ProposalChange{Title: "New task"},
		Status: domain.ProposalPending,
	})
	if err := store.Save(tmpl, "bacon-framework", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := store.Load("bacon-framework")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Meta.Version != "2.2.0" {
		t.Errorf("version = %q", reloaded.Meta.Version)
	}
	if len(reloaded.Feedback.Pending) != 1 {
		t.Errorf("pending = %+v", reloaded.Feedback.Pending)
	}
}

func TestSaveNewTemplateDefaultsCategory(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, quietLogger())

	tmpl := &domain.Template{
		Meta:  domain.Meta{ID: "fresh", Name: "Fresh", Version: "1.0.0"},
		Board: domain.BoardConfig{Title: "B"},
	}
	if err := store.Save(tmpl, "fresh", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "framework", "fresh", "template.json")); err != nil {
		t.Errorf("template not written under default category: %v", err)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	store := NewStore(t.TempDir(), quietLogger())
	tmpl := &domain.Template{Meta: domain.Meta{ID: "x"}}
	err := store.Save(tmpl, "x", "")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestSaveDetectsConcurrentModification(t *testing.T) {
	root := t.TempDir()
	path := writeTemplate(t, root, "framework", "bacon-framework", validDocument)

	store := NewStore(root, quietLogger())
	tmpl, err := store.Load("bacon-framework")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Another writer touches the file between load and save.
	outside := []byte(`{"meta":{"id":"bacon-framework","name":"Edited outside","version":"9.0.0"},"board":{"title":"B","cardProperties":[]},"phases":[]}`)
	if err := os.WriteFile(path, outside, 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl.Meta.Version = "2.2.0"
	if err := store.Save(tmpl, "bacon-framework", ""); !errors.Is(err, ErrModified) {
		t.Fatalf("err = %v, want ErrModified", err)
	}

	// Re-loading refreshes the fingerprint and unblocks the save.
	fresh, err := store.Load("bacon-framework")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	fresh.Meta.Version = "9.1.0"
	if err := store.Save(fresh, "bacon-framework", ""); err != nil {
		t.Fatalf("save after reload: %v", err)
	}
}
