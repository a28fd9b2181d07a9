package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
)

func TestDiffMatchesByTaskID(t *testing.T) {
	tasks := []TaskRef{
		{ID: "T0101", Title: "Old title"},
		{ID: "T0102", Title: "Collect requirements"},
	}
	cards := []CardRef{
		// Renamed on the board but same task id: not drift.
		{ID: "c1", TaskID: "T0101", Title: "New title"},
	}
	missing, extra := Diff(tasks, cards)
	if len(missing) != 1 || missing[0].ID != "T0102" {
		t.Errorf("missing = %+v, want only T0102", missing)
	}
	if len(extra) != 0 {
		t.Errorf("extra = %+v, want none", extra)
	}
}

func TestDiffFallsBackToTitle(t *testing.T) {
	tasks := []TaskRef{
		{Title: "Write docs"},
		{Title: "Ship it"},
	}
	cards := []CardRef{
		{ID: "c1", Title: "Write docs"},
		{ID: "c2", Title: "Ad-hoc fix"},
	}
	missing, extra := Diff(tasks, cards)
	if len(missing) != 1 || missing[0].Title != "Ship it" {
		t.Errorf("missing = %+v", missing)
	}
	if len(extra) != 1 || extra[0].Title != "Ad-hoc fix" {
		t.Errorf("extra = %+v", extra)
	}
}

func TestDiffSortsByTitle(t *testing.T) {
	tasks := []TaskRef{{Title: "zeta"}, {Title: "alpha"}, {Title: "mid"}}
	missing, _ := Diff(tasks, nil)
	got := make([]string, len(missing))
	for i, m := range missing {
		got[i] = m.Title
	}
	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

// seedBoard instantiates the test template and returns the board id, so
// sync tests run against a board in the same shape production boards have.
func seedBoard(t *testing.T, store *fakeStore, client *fakeClient) string {
	t.Helper()
	ins := NewInstantiator(store, client, testLogger(), 1)
	ins.now = fixedNow
	result, err := ins.Instantiate(context.Background(), "bacon-framework", "Apollo", "team-1", nil)
	if err != nil {
		t.Fatalf("seed board: %v", err)
	}
	return result.BoardID
}

func newSyncEngine(store *fakeStore, client *fakeClient) *SyncEngine {
	s := NewSyncEngine(store, client, testLogger())
	s.now = fixedNow
	s.newProposalID = func() string { return "abc123" }
	return s
}

func TestReconcileDryRunReportsDrift(t *testing.T) {
	store := newFakeStore(testTemplate())
	client := newFakeClient()
	boardID := seedBoard(t, store, client)

	// Drift both ways: a new template task and a board-only card.
	tmpl := store.templates["bacon-framework"]
	tmpl.Phases[1].Tasks = append(tmpl.Phases[1].Tasks, domain.Task{ID: "T0202", Title: "P0002-T0202: Harden"})
	client.cards[boardID] = append(client.cards[boardID], focalboard.Card{ID: "c-extra", Title: "Ad-hoc spike"})

	s := newSyncEngine(store, client)
	report, err := s.Reconcile(context.Background(), boardID, "bacon-framework", domain.TemplateToBoard, true)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.TemplateTaskCount != 4 || report.BoardCardCount != 4 {
		t.Errorf("counts = %d/%d, want 4/4", report.TemplateTaskCount, report.BoardCardCount)
	}
	if diff := cmp.Diff([]string{"P0002-T0202: Harden"}, report.Missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Ad-hoc spike"}, report.Extra); diff != "" {
		t.Errorf("extra mismatch (-want +got):\n%s", diff)
	}
	if len(report.ActionsTaken) != 0 {
		t.Errorf("dry run took actions: %v", report.ActionsTaken)
	}
	if len(client.cards[boardID]) != 4 {
		t.Error("dry run changed the board")
	}
}

func TestReconcileTemplateToBoardCreatesMissing(t *testing.T) {
	store := newFakeStore(testTemplate())
	client := newFakeClient()
	boardID := seedBoard(t, store, client)

	tmpl := store.templates["bacon-framework"]
	tmpl.Phases[1].Tasks = append(tmpl.Phases[1].Tasks, domain.Task{ID: "T0202", Title: "P0002-T0202: Harden"})

	s := newSyncEngine(store, client)
	report, err := s.Reconcile(context.Background(), boardID, "bacon-framework", domain.TemplateToBoard, false)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.ActionsTaken) != 1 {
		t.Fatalf("actions = %v, want 1", report.ActionsTaken)
	}
	if len(client.cards[boardID]) != 4 {
		t.Errorf("board has %d cards, want 4", len(client.cards[boardID]))
	}
}

func TestReconcileTemplateToBoardIsIdempotent(t *testing.T) {
	store := newFakeStore(testTemplate())
	client := newFakeClient()
	boardID := seedBoard(t, store, client)

	tmpl := store.templates["bacon-framework"]
	tmpl.Phases[1].Tasks = append(tmpl.Phases[1].Tasks, domain.Task{ID: "T0202", Title: "P0002-T0202: Harden"})

	s := newSyncEngine(store, client)
	if _, err := s.Reconcile(context.Background(), boardID, "bacon-framework", domain.TemplateToBoard, false); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	report, err := s.Reconcile(context.Background(), boardID, "bacon-framework", domain.TemplateToBoard, false)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(report.Missing) != 0 || len(report.ActionsTaken) != 0 {
		t.Errorf("second run missing=%v actions=%v, want none", report.Missing, report.ActionsTaken)
	}
	if got := len(client.cards[boardID]); got != 4 {
		t.Errorf("board has %d cards after second run, want 4", got)
	}
}

func TestReconcileBoardToTemplateRecordsProposals(t *testing.T) {
	store := newFakeStore(testTemplate())
	client := newFakeClient()
	boardID := seedBoard(t, store, client)
	client.cards[boardID] = append(client.cards[boardID], focalboard.Card{ID: "c-extra", Title: "Ad-hoc spike"})

	s := newSyncEngine(store, client)
	report, err := s.Reconcile(context.Background(), boardID, "bacon-framework", domain.BoardToTemplate, false)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.ActionsTaken) != 1 {
		t.Fatalf("actions = %v", report.ActionsTaken)
	}

	pending := store.templates["bacon-framework"].Feedback.Pending
	if len(pending) != 1 {
		t.Fatalf("got %d pending proposals, want 1", len(pending))
	}
	p := pending[0]
	if p.ID != "FP-2026-03-14-abc123" {
		t.Errorf("proposal id = %q", p.ID)
	}
	if p.Type != "add_task" || p.Change.Title != "Ad-hoc spike" || p.Status != domain.ProposalPending {
		t.Errorf("proposal = %+v", p)
	}
	if len(p.SourceInstances) != 1 || p.SourceInstances[0].Project != "Apollo" {
		t.Errorf("source instances = %+v, want project Apollo", p.SourceInstances)
	}
}

func TestReconcileBoardToTemplateAppendsOnRepeat(t *testing.T) {
	store := newFakeStore(testTemplate())
	client := newFakeClient()
	boardID := seedBoard(t, store, client)
	client.cards[boardID] = append(client.cards[boardID], focalboard.Card{ID: "c-extra", Title: "Ad-hoc spike"})

	s := newSyncEngine(store, client)
	for i := 0; i < 2; i++ {
		if _, err := s.Reconcile(context.Background(), boardID, "bacon-framework", domain.BoardToTemplate, false); err != nil {
			t.Fatalf("reconcile %d: %v", i+1, err)
		}
	}
	// Proposals are governance records, not state: each run records what
	// it saw, and deduplication is the reviewer's call.
	if got := len(store.templates["bacon-framework"].Feedback.Pending); got != 2 {
		t.Errorf("got %d pending proposals after two runs, want 2", got)
	}
}

func TestReconcileUnknownBoardProject(t *testing.T) {
	store := newFakeStore(testTemplate())
	client := newFakeClient()
	board, err := client.CreateBoard(context.Background(), focalboard.Board{Title: "Orphan"})
	if err != nil {
		t.Fatal(err)
	}
	client.cards[board.ID] = []focalboard.Card{{ID: "c1", Title: "Stray task"}}

	s := newSyncEngine(store, client)
	if _, err := s.Reconcile(context.Background(), board.ID, "bacon-framework", domain.BoardToTemplate, false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	pending := store.templates["bacon-framework"].Feedback.Pending
	for _, p := range pending {
		if p.Change.Title == "Stray task" {
			if p.SourceInstances[0].Project != "Unknown" {
				t.Errorf("project = %q, want Unknown", p.SourceInstances[0].Project)
			}
			return
		}
	}
	t.Fatal("no proposal recorded for stray task")
}

func TestReconcileInvalidDirection(t *testing.T) {
	s := newSyncEngine(newFakeStore(testTemplate()), newFakeClient())
	_, err := s.Reconcile(context.Background(), "b1", "bacon-framework", domain.SyncDirection("sideways"), true)
	if err == nil || !strings.Contains(err.Error(), "sideways") {
		t.Fatalf("err = %v, want unknown direction", err)
	}
}

func TestReconcileSaveFailureReported(t *testing.T) {
	store := newFakeStore(testTemplate())
	client := newFakeClient()
	boardID := seedBoard(t, store, client)
	client.cards[boardID] = append(client.cards[boardID], focalboard.Card{ID: "c-extra", Title: "Ad-hoc spike"})
	store.saveErr = errors.New("disk full")

	s := newSyncEngine(store, client)
	report, err := s.Reconcile(context.Background(), boardID, "bacon-framework", domain.BoardToTemplate, false)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	found := false
	for _, e := range report.Errors {
		if strings.Contains(e, "save template") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want save failure", report.Errors)
	}
}
