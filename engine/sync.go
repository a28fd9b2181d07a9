package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
)

// TaskRef is the template side of a diff entry.
type TaskRef struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
}

// CardRef is the board side of a diff entry.
type CardRef struct {
	ID     string `json:"id"`
	TaskID string `json:"taskId,omitempty"`
	Title  string `json:"title"`
}

// Diff matches template tasks against board cards. Entries join on task id
// when both sides carry one, else on title. Missing holds tasks with no
// card; Extra holds cards with no task. Both come back sorted by title.
func Diff(tasks []TaskRef, cards []CardRef) (missing []TaskRef, extra []CardRef) {
	cardKeys := make(map[string]bool, len(cards))
	for _, c := range cards {
		if c.TaskID != "" {
			cardKeys[c.TaskID] = true
		}
		cardKeys[c.Title] = true
	}
	taskKeys := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID != "" {
			taskKeys[t.ID] = true
		}
		taskKeys[t.Title] = true
	}

	for _, t := range tasks {
		if t.ID != "" && cardKeys[t.ID] {
			continue
		}
		if cardKeys[t.Title] {
			continue
		}
		missing = append(missing, t)
	}
	for _, c := range cards {
		if c.TaskID != "" && taskKeys[c.TaskID] {
			continue
		}
		if taskKeys[c.Title] {
			continue
		}
		extra = append(extra, c)
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i].Title < missing[j].Title })
	sort.Slice(extra, func(i, j int) bool { return extra[i].Title < extra[j].Title })
	return missing, extra
}

// SyncEngine reconciles a live board against the template it was created
// from, in either direction.
type SyncEngine struct {
	store  TemplateStore
	client BoardClient
	logger *log.Logger
	now    func() time.Time

	// newProposalID yields the random suffix of generated proposal ids.
	newProposalID func() string
}

func NewSyncEngine(store TemplateStore, client BoardClient, logger *log.Logger) *SyncEngine {
	return &SyncEngine{
		store:         store,
		client:        client,
		logger:        logger,
		now:           time.Now,
		newProposalID: func() string { return focalboard.NewBlockID()[:6] },
	}
}

// Reconcile diffs the template against the board's live cards and, unless
// dryRun is set, applies the direction's corrective action. The diff is
// recomputed from live state on every run, so applying template_to_board
// twice creates each missing card only once. board_to_template records a
// proposal per extra card on every run and does not deduplicate against
// earlier proposals.
func (s *SyncEngine) Reconcile(ctx context.Context, boardID, templateID string, direction domain.SyncDirection, dryRun bool) (domain.SyncReport, error) {
	report := domain.SyncReport{
		TemplateID: templateID,
		BoardID:    boardID,
		Direction:  direction,
		DryRun:     dryRun,
	}
	if !direction.Valid() {
		return report, fmt.Errorf("unknown sync direction %q", direction)
	}

	tmpl, err := s.store.Load(templateID)
	if err != nil {
		return report, err
	}

	board, err := s.client.GetBoard(ctx, boardID)
	if err != nil {
		return report, fmt.Errorf("get board: %w", err)
	}
	cards, err := s.client.ListCards(ctx, boardID)
	if err != nil {
		return report, fmt.Errorf("list cards: %w", err)
	}

	// Cards carry their originating task id in a text property when the
	// board was created by this engine.
	taskIDProp := ""
	for _, p := range board.CardProperties {
		if p.Name == taskIDPropertyName && p.Type == "text" {
			taskIDProp = p.ID
			break
		}
	}

	taskRefs := make([]TaskRef, 0, tmpl.TaskCount())
	for _, task := range tmpl.Tasks() {
		taskRefs = append(taskRefs, TaskRef{ID: task.ID, Title: task.Title, Icon: task.Icon})
	}
	cardRefs := make([]CardRef, 0, len(cards))
	for _, card := range cards {
		ref := CardRef{ID: card.ID, Title: card.Title}
		if taskIDProp != "" {
			ref.TaskID = card.StringProperty(taskIDProp)
		}
		cardRefs = append(cardRefs, ref)
	}

	missing, extra := Diff(taskRefs, cardRefs)
	report.TemplateTaskCount = len(taskRefs)
	report.BoardCardCount = len(cardRefs)
	for _, t := range missing {
		report.Missing = append(report.Missing, t.Title)
	}
	for _, c := range extra {
		report.Extra = append(report.Extra, c.Title)
	}

	if dryRun {
		return report, nil
	}

	switch direction {
	case domain.TemplateToBoard:
		s.applyToBoard(ctx, boardID, tmpl, missing, &report)
	case domain.BoardToTemplate:
		s.applyToTemplate(boardID, templateID, tmpl, extra, &report)
	}

	if s.logger != nil {
		s.logger.WithFields(log.Fields{
			"template_id": templateID,
			"board_id":    boardID,
			"direction":   direction,
			"missing":     len(missing),
			"extra":       len(extra),
			"actions":     len(report.ActionsTaken),
		}).Info("board reconciled")
	}
	return report, nil
}

// applyToBoard creates a card for every task the board is missing. Cards
// created here carry no property values; a later instantiation pass or the
// board's users fill those in.
func (s *SyncEngine) applyToBoard(ctx context.Context, boardID string, tmpl *domain.Template, missing []TaskRef, report *domain.SyncReport) {
	wanted := make(map[string]bool, len(missing))
	for _, t := range missing {
		key := t.ID
		if key == "" {
			key = t.Title
		}
		wanted[key] = true
	}
	// Walk the template rather than the sorted diff so creation keeps
	// authored order.
	for _, task := range tmpl.Tasks() {
		key := task.ID
		if key == "" {
			key = task.Title
		}
		if !wanted[key] {
			continue
		}
		icon := task.Icon
		if icon == "" {
			icon = defaultTaskIcon
		}
		_, err := s.client.CreateCard(ctx, boardID, focalboard.CardRequest{
			Title: task.Title,
			Icon:  icon,
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("create card %q: %v", task.Title, err))
			continue
		}
		report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("created card %q", task.Title))
	}
}

// applyToTemplate records a pending feedback proposal per extra card and
// writes the template back.
func (s *SyncEngine) applyToTemplate(boardID, templateID string, tmpl *domain.Template, extra []CardRef, report *domain.SyncReport) {
	if len(extra) == 0 {
		return
	}

	project := "Unknown"
	for _, inst := range tmpl.Instances.Active {
		if inst.BoardID == boardID {
			project = inst.ProjectName
			break
		}
	}

	now := s.now()
	for _, card := range extra {
		proposal := domain.FeedbackProposal{
			ID:        fmt.Sprintf("FP-%s-%s", now.Format("2006-01-02"), s.newProposalID()),
			Created:   now.Format(time.RFC3339),
			Type:      "add_task",
			Target:    domain.ProposalTarget{Phase: 0},
			Change:    domain.ProposalChange{Title: card.Title},
			Rationale: fmt.Sprintf("Task discovered in board %s", boardID),
			SourceInstances: []domain.SourceInstance{
				{ID: boardID, Project: project},
			},
			Status: domain.ProposalPending,
		}
		tmpl.Feedback.Pending = append(tmpl.Feedback.Pending, proposal)
		report.ActionsTaken = append(report.ActionsTaken, fmt.Sprintf("proposed task %q", card.Title))
	}

	if err := s.store.Save(tmpl, templateID, ""); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("save template: %v", err))
	}
}
