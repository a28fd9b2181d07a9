package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
)

var (
	phaseCodePattern = regexp.MustCompile(`P00(\d{2})-`)
	taskCodePattern  = regexp.MustCompile(`T\d{4}`)
)

// ExportOptions controls how a board is captured into a new template.
// Zero-value fields are derived from the board.
type ExportOptions struct {
	TemplateID string `json:"templateId"`
	Name       string `json:"name,omitempty"`
	Author     string `json:"author,omitempty"`
	Category   string `json:"category,omitempty"`
}

// ExportResult summarizes what a completed export captured.
type ExportResult struct {
	TemplateID string `json:"templateId"`
	PhaseCount int    `json:"phaseCount"`
	TaskCount  int    `json:"taskCount"`
}

// Exporter captures a live board back into a template document, the
// reverse of instantiation. Cards become tasks, checkbox blocks become
// checklist items, and phase grouping is recovered from card titles.
type Exporter struct {
	store  TemplateStore
	client BoardClient
	logger *log.Logger
	now    func() time.Time
}

func NewExporter(store TemplateStore, client BoardClient, logger *log.Logger) *Exporter {
	return &Exporter{store: store, client: client, logger: logger, now: time.Now}
}

// Export reads the board and writes it as a new template under opts.TemplateID.
// Cards whose title carries a P00NN- code group under phase NN; the rest
// land in phase 1. The exported board title replaces the source project
// name with ${PROJECT_NAME} so the template instantiates cleanly.
func (e *Exporter) Export(ctx context.Context, boardID string, opts ExportOptions) (ExportResult, error) {
	var result ExportResult
	if opts.TemplateID == "" {
		return result, fmt.Errorf("template id is required")
	}

	board, err := e.client.GetBoard(ctx, boardID)
	if err != nil {
		return result, fmt.Errorf("get board: %w", err)
	}
	cards, err := e.client.ListCards(ctx, boardID)
	if err != nil {
		return result, fmt.Errorf("list cards: %w", err)
	}
	blocks, err := e.client.ListBlocks(ctx, boardID)
	if err != nil {
		return result, fmt.Errorf("list blocks: %w", err)
	}

	children := groupByParent(blocks)
	statusNames := statusReverseIndex(board.CardProperties)
	statusPropID := ""
	for _, p := range board.CardProperties {
		if p.Name == statusPropertyName {
			statusPropID = p.ID
			break
		}
	}

	phases := map[int][]domain.Task{}
	for _, card := range cards {
		phaseNum := 1
		if m := phaseCodePattern.FindStringSubmatch(card.Title); m != nil {
			phaseNum = atoiTwoDigit(m[1])
		}

		taskID := taskCodePattern.FindString(card.Title)
		if taskID == "" {
			taskID = fmt.Sprintf("T%02d%02d", phaseNum, len(phases[phaseNum])+1)
		}

		task := domain.Task{
			ID:     taskID,
			Title:  card.Title,
			Icon:   card.Icon,
			Status: exportStatus(card, statusPropID, statusNames),
		}
		for _, child := range children[card.ID] {
			switch child.Type {
			case focalboard.BlockTypeCheckbox:
				checked, _ := child.Fields["value"].(bool)
				task.Checklist = append(task.Checklist, domain.ChecklistItem{
					Title:   child.Title,
					Checked: checked,
				})
			case focalboard.BlockTypeText:
				task.ContentBlocks = append(task.ContentBlocks, domain.ContentBlock{
					Type:    domain.BlockText,
					Content: child.Title,
				})
			case focalboard.BlockTypeDivider:
				task.ContentBlocks = append(task.ContentBlocks, domain.ContentBlock{
					Type: domain.BlockDivider,
				})
			}
		}
		phases[phaseNum] = append(phases[phaseNum], task)
		result.TaskCount++
	}

	numbers := make([]int, 0, len(phases))
	for n := range phases {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	tmpl := &domain.Template{
		Meta: domain.Meta{
			ID:          opts.TemplateID,
			Name:        exportName(opts, board),
			Version:     "1.0.0",
			Author:      exportAuthor(opts),
			Description: fmt.Sprintf("Exported from board %s", boardID),
			Created:     e.now().Format(time.RFC3339),
			Updated:     e.now().Format(time.RFC3339),
		},
		Board: domain.BoardConfig{
			Title:          "${PROJECT_NAME} Board",
			Description:    board.Description,
			Icon:           board.Icon,
			Type:           board.Type,
			CardProperties: board.CardProperties,
		},
	}
	for _, n := range numbers {
		tmpl.Phases = append(tmpl.Phases, domain.Phase{
			Number: n,
			Name:   fmt.Sprintf("Phase %d", n),
			Tasks:  phases[n],
		})
	}
	tmpl.Instances.Active = []domain.InstanceRecord{{
		BoardID:         boardID,
		ProjectName:     board.Title,
		Created:         e.now().Format(time.RFC3339),
		TemplateVersion: "1.0.0",
		CurrentVersion:  "1.0.0",
		UpgradeStatus:   string(domain.UpgradeCurrent),
	}}
	result.PhaseCount = len(tmpl.Phases)

	category := opts.Category
	if category == "" {
		category = "exported"
	}
	if err := e.store.Save(tmpl, opts.TemplateID, category); err != nil {
		return result, err
	}
	result.TemplateID = opts.TemplateID

	if e.logger != nil {
		e.logger.WithFields(log.Fields{
			"board_id":    boardID,
			"template_id": opts.TemplateID,
			"phases":      result.PhaseCount,
			"tasks":       result.TaskCount,
		}).Info("board exported")
	}
	return result, nil
}

// groupByParent buckets card content blocks under their card, ordered by
// creation time so exported content keeps its on-board order.
func groupByParent(blocks []focalboard.Block) map[string][]focalboard.Block {
	children := map[string][]focalboard.Block{}
	for _, b := range blocks {
		switch b.Type {
		case focalboard.BlockTypeCheckbox, focalboard.BlockTypeText, focalboard.BlockTypeDivider:
			children[b.ParentID] = append(children[b.ParentID], b)
		}
	}
	for parent := range children {
		bs := children[parent]
		sort.SliceStable(bs, func(i, j int) bool { return bs[i].CreateAt < bs[j].CreateAt })
		children[parent] = bs
	}
	return children
}

// statusReverseIndex maps Status option ids back to authoring-side status
// values: lowercased, spaces as hyphens.
func statusReverseIndex(props []domain.PropertyDefinition) map[string]domain.TaskStatus {
	index := map[string]domain.TaskStatus{}
	for _, p := range props {
		if p.Name != statusPropertyName {
			continue
		}
		for _, opt := range p.Options {
			value := strings.ReplaceAll(strings.ToLower(opt.Value), " ", "-")
			index[opt.ID] = domain.TaskStatus(value)
		}
	}
	return index
}

func exportStatus(card focalboard.Card, statusPropID string, statusNames map[string]domain.TaskStatus) domain.TaskStatus {
	if statusPropID == "" {
		return domain.StatusNotStarted
	}
	if status, ok := statusNames[card.StringProperty(statusPropID)]; ok && status.Valid() {
		return status
	}
	return domain.StatusNotStarted
}

func exportName(opts ExportOptions, board *focalboard.Board) string {
	if opts.Name != "" {
		return opts.Name
	}
	if board.Title != "" {
		return board.Title
	}
	return opts.TemplateID
}

func exportAuthor(opts ExportOptions) string {
	if opts.Author != "" {
		return opts.Author
	}
	return "Unknown"
}

func atoiTwoDigit(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		n = 1
	}
	return n
}
