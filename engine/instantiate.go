package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/templates"
)

const (
	defaultBoardIcon = "🥓"
	defaultTaskIcon  = "📋"
	defaultBoardType = "P"

	statusPropertyName = "Status"
	phasePropertyName  = "Phase"
	taskIDPropertyName = "Task ID"
)

// InstantiateResult reports one instantiate run. Errors is advisory: the
// batch always completes, and per-task failures never abort it.
type InstantiateResult struct {
	BoardID      string   `json:"boardId"`
	BoardTitle   string   `json:"boardTitle"`
	CreatedCount int      `json:"createdCount"`
	ViewCreated  bool     `json:"viewCreated"`
	Errors       []string `json:"errors"`
}

// Instantiator materializes a template into a live board: board shell,
// cards per task, checklist and content child blocks, a default view, and
// an instance record written back into the template document.
type Instantiator struct {
	store   TemplateStore
	client  BoardClient
	logger  *log.Logger
	workers int
	now     func() time.Time
}

// NewInstantiator creates an instantiator. workers bounds how many cards
// are created concurrently; values below 1 fall back to sequential
// creation.
func NewInstantiator(store TemplateStore, client BoardClient, logger *log.Logger, workers int) *Instantiator {
	if workers < 1 {
		workers = 1
	}
	return &Instantiator{
		store:   store,
		client:  client,
		logger:  logger,
		workers: workers,
		now:     time.Now,
	}
}

// propertyIndex resolves semantic property names and option display values
// to the opaque ids the backend requires.
type propertyIndex struct {
	byName  map[string]string            // property name -> property id
	options map[string]map[string]string // property name -> option value -> option id
}

func indexProperties(props []domain.PropertyDefinition) propertyIndex {
	idx := propertyIndex{
		byName:  make(map[string]string, len(props)),
		options: make(map[string]map[string]string),
	}
	for _, p := range props {
		idx.byName[p.Name] = p.ID
		if len(p.Options) > 0 {
			values := make(map[string]string, len(p.Options))
			for _, opt := range p.Options {
				values[opt.Value] = opt.ID
			}
			idx.options[p.Name] = values
		}
	}
	return idx
}

// optionID resolves a property/value pair to an option id, or "" when the
// schema has no match. A miss means the property is simply left unset.
func (idx propertyIndex) optionID(property, value string) string {
	opts, ok := idx.options[property]
	if !ok {
		return ""
	}
	return opts[value]
}

// Instantiate creates a new board from the template with the given id.
// Board creation failure is fatal; every later step degrades into an
// entry on the result's error list instead of aborting the run.
func (ins *Instantiator) Instantiate(ctx context.Context, templateID, projectName, teamID string, vars map[string]string) (InstantiateResult, error) {
	var result InstantiateResult

	tmpl, err := ins.store.Load(templateID)
	if err != nil {
		return result, err
	}

	merged := map[string]string{
		"PROJECT_NAME": projectName,
		"CURRENT_DATE": ins.now().Format("2006-01-02"),
	}
	for k, v := range vars {
		merged[k] = v
	}

	if teamID == "" {
		teamID = "0"
	}

	boardTitle := tmpl.Board.Title
	if boardTitle == "" {
		boardTitle = "${PROJECT_NAME} Board"
	}
	boardTitle = templates.Substitute(boardTitle, merged)

	boardType := tmpl.Board.Type
	if boardType == "" {
		boardType = defaultBoardType
	}
	boardIcon := tmpl.Board.Icon
	if boardIcon == "" {
		boardIcon = defaultBoardIcon
	}

	board, err := ins.client.CreateBoard(ctx, focalboard.Board{
		TeamID:          teamID,
		Type:            boardType,
		Title:           boardTitle,
		Description:     templates.Substitute(tmpl.Board.Description, merged),
		Icon:            boardIcon,
		ShowDescription: true,
		CardProperties:  tmpl.Board.CardProperties,
	})
	if err != nil {
		return result, fmt.Errorf("create board: %w", err)
	}
	result.BoardID = board.ID
	result.BoardTitle = boardTitle

	// Tasks reference properties by semantic name and value; the backend
	// wants opaque ids. Index the schema the backend actually resolved.
	schema := board.CardProperties
	if len(schema) == 0 {
		schema = tmpl.Board.CardProperties
	}
	props := indexProperties(schema)

	created, taskErrs := ins.createCards(ctx, board.ID, tmpl, props, merged)
	result.CreatedCount = created
	result.Errors = append(result.Errors, taskErrs...)

	if viewErr := ins.createDefaultView(ctx, board.ID, props); viewErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("default view: %v", viewErr))
	} else {
		result.ViewCreated = true
	}

	version := tmpl.Meta.Version
	if version == "" {
		version = "1.0.0"
	}
	if trackErr := ins.client.PatchBoard(ctx, board.ID, focalboard.BoardPatch{
		UpdatedProperties: map[string]any{
			propTemplateID:      templateID,
			propTemplateVersion: version,
			propUpgradeStatus:   string(domain.UpgradeCurrent),
		},
	}); trackErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("board tracking: %v", trackErr))
	}

	ins.recordInstance(tmpl, templateID, board.ID, projectName, &result)

	if ins.logger != nil {
		ins.logger.WithFields(log.Fields{
			"template_id":   templateID,
			"board_id":      board.ID,
			"cards_created": result.CreatedCount,
			"errors":        len(result.Errors),
		}).Info("template instantiated")
	}
	return result, nil
}

type cardJob struct {
	index int
	phase domain.Phase
	task  domain.Task
}

type cardOutcome struct {
	created bool
	err     string
}

// createCards creates one card per template task on a small fixed-size
// worker pool. Failure of one task never aborts the batch; outcomes are
// collected per template position so the error list keeps template order.
func (ins *Instantiator) createCards(ctx context.Context, boardID string, tmpl *domain.Template, props propertyIndex, vars map[string]string) (int, []string) {
	jobs := make([]cardJob, 0, tmpl.TaskCount())
	for _, phase := range tmpl.Phases {
		for _, task := range phase.Tasks {
			jobs = append(jobs, cardJob{index: len(jobs), phase: phase, task: task})
		}
	}

	outcomes := make([]cardOutcome, len(jobs))
	jobCh := make(chan cardJob)
	var wg sync.WaitGroup
	for i := 0; i < ins.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				outcomes[job.index] = ins.createCard(ctx, boardID, job, props, vars)
			}
		}()
	}
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	created := 0
	var errs []string
	for _, o := range outcomes {
		if o.created {
			created++
		}
		if o.err != "" {
			errs = append(errs, o.err)
		}
	}
	return created, errs
}

func (ins *Instantiator) createCard(ctx context.Context, boardID string, job cardJob, props propertyIndex, vars map[string]string) cardOutcome {
	task := job.task
	title := templates.Substitute(task.Title, vars)
	icon := task.Icon
	if icon == "" {
		icon = defaultTaskIcon
	}

	properties := map[string]any{}
	status := task.Status
	if status == "" {
		status = domain.StatusNotStarted
	}
	if id := props.optionID(statusPropertyName, status.DisplayValue()); id != "" {
		properties[props.byName[statusPropertyName]] = id
	}
	if id := props.optionID(phasePropertyName, fmt.Sprintf("Phase %d", job.phase.Number)); id != "" {
		properties[props.byName[phasePropertyName]] = id
	}
	// Stamping the task id onto the card gives sync a stable join key.
	if task.ID != "" {
		if propID, ok := props.byName[taskIDPropertyName]; ok {
			properties[propID] = task.ID
		}
	}

	card, err := ins.client.CreateCard(ctx, boardID, focalboard.CardRequest{
		Title:      title,
		Icon:       icon,
		Properties: properties,
	})
	if err != nil {
		return cardOutcome{err: fmt.Sprintf("task %q: %v", title, err)}
	}

	if err := ins.attachContent(ctx, boardID, card, task, vars); err != nil {
		// The card exists; only its content failed.
		return cardOutcome{created: true, err: fmt.Sprintf("task %q: %v", title, err)}
	}
	return cardOutcome{created: true}
}

// attachContent materializes checklist items and content blocks as child
// blocks and appends their ids to the card's content ordering. The append
// is not idempotent; it only ever targets a freshly created card.
func (ins *Instantiator) attachContent(ctx context.Context, boardID string, card *focalboard.Card, task domain.Task, vars map[string]string) error {
	if len(task.Checklist) == 0 && len(task.ContentBlocks) == 0 {
		return nil
	}

	now := ins.now().UnixMilli()
	blocks := make([]focalboard.Block, 0, len(task.Checklist)+len(task.ContentBlocks))
	order := make([]string, 0, cap(blocks))

	for _, item := range task.Checklist {
		id := focalboard.NewBlockID()
		blocks = append(blocks, focalboard.Block{
			ID:       id,
			Type:     focalboard.BlockTypeCheckbox,
			ParentID: card.ID,
			BoardID:  boardID,
			Title:    templates.Substitute(item.Title, vars),
			Fields:   map[string]any{"value": item.Checked},
			Schema:   1,
			CreateAt: now,
			UpdateAt: now,
		})
		order = append(order, id)
	}

	for _, cb := range task.ContentBlocks {
		id := focalboard.NewBlockID()
		block := focalboard.Block{
			ID:       id,
			ParentID: card.ID,
			BoardID:  boardID,
			Fields:   map[string]any{},
			Schema:   1,
			CreateAt: now,
			UpdateAt: now,
		}
		if cb.Type == domain.BlockDivider {
			block.Type = focalboard.BlockTypeDivider
		} else {
			block.Type = focalboard.BlockTypeText
			block.Title = templates.Substitute(cb.Content, vars)
		}
		blocks = append(blocks, block)
		order = append(order, id)
	}

	if err := ins.client.InsertBlocks(ctx, boardID, blocks); err != nil {
		return fmt.Errorf("create content blocks: %w", err)
	}

	contentOrder := append(append([]string{}, card.ContentOrder...), order...)
	if err := ins.client.PatchBlock(ctx, boardID, card.ID, focalboard.BlockPatch{
		UpdatedFields: map[string]any{"contentOrder": contentOrder},
	}); err != nil {
		return fmt.Errorf("update content order: %w", err)
	}
	return nil
}

// createDefaultView adds one table view with the Status property visible.
// Boards whose schema has no Status property get no view.
func (ins *Instantiator) createDefaultView(ctx context.Context, boardID string, props propertyIndex) error {
	statusPropID, ok := props.byName[statusPropertyName]
	if !ok {
		return nil
	}

	now := ins.now().UnixMilli()
	view := focalboard.Block{
		ID:       focalboard.NewBlockID(),
		Type:     focalboard.BlockTypeView,
		ParentID: boardID,
		BoardID:  boardID,
		Title:    "Task Overview",
		Schema:   1,
		CreateAt: now,
		UpdateAt: now,
		Fields: map[string]any{
			"viewType":           "table",
			"cardOrder":          []string{},
			"collapsedOptionIds": []string{},
			"columnCalculations": map[string]any{},
			"columnWidths":       map[string]any{},
			"defaultTemplateId":  "",
			"filter":             map[string]any{"filters": []any{}, "operation": "and"},
			"groupById":          "",
			"hiddenOptionIds":    []string{},
			"kanbanCalculations": map[string]any{},
			"sortOptions":        []any{},
			"visibleOptionIds":   []string{},
			"visiblePropertyIds": []string{statusPropID},
		},
	}
	return ins.client.InsertBlocks(ctx, boardID, []focalboard.Block{view})
}

// recordInstance appends the instance record and writes the template back.
// A failed save degrades into a reported error; the board already exists.
func (ins *Instantiator) recordInstance(tmpl *domain.Template, templateID, boardID, projectName string, result *InstantiateResult) {
	version := tmpl.Meta.Version
	if version == "" {
		version = "1.0.0"
	}
	tmpl.Instances.Active = append(tmpl.Instances.Active, domain.InstanceRecord{
		BoardID:         boardID,
		ProjectName:     projectName,
		Created:         ins.now().Format(time.RFC3339),
		TemplateVersion: version,
		CurrentVersion:  version,
		UpgradeStatus:   string(domain.UpgradeCurrent),
	})
	if err := ins.store.Save(tmpl, templateID, ""); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("record instance: %v", err))
	}
}
