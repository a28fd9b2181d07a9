package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/templates"
)

type savedTemplate struct {
	tmpl     *domain.Template
	id       string
	category string
}

type fakeStore struct {
	mu        sync.Mutex
	templates map[string]*domain.Template
	saved     []savedTemplate
	loadErr   error
	saveErr   error
}

func newFakeStore(tmpls ...*domain.Template) *fakeStore {
	s := &fakeStore{templates: map[string]*domain.Template{}}
	for _, t := range tmpls {
		s.templates[t.Meta.ID] = t
	}
	return s
}

func (s *fakeStore) Discover(category string) ([]templates.Summary, []templates.Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []templates.Summary
	for id, t := range s.templates {
		out = append(out, templates.Summary{ID: id, Name: t.Meta.Name, Version: t.Meta.Version})
	}
	return out, nil
}

func (s *fakeStore) Locate(id string) (templates.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return templates.Summary{}, templates.ErrNotFound
	}
	return templates.Summary{ID: id, Name: t.Meta.Name, Version: t.Meta.Version}, nil
}

func (s *fakeStore) Load(id string) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	t, ok := s.templates[id]
	if !ok {
		return nil, templates.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) Save(tmpl *domain.Template, id, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.templates[id] = tmpl
	s.saved = append(s.saved, savedTemplate{tmpl: tmpl, id: id, category: category})
	return nil
}

type fakeClient struct {
	mu     sync.Mutex
	nextID int

	boards  map[string]*focalboard.Board
	cards   map[string][]focalboard.Card
	blocks  map[string][]focalboard.Block
	patches map[string][]focalboard.BlockPatch

	boardPatches []focalboard.BoardPatch

	createBoardErr error
	getBoardErr    error
	patchBoardErr  error
	listCardsErr   error
	insertErr      error
	patchBlockErr  error

	// createCardErr fails card creation for matching titles.
	createCardErr func(title string) error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		boards:  map[string]*focalboard.Board{},
		cards:   map[string][]focalboard.Card{},
		blocks:  map[string][]focalboard.Block{},
		patches: map[string][]focalboard.BlockPatch{},
	}
}

func (c *fakeClient) id(prefix string) string {
	c.nextID++
	return fmt.Sprintf("%s-%d", prefix, c.nextID)
}

func (c *fakeClient) CreateBoard(_ context.Context, board focalboard.Board) (*focalboard.Board, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createBoardErr != nil {
		return nil, c.createBoardErr
	}
	board.ID = c.id("board")
	c.boards[board.ID] = &board
	return &board, nil
}

func (c *fakeClient) GetBoard(_ context.Context, boardID string) (*focalboard.Board, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getBoardErr != nil {
		return nil, c.getBoardErr
	}
	b, ok := c.boards[boardID]
	if !ok {
		return nil, &focalboard.APIError{Status: 404, Message: "Resource not found"}
	}
	return b, nil
}

func (c *fakeClient) PatchBoard(_ context.Context, boardID string, patch focalboard.BoardPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.patchBoardErr != nil {
		return c.patchBoardErr
	}
	b, ok := c.boards[boardID]
	if !ok {
		return &focalboard.APIError{Status: 404, Message: "Resource not found"}
	}
	if b.Properties == nil {
		b.Properties = map[string]any{}
	}
	for k, v := range patch.UpdatedProperties {
		b.Properties[k] = v
	}
	c.boardPatches = append(c.boardPatches, patch)
	return nil
}

func (c *fakeClient) ListCards(_ context.Context, boardID string) ([]focalboard.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listCardsErr != nil {
		return nil, c.listCardsErr
	}
	return append([]focalboard.Card{}, c.cards[boardID]...), nil
}

func (c *fakeClient) CreateCard(_ context.Context, boardID string, req focalboard.CardRequest) (*focalboard.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createCardErr != nil {
		if err := c.createCardErr(req.Title); err != nil {
			return nil, err
		}
	}
	card := focalboard.Card{
		ID:         c.id("card"),
		BoardID:    boardID,
		Title:      req.Title,
		Icon:       req.Icon,
		Properties: req.Properties,
	}
	c.cards[boardID] = append(c.cards[boardID], card)
	return &card, nil
}

func (c *fakeClient) ListBlocks(_ context.Context, boardID string) ([]focalboard.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]focalboard.Block{}, c.blocks[boardID]...), nil
}

func (c *fakeClient) InsertBlocks(_ context.Context, boardID string, blocks []focalboard.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return c.insertErr
	}
	c.blocks[boardID] = append(c.blocks[boardID], blocks...)
	return nil
}

func (c *fakeClient) PatchBlock(_ context.Context, boardID, blockID string, patch focalboard.BlockPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.patchBlockErr != nil {
		return c.patchBlockErr
	}
	c.patches[blockID] = append(c.patches[blockID], patch)
	return nil
}

func testTemplate() *domain.Template {
	return &domain.Template{
		Meta: domain.Meta{ID: "bacon-framework", Name: "Bacon Framework", Version: "2.1.0"},
		Board: domain.BoardConfig{
			Title: "${PROJECT_NAME} Delivery Board",
			Icon:  "🚀",
			CardProperties: []domain.PropertyDefinition{
				{
					ID:   "prop-status",
					Name: "Status",
					Type: "select",
					Options: []domain.PropertyOption{
						{ID: "opt-ns", Value: "Not Started"},
						{ID: "opt-ip", Value: "In Progress"},
						{ID: "opt-done", Value: "Completed"},
					},
				},
				{
					ID:   "prop-phase",
					Name: "Phase",
					Type: "select",
					Options: []domain.PropertyOption{
						{ID: "opt-p1", Value: "Phase 1"},
						{ID: "opt-p2", Value: "Phase 2"},
					},
				},
				{ID: "prop-taskid", Name: "Task ID", Type: "text"},
			},
		},
		Phases: []domain.Phase{
			{
				Number: 1,
				Name:   "Discovery",
				Tasks: []domain.Task{
					{
						ID:     "T0101",
						Title:  "P0001-T0101: Kickoff ${PROJECT_NAME}",
						Status: domain.StatusNotStarted,
						Checklist: []domain.ChecklistItem{
							{Title: "Invite stakeholders"},
							{Title: "Book room", Checked: true},
						},
						ContentBlocks: []domain.ContentBlock{
							{Type: domain.BlockText, Content: "Kickoff notes for ${PROJECT_NAME}"},
							{Type: domain.BlockDivider},
						},
					},
					{ID: "T0102", Title: "P0001-T0102: Collect requirements", Status: domain.StatusInProgress},
				},
			},
			{
				Number: 2,
				Name:   "Build",
				Tasks: []domain.Task{
					{ID: "T0201", Title: "P0002-T0201: Implement core", Status: domain.StatusNotStarted},
				},
			},
		},
	}
}
