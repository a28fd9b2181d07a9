// Package engine materializes template documents into live boards and
// reconciles existing boards against template evolution.
package engine

import (
	"context"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/templates"
)

// BoardClient is the slice of the board backend the engine consumes. The
// backend itself (storage, permissions, multi-user editing) is an external
// collaborator.
type BoardClient interface {
	CreateBoard(ctx context.Context, board focalboard.Board) (*focalboard.Board, error)
	GetBoard(ctx context.Context, boardID string) (*focalboard.Board, error)
	PatchBoard(ctx context.Context, boardID string, patch focalboard.BoardPatch) error
	ListCards(ctx context.Context, boardID string) ([]focalboard.Card, error)
	CreateCard(ctx context.Context, boardID string, card focalboard.CardRequest) (*focalboard.Card, error)
	ListBlocks(ctx context.Context, boardID string) ([]focalboard.Block, error)
	InsertBlocks(ctx context.Context, boardID string, blocks []focalboard.Block) error
	PatchBlock(ctx context.Context, boardID, blockID string, patch focalboard.BlockPatch) error
}

// TemplateStore abstracts template persistence for the engine.
type TemplateStore interface {
	Discover(category string) ([]templates.Summary, []templates.Warning)
	Locate(id string) (templates.Summary, error)
	Load(id string) (*domain.Template, error)
	Save(tmpl *domain.Template, id, category string) error
}
