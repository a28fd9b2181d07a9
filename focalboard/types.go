package focalboard

import "github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"

// Board is the backend's view of a board, including the resolved card
// property schema and the board-level property bag used for tracking keys.
type Board struct {
	ID              string                      `json:"id,omitempty"`
	TeamID          string                      `json:"teamId"`
	Type            string                      `json:"type"`
	Title           string                      `json:"title"`
	Description     string                      `json:"description,omitempty"`
	Icon            string                      `json:"icon,omitempty"`
	ShowDescription bool                        `json:"showDescription"`
	CardProperties  []domain.PropertyDefinition `json:"cardProperties"`
	Properties      map[string]any              `json:"properties,omitempty"`
	CreateAt        int64                       `json:"createAt,omitempty"`
	UpdateAt        int64                       `json:"updateAt,omitempty"`
}

// Property returns the board-level property under key as a string, or ""
// when absent or not a string.
func (b *Board) Property(key string) string {
	if b == nil || b.Properties == nil {
		return ""
	}
	if v, ok := b.Properties[key].(string); ok {
		return v
	}
	return ""
}

// Card is one item on a board. Properties map property ids to values; for
// select properties the value is an option id.
type Card struct {
	ID           string         `json:"id,omitempty"`
	BoardID      string         `json:"boardId,omitempty"`
	Title        string         `json:"title"`
	Icon         string         `json:"icon,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	ContentOrder []string       `json:"contentOrder,omitempty"`
	CreateAt     int64          `json:"createAt,omitempty"`
	UpdateAt     int64          `json:"updateAt,omitempty"`
}

// StringProperty returns the card property under id as a string, or "".
func (c *Card) StringProperty(id string) string {
	if c.Properties == nil {
		return ""
	}
	if v, ok := c.Properties[id].(string); ok {
		return v
	}
	return ""
}

// CardRequest is the payload for creating a card.
type CardRequest struct {
	Title      string         `json:"title"`
	Icon       string         `json:"icon,omitempty"`
	Properties map[string]any `json:"properties"`
}

// BlockType tags board-side child blocks.
type BlockType string

const (
	BlockTypeText     BlockType = "text"
	BlockTypeCheckbox BlockType = "checkbox"
	BlockTypeDivider  BlockType = "divider"
	BlockTypeView     BlockType = "view"
	BlockTypeCard     BlockType = "card"
)

// Block is the backend's generic block record: cards, views, and card
// content are all blocks.
type Block struct {
	ID       string         `json:"id"`
	Type     BlockType      `json:"type"`
	ParentID string         `json:"parentId"`
	BoardID  string         `json:"boardId"`
	Title    string         `json:"title"`
	Fields   map[string]any `json:"fields"`
	Schema   int            `json:"schema"`
	CreateAt int64          `json:"createAt"`
	UpdateAt int64          `json:"updateAt"`
}

// ContentOrder reads the block's contentOrder field. Only card blocks
// carry one.
func (b *Block) ContentOrder() []string {
	raw, ok := b.Fields["contentOrder"].([]any)
	if !ok {
		return nil
	}
	order := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			order = append(order, s)
		}
	}
	return order
}

// BlockPatch updates a block through the blocks API. Patching the card
// block is the reliable way to persist card fields.
type BlockPatch struct {
	Title         *string        `json:"title,omitempty"`
	UpdatedFields map[string]any `json:"updatedFields,omitempty"`
}

// BoardPatch updates board-level fields; UpdatedProperties carries the
// tracking keys as a single write.
type BoardPatch struct {
	UpdatedProperties map[string]any `json:"updatedProperties,omitempty"`
}
