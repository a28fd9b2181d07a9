package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// TaskStatus is the authoring-side status of a template task.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not-started"
	StatusInProgress TaskStatus = "in-progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusBlocked, StatusCompleted:
		return true
	}
	return false
}

// DisplayValue converts the hyphenated status into the option value used by
// board select properties ("not-started" -> "Not Started").
func (s TaskStatus) DisplayValue() string {
	parts := strings.Split(string(s), "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// ContentBlockType tags the variants of a template content block.
type ContentBlockType string

const (
	BlockText    ContentBlockType = "text"
	BlockDivider ContentBlockType = "divider"
)

// ContentBlock is one authored content element of a task: free text or a
// visual divider.
type ContentBlock struct {
	Type    ContentBlockType `json:"type"`
	Content string           `json:"content,omitempty"`
}

// ChecklistItem is a single checklist entry on a task. Older documents store
// bare strings; those are normalized to an unchecked item at decode time.
type ChecklistItem struct {
	Title   string `json:"title"`
	Checked bool   `json:"checked"`
}

func (c *ChecklistItem) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var title string
		if err := json.Unmarshal(data, &title); err != nil {
			return err
		}
		c.Title = title
		c.Checked = false
		return nil
	}
	type plain ChecklistItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ChecklistItem(p)
	return nil
}

// Task is one unit of work on the authoring side. After instantiation it
// becomes a card on a board.
type Task struct {
	ID            string          `json:"id,omitempty"`
	Title         string          `json:"title"`
	Icon          string          `json:"icon,omitempty"`
	Status        TaskStatus      `json:"status,omitempty"`
	Checklist     []ChecklistItem `json:"checklist,omitempty"`
	ContentBlocks []ContentBlock  `json:"content_blocks,omitempty"`
}

// Phase groups tasks under a numbered stage of the methodology.
type Phase struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Icon   string `json:"icon,omitempty"`
	Leader string `json:"leader,omitempty"`
	Tasks  []Task `json:"tasks"`
}

// PropertyOption maps an opaque option id to its display value. The board
// backend stores only option ids, never display text.
type PropertyOption struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Color string `json:"color,omitempty"`
}

// PropertyDefinition describes one card property in the board schema.
type PropertyDefinition struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Type    string           `json:"type"`
	Options []PropertyOption `json:"options,omitempty"`
}

// BoardConfig is the board shell a template materializes into.
type BoardConfig struct {
	Title          string               `json:"title"`
	Description    string               `json:"description,omitempty"`
	Icon           string               `json:"icon,omitempty"`
	Type           string               `json:"type,omitempty"`
	CardProperties []PropertyDefinition `json:"cardProperties"`
}

// Meta identifies and describes a template. Identity is Meta.ID.
type Meta struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Complexity  string   `json:"complexity,omitempty"`
	Created     string   `json:"created,omitempty"`
	Updated     string   `json:"updated,omitempty"`
}

// Template is the versioned declarative document a board is scaffolded from.
type Template struct {
	Meta      Meta        `json:"meta"`
	Board     BoardConfig `json:"board"`
	Phases    []Phase     `json:"phases"`
	Feedback  Feedback    `json:"feedback,omitempty"`
	Instances Instances   `json:"instances,omitempty"`
}

// TaskCount returns the total number of tasks across all phases.
func (t *Template) TaskCount() int {
	n := 0
	for _, p := range t.Phases {
		n += len(p.Tasks)
	}
	return n
}

// Tasks returns every task in template order, phases first.
func (t *Template) Tasks() []Task {
	out := make([]Task, 0, t.TaskCount())
	for _, p := range t.Phases {
		out = append(out, p.Tasks...)
	}
	return out
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidationError reports why a template document was rejected at load time.
type ValidationError struct {
	TemplateID string
	Problems   []string
}

func (e *ValidationError) Error() string {
	id := e.TemplateID
	if id == "" {
		id = "(unknown)"
	}
	return fmt.Sprintf("template %s invalid: %s", id, strings.Join(e.Problems, "; "))
}

// Validate checks structural invariants of the document. Invalid documents
// are rejected with a typed error rather than silently accepted.
func (t *Template) Validate() error {
	var problems []string
	if t.Meta.ID == "" {
		problems = append(problems, "meta.id is required")
	}
	if t.Meta.Name == "" {
		problems = append(problems, "meta.name is required")
	}
	if t.Meta.Version != "" && !versionPattern.MatchString(t.Meta.Version) {
		problems = append(problems, fmt.Sprintf("meta.version %q is not of the form X.Y.Z", t.Meta.Version))
	}
	for pi, phase := range t.Phases {
		for ti, task := range phase.Tasks {
			if task.Title == "" {
				problems = append(problems, fmt.Sprintf("phases[%d].tasks[%d]: title is required", pi, ti))
			}
			if task.Status != "" && !task.Status.Valid() {
				problems = append(problems, fmt.Sprintf("phases[%d].tasks[%d]: unknown status %q", pi, ti, task.Status))
			}
			for bi, block := range task.ContentBlocks {
				if block.Type != BlockText && block.Type != BlockDivider {
					problems = append(problems, fmt.Sprintf("phases[%d].tasks[%d].content_blocks[%d]: unknown type %q", pi, ti, bi, block.Type))
				}
			}
		}
	}
	for i, p := range t.Feedback.Pending {
		if p.Status != "" && !p.Status.Valid() {
			problems = append(problems, fmt.Sprintf("feedback.pending_proposals[%d]: unknown status %q", i, p.Status))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{TemplateID: t.Meta.ID, Problems: problems}
	}
	return nil
}
