package domain

// UpgradeStatus describes how a board relates to its template's version.
type UpgradeStatus string

const (
	UpgradeCurrent   UpgradeStatus = "current"
	UpgradeAvailable UpgradeStatus = "available"
	UpgradeSkipped   UpgradeStatus = "skipped"
)

func (s UpgradeStatus) Valid() bool {
	switch s {
	case UpgradeCurrent, UpgradeAvailable, UpgradeSkipped:
		return true
	}
	return false
}

// Tracking is the three-field record linking a board to the template that
// produced it. Tracked is false when the board carries no tracking keys.
type Tracking struct {
	Tracked          bool          `json:"tracked"`
	TemplateID       string        `json:"templateId,omitempty"`
	TemplateVersion  string        `json:"templateVersion,omitempty"`
	UpgradeStatus    UpgradeStatus `json:"upgradeStatus,omitempty"`
	CurrentVersion   string        `json:"currentVersion,omitempty"`
	UpgradeAvailable bool          `json:"upgradeAvailable,omitempty"`
}

// SyncDirection selects which side of a drift a reconcile run corrects.
type SyncDirection string

const (
	TemplateToBoard SyncDirection = "template_to_board"
	BoardToTemplate SyncDirection = "board_to_template"
)

func (d SyncDirection) Valid() bool {
	return d == TemplateToBoard || d == BoardToTemplate
}

// SyncReport is the outcome of one reconcile run. The same shape is
// returned for both directions and for dry runs.
type SyncReport struct {
	TemplateID        string        `json:"templateId"`
	BoardID           string        `json:"boardId"`
	Direction         SyncDirection `json:"direction"`
	DryRun            bool          `json:"dryRun"`
	TemplateTaskCount int           `json:"templateTaskCount"`
	BoardCardCount    int           `json:"boardCardCount"`
	Missing           []string      `json:"missing"`
	Extra             []string      `json:"extra"`
	ActionsTaken      []string      `json:"actionsTaken"`
	Errors            []string      `json:"errors,omitempty"`
}
