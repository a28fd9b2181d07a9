package domain

// ProposalStatus is the lifecycle state of a feedback proposal. The
// lifecycle is one-way: pending -> approved or rejected, never back.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalPending, ProposalApproved, ProposalRejected:
		return true
	}
	return false
}

// ProposalTarget points a proposal at a location in the template. Phase 0
// means the phase still needs manual assignment by a template author.
type ProposalTarget struct {
	Phase int `json:"phase"`
}

// ProposalChange carries the proposed content. For add_task proposals this
// is the title of the task to add.
type ProposalChange struct {
	Title string `json:"title"`
}

// SourceInstance records which board instance a proposal was raised from.
type SourceInstance struct {
	ID      string `json:"id"`
	Project string `json:"project"`
}

// Votes tallies governance votes on a proposal. Promotion of approved
// proposals into phases happens outside this engine.
type Votes struct {
	Approve []string `json:"approve"`
	Reject  []string `json:"reject"`
}

// FeedbackProposal is a governance record proposing a template change,
// raised from drift observed on a live board.
type FeedbackProposal struct {
	ID              string           `json:"id"`
	Created         string           `json:"created"`
	Type            string           `json:"type"`
	Target          ProposalTarget   `json:"target"`
	Change          ProposalChange   `json:"change"`
	Rationale       string           `json:"rationale,omitempty"`
	SourceInstances []SourceInstance `json:"source_instances,omitempty"`
	Votes           Votes            `json:"votes"`
	Status          ProposalStatus   `json:"status"`
}

// Feedback holds proposals bucketed by lifecycle state.
type Feedback struct {
	Pending  []FeedbackProposal `json:"pending_proposals"`
	Approved []FeedbackProposal `json:"approved_proposals"`
	Rejected []FeedbackProposal `json:"rejected_proposals"`
}

// InstanceRecord links a created board to the template version that
// produced it. Records are appended by the instantiator, never removed.
type InstanceRecord struct {
	BoardID         string `json:"board_id"`
	ProjectName     string `json:"project_name"`
	Created         string `json:"created"`
	TemplateVersion string `json:"template_version"`
	CurrentVersion  string `json:"current_version"`
	UpgradeStatus   string `json:"upgrade_status"`
}

// Instances is the bookkeeping ledger of boards created from a template.
type Instances struct {
	Active   []InstanceRecord `json:"active"`
	Archived []InstanceRecord `json:"archived"`
}
