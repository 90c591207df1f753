// Package autopatch holds the remediation candidate produced by the matchers
// and the plan artifacts persisted for each candidate.
package autopatch

import (
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
)

// ActionType identifies a resolution action.
type ActionType string

const (
	ActionAutopatchPlan  ActionType = "autopatch_plan"
	ActionManualFollowup ActionType = "manual_followup"
	ActionHetznerCommand ActionType = "hetzner_command"
	ActionSupabaseQuery  ActionType = "supabase_query"
	ActionUXUpdate       ActionType = "ux_update"
)

// MaxFixNameLength bounds PlanPayload.FixName.
const MaxFixNameLength = 48

// Candidate is a matched remediation for one ticket.
type Candidate struct {
	// PatternID is the stable identifier of the rule or configuration that matched.
	PatternID string `json:"patternId"`

	// Summary is the internal description of the problem.
	Summary string `json:"summary"`

	// CustomerMessage is posted to the customer when remediation starts.
	CustomerMessage string `json:"customerMessage"`

	Actions      []Action         `json:"actions"`
	Instructions instruction.List `json:"autoFixInstructions,omitempty"`
}

// PlanAction returns the first autopatch_plan action, if any.
func (c *Candidate) PlanAction() (Action, bool) {
	for _, a := range c.Actions {
		if a.Type == ActionAutopatchPlan {
			return a, true
		}
	}
	return Action{}, false
}

// HasInstructions reports whether the candidate carries executable work.
func (c *Candidate) HasInstructions() bool {
	return c != nil && len(c.Instructions) > 0
}

// Action is one step of a resolution plan.
type Action struct {
	Type        ActionType   `json:"type"`
	Description string       `json:"description"`
	Payload     *PlanPayload `json:"payload,omitempty"`
}

// PlanPayload describes an autopatch plan.
type PlanPayload struct {
	FixName     string       `json:"fixName"`
	Goal        string       `json:"goal"`
	TargetFiles []string     `json:"targetFiles,omitempty"`
	Steps       []string     `json:"steps,omitempty"`
	Validation  []string     `json:"validation,omitempty"`
	Rollout     []string     `json:"rollout,omitempty"`
	SystemState *SystemState `json:"systemState,omitempty"`
}

// SystemState captures the pre-fix state of the files, environment and
// dependencies a plan touches.
type SystemState struct {
	FileContents   map[string]string `json:"currentFileContents,omitempty"`
	Environment    map[string]string `json:"environmentVariables,omitempty"`
	Dependencies   map[string]string `json:"dependencies,omitempty"`
	Configurations map[string]string `json:"configurations,omitempty"`
	KnowledgeRefs  []string          `json:"knowledgeRefs,omitempty"`
	Workspace      *WorkspaceState   `json:"workspace,omitempty"`
}

// IsEmpty reports whether nothing was captured.
func (s *SystemState) IsEmpty() bool {
	return s == nil || (len(s.FileContents) == 0 && len(s.Environment) == 0 &&
		len(s.Dependencies) == 0 && len(s.Configurations) == 0 &&
		len(s.KnowledgeRefs) == 0 && s.Workspace == nil)
}

// WorkspaceState is the version-control state of the target tree.
type WorkspaceState struct {
	Revision string   `json:"revision"`
	Branch   string   `json:"branch,omitempty"`
	Dirty    []string `json:"dirty,omitempty"`
}

// NewPlanAction builds the autopatch_plan action every candidate carries.
// The fix name is slugged and bounded to MaxFixNameLength.
func NewPlanAction(description string, p PlanPayload) Action {
	p.FixName = Slug(p.FixName, MaxFixNameLength)
	return Action{
		Type:        ActionAutopatchPlan,
		Description: description,
		Payload:     &p,
	}
}
