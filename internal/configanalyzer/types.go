package configanalyzer

import (
	"context"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// ConfigType classifies a configuration entity.
type ConfigType string

const (
	TypeEnvVar           ConfigType = "env_var"
	TypeAPIEndpoint      ConfigType = "api_endpoint"
	TypeFrontendConfig   ConfigType = "frontend_config"
	TypeDatabaseSetting  ConfigType = "database_setting"
	TypeDeploymentConfig ConfigType = "deployment_config"
)

// Configuration is a named piece of system setup inferred from the corpus.
type Configuration struct {
	Type            ConfigType `json:"type"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Location        string     `json:"location"`
	PotentialIssues []string   `json:"potentialIssues,omitempty"`
	FixStrategies   []string   `json:"fixStrategies,omitempty"`
}

// key identifies a configuration for de-duplication.
func (c Configuration) key() string {
	return string(c.Type) + "|" + c.Name
}

// Scored is a configuration with its relevance to one ticket.
type Scored struct {
	Configuration
	Score           float64  `json:"score"`
	MatchedKeywords []string `json:"matchedKeywords,omitempty"`
}

// Disambiguator picks one configuration among several high-scoring ones.
// ok is false when it has no opinion.
type Disambiguator interface {
	Disambiguate(ctx context.Context, t *ticket.Ticket, candidates []Configuration) (choice Configuration, ok bool, err error)
}

// NopDisambiguator never has an opinion.
type NopDisambiguator struct{}

func (NopDisambiguator) Disambiguate(context.Context, *ticket.Ticket, []Configuration) (Configuration, bool, error) {
	return Configuration{}, false, nil
}

// WorkspaceInspector reports the version-control state of a source tree.
type WorkspaceInspector interface {
	Snapshot(ctx context.Context, root string) (*autopatch.WorkspaceState, error)
}
