package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"aegis/internal/config"
	"aegis/internal/org"
)

// cardTTL is how long a built agent card is served before rebuilding.
const cardTTL = 30 * time.Second

// Skill is one advertised capability on the agent card.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// AgentCard is the discovery document served at the well-known paths.
type AgentCard struct {
	Name                       string   `json:"name"`
	Description                string   `json:"description"`
	URL                        string   `json:"url"`
	Version                    string   `json:"version"`
	SupportedProtocolVersions  []string `json:"supportedProtocolVersions"`
	Capabilities               struct {
		Streaming         bool `json:"streaming"`
		PushNotifications bool `json:"pushNotifications"`
	} `json:"capabilities"`
	Authentication struct {
		Schemes []string `json:"schemes"`
	} `json:"authentication"`
	DefaultInputModes  []string `json:"defaultInputModes"`
	DefaultOutputModes []string `json:"defaultOutputModes"`
	Skills             []Skill  `json:"skills"`
}

// planLibrary is the on-disk plan catalogue.
type planLibrary struct {
	Plans []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"plans"`
}

// cardBuilder assembles and caches agent cards per requested base URL.
type cardBuilder struct {
	cfg   config.Gateway
	roles *org.RoleLibrary
	cache *expirable.LRU[string, *AgentCard]
}

func newCardBuilder(cfg config.Gateway, roles *org.RoleLibrary) *cardBuilder {
	return &cardBuilder{
		cfg:   cfg,
		roles: roles,
		cache: expirable.NewLRU[string, *AgentCard](8, nil, cardTTL),
	}
}

// Build returns the agent card for the given externally visible base URL.
func (b *cardBuilder) Build(baseURL string) *AgentCard {
	if card, ok := b.cache.Get(baseURL); ok {
		return card
	}

	card := b.build(baseURL)
	b.cache.Add(baseURL, card)
	return card
}

func (b *cardBuilder) build(baseURL string) *AgentCard {
	card := &AgentCard{
		Name:                      b.cfg.AgentName,
		Description:               b.cfg.AgentDescription,
		URL:                       baseURL,
		Version:                   "1.0.0",
		SupportedProtocolVersions: []string{"0.3"},
		DefaultInputModes:         []string{"text"},
		DefaultOutputModes:        []string{"text"},
	}
	card.Capabilities.Streaming = true
	card.Capabilities.PushNotifications = false
	card.Authentication.Schemes = []string{string(b.cfg.Authentication.Scheme)}
	card.Skills = b.buildSkills()
	return card
}

// buildSkills unions the plan library with role BST domains the plans leave
// uncovered. Any failure falls back to a single generic skill rather than an
// empty card.
func (b *cardBuilder) buildSkills() []Skill {
	var skills []Skill
	covered := map[string]bool{}

	if library := b.loadPlanLibrary(); library != nil {
		for _, plan := range library.Plans {
			skills = append(skills, Skill{
				ID:          plan.ID,
				Name:        plan.Name,
				Description: plan.Description,
				Tags:        []string{"plan"},
			})
			covered[plan.ID] = true
		}
	}

	for _, profile := range b.roles.All() {
		for _, domain := range profile.Capabilities.BSTDomains {
			if covered[domain] {
				continue
			}
			covered[domain] = true
			skills = append(skills, Skill{
				ID:          "domain-" + domain,
				Name:        domain,
				Description: fmt.Sprintf("Handles %s requests (role: %s)", domain, profile.RoleName),
				Tags:        []string{"domain"},
			})
		}
	}

	if len(skills) == 0 {
		skills = []Skill{{
			ID:          "general",
			Name:        "General task execution",
			Description: "Accepts free-form task requests.",
		}}
	}
	return skills
}

func (b *cardBuilder) loadPlanLibrary() *planLibrary {
	if b.cfg.PlanLibraryPath == "" {
		return nil
	}
	data, err := os.ReadFile(b.cfg.PlanLibraryPath)
	if err != nil {
		return nil
	}
	var library planLibrary
	if err := json.Unmarshal(data, &library); err != nil {
		return nil
	}
	return &library
}
