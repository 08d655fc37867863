// Package config loads gateway, memory, and ontology configuration with
// viper: defaults first, then an optional config file, then AEGIS_* env vars.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AuthScheme selects how the gateway authenticates clients.
type AuthScheme string

const (
	AuthNone   AuthScheme = "none"
	AuthAPIKey AuthScheme = "api-key"
	AuthBearer AuthScheme = "bearer"
)

// Gateway holds the task-gateway server configuration.
type Gateway struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	Authentication struct {
		Scheme AuthScheme `mapstructure:"scheme"`
		APIKey string     `mapstructure:"api_key"`
	} `mapstructure:"authentication"`

	AgentConnection struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
	} `mapstructure:"agent_connection"`

	TaskQueue struct {
		MaxConcurrent      int `mapstructure:"max_concurrent"`
		MaxQueued          int `mapstructure:"max_queued"`
		TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`
	} `mapstructure:"task_queue"`

	SalutePollIntervalSeconds float64 `mapstructure:"salute_poll_interval_seconds"`

	OrgDir          string `mapstructure:"org_dir"`
	ReportsDir      string `mapstructure:"reports_dir"`
	RolesDir        string `mapstructure:"roles_dir"`
	PlanLibraryPath string `mapstructure:"plan_library_path"`

	AgentName        string `mapstructure:"agent_name"`
	AgentDescription string `mapstructure:"agent_description"`
}

// TaskTimeout returns the per-task budget as a duration.
func (g Gateway) TaskTimeout() time.Duration {
	return time.Duration(g.TaskQueue.TaskTimeoutSeconds) * time.Second
}

// PollInterval returns the SALUTE polling cadence as a duration.
func (g Gateway) PollInterval() time.Duration {
	return time.Duration(g.SalutePollIntervalSeconds * float64(time.Second))
}

// Memory holds the classification and maintenance configuration.
type Memory struct {
	LoadBearingKeywords       []string `mapstructure:"load_bearing_keywords"`
	ArchivalThresholdCycles   int      `mapstructure:"archival_threshold_cycles"`
	DeprecationRetentionCycles int     `mapstructure:"deprecation_retention_cycles"`
	MaxInjectedMemories       int      `mapstructure:"max_injected_memories"`
	MaintenanceIntervalLoops  int      `mapstructure:"maintenance_interval_loops"`
	ConflictTopK              int      `mapstructure:"conflict_top_k"`
	SimilarityThreshold       float32  `mapstructure:"similarity_threshold"`
	EnablePurge               bool     `mapstructure:"enable_purge"`

	Deduplication struct {
		Enabled                  bool    `mapstructure:"enabled"`
		SimilarityThreshold      float32 `mapstructure:"similarity_threshold"`
		MaxPairsPerCycle         int     `mapstructure:"max_pairs_per_cycle"`
		AutoDeprecateAgentInferred bool  `mapstructure:"auto_deprecate_agent_inferred"`
	} `mapstructure:"deduplication"`

	RelatedMemories struct {
		TagOverlapThreshold int `mapstructure:"tag_overlap_threshold"`
		MaxRelatedPerMemory int `mapstructure:"max_related_per_memory"`
	} `mapstructure:"related_memories"`
}

// Ontology holds the entity-resolution and graph configuration.
type Ontology struct {
	EntityResolution struct {
		MergeThreshold  float64            `mapstructure:"merge_threshold"`
		ReviewThreshold float64            `mapstructure:"review_threshold"`
		ScoringWeights  map[string]float64 `mapstructure:"scoring_weights"`
		BlockingStrategies []string        `mapstructure:"blocking_strategies"`
	} `mapstructure:"entity_resolution"`

	RelationshipExtraction struct {
		CoOccurrenceMinSources int     `mapstructure:"co_occurrence_min_sources"`
		TemporalWindowDays     int     `mapstructure:"temporal_window_days"`
		MinConfidenceToSurface float64 `mapstructure:"min_confidence_to_surface"`
		PromoteMemoryLinks     bool    `mapstructure:"promote_memory_links"`
	} `mapstructure:"relationship_extraction"`

	Maintenance struct {
		IntervalCycles                 int  `mapstructure:"interval_cycles"`
		CompactDeprecatedRelationships bool `mapstructure:"compact_deprecated_relationships"`
		RelationshipConfidenceUpdate   bool `mapstructure:"relationship_confidence_update"`
		RebuildMergedSummaries         bool `mapstructure:"rebuild_merged_summaries"`
	} `mapstructure:"maintenance"`

	SourceConnectors struct {
		MaxBatchSize int `mapstructure:"max_batch_size"`
	} `mapstructure:"source_connectors"`

	OntologyDir string `mapstructure:"ontology_dir"`
	MemoryDir   string `mapstructure:"memory_dir"`
}

// Config is the root configuration tree.
type Config struct {
	Gateway  Gateway  `mapstructure:"gateway"`
	Memory   Memory   `mapstructure:"memory"`
	Ontology Ontology `mapstructure:"ontology"`
}

// Load reads configuration from the optional file at path (YAML or JSON),
// layered over defaults and under AEGIS_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8200)
	v.SetDefault("gateway.authentication.scheme", "none")
	v.SetDefault("gateway.authentication.api_key", "")
	v.SetDefault("gateway.agent_connection.base_url", "http://localhost:5000")
	v.SetDefault("gateway.agent_connection.api_key", "")
	v.SetDefault("gateway.task_queue.max_concurrent", 1)
	v.SetDefault("gateway.task_queue.max_queued", 10)
	v.SetDefault("gateway.task_queue.task_timeout_seconds", 600)
	v.SetDefault("gateway.salute_poll_interval_seconds", 2.0)
	v.SetDefault("gateway.org_dir", "organizations")
	v.SetDefault("gateway.reports_dir", "reports")
	v.SetDefault("gateway.roles_dir", "organizations/roles")
	v.SetDefault("gateway.plan_library_path", "plans/library.json")
	v.SetDefault("gateway.agent_name", "Aegis Agent")
	v.SetDefault("gateway.agent_description", "Hardened task agent behind the Aegis gateway")

	v.SetDefault("memory.load_bearing_keywords", []string{
		"must", "always", "never", "requirement", "constraint",
		"critical", "essential", "mandatory", "do not", "required",
	})
	v.SetDefault("memory.archival_threshold_cycles", 50)
	v.SetDefault("memory.deprecation_retention_cycles", 100)
	v.SetDefault("memory.max_injected_memories", 8)
	v.SetDefault("memory.maintenance_interval_loops", 10)
	v.SetDefault("memory.conflict_top_k", 5)
	v.SetDefault("memory.similarity_threshold", 0.3)
	v.SetDefault("memory.enable_purge", false)
	v.SetDefault("memory.deduplication.enabled", true)
	v.SetDefault("memory.deduplication.similarity_threshold", 0.90)
	v.SetDefault("memory.deduplication.max_pairs_per_cycle", 20)
	v.SetDefault("memory.deduplication.auto_deprecate_agent_inferred", true)
	v.SetDefault("memory.related_memories.tag_overlap_threshold", 3)
	v.SetDefault("memory.related_memories.max_related_per_memory", 10)

	v.SetDefault("ontology.entity_resolution.merge_threshold", 0.85)
	v.SetDefault("ontology.entity_resolution.review_threshold", 0.60)
	v.SetDefault("ontology.entity_resolution.scoring_weights", map[string]float64{
		"name": 0.35, "identifier": 0.30, "address": 0.15, "date": 0.10, "context": 0.10,
	})
	v.SetDefault("ontology.entity_resolution.blocking_strategies", []string{
		"identifier", "name_prefix", "phonetic",
	})
	v.SetDefault("ontology.relationship_extraction.co_occurrence_min_sources", 3)
	v.SetDefault("ontology.relationship_extraction.temporal_window_days", 30)
	v.SetDefault("ontology.relationship_extraction.min_confidence_to_surface", 0.3)
	v.SetDefault("ontology.relationship_extraction.promote_memory_links", true)
	v.SetDefault("ontology.maintenance.interval_cycles", 25)
	v.SetDefault("ontology.maintenance.compact_deprecated_relationships", true)
	v.SetDefault("ontology.maintenance.relationship_confidence_update", true)
	v.SetDefault("ontology.maintenance.rebuild_merged_summaries", true)
	v.SetDefault("ontology.source_connectors.max_batch_size", 100)
	v.SetDefault("ontology.ontology_dir", "ontology")
	v.SetDefault("ontology.memory_dir", "memory")
}
