// Package config defines the typed configuration surface for warden and a
// thin YAML loader. Config-file loading mechanics are a Non-goal in detail,
// but the typed structs below are load-bearing: every component reads its
// settings from these types rather than from ad hoc globals.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the top-level configuration document.
	Config struct {
		Gateway  GatewayConfig  `yaml:"gateway"`
		Memory   MemoryConfig   `yaml:"memory"`
		Ontology OntologyConfig `yaml:"ontology"`
	}

	// GatewayConfig configures the A2A Task Gateway.
	GatewayConfig struct {
		Host                      string           `yaml:"host"`
		Port                      int              `yaml:"port"`
		Authentication            AuthConfig       `yaml:"authentication"`
		AgentConnection           AgentConnConfig  `yaml:"agent_connection"`
		TaskQueue                 TaskQueueConfig  `yaml:"task_queue"`
		SALUTEPollIntervalSeconds float64          `yaml:"salute_poll_interval_seconds"`
		OrgDir                    string           `yaml:"org_dir"`
		ReportsDir                string           `yaml:"reports_dir"`
		RolesDir                  string           `yaml:"roles_dir"`
		PlanLibraryPath           string           `yaml:"plan_library_path"`
	}

	// AuthConfig configures the Gateway's authentication scheme.
	AuthConfig struct {
		Scheme string `yaml:"scheme"` // "none" | "api-key" | "bearer"
		APIKey string `yaml:"api_key"`
	}

	// AgentConnConfig configures how the Bridge reaches the inner agent.
	AgentConnConfig struct {
		BaseURL            string        `yaml:"base_url"`
		APIKey             string        `yaml:"api_key"`
		TimeoutSeconds     float64       `yaml:"timeout_seconds"`
		CancelTimeoutSeconds float64     `yaml:"cancel_timeout_seconds"`
	}

	// TaskQueueConfig bounds the Registry's admission and concurrency.
	TaskQueueConfig struct {
		MaxConcurrent       int `yaml:"max_concurrent"`
		MaxQueued           int `yaml:"max_queued"`
		TaskTimeoutSeconds  int `yaml:"task_timeout_seconds"`
	}

	// MemoryConfig configures the Memory Classifier, Maintenance, and Recall
	// Filter (M, D, F).
	MemoryConfig struct {
		LoadBearingKeywords       []string            `yaml:"load_bearing_keywords"`
		ArchivalThresholdCycles   int                 `yaml:"archival_threshold_cycles"`
		DeprecationRetentionCycles int                `yaml:"deprecation_retention_cycles"`
		MaxInjectedMemories       int                 `yaml:"max_injected_memories"`
		MaintenanceIntervalLoops  int                 `yaml:"maintenance_interval_loops"`
		ConflictTopK              int                 `yaml:"conflict_top_k"`
		EnablePurge               bool                `yaml:"enable_purge"`
		Deduplication             DeduplicationConfig  `yaml:"deduplication"`
		RelatedMemories           RelatedMemoriesConfig `yaml:"related_memories"`
	}

	// DeduplicationConfig configures the dedup phase of Memory Maintenance.
	DeduplicationConfig struct {
		Enabled                     bool    `yaml:"enabled"`
		SimilarityThreshold         float64 `yaml:"similarity_threshold"`
		MaxPairsPerCycle            int     `yaml:"max_pairs_per_cycle"`
		AutoDeprecateAgentInferred  bool    `yaml:"auto_deprecate_agent_inferred"`
	}

	// RelatedMemoriesConfig configures the related-memory linking phase.
	RelatedMemoriesConfig struct {
		TagOverlapThreshold int `yaml:"tag_overlap_threshold"`
		MaxRelatedPerMemory int `yaml:"max_related_per_memory"`
	}

	// OntologyConfig configures the Entity Resolver and Ontology Store.
	OntologyConfig struct {
		EntityResolution       EntityResolutionConfig       `yaml:"entity_resolution"`
		RelationshipExtraction RelationshipExtractionConfig `yaml:"relationship_extraction"`
		Maintenance            OntologyMaintenanceConfig    `yaml:"maintenance"`
	}

	// EntityResolutionConfig configures the Entity Resolver (E).
	EntityResolutionConfig struct {
		MergeThreshold      float64            `yaml:"merge_threshold"`
		ReviewThreshold     float64            `yaml:"review_threshold"`
		ScoringWeights      ScoringWeights     `yaml:"scoring_weights"`
		BlockingStrategies  []string           `yaml:"blocking_strategies"`
	}

	// ScoringWeights holds the five-axis composite score weights.
	ScoringWeights struct {
		Name       float64 `yaml:"name"`
		Identifier float64 `yaml:"identifier"`
		Address    float64 `yaml:"address"`
		Date       float64 `yaml:"date"`
		Context    float64 `yaml:"context"`
	}

	// RelationshipExtractionConfig configures the Ontology Store's edge
	// extraction methods.
	RelationshipExtractionConfig struct {
		CoOccurrenceMinSources int     `yaml:"co_occurrence_min_sources"`
		TemporalWindowDays     int     `yaml:"temporal_window_days"`
		MinConfidenceToSurface float64 `yaml:"min_confidence_to_surface"`
		PromoteMemoryLinks     bool    `yaml:"promote_memory_links"`
	}

	// OntologyMaintenanceConfig configures periodic ontology upkeep.
	OntologyMaintenanceConfig struct {
		IntervalCycles               int  `yaml:"interval_cycles"`
		CompactDeprecatedRelationships bool `yaml:"compact_deprecated_relationships"`
		RelationshipConfidenceUpdate  bool `yaml:"relationship_confidence_update"`
		RebuildMergedSummaries        bool `yaml:"rebuild_merged_summaries"`
	}
)

// Default returns a Config populated with the defaults named throughout
// spec.md (queue sizes, thresholds, cadences).
func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			Host:                      "0.0.0.0",
			Port:                      8080,
			Authentication:            AuthConfig{Scheme: "none"},
			AgentConnection: AgentConnConfig{
				TimeoutSeconds:       600,
				CancelTimeoutSeconds: 10,
			},
			TaskQueue: TaskQueueConfig{
				MaxConcurrent:      4,
				MaxQueued:          32,
				TaskTimeoutSeconds: 600,
			},
			SALUTEPollIntervalSeconds: 2,
			OrgDir:                    "organizations",
			ReportsDir:                "reports",
			RolesDir:                  "organizations/roles",
			PlanLibraryPath:           "organizations/plans.json",
		},
		Memory: MemoryConfig{
			LoadBearingKeywords: []string{
				"must", "always", "never", "requirement", "required", "critical",
			},
			ArchivalThresholdCycles:   20,
			DeprecationRetentionCycles: 50,
			MaxInjectedMemories:       8,
			MaintenanceIntervalLoops:  10,
			ConflictTopK:              5,
			EnablePurge:               false,
			Deduplication: DeduplicationConfig{
				Enabled:             true,
				SimilarityThreshold: 0.90,
				MaxPairsPerCycle:    200,
			},
			RelatedMemories: RelatedMemoriesConfig{
				TagOverlapThreshold: 3,
				MaxRelatedPerMemory: 10,
			},
		},
		Ontology: OntologyConfig{
			EntityResolution: EntityResolutionConfig{
				MergeThreshold:     0.85,
				ReviewThreshold:    0.60,
				ScoringWeights:     ScoringWeights{Name: 0.35, Identifier: 0.30, Address: 0.15, Date: 0.10, Context: 0.10},
				BlockingStrategies: []string{"identifier", "name_prefix", "phonetic"},
			},
			RelationshipExtraction: RelationshipExtractionConfig{
				CoOccurrenceMinSources: 3,
				TemporalWindowDays:     30,
				MinConfidenceToSurface: 0.3,
				PromoteMemoryLinks:     true,
			},
			Maintenance: OntologyMaintenanceConfig{
				IntervalCycles:                 10,
				CompactDeprecatedRelationships: true,
				RelationshipConfidenceUpdate:   true,
				RebuildMergedSummaries:         true,
			},
		},
	}
}

// Load reads and decodes a YAML config file, applying it on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// PollInterval returns the Gateway's SALUTE poll interval as a duration.
func (g GatewayConfig) PollInterval() time.Duration {
	return time.Duration(g.SALUTEPollIntervalSeconds * float64(time.Second))
}

// Timeout returns the Bridge's per-call timeout as a duration.
func (a AgentConnConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds * float64(time.Second))
}

// CancelTimeout returns the Bridge's cancel-sentinel timeout as a duration.
func (a AgentConnConfig) CancelTimeout() time.Duration {
	return time.Duration(a.CancelTimeoutSeconds * float64(time.Second))
}
