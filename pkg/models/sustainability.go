package models

import "time"

// MetricRecord is one energy/emissions sample for a resource
type MetricRecord struct {
	ResourceID   string    `json:"resource_id" yaml:"resource_id"`
	ResourceType string    `json:"resource_type" yaml:"resource_type"`
	Region       string    `json:"region" yaml:"region"`
	EnergyKWh    float64   `json:"energy_kwh" yaml:"energy_kwh"`
	EmissionsKg  float64   `json:"emissions_kg_co2" yaml:"emissions_kg_co2"`
	Utilization  float64   `json:"utilization" yaml:"utilization"`
	IdleHours    float64   `json:"idle_hours" yaml:"idle_hours"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
}

// OpportunityKind classifies a savings opportunity
type OpportunityKind string

const (
	OpportunityShutdownIdle   OpportunityKind = "SHUTDOWN_IDLE"
	OpportunityMigrateRegion  OpportunityKind = "MIGRATE_REGION"
	OpportunityOptimizeConfig OpportunityKind = "OPTIMIZE_CONFIG"
)

// SavingsOpportunity is derived on demand from metrics and never persisted
type SavingsOpportunity struct {
	ResourceID                    string          `json:"resource_id" yaml:"resource_id"`
	Kind                          OpportunityKind `json:"opportunity_type" yaml:"opportunity_type"`
	PotentialSavingsPercent       float64         `json:"potential_savings_percent" yaml:"potential_savings_percent"`
	EstimatedEmissionsReductionKg float64         `json:"estimated_emissions_reduction_kg" yaml:"estimated_emissions_reduction_kg"`
	Description                   string          `json:"description" yaml:"description"`
	TargetRegion                  string          `json:"target_region,omitempty" yaml:"target_region,omitempty"`
}

// EmissionsTotals aggregates metrics over a time window
type EmissionsTotals struct {
	TotalEmissionsKg float64 `json:"total_emissions_kg" yaml:"total_emissions_kg"`
	TotalEnergyKWh   float64 `json:"total_energy_kwh" yaml:"total_energy_kwh"`
}
