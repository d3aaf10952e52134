package models

import (
	"time"
)

// Resource is a live cloud resource a playbook may act on or evidence may describe
type Resource struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Type      string                 `json:"type"`
	Provider  string                 `json:"provider"`
	Region    string                 `json:"region"`
	Status    ResourceStatus         `json:"status"`
	Tags      map[string]string      `json:"tags"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// ResourceStatus represents the current status of a resource
type ResourceStatus struct {
	State       string    `json:"state"`
	Health      string    `json:"health"`
	LastChecked time.Time `json:"last_checked"`
}

// ResourceType defines the resource kinds remediation and evidence collection understand
type ResourceType string

const (
	ResourceTypeVirtualMachine ResourceType = "virtual_machine"
	ResourceTypeObjectStorage  ResourceType = "object_storage"
	ResourceTypeDatabase       ResourceType = "database"
	ResourceTypeUser           ResourceType = "user"
	ResourceTypeUnknown        ResourceType = "unknown"
)

// GetResourceTypeFromString converts a string to ResourceType
func GetResourceTypeFromString(s string) ResourceType {
	switch s {
	case "virtual_machine", "vm", "ec2", "instance", "compute.instance":
		return ResourceTypeVirtualMachine
	case "object_storage", "s3", "bucket", "storage.bucket":
		return ResourceTypeObjectStorage
	case "database", "rds", "cloud_sql", "sql.instance":
		return ResourceTypeDatabase
	case "user", "iam_user", "iam-user", "users":
		return ResourceTypeUser
	default:
		return ResourceTypeUnknown
	}
}

// String returns the string representation of ResourceType
func (rt ResourceType) String() string {
	return string(rt)
}

// ResourceState defines common resource states
type ResourceState string

const (
	StateRunning    ResourceState = "running"
	StateStopped    ResourceState = "stopped"
	StateTransition ResourceState = "pending"
	StateTerminated ResourceState = "terminated"
	StateError      ResourceState = "error"
	StateUnknown    ResourceState = "unknown"
)

// GetStateFromString normalizes provider specific state names
func GetStateFromString(s string) ResourceState {
	switch s {
	case "running", "active", "available", "online", "Active":
		return StateRunning
	case "stopped", "inactive", "offline", "Inactive":
		return StateStopped
	case "pending", "starting", "stopping", "creating", "modifying", "shutting-down":
		return StateTransition
	case "terminated", "deleted", "terminating":
		return StateTerminated
	case "error", "failed", "unhealthy":
		return StateError
	default:
		return StateUnknown
	}
}

// ResourceHealth defines resource health status
type ResourceHealth string

const (
	HealthHealthy   ResourceHealth = "healthy"
	HealthUnhealthy ResourceHealth = "unhealthy"
	HealthWarning   ResourceHealth = "warning"
	HealthUnknown   ResourceHealth = "unknown"
)

// NewResource creates a new Resource with default values
func NewResource(id, name, resourceType, provider, region string) *Resource {
	now := time.Now()
	return &Resource{
		ID:       id,
		Name:     name,
		Type:     resourceType,
		Provider: provider,
		Region:   region,
		Status: ResourceStatus{
			State:       string(StateUnknown),
			Health:      string(HealthUnknown),
			LastChecked: now,
		},
		Tags:      make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]interface{}),
	}
}

// SetTag sets a tag on the resource
func (r *Resource) SetTag(key, value string) {
	if r.Tags == nil {
		r.Tags = make(map[string]string)
	}
	r.Tags[key] = value
}

// SetMetadata sets metadata on the resource
func (r *Resource) SetMetadata(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// GetMetadata gets metadata from the resource
func (r *Resource) GetMetadata(key string) (interface{}, bool) {
	if r.Metadata == nil {
		return nil, false
	}
	value, exists := r.Metadata[key]
	return value, exists
}

// BoolMetadata returns a boolean metadata value, false when absent or not a bool
func (r *Resource) BoolMetadata(key string) bool {
	value, ok := r.GetMetadata(key)
	if !ok {
		return false
	}
	b, ok := value.(bool)
	return ok && b
}

// UpdateStatus updates the resource status
func (r *Resource) UpdateStatus(state string, health string) {
	r.Status.State = state
	r.Status.Health = health
	r.Status.LastChecked = time.Now()
	r.UpdatedAt = time.Now()
}
