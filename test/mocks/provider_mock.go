package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// MockAWSProvider implements the CloudProvider interface for testing. Its actions
// mutate the in-memory resources the same way the real actions change live state.
type MockAWSProvider struct {
	mu            sync.Mutex
	authenticated bool
	resources     map[string]*models.Resource // "<type>/<id>"
	order         []string
	errors        map[string]error
	performed     []string
}

// NewMockAWSProvider creates a new mock AWS provider
func NewMockAWSProvider() *MockAWSProvider {
	return &MockAWSProvider{
		resources: make(map[string]*models.Resource),
		errors:    make(map[string]error),
	}
}

// SetAuthenticated sets the authentication status
func (m *MockAWSProvider) SetAuthenticated(authenticated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authenticated = authenticated
}

// AddResource adds a resource under the reference type it is addressed by, e.g. "ec2"
func (m *MockAWSProvider) AddResource(refType string, resource models.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := refType + "/" + resource.ID
	if _, exists := m.resources[key]; !exists {
		m.order = append(m.order, key)
	}
	m.resources[key] = &resource
}

// SetError makes a method fail. Actions are keyed by their action name.
func (m *MockAWSProvider) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// Performed returns the actions run so far as "<action> <args...>"
func (m *MockAWSProvider) Performed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.performed...)
}

func (m *MockAWSProvider) Name() string {
	return "aws"
}

func (m *MockAWSProvider) Description() string {
	return "Mock AWS provider for testing"
}

func (m *MockAWSProvider) SupportedRegions() []string {
	return []string{"us-east-1", "us-west-2", "eu-west-1"}
}

func (m *MockAWSProvider) Authenticate(ctx context.Context, config config.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, exists := m.errors["Authenticate"]; exists {
		return err
	}
	m.authenticated = true
	return nil
}

func (m *MockAWSProvider) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

func (m *MockAWSProvider) GetResources(ctx context.Context, filters types.ResourceFilters) ([]models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, exists := m.errors["GetResources"]; exists {
		return nil, err
	}

	var filtered []models.Resource
	for _, key := range m.order {
		resource := m.resources[key]
		if matchesFilters(*resource, filters) {
			filtered = append(filtered, copyResource(resource))
		}
	}
	return filtered, nil
}

func (m *MockAWSProvider) GetResourcesByType(ctx context.Context, resourceType string, filters types.ResourceFilters) ([]models.Resource, error) {
	filters.ResourceTypes = []string{string(models.GetResourceTypeFromString(resourceType))}
	return m.GetResources(ctx, filters)
}

func (m *MockAWSProvider) GetResource(ctx context.Context, ref types.ResourceRef) (*models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, exists := m.errors["GetResource"]; exists {
		return nil, err
	}

	resource, ok := m.resources[ref.Type+"/"+ref.ID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, types.ErrResourceNotFound)
	}
	out := copyResource(resource)
	return &out, nil
}

func (m *MockAWSProvider) Actions() []string {
	names := make([]string, 0, len(mockActions))
	for name := range mockActions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MockAWSProvider) PerformAction(ctx context.Context, action string, args []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apply, ok := mockActions[action]
	if !ok {
		return fmt.Errorf("unknown AWS action: %s", action)
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: %s <id>", action)
	}
	m.performed = append(m.performed, fmt.Sprintf("%s %v", action, args))
	if err, exists := m.errors[action]; exists {
		return err
	}

	resource, ok := m.resources[apply.refType+"/"+args[0]]
	if !ok {
		return fmt.Errorf("%s/%s: %w", apply.refType, args[0], types.ErrResourceNotFound)
	}
	apply.mutate(resource)
	resource.UpdatedAt = time.Now()
	return nil
}

func (m *MockAWSProvider) ValidateConfig(config config.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, exists := m.errors["ValidateConfig"]; exists {
		return err
	}
	return nil
}

func (m *MockAWSProvider) GetSupportedResourceTypes() []string {
	return []string{"ec2", "s3", "rds", "iam-user"}
}

type mockAction struct {
	refType string
	mutate  func(r *models.Resource)
}

var mockActions = map[string]mockAction{
	"ec2-stop":  {"ec2", func(r *models.Resource) { r.UpdateStatus(string(models.StateStopped), string(models.HealthUnhealthy)) }},
	"ec2-start": {"ec2", func(r *models.Resource) { r.UpdateStatus(string(models.StateRunning), string(models.HealthHealthy)) }},
	"rds-stop":  {"rds", func(r *models.Resource) { r.UpdateStatus(string(models.StateStopped), string(models.HealthUnhealthy)) }},
	"rds-start": {"rds", func(r *models.Resource) { r.UpdateStatus(string(models.StateRunning), string(models.HealthHealthy)) }},

	"s3-enable-encryption":  {"s3", func(r *models.Resource) { r.SetMetadata("encryption_enabled", true) }},
	"s3-disable-encryption": {"s3", func(r *models.Resource) { r.SetMetadata("encryption_enabled", false) }},
	"s3-enable-logging":     {"s3", func(r *models.Resource) { r.SetMetadata("logging_enabled", true) }},
	"s3-disable-logging":    {"s3", func(r *models.Resource) { r.SetMetadata("logging_enabled", false) }},
	"iam-deactivate-key":    {"iam-user", func(r *models.Resource) { r.SetMetadata("active_access_keys", 0) }},
	"iam-activate-key":      {"iam-user", func(r *models.Resource) { r.SetMetadata("active_access_keys", 1) }},
}

// matchesFilters checks if a resource matches the given filters
func matchesFilters(resource models.Resource, filters types.ResourceFilters) bool {
	if len(filters.Regions) > 0 && !contains(filters.Regions, resource.Region) {
		return false
	}
	if len(filters.ResourceTypes) > 0 && !contains(filters.ResourceTypes, resource.Type) {
		return false
	}
	for key, value := range filters.Tags {
		if resource.Tags[key] != value {
			return false
		}
	}
	if len(filters.Status) > 0 && !contains(filters.Status, resource.Status.State) {
		return false
	}
	return true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func copyResource(r *models.Resource) models.Resource {
	out := *r
	out.Tags = make(map[string]string, len(r.Tags))
	for k, v := range r.Tags {
		out.Tags[k] = v
	}
	out.Metadata = make(map[string]interface{}, len(r.Metadata))
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// Helper functions for testing

// CreateMockEC2Instance creates a mock EC2 instance
func CreateMockEC2Instance(id, name, region string, state models.ResourceState) models.Resource {
	resource := models.NewResource(id, name, string(models.ResourceTypeVirtualMachine), "aws", region)
	health := models.HealthHealthy
	if state != models.StateRunning {
		health = models.HealthUnhealthy
	}
	resource.UpdateStatus(string(state), string(health))
	resource.SetTag("Environment", "test")
	resource.SetMetadata("instance_type", "t3.micro")
	resource.CreatedAt = time.Now().Add(-24 * time.Hour)
	return *resource
}

// CreateMockS3Bucket creates a mock S3 bucket with its evidence facts
func CreateMockS3Bucket(name, region string, encrypted, logging bool) models.Resource {
	resource := models.NewResource(name, name, string(models.ResourceTypeObjectStorage), "aws", region)
	resource.UpdateStatus(string(models.StateRunning), string(models.HealthHealthy))
	resource.SetTag("Purpose", "testing")
	resource.SetMetadata("encryption_enabled", encrypted)
	resource.SetMetadata("logging_enabled", logging)
	resource.SetMetadata("access_controls", false)
	resource.CreatedAt = time.Now().Add(-48 * time.Hour)
	return *resource
}

// CreateMockIAMUser creates a mock IAM user with its evidence facts
func CreateMockIAMUser(name, policy string, mfa bool) models.Resource {
	resource := models.NewResource(name, name, string(models.ResourceTypeUser), "aws", "global")
	resource.UpdateStatus(string(models.StateRunning), string(models.HealthHealthy))
	resource.SetMetadata("iam_policy", policy)
	resource.SetMetadata("mfa_enabled", mfa)
	resource.SetMetadata("access_controls", mfa)
	resource.SetMetadata("active_access_keys", 1)
	return *resource
}
