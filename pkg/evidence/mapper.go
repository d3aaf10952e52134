// Package evidence turns observed resource facts into compliance evidence records.
package evidence

import (
	"time"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
)

// Fact names read from resource metadata
const (
	FactEncryptionEnabled = "encryption_enabled"
	FactIAMPolicy         = "iam_policy"
	FactLoggingEnabled    = "logging_enabled"
	FactAccessControls    = "access_controls"
)

// Rule maps one fact to one control. A rule is evaluated for a resource when the
// fact is present or the resource type is listed in AppliesTo; an applicable fact
// that is absent or unsatisfied produces a NON_COMPLIANT record carrying Gap.
type Rule struct {
	Fact      string
	Framework models.Framework
	ControlID string
	AppliesTo []models.ResourceType
	Satisfied func(value interface{}) bool
	Gap       string
}

func (r Rule) applies(resourceType models.ResourceType, facts map[string]interface{}) bool {
	if _, present := facts[r.Fact]; present {
		return true
	}
	for _, t := range r.AppliesTo {
		if t == resourceType {
			return true
		}
	}
	return false
}

func isTrue(value interface{}) bool {
	b, ok := value.(bool)
	return ok && b
}

// DefaultRules returns the built-in fact to control mapping
func DefaultRules() []Rule {
	return []Rule{
		{
			Fact:      FactEncryptionEnabled,
			Framework: models.FrameworkNIST800_53,
			ControlID: "SC-28",
			AppliesTo: []models.ResourceType{models.ResourceTypeObjectStorage, models.ResourceTypeDatabase},
			Satisfied: isTrue,
			Gap:       "Encryption at rest is not enabled",
		},
		{
			Fact:      FactIAMPolicy,
			Framework: models.FrameworkNIST800_53,
			ControlID: "AC-3",
			AppliesTo: []models.ResourceType{models.ResourceTypeUser},
			Satisfied: func(value interface{}) bool { return value == "restrictive" },
			Gap:       "IAM policy is not restrictive",
		},
		{
			Fact:      FactLoggingEnabled,
			Framework: models.FrameworkSOC2,
			ControlID: "CC6.1",
			AppliesTo: []models.ResourceType{models.ResourceTypeObjectStorage, models.ResourceTypeDatabase},
			Satisfied: isTrue,
			Gap:       "Access logging is not enabled",
		},
		{
			Fact:      FactAccessControls,
			Framework: models.FrameworkISO27001,
			ControlID: "A.9.1.1",
			AppliesTo: []models.ResourceType{models.ResourceTypeObjectStorage, models.ResourceTypeUser},
			Satisfied: isTrue,
			Gap:       "Access controls are not enforced",
		},
	}
}

// Mapper converts facts into evidence records
type Mapper struct {
	rules []Rule
	now   func() time.Time
}

// MapperOption configures a Mapper
type MapperOption func(*Mapper)

// WithRules replaces the default rules
func WithRules(rules []Rule) MapperOption {
	return func(m *Mapper) {
		if rules != nil {
			m.rules = rules
		}
	}
}

// WithMapperClock overrides the assessment timestamp source (tests).
func WithMapperClock(clock func() time.Time) MapperOption {
	return func(m *Mapper) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewMapper creates a Mapper with the default rules
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{
		rules: DefaultRules(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MapFacts maps a flat fact set observed on one resource. Records come out in rule
// order and share one assessment time.
func (m *Mapper) MapFacts(resourceID string, resourceType models.ResourceType, facts map[string]interface{}) []models.EvidenceRecord {
	assessedAt := m.now()
	records := make([]models.EvidenceRecord, 0, len(m.rules))

	for _, rule := range m.rules {
		if !rule.applies(resourceType, facts) {
			continue
		}

		record := models.EvidenceRecord{
			ResourceID:    resourceID,
			Framework:     rule.Framework,
			ControlID:     rule.ControlID,
			Status:        models.StatusCompliant,
			EvidenceCount: 1,
			AssessedAt:    assessedAt,
			Gaps:          []string{},
		}
		if value, present := facts[rule.Fact]; !present || !rule.Satisfied(value) {
			record.Status = models.StatusNonCompliant
			record.Gaps = []string{rule.Gap}
		}
		records = append(records, record)
	}

	return records
}

// MapResource maps the facts a provider recorded in a resource's metadata
func (m *Mapper) MapResource(resourceID string, resource models.Resource) []models.EvidenceRecord {
	return m.MapFacts(resourceID, models.GetResourceTypeFromString(resource.Type), resource.Metadata)
}
