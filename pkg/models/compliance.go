package models

import (
	"fmt"
	"time"
)

// Framework identifies a compliance standard
type Framework string

const (
	FrameworkNIST800_53 Framework = "NIST_800_53"
	FrameworkSOC2       Framework = "SOC_2"
	FrameworkISO27001   Framework = "ISO_27001"
)

// SupportedFrameworks returns the frameworks known to the built-in catalog
func SupportedFrameworks() []Framework {
	return []Framework{FrameworkNIST800_53, FrameworkSOC2, FrameworkISO27001}
}

// ParseFramework converts a user supplied string to a Framework
func ParseFramework(s string) (Framework, error) {
	switch s {
	case "NIST_800_53", "nist", "nist_800_53", "nist-800-53":
		return FrameworkNIST800_53, nil
	case "SOC_2", "soc2", "soc_2", "soc-2":
		return FrameworkSOC2, nil
	case "ISO_27001", "iso", "iso27001", "iso_27001", "iso-27001":
		return FrameworkISO27001, nil
	default:
		return "", fmt.Errorf("unknown framework: %s", s)
	}
}

// String returns the string representation of Framework
func (f Framework) String() string {
	return string(f)
}

// ComplianceStatus is the assessed state of a control for a resource
type ComplianceStatus string

const (
	StatusCompliant     ComplianceStatus = "COMPLIANT"
	StatusNonCompliant  ComplianceStatus = "NON_COMPLIANT"
	StatusPartial       ComplianceStatus = "PARTIAL"
	StatusNotApplicable ComplianceStatus = "NOT_APPLICABLE"
)

// IsGap reports whether the status represents a coverage gap
func (s ComplianceStatus) IsGap() bool {
	return s == StatusNonCompliant || s == StatusPartial
}

// Valid reports whether the status is one of the known values
func (s ComplianceStatus) Valid() bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusPartial, StatusNotApplicable:
		return true
	}
	return false
}

// Control is one requirement within a framework. Controls are reference data
// and are never mutated at runtime.
type Control struct {
	Framework            Framework `json:"framework" yaml:"framework"`
	ControlID            string    `json:"control_id" yaml:"control_id"`
	Name                 string    `json:"name" yaml:"name"`
	Description          string    `json:"description" yaml:"description"`
	EvidenceRequirements []string  `json:"evidence_requirements" yaml:"evidence_requirements"`
}

// EvidenceRecord is one assessment of a control against a resource
type EvidenceRecord struct {
	ResourceID    string           `json:"resource_id" yaml:"resource_id"`
	Framework     Framework        `json:"framework" yaml:"framework"`
	ControlID     string           `json:"control_id" yaml:"control_id"`
	Status        ComplianceStatus `json:"status" yaml:"status"`
	EvidenceCount int              `json:"evidence_count" yaml:"evidence_count"`
	AssessedAt    time.Time        `json:"last_assessed" yaml:"last_assessed"`
	Gaps          []string         `json:"gaps" yaml:"gaps"`
}

// Key identifies the (resource, control) pair a record speaks for
func (r EvidenceRecord) Key() string {
	return r.ResourceID + "|" + string(r.Framework) + "|" + r.ControlID
}
