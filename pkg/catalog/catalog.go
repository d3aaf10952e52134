package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store"
)

// File is the on-disk layout of a control catalog
type File struct {
	Controls []models.Control `yaml:"controls"`
}

// Catalog holds control reference data indexed by framework and control id
type Catalog struct {
	controls map[models.Framework]map[string]models.Control
}

// Builtin returns the controls shipped with the binary
func Builtin() []models.Control {
	return []models.Control{
		{
			Framework:            models.FrameworkNIST800_53,
			ControlID:            "SC-28",
			Name:                 "Protection of Information at Rest",
			Description:          "Protect the confidentiality and integrity of information at rest.",
			EvidenceRequirements: []string{"encryption_enabled"},
		},
		{
			Framework:            models.FrameworkNIST800_53,
			ControlID:            "AC-3",
			Name:                 "Access Enforcement",
			Description:          "Enforce approved authorizations for logical access to information and system resources.",
			EvidenceRequirements: []string{"iam_policy"},
		},
		{
			Framework:            models.FrameworkNIST800_53,
			ControlID:            "AU-2",
			Name:                 "Event Logging",
			Description:          "Identify the types of events the system is capable of logging.",
			EvidenceRequirements: []string{"logging_enabled"},
		},
		{
			Framework:            models.FrameworkSOC2,
			ControlID:            "CC6.1",
			Name:                 "Logical and Physical Access Controls",
			Description:          "Implement logical access security over protected information assets.",
			EvidenceRequirements: []string{"logging_enabled"},
		},
		{
			Framework:            models.FrameworkSOC2,
			ControlID:            "CC7.2",
			Name:                 "System Monitoring",
			Description:          "Monitor system components for anomalies indicative of malicious acts.",
			EvidenceRequirements: []string{"logging_enabled"},
		},
		{
			Framework:            models.FrameworkISO27001,
			ControlID:            "A.9.1.1",
			Name:                 "Access Control Policy",
			Description:          "An access control policy shall be established, documented and reviewed.",
			EvidenceRequirements: []string{"access_controls"},
		},
		{
			Framework:            models.FrameworkISO27001,
			ControlID:            "A.12.4.1",
			Name:                 "Event Logging",
			Description:          "Event logs recording user activities and exceptions shall be produced and kept.",
			EvidenceRequirements: []string{"logging_enabled"},
		},
	}
}

// New builds a catalog from a list of controls. Later duplicates replace earlier ones.
func New(controls []models.Control) (*Catalog, error) {
	c := &Catalog{controls: make(map[models.Framework]map[string]models.Control)}
	for i, control := range controls {
		if control.Framework == "" || control.ControlID == "" {
			return nil, fmt.Errorf("control %d: framework and control_id are required", i)
		}
		if _, err := models.ParseFramework(string(control.Framework)); err != nil {
			return nil, fmt.Errorf("control %s: %w", control.ControlID, err)
		}
		if c.controls[control.Framework] == nil {
			c.controls[control.Framework] = make(map[string]models.Control)
		}
		c.controls[control.Framework][control.ControlID] = control
	}
	return c, nil
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := New(Builtin())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if len(file.Controls) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no controls", path)
	}

	return New(file.Controls)
}

// Lookup returns the control for a framework and control id
func (c *Catalog) Lookup(framework models.Framework, controlID string) (models.Control, bool) {
	control, ok := c.controls[framework][controlID]
	return control, ok
}

// Controls returns the controls of a framework sorted by control id
func (c *Catalog) Controls(framework models.Framework) []models.Control {
	controls := make([]models.Control, 0, len(c.controls[framework]))
	for _, control := range c.controls[framework] {
		controls = append(controls, control)
	}
	sort.Slice(controls, func(i, j int) bool {
		return controls[i].ControlID < controls[j].ControlID
	})
	return controls
}

// All returns every control ordered by framework then control id
func (c *Catalog) All() []models.Control {
	var all []models.Control
	for _, framework := range models.SupportedFrameworks() {
		all = append(all, c.Controls(framework)...)
	}
	return all
}

// Seed writes the catalog into a store so scoring can resolve control names
func (c *Catalog) Seed(ctx context.Context, s store.EvidenceStore) error {
	if err := s.UpsertControls(ctx, c.All()); err != nil {
		return fmt.Errorf("failed to seed control catalog: %w", err)
	}
	return nil
}
