package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
)

// TextProducer returns unstructured remediation prose for an issue
type TextProducer interface {
	Generate(ctx context.Context, issue string, issueContext map[string]interface{}) (string, error)
}

// New creates the producer selected by configuration
func New(cfg config.ProducerConfig, logger *logrus.Logger) (TextProducer, error) {
	switch cfg.Type {
	case "http":
		return NewHTTPProducer(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout, logger), nil
	case "file":
		return NewFileProducer(cfg.Path), nil
	case "template", "":
		return NewTemplateProducer(), nil
	default:
		return nil, fmt.Errorf("unknown producer type: %s", cfg.Type)
	}
}

// RemediationPrompt renders the instruction sent to a language model
func RemediationPrompt(issue string, issueContext map[string]interface{}) string {
	contextJSON, err := json.MarshalIndent(issueContext, "", "  ")
	if err != nil || issueContext == nil {
		contextJSON = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("You are a cloud security and compliance expert. Generate a detailed remediation playbook.\n\n")
	fmt.Fprintf(&b, "Issue: %s\n\n", issue)
	fmt.Fprintf(&b, "Context:\n%s\n\n", contextJSON)
	b.WriteString("Provide:\n")
	b.WriteString("1. Step-by-step remediation instructions\n")
	b.WriteString("2. Required permissions and roles\n")
	b.WriteString("3. Pre-remediation checks\n")
	b.WriteString("4. Post-remediation validation\n")
	b.WriteString("5. Rollback procedures if needed\n\n")
	b.WriteString("Format as an executable playbook with numbered steps.\n")
	return b.String()
}
