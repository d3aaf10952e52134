package producer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FileProducer returns the contents of a prepared prose file regardless of the issue
type FileProducer struct {
	path string
}

// NewFileProducer creates a new FileProducer
func NewFileProducer(path string) *FileProducer {
	return &FileProducer{path: path}
}

// Generate implements TextProducer
func (p *FileProducer) Generate(ctx context.Context, issue string, issueContext map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("failed to read remediation file: %w", err)
	}
	return string(data), nil
}

// StaticProducer always returns the same text
type StaticProducer struct {
	Text string
}

// Generate implements TextProducer
func (p StaticProducer) Generate(ctx context.Context, issue string, issueContext map[string]interface{}) (string, error) {
	return p.Text, ctx.Err()
}

// TemplateProducer renders a generic offline playbook from the issue and context.
// It lets the builder run without a language model.
type TemplateProducer struct{}

// NewTemplateProducer creates a new TemplateProducer
func NewTemplateProducer() *TemplateProducer {
	return &TemplateProducer{}
}

// Generate implements TextProducer
func (p *TemplateProducer) Generate(ctx context.Context, issue string, issueContext map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Remediation playbook for: %s\n\n", issue)
	if len(issueContext) > 0 {
		keys := make([]string, 0, len(issueContext))
		for k := range issueContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, issueContext[k])
		}
		b.WriteString("\n")
	}
	b.WriteString("1. Confirm the affected resources and capture their current configuration\n")
	b.WriteString("2. Apply the configuration change that resolves the issue\n")
	b.WriteString("3. Verify the resource reports the expected state\n")
	b.WriteString("4. Record the change and re-run the compliance assessment\n")
	return b.String(), nil
}
