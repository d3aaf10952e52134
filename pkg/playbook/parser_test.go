package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
)

func TestNumberedLineParser(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "numbered lines become steps",
			text: "1. Disable key\n2. Rotate secret\nSome note",
			want: []string{"Disable key", "Rotate secret"},
		},
		{
			name: "multi digit numbers and no space",
			text: "10.Stop instance\n11.   Start instance",
			want: []string{"Stop instance", "Start instance"},
		},
		{
			name: "indented numbers are not steps",
			text: "  1. nested\n- 2. bullet\n3) paren",
			want: nil,
		},
		{
			name: "windows line endings",
			text: "1. First\r\n2. Second\r\n",
			want: []string{"First", "Second"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := NumberedLineParser{}.Parse(tt.text)
			var actions []string
			for _, s := range steps {
				actions = append(actions, s.Action)
				assert.Empty(t, s.ID)
			}
			assert.Equal(t, tt.want, actions)
		})
	}
}

func TestAnnotatedLineParser(t *testing.T) {
	text := `Remediation plan
   command: ignored before first step
1. Stop idle instance
   command: aws:ec2-stop i-123
   validate: state("aws:ec2/i-123") == "stopped"
   rollback: aws:ec2-start i-123
   note: free text
command: not indented
2. Document the change`

	steps := AnnotatedLineParser{}.Parse(text)
	assert.Equal(t, []models.PlaybookStep{
		{
			Action:     "Stop idle instance",
			Command:    "aws:ec2-stop i-123",
			Validation: `state("aws:ec2/i-123") == "stopped"`,
			Rollback:   "aws:ec2-start i-123",
		},
		{Action: "Document the change"},
	}, steps)
}

func TestParserByName(t *testing.T) {
	p, ok := ParserByName("annotated")
	assert.True(t, ok)
	assert.IsType(t, AnnotatedLineParser{}, p)

	p, ok = ParserByName("")
	assert.True(t, ok)
	assert.IsType(t, NumberedLineParser{}, p)

	_, ok = ParserByName("llm")
	assert.False(t, ok)
}
