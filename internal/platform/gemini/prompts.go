package gemini

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/vkalinin/devagent-api/internal/domain"
)

// Prompt templates per capability. Each instructs the model to answer with a
// single JSON object so the result can be stored and returned verbatim.
const (
	analyzePromptText = `You are a senior software engineer reviewing code.
Analyze the following code and respond with a single JSON object of the form
{"summary": string, "issues": [{"severity": string, "description": string}], "suggestions": [string]}.
Do not wrap the JSON in markdown fences.

Code:
{{.Code}}
`

	generatePromptText = `You are a senior software engineer.
Using the following code or description as the starting point, produce the
requested implementation. Respond with a single JSON object of the form
{"code": string, "explanation": string}.
Do not wrap the JSON in markdown fences.

Input:
{{.Code}}
`

	fixPromptText = `You are a senior software engineer debugging a failure.
Given the code and the observed error, propose a corrected version. Respond
with a single JSON object of the form
{"code": string, "diagnosis": string, "explanation": string}.
Do not wrap the JSON in markdown fences.

Code:
{{.Code}}

Observed error:
{{.Error}}
`
)

type promptData struct {
	Code  string
	Error string
}

// promptSet holds the parsed template for each LLM capability.
type promptSet map[domain.Capability]*template.Template

func parsePrompts() (promptSet, error) {
	sources := map[domain.Capability]string{
		domain.CapabilityAnalyze:  analyzePromptText,
		domain.CapabilityGenerate: generatePromptText,
		domain.CapabilityFix:      fixPromptText,
	}

	set := make(promptSet, len(sources))
	for cap, src := range sources {
		tmpl, err := template.New(string(cap)).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt template: %w", cap, err)
		}
		set[cap] = tmpl
	}
	return set, nil
}

// render produces the prompt for the capability from the task context.
func (p promptSet) render(cap domain.Capability, taskCtx domain.TaskContext) (string, error) {
	tmpl, ok := p[cap]
	if !ok {
		return "", fmt.Errorf("no prompt template for capability %s", cap)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{
		Code:  taskCtx.Code,
		Error: taskCtx.Error,
	}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
