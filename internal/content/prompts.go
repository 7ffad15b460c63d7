package content

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/p-n-ai/pai-courseware/internal/curriculum"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
)

const systemPrompt = `You are a patient teacher of comparative religion writing self-study material.
Be accurate and neutral. Describe beliefs as their adherents hold them without endorsing or dismissing them.`

var lessonTmpl = template.Must(template.New("lesson").Parse(`Write a short lesson for the {{.SubjectTitle}} course, unit "{{.UnitTitle}}".

Lesson: {{.Topic.Title}}
{{- with .Topic.Difficulty}}
Difficulty: {{.}}{{end}}
{{- with .Topic.Objectives}}

Objectives:
{{- range .}}
- {{.}}{{end}}{{end}}
{{- with .Topic.KeyTerms}}

Key terms to explain:
{{- range .}}
- {{.Term}}: {{.Definition}}{{end}}{{end}}
{{- with .Topic.Topics}}

Cover these topics in order:
{{- range .}}
- {{.}}{{end}}{{end}}

Keep it under 400 words of plain text. Do not include questions.`))

var exercisesTmpl = template.Must(template.New("exercises").Parse(`Write {{.Count}} exercises for the {{.SubjectTitle}} course, unit "{{.UnitTitle}}", {{if .Checkpoint}}checkpoint "{{.Topic.Title}}" covering the whole unit{{else}}lesson "{{.Topic.Title}}"{{end}}.
{{- with .Topic.Difficulty}}
Difficulty: {{.}}{{end}}
{{- with .Topic.Objectives}}

Objectives:
{{- range .}}
- {{.}}{{end}}{{end}}
{{- with .Topic.KeyTerms}}

Key terms:
{{- range .}}
- {{.Term}}: {{.Definition}}{{end}}{{end}}
{{- with .Topic.Topics}}

Topics:
{{- range .}}
- {{.}}{{end}}{{end}}

Mix these exercise types: {{range $i, $k := .Kinds}}{{if $i}}, {{end}}{{$k}}{{end}}.
Every exercise needs a unique "id". Indexes are zero-based. For sequence_order, "correct_order" lists item indexes in the correct order.
For image_association, describe the image in "image_prompt" and leave "image_url" empty.

Respond with a single JSON object {"exercises": [...]} where each element validates against this JSON Schema:
{{.Schema}}`))

type promptData struct {
	Request
	Topic  curriculum.Lesson
	Kinds  []exercise.Kind
	Schema string
}

func renderPrompt(tmpl *template.Template, req Request) (string, error) {
	data := promptData{
		Request: req,
		Topic:   req.Topic(),
		Kinds:   exercise.Kinds,
		Schema:  exercise.SchemaJSON(),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
