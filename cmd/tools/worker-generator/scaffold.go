// cmd/tools/worker-generator/scaffold.go
package main

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"unicode"

	"image-collector/pkg/registry"
)

// Field is one property of a generated Input or Output struct.
type Field struct {
	GoName      string
	GoType      string
	JSONName    string
	Description string
	Required    bool
}

// WorkerData holds data for templates
type WorkerData struct {
	ID           string
	Name         string
	PackageName  string
	Group        string
	Queue        string
	Description  string
	Timeout      string
	Retries      int
	ErrorCodes   []string
	InputFields  []Field
	OutputFields []Field
}

// RequiredStrings are the input fields Validate checks for emptiness.
func (d WorkerData) RequiredStrings() []Field {
	var out []Field
	for _, f := range d.InputFields {
		if f.Required && f.GoType == "string" {
			out = append(out, f)
		}
	}
	return out
}

func newWorkerData(jt registry.JobType, group string) WorkerData {
	return WorkerData{
		ID:           jt.ID,
		Name:         jt.DisplayName,
		PackageName:  packageName(jt.ID),
		Group:        group,
		Queue:        jt.Queue,
		Description:  jt.Description,
		Timeout:      jt.Timeout,
		Retries:      jt.Retries,
		ErrorCodes:   jt.ErrorCodes,
		InputFields:  schemaFields(jt.InputSchema),
		OutputFields: schemaFields(jt.OutputSchema),
	}
}

// schemaFields extracts the top-level properties of a JSON schema object,
// sorted by name so generated structs are stable.
func schemaFields(schema map[string]interface{}) []Field {
	props, _ := schema["properties"].(map[string]interface{})
	required := map[string]bool{}
	if req, ok := schema["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}
	if req, ok := schema["required"].([]string); ok {
		for _, s := range req {
			required[s] = true
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		details, _ := props[name].(map[string]interface{})
		desc, _ := details["description"].(string)
		fields = append(fields, Field{
			GoName:      exportedName(name),
			GoType:      goTypeFromSchema(details),
			JSONName:    name,
			Description: desc,
			Required:    required[name],
		})
	}
	return fields
}

// goTypeFromSchema maps JSON schema types to Go types
func goTypeFromSchema(details map[string]interface{}) string {
	switch details["type"] {
	case "string":
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		items, _ := details["items"].(map[string]interface{})
		if items != nil {
			return "[]" + goTypeFromSchema(items)
		}
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

// exportedName turns json names like "item-keys" or "batch_size" into ItemKeys
// and BatchSize.
func exportedName(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '-' || r == '_' || r == ' ' {
			upper = true
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "F" + out
	}
	if strings.EqualFold(out, "id") {
		return "ID"
	}
	return out
}

func packageName(id string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "", ".", "").Replace(id))
}

const configTemplate = `// internal/workers/{{ .Group }}/{{ .ID }}/config.go
package {{ .PackageName }}

import (
	"time"

	"image-collector/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	q := config.GetQueueConfig(cfg, "{{ .Queue }}")
	return &Config{
		Timeout: config.GetDuration(q.Timeout),
	}
}
`

const modelsTemplate = `// internal/workers/{{ .Group }}/{{ .ID }}/models.go
package {{ .PackageName }}
{{ if .RequiredStrings }}
import "fmt"
{{ end }}
type Input struct {
{{- range .InputFields }}
	{{ .GoName }} {{ .GoType }} ` + "`" + `json:"{{ .JSONName }}{{ if not .Required }},omitempty{{ end }}"` + "`" + `{{ if .Description }} // {{ .Description }}{{ end }}
{{- end }}
}

func (Input) JobType() string { return TaskType }

func (i Input) Validate() error {
{{- range .RequiredStrings }}
	if i.{{ .GoName }} == "" {
		return fmt.Errorf("{{ .JSONName }} is required")
	}
{{- end }}
	return nil
}

type Output struct {
{{- range .OutputFields }}
	{{ .GoName }} {{ .GoType }} ` + "`" + `json:"{{ .JSONName }},omitempty"` + "`" + `
{{- end }}
}
`

const handlerTemplate = `// internal/workers/{{ .Group }}/{{ .ID }}/handler.go
package {{ .PackageName }}

import (
	"context"
	"fmt"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/scheduler"
)

const (
	TaskType = "{{ .ID }}"
)

// Handler runs {{ .ID }} jobs from the {{ .Queue }} queue.
type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, job scheduler.Job, progress scheduler.ProgressFunc) (interface{}, error) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobId":   job.ID,
		"attempt": job.AttemptsMade + 1,
	})

	var input Input
	if err := job.Decode(&input); err != nil {
		return nil, apperrors.NewInvalidPayloadError(TaskType, fmt.Sprintf("parse input: %v", err))
	}
	if err := input.Validate(); err != nil {
		return nil, apperrors.NewInvalidPayloadError(TaskType, err.Error())
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	output, err := h.execute(ctx, &input, progress)
	if err != nil {
		h.logger.Error("job failed", map[string]interface{}{
			"jobId":     job.ID,
			"errorCode": string(apperrors.CodeOf(err)),
			"error":     err.Error(),
		})
		return nil, err
	}
	return output, nil
}

func (h *Handler) execute(ctx context.Context, input *Input, progress scheduler.ProgressFunc) (*Output, error) {
	if progress != nil {
		progress(100)
	}
	return &Output{}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input, nil)
}
`

const testTemplate = `// internal/workers/{{ .Group }}/{{ .ID }}/handler_test.go
package {{ .PackageName }}

import (
	"context"
	"testing"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_InvalidPayload(t *testing.T) {
	h := NewHandler(&Config{}, logger.NewTestLogger(t))

	_, err := h.Handle(context.Background(), scheduler.Job{ID: "job-1", Payload: []byte("{")}, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidPayload, apperrors.CodeOf(err))
}

func TestInput_Validate(t *testing.T) {
{{- if .RequiredStrings }}
	assert.Error(t, Input{}.Validate())
{{- else }}
	assert.NoError(t, Input{}.Validate())
{{- end }}
}
`

var templates = []struct {
	file string
	body string
}{
	{"config.go", configTemplate},
	{"models.go", modelsTemplate},
	{"handler.go", handlerTemplate},
	{"handler_test.go", testTemplate},
}

// render executes every template and gofmts the result.
func render(data WorkerData) (map[string][]byte, error) {
	out := make(map[string][]byte, len(templates))
	for _, t := range templates {
		tmpl, err := template.New(t.file).Parse(t.body)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", t.file, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("execute template %s: %w", t.file, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", t.file, err)
		}
		out[t.file] = src
	}
	return out, nil
}

// writeScaffold renders data into dir. Existing files are kept unless force
// is set.
func writeScaffold(dir string, data WorkerData, force bool) ([]string, error) {
	files, err := render(data)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	var written []string
	for _, t := range templates {
		path := filepath.Join(dir, t.file)
		if _, err := os.Stat(path); err == nil && !force {
			continue
		}
		if err := os.WriteFile(path, files[t.file], 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
