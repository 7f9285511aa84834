package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/pursuit/internal/models"
)

// YAMLParser parses goals files of the form
//
//	name: release
//	goals:
//	  - key: build
//	    description: Build the binaries
//	    priority: 8
//	    depends_on: [lint]
//	    actions:
//	      - id: compile
//	        type: shell
//	        params: {command: go build ./...}
type YAMLParser struct{}

type yamlGoalsFile struct {
	Name  string     `yaml:"name"`
	Goals []yamlGoal `yaml:"goals"`
}

type yamlGoal struct {
	Key         string         `yaml:"key"`
	Description string         `yaml:"description"`
	Priority    int            `yaml:"priority"`
	DependsOn   []string       `yaml:"depends_on"`
	Metadata    map[string]any `yaml:"metadata"`
	Source      string         `yaml:"source"`
	Actions     []yamlAction   `yaml:"actions"`
}

type yamlAction struct {
	ID           string         `yaml:"id"`
	Type         string         `yaml:"type"`
	Params       map[string]any `yaml:"params"`
	Description  string         `yaml:"description"`
	DependsOn    []string       `yaml:"depends_on"`
	Critical     *bool          `yaml:"critical"`
	IsCritical   *bool          `yaml:"is_critical"`
	Timeout      string         `yaml:"timeout"`
	Alternatives []string       `yaml:"alternatives"`
}

func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

func (p *YAMLParser) Parse(r io.Reader) (*GoalsFile, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var raw yamlGoalsFile
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	file := &GoalsFile{Name: raw.Name}
	for i, g := range raw.Goals {
		actions, err := convertActions(g.Actions)
		if err != nil {
			return nil, fmt.Errorf("goal %d: %w", i+1, err)
		}
		file.Goals = append(file.Goals, GoalDef{
			Key:         g.Key,
			Description: g.Description,
			Priority:    g.Priority,
			DependsOn:   g.DependsOn,
			Metadata:    g.Metadata,
			Source:      g.Source,
			Actions:     actions,
		})
	}
	return file, nil
}

// parseActionsYAML decodes an action list, either bare or under an
// "actions:" key. Used for fenced blocks in Markdown goals files.
func parseActionsYAML(content []byte) ([]models.ActionSpec, error) {
	var list []yamlAction
	listErr := yaml.Unmarshal(content, &list)
	if listErr != nil {
		var wrapped struct {
			Actions []yamlAction `yaml:"actions"`
		}
		if err := yaml.Unmarshal(content, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse actions block: %w", listErr)
		}
		list = wrapped.Actions
	}
	return convertActions(list)
}

func convertActions(raw []yamlAction) ([]models.ActionSpec, error) {
	specs := make([]models.ActionSpec, 0, len(raw))
	for _, a := range raw {
		spec := models.ActionSpec{
			ID:           a.ID,
			Type:         a.Type,
			Params:       convertParams(a.Params),
			Description:  a.Description,
			DependsOn:    a.DependsOn,
			Alternatives: a.Alternatives,
		}
		switch {
		case a.IsCritical != nil:
			spec.Critical = *a.IsCritical
		case a.Critical != nil:
			spec.Critical = *a.Critical
		}
		if a.Timeout != "" {
			d, err := time.ParseDuration(a.Timeout)
			if err != nil {
				return nil, fmt.Errorf("action %s: invalid timeout %q: %w", a.ID, a.Timeout, err)
			}
			spec.Timeout = d
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// convertParams turns raw YAML values into params. A mapping holding a
// string "ref" (and optionally "field") and nothing else is a reference to
// another action's result; every other value is a literal.
func convertParams(raw map[string]any) map[string]models.Param {
	if len(raw) == 0 {
		return nil
	}
	params := make(map[string]models.Param, len(raw))
	for k, v := range raw {
		if ref, ok := asReference(v); ok {
			params[k] = ref
			continue
		}
		params[k] = models.Literal(v)
	}
	return params
}

func asReference(v any) (models.Param, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return models.Param{}, false
	}
	actionID, ok := m["ref"].(string)
	if !ok || actionID == "" {
		return models.Param{}, false
	}
	field := ""
	for key, val := range m {
		switch key {
		case "ref":
		case "field":
			s, ok := val.(string)
			if !ok {
				return models.Param{}, false
			}
			field = s
		default:
			return models.Param{}, false
		}
	}
	return models.Ref(actionID, field), true
}
