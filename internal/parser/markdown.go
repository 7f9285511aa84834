package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser parses goals files written as Markdown:
//
//	# Release
//
//	## Goal: Build the binaries
//	**Key**: build
//	**Priority**: 8
//	**Depends on**: lint, docs
//
//	```yaml
//	- id: compile
//	  type: shell
//	  params: {command: go build ./...}
//	```
//
// Unrecognised **Field**: lines land in the goal's metadata and plain
// paragraphs are kept as its notes.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

var (
	goalHeading  = regexp.MustCompile(`^Goal:\s*(.+)$`)
	metadataLine = regexp.MustCompile(`^\*\*([^*]+)\*\*:\s*(.*)$`)
)

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

func (p *MarkdownParser) Parse(r io.Reader) (*GoalsFile, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))

	file := &GoalsFile{}
	goals, err := p.extractGoals(doc, content, file)
	if err != nil {
		return nil, fmt.Errorf("failed to extract goals: %w", err)
	}
	file.Goals = goals
	return file, nil
}

func (p *MarkdownParser) extractGoals(doc ast.Node, source []byte, file *GoalsFile) ([]GoalDef, error) {
	var goals []GoalDef
	var current *GoalDef
	var notes []string

	flush := func() {
		if current == nil {
			return
		}
		if len(notes) > 0 {
			if current.Metadata == nil {
				current.Metadata = make(map[string]any)
			}
			current.Metadata["notes"] = strings.Join(notes, "\n\n")
		}
		goals = append(goals, *current)
		current = nil
		notes = nil
	}

	// Only top-level blocks matter; nested lists and quotes are notes at most.
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(extractText(node, source))
			switch {
			case node.Level == 1 && file.Name == "":
				file.Name = title
			case node.Level == 2:
				flush()
				if m := goalHeading.FindStringSubmatch(title); m != nil {
					current = &GoalDef{Description: strings.TrimSpace(m[1])}
				}
			}

		case *ast.Paragraph:
			if current == nil {
				continue
			}
			var prose []string
			for _, line := range blockLines(node, source) {
				if m := metadataLine.FindStringSubmatch(line); m != nil {
					if err := applyField(current, m[1], m[2]); err != nil {
						return nil, fmt.Errorf("goal %q: %w", current.Description, err)
					}
					continue
				}
				prose = append(prose, line)
			}
			if len(prose) > 0 {
				notes = append(notes, strings.Join(prose, "\n"))
			}

		case *ast.FencedCodeBlock:
			if current == nil {
				continue
			}
			lang := strings.ToLower(string(node.Language(source)))
			if lang != "yaml" && lang != "yml" {
				continue
			}
			block := []byte(strings.Join(blockLines(node, source), "\n"))
			actions, err := parseActionsYAML(block)
			if err != nil {
				return nil, fmt.Errorf("goal %q: %w", current.Description, err)
			}
			current.Actions = append(current.Actions, actions...)
		}
	}
	flush()
	return goals, nil
}

func applyField(goal *GoalDef, name, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "key":
		goal.Key = value
	case "priority":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid priority %q", value)
		}
		goal.Priority = n
	case "depends on", "depends_on", "dependencies":
		for _, dep := range strings.Split(value, ",") {
			if dep = strings.TrimSpace(dep); dep != "" && !strings.EqualFold(dep, "none") {
				goal.DependsOn = append(goal.DependsOn, dep)
			}
		}
	case "source":
		goal.Source = value
	default:
		if goal.Metadata == nil {
			goal.Metadata = make(map[string]any)
		}
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
		goal.Metadata[key] = value
	}
	return nil
}

// blockLines returns the raw source lines of a block node, trimmed.
func blockLines(n ast.Node, source []byte) []string {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(source)), "\r\n"))
	}
	if _, isCode := n.(*ast.FencedCodeBlock); !isCode {
		for i := range out {
			out[i] = strings.TrimSpace(out[i])
		}
	}
	return out
}

// extractText extracts plain text from an AST node
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			continue
		}
		buf.WriteString(extractText(c, source))
	}
	return buf.String()
}
