package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Format represents the format of a goals file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatMarkdown represents a Markdown (.md, .markdown) goals file
	FormatMarkdown
	// FormatYAML represents a YAML (.yaml, .yml) goals file
	FormatYAML
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Parser is the interface that all goals-file parsers must implement
type Parser interface {
	// Parse reads from an io.Reader and returns the parsed goals
	Parse(r io.Reader) (*GoalsFile, error)
}

// DetectFormat automatically detects the goals-file format based on file extension
// Supported extensions:
//   - .md, .markdown -> FormatMarkdown
//   - .yaml, .yml -> FormatYAML
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// NewParser creates a new parser instance for the specified format
// Returns an error if the format is unknown or unsupported
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	case FormatYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile parses a goals file, or every numbered goals file in a directory
// (1-build.yaml, 2-deploy.md, ...) merged in numeric order. The absolute path
// is stored in FilePath. The result is not validated; call Validate.
func ParseFile(path string) (*GoalsFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if info.IsDir() {
		return ParseDirectory(path)
	}

	file, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	file.FilePath = absPath
	for i := range file.Goals {
		file.Goals[i].SourceFile = absPath
	}
	file.Normalize()
	return file, nil
}

func parseFile(path string) (*GoalsFile, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .md, .markdown, .yaml, .yml)", path)
	}

	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	file, err := parser.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse goals: %w", err)
	}
	return file, nil
}

var numberedFile = regexp.MustCompile(`^(\d+)-`)

// IsSplitGoals reports whether dirname holds numbered goals files.
func IsSplitGoals(dirname string) bool {
	entries, err := os.ReadDir(dirname)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && numberedFile.MatchString(entry.Name()) && DetectFormat(entry.Name()) != FormatUnknown {
			return true
		}
	}
	return false
}

// ParseDirectory loads all numbered goals files from a directory
// and merges them into a single GoalsFile.
func ParseDirectory(dirname string) (*GoalsFile, error) {
	entries, err := os.ReadDir(dirname)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	type goalsFile struct {
		index int
		path  string
		name  string
	}

	var files []goalsFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		match := numberedFile.FindStringSubmatch(entry.Name())
		if match == nil || DetectFormat(entry.Name()) == FormatUnknown {
			continue
		}
		var index int
		fmt.Sscanf(match[1], "%d", &index)
		files = append(files, goalsFile{index, filepath.Join(dirname, entry.Name()), entry.Name()})
	}

	absPath, err := filepath.Abs(dirname)
	if err != nil {
		absPath = dirname
	}

	if len(files) == 0 {
		return &GoalsFile{Name: filepath.Base(dirname), FilePath: absPath}, nil
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].index < files[j].index })

	var parsed []*GoalsFile
	for _, gf := range files {
		file, err := parseFile(gf.path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", gf.name, err)
		}
		for i := range file.Goals {
			file.Goals[i].SourceFile = gf.path
		}
		parsed = append(parsed, file)
	}

	merged, err := Merge(parsed...)
	if err != nil {
		return nil, err
	}
	if merged.Name == "" {
		merged.Name = filepath.Base(dirname)
	}
	merged.FilePath = absPath
	merged.Normalize()
	return merged, nil
}

// Merge concatenates goals files in order. Goal keys must stay unique across
// files; the first non-empty name wins.
func Merge(files ...*GoalsFile) (*GoalsFile, error) {
	merged := &GoalsFile{}
	seen := make(map[string]string)

	for _, file := range files {
		if file == nil {
			continue
		}
		if merged.Name == "" {
			merged.Name = file.Name
		}
		for _, goal := range file.Goals {
			if goal.Key != "" {
				if prev, dup := seen[goal.Key]; dup {
					return nil, fmt.Errorf("duplicate goal key %q (%s and %s)", goal.Key, prev, goal.SourceFile)
				}
				seen[goal.Key] = goal.SourceFile
			}
			merged.Goals = append(merged.Goals, goal)
		}
	}
	return merged, nil
}
