package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the root command with args and returns the combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// writeConfig writes a config whose state lives under dir. extra is
// appended verbatim.
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`execution_mode: sequential
log_dir: %s
recovery:
  retry_delay: 0s
  max_attempts: 2
  db_path: %s
%s`, filepath.Join(dir, "logs"), filepath.Join(dir, "strategies.db"), extra)
	if !strings.Contains(extra, "snapshot:") {
		content += fmt.Sprintf("snapshot:\n  backend: file\n  path: %s\n", filepath.Join(dir, "snapshot.json"))
	}
	return writeFile(t, dir, "config.yaml", content)
}

const releaseGoals = `name: release
goals:
  - key: build
    description: Build the artifacts
    priority: 7
    actions:
      - id: write
        type: file.write
        critical: true
        params:
          path: out/artifact.txt
          content: built
      - id: check
        type: file.read
        critical: true
        params:
          path: out/artifact.txt
        depends_on: [write]
  - key: announce
    description: Announce the release
    depends_on: [build]
    actions:
      - id: say
        type: echo
        params:
          message: released
`
