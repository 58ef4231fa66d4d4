package core

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates
var templateFS embed.FS

// gitignoreEntries are the local state files a workspace should not commit.
var gitignoreEntries = []string{".knc/", ".knc_events.jsonl"}

// InitConfig holds the parameters for initializing a knc workspace.
type InitConfig struct {
	BasePath       string
	Backend        string
	PlatformURL    string
	TimeoutSeconds int
	SeedDefaults   bool
}

// InitResult holds a summary of what was created vs. skipped.
type InitResult struct {
	Created []string
	Skipped []string
}

// WorkspaceInitializer prepares a directory for knc: a commented
// .kncconfig, the storage directory and .gitignore entries for local state.
type WorkspaceInitializer interface {
	Init(config InitConfig) (*InitResult, error)
}

type workspaceInitializer struct{}

// NewWorkspaceInitializer creates a new WorkspaceInitializer.
func NewWorkspaceInitializer() WorkspaceInitializer {
	return &workspaceInitializer{}
}

// Init is safe to run on an existing workspace: files that already exist
// are skipped and not overwritten.
func (wi *workspaceInitializer) Init(config InitConfig) (*InitResult, error) {
	defaults := DefaultAppConfig()
	if config.Backend == "" {
		config.Backend = defaults.Storage.Backend
	}
	if config.PlatformURL == "" {
		config.PlatformURL = defaults.Platform.BaseURL
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = defaults.Platform.TimeoutSeconds
	}
	if !validBackends[config.Backend] {
		return nil, fmt.Errorf("initializing workspace: storage backend %q is invalid, must be one of: file, redis, sql, memory", config.Backend)
	}

	result := &InitResult{}
	for _, dir := range []string{config.BasePath, filepath.Join(config.BasePath, defaults.Storage.Dir)} {
		created, err := ensureDir(dir)
		if err != nil {
			return nil, fmt.Errorf("initializing workspace: creating directory %s: %w", dir, err)
		}
		if created {
			result.Created = append(result.Created, dir)
		} else {
			result.Skipped = append(result.Skipped, dir)
		}
	}

	configPath := filepath.Join(config.BasePath, ConfigFileName)
	if err := writeFileIfNotExists(configPath, func() ([]byte, error) {
		return renderTemplate("kncconfig.yaml", config)
	}, result); err != nil {
		return nil, err
	}

	if err := ensureGitignore(filepath.Join(config.BasePath, ".gitignore"), result); err != nil {
		return nil, err
	}
	return result, nil
}

// ensureDir creates a directory if it does not exist. Returns true if created.
func ensureDir(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileIfNotExists writes content from contentFn if the file does not exist.
// It records created/skipped in the result.
func writeFileIfNotExists(path string, contentFn func() ([]byte, error), result *InitResult) error {
	if _, err := os.Stat(path); err == nil {
		result.Skipped = append(result.Skipped, path)
		return nil
	}
	content, err := contentFn()
	if err != nil {
		return fmt.Errorf("initializing workspace: generating content for %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("initializing workspace: writing %s: %w", path, err)
	}
	result.Created = append(result.Created, path)
	return nil
}

// ensureGitignore appends the local state entries missing from path,
// creating the file when needed.
func ensureGitignore(path string, result *InitResult) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("initializing workspace: reading %s: %w", path, err)
	}
	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, e := range gitignoreEntries {
		if !present[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		result.Skipped = append(result.Skipped, path)
		return nil
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString("# knc local state\n")
	for _, e := range missing {
		buf.WriteString(e + "\n")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("initializing workspace: writing %s: %w", path, err)
	}
	result.Created = append(result.Created, path)
	return nil
}

// renderTemplate reads an embedded template by name, renders it with
// text/template using the given data, and returns the rendered bytes.
func renderTemplate(templateName string, data any) ([]byte, error) {
	tmplContent, err := templateFS.ReadFile("templates/" + templateName)
	if err != nil {
		return nil, fmt.Errorf("loading template %s: %w", templateName, err)
	}
	tmpl, err := template.New(templateName).Parse(string(tmplContent))
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", templateName, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering template %s: %w", templateName, err)
	}
	return buf.Bytes(), nil
}
