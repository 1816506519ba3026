// Package prompt renders the system and user prompts for every oracle call.
// Defaults are baked into the binary; any template can be replaced by a
// same-named .tmpl file in an override directory.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"battlescribe/internal/logging"
)

// embeddedTemplates contains the default prompt templates.
//
//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// Template names. Each pipeline call uses a <name>_system / <name>_user pair.
const (
	NameSetup   = "setup"
	NameReflect = "reflect"
	NameTurn    = "turn"
	NameJudge   = "judge"
)

// SetupData feeds the setup extraction prompts.
type SetupData struct {
	UploadingPlayer string
	Transcript      string
	Schema          string
}

// ReflectData feeds the setup judge prompts.
type ReflectData struct {
	UploadingPlayer string
	SetupJSON       string
	Winner          string
	TurnCount       int
}

// TurnData feeds the turn extraction prompts.
type TurnData struct {
	UploadingPlayer string
	Number          int // 1-based block number
	TurnText        string
	Schema          string
	Feedback        string // previous rejection reason, empty for blind retries
}

// JudgeData feeds the turn completeness prompts.
type JudgeData struct {
	TurnText string
	TurnJSON string
}

// Set is a parsed template collection. Safe for concurrent use.
type Set struct {
	tmpl *template.Template
}

// Load parses the embedded templates and applies overrides from dir.
// An empty dir or a missing directory means defaults only.
func Load(dir string) (*Set, error) {
	tmpl, err := template.New("prompts").Option("missingkey=error").ParseFS(embeddedTemplates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded prompts: %w", err)
	}

	if dir != "" {
		overrides, err := filepath.Glob(filepath.Join(dir, "*.tmpl"))
		if err != nil {
			return nil, fmt.Errorf("failed to list prompt overrides: %w", err)
		}
		for _, path := range overrides {
			name := filepath.Base(path)
			if tmpl.Lookup(name) == nil {
				return nil, fmt.Errorf("unknown prompt override %s", name)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read prompt override: %w", err)
			}
			if _, err := tmpl.New(name).Parse(string(data)); err != nil {
				return nil, fmt.Errorf("failed to parse prompt override %s: %w", name, err)
			}
			logging.Boot("Prompt override loaded: %s", path)
		}
	}

	return &Set{tmpl: tmpl}, nil
}

// MustDefault returns the embedded templates and panics if they do not parse.
func MustDefault() *Set {
	s, err := Load("")
	if err != nil {
		panic(err)
	}
	return s
}

// Render executes the <name>_system and <name>_user templates.
func (s *Set) Render(name string, data interface{}) (system, user string, err error) {
	if system, err = s.execute(name+"_system.tmpl", data); err != nil {
		return "", "", err
	}
	if user, err = s.execute(name+"_user.tmpl", data); err != nil {
		return "", "", err
	}
	return system, user, nil
}

func (s *Set) execute(name string, data interface{}) (string, error) {
	t := s.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("prompt template %s not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Setup renders the setup extraction prompts.
func (s *Set) Setup(d SetupData) (string, string, error) { return s.Render(NameSetup, d) }

// Reflect renders the setup judge prompts.
func (s *Set) Reflect(d ReflectData) (string, string, error) { return s.Render(NameReflect, d) }

// Turn renders the turn extraction prompts.
func (s *Set) Turn(d TurnData) (string, string, error) { return s.Render(NameTurn, d) }

// Judge renders the turn completeness prompts.
func (s *Set) Judge(d JudgeData) (string, string, error) { return s.Render(NameJudge, d) }
