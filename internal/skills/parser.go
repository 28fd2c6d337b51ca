// Package skills discovers and parses capability bundles: the modern
// SKILL.md (YAML frontmatter + markdown body) format and the legacy
// skill.json+prompt.md pair. Grounded on the teacher's internal/skills
// (parser.go's frontmatter split, types.go's metadata shape), narrowed
// to the fields spec.md §3's models.Skill actually carries — the
// teacher's install/gating/source-priority machinery is out of scope
// here (no package-manager install flow, no multi-source conflict
// resolution; see SPEC_FULL.md §4.13).
package skills

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// SkillFilename is the expected filename for the modern skill format.
const SkillFilename = "SKILL.md"

// LegacyManifest and LegacyPrompt are the two files of the legacy
// skill format.
const (
	LegacyManifest = "skill.json"
	LegacyPrompt   = "prompt.md"
)

const frontmatterDelimiter = "---"

// MaxSkillFileSize bounds a single SKILL.md (or legacy pair) to guard
// against a malformed or hostile skill directory exhausting memory.
const MaxSkillFileSize = 1 << 20 // 1 MiB

// frontmatter is the YAML shape parsed out of a SKILL.md's header.
type frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Always      bool     `yaml:"always"`
	RequiresEnv []string `yaml:"requires_env"`
}

// legacyManifest is the JSON shape of a legacy skill.json.
type legacyManifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Always      bool     `json:"always"`
	RequiresEnv []string `json:"requires_env"`
}

// ParseDir loads a skill from dir, preferring the modern SKILL.md
// format and falling back to the legacy skill.json+prompt.md pair.
func ParseDir(dir string) (models.Skill, error) {
	skillMD := filepath.Join(dir, SkillFilename)
	if _, err := os.Stat(skillMD); err == nil {
		return parseSkillFile(skillMD)
	}
	return parseLegacy(dir)
}

func parseSkillFile(path string) (models.Skill, error) {
	data, err := readBounded(path)
	if err != nil {
		return models.Skill{}, err
	}
	return parseSkillContent(data, filepath.Dir(path))
}

func parseSkillContent(data []byte, dir string) (models.Skill, error) {
	fm, _, err := splitFrontmatter(data)
	if err != nil {
		return models.Skill{}, fmt.Errorf("skills: %s: %w", dir, err)
	}
	var meta frontmatter
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return models.Skill{}, fmt.Errorf("skills: %s: parse frontmatter: %w", dir, err)
	}
	entry := models.Skill{
		Name:        meta.Name,
		Description: meta.Description,
		Path:        dir,
		Always:      meta.Always,
		RequiresEnv: meta.RequiresEnv,
	}
	if err := Validate(entry); err != nil {
		return models.Skill{}, err
	}
	return entry, nil
}

// splitFrontmatter separates the leading "---"-delimited YAML block
// from the markdown body that follows it.
func splitFrontmatter(data []byte) (frontmatterBytes, body []byte, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty skill file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan skill file: %w", err)
	}
	return []byte(strings.Join(fmLines, "\n")), []byte(strings.TrimSpace(strings.Join(bodyLines, "\n"))), nil
}

func parseLegacy(dir string) (models.Skill, error) {
	manifestPath := filepath.Join(dir, LegacyManifest)
	data, err := readBounded(manifestPath)
	if err != nil {
		return models.Skill{}, fmt.Errorf("skills: %s: no SKILL.md or skill.json found", dir)
	}
	var m legacyManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return models.Skill{}, fmt.Errorf("skills: %s: parse skill.json: %w", dir, err)
	}
	promptPath := filepath.Join(dir, LegacyPrompt)
	if _, err := os.Stat(promptPath); err != nil {
		return models.Skill{}, fmt.Errorf("skills: %s: missing prompt.md for legacy skill", dir)
	}
	entry := models.Skill{
		Name:        m.Name,
		Description: m.Description,
		Path:        dir,
		Always:      m.Always,
		RequiresEnv: m.RequiresEnv,
	}
	if err := Validate(entry); err != nil {
		return models.Skill{}, err
	}
	return entry, nil
}

func readBounded(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxSkillFileSize {
		return nil, fmt.Errorf("skills: %s: exceeds max size of %d bytes", path, MaxSkillFileSize)
	}
	return os.ReadFile(path)
}

// Validate checks a parsed skill against the naming and required-field
// rules (spec.md §4.13): name required, lowercase-alphanumeric-hyphen
// only; description required.
func Validate(entry models.Skill) error {
	if entry.Name == "" {
		return fmt.Errorf("skills: name is required")
	}
	for _, r := range entry.Name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("skills: name must be lowercase alphanumeric with hyphens: got %q", entry.Name)
		}
	}
	if entry.Description == "" {
		return fmt.Errorf("skills: %s: description is required", entry.Name)
	}
	return nil
}

// PromptBody returns the skill's injectable instruction text: the
// SKILL.md body, or the legacy prompt.md contents.
func PromptBody(entry models.Skill) (string, error) {
	skillMD := filepath.Join(entry.Path, SkillFilename)
	if data, err := readBounded(skillMD); err == nil {
		_, body, err := splitFrontmatter(data)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}
	data, err := readBounded(filepath.Join(entry.Path, LegacyPrompt))
	if err != nil {
		return "", fmt.Errorf("skills: %s: read prompt.md: %w", entry.Name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
