package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// Discover scans root for skill subdirectories (each a potential
// SKILL.md or legacy skill.json+prompt.md bundle) and returns the
// successfully parsed ones, sorted by name. A subdirectory that fails
// to parse is skipped with its error collected rather than aborting
// the whole scan, matching the teacher's discovery.go's
// tolerant-of-one-bad-skill behavior.
func Discover(root string) ([]models.Skill, []error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("skills: stat %s: %w", root, err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("skills: %s is not a directory", root)}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, []error{fmt.Errorf("skills: read %s: %w", root, err)}
	}

	var (
		found []models.Skill
		errs  []error
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		entry, err := ParseDir(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		found = append(found, entry)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, errs
}
