package skills

import "github.com/weave-logic-ai/weft/pkg/models"

// EnvLookup abstracts environment variable lookup so gating can be
// tested without touching the process environment.
type EnvLookup func(key string) (string, bool)

// Gate reports whether entry should be made available given envLookup.
// A skill marked Always bypasses gating entirely; otherwise every
// RequiresEnv variable must be set (spec.md §4.13).
func Gate(entry models.Skill, envLookup EnvLookup) bool {
	if entry.Always {
		return true
	}
	for _, key := range entry.RequiresEnv {
		if _, ok := envLookup(key); !ok {
			return false
		}
	}
	return true
}

// FilterGated returns the subset of entries that pass Gate.
func FilterGated(entries []models.Skill, envLookup EnvLookup) []models.Skill {
	out := make([]models.Skill, 0, len(entries))
	for _, e := range entries {
		if Gate(e, envLookup) {
			out = append(out, e)
		}
	}
	return out
}
