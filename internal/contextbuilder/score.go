package contextbuilder

import (
	"path"
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

const day = 24 * time.Hour

// Importance ranks a file for inclusion in the context. Well-known root
// files and code dominate; recency and small size break ties.
func Importance(fi workspace.FileInfo, now time.Time) int {
	score := 0
	root := path.Dir(fi.Path) == "."
	if root && workspace.IsWellKnownRootFile(fi.Path) {
		score += 10
	}
	if fi.Lang.IsCode() {
		score += 5
	}
	if root {
		score += 3
	}

	switch age := now.Sub(fi.ModTime); {
	case age < day:
		score += 5
	case age < 7*day:
		score += 3
	case age < 30*day:
		score++
	}

	switch {
	case fi.Size < 1024:
		score += 2
	case fi.Size < 10*1024:
		score++
	}
	return score
}
