package contextbuilder

import (
	"fmt"
	"sort"
)

// Retention decides which files survive when a snapshot is over budget.
type Retention string

const (
	RetainImportance Retention = "importance" // highest score first
	RetainRecency    Retention = "recency"    // most recently modified first
	RetainFIFO       Retention = "fifo"       // discovery order
)

const (
	trimmedFileCap      = 20
	trimmedStructureCap = 5
	trimmedRecentCap    = 5
)

// ParseRetention validates a retention policy name. Empty means importance.
func ParseRetention(s string) (Retention, error) {
	switch r := Retention(s); r {
	case "":
		return RetainImportance, nil
	case RetainImportance, RetainRecency, RetainFIFO:
		return r, nil
	}
	return "", fmt.Errorf("unknown retention policy %q (want importance, recency or fifo)", s)
}

// orderFiles sorts files so the ones to keep come first.
func orderFiles(files []FileDescriptor, policy Retention) {
	switch policy {
	case RetainRecency:
		sort.SliceStable(files, func(i, j int) bool {
			return files[i].Modified.After(files[j].Modified)
		})
	case RetainFIFO:
		sort.SliceStable(files, func(i, j int) bool { return files[i].order < files[j].order })
	default:
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].Importance != files[j].Importance {
				return files[i].Importance > files[j].Importance
			}
			return files[i].Path < files[j].Path
		})
	}
}

// trim reduces s until its serialized size fits budget. The file list is
// reordered by policy and capped first; then whole items are dropped from
// the least valuable section until the snapshot fits.
func trim(s *Snapshot, budget int, policy Retention) {
	if budget <= 0 || s.Size() <= budget {
		return
	}
	s.Trimmed = true
	s.Retention = policy

	fsys := &s.FileSystem
	orderFiles(fsys.Files, policy)
	if len(fsys.Files) > trimmedFileCap {
		fsys.Files = fsys.Files[:trimmedFileCap]
	}
	if len(fsys.Recent) > trimmedRecentCap {
		fsys.Recent = fsys.Recent[:trimmedRecentCap]
	}

	rank := make(map[string]int, len(fsys.Files))
	for i, f := range fsys.Files {
		rank[f.Path] = i
	}
	kept := s.CodeStructure[:0]
	for _, cs := range s.CodeStructure {
		if _, ok := rank[cs.Path]; ok {
			kept = append(kept, cs)
		}
	}
	s.CodeStructure = kept
	sort.SliceStable(s.CodeStructure, func(i, j int) bool {
		return rank[s.CodeStructure[i].Path] < rank[s.CodeStructure[j].Path]
	})
	if len(s.CodeStructure) > trimmedStructureCap {
		s.CodeStructure = s.CodeStructure[:trimmedStructureCap]
	}

	for s.Size() > budget {
		switch {
		case len(s.Dependencies.Imports) > 0:
			s.Dependencies.Imports = nil
		case len(s.CodeStructure) > 0:
			s.CodeStructure = s.CodeStructure[:len(s.CodeStructure)-1]
		case len(fsys.Recent) > 0:
			fsys.Recent = fsys.Recent[:len(fsys.Recent)-1]
		case len(fsys.Files) > 0:
			fsys.Files = fsys.Files[:len(fsys.Files)-1]
		case len(s.Conversation) > 0:
			s.Conversation = s.Conversation[1:]
		case s.Dependencies.Manifest != nil:
			s.Dependencies.Manifest = nil
		default:
			return
		}
	}
}
