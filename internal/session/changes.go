package session

import "strings"

// ChangeSet buckets every path touched in a workspace.
type ChangeSet struct {
	Modified []string
	Created  []string
	Deleted  []string
}

func (c ChangeSet) Empty() bool {
	return len(c.Modified) == 0 && len(c.Created) == 0 && len(c.Deleted) == 0
}

func (c ChangeSet) Total() int {
	return len(c.Modified) + len(c.Created) + len(c.Deleted)
}

// ParseStatus classifies `git status --porcelain` output. Untracked and
// newly added paths count as created, deletions on either side of the index
// as deleted, everything else as modified. Renames report the new path as
// created and the old path as deleted.
func ParseStatus(out []byte) ChangeSet {
	var changes ChangeSet

	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}

		status := line[:2]
		pathPart := line[3:]

		if idx := strings.Index(pathPart, " -> "); idx != -1 {
			oldPath := pathPart[:idx]
			newPath := pathPart[idx+4:]
			changes.Deleted = append(changes.Deleted, unquote(oldPath))
			changes.Created = append(changes.Created, unquote(newPath))
			continue
		}

		path := unquote(pathPart)

		switch {
		case status == "??" || strings.Contains(status, "A"):
			changes.Created = append(changes.Created, path)
		case strings.Contains(status, "D"):
			changes.Deleted = append(changes.Deleted, path)
		default:
			changes.Modified = append(changes.Modified, path)
		}
	}

	return changes
}

// git quotes paths containing special characters.
func unquote(path string) string {
	if len(path) >= 2 && path[0] == '"' && path[len(path)-1] == '"' {
		return path[1 : len(path)-1]
	}
	return path
}
