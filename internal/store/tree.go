package store

import "errors"

// ErrFolderCycle is returned by MoveFolder when the requested parent is the
// folder itself or one of its descendants.
var ErrFolderCycle = errors.New("folder move would create a cycle")

// maxPathDepth bounds ancestor walks so corrupt parent links cannot loop
// forever.
const maxPathDepth = 1000

// onAncestorPath reports whether target appears on the parent chain starting
// at parentID (inclusive). parentOf returns a folder's parent and whether the
// folder exists; a missing folder truncates the walk.
func onAncestorPath(target string, parentID *string, parentOf func(id string) (*string, bool)) bool {
	current := parentID
	for depth := 0; current != nil && depth < maxPathDepth; depth++ {
		if *current == target {
			return true
		}
		next, ok := parentOf(*current)
		if !ok {
			return false
		}
		current = next
	}
	return false
}

// reorderSiblings takes sibling ids sorted by their current order, removes
// moveID, and reinserts it at newIndex. Out-of-range indexes clamp: negative
// to the front, past-the-end to an append. The returned slice is the new
// dense ordering; assigning position index to each id yields 0..n-1.
func reorderSiblings(orderedIDs []string, moveID string, newIndex int) []string {
	rest := make([]string, 0, len(orderedIDs))
	found := false
	for _, id := range orderedIDs {
		if id == moveID {
			found = true
			continue
		}
		rest = append(rest, id)
	}
	if !found {
		return orderedIDs
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(rest) {
		newIndex = len(rest)
	}
	result := make([]string, 0, len(orderedIDs))
	result = append(result, rest[:newIndex]...)
	result = append(result, moveID)
	result = append(result, rest[newIndex:]...)
	return result
}

// walkPath builds the root-to-folder path by following parent links upward,
// prepending at each step. A dangling parent reference truncates the path
// rather than failing.
func walkPath(folderID string, lookup func(id string) (name string, parentID *string, ok bool)) []PathEntry {
	path := make([]PathEntry, 0, 4)
	current := &folderID
	for depth := 0; current != nil && depth < maxPathDepth; depth++ {
		name, parent, ok := lookup(*current)
		if !ok {
			break
		}
		path = append([]PathEntry{{ID: *current, Name: name}}, path...)
		current = parent
	}
	return path
}
