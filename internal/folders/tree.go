package folders

import (
	"context"
	"iter"

	"github.com/starford/stash/internal/models"
)

// BuildTree nests a flat folder list in two passes: index every folder, then
// attach each to its parent. Sibling order follows the input order. A folder
// whose parent is absent from the list is returned as a root.
func BuildTree(list []models.Folder) []*models.FolderNode {
	nodes := make(map[string]*models.FolderNode, len(list))
	for _, f := range list {
		nodes[f.ID] = &models.FolderNode{Folder: f, Children: []*models.FolderNode{}}
	}

	roots := []*models.FolderNode{}
	for _, f := range list {
		n := nodes[f.ID]
		if f.ParentID != nil {
			if p, ok := nodes[*f.ParentID]; ok {
				p.Children = append(p.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}

// Descendants returns a lazy breadth-first sequence of the ids of every folder
// below folderID, read from one snapshot of the user's folders.
func (s *Service) Descendants(ctx context.Context, userID, folderID string) (iter.Seq[string], error) {
	if err := s.Validate(ctx, userID, folderID); err != nil {
		return nil, err
	}
	list, err := s.db.ListFolders(ctx, userID)
	if err != nil {
		return nil, err
	}
	return descendants(childIndex(list), folderID), nil
}

func childIndex(list []models.Folder) map[string][]string {
	children := make(map[string][]string)
	for _, f := range list {
		if f.ParentID != nil {
			children[*f.ParentID] = append(children[*f.ParentID], f.ID)
		}
	}
	return children
}

func descendants(children map[string][]string, root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := map[string]struct{}{root: {}}
		queue := append([]string(nil), children[root]...)
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if !yield(id) {
				return
			}
			queue = append(queue, children[id]...)
		}
	}
}
