package manifest

import "github.com/gdg-garage/achievement-atlas-api/internal/domain"

// buildTree assembles the category forest from the flat map, starting at
// rootIDs. Ids without an entry are skipped and every id is emitted at most
// once.
func buildTree(data map[int]*CategoryEntry, rootIDs []int) []domain.Category {
	seen := make(map[int]bool, len(data))
	var build func(id int) (domain.Category, bool)
	build = func(id int) (domain.Category, bool) {
		entry, ok := data[id]
		if !ok || seen[id] {
			return domain.Category{}, false
		}
		seen[id] = true
		node := domain.Category{ID: entry.ID, Name: entry.Name, Children: []domain.Category{}}
		for _, childID := range entry.ChildIDs {
			if child, ok := build(childID); ok {
				node.Children = append(node.Children, child)
			}
		}
		return node, true
	}

	categories := make([]domain.Category, 0, len(rootIDs))
	for _, id := range rootIDs {
		if node, ok := build(id); ok {
			categories = append(categories, node)
		}
	}
	return categories
}
