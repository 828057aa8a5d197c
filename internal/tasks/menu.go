package tasks

import (
	"strings"

	"aiknife/internal/models"
)

// MenuSeparator joins category and action in a menu item id.
const MenuSeparator = "_"

var menuContexts = []string{"selection", "page"}

// MenuItem is one node of the context menu.
type MenuItem struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	ParentID string     `json:"parentId,omitempty"`
	Contexts []string   `json:"contexts"`
	Children []MenuItem `json:"children,omitempty"`
}

// Menu builds the nested context menu from the action table.
func (r *Registry) Menu() []MenuItem {
	items := make([]MenuItem, 0, len(r.categories))
	for _, cat := range r.categories {
		parent := MenuItem{
			ID:       cat.ID,
			Title:    cat.Title,
			Contexts: menuContexts,
			Children: make([]MenuItem, 0, len(cat.Actions)),
		}
		for _, action := range cat.Actions {
			parent.Children = append(parent.Children, MenuItem{
				ID:       MenuID(cat.ID, action.ID),
				Title:    action.Title,
				ParentID: cat.ID,
				Contexts: menuContexts,
			})
		}
		items = append(items, parent)
	}
	return items
}

// MenuID is the id of the menu item for category/action.
func MenuID(category, action string) string {
	return category + MenuSeparator + action
}

// ParseMenuID splits a menu item id into category and action. Only the
// first two segments are significant.
func ParseMenuID(id string) (category, action string, err error) {
	parts := strings.Split(id, MenuSeparator)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", models.Validationf("Unsupported task type: %q", id)
	}
	return parts[0], parts[1], nil
}
