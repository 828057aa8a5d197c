package tasks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiknife/internal/models"
)

func TestMenu(t *testing.T) {
	menu := Default().Menu()

	var top []string
	for _, item := range menu {
		top = append(top, item.ID)
		assert.Empty(t, item.ParentID)
		assert.Equal(t, []string{"selection", "page"}, item.Contexts)
		for _, child := range item.Children {
			assert.Equal(t, item.ID, child.ParentID)
			cat, action, err := ParseMenuID(child.ID)
			require.NoError(t, err)
			assert.Equal(t, item.ID, cat)
			assert.NotEmpty(t, action)
		}
	}
	assert.Equal(t, []string{"write", "analyze", "code", "translate", "assist", "social"}, top)

	require.NotEmpty(t, menu[0].Children)
	assert.Equal(t, "write_email", menu[0].Children[0].ID)
	assert.Equal(t, "Email", menu[0].Children[0].Title)
}

func TestParseMenuID(t *testing.T) {
	tests := []struct {
		id       string
		category string
		action   string
		wantErr  bool
	}{
		{id: "analyze_summarize", category: "analyze", action: "summarize"},
		{id: "code_explain_extra", category: "code", action: "explain"},
		{id: "analyze", wantErr: true},
		{id: "_summarize", wantErr: true},
		{id: "analyze_", wantErr: true},
		{id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			cat, action, err := ParseMenuID(tt.id)
			if tt.wantErr {
				assert.True(t, errors.Is(err, models.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, cat)
			assert.Equal(t, tt.action, action)
		})
	}
}
