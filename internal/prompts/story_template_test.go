package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"volitus/server/internal/interfaces"
	"volitus/server/internal/models"
)

func TestTemplateEngine_RendersChapterPrompt(t *testing.T) {
	req := require.New(t)
	engine := NewTemplateEngine()

	ctx := BuildChapterContext(interfaces.GenerateRequest{
		Meta: models.StoryMeta{Title: "Night Market"},
		Current: &models.Chapter{ID: 4, Roles: []models.Role{
			{ID: "hero", Name: "Lin", Dialogues: []models.Dialogue{{Time: 1000, Text: "Who goes there?"}}},
			{ID: "fox", Name: "Fox", Dialogues: []models.Dialogue{{Time: 0, Text: "Psst."}}},
		}},
		Interactions: []models.Interaction{
			{UserID: "u1", Type: "text", Content: "follow the fox"},
			{UserID: "u2", Type: "video"},
		},
		NumOptions: 3,
	})

	out, err := engine.Render(ChapterBranchesUser, ctx)

	req.NoError(err)
	req.Contains(out, "Night Market")
	req.Contains(out, "Current chapter (4)")
	req.Contains(out, "[0ms] Fox: Psst.\n[1000ms] Lin: Who goes there?")
	req.Contains(out, "- u1 (text): follow the fox")
	req.NotContains(out, "u2")
	req.Contains(out, "Write 3 distinct branches")
}

func TestTemplateEngine_KeepsUnknownPlaceholders(t *testing.T) {
	req := require.New(t)
	engine := NewTemplateEngine()
	engine.RegisterTemplate(&Template{Name: "t", Content: "{{story_title}} {{mood}} {{extra}}"})

	out, err := engine.Render("t", &TemplateContext{StoryTitle: "X", Custom: map[string]string{"extra": "E"}})

	req.NoError(err)
	req.Equal("X {{mood}} E", out)

	tmpl, err := engine.GetTemplate("t")
	req.NoError(err)
	req.ElementsMatch([]string{"story_title", "mood", "extra"}, tmpl.Variables)

	_, err = engine.Render("missing", &TemplateContext{})
	req.Error(err)
}
