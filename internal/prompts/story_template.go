package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/samber/lo"

	"volitus/server/internal/interfaces"
	"volitus/server/internal/models"
)

// Template names
const (
	ChapterBranchesSystem = "chapter_branches_system"
	ChapterBranchesUser   = "chapter_branches_user"
)

var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// TemplateEngine manages prompt templates
type TemplateEngine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// Template represents a prompt template with variables
type Template struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	Variables   []string `json:"variables"`
	Description string   `json:"description"`
}

// TemplateContext holds variables for template rendering
type TemplateContext struct {
	StoryTitle       string `json:"story_title"`
	StoryDescription string `json:"story_description"`

	ChapterID      int    `json:"chapter_id"`
	ChapterScript  string `json:"chapter_script"`
	ChapterRoles   string `json:"chapter_roles"`
	ViewerRequests string `json:"viewer_requests"`
	NumOptions     int    `json:"num_options"`

	Custom map[string]string `json:"custom"`
}

// NewTemplateEngine creates a template engine with the default templates
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	for _, tmpl := range defaultTemplates() {
		e.RegisterTemplate(tmpl)
	}
	return e
}

// RegisterTemplate registers or replaces a template
func (e *TemplateEngine) RegisterTemplate(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(tmpl.Variables) == 0 {
		tmpl.Variables = ParseTemplateVariables(tmpl.Content)
	}
	e.templates[tmpl.Name] = tmpl
}

// GetTemplate retrieves a template by name
func (e *TemplateEngine) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return tmpl, nil
}

// Render renders a template with the given context. Unknown placeholders are
// kept as they are.
func (e *TemplateEngine) Render(templateName string, ctx *TemplateContext) (string, error) {
	tmpl, err := e.GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	return varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		name := varRegex.FindStringSubmatch(match)[1]
		if value, ok := ctx.value(name); ok {
			return value
		}
		return match
	}), nil
}

func (ctx *TemplateContext) value(name string) (string, bool) {
	switch name {
	case "story_title":
		return ctx.StoryTitle, true
	case "story_description":
		return ctx.StoryDescription, true
	case "chapter_id":
		return fmt.Sprintf("%d", ctx.ChapterID), true
	case "chapter_script":
		return ctx.ChapterScript, true
	case "chapter_roles":
		return ctx.ChapterRoles, true
	case "viewer_requests":
		return ctx.ViewerRequests, true
	case "num_options":
		return fmt.Sprintf("%d", ctx.NumOptions), true
	default:
		val, ok := ctx.Custom[name]
		return val, ok
	}
}

// BuildChapterContext turns a generation request into template variables
func BuildChapterContext(req interfaces.GenerateRequest) *TemplateContext {
	ctx := &TemplateContext{
		StoryTitle:       req.Meta.Title,
		StoryDescription: req.Meta.Description,
		NumOptions:       req.NumOptions,
		ViewerRequests:   "(none)",
	}

	if req.Current != nil {
		ctx.ChapterID = req.Current.ID
		ctx.ChapterRoles = strings.Join(lo.Map(req.Current.Roles, func(r models.Role, _ int) string {
			return fmt.Sprintf("%s (%s)", r.ID, r.Name)
		}), ", ")

		var script strings.Builder
		for _, entry := range req.Current.Timeline() {
			fmt.Fprintf(&script, "[%dms] %s: %s\n", entry.Dialogue.Time, entry.Role.Name, entry.Dialogue.Text)
		}
		ctx.ChapterScript = strings.TrimSpace(script.String())
	}

	requests := lo.FilterMap(req.Interactions, func(in models.Interaction, _ int) (string, bool) {
		content := strings.TrimSpace(in.Content)
		return fmt.Sprintf("- %s (%s): %s", in.UserID, in.Type, content), content != ""
	})
	if len(requests) > 0 {
		ctx.ViewerRequests = strings.Join(requests, "\n")
	}
	return ctx
}

// ParseTemplateVariables extracts variables from a template
func ParseTemplateVariables(templateContent string) []string {
	matches := varRegex.FindAllStringSubmatch(templateContent, -1)
	return lo.Uniq(lo.Map(matches, func(m []string, _ int) string { return m[1] }))
}

func defaultTemplates() []*Template {
	return []*Template{
		{
			Name:        ChapterBranchesSystem,
			Description: "System prompt for branch generation",
			Content: `You are the head writer of an interactive live drama. The audience votes on how the story continues.
Always answer with a single JSON object and nothing else, shaped as:
{"options":[{"id":"A","label":"short teaser","chapter":{"background":{"id":"bg_id","image":"path"},"roles":[{"id":"role_id","name":"Name","avatar":"path","dialogues":[{"time":0,"text":"line"}]}]}}]}
Dialogue times are milliseconds from the chapter start. Reuse role ids of the current chapter when a character returns.`,
		},
		{
			Name:        ChapterBranchesUser,
			Description: "User prompt carrying the current chapter and viewer requests",
			Content: `## Story
{{story_title}}
{{story_description}}

## Current chapter ({{chapter_id}})
Roles: {{chapter_roles}}
{{chapter_script}}

## What viewers asked for
{{viewer_requests}}

Write {{num_options}} distinct branches for the next chapter, ids A, B, C in order. Each branch needs 3 to 6 dialogues.`,
		},
	}
}
