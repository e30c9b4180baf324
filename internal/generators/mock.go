package generators

import (
	"context"

	"volitus/server/internal/interfaces"
	"volitus/server/internal/models"
)

// MockGenerator offers three fixed branches. It stands in for a real model
// during development and never fails.
type MockGenerator struct{}

// NewMockGenerator creates the mock generator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

var mockBranches = []struct {
	id, label, background, text string
}{
	{"A", "A mysterious voice", "bg_mock_a", "A mysterious voice guides me forward..."},
	{"B", "A sudden light", "bg_mock_b", "A beam of light suddenly appears..."},
	{"C", "The ground shakes", "bg_mock_c", "The ground begins to shake..."},
}

// GenerateOptions returns up to req.NumOptions of the fixed branches
func (g *MockGenerator) GenerateOptions(_ context.Context, req interfaces.GenerateRequest) ([]models.VoteOption, error) {
	n := req.NumOptions
	if n <= 0 || n > len(mockBranches) {
		n = len(mockBranches)
	}

	hero := models.Role{ID: "role_hero", Name: "Lin", Avatar: "assets/roles/hero.png"}
	if req.Current != nil && len(req.Current.Roles) > 0 {
		first := req.Current.Roles[0]
		hero = models.Role{ID: first.ID, Name: first.Name, Avatar: first.Avatar}
	}

	options := make([]models.VoteOption, 0, n)
	for i, b := range mockBranches[:n] {
		role := hero
		role.Dialogues = []models.Dialogue{{Time: 0, Text: b.text}}
		options = append(options, models.VoteOption{
			ID:    b.id,
			Label: b.label,
			Chapter: &models.Chapter{
				ID: 9999 - i,
				Background: models.Background{
					ID:    b.background,
					Image: "assets/backgrounds/" + b.background[3:] + ".png",
				},
				Roles: []models.Role{role},
			},
		})
	}
	return options, nil
}
