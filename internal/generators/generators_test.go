package generators

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"volitus/server/internal/config"
	"volitus/server/internal/errs"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/models"
)

func TestMockGenerator_ThreeBranchesWithPreviews(t *testing.T) {
	req := require.New(t)
	gen := NewMockGenerator()

	options, err := gen.GenerateOptions(context.Background(), interfaces.GenerateRequest{
		Current: &models.Chapter{ID: 1, Roles: []models.Role{{ID: "role_girl", Name: "Mei"}}},
	})

	req.NoError(err)
	req.Len(options, 3)
	req.Equal([]string{"A", "B", "C"}, []string{options[0].ID, options[1].ID, options[2].ID})
	req.Equal("role_girl", options[0].Chapter.Roles[0].ID)
	req.Equal("assets/backgrounds/mock_b.png", options[1].Chapter.Background.Image)
	req.Len(options[2].Chapter.Roles[0].Dialogues, 1)
}

func TestMockGenerator_RespectsNumOptions(t *testing.T) {
	options, err := NewMockGenerator().GenerateOptions(context.Background(), interfaces.GenerateRequest{NumOptions: 2})

	require.NoError(t, err)
	require.Len(t, options, 2)
}

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"upstream broke","type":"server_error"}}`))
			return
		}
		body, _ := json.Marshal(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
		w.Write(body)
	}))
}

func newTestLLM(url string) *LLMGenerator {
	g := NewLLMGenerator(config.LLMConfig{BaseURL: url, APIKey: "sk-test", Timeout: 5 * time.Second}, nil, zerolog.Nop())
	g.retryDelay = time.Millisecond
	return g
}

func TestLLMGenerator_DecodesOptions(t *testing.T) {
	req := require.New(t)
	srv := chatServer(t, http.StatusOK, `{"options":[
		{"id":"A","label":"Chase","chapter":{"background":{"id":"bg_street"},"roles":[{"id":"hero","name":"Lin","dialogues":[{"time":0,"text":"Run!"}]}]}},
		{"label":"Hide","chapter":{"roles":[]}},
		{"id":"C","label":"no chapter"}
	]}`)
	defer srv.Close()

	options, err := newTestLLM(srv.URL).GenerateOptions(context.Background(), interfaces.GenerateRequest{NumOptions: 3})

	req.NoError(err)
	req.Len(options, 2)
	req.Equal("A", options[0].ID)
	req.Equal("Run!", options[0].Chapter.Roles[0].Dialogues[0].Text)
	req.Equal("B", options[1].ID)
	req.Equal("Hide", options[1].Label)
}

func TestLLMGenerator_BadReplyIsUnavailable(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "sorry, I cannot help")
	defer srv.Close()

	_, err := newTestLLM(srv.URL).GenerateOptions(context.Background(), interfaces.GenerateRequest{})

	require.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestLLMGenerator_UpstreamErrorIsUnavailable(t *testing.T) {
	srv := chatServer(t, http.StatusInternalServerError, "")
	defer srv.Close()

	_, err := newTestLLM(srv.URL).GenerateOptions(context.Background(), interfaces.GenerateRequest{})

	require.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestParseReply_StripsCodeFence(t *testing.T) {
	options, err := parseReply("```json\n{\"options\":[{\"id\":\"X\",\"chapter\":{}}]}\n```", 0)

	require.NoError(t, err)
	require.Equal(t, "X", options[0].ID)
	require.Equal(t, "Option X", options[0].Label)
}
