package devbackend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"valter-dash/internal/model"
)

// DefaultOracleModel is used when GEMINI_MODEL is unset.
const DefaultOracleModel = "gemini-2.0-flash"

// MissingKeyAnswer is what askOracle returns without an API key.
const MissingKeyAnswer = "Error: GEMINI_API_KEY missing."

// Oracle answers free-form questions about the configured data.
type Oracle interface {
	Ask(ctx context.Context, cfg model.AppConfig, question string) (string, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, cfg model.AppConfig, question string) (string, error)

func (f OracleFunc) Ask(ctx context.Context, cfg model.AppConfig, question string) (string, error) {
	return f(ctx, cfg, question)
}

// NoKeyOracle always answers with MissingKeyAnswer.
var NoKeyOracle = OracleFunc(func(context.Context, model.AppConfig, string) (string, error) {
	return MissingKeyAnswer, nil
})

type geminiOracle struct {
	client *genai.Client
	model  string
}

// NewGeminiOracle builds an Oracle backed by the Gemini API. With no key it
// returns NoKeyOracle.
func NewGeminiOracle(ctx context.Context, apiKey, modelName string) (Oracle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return NoKeyOracle, nil
	}
	if modelName == "" {
		modelName = DefaultOracleModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &geminiOracle{client: client, model: modelName}, nil
}

// OracleFromEnv reads GEMINI_API_KEY and GEMINI_MODEL.
func OracleFromEnv(ctx context.Context) (Oracle, error) {
	return NewGeminiOracle(ctx, os.Getenv("GEMINI_API_KEY"), os.Getenv("GEMINI_MODEL"))
}

func (o *geminiOracle) Ask(ctx context.Context, cfg model.AppConfig, question string) (string, error) {
	resp, err := o.client.Models.GenerateContent(ctx, o.model, genai.Text(OraclePrompt(cfg, question)), nil)
	if err != nil {
		return fmt.Sprintf("AI Error: %v", err), nil
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "AI Parse Error", nil
	}
	return text, nil
}

// OraclePrompt lists the configured tables ahead of the question.
func OraclePrompt(cfg model.AppConfig, question string) string {
	var b strings.Builder
	b.WriteString("Role: Valter Oracle.\nContext: System Context:\n")
	for _, c := range cfg.Clouds {
		fmt.Fprintf(&b, "Table: %s\n", c.Name)
	}
	for _, is := range cfg.Islands {
		fmt.Fprintf(&b, "Island: %s\n", is.Name)
	}
	fmt.Fprintf(&b, "Query: %s", question)
	return b.String()
}
