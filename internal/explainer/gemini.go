package explainer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/mbd888/txsentinel/internal/ether"
	"github.com/mbd888/txsentinel/internal/txn"
)

// generator is the slice of the genai client used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini-backed explainer.
type GeminiConfig struct {
	APIKey   string
	Model    string
	TTSModel string
	Voice    string

	// BaseURL overrides the API endpoint. Empty uses the public endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini implements Explainer over the Google Gemini API.
type Gemini struct {
	models   generator
	model    string
	ttsModel string
	voice    string
}

var _ Explainer = (*Gemini)(nil)

// NewGemini creates a Gemini explainer.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, &CallError{Op: "init", Err: ErrNotConfigured}
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &CallError{Op: "init", Err: err}
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models generator, cfg GeminiConfig) *Gemini {
	return &Gemini{
		models:   models,
		model:    cfg.Model,
		ttsModel: cfg.TTSModel,
		voice:    cfg.Voice,
	}
}

// Explain asks the model for a JSON object with "explanation" and
// "suggestion". Missing or empty keys are replaced by fixed texts.
func (g *Gemini) Explain(ctx context.Context, tx txn.RawTransaction) (Explanation, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(explainPrompt(tx)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Explanation{}, &CallError{Op: OpExplain, Err: err}
	}

	exp, err := parseExplanation(responseText(resp))
	if err != nil {
		return Explanation{}, &CallError{Op: OpExplain, Err: err}
	}
	return exp, nil
}

// Simplify rewrites text for a reader with no crypto background.
func (g *Gemini) Simplify(ctx context.Context, text string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(simplifyPrompt(text)), nil)
	if err != nil {
		return "", &CallError{Op: OpSimplify, Err: err}
	}
	out := strings.TrimSpace(responseText(resp))
	if out == "" {
		return "", &CallError{Op: OpSimplify, Err: errEmptyResponse}
	}
	return out, nil
}

// Chat answers a question grounded in contextText.
func (g *Gemini) Chat(ctx context.Context, question, contextText string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(chatInstruction+"\n\nWallet context:\n"+contextText, genai.RoleUser),
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(question), cfg)
	if err != nil {
		return "", &CallError{Op: OpChat, Err: err}
	}
	out := strings.TrimSpace(responseText(resp))
	if out == "" {
		return "", &CallError{Op: OpChat, Err: errEmptyResponse}
	}
	return out, nil
}

// Speak synthesizes text and returns it as a WAV file. Nil audio with a
// nil error means the model answered without sound.
func (g *Gemini) Speak(ctx context.Context, text string) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	}
	resp, err := g.models.GenerateContent(ctx, g.ttsModel, genai.Text("Say clearly: "+text), cfg)
	if err != nil {
		return nil, &CallError{Op: OpSpeak, Err: err}
	}

	pcm := responseAudio(resp)
	if len(pcm) == 0 {
		return nil, nil
	}
	return WAV(pcm, SpeechSampleRate, SpeechChannels, SpeechBitsPerSample), nil
}

const chatInstruction = `You are the assistant of a wallet security dashboard.
Answer questions about the user's wallet and recent transactions using only the context provided.
Use plain language, avoid jargon, and keep answers to a few sentences.
If the context does not contain the answer, say so.`

func explainPrompt(tx txn.RawTransaction) string {
	to := tx.To
	if to == "" {
		to = "(contract creation)"
	}
	return fmt.Sprintf(`Analyze this Ethereum transaction:
Hash: %s
From: %s
To: %s
Value: %s ETH
Gas Used: %s
Timestamp: %s

You are a blockchain security analyst.
Explain this transaction in simple language.
Include:
- What happened
- Why it matters
- Risk summary
- Recommended action
Avoid technical jargon.
Keep it short and clear.
Return the response in JSON format with keys "explanation" and "suggestion".`,
		tx.Hash, tx.From, to, ether.FormatString(tx.Value), tx.GasUsed,
		tx.Time().Format("2006-01-02 15:04:05 UTC"))
}

func simplifyPrompt(text string) string {
	return `Rewrite the following explanation of a blockchain transaction for someone who has never used crypto.
Use one or two short sentences and no technical terms.

` + text
}

// parseExplanation decodes the model's JSON reply. Fenced code blocks are
// tolerated.
func parseExplanation(text string) (Explanation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		text = "{}"
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Explanation{}, fmt.Errorf("decode explanation: %w", err)
	}

	exp := Explanation{
		Explanation: stringField(raw, "explanation"),
		Suggestion:  stringField(raw, "suggestion"),
	}
	if exp.Explanation == "" {
		exp.Explanation = MissingExplanation
	}
	if exp.Suggestion == "" {
		exp.Suggestion = MissingSuggestion
	}
	return exp, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// responseAudio returns the first inline data part of the first candidate.
func responseAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData.Data
		}
	}
	return nil
}
