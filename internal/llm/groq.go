package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kestrelhq/realty-ai-platform/internal/leadscore"
	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("realty.internal.llm")

const systemPrompt = "You are a professional real estate assistant for XYZ Real Estate. " +
	"Follow these guidelines:\n" +
	"1. Keep responses concise (2-3 lines maximum)\n" +
	"2. NEVER start responses with greetings like 'Hi', 'Hello', etc.\n" +
	"3. For properties, include only:\n" +
	"   - Location and key features\n" +
	"   - Price and payment options\n" +
	"4. For plots, mention only:\n" +
	"   - Plot size and status\n" +
	"   - Price and location\n" +
	"5. For company info:\n" +
	"   - Brief overview\n" +
	"   - Key strengths\n" +
	"6. For services:\n" +
	"   - Main service offerings\n" +
	"   - Key benefits\n" +
	"7. For offers:\n" +
	"   - Current offer details\n" +
	"   - Validity period\n" +
	"8. Always maintain a professional yet friendly tone\n" +
	"9. End with a relevant follow-up question\n" +
	"After your response, on a new line output:\n" +
	"Lead Score: [score]\n" +
	"Qualification: [Hot/Warm/Cold]\n" +
	"Schedule Meeting: [true/false]"

// Result is the parsed outcome of one model call. Answer holds the reply
// with marker lines stripped; Raw is the unparsed model output. The
// self-reported fields are advisory only; the orchestrator keeps the
// locally computed score authoritative.
type Result struct {
	Answer         string
	SelfScore      int
	SelfTier       string
	ShouldSchedule bool
	Raw            string
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GroqGateway generates replies via Groq's OpenAI-compatible
// chat-completions API.
type GroqGateway struct {
	client      chatClient
	model       string
	maxTokens   int
	temperature float32
	logger      *logging.Logger
	callTimeout time.Duration
}

// NewGroqGateway builds a gateway around an OpenAI-compatible chat client.
func NewGroqGateway(client chatClient, model string, maxTokens int, temperature float32, logger *logging.Logger) *GroqGateway {
	if client == nil {
		panic("llm: chat client cannot be nil")
	}
	if model == "" {
		model = "llama3-70b-8192"
	}
	if maxTokens <= 0 {
		maxTokens = 150
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GroqGateway{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
		callTimeout: 30 * time.Second,
	}
}

// NewGroqClient constructs the underlying OpenAI-compatible client pointed
// at Groq.
func NewGroqClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Generate calls the model and parses its reply. Transport failures never
// surface as errors; they degrade to an error-message answer with zeroed
// lead fields so the conversation can continue.
func (g *GroqGateway) Generate(ctx context.Context, chatContext, question string, signals leadscore.Signals) Result {
	ctx, span := tracer.Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(attribute.String("realty.llm.model", g.model))

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(chatContext, question, signals)},
		},
		Temperature:      g.temperature,
		MaxTokens:        g.maxTokens,
		TopP:             0.9,
		FrequencyPenalty: 0.3,
		PresencePenalty:  0.3,
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		span.RecordError(err)
		g.logger.Error("llm completion failed", "error", err, "model", g.model)
		msg := fmt.Sprintf("Error: %s", err)
		return Result{Answer: msg, SelfScore: 0, SelfTier: "Unknown", Raw: err.Error()}
	}
	if len(resp.Choices) == 0 {
		g.logger.Error("llm returned no choices", "model", g.model)
		return Result{Answer: "Error: model returned no choices", SelfTier: "Unknown", Raw: ""}
	}

	return parseReply(resp.Choices[0].Message.Content)
}

func buildUserPrompt(chatContext, question string, s leadscore.Signals) string {
	return fmt.Sprintf(`
Previous Chat History:
%s

Current Question: %s

Lead Parameters:
- Interest Level: %d
- Budget Match: %d
- Engagement Time: %d
- Follow-up Shown: %d
- Offer Response: %d
- Appointment Scheduled: %d
- Past Interactions: %d

Remember to:
1. Provide comprehensive information
2. Include specific details and examples
3. Maintain context from previous messages
4. Suggest relevant next steps
`, chatContext, question,
		s.InterestLevel, s.BudgetMatch, s.EngagementTime,
		s.FollowUp, s.OfferResponse, s.Appointment, s.PastInteractions)
}

// parseReply scans the raw model output for the marker lines and joins the
// remaining lines into the short answer. Malformed markers fall back to
// defaults; parsing never fails.
func parseReply(raw string) Result {
	res := Result{SelfScore: 50, SelfTier: "Warm", Raw: raw}

	var answer []string
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.Contains(line, "Lead Score:"):
			if v, err := strconv.Atoi(strings.TrimSpace(afterColon(line))); err == nil {
				res.SelfScore = v
			}
		case strings.Contains(line, "Qualification:"):
			if tier := strings.TrimSpace(afterColon(line)); tier != "" {
				res.SelfTier = tier
			}
		case strings.Contains(line, "Schedule Meeting:"):
			res.ShouldSchedule = strings.Contains(strings.ToLower(line), "true")
		default:
			answer = append(answer, line)
		}
	}
	res.Answer = strings.TrimSpace(strings.Join(answer, "\n"))
	return res
}

func afterColon(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return line[i+1:]
	}
	return ""
}
