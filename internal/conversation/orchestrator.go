package conversation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelhq/realty-ai-platform/internal/crm/hubspot"
	"github.com/kestrelhq/realty-ai-platform/internal/leadscore"
	"github.com/kestrelhq/realty-ai-platform/internal/llm"
	"github.com/kestrelhq/realty-ai-platform/internal/observability/metrics"
	"github.com/kestrelhq/realty-ai-platform/internal/scheduling/calendly"
	"github.com/kestrelhq/realty-ai-platform/internal/session"
	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

// Retriever looks up knowledge snippets relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// Generator produces a model reply for a question in context.
type Generator interface {
	Generate(ctx context.Context, chatContext, question string, signals leadscore.Signals) llm.Result
}

// CRMSyncer upserts a contact and reports (status, body) without raising.
type CRMSyncer interface {
	Upsert(ctx context.Context, contact hubspot.Contact) (int, string)
}

// SchedulingGateway is the slice of the Calendly client the chat flow uses.
type SchedulingGateway interface {
	CreateSchedulingLink(ctx context.Context, name, email, eventTypeURI string) calendly.Result
	ScheduleMeeting(ctx context.Context, name, email, startTime, eventTypeURI string) calendly.Result
	AvailableTimes(ctx context.Context, startTime, endTime string) calendly.Result
}

// TurnResult is the payload returned for one processed chat message.
type TurnResult struct {
	Answer      string `json:"answer"`
	LeadScore   int    `json:"lead_score"`
	LeadStatus  string `json:"lead_status"`
	CRMStatus   string `json:"crm_status"`
	CRMResponse string `json:"crm_response"`
	RawLLMReply string `json:"raw_llm_reply"`
	Error       string `json:"error,omitempty"`
}

const (
	statusCollectingInfo = "Collecting Info"

	qaWelcome        = "Great! Now, how can I help you find the perfect property today?"
	greeting         = "How can I help you find the perfect property? May I have your name?"
	repetitionLeadIn = "Let me provide some additional information: "

	schedulingReply   = "I can help you schedule a consultation. Please use this link to book a time that works for you: "
	schedulingApology = "I apologize, but I'm having trouble creating a scheduling link right now. Please try again later."
)

var intakeQuestions = map[string]string{
	session.FieldName:   "May I have your name?",
	session.FieldEmail:  "What's a good email address to reach you at?",
	session.FieldBudget: "What's your budget for finding the perfect property?",
}

var schedulingKeywords = []string{"schedule", "book", "appointment", "meeting", "call"}

// Orchestrator owns the per-session state machine: structured intake of
// name/email/budget, then free-form Q&A turns composing retrieval, scoring,
// the language model, and conditional CRM/scheduling calls. Collaborator
// failures degrade into the reply payload; they never fail the turn.
type Orchestrator struct {
	sessions   session.Store
	retriever  Retriever
	generator  Generator
	crm        CRMSyncer
	scheduler  SchedulingGateway
	thresholds leadscore.ThresholdSet
	topK       int
	metrics    *metrics.ChatMetrics
	logger     *logging.Logger
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Sessions   session.Store
	Retriever  Retriever
	Generator  Generator
	CRM        CRMSyncer
	Scheduler  SchedulingGateway
	Thresholds leadscore.ThresholdSet
	TopK       int
	Metrics    *metrics.ChatMetrics
	Logger     *logging.Logger
}

// NewOrchestrator validates required collaborators and builds the
// orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Sessions == nil {
		panic("conversation: session store cannot be nil")
	}
	if cfg.Generator == nil {
		panic("conversation: generator cannot be nil")
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = leadscore.FiveTier
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Orchestrator{
		sessions:   cfg.Sessions,
		retriever:  cfg.Retriever,
		generator:  cfg.Generator,
		crm:        cfg.CRM,
		scheduler:  cfg.Scheduler,
		thresholds: cfg.Thresholds,
		topK:       cfg.TopK,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Greeting is the fixed opening bot turn shown before any user message; a
// brand-new session starts in intake awaiting the visitor's name.
func (o *Orchestrator) Greeting() string {
	return greeting
}

// ProcessMessage advances the session state machine by one user message.
// The returned error covers only internal failures (e.g. the session store);
// collaborator failures are reported inside the TurnResult.
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}
	if sess == nil {
		sess = session.New()
	}

	var result *TurnResult
	if !sess.IntakeComplete() {
		result = o.processIntake(ctx, sess, message)
	} else {
		result = o.processQA(ctx, sess, message)
	}

	if err := o.sessions.Put(ctx, sessionID, sess); err != nil {
		return nil, fmt.Errorf("conversation: failed to save session: %w", err)
	}
	return result, nil
}

// processIntake stores the message verbatim as the awaited field and
// advances to the next question, or into Q&A once all fields are present.
func (o *Orchestrator) processIntake(ctx context.Context, sess *session.Session, message string) *TurnResult {
	sess.SetIntakeField(sess.AwaitingField, message)

	answer := qaWelcome
	if !sess.IntakeComplete() {
		answer = intakeQuestions[sess.AwaitingField]
	}
	sess.Append(session.SpeakerUser, message)
	sess.Append(session.SpeakerBot, answer)

	crmStatus, crmResponse := o.intakeTouch(ctx, sess)
	o.metrics.ObserveTurn("intake", "ok")

	return &TurnResult{
		Answer:      answer,
		LeadScore:   10 * len(sess.Intake),
		LeadStatus:  statusCollectingInfo,
		CRMStatus:   crmStatus,
		CRMResponse: crmResponse,
	}
}

// intakeTouch records partial intake in the CRM once a usable email is
// known. Failures only surface in the crm_status field.
func (o *Orchestrator) intakeTouch(ctx context.Context, sess *session.Session) (string, string) {
	email := sess.Intake[session.FieldEmail]
	if o.crm == nil || !strings.Contains(email, "@") {
		return "Success", "User info updated"
	}

	status, body := o.crm.Upsert(ctx, hubspot.Contact{
		Email:       email,
		Name:        sess.Intake[session.FieldName],
		Budget:      sess.Intake[session.FieldBudget],
		LeadType:    statusCollectingInfo,
		LeadScore:   10 * len(sess.Intake),
		ChatHistory: sess.Transcript(),
		UserType:    "User",
	})
	if status == http.StatusOK || status == http.StatusCreated {
		o.metrics.ObserveCRMSync("success")
		return "Success", "User info updated"
	}
	o.metrics.ObserveCRMSync("error")
	o.logger.Warn("CRM intake touch failed", "status", status)
	return fmt.Sprintf("Error: %d", status), body
}

// processQA handles one free-form turn: scheduling intent short-circuit,
// otherwise retrieval + scoring + model call + conditional CRM sync.
func (o *Orchestrator) processQA(ctx context.Context, sess *session.Session, message string) *TurnResult {
	if hasSchedulingIntent(message) {
		return o.processSchedulingIntent(ctx, sess, message)
	}

	chatContext := o.buildContext(ctx, sess, message)

	userTurns := sess.UserTurns() + 1 // include the message being processed
	signals := leadscore.DeriveSignals(userTurns, message, sess.Intake[session.FieldBudget])
	score := leadscore.Score(signals)
	tier, _ := o.thresholds.Classify(score)
	o.metrics.ObserveLeadScore(score)

	llmStart := time.Now()
	res := o.generator.Generate(ctx, chatContext, message, signals)
	o.metrics.ObserveLLMLatency(time.Since(llmStart).Seconds())

	// The model also self-reports a score and tier; the locally computed
	// values stay authoritative and the raw reply is kept for audit.
	answer := res.Answer
	if prev := sess.LastBotTurn(); prev != "" && answer != "" &&
		strings.Contains(strings.ToLower(prev), strings.ToLower(answer)) {
		answer = repetitionLeadIn + answer
	}

	sess.Append(session.SpeakerUser, message)
	sess.Append(session.SpeakerBot, answer)

	crmStatus, crmResponse := o.syncCRM(ctx, sess, score, tier)
	o.metrics.ObserveTurn("qa", "ok")

	return &TurnResult{
		Answer:      answer,
		LeadScore:   score,
		LeadStatus:  string(tier),
		CRMStatus:   crmStatus,
		CRMResponse: crmResponse,
		RawLLMReply: res.Raw,
	}
}

// processSchedulingIntent replies with a booking link and force-sets the
// lead hot, skipping the model entirely.
func (o *Orchestrator) processSchedulingIntent(ctx context.Context, sess *session.Session, message string) *TurnResult {
	answer := schedulingApology
	if o.scheduler != nil {
		res := o.scheduler.CreateSchedulingLink(ctx,
			sess.Intake[session.FieldName], sess.Intake[session.FieldEmail], "")
		if res.Status == "success" {
			answer = schedulingReply + res.BookingLink
		} else {
			o.logger.Warn("scheduling link creation failed", "message", res.Message)
		}
	}

	sess.Append(session.SpeakerUser, message)
	sess.Append(session.SpeakerBot, answer)
	o.metrics.ObserveTurn("scheduling", "ok")

	return &TurnResult{
		Answer:      answer,
		LeadScore:   80,
		LeadStatus:  string(leadscore.TierHot),
		CRMStatus:   "Success",
		CRMResponse: "Scheduling link provided",
		RawLLMReply: answer,
	}
}

// buildContext concatenates intake fields, retrieved snippets, and the
// last three turns into the model's context block. Retrieval failure only
// costs the snippets.
func (o *Orchestrator) buildContext(ctx context.Context, sess *session.Session, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User: name=%s, email=%s, budget=%s",
		sess.Intake[session.FieldName],
		sess.Intake[session.FieldEmail],
		sess.Intake[session.FieldBudget])

	if o.retriever != nil {
		snippets, err := o.retriever.Retrieve(ctx, message, o.topK)
		if err != nil {
			o.logger.Error("context retrieval failed", "error", err)
		}
		for _, s := range snippets {
			b.WriteByte('\n')
			b.WriteString(s)
		}
	}

	b.WriteString("\nRecent Chat:\n")
	b.WriteString(sess.RecentTranscript(3))
	return b.String()
}

// syncCRM upserts the qualified contact when a usable email was collected.
func (o *Orchestrator) syncCRM(ctx context.Context, sess *session.Session, score int, tier leadscore.Tier) (string, string) {
	email := sess.Intake[session.FieldEmail]
	if o.crm == nil || !strings.Contains(email, "@") {
		o.metrics.ObserveCRMSync("skipped")
		return "Skipped", "No valid email provided"
	}

	status, body := o.crm.Upsert(ctx, hubspot.Contact{
		Email:       email,
		Name:        sess.Intake[session.FieldName],
		Budget:      sess.Intake[session.FieldBudget],
		LeadType:    string(tier),
		LeadScore:   score,
		ChatHistory: sess.Transcript(),
		UserType:    "User",
	})
	if status == http.StatusOK || status == http.StatusCreated {
		o.metrics.ObserveCRMSync("success")
		return "Success", body
	}
	o.metrics.ObserveCRMSync("error")
	o.logger.Warn("CRM sync failed", "status", status)
	return fmt.Sprintf("Error: %d", status), body
}

func hasSchedulingIntent(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range schedulingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
