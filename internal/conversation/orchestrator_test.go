package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/realty-ai-platform/internal/crm/hubspot"
	"github.com/kestrelhq/realty-ai-platform/internal/leadscore"
	"github.com/kestrelhq/realty-ai-platform/internal/llm"
	"github.com/kestrelhq/realty-ai-platform/internal/scheduling/calendly"
	"github.com/kestrelhq/realty-ai-platform/internal/session"
	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

type fakeRetriever struct {
	snippets []string
	err      error
	queries  []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _ int) ([]string, error) {
	f.queries = append(f.queries, query)
	return f.snippets, f.err
}

type fakeGenerator struct {
	result       llm.Result
	calls        int
	lastContext  string
	lastQuestion string
}

func (f *fakeGenerator) Generate(_ context.Context, chatContext, question string, _ leadscore.Signals) llm.Result {
	f.calls++
	f.lastContext = chatContext
	f.lastQuestion = question
	return f.result
}

type fakeCRM struct {
	status   int
	body     string
	contacts []hubspot.Contact
}

func (f *fakeCRM) Upsert(_ context.Context, c hubspot.Contact) (int, string) {
	f.contacts = append(f.contacts, c)
	return f.status, f.body
}

type fakeScheduler struct {
	link      calendly.Result
	linkCalls int
}

func (f *fakeScheduler) CreateSchedulingLink(_ context.Context, _, _, _ string) calendly.Result {
	f.linkCalls++
	return f.link
}

func (f *fakeScheduler) ScheduleMeeting(_ context.Context, _, _, _, _ string) calendly.Result {
	return calendly.Result{Status: "error", Message: "not implemented"}
}

func (f *fakeScheduler) AvailableTimes(_ context.Context, _, _ string) calendly.Result {
	return calendly.Result{Status: "error", Message: "not implemented"}
}

type orchestratorFixture struct {
	orch      *Orchestrator
	store     *session.MemoryStore
	retriever *fakeRetriever
	generator *fakeGenerator
	crm       *fakeCRM
	scheduler *fakeScheduler
}

func newFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		store:     session.NewMemoryStore(),
		retriever: &fakeRetriever{snippets: []string{"Doc: downtown condos start at $400k."}},
		generator: &fakeGenerator{result: llm.Result{Answer: "We have several condos downtown.", Raw: "raw reply"}},
		crm:       &fakeCRM{status: 200, body: `{"id":"1"}`},
		scheduler: &fakeScheduler{link: calendly.Result{Status: "success", BookingLink: "https://calendly.com/agent/intro"}},
	}
	f.orch = NewOrchestrator(Config{
		Sessions:  f.store,
		Retriever: f.retriever,
		Generator: f.generator,
		CRM:       f.crm,
		Scheduler: f.scheduler,
		Logger:    logging.Default(),
	})
	return f
}

// qaSession seeds the store with a session that has finished intake.
func (f *orchestratorFixture) qaSession(t *testing.T, id, email string) *session.Session {
	t.Helper()
	sess := session.New()
	sess.SetIntakeField(session.FieldName, "Alice")
	sess.SetIntakeField(session.FieldEmail, email)
	sess.SetIntakeField(session.FieldBudget, "$500,000")
	sess.Append(session.SpeakerUser, "$500,000")
	sess.Append(session.SpeakerBot, "Great! Now, how can I help you find the perfect property today?")
	if err := f.store.Put(context.Background(), id, sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return sess
}

func TestIntakeCompletesInThreeMessages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	r1, err := f.orch.ProcessMessage(ctx, "s1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, intakeQuestions[session.FieldEmail], r1.Answer)
	assert.Equal(t, 10, r1.LeadScore)
	assert.Equal(t, "Collecting Info", r1.LeadStatus)

	r2, err := f.orch.ProcessMessage(ctx, "s1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, intakeQuestions[session.FieldBudget], r2.Answer)
	assert.Equal(t, 20, r2.LeadScore)

	r3, err := f.orch.ProcessMessage(ctx, "s1", "$500,000")
	require.NoError(t, err)
	assert.Equal(t, qaWelcome, r3.Answer)
	assert.Equal(t, 30, r3.LeadScore)

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.IntakeComplete())
	assert.Equal(t, "Alice", sess.Intake[session.FieldName])
	assert.Equal(t, "alice@example.com", sess.Intake[session.FieldEmail])
	assert.Equal(t, "$500,000", sess.Intake[session.FieldBudget])

	// The model is never consulted during intake.
	assert.Equal(t, 0, f.generator.calls)
}

func TestIntakeTouchesCRMOnceEmailKnown(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.orch.ProcessMessage(ctx, "s1", "Alice"); err != nil {
		t.Fatalf("name message: %v", err)
	}
	if len(f.crm.contacts) != 0 {
		t.Fatalf("CRM touched before email was collected: %d calls", len(f.crm.contacts))
	}

	if _, err := f.orch.ProcessMessage(ctx, "s1", "alice@example.com"); err != nil {
		t.Fatalf("email message: %v", err)
	}
	if len(f.crm.contacts) != 1 {
		t.Fatalf("expected 1 CRM call after email, got %d", len(f.crm.contacts))
	}
	c := f.crm.contacts[0]
	if c.Email != "alice@example.com" || c.LeadType != "Collecting Info" {
		t.Fatalf("unexpected intake contact: %+v", c)
	}
}

func TestQATurnScoresLocallyAndSyncsCRM(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.qaSession(t, "s1", "alice@example.com")

	msg := "I'm interested in buying a condo, what's the price downtown?"
	res, err := f.orch.ProcessMessage(ctx, "s1", msg)
	require.NoError(t, err)

	assert.Equal(t, "We have several condos downtown.", res.Answer)
	assert.Equal(t, "raw reply", res.RawLLMReply)

	// Two user turns in history plus the one being processed.
	signals := leadscore.DeriveSignals(2, msg, "$500,000")
	wantScore := leadscore.Score(signals)
	wantTier, _ := leadscore.FiveTier.Classify(wantScore)
	assert.Equal(t, wantScore, res.LeadScore)
	assert.Equal(t, string(wantTier), res.LeadStatus)

	assert.Equal(t, "Success", res.CRMStatus)
	require.Len(t, f.crm.contacts, 1)
	assert.Equal(t, string(wantTier), f.crm.contacts[0].LeadType)
	assert.Equal(t, wantScore, f.crm.contacts[0].LeadScore)

	// Context carries intake, retrieved snippets, and recent chat.
	assert.Contains(t, f.generator.lastContext, "name=Alice")
	assert.Contains(t, f.generator.lastContext, "downtown condos")
	assert.Contains(t, f.generator.lastContext, "Recent Chat:")
	assert.Equal(t, msg, f.generator.lastQuestion)
}

func TestSchedulingIntentShortCircuitsModel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.qaSession(t, "s1", "alice@example.com")

	res, err := f.orch.ProcessMessage(ctx, "s1", "Can I book a viewing?")
	require.NoError(t, err)

	assert.Equal(t, schedulingReply+"https://calendly.com/agent/intro", res.Answer)
	assert.Equal(t, 80, res.LeadScore)
	assert.Equal(t, "Hot", res.LeadStatus)
	assert.Equal(t, 1, f.scheduler.linkCalls)
	assert.Equal(t, 0, f.generator.calls)
}

func TestSchedulingFailureApologizes(t *testing.T) {
	f := newFixture()
	f.scheduler.link = calendly.Result{Status: "error", Message: "no event types"}
	ctx := context.Background()
	f.qaSession(t, "s1", "alice@example.com")

	res, err := f.orch.ProcessMessage(ctx, "s1", "I'd like to schedule a call")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Answer != schedulingApology {
		t.Fatalf("expected apology, got %q", res.Answer)
	}
	if res.LeadScore != 80 || res.LeadStatus != "Hot" {
		t.Fatalf("scheduling intent must still mark the lead hot, got %d/%s", res.LeadScore, res.LeadStatus)
	}
}

func TestRepetitionGuardPrefixesRepeatedAnswer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sess := f.qaSession(t, "s1", "alice@example.com")
	sess.Append(session.SpeakerUser, "what about downtown?")
	sess.Append(session.SpeakerBot, "We have several condos downtown.")
	require.NoError(t, f.store.Put(ctx, "s1", sess))

	res, err := f.orch.ProcessMessage(ctx, "s1", "tell me about downtown again")
	require.NoError(t, err)
	assert.Equal(t, repetitionLeadIn+"We have several condos downtown.", res.Answer)
}

func TestCRMSkippedWithoutValidEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.qaSession(t, "s1", "not-an-email")

	res, err := f.orch.ProcessMessage(ctx, "s1", "what do you have downtown?")
	require.NoError(t, err)
	assert.Equal(t, "Skipped", res.CRMStatus)
	assert.Equal(t, "No valid email provided", res.CRMResponse)
	assert.Empty(t, f.crm.contacts)
}

func TestCRMFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture()
	f.crm.status = 500
	f.crm.body = `{"error":"upstream"}`
	ctx := context.Background()
	f.qaSession(t, "s1", "alice@example.com")

	res, err := f.orch.ProcessMessage(ctx, "s1", "what do you have downtown?")
	require.NoError(t, err)
	assert.Equal(t, "Error: 500", res.CRMStatus)
	assert.Equal(t, `{"error":"upstream"}`, res.CRMResponse)
	assert.Equal(t, "We have several condos downtown.", res.Answer)
}

func TestRetrievalFailureOnlyCostsSnippets(t *testing.T) {
	f := newFixture()
	f.retriever.err = context.DeadlineExceeded
	f.retriever.snippets = nil
	ctx := context.Background()
	f.qaSession(t, "s1", "alice@example.com")

	res, err := f.orch.ProcessMessage(ctx, "s1", "what do you have downtown?")
	require.NoError(t, err)
	assert.Equal(t, "We have several condos downtown.", res.Answer)
	assert.Contains(t, f.generator.lastContext, "name=Alice")
}

func TestGreetingDoesNotTouchState(t *testing.T) {
	f := newFixture()
	if got := f.orch.Greeting(); !strings.Contains(got, "name") {
		t.Fatalf("greeting should ask for the visitor's name, got %q", got)
	}
	sess, err := f.store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess != nil {
		t.Fatal("greeting must not create a session")
	}
}
