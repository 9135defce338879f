package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
)

type fakeConversationRepo struct {
	mu     sync.Mutex
	convs  map[uuid.UUID]domain.Conversation
	titles map[uuid.UUID]string
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		convs:  make(map[uuid.UUID]domain.Conversation),
		titles: make(map[uuid.UUID]string),
	}
}

func (f *fakeConversationRepo) Create(_ context.Context, conv domain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[conv.ID] = conv
	return nil
}

func (f *fakeConversationRepo) GetOwned(_ context.Context, id, userID uuid.UUID) (domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok || c.UserID != userID {
		return domain.Conversation{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeConversationRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Conversation
	for _, c := range f.convs {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) SetTitle(_ context.Context, id uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles[id] = title
	return nil
}

func (f *fakeConversationRepo) SetSummary(_ context.Context, id uuid.UUID, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.convs[id]
	c.Summary = summary
	f.convs[id] = c
	return nil
}

func (f *fakeConversationRepo) Touch(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.convs[id]
	c.UpdatedAt = time.Now().UTC()
	f.convs[id] = c
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (f *fakeMessageRepo) Create(_ context.Context, message domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeMessageRepo) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) byRole(role string) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

type chatFixture struct {
	svc      *ChatService
	convs    *fakeConversationRepo
	messages *fakeMessageRepo
	streamer *llm.MockStreamer
	sessions *SessionManager
	users    *fakeUserRepo
	userID   uuid.UUID
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	logger := zap.NewNop()
	convs := newFakeConversationRepo()
	messages := &fakeMessageRepo{}
	memRepo := newFakeMemoryRepo()
	users := newFakeUserRepo()
	embedder := &llm.MockEmbedder{Default: []float32{0.1, 0.2}}
	streamer := &llm.MockStreamer{Chunks: []string{"Hola ", "que tal"}}
	judgeGen := &llm.MockGenerator{Response: `{"label":"EXPLICIT_CONSENSUAL_ADULT","confidence":0.9,"reasoning":"x"}`}
	utilGen := &llm.MockGenerator{Response: `{"memories": []}`}

	sessions := NewSessionManager(nil, time.Hour, 5)
	memorySvc := NewMemoryService(logger, memRepo, embedder, 2, 30)
	consolidator := NewConsolidator(logger, memRepo, embedder, 0.85, 0.92)
	categorizer := NewCategorizer(utilGen, "utility")
	extractor := NewMemoryExtractor(logger, utilGen, "utility", embedder, memorySvc, categorizer, consolidator)
	personalities := NewPersonalityService(logger, newFakePersonalityRepo())
	if err := personalities.SeedGlobals(context.Background()); err != nil {
		t.Fatalf("seed personalities: %v", err)
	}

	svc := NewChatService(ChatServiceParams{
		Logger:        logger,
		Conversations: convs,
		Messages:      messages,
		Users:         users,
		Buffer:        NewMemoryConversationBuffer(10),
		Sessions:      sessions,
		Classifier:    NewContentClassifier(logger, NewJudgeClient(judgeGen, "judge", 8), nil, 0.7),
		MemorySvc:     memorySvc,
		Embedder:      embedder,
		Streamer:      streamer,
		Generator:     utilGen,
		Preferences:   NewPreferenceService(logger, users),
		Personalities: personalities,
		Emotions:      NewEmotionService(logger, &fakeEmotionRepo{}, nil, ""),
		Goals:         NewGoalService(logger, newFakeGoalRepo()),
		Extractor:     extractor,
	})
	return &chatFixture{
		svc:      svc,
		convs:    convs,
		messages: messages,
		streamer: streamer,
		sessions: sessions,
		users:    users,
		userID:   uuid.New(),
	}
}

func collectEvents(t *testing.T, ch <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, open := <-ch:
			if !open {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("stream did not close, got %d events", len(events))
		}
	}
}

func indexOfEvent(events []domain.StreamEvent, eventType string) int {
	for i, ev := range events {
		if ev.Type == eventType {
			return i
		}
	}
	return -1
}

func TestChatSafeTurnEventOrdering(t *testing.T) {
	f := newChatFixture(t)
	events := collectEvents(t, f.svc.Chat(context.Background(), ChatRequest{
		UserID:  f.userID,
		Message: "how do i file my taxes",
	}))

	if events[0].Type != domain.EventProcessingStart {
		t.Fatalf("first event = %s, want processing_start", events[0].Type)
	}
	classIdx := indexOfEvent(events, domain.EventClassification)
	promptIdx := indexOfEvent(events, domain.EventPromptBuilt)
	doneIdx := indexOfEvent(events, domain.EventDone)
	if classIdx < 0 || promptIdx < 0 || doneIdx < 0 {
		t.Fatalf("missing core events: %+v", events)
	}
	if classIdx > promptIdx || promptIdx > doneIdx {
		t.Fatal("classification must precede prompt_built, prompt_built must precede done")
	}
	if events[classIdx].Label != domain.LabelSafe {
		t.Fatalf("label = %s, want SAFE", events[classIdx].Label)
	}

	// Todos los chunks entre prompt_built y done, en orden.
	var content strings.Builder
	for i, ev := range events {
		if ev.Type != domain.EventChunk {
			continue
		}
		if i < promptIdx || i > doneIdx {
			t.Fatalf("chunk at index %d outside prompt_built..done window", i)
		}
		content.WriteString(ev.Content)
	}
	if content.String() != "Hola que tal" {
		t.Fatalf("streamed content = %q", content.String())
	}

	// Exactamente un evento terminal, y es el ultimo.
	terminals := 0
	for _, ev := range events {
		if ev.IsTerminal() {
			terminals++
		}
	}
	if terminals != 1 || !events[len(events)-1].IsTerminal() {
		t.Fatalf("want exactly one trailing terminal event, got %d", terminals)
	}

	// El turno quedo persistido: mensaje del usuario y del asistente.
	if got := f.messages.byRole(domain.RoleUser); len(got) != 1 || got[0].Content != "how do i file my taxes" {
		t.Fatalf("user message not persisted: %+v", got)
	}
	if got := f.messages.byRole(domain.RoleAssistant); len(got) != 1 || got[0].Content != "Hola que tal" {
		t.Fatalf("assistant message not persisted: %+v", got)
	}
	if len(f.streamer.Prompts) != 1 || !strings.Contains(f.streamer.Prompts[0], "user: how do i file my taxes") {
		t.Fatal("prompt must carry the current message")
	}
}

func TestChatEmptyMessageFails(t *testing.T) {
	f := newChatFixture(t)
	events := collectEvents(t, f.svc.Chat(context.Background(), ChatRequest{UserID: f.userID, Message: "   "}))
	if len(events) != 1 || events[0].Type != domain.EventError {
		t.Fatalf("want single error event, got %+v", events)
	}
}

func TestChatUnknownConversationFails(t *testing.T) {
	f := newChatFixture(t)
	other := uuid.New()
	events := collectEvents(t, f.svc.Chat(context.Background(), ChatRequest{
		UserID:         f.userID,
		ConversationID: &other,
		Message:        "hola",
	}))
	if len(events) != 1 || events[0].Type != domain.EventError || events[0].Error != "conversation not found" {
		t.Fatalf("want conversation-not-found error, got %+v", events)
	}
}

func TestChatPrecheck(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	if err := f.svc.Precheck(ctx, ChatRequest{UserID: f.userID, Message: "   "}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank message error = %v, want validation", err)
	}
	other := uuid.New()
	if err := f.svc.Precheck(ctx, ChatRequest{UserID: f.userID, ConversationID: &other, Message: "hola"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign conversation error = %v, want not found", err)
	}
	if err := f.svc.Precheck(ctx, ChatRequest{UserID: f.userID, Message: "hola"}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	// El limite de tasa se cobra aca, antes de abrir el stream.
	f.svc.limiter = denyLimiter{}
	if err := f.svc.Precheck(ctx, ChatRequest{UserID: f.userID, Message: "hola"}); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("error = %v, want rate limited", err)
	}
}

func TestChatRefusalPath(t *testing.T) {
	f := newChatFixture(t)
	events := collectEvents(t, f.svc.Chat(context.Background(), ChatRequest{
		UserID:  f.userID,
		Message: "she said no but he kept going",
	}))

	last := events[len(events)-1]
	if last.Type != domain.EventRefusal || last.Content != refusalMessage {
		t.Fatalf("want refusal terminal, got %+v", last)
	}
	classIdx := indexOfEvent(events, domain.EventClassification)
	if classIdx < 0 || events[classIdx].Label != domain.LabelNonconsensual {
		t.Fatalf("classification event wrong: %+v", events)
	}
	// El modelo no se consulta, pero la negativa queda en el historial.
	if len(f.streamer.Prompts) != 0 {
		t.Fatal("refused turn must not reach the model")
	}
	if got := f.messages.byRole(domain.RoleAssistant); len(got) != 1 || got[0].Content != refusalMessage {
		t.Fatalf("refusal must persist as an assistant message: %+v", got)
	}
}

func TestChatAgeGateAndRouteLock(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	explicit := "i want to have sex with you and touch your naked body"

	// Sin verificar edad: terminal age_verification_required.
	events := collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, Message: explicit}))
	last := events[len(events)-1]
	if last.Type != domain.EventAgeVerification {
		t.Fatalf("want age verification terminal, got %+v", last)
	}
	if !strings.Contains(last.EndpointHint, "/verify-age") {
		t.Fatalf("endpoint hint = %q", last.EndpointHint)
	}
	if len(f.streamer.Prompts) != 0 {
		t.Fatal("gated turn must not reach the model")
	}

	convID, err := uuid.Parse(last.ConversationID)
	if err != nil {
		t.Fatalf("terminal event must carry the conversation id: %v", err)
	}
	if _, err := f.sessions.SetAgeVerified(ctx, f.userID, convID); err != nil {
		t.Fatalf("verify age: %v", err)
	}

	// Verificado: el turno explicito corre completo y arma el route lock.
	events = collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, ConversationID: &convID, Message: explicit}))
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatalf("verified turn must complete: %+v", events[len(events)-1])
	}
	session, _ := f.sessions.Get(ctx, f.userID, convID)
	if session.Route != domain.RouteExplicit || !session.Locked() {
		t.Fatalf("route lock not armed: %+v", session)
	}

	// Con lock activo un mensaje neutro conserva la ruta sin reclasificar.
	events = collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, ConversationID: &convID, Message: "and what about tomorrow"}))
	classIdx := indexOfEvent(events, domain.EventClassification)
	if classIdx < 0 {
		t.Fatalf("missing classification event: %+v", events)
	}
	if events[classIdx].Label != domain.LabelExplicit || events[classIdx].Confidence != 1.0 {
		t.Fatalf("locked turn classification = %+v, want explicit at 1.0", events[classIdx])
	}
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatalf("locked turn must complete: %+v", events[len(events)-1])
	}
}

func TestChatRouteLockExpires(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	explicit := "i want to have sex with you and touch your naked body"

	events := collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, Message: explicit}))
	convID, err := uuid.Parse(events[len(events)-1].ConversationID)
	if err != nil {
		t.Fatalf("conversation id: %v", err)
	}
	if _, err := f.sessions.SetAgeVerified(ctx, f.userID, convID); err != nil {
		t.Fatalf("verify age: %v", err)
	}

	events = collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, ConversationID: &convID, Message: explicit}))
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatalf("explicit turn must complete: %+v", events[len(events)-1])
	}
	session, _ := f.sessions.Get(ctx, f.userID, convID)
	if session.RouteLock != 5 {
		t.Fatalf("route lock = %d, want 5", session.RouteLock)
	}

	// Cinco turnos neutros consumen el lock sin rearmarlo: los resultados
	// sinteticos de la ruta lockeada no cuentan como clasificacion nueva.
	for want := 4; want >= 0; want-- {
		events = collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, ConversationID: &convID, Message: "and what about tomorrow"}))
		classIdx := indexOfEvent(events, domain.EventClassification)
		if classIdx < 0 || events[classIdx].Label != domain.LabelExplicit {
			t.Fatalf("locked turn %d classification wrong: %+v", 5-want, events)
		}
		session, _ = f.sessions.Get(ctx, f.userID, convID)
		if session.RouteLock != want {
			t.Fatalf("route lock after locked turn = %d, want %d", session.RouteLock, want)
		}
	}

	// Lock agotado: el siguiente turno neutro se reclasifica de verdad y la
	// ruta vuelve a NORMAL.
	events = collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, ConversationID: &convID, Message: "and what about tomorrow"}))
	classIdx := indexOfEvent(events, domain.EventClassification)
	if classIdx < 0 || events[classIdx].Label != domain.LabelSafe {
		t.Fatalf("post-lock classification = %+v, want SAFE", events[classIdx])
	}
	session, _ = f.sessions.Get(ctx, f.userID, convID)
	if session.Route != domain.RouteNormal || session.Locked() {
		t.Fatalf("route must return to normal after lock expiry: %+v", session)
	}
}

func TestChatArchetypeSwitchPersists(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	events := collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, Message: "please switch to coach mode"}))
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatalf("switch turn must complete: %+v", events[len(events)-1])
	}
	if got := f.users.archetypes[f.userID]; got != "coach" {
		t.Fatalf("default archetype = %q, want coach", got)
	}
	if len(f.streamer.Prompts) != 1 || !strings.Contains(f.streamer.Prompts[0], "PERSONALITY: coach") {
		t.Fatal("switch turn must use the coach profile")
	}

	// Un turno posterior sin personality_name sigue usando el default.
	events = collectEvents(t, f.svc.Chat(ctx, ChatRequest{UserID: f.userID, Message: "how was your day"}))
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatalf("follow-up turn must complete: %+v", events[len(events)-1])
	}
	if len(f.streamer.Prompts) != 2 || !strings.Contains(f.streamer.Prompts[1], "PERSONALITY: coach") {
		t.Fatal("persisted archetype must apply to later turns")
	}
}
