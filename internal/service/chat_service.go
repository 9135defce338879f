package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"companion-llm/internal/domain"
	"companion-llm/internal/llm"
	"companion-llm/internal/repository"
)

// ChatService es el orquestador del turno: clasifica, hace fan-out de los
// servicios de estado, ensambla el prompt, streamea y agenda la extraccion.

const refusalMessage = "I can't continue with that request. If you'd like, we can talk about something else."

// ChatRequest es la entrada de un turno autenticado.
type ChatRequest struct {
	UserID          uuid.UUID
	ConversationID  *uuid.UUID
	Message         string
	PersonalityName string
}

type ChatService struct {
	logger        *zap.Logger
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	buffer        ConversationBuffer
	sessions      *SessionManager
	classifier    *ContentClassifier
	memorySvc     *MemoryService
	embedder      llm.Embedder
	streamer      llm.ChatStreamer
	generator     llm.Generator
	preferences   *PreferenceService
	personalities *PersonalityService
	emotions      *EmotionService
	goals         *GoalService
	extractor     *MemoryExtractor
	limiter       RateLimiter

	persona      string
	model        string
	utilityModel string
	bufferSize   int
	topK         int
	minSim       float64
	tokenBudget  int

	classifyTimeout   time.Duration
	fanoutTimeout     time.Duration
	firstChunkTimeout time.Duration

	mu        sync.Mutex
	convLocks map[uuid.UUID]*sync.Mutex
}

// ChatServiceParams agrupa las dependencias del constructor.
type ChatServiceParams struct {
	Logger        *zap.Logger
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Users         repository.UserRepository
	Buffer        ConversationBuffer
	Sessions      *SessionManager
	Classifier    *ContentClassifier
	MemorySvc     *MemoryService
	Embedder      llm.Embedder
	Streamer      llm.ChatStreamer
	Generator     llm.Generator
	Preferences   *PreferenceService
	Personalities *PersonalityService
	Emotions      *EmotionService
	Goals         *GoalService
	Extractor     *MemoryExtractor
	Limiter       RateLimiter

	Persona           string
	Model             string
	UtilityModel      string
	BufferSize        int
	RetrievalTopK     int
	MinSimilarity     float64
	TokenBudget       int
	ClassifyTimeout   time.Duration
	FanoutTimeout     time.Duration
	FirstChunkTimeout time.Duration
}

func NewChatService(p ChatServiceParams) *ChatService {
	if p.BufferSize <= 0 {
		p.BufferSize = 10
	}
	if p.RetrievalTopK <= 0 {
		p.RetrievalTopK = 5
	}
	if p.ClassifyTimeout <= 0 {
		p.ClassifyTimeout = 2 * time.Second
	}
	if p.FanoutTimeout <= 0 {
		p.FanoutTimeout = 5 * time.Second
	}
	if p.FirstChunkTimeout <= 0 {
		p.FirstChunkTimeout = 15 * time.Second
	}
	return &ChatService{
		logger:            p.Logger,
		conversations:     p.Conversations,
		messages:          p.Messages,
		users:             p.Users,
		buffer:            p.Buffer,
		sessions:          p.Sessions,
		classifier:        p.Classifier,
		memorySvc:         p.MemorySvc,
		embedder:          p.Embedder,
		streamer:          p.Streamer,
		generator:         p.Generator,
		preferences:       p.Preferences,
		personalities:     p.Personalities,
		emotions:          p.Emotions,
		goals:             p.Goals,
		extractor:         p.Extractor,
		limiter:           p.Limiter,
		persona:           p.Persona,
		model:             p.Model,
		utilityModel:      p.UtilityModel,
		bufferSize:        p.BufferSize,
		topK:              p.RetrievalTopK,
		minSim:            p.MinSimilarity,
		tokenBudget:       p.TokenBudget,
		classifyTimeout:   p.ClassifyTimeout,
		fanoutTimeout:     p.FanoutTimeout,
		firstChunkTimeout: p.FirstChunkTimeout,
		convLocks:         make(map[uuid.UUID]*sync.Mutex),
	}
}

// convLock serializa los turnos de una misma conversacion.
func (s *ChatService) convLock(conversationID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.convLocks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.convLocks[conversationID] = l
	}
	return l
}

// Precheck valida la request antes de comprometer la respuesta SSE: asi
// el handler puede devolver 400/404/429 reales en vez de un evento de
// error dentro de un stream con status 200.
func (s *ChatService) Precheck(ctx context.Context, req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: message must not be empty", domain.ErrValidation)
	}
	if req.ConversationID != nil {
		if _, err := s.conversations.GetOwned(ctx, *req.ConversationID, req.UserID); err != nil {
			return err
		}
	}
	if s.limiter != nil && !s.limiter.Allow(req.UserID.String()) {
		return domain.ErrRateLimited
	}
	return nil
}

// Chat ejecuta el turno y devuelve el canal de eventos. El canal se cierra
// siempre despues de exactamente un evento terminal.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent, 8)
	go func() {
		defer close(events)
		s.runTurn(ctx, req, events)
	}()
	return events
}

// emit entrega un evento respetando la cancelacion del cliente.
func emit(ctx context.Context, events chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *ChatService) runTurn(ctx context.Context, req ChatRequest, events chan<- domain.StreamEvent) {
	if strings.TrimSpace(req.Message) == "" {
		emit(ctx, events, domain.StreamEvent{Type: domain.EventError, Error: "empty message"})
		return
	}

	// Paso 1: resolver conversacion y sesion. El rate limit ya se cobro en
	// Precheck; aca no se vuelve a consumir un token.
	conv, isNew, err := s.resolveConversation(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			emit(ctx, events, domain.StreamEvent{Type: domain.EventError, Error: "conversation not found"})
		} else {
			s.logger.Error("resolve conversation failed", zap.Error(err))
			emit(ctx, events, domain.StreamEvent{Type: domain.EventError, Error: "internal error"})
		}
		return
	}
	convID := conv.ID.String()

	// La persistencia de un turno no arranca hasta que el anterior de la
	// misma conversacion emitio su evento terminal.
	lock := s.convLock(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.sessions.Get(ctx, req.UserID, conv.ID)
	if err != nil {
		s.logger.Error("load session failed", zap.Error(err))
		emit(ctx, events, domain.StreamEvent{Type: domain.EventError, ConversationID: convID, Error: "internal error"})
		return
	}

	// Paso 2.
	if !emit(ctx, events, domain.StreamEvent{Type: domain.EventProcessingStart, ConversationID: convID}) {
		return
	}

	// Paso 3: persistir el mensaje del usuario.
	if err := s.persistMessage(ctx, conv.ID, req.UserID, domain.RoleUser, req.Message); err != nil {
		s.logger.Error("persist user message failed", zap.Error(err))
		emit(ctx, events, domain.StreamEvent{Type: domain.EventError, ConversationID: convID, Error: "internal error"})
		return
	}

	// Paso 4: clasificar, salvo que la ruta este lockeada.
	classification, routeLocked := s.classify(ctx, req, &session)
	if !emit(ctx, events, domain.StreamEvent{
		Type:           domain.EventClassification,
		ConversationID: convID,
		Label:          classification.Label,
		Confidence:     classification.Confidence,
		Layers:         classification.Layers,
	}) {
		return
	}

	// Paso 5: ruteo y gates.
	switch {
	case classification.Label == domain.LabelRefused ||
		classification.Label == domain.LabelMinorRisk ||
		classification.Label == domain.LabelNonconsensual:
		// La negativa es una respuesta normal del asistente: queda en el
		// historial como cualquier otro mensaje.
		if err := s.persistMessage(ctx, conv.ID, req.UserID, domain.RoleAssistant, refusalMessage); err != nil {
			s.logger.Warn("persist refusal failed", zap.Error(err))
		}
		emit(ctx, events, domain.StreamEvent{
			Type:           domain.EventRefusal,
			ConversationID: convID,
			Content:        refusalMessage,
		})
		return
	case (classification.Label == domain.LabelExplicit || classification.Label == domain.LabelFetish) && !session.AgeVerified:
		emit(ctx, events, domain.StreamEvent{
			Type:           domain.EventAgeVerification,
			ConversationID: convID,
			EndpointHint:   fmt.Sprintf("/api/v1/conversations/%s/verify-age", convID),
		})
		return
	}
	// Una clasificacion sintetica por lock no rearma el contador: solo una
	// clasificacion real de EXPLICIT/FETISH vuelve a ponerlo en N.
	if !routeLocked {
		s.sessions.ApplyClassification(&session, classification.Label)
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		s.logger.Warn("persist session failed", zap.Error(err))
	}

	// Paso 6: fan-out acotado.
	turn := s.fanOut(ctx, req, conv, events)

	// Paso 7: ensamblar prompt.
	bufMessages, err := s.buffer.Get(ctx, conv.ID)
	if err != nil {
		s.logger.Warn("buffer read failed", zap.Error(err))
	}
	summary, _ := s.buffer.GetSummary(ctx, conv.ID)
	// El buffer ya incluye el mensaje actual; el prompt lo pone aparte.
	if n := len(bufMessages); n > 0 && bufMessages[n-1].Content == req.Message {
		bufMessages = bufMessages[:n-1]
	}
	prompt, stats := BuildPrompt(PromptInput{
		Persona:         s.persona,
		Personality:     turn.personality,
		Preferences:     turn.preferences,
		Emotion:         turn.emotion,
		EmotionTrend:    turn.emotionTrend,
		Goals:           turn.goals,
		NewGoals:        turn.goalEvents.NewGoals,
		ProgressUpdates: turn.goalEvents.ProgressUpdates,
		Completions:     turn.goalEvents.Completions,
		Memories:        turn.memories,
		Summary:         summary,
		Buffer:          bufMessages,
		UserMessage:     req.Message,
		TokenBudget:     s.tokenBudget,
	})
	if !emit(ctx, events, domain.StreamEvent{
		Type:           domain.EventPromptBuilt,
		ConversationID: convID,
		Counts: map[string]int{
			"memories":  stats.MemoryCount,
			"buffer":    stats.BufferCount,
			"goals":     stats.GoalCount,
			"token_est": stats.TokenEstimate,
		},
	}) {
		return
	}

	// Pasos 8 y 9: streamear y cerrar el turno.
	assistantText, err := s.streamCompletion(ctx, conv.ID, prompt, events)
	if err != nil {
		emit(ctx, events, domain.StreamEvent{
			Type:           domain.EventError,
			ConversationID: convID,
			Error:          "upstream failure",
			Detail:         err.Error(),
		})
		return
	}
	if err := s.persistMessage(ctx, conv.ID, req.UserID, domain.RoleAssistant, assistantText); err != nil {
		s.logger.Error("persist assistant message failed", zap.Error(err))
	}
	if !emit(ctx, events, domain.StreamEvent{Type: domain.EventDone, ConversationID: convID}) {
		return
	}

	// Paso 10: trabajo de fondo, desacoplado de la request.
	s.scheduleBackground(req, conv, isNew, assistantText, turn, bufMessages)
}

func (s *ChatService) resolveConversation(ctx context.Context, req ChatRequest) (domain.Conversation, bool, error) {
	if req.ConversationID != nil {
		conv, err := s.conversations.GetOwned(ctx, *req.ConversationID, req.UserID)
		return conv, false, err
	}
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:        uuid.New(),
		UserID:    req.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, true, nil
}

func (s *ChatService) persistMessage(ctx context.Context, conversationID, userID uuid.UUID, role, content string) error {
	if err := s.buffer.Append(ctx, conversationID, BufferedMessage{Role: role, Content: content}); err != nil {
		return err
	}
	if err := s.messages.Create(ctx, domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return err
	}
	return s.conversations.Touch(ctx, conversationID)
}

// classify respeta el route lock: con lock activo se reusa la ruta de la
// sesion, se consume un turno del lock y se devuelve locked=true para que
// el resultado sintetico no se aplique como clasificacion nueva.
func (s *ChatService) classify(ctx context.Context, req ChatRequest, session *domain.Session) (domain.Classification, bool) {
	if session.Locked() {
		s.sessions.ConsumeLock(session)
		return domain.Classification{
			Label:      labelForRoute(session.Route),
			Confidence: 1.0,
			Reasoning:  "session route locked",
		}, true
	}
	cctx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()
	return s.classifier.Classify(cctx, uuid.NewString(), req.UserID, req.Message), false
}

func labelForRoute(route string) string {
	switch route {
	case domain.RouteExplicit:
		return domain.LabelExplicit
	case domain.RouteFetish:
		return domain.LabelFetish
	case domain.RouteRefused:
		return domain.LabelRefused
	default:
		return domain.LabelSafe
	}
}

// turnContext junta los resultados del fan-out.
type turnContext struct {
	preferences  domain.Preferences
	personality  *domain.PersonalityProfile
	emotion      *EmotionVerdict
	emotionTrend string
	goals        []domain.Goal
	goalEvents   GoalTrackResult
	memories     []domain.ScoredMemory
}

// fanOut corre los subtasks de estado en paralelo con deadline comun. Cada
// subtask degrada a vacio ante error o timeout; nunca tumba el turno. La
// personalidad se resuelve antes de largar el grupo: la recuperacion de
// memorias depende de su id para el scoping.
func (s *ChatService) fanOut(ctx context.Context, req ChatRequest, conv domain.Conversation, events chan<- domain.StreamEvent) turnContext {
	fctx, cancel := context.WithTimeout(ctx, s.fanoutTimeout)
	defer cancel()

	var (
		turn turnContext
		mu   sync.Mutex
	)

	archetype := req.PersonalityName
	if requested := DetectArchetypeRequest(req.Message); requested != "" {
		archetype = requested
		// Un cambio pedido en lenguaje natural queda persistido como el
		// default del usuario para los turnos siguientes.
		if s.users != nil {
			if err := s.users.SetDefaultArchetype(fctx, req.UserID, requested); err != nil {
				s.logger.Warn("persist archetype switch failed", zap.Error(err))
			}
		}
	} else if archetype == "" && s.users != nil {
		if stored, err := s.users.GetDefaultArchetype(fctx, req.UserID); err == nil {
			archetype = stored
		}
	}

	if profile, err := s.personalities.Resolve(fctx, req.UserID, archetype); err != nil {
		s.logger.Warn("personality resolve failed", zap.Error(err))
	} else {
		turn.personality = &profile
		emit(ctx, events, domain.StreamEvent{Type: domain.EventThinking, Step: "personality", Detail: profile.Archetype})
	}

	g, gctx := errgroup.WithContext(fctx)

	g.Go(func() error {
		if err := s.preferences.UpdateFromMessage(gctx, req.UserID, req.Message); err != nil {
			s.logger.Warn("preference update failed", zap.Error(err))
		}
		prefs, err := s.preferences.Get(gctx, req.UserID)
		if err != nil {
			s.logger.Warn("preference load failed", zap.Error(err))
			return nil
		}
		mu.Lock()
		turn.preferences = prefs
		mu.Unlock()
		emit(ctx, events, domain.StreamEvent{Type: domain.EventThinking, Step: "preferences", Detail: "communication preferences applied"})
		return nil
	})

	g.Go(func() error {
		verdict, ok := s.emotions.Detect(gctx, req.Message)
		if !ok {
			return nil
		}
		convID := conv.ID
		if err := s.emotions.Record(gctx, req.UserID, &convID, req.Message, verdict); err != nil {
			s.logger.Warn("emotion record failed", zap.Error(err))
		}
		trend, err := s.emotions.Trend(gctx, req.UserID, 7*24*time.Hour)
		if err != nil {
			trend = domain.TrendStable
		}
		mu.Lock()
		turn.emotion = &verdict
		turn.emotionTrend = trend
		mu.Unlock()
		emit(ctx, events, domain.StreamEvent{Type: domain.EventThinking, Step: "emotion", Detail: verdict.Emotion})
		return nil
	})

	g.Go(func() error {
		emotionLabel := ""
		if v, ok := DetectEmotionLexical(req.Message); ok {
			emotionLabel = v.Emotion
		}
		tracked, err := s.goals.DetectAndTrack(gctx, req.UserID, req.Message, emotionLabel)
		if err != nil {
			s.logger.Warn("goal tracking failed", zap.Error(err))
			return nil
		}
		goals, err := s.goals.List(gctx, req.UserID, domain.GoalStatusActive)
		if err != nil {
			return nil
		}
		mu.Lock()
		turn.goals = goals
		turn.goalEvents = tracked
		mu.Unlock()
		emit(ctx, events, domain.StreamEvent{Type: domain.EventThinking, Step: "goals", Detail: fmt.Sprintf("%d active", len(goals))})
		return nil
	})

	g.Go(func() error {
		vector, err := s.embedder.Embed(gctx, req.Message)
		if err != nil {
			s.logger.Warn("embed query failed", zap.Error(err))
			return nil
		}
		// turn.personality ya esta resuelta; solo este goroutine la lee.
		personalityID := uuid.Nil
		if turn.personality != nil {
			personalityID = turn.personality.ID
		}
		results, err := s.memorySvc.Retrieve(gctx, req.UserID, personalityID, vector, s.topK, s.minSim)
		if err != nil {
			s.logger.Warn("memory retrieval failed", zap.Error(err))
			return nil
		}
		results = RankMemories(results, time.Now().UTC())
		mu.Lock()
		turn.memories = results
		mu.Unlock()
		emit(ctx, events, domain.StreamEvent{Type: domain.EventThinking, Step: "memory", Detail: fmt.Sprintf("%d recalled", len(results))})
		return nil
	})

	// Los subtasks devuelven nil siempre; Wait solo espera el deadline.
	_ = g.Wait()
	return turn
}

// streamCompletion releva los chunks al cliente y acumula el texto final.
func (s *ChatService) streamCompletion(ctx context.Context, conversationID uuid.UUID, prompt string, events chan<- domain.StreamEvent) (string, error) {
	chunks, err := s.streamer.Stream(ctx, prompt, llm.Options{Model: s.model})
	if err != nil {
		return "", err
	}

	var assistant strings.Builder
	firstChunk := time.NewTimer(s.firstChunkTimeout)
	defer firstChunk.Stop()
	received := false

	for {
		var (
			chunk llm.Chunk
			open  bool
		)
		if received {
			select {
			case chunk, open = <-chunks:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		} else {
			select {
			case chunk, open = <-chunks:
			case <-firstChunk.C:
				return "", fmt.Errorf("%w: no chunk before deadline", domain.ErrUpstreamUnavailable)
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if !open {
			return assistant.String(), nil
		}
		if chunk.Err != nil {
			return "", chunk.Err
		}
		received = true
		assistant.WriteString(chunk.Content)
		if !emit(ctx, events, domain.StreamEvent{
			Type:           domain.EventChunk,
			ConversationID: conversationID.String(),
			Content:        chunk.Content,
		}) {
			return "", ctx.Err()
		}
	}
}

// scheduleBackground agenda extraccion de memorias, titulo y resumen con un
// contexto propio: el turno ya respondio.
func (s *ChatService) scheduleBackground(req ChatRequest, conv domain.Conversation, isNew bool, assistantText string, turn turnContext, recent []BufferedMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		in := ExtractionInput{
			UserID:           req.UserID,
			ConversationID:   conv.ID,
			UserMessage:      req.Message,
			AssistantMessage: assistantText,
			RecentContext:    recent,
		}
		if turn.personality != nil {
			in.PersonalityID = turn.personality.ID
		}
		if turn.emotion != nil {
			in.Emotion = turn.emotion.Emotion
			in.EmotionIntensity = turn.emotion.Intensity
		}
		if err := s.extractor.Extract(ctx, in); err != nil {
			s.logger.Warn("background extraction failed", zap.Error(err),
				zap.String("conversation_id", conv.ID.String()))
		}

		if isNew {
			s.autoTitle(ctx, conv.ID, req.Message)
		}
		s.maybeSummarize(ctx, conv.ID)
	}()
}

const titlePrompt = `Write a title of at most 6 words for a conversation that
starts with this message. Respond with the title only, no quotes.

Message: %q
`

func (s *ChatService) autoTitle(ctx context.Context, conversationID uuid.UUID, firstMessage string) {
	title, err := s.generator.Generate(ctx, fmt.Sprintf(titlePrompt, firstMessage), llm.Options{
		Model:       s.utilityModel,
		Temperature: 0.3,
		MaxTokens:   20,
	})
	if err != nil {
		s.logger.Warn("auto title failed", zap.Error(err))
		return
	}
	title = strings.Trim(strings.TrimSpace(title), `"`)
	if title == "" {
		return
	}
	if err := s.conversations.SetTitle(ctx, conversationID, title); err != nil {
		s.logger.Warn("set title failed", zap.Error(err))
	}
}

const summaryPrompt = `Condense this conversation into a short paragraph that
preserves facts, decisions and open threads. Merge with the previous summary
when one is given.

Previous summary: %s

Messages:
%s

Respond with the summary only.
`

// maybeSummarize refresca el resumen rodante cuando el buffer esta lleno:
// los mensajes que el ring va a pisar quedan capturados en el resumen.
func (s *ChatService) maybeSummarize(ctx context.Context, conversationID uuid.UUID) {
	messages, err := s.buffer.Get(ctx, conversationID)
	if err != nil || len(messages) < s.bufferSize {
		return
	}
	previous, _ := s.buffer.GetSummary(ctx, conversationID)
	if previous == "" {
		previous = "(none)"
	}
	var lines []string
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	summary, err := s.generator.Generate(ctx, fmt.Sprintf(summaryPrompt, previous, strings.Join(lines, "\n")), llm.Options{
		Model:       s.utilityModel,
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		s.logger.Warn("rolling summary failed", zap.Error(err))
		return
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return
	}
	if err := s.buffer.SetSummary(ctx, conversationID, summary); err != nil {
		s.logger.Warn("buffer summary write failed", zap.Error(err))
	}
	if err := s.conversations.SetSummary(ctx, conversationID, summary); err != nil {
		s.logger.Warn("conversation summary write failed", zap.Error(err))
	}
}

// ResetConversation limpia el buffer de corto plazo; las memorias de largo
// plazo sobreviven.
func (s *ChatService) ResetConversation(ctx context.Context, conversationID, userID uuid.UUID) error {
	if _, err := s.conversations.GetOwned(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.buffer.Reset(ctx, conversationID)
}
