package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"deepscholar/internal/logging"
	"deepscholar/internal/memory"
	"deepscholar/internal/pipeline"
	"deepscholar/internal/planner"
	"deepscholar/internal/query"
	"deepscholar/internal/store"
	"deepscholar/internal/types"
)

// Runner executes an approved plan for a session. Satisfied by
// *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, s *pipeline.Session, rawQuery string, plan *types.AdaptivePlan) error
}

// Orchestrator is the conversation state machine. It serializes work per
// conversation: a new turn arriving while a pipeline runs gets a "still
// working" reply.
type Orchestrator struct {
	fabric     *memory.Fabric
	classifier *Classifier
	clarifier  *query.Clarifier
	adaptive   *planner.Adaptive
	runner     Runner
	progress   types.ProgressFunc

	mu      sync.Mutex
	busy    map[string]bool
	cancels map[string]context.CancelFunc
}

// NewOrchestrator wires the dialogue layer.
func NewOrchestrator(fabric *memory.Fabric, llmClient types.LLMClient, adaptive *planner.Adaptive, runner Runner, progress types.ProgressFunc) *Orchestrator {
	return &Orchestrator{
		fabric:     fabric,
		classifier: NewClassifier(llmClient),
		clarifier:  query.NewClarifier(llmClient),
		adaptive:   adaptive,
		runner:     runner,
		progress:   progress,
		busy:       map[string]bool{},
		cancels:    map[string]context.CancelFunc{},
	}
}

// HandleMessage processes one user turn and returns the assistant reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, convID, userID, text string) (string, error) {
	if o.isBusy(convID) {
		conv, _ := o.fabric.Working.Get(ctx, convID)
		lang := "en"
		if conv != nil {
			lang = conv.Language
		}
		if o.classifier.Classify(ctx, text, types.StateExecuting) == types.IntentCancel {
			o.cancelRun(convID)
			return templatesFor(lang).cancelled, nil
		}
		return templatesFor(lang).stillWorking, nil
	}

	conv, err := o.fabric.Working.Get(ctx, convID)
	if errors.Is(err, store.ErrNotFound) {
		conv = &types.Conversation{
			ID:        convID,
			UserID:    userID,
			State:     types.StateIdle,
			CreatedAt: time.Now(),
		}
	} else if err != nil {
		return "", err
	}

	lang := query.DetectLanguage(text)
	if lang != "en" || conv.Language == "" {
		conv.Language = lang
	}
	conv.Append(types.RoleUser, text)
	conv.AddURLs(query.ExtractURLs(text))

	intent := o.classifier.Classify(ctx, text, conv.State)
	logging.Dialogue("conv %s state=%s intent=%s", convID, conv.State, intent)

	reply, err := o.dispatch(ctx, conv, intent, text)
	if err != nil {
		return "", err
	}
	conv.Append(types.RoleAssistant, reply)
	if err := o.fabric.Working.Save(ctx, conv); err != nil {
		logging.StoreError("conversation save failed: %v", err)
	}
	return reply, nil
}

// dispatch applies one state transition.
func (o *Orchestrator) dispatch(ctx context.Context, conv *types.Conversation, intent types.Intent, text string) (string, error) {
	switch conv.State {
	case types.StateIdle, types.StateComplete, types.StateError:
		return o.fromIdle(ctx, conv, intent, text)
	case types.StateClarifying:
		return o.fromClarifying(ctx, conv, intent, text)
	case types.StateReviewing:
		return o.fromReviewing(ctx, conv, intent, text)
	case types.StateExecuting:
		if intent == types.IntentCancel {
			o.cancelRun(conv.ID)
			conv.State = types.StateIdle
			return templatesFor(conv.Language).cancelled, nil
		}
		return templatesFor(conv.Language).stillWorking, nil
	default:
		conv.State = types.StateIdle
		return templatesFor(conv.Language).greeting, nil
	}
}

func (o *Orchestrator) fromIdle(ctx context.Context, conv *types.Conversation, intent types.Intent, text string) (string, error) {
	switch intent {
	case types.IntentChat:
		return templatesFor(conv.Language).chatFallback, nil
	case types.IntentNewTopic, types.IntentOther:
		if intent == types.IntentOther && len(strings.Fields(text)) < 3 {
			return templatesFor(conv.Language).chatFallback, nil
		}
		return o.startTopic(ctx, conv, text)
	default:
		return templatesFor(conv.Language).greeting, nil
	}
}

// startTopic analyzes a fresh query: clarify if warranted, plan otherwise.
func (o *Orchestrator) startTopic(ctx context.Context, conv *types.Conversation, text string) (string, error) {
	conv.Topic = text

	if query.NeedsClarification(text) && !o.fabric.ShouldSkipClarification(ctx, conv.UserID, text) {
		clar, err := o.clarifier.Clarify(ctx, text, conv.Language)
		if err != nil {
			return "", err
		}
		conv.Clarifying = clar
		conv.State = types.StateClarifying

		var hints []string
		if mc, err := o.fabric.Context(ctx, conv.UserID, text); err == nil {
			hints = mc.SimilarSessions
		}
		return renderClarification(clar, hints), nil
	}
	return o.plan(ctx, conv, text)
}

// plan builds the adaptive plan and presents it for review.
func (o *Orchestrator) plan(ctx context.Context, conv *types.Conversation, rawQuery string) (string, error) {
	conv.State = types.StatePlanning

	req := o.buildRequest(ctx, conv, rawQuery)
	adaptive, err := o.adaptive.Plan(ctx, rawQuery, req)
	if err != nil {
		conv.State = types.StateError
		return fmt.Sprintf(templatesFor(conv.Language).failed, err.Error()), nil
	}

	conv.PendingPlan = adaptive
	conv.CurrentRequest = req
	conv.State = types.StateReviewing
	return renderPlan(adaptive.Plan, conv.Language), nil
}

func (o *Orchestrator) fromClarifying(ctx context.Context, conv *types.Conversation, intent types.Intent, text string) (string, error) {
	clar := conv.Clarifying
	switch intent {
	case types.IntentCancel:
		conv.Clarifying = nil
		conv.State = types.StateIdle
		return templatesFor(conv.Language).cancelled, nil
	case types.IntentConfirm:
		conv.Clarifying = nil
		topic := conv.Topic
		if clar != nil && clar.Understanding != "" {
			topic = clar.Understanding
		}
		return o.plan(ctx, conv, topic)
	default:
		// Any other text is treated as the clarification answer.
		conv.Clarifying = nil
		topic := conv.Topic
		if clar != nil {
			topic = fmt.Sprintf("%s (%s)", clar.OriginalQuery, text)
		}
		conv.Topic = topic
		return o.plan(ctx, conv, topic)
	}
}

func (o *Orchestrator) fromReviewing(ctx context.Context, conv *types.Conversation, intent types.Intent, text string) (string, error) {
	t := templatesFor(conv.Language)
	switch intent {
	case types.IntentConfirm:
		return o.execute(ctx, conv)
	case types.IntentCancel:
		conv.PendingPlan = nil
		conv.CurrentRequest = nil
		conv.State = types.StateIdle
		return t.planDiscarded, nil
	case types.IntentEdit:
		if conv.PendingPlan == nil {
			conv.State = types.StateIdle
			return t.greeting, nil
		}
		conv.State = types.StateEditing
		applyEdit(conv.PendingPlan.Plan, text)
		conv.State = types.StateReviewing
		return renderPlan(conv.PendingPlan.Plan, conv.Language), nil
	case types.IntentNewTopic:
		conv.PendingPlan = nil
		conv.CurrentRequest = nil
		return o.startTopic(ctx, conv, text)
	default:
		if conv.PendingPlan == nil {
			conv.State = types.StateIdle
			return t.greeting, nil
		}
		return renderPlan(conv.PendingPlan.Plan, conv.Language), nil
	}
}

// execute bridges into the pipeline. The run happens on this goroutine's
// context; callers wanting async execution run HandleMessage in its own
// goroutine.
func (o *Orchestrator) execute(ctx context.Context, conv *types.Conversation) (string, error) {
	if conv.PendingPlan == nil {
		conv.State = types.StateIdle
		return templatesFor(conv.Language).greeting, nil
	}

	plan := conv.PendingPlan
	req := conv.CurrentRequest
	if req == nil {
		req = &types.ResearchRequest{Topic: plan.Plan.Topic, Language: conv.Language}
	}

	session := pipeline.NewSession(conv.UserID, req)
	conv.SessionID = session.ID
	conv.State = types.StateExecuting

	runCtx, cancel := context.WithCancel(ctx)
	o.setBusy(conv.ID, cancel)
	defer o.clearBusy(conv.ID)

	started := time.Now()
	err := o.runner.Run(runCtx, session, plan.Query.Original, plan)
	o.recordEpisode(conv, session, plan, time.Since(started))

	t := templatesFor(conv.Language)
	switch {
	case errors.Is(err, context.Canceled):
		conv.State = types.StateIdle
		conv.PendingPlan = nil
		return t.cancelled, nil
	case err != nil:
		conv.State = types.StateError
		conv.ResultSummary = err.Error()
		return fmt.Sprintf(t.failed, err.Error()), nil
	default:
		conv.State = types.StateComplete
		conv.PendingPlan = nil
		conv.ResultSummary = summarize(session)
		return fmt.Sprintf(t.completed, conv.ResultSummary), nil
	}
}

// recordEpisode updates episodic and procedural memory at session end.
func (o *Orchestrator) recordEpisode(conv *types.Conversation, s *pipeline.Session, plan *types.AdaptivePlan, took time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	relevant, high := 0, 0
	var sources []string
	seen := map[string]bool{}
	for _, p := range s.Papers {
		if p.RelevanceScore != nil && *p.RelevanceScore >= 6 {
			relevant++
		}
		if p.RelevanceScore != nil && *p.RelevanceScore >= 8 {
			high++
		}
		if p.Source != "" && !seen[p.Source] {
			seen[p.Source] = true
			sources = append(sources, p.Source)
		}
	}

	episode := &types.ResearchEpisode{
		ID:            s.ID,
		UserID:        conv.UserID,
		Topic:         plan.Plan.Topic,
		OriginalQuery: plan.Query.Original,
		PapersFound:   len(s.Papers),
		Relevant:      relevant,
		HighRelevance: high,
		Clusters:      len(s.Clusters),
		Outcome:       s.Outcome,
		Duration:      took,
		SourcesUsed:   sources,
		CreatedAt:     time.Now(),
	}
	if err := o.fabric.Episodic.Record(ctx, episode); err != nil {
		logging.MemoryDebug("episode record failed: %v", err)
	}
	if err := o.fabric.Procedural.UpdateFromBehavior(ctx, conv.UserID, s.Request, sources, conv.Language); err != nil {
		logging.MemoryDebug("preference update failed: %v", err)
	}
}

// buildRequest folds memory context into the planner request.
func (o *Orchestrator) buildRequest(ctx context.Context, conv *types.Conversation, rawQuery string) *types.ResearchRequest {
	req := &types.ResearchRequest{
		Topic:      query.MainTopic(rawQuery),
		SourceURLs: conv.PendingURLs,
		Language:   conv.Language,
	}
	if mc, err := o.fabric.Context(ctx, conv.UserID, rawQuery); err == nil {
		req.Keywords = mc.GoodKeywords
		if mc.MaxPapers > 0 {
			req.MaxPapers = mc.MaxPapers
		}
	}
	return req
}

func summarize(s *pipeline.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d papers", len(s.Papers))
	if len(s.Clusters) > 0 {
		fmt.Fprintf(&b, " across %d themes", len(s.Clusters))
	}
	if s.ReportID != "" {
		fmt.Fprintf(&b, "; report saved as %s", s.ReportID)
	}
	b.WriteString(".")
	return b.String()
}

func (o *Orchestrator) isBusy(convID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy[convID]
}

func (o *Orchestrator) setBusy(convID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy[convID] = true
	o.cancels[convID] = cancel
}

func (o *Orchestrator) clearBusy(convID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.busy, convID)
	if cancel, ok := o.cancels[convID]; ok {
		cancel()
		delete(o.cancels, convID)
	}
}

// cancelRun aborts the running pipeline for a conversation, if any.
func (o *Orchestrator) cancelRun(convID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.cancels[convID]; ok {
		cancel()
	}
}
