package answer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mediquery-be/pkg/cache"
	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
	"mediquery-be/pkg/sources"
)

// Config bounds the pipeline loops and the retrieval fan-out. All values are
// fixed for the process lifetime, which is what guarantees termination.
type Config struct {
	RelevanceThreshold int
	MaxRewrites        int
	MaxTotalIterations int
	FanOutWorkers      int
	PerCallTimeout     time.Duration
	RetrievalTTL       time.Duration
	GenerationTTL      time.Duration
	SourceLimits       map[string]int
	Retry              RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		RelevanceThreshold: 1,
		MaxRewrites:        2,
		MaxTotalIterations: 3,
		FanOutWorkers:      6,
		PerCallTimeout:     30 * time.Second,
		RetrievalTTL:       time.Hour,
		GenerationTTL:      time.Hour,
		SourceLimits: map[string]int{
			sources.IDAcademic:  3,
			sources.IDCuratedKB: 5,
			sources.IDAssistant: 1,
			sources.IDWeb:       5,
		},
		Retry: DefaultRetryPolicy(),
	}
}

func (c Config) sourceLimit(id string) int {
	if limit, ok := c.SourceLimits[id]; ok && limit > 0 {
		return limit
	}
	return 5
}

// Orchestrator runs the answer state machine:
//
//	ROUTE -> RETRIEVE -> GRADE -> {GENERATE | REWRITE} -> GENERATE ->
//	VERIFY -> {DONE | REWRITE} -> DONE_LOW_CONFIDENCE | FAILED
//
// One pipelineState exists per run and is never shared; the registry and
// cache are the only shared structures. The prompt snapshot is captured once
// at run entry, so concurrent administrative edits never touch an in-flight
// run.
type Orchestrator struct {
	registry   *prompt.Registry
	cache      *cache.Cache
	stats      *Stats
	rewriter   *Rewriter
	grader     *Grader
	generator  *Generator
	verifier   *Verifier
	summarizer *Summarizer
	config     Config
	logger     *log.Logger

	mu         sync.RWMutex
	connectors map[string]sources.Connector
	router     *Router
}

func NewOrchestrator(
	registry *prompt.Registry,
	connectors []sources.Connector,
	provider llm.LLMProvider,
	store *cache.Cache,
	stats *Stats,
	config Config,
	logger *log.Logger,
) *Orchestrator {
	instrumented := InstrumentProvider(provider, stats)
	retry := config.Retry

	o := &Orchestrator{
		registry:   registry,
		cache:      store,
		stats:      stats,
		rewriter:   NewRewriter(instrumented, logger),
		grader:     NewGrader(instrumented, config.FanOutWorkers, logger),
		generator:  NewGenerator(instrumented, retry, logger),
		verifier:   NewVerifier(instrumented, retry, logger),
		summarizer: NewSummarizer(instrumented, logger),
		config:     config,
		logger:     logger,
	}
	o.SetConnectors(connectors)
	return o
}

// SetConnectors swaps the connector fleet and rebuilds the router. Used at
// construction and by the administrative refresh after prompt or source
// changes; in-flight runs keep the connectors they already picked.
func (o *Orchestrator) SetConnectors(connectors []sources.Connector) {
	byID := make(map[string]sources.Connector, len(connectors))
	ordered := make([]sources.Connector, len(connectors))
	copy(ordered, connectors)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TrustWeight() != ordered[j].TrustWeight() {
			return ordered[i].TrustWeight() > ordered[j].TrustWeight()
		}
		return ordered[i].ID() < ordered[j].ID()
	})

	ids := make([]string, 0, len(ordered))
	for _, conn := range ordered {
		byID[conn.ID()] = conn
		ids = append(ids, conn.ID())
	}

	o.mu.Lock()
	o.connectors = byID
	o.router = NewRouter(ids)
	o.mu.Unlock()
}

// ConnectorIDs reports the enabled fleet, trust-descending.
func (o *Orchestrator) ConnectorIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.router.available
}

// Run executes one question through the state machine. The returned error is
// non-nil only for fatal failures (cancellation, missing prompt
// configuration, exhausted generation/verification retries); evidence
// quality problems degrade the confidence flag instead.
func (o *Orchestrator) Run(ctx context.Context, questionText, userID string, memory ConversationMemory) (*RunResult, error) {
	start := time.Now()
	defer func() {
		o.stats.RecordRun(time.Since(start))
	}()

	// A missing stage here is a configuration bug and fails the run before
	// any state executes.
	snap, err := o.registry.Snapshot()
	if err != nil {
		return nil, err
	}

	question := NewQuestion(questionText, userID)
	summary := o.summarizer.Summarize(ctx, memory, question.Language, snap)

	st := &pipelineState{
		question:      question,
		currentQuery:  EnhanceQuestion(memory, summary, question.Text),
		memorySummary: summary,
		seenEvidence:  make(map[string]bool),
		state:         StateRoute,
	}

	o.logger.Printf("[RUN] user=%s lang=%s question=%q", userID, question.Language, truncate(questionText, 50))

	for {
		if ctx.Err() != nil {
			return nil, o.fail(st, fmt.Errorf("%w: %v", ErrRunCancelled, ctx.Err()))
		}

		switch st.state {
		case StateRoute:
			o.stateRoute(st)

		case StateRetrieve:
			o.stateRetrieve(ctx, st)

		case StateGrade:
			if err := o.stateGrade(ctx, snap, st); err != nil {
				return nil, o.fail(st, err)
			}

		case StateRewrite:
			o.stateRewrite(ctx, snap, st)

		case StateGenerate:
			if err := o.stateGenerate(ctx, snap, st); err != nil {
				return nil, o.fail(st, err)
			}

		case StateVerify:
			if err := o.stateVerify(ctx, snap, st); err != nil {
				return nil, o.fail(st, err)
			}

		case StateDone, StateDoneLowConfidence:
			result := o.finish(st)
			o.logger.Printf("[RUN] %s confidence=%s iterations=%d citations=%d",
				st.state, result.Answer.Confidence, result.Iterations, len(result.Answer.Citations))
			return result, nil

		default:
			return nil, o.fail(st, fmt.Errorf("orchestrator reached unknown state %q", st.state))
		}
	}
}

// fail marks the run's terminal state and logs the state it failed in before
// handing the fatal error back to the caller.
func (o *Orchestrator) fail(st *pipelineState, err error) error {
	failedIn := st.state
	st.state = StateFailed
	o.logger.Printf("[RUN] %s in %s: %v", StateFailed, failedIn, err)
	return err
}

func (o *Orchestrator) stateRoute(st *pipelineState) {
	o.mu.RLock()
	router := o.router
	o.mu.RUnlock()

	route := router.Route(st.question, st.memorySummary)
	st.category = route.Category
	st.connectorIDs = route.ConnectorIDs
	o.logger.Printf("[ROUTE] category=%s connectors=%v", route.Category, route.ConnectorIDs)
	st.state = StateRetrieve
}

func (o *Orchestrator) stateRetrieve(ctx context.Context, st *pipelineState) {
	results := o.fanOut(ctx, st)

	fresh := make([]sources.SourceResult, 0, len(results))
	for _, r := range results {
		key := r.SourceID + "\x1f" + r.Identifier + "\x1f" + r.Snippet
		if st.seenEvidence[key] {
			continue
		}
		st.seenEvidence[key] = true
		fresh = append(fresh, r)
	}

	o.logger.Printf("[RETRIEVE] %d results, %d new", len(results), len(fresh))
	st.pending = fresh
	st.state = StateGrade
}

// fanOut queries the routed connectors in parallel through the cache. A
// failing connector is recorded as degraded and contributes nothing; it
// never aborts the round.
func (o *Orchestrator) fanOut(ctx context.Context, st *pipelineState) []sources.SourceResult {
	o.mu.RLock()
	conns := make([]sources.Connector, 0, len(st.connectorIDs))
	for _, id := range st.connectorIDs {
		if conn, ok := o.connectors[id]; ok {
			conns = append(conns, conn)
		}
	}
	o.mu.RUnlock()

	var mu sync.Mutex
	var all []sources.SourceResult

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.FanOutWorkers)

	for _, conn := range conns {
		group.Go(func() error {
			results, hit, err := o.retrieveOne(groupCtx, conn, st.currentQuery)
			if err != nil {
				connErr := &ConnectorError{Source: conn.ID(), Err: err}
				o.logger.Printf("[RETRIEVE] degraded: %v", connErr)
				mu.Lock()
				st.degradedSources = append(st.degradedSources, conn.ID())
				mu.Unlock()
				return nil
			}
			mu.Lock()
			if hit {
				st.cacheHits++
			}
			all = append(all, results...)
			mu.Unlock()
			return nil
		})
	}
	// Goroutines only ever return nil; failures degrade in isolation.
	_ = group.Wait()

	// Fan-in order is racy; fix it so citation numbering is reproducible.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].TrustWeight != all[j].TrustWeight {
			return all[i].TrustWeight > all[j].TrustWeight
		}
		if all[i].SourceID != all[j].SourceID {
			return all[i].SourceID < all[j].SourceID
		}
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Identifier < all[j].Identifier
	})
	return all
}

func (o *Orchestrator) retrieveOne(ctx context.Context, conn sources.Connector, query string) ([]sources.SourceResult, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.PerCallTimeout)
	defer cancel()

	limit := o.config.sourceLimit(conn.ID())

	// Prompt-backed connectors carry their template version into the key so
	// a prompt swap rolls their cached retrievals over.
	promptVersion := ""
	if versioned, ok := conn.(sources.Versioned); ok {
		promptVersion = versioned.PromptVersion()
	}

	key := cache.Key("retrieve:"+conn.ID(), promptVersion, query, strconv.Itoa(limit))
	results, hit, err := cache.GetOrComputeJSON(callCtx, o.cache, key, o.config.RetrievalTTL,
		func(ctx context.Context) ([]sources.SourceResult, error) {
			return conn.Retrieve(ctx, query, limit)
		})
	if err != nil {
		return nil, false, err
	}
	if hit {
		o.logger.Printf("[RETRIEVE] %s served from cache", conn.ID())
	}
	return results, hit, nil
}

func (o *Orchestrator) stateGrade(ctx context.Context, snap *prompt.Snapshot, st *pipelineState) error {
	graded, err := o.grader.GradeAll(ctx, st.question, st.pending, snap)
	if err != nil {
		return err
	}
	st.pending = nil
	st.evidence = append(st.evidence, graded...)

	relevant := countRelevant(st.evidence)
	switch {
	case relevant >= o.config.RelevanceThreshold:
		st.state = StateGenerate
	case st.rewriteCount < o.config.MaxRewrites:
		o.logger.Printf("[GRADE] %d relevant < threshold %d, rewriting (%d/%d)",
			relevant, o.config.RelevanceThreshold, st.rewriteCount+1, o.config.MaxRewrites)
		st.state = StateRewrite
	default:
		o.logger.Printf("[GRADE] rewrites exhausted with %d relevant, generating from best available", relevant)
		st.lowEvidence = true
		st.state = StateGenerate
	}
	return nil
}

func (o *Orchestrator) stateRewrite(ctx context.Context, snap *prompt.Snapshot, st *pipelineState) {
	evidenceSummary := fmt.Sprintf("%d snippets retrieved, %d graded relevant",
		len(st.evidence), countRelevant(st.evidence))

	rewritten, err := o.rewriter.Rewrite(ctx, st.question, st.currentQuery, evidenceSummary, snap)
	if err != nil {
		// Non-fatal: retry retrieval with the unchanged query. The counter
		// still advances, so the loop stays bounded.
		o.logger.Printf("[REWRITE] failed, keeping current query: %v", err)
	} else {
		st.currentQuery = rewritten
	}

	st.rewriteCount++
	st.state = StateRetrieve
}

func (o *Orchestrator) stateGenerate(ctx context.Context, snap *prompt.Snapshot, st *pipelineState) error {
	// The snapshot fingerprint rolls generation keys over on any prompt
	// swap. The retry ordinal keeps an ungrounded draft from being re-served
	// to its own verification retry; a later identical run starts at ordinal
	// zero and hits the cached answer.
	key := cache.Key("generate", snap.Fingerprint(),
		st.question.Text, evidenceDigest(st.evidence), strconv.Itoa(st.verifyRetryCount))
	draft, hit, err := cache.GetOrComputeJSON(ctx, o.cache, key, o.config.GenerationTTL,
		func(ctx context.Context) (*Answer, error) {
			return o.generator.Generate(ctx, st.question, st.evidence, snap)
		})
	if err != nil {
		return err
	}
	if hit {
		st.cacheHits++
		o.logger.Printf("[GENERATE] answer served from cache")
	}
	st.draft = draft
	st.state = StateVerify
	return nil
}

// evidenceDigest flattens graded evidence into a deterministic string for
// the generation cache key. Evidence order is stable across runs (fan-in
// sorting, appended round by round), so identical evidence sets digest
// identically.
func evidenceDigest(evidence []GradedEvidence) string {
	var sb strings.Builder
	for _, ev := range evidence {
		sb.WriteString(ev.Result.SourceID)
		sb.WriteByte(0x1f)
		sb.WriteString(ev.Result.Identifier)
		sb.WriteByte(0x1f)
		if ev.Relevant {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
		sb.WriteByte(0x1f)
		sb.WriteString(ev.Result.Snippet)
		sb.WriteByte(0x1e)
	}
	return sb.String()
}

func (o *Orchestrator) stateVerify(ctx context.Context, snap *prompt.Snapshot, st *pipelineState) error {
	st.verifyRounds++

	grounded, err := o.verifier.Verify(ctx, st.question, st.draft, st.evidence, snap)
	if err != nil {
		return err
	}

	switch {
	case grounded:
		st.state = StateDone
	case st.verifyRetryCount+st.rewriteCount < o.config.MaxTotalIterations:
		st.verifyRetryCount++
		o.logger.Printf("[VERIFY] ungrounded, retry %d within budget %d",
			st.verifyRetryCount, o.config.MaxTotalIterations)
		st.state = StateRewrite
	default:
		o.logger.Printf("[VERIFY] iteration budget spent, returning answer with low confidence")
		st.state = StateDoneLowConfidence
	}
	return nil
}

func (o *Orchestrator) finish(st *pipelineState) *RunResult {
	confidence := ConfidenceNormal
	if st.state == StateDoneLowConfidence || st.lowEvidence || countRelevant(st.evidence) == 0 {
		confidence = ConfidenceLow
	}

	st.draft.Confidence = confidence
	st.draft.VerifyRounds = st.verifyRounds

	return &RunResult{
		Answer:          st.draft,
		State:           st.state,
		Category:        st.category,
		Iterations:      1 + st.rewriteCount,
		DegradedSources: st.degradedSources,
		MemorySummary:   st.memorySummary,
		CacheHits:       st.cacheHits,
	}
}

func countRelevant(evidence []GradedEvidence) int {
	n := 0
	for _, ev := range evidence {
		if ev.Relevant {
			n++
		}
	}
	return n
}
