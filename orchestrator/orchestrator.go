package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/transitmesh/dispatch/catalog"
	"github.com/transitmesh/dispatch/match"
	"github.com/transitmesh/dispatch/transport"
)

const instrumentationName = "dispatch/orchestrator"

// ErrStartupValidation indicates the orchestrator cannot begin serving.
var ErrStartupValidation = errors.New("orchestrator: startup validation failed")

// CatalogSource supplies the current agent catalog.
type CatalogSource interface {
	GetCatalog(ctx context.Context) (*catalog.Snapshot, error)
}

// HealthProbe checks registry reachability at startup.
type HealthProbe interface {
	ValidateConnection(ctx context.Context) error
}

// SessionInitializer establishes fast-path sessions at startup.
type SessionInitializer interface {
	Init(ctx context.Context) error
}

// AgentCaller invokes one agent with fallback between transports.
type AgentCaller interface {
	Execute(ctx context.Context, agent catalog.AgentDescriptor, message, conversationID string) transport.Result
}

// Recorder persists a processed request for audit.
type Recorder interface {
	Record(ctx context.Context, conversationID, query string, reply *Reply) error
}

// MetricsRecorder receives per-request and per-agent-call observations.
type MetricsRecorder interface {
	ObserveRequest(intent string, hadErrors bool, duration time.Duration)
	ObserveAgentCall(agentID string, served transport.Kind, failed bool)
}

// Config holds pipeline configuration.
type Config struct {
	// DecompositionEnabled gates the query-decomposition stage. When false
	// every matched agent receives the original query.
	DecompositionEnabled bool
	// ExecuteConcurrency bounds concurrent agent calls within one request.
	ExecuteConcurrency int
	// RequestBudget bounds the whole pipeline run. Expiry mid-run is
	// treated as all-remaining-agents-failed, never as a hard error.
	RequestBudget time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DecompositionEnabled: true,
		ExecuteConcurrency:   4,
		RequestBudget:        30 * time.Second,
	}
}

// Dependencies collects the orchestrator's collaborators. Catalog, Matcher,
// and Executor are required; the rest are optional.
type Dependencies struct {
	Catalog    CatalogSource
	Matcher    match.Matcher
	Decomposer match.Decomposer
	Executor   AgentCaller

	// Health fails startup fast when the registry is unreachable.
	Health HealthProbe
	// Sessions is initialized at startup when the fast path is enabled.
	Sessions SessionInitializer
	// History records processed requests when set.
	History Recorder
	// Metrics receives observations when set.
	Metrics MetricsRecorder
}

// Orchestrator runs the request pipeline. It is safe for concurrent use;
// all per-request state lives in the pipeline run.
type Orchestrator struct {
	config *Config
	deps   Dependencies
	tracer trace.Tracer
	logger *zap.Logger
}

// New creates an Orchestrator with the given configuration and collaborators.
func New(config *Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ExecuteConcurrency < 1 {
		config.ExecuteConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("orchestrator: catalog source is required")
	}
	if deps.Matcher == nil {
		return nil, fmt.Errorf("orchestrator: matcher is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("orchestrator: executor is required")
	}
	if config.DecompositionEnabled && deps.Decomposer == nil {
		return nil, fmt.Errorf("orchestrator: decomposer is required when decomposition is enabled")
	}

	return &Orchestrator{
		config: config,
		deps:   deps,
		tracer: otel.Tracer(instrumentationName),
		logger: logger.With(zap.String("component", "orchestrator")),
	}, nil
}

// Startup validates the orchestrator's collaborators before it accepts
// traffic. An unreachable registry is fatal; a fast-path session that fails
// to establish is logged and covered by the fallback path.
func (o *Orchestrator) Startup(ctx context.Context) error {
	if o.deps.Health != nil {
		if err := o.deps.Health.ValidateConnection(ctx); err != nil {
			return fmt.Errorf("%w: registry unreachable: %v", ErrStartupValidation, err)
		}
		o.logger.Info("registry connection validated")
	}
	if o.deps.Sessions != nil {
		if err := o.deps.Sessions.Init(ctx); err != nil {
			o.logger.Warn("fast-path session init incomplete, fallback path covers", zap.Error(err))
		}
	}
	return nil
}

// ProcessMessage runs one user message through the pipeline and returns the
// synthesized reply. It never returns an error for downstream failures; the
// reply degrades instead.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userMessage, conversationID string) *Reply {
	started := time.Now()
	if o.config.RequestBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RequestBudget)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "dispatch.request",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
		))
	defer span.End()

	state := &requestState{query: userMessage, conversationID: conversationID}

	snap := o.discover(ctx, state)
	if len(state.matched.Agents) == 0 {
		state.response = noMatchReply(state.query)
	} else {
		o.decompose(ctx, state, snap)
		o.execute(ctx, state, snap)
		o.doSynthesize(ctx, state)
	}

	reply := o.buildReply(state)
	span.SetAttributes(
		attribute.String("dispatch.intent", reply.Intent),
		attribute.StringSlice("dispatch.matched_agents", reply.MatchedAgents),
		attribute.Bool("dispatch.partial_failure", reply.Metadata.PartialFailure),
	)
	if state.hadErrors {
		span.SetStatus(codes.Error, "one or more agent calls failed")
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveRequest(reply.Intent, state.hadErrors, time.Since(started))
	}
	if o.deps.History != nil {
		if err := o.deps.History.Record(ctx, conversationID, userMessage, reply); err != nil {
			o.logger.Warn("history record failed", zap.Error(err))
		}
	}

	o.logger.Info("request processed",
		zap.String("conversation_id", conversationID),
		zap.String("intent", reply.Intent),
		zap.Strings("agents_called", reply.AgentsCalled),
		zap.Bool("partial_failure", reply.Metadata.PartialFailure),
		zap.Duration("duration", time.Since(started)))

	return reply
}

// discover resolves the catalog and matches the query against it. Both
// failure modes degrade to an empty match set; the no-match path produces
// the reply in that case.
func (o *Orchestrator) discover(ctx context.Context, state *requestState) *catalog.Snapshot {
	ctx, span := o.tracer.Start(ctx, "dispatch."+string(stageDiscover))
	defer span.End()

	snap, err := o.deps.Catalog.GetCatalog(ctx)
	if err != nil {
		o.logger.Error("catalog unavailable", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		snap = &catalog.Snapshot{}
	}

	result, err := o.deps.Matcher.Match(ctx, state.query, snap)
	if err != nil {
		o.logger.Warn("matching unavailable, treating as no match", zap.Error(err))
		result = &match.Result{}
	}
	state.matched = result
	state.intent, state.confidence = inferIntent(snap, result.Agents)

	span.SetAttributes(
		attribute.Int("dispatch.catalog_size", len(snap.Agents)),
		attribute.StringSlice("dispatch.matched_agents", result.Agents),
	)
	return snap
}

// decompose splits a multi-intent query into per-agent sub-queries. With a
// single match or decomposition disabled the map stays empty, which makes
// every agent receive the original query.
func (o *Orchestrator) decompose(ctx context.Context, state *requestState, snap *catalog.Snapshot) {
	state.decomposition = match.Decomposition{}
	if !o.config.DecompositionEnabled || len(state.matched.Agents) <= 1 {
		return
	}

	ctx, span := o.tracer.Start(ctx, "dispatch."+string(stageDecompose))
	defer span.End()

	var descriptors []catalog.AgentDescriptor
	for _, id := range state.matched.Agents {
		if d, ok := snap.Lookup(id); ok {
			descriptors = append(descriptors, d)
		}
	}

	dec, err := o.deps.Decomposer.Decompose(ctx, state.query, descriptors)
	if err != nil {
		o.logger.Warn("decomposition unavailable, using original query for all agents", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	state.decomposition = dec
	span.SetAttributes(attribute.Int("dispatch.sub_queries", len(dec)))
}

// execute fans out one call per matched agent, bounded by the configured
// concurrency, and restores the results to match order before synthesis.
// Agents missing from the snapshot are skipped. A failure on one agent
// never stops the others.
func (o *Orchestrator) execute(ctx context.Context, state *requestState, snap *catalog.Snapshot) {
	ctx, span := o.tracer.Start(ctx, "dispatch."+string(stageExecute))
	defer span.End()

	var targets []catalog.AgentDescriptor
	for _, id := range state.matched.Agents {
		d, ok := snap.Lookup(id)
		if !ok {
			o.logger.Warn("matched agent missing from catalog, skipping",
				zap.String("agent_id", id))
			continue
		}
		targets = append(targets, d)
	}

	results := make([]transport.Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.ExecuteConcurrency)

	for i, agent := range targets {
		g.Go(func() error {
			message := state.query
			if sub, ok := state.decomposition[agent.ID]; ok {
				message = sub
			}

			callCtx, callSpan := o.tracer.Start(gctx, "dispatch.agent_call",
				trace.WithAttributes(attribute.String("agent.id", agent.ID)))
			res := o.deps.Executor.Execute(callCtx, agent, message, state.conversationID)
			callSpan.SetAttributes(attribute.String("dispatch.transport", string(res.Served)))
			if res.Failed() {
				callSpan.SetStatus(codes.Error, res.Err.Error())
			}
			callSpan.End()

			results[i] = res
			if o.deps.Metrics != nil {
				o.deps.Metrics.ObserveAgentCall(agent.ID, res.Served, res.Failed())
			}
			return nil
		})
	}
	// Workers never return errors; failures live in the result slots.
	_ = g.Wait()

	state.results = results
}

// doSynthesize merges the collected results into the final response.
func (o *Orchestrator) doSynthesize(ctx context.Context, state *requestState) {
	_, span := o.tracer.Start(ctx, "dispatch."+string(stageSynthesize))
	defer span.End()

	state.response, state.hadErrors = synthesize(state.results)
}

// buildReply assembles the caller-facing Reply from the finished state.
func (o *Orchestrator) buildReply(state *requestState) *Reply {
	agentsCalled := make([]string, 0, len(state.results))
	transports := make(map[string]string, len(state.results))
	for _, r := range state.results {
		agentsCalled = append(agentsCalled, r.Label())
		transports[r.AgentID] = string(r.Served)
	}

	decomposition := make(map[string]string, len(state.decomposition))
	for id, q := range state.decomposition {
		decomposition[id] = q
	}

	matched := state.matched.Agents
	if matched == nil {
		matched = []string{}
	}

	return &Reply{
		Response:      state.response,
		Intent:        state.intent,
		Confidence:    state.confidence,
		MatchedAgents: matched,
		AgentsCalled:  agentsCalled,
		Metadata: ReplyMetadata{
			Transports:      transports,
			Decomposition:   decomposition,
			Reasoning:       state.matched.Reasoning,
			MatchConfidence: state.matched.Confidence,
			PartialFailure:  state.hadErrors,
		},
	}
}
