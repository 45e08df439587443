// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator composes prompts from queries and tab content and
// relays them to the model.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/tabchat/internal/extract"
	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/session"
	"github.com/jeranaias/tabchat/internal/storage"
	"github.com/jeranaias/tabchat/internal/tabs"
)

const instrumentationName = "github.com/jeranaias/tabchat/internal/orchestrator"

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Relay is the model server. *ollama.Client implements it.
type Relay interface {
	ListModels(ctx context.Context) ([]ollama.ModelDescriptor, error)
	IsReachable(ctx context.Context) bool
	Generate(ctx context.Context, model, prompt string, onChunk ollama.ChunkFunc) (*ollama.GenerateResult, error)
}

// TabSource lists tabs and extracts their content. *tabs.Directory
// implements it.
type TabSource interface {
	ListTabs(ctx context.Context) ([]tabs.Tab, error)
	ExtractTabContent(ctx context.Context, id string) extract.Result
	ExtractActiveTabContent(ctx context.Context) extract.Result
}

// ErrNoModel is returned when a query has no model selected.
var ErrNoModel = errors.New("no model selected")

// ErrNoBrowser is returned by tab operations when no browser is attached.
var ErrNoBrowser = errors.New("no browser attached")

// ErrQueryInFlight is returned when the session is already running a query.
var ErrQueryInFlight = session.ErrQueryInFlight

// ErrStreamOpen is returned when a message id names a stream that is still live.
var ErrStreamOpen = session.ErrStreamOpen

// =============================================================================
// TYPES
// =============================================================================

// Query is one user question.
type Query struct {
	// Text is the wire form of the question, mentions encoded as @"Title".
	Text string `json:"query"`

	// Model is required.
	Model string `json:"model"`

	// IncludePageContent adds the active tab when no tabs are mentioned.
	IncludePageContent bool `json:"includePageContent,omitempty"`

	// MentionedTabs are extracted in order and placed in the prompt.
	MentionedTabs []tabs.Tab `json:"mentionedTabs,omitempty"`
}

// Source summarizes one tab placed in a prompt.
type Source struct {
	TabID         string `json:"tabId,omitempty"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	ContentLength int    `json:"contentLength"`
	Placeholder   bool   `json:"placeholder,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
}

// Answer is the outcome of a query.
type Answer struct {
	Text  string `json:"text"`
	Model string `json:"model"`

	// Complete is false when the model stream ended without a completion
	// record.
	Complete bool `json:"complete"`

	Sources []Source `json:"sources,omitempty"`
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns a session and runs queries against it.
//
// The Orchestrator is safe for concurrent use. Each session admits one
// query at a time.
type Orchestrator struct {
	relay  Relay
	tabs   TabSource
	store  storage.Store
	state  *session.State
	logger *zap.Logger
	tracer trace.Tracer

	maxParallel int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore persists history and model selection.
func WithStore(store storage.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithState uses an existing session state.
func WithState(state *session.State) Option {
	return func(o *Orchestrator) {
		if state != nil {
			o.state = state
		}
	}
}

// WithMaxParallel bounds concurrent tab extractions.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// New creates an orchestrator. tabSource may be nil when no browser is
// attached; tab features then degrade to placeholders.
func New(relay Relay, tabSource TabSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		relay:       relay,
		tabs:        tabSource,
		state:       session.New(),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(instrumentationName),
		maxParallel: 8,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// State returns the session state owned by the orchestrator.
func (o *Orchestrator) State() *session.State {
	return o.state
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start replays persisted history and the saved model, then revalidates the
// model against the server catalog. An unreachable server is not an error;
// the saved model is kept until the catalog can be fetched.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.store != nil {
		history, err := o.store.LoadHistory(ctx)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		o.state.ReplaceHistory(history)

		saved, err := o.store.SelectedModel(ctx)
		if err != nil {
			return fmt.Errorf("load selected model: %w", err)
		}
		o.state.RestoreModel(saved)
		o.logger.Debug("session restored",
			zap.Int("messages", len(history)),
			zap.String("model", saved))
	}

	if _, err := o.RefreshModels(ctx); err != nil {
		o.logger.Warn("model catalog unavailable at startup", zap.Error(err))
	}
	return nil
}

// RefreshModels fetches the catalog and revalidates the selected model. A
// selection missing from the catalog is cleared and the cleared state
// persisted.
func (o *Orchestrator) RefreshModels(ctx context.Context) ([]ollama.ModelDescriptor, error) {
	models, err := o.relay.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	previous := o.state.SelectedModel()
	if !o.state.SetModels(models) && previous != "" {
		o.logger.Info("saved model no longer available", zap.String("model", previous))
		if o.store != nil {
			if err := o.store.SetSelectedModel(ctx, ""); err != nil {
				o.logger.Warn("failed to clear saved model", zap.Error(err))
			}
		}
	}
	return models, nil
}

// CheckConnection reports whether the model server is reachable.
func (o *Orchestrator) CheckConnection(ctx context.Context) bool {
	return o.relay.IsReachable(ctx)
}

// SelectModel selects and persists a model.
func (o *Orchestrator) SelectModel(ctx context.Context, name string) error {
	if err := o.state.SelectModel(name); err != nil {
		return fmt.Errorf("select %q: %w", name, err)
	}
	if o.store != nil {
		if err := o.store.SetSelectedModel(ctx, name); err != nil {
			return fmt.Errorf("save selected model: %w", err)
		}
	}
	return nil
}

// RefreshTabs snapshots the open tabs into the session.
func (o *Orchestrator) RefreshTabs(ctx context.Context) ([]tabs.Tab, error) {
	if o.tabs == nil {
		return nil, ErrNoBrowser
	}
	list, err := o.tabs.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	o.state.SetSnapshot(list)
	return list, nil
}

// ClearHistory drops the conversation from the session and the store.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	if o.store != nil {
		if err := o.store.ClearHistory(ctx); err != nil {
			return err
		}
	}
	o.state.ReplaceHistory(nil)
	return nil
}

// ParseQuery resolves @"Title" mentions in text against the session's tab
// snapshot. References to tabs that are gone are dropped.
func (o *Orchestrator) ParseQuery(text, model string, includePageContent bool) Query {
	wire, mentioned := mention.Resolve(text, o.state.Snapshot())
	if model == "" {
		model = o.state.SelectedModel()
	}
	return Query{
		Text:               wire,
		Model:              model,
		IncludePageContent: includePageContent,
		MentionedTabs:      mentioned,
	}
}

// =============================================================================
// PROMPT
// =============================================================================

// BuildPrompt applies the context policy: mentioned tabs, then the active
// tab, then the bare question. Extraction failures never fail the prompt.
func (o *Orchestrator) BuildPrompt(ctx context.Context, q Query) (string, []Source) {
	switch {
	case len(q.MentionedTabs) > 0:
		results := o.extractAll(ctx, q.MentionedTabs)
		sources := make([]Source, len(results))
		for i, res := range results {
			sources[i] = sourceOf(q.MentionedTabs[i].ID, res)
		}
		return ComposePrompt(q.Text, results, ""), sources

	case q.IncludePageContent:
		res := o.extractActive(ctx)
		if !res.OK() || res.ContentLength == 0 {
			o.logger.Info("active tab content unavailable",
				zap.String("url", res.URL),
				zap.String("reason", res.Error))
			return ComposePrompt(q.Text, nil, unavailableNote(res)), nil
		}
		return ComposePrompt(q.Text, []extract.Result{res}, ""), []Source{sourceOf("", res)}

	default:
		return q.Text, nil
	}
}

// extractAll extracts every tab concurrently; results follow input order.
func (o *Orchestrator) extractAll(ctx context.Context, list []tabs.Tab) []extract.Result {
	results := make([]extract.Result, len(list))
	if o.tabs == nil {
		for i, tab := range list {
			results[i] = tabs.Placeholder(tab, ErrNoBrowser.Error())
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxParallel)
	for i, tab := range list {
		g.Go(func() error {
			res := o.tabs.ExtractTabContent(gctx, tab.ID)
			if res.Title == "" {
				res.Title = tab.Title
			}
			if res.URL == "" {
				res.URL = tab.URL
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) extractActive(ctx context.Context) extract.Result {
	if o.tabs == nil {
		return tabs.Placeholder(tabs.Tab{}, ErrNoBrowser.Error())
	}
	return o.tabs.ExtractActiveTabContent(ctx)
}

func sourceOf(id string, res extract.Result) Source {
	return Source{
		TabID:         id,
		Title:         res.Title,
		URL:           res.URL,
		ContentLength: res.ContentLength,
		Placeholder:   res.Placeholder || res.Error != "",
		Truncated:     res.Truncated,
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// HandleQuery runs q to completion and returns the answer. An empty model
// fails with ErrNoModel before any network call.
func (o *Orchestrator) HandleQuery(ctx context.Context, q Query) (*Answer, error) {
	return o.run(ctx, q, nil)
}

// run claims the session and answers q. onChunk may be nil.
func (o *Orchestrator) run(ctx context.Context, q Query, onChunk ollama.ChunkFunc) (*Answer, error) {
	if q.Model == "" {
		return nil, ErrNoModel
	}
	if err := o.state.BeginQuery(); err != nil {
		return nil, err
	}
	defer o.state.EndQuery()
	return o.generate(ctx, q, onChunk)
}

// generate builds the prompt, runs the generation and records the exchange.
// The caller holds the in-flight claim.
func (o *Orchestrator) generate(ctx context.Context, q Query, onChunk ollama.ChunkFunc) (*Answer, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.query",
		trace.WithAttributes(
			attribute.String("query.model", q.Model),
			attribute.Int("query.mentioned_tabs", len(q.MentionedTabs)),
			attribute.Bool("query.include_page", q.IncludePageContent),
		))
	defer span.End()

	prompt, sources := o.BuildPrompt(ctx, q)
	span.SetAttributes(attribute.Int("query.prompt_length", len(prompt)))

	res, err := o.relay.Generate(ctx, q.Model, prompt, onChunk)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("generation failed", zap.String("model", q.Model), zap.Error(err))
		return nil, err
	}

	answer := &Answer{
		Text:     res.Text,
		Model:    res.Model,
		Complete: res.Complete,
		Sources:  sources,
	}
	o.record(ctx, q, answer)
	return answer, nil
}

// record appends the exchange to the session and the store. Persistence
// failures are logged; the answer is still returned.
func (o *Orchestrator) record(ctx context.Context, q Query, answer *Answer) {
	user := storage.NewMessage(storage.RoleUser, q.Text)
	reply := storage.NewMessage(storage.RoleAssistant, answer.Text)
	reply.Model = answer.Model

	o.state.AppendHistory(user, reply)
	if o.store == nil {
		return
	}
	if err := o.store.AppendMessages(ctx, user, reply); err != nil {
		o.logger.Error("failed to persist exchange", zap.Error(err))
	}
}
