// Package app wires configuration, the inference engine, the knowledge base
// and the answering chain into a ready-to-chat service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kalambet/secureguard/internal/chain"
	"github.com/kalambet/secureguard/internal/collab"
	"github.com/kalambet/secureguard/internal/config"
	"github.com/kalambet/secureguard/internal/diag"
	"github.com/kalambet/secureguard/internal/engine"
	"github.com/kalambet/secureguard/internal/knowledge"
	"github.com/kalambet/secureguard/internal/retrieval"
	"github.com/kalambet/secureguard/internal/session"
	"github.com/kalambet/secureguard/internal/storage"
	"github.com/kalambet/secureguard/internal/turn"
)

// Startup stages reported in StartupError.
const (
	StageEngine    = "engine"
	StageKnowledge = "knowledge base"
	StageChain     = "chain"
)

// StartupError is returned when the service cannot be brought up. No turn
// runs after one.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Options tune Bootstrap.
type Options struct {
	// Rebuild forces the knowledge base to be rebuilt from the source directory.
	Rebuild bool
	// SkipModelCheck skips reachability and model pulls.
	SkipModelCheck bool
	// Progress receives human-readable startup progress. Nil discards it.
	Progress io.Writer
	// OnDocument is forwarded to the knowledge builder.
	OnDocument func(src knowledge.Source, chunks int)
}

// App is a bootstrapped service.
type App struct {
	Config  config.Config
	Engine  engine.Engine
	Base    *knowledge.Base
	Chain   *chain.Chain
	Service collab.Collaborator
	Diag    *diag.Channel
	Log     *zap.Logger
}

// Bootstrap runs the startup hooks in order and returns the wired service.
func Bootstrap(ctx context.Context, cfg config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	eng, err := InitializeService(ctx, cfg, opts)
	if err != nil {
		return nil, &StartupError{Stage: StageEngine, Err: err}
	}
	log.Info("engine ready", zap.String("backend", eng.Name()), zap.String("chat_model", cfg.ChatModel()))

	base, err := LoadOrBuildKnowledgeBase(ctx, cfg, eng, log, opts)
	if err != nil {
		return nil, &StartupError{Stage: StageKnowledge, Err: err}
	}

	ch := diag.NewChannel(nil)
	c, svc, err := BuildChain(base, eng, cfg, ch, log)
	if err != nil {
		base.Close()
		return nil, &StartupError{Stage: StageChain, Err: err}
	}

	return &App{
		Config:  cfg,
		Engine:  eng,
		Base:    base,
		Chain:   c,
		Service: svc,
		Diag:    ch,
		Log:     log,
	}, nil
}

// InitializeService selects the engine backend and makes sure it is
// reachable with the configured models available.
func InitializeService(ctx context.Context, cfg config.Config, opts Options) (engine.Engine, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.Engine.Backend,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
		Temperature:   cfg.Chain.Temperature,
	})
	if err != nil {
		return nil, err
	}
	if opts.SkipModelCheck {
		return eng, nil
	}
	w := opts.Progress
	if w == nil {
		w = io.Discard
	}
	if err := engine.EnsureReady(ctx, eng, cfg.ChatModel(), cfg.EmbedModel(), w); err != nil {
		return nil, err
	}
	return eng, nil
}

// LoadOrBuildKnowledgeBase opens the knowledge base in cfg.Storage.DataDir.
// When no database file exists yet, or opts.Rebuild is set, it is built from
// cfg.Knowledge.SourceDir first.
func LoadOrBuildKnowledgeBase(ctx context.Context, cfg config.Config, eng engine.Engine, log *zap.Logger, opts Options) (*knowledge.Base, error) {
	base, existed, err := OpenKnowledgeBase(cfg, eng)
	if err != nil {
		return nil, err
	}

	b := NewBuilder(base, cfg, log)
	b.OnDocument = opts.OnDocument
	stats, built, err := b.LoadOrBuild(ctx, cfg.Knowledge.SourceDir, opts.Rebuild || !existed)
	if err != nil {
		base.Close()
		return nil, err
	}
	base.Stats = stats
	base.Built = built
	return base, nil
}

// OpenKnowledgeBase opens the knowledge-base database without building it
// and reports whether the file existed beforehand.
func OpenKnowledgeBase(cfg config.Config, eng engine.Engine) (*knowledge.Base, bool, error) {
	existed := storage.Exists(cfg.Storage.DataDir)

	st, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, false, fmt.Errorf("opening storage: %w", err)
	}
	stats, err := st.Stats()
	if err != nil {
		st.Close()
		return nil, false, fmt.Errorf("reading knowledge base stats: %w", err)
	}

	return &knowledge.Base{
		Store:    st,
		Vectors:  retrieval.NewSQLiteStore(st.DB()),
		Embedder: retrieval.NewEmbedder(eng, cfg.EmbedModel()),
		Stats:    stats,
	}, existed, nil
}

// NewBuilder returns a knowledge builder writing into base.
func NewBuilder(base *knowledge.Base, cfg config.Config, log *zap.Logger) *knowledge.Builder {
	splitter := knowledge.NewSplitter(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
	return knowledge.NewBuilder(base.Store, base.Vectors, base.Embedder, splitter, log.Named("knowledge"))
}

// BuildChain creates the answering chain over base and picks the adapter
// the dispatcher talks to. In channel mode the chain prints its diagnostics
// to ch and they are recovered by capture; otherwise they are returned typed.
func BuildChain(base *knowledge.Base, eng engine.Engine, cfg config.Config, ch *diag.Channel, log *zap.Logger) (*chain.Chain, collab.Collaborator, error) {
	if base == nil {
		return nil, nil, errors.New("knowledge base not loaded")
	}
	opts := chain.Options{
		Model:     cfg.ChatModel(),
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
	}

	switch cfg.Chain.Diagnostics {
	case config.DiagnosticsChannel:
		opts.Echo = ch
		c := chain.New(base.Retriever(), eng, opts, log.Named("chain"))
		return c, collab.Guarded(collab.NewCapturing(collab.Invoke(c), ch)), nil
	case config.DiagnosticsTyped, "":
		c := chain.New(base.Retriever(), eng, opts, log.Named("chain"))
		return c, collab.Guarded(c), nil
	default:
		return nil, nil, fmt.Errorf("unknown diagnostics mode %q", cfg.Chain.Diagnostics)
	}
}

// NewSession starts a fresh conversation over the service.
func (a *App) NewSession() *turn.Dispatcher {
	sess := session.New(a.Service)
	d := turn.NewDispatcher(sess, a.Service, a.Config.Retrieval.Threshold, a.Log.Named("turn"))
	d.Start()
	return d
}

// Close releases the knowledge base.
func (a *App) Close() error {
	if a.Base == nil {
		return nil
	}
	return a.Base.Close()
}
