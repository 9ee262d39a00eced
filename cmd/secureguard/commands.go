package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kalambet/secureguard/internal/api"
	"github.com/kalambet/secureguard/internal/app"
	"github.com/kalambet/secureguard/internal/chain"
	"github.com/kalambet/secureguard/internal/config"
	"github.com/kalambet/secureguard/internal/engine"
	"github.com/kalambet/secureguard/internal/knowledge"
	"github.com/kalambet/secureguard/internal/similarity"
	"github.com/kalambet/secureguard/internal/storage"
	"github.com/kalambet/secureguard/internal/tui"
	"github.com/kalambet/secureguard/internal/turn"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant (default command)",
	RunE:  runChat,
}

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("plain", false, "use the line-mode chat instead of the full-screen interface")
	cmd.Flags().Bool("rebuild", false, "rebuild the knowledge base before chatting")
}

func init() {
	addChatFlags(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	plain, _ := cmd.Flags().GetBool("plain")
	rebuild, _ := cmd.Flags().GetBool("rebuild")

	cfg, log, flush, err := setup(true)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, cfg, log, rebuild)
	if err != nil {
		return err
	}
	defer a.Close()

	d := a.NewSession()
	if plain || cfg.Chat.Plain {
		return turn.NewREPL(d, os.Stdin, cmd.OutOrStdout(), cfg.Chat.ExportDir).Run(ctx)
	}

	m := tui.New(ctx, d, tui.Options{
		ExportDir: cfg.Chat.ExportDir,
		Knowledge: a.Base.Stats,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build or update the knowledge base from the source directory",
	Long: `Load PDF, HTML and text documents from knowledge.source_dir, split and
embed them into the knowledge base.

Without --rebuild only new, changed and removed documents are processed.

Examples:
  secureguard ingest
  secureguard ingest --rebuild
  secureguard ingest --source ./docs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rebuild, _ := cmd.Flags().GetBool("rebuild")
		source, _ := cmd.Flags().GetString("source")

		cfg, log, flush, err := setup(false)
		if err != nil {
			return err
		}
		defer flush()
		if source != "" {
			cfg.Knowledge.SourceDir = source
		}

		ctx, stop := signalContext()
		defer stop()

		eng, err := app.InitializeService(ctx, cfg, app.Options{SkipModelCheck: skipModelCheck, Progress: errOut})
		if err != nil {
			return &app.StartupError{Stage: app.StageEngine, Err: err}
		}
		base, existed, err := app.OpenKnowledgeBase(cfg, eng)
		if err != nil {
			return &app.StartupError{Stage: app.StageKnowledge, Err: err}
		}
		defer base.Close()

		b := app.NewBuilder(base, cfg, log)
		b.OnDocument = func(src knowledge.Source, chunks int) {
			printStep("Embedded %s (%d chunks)", src.Path, chunks)
		}

		var res knowledge.Result
		if rebuild || !existed || base.Stats.Chunks == 0 {
			printStep("Building knowledge base from %s", cfg.Knowledge.SourceDir)
			res, err = b.Build(ctx, cfg.Knowledge.SourceDir)
		} else {
			printStep("Syncing knowledge base with %s", cfg.Knowledge.SourceDir)
			res, err = b.Sync(ctx, cfg.Knowledge.SourceDir)
		}
		for _, path := range sortedKeys(res.Skipped) {
			printWarning("Skipped %s: %v", path, res.Skipped[path])
		}
		if err != nil {
			return err
		}

		printSuccess("%d added, %d updated, %d unchanged, %d removed (%d chunks embedded)",
			res.Added, res.Updated, res.Unchanged, res.Removed, res.Chunks)
		return nil
	},
}

func init() {
	ingestCmd.Flags().Bool("rebuild", false, "discard the knowledge base and embed everything again")
	ingestCmd.Flags().String("source", "", "source directory (overrides knowledge.source_dir)")
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Show the knowledge-base passages nearest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")

		cfg, _, flush, err := setup(false)
		if err != nil {
			return err
		}
		defer flush()

		ctx, stop := signalContext()
		defer stop()

		eng, err := app.InitializeService(ctx, cfg, app.Options{SkipModelCheck: skipModelCheck, Progress: errOut})
		if err != nil {
			return &app.StartupError{Stage: app.StageEngine, Err: err}
		}
		base, _, err := app.OpenKnowledgeBase(cfg, eng)
		if err != nil {
			return &app.StartupError{Stage: app.StageKnowledge, Err: err}
		}
		defer base.Close()
		if base.Stats.Chunks == 0 {
			return errors.New("knowledge base is empty; run secureguard ingest first")
		}

		if limit <= 0 {
			limit = cfg.Retrieval.TopK
		}
		views, err := api.Recall(ctx, api.Deps{Retriever: base.Retriever(), Threshold: cfg.Retrieval.Threshold}, query, limit)
		if err != nil {
			return err
		}
		if len(views) == 0 {
			printWarning("No matches")
			return nil
		}

		out := cmd.OutOrStdout()
		for i, v := range views {
			band := similarity.Classify(float64(v.Distance))
			verdict := "FILTERED OUT"
			if v.Included {
				verdict = "WILL USE"
			}
			source := v.SourceID
			if doc, err := base.Store.GetDocument(v.SourceID); err == nil {
				source = doc.SourcePath
			}
			fmt.Fprintf(out, "%d. %s  %s  %s\n", i+1,
				turn.BandColor(band).Sprintf("%.4f %s", v.Distance, band.Label()), verdict, source)
			fmt.Fprintf(out, "   %s\n", chain.Preview(v.Text))
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().Int("limit", 0, "number of passages (default retrieval.top_k)")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine, knowledge base and server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			// Still show partial status even if config fails.
			printError("config error: %v", err)
			return nil
		}
		ctx, stop := signalContext()
		defer stop()

		eng, err := engine.Detect(engine.DetectConfig{
			Backend:       cfg.Engine.Backend,
			OllamaBaseURL: cfg.Ollama.BaseURL,
			OpenAIBaseURL: cfg.OpenAI.BaseURL,
			OpenAIAPIKey:  cfg.OpenAI.APIKey,
		})
		switch {
		case err != nil:
			printStatus("Engine", "%v", err)
		case eng.IsRunning(ctx):
			printStatus("Engine", "%s reachable", eng.Name())
		default:
			printStatus("Engine", "%s not reachable", eng.Name())
		}
		printStatus("Chat model", "%s", cfg.ChatModel())
		printStatus("Embed model", "%s", cfg.EmbedModel())
		printStatus("Threshold", "%s", similarity.Report{Threshold: cfg.Retrieval.Threshold}.ThresholdText())
		printStatus("Diagnostics", "%s", cfg.Chain.Diagnostics)

		if storage.Exists(cfg.Storage.DataDir) {
			printKnowledgeStatus(cfg)
		} else {
			printStatus("Knowledge base", "not built (run secureguard ingest)")
		}

		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus("Server", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		printStatus("Config file", "%s", config.ConfigFilePath())
		return nil
	},
}

func printKnowledgeStatus(cfg config.Config) {
	st, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printStatus("Knowledge base", "unreadable: %v", err)
		return
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		printStatus("Knowledge base", "unreadable: %v", err)
		return
	}
	printStatus("Knowledge base", "%d documents, %d chunks", stats.Documents, stats.Chunks)
	if !stats.BuiltAt.IsZero() {
		printStatus("Built", "%s", stats.BuiltAt.Local().Format(time.DateTime))
	}
	if stats.EmbedModel != "" && stats.EmbedModel != cfg.EmbedModel() {
		printWarning("Knowledge base was embedded with %s but %s is configured; run secureguard ingest --rebuild",
			stats.EmbedModel, cfg.EmbedModel())
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", labelColor.Sprint(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Secret keys (openai.api_key, server.token) need --secret and are written to
the secrets file instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		secret, _ := cmd.Flags().GetBool("secret")

		if secret {
			if err := config.SetSecret(key, value); err != nil {
				return err
			}
			printSuccess("Stored secret %s", key)
			return nil
		}

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configSetCmd.Flags().Bool("secret", false, "store the value in the secrets file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
