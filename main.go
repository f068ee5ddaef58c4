package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "tgcopilot/app/configs"
	"tgcopilot/app/core/interaction/account"
	"tgcopilot/app/core/interaction/cli"
	"tgcopilot/app/core/interaction/gateway"
	"tgcopilot/app/core/interaction/telegram"
	"tgcopilot/app/core/orchestrator/classify"
	"tgcopilot/app/core/orchestrator/command"
	"tgcopilot/app/core/orchestrator/db"
	"tgcopilot/app/core/orchestrator/filter"
	"tgcopilot/app/core/orchestrator/summary"
	"tgcopilot/app/core/orchestrator/task"
	"tgcopilot/app/core/queue"
	"tgcopilot/app/core/runtime"
	"tgcopilot/app/core/scheduler"
	"tgcopilot/app/pkg/logger"
	"tgcopilot/app/pkg/reply"
	"tgcopilot/app/pkg/types"
)

const enqueueTimeout = 5 * time.Second

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "tgcopilot",
		Short:         "Turn messages on your Telegram account into a task list",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Watch the account, serve bot commands and send daily summaries",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "login",
			Short: "Log the owner account in and store the session file",
			RunE:  runLogin,
		},
		&cobra.Command{
			Use:   "console",
			Short: "Run bot commands against the task store from this terminal",
			RunE:  runConsole,
		},
		&cobra.Command{
			Use:   "check",
			Short: "Validate the config and the task store without connecting",
			RunE:  runCheck,
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tgcopilot:", err)
		os.Exit(1)
	}
}

// loadConfig takes the loader so each subcommand validates only what it uses.
func loadConfig(load func(string) (config.Config, error)) (config.Config, *zap.Logger, func() error, error) {
	cfg, err := load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log, closeLog, err := logger.New(logger.Options{Dir: cfg.Logging.Dir, Verbose: verbose || cfg.Logging.Verbose})
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, closeLog, nil
}

func accountConfig(cfg config.Config) account.Config {
	return account.Config{
		AppID:       cfg.Account.AppID,
		AppHash:     cfg.Account.AppHash,
		Phone:       cfg.Account.Phone,
		Password:    cfg.Account.Password,
		SessionPath: cfg.Account.SessionPath,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := loadConfig(config.Load)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := os.MkdirAll(filepath.Dir(cfg.Account.SessionPath), 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	acct := account.New(accountConfig(cfg), log)
	if err := acct.Login(ctx, account.LinePrompt(os.Stdin, cmd.OutOrStdout())); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session saved to %s\n", cfg.Account.SessionPath)
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := loadConfig(config.Load)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := runtime.RunPreflight(cfg); err != nil {
		return err
	}
	database, err := db.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	pending, err := task.NewStore(database).Pending(cmd.Context())
	if err != nil {
		return err
	}
	log.Info("preflight passed",
		zap.String("store", database.Path()),
		zap.Int("pending_tasks", len(pending)),
		zap.Bool("bot_enabled", cfg.BotEnabled()),
		zap.Bool("classifier_enabled", cfg.ClassifierEnabled()),
	)
	return nil
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := loadConfig(config.LoadStore)
	if err != nil {
		return err
	}
	defer closeLog()

	database, err := db.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	// No account here: confirmations are not sent and the account commands
	// report that the account is unavailable.
	manager := task.NewManager(task.NewStore(database), nil, task.ManagerOptions{}, log.Named("tasks"))
	dispatcher := command.New(manager, nil, command.Options{
		AuthorizedChatID: cli.LocalChatID,
		Location:         time.Local,
	}, log.Named("command"))

	console := cli.NewChannel(cmd.InOrStdin(), cmd.OutOrStdout())
	return console.Start(cmd.Context(), func(ctx context.Context, c types.Command) {
		if err := dispatcher.Handle(ctx, c); err != nil {
			log.Warn("console command failed", zap.String("command", c.Name), zap.Error(err))
		}
	})
}

func buildClassifier(ctx context.Context, cfg config.Config, log *zap.Logger) *classify.Service {
	var providers []classify.Provider
	if key := cfg.Classifier.Gemini.APIKey; key != "" {
		p, err := classify.NewGeminiProvider(ctx, key, cfg.Classifier.Gemini.Model)
		if err != nil {
			log.Warn("gemini provider unavailable", zap.Error(err))
		} else {
			providers = append(providers, p)
		}
	}
	if key := cfg.Classifier.OpenAI.APIKey; key != "" {
		p, err := classify.NewOpenAIProvider(key, cfg.Classifier.OpenAI.BaseURL, cfg.Classifier.OpenAI.Model)
		if err != nil {
			log.Warn("openai provider unavailable", zap.Error(err))
		} else {
			providers = append(providers, p)
		}
	}
	svc := classify.New(cfg.ClassifierTimeout(), log, providers...)
	if !svc.Enabled() {
		log.Warn("no classifier provider configured, no message will be recorded as a task")
	}
	return svc
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := loadConfig(config.Load)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := runtime.RunPreflight(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()
	store := task.NewStore(database)

	acct := account.New(accountConfig(cfg), log)
	confirmation := reply.Confirmation{Text: cfg.Reply.ConfirmationText}
	manager := task.NewManager(store, acct, task.ManagerOptions{
		Confirmation: confirmation,
		ReplyPrivate: cfg.Reply.Private,
		ReplyGroup:   cfg.Reply.Group,
	}, log.Named("tasks"))
	pipeline := filter.New(acct, buildClassifier(ctx, cfg, log.Named("classify")), filter.Options{
		IgnoreGroups:    cfg.Filter.IgnoreGroups,
		Confirmation:    confirmation,
		PrivateKeywords: cfg.Filter.PrivateKeywords,
	}, log.Named("filter"))
	dispatcher := command.New(manager, acct, command.Options{
		AuthorizedChatID: cfg.Bot.AuthorizedChatID,
		Location:         time.Local,
	}, log.Named("command"))

	workQueue := queue.New(cfg.Runtime.QueueBuffer, log.Named("queue"))
	if err := workQueue.Start(ctx, cfg.Runtime.Workers); err != nil {
		return err
	}
	defer func() {
		if err := workQueue.Stop(cfg.ShutdownTimeout()); err != nil {
			log.Warn("queue stop", zap.Error(err))
		}
	}()

	gw := gateway.New(pipeline, manager, acct, dispatcher, workQueue, gateway.Options{
		MessageTimeout: cfg.MessageTimeout(),
		EnqueueTimeout: enqueueTimeout,
	}, log)
	if cfg.Logging.TraceDecisions {
		tracer, err := gateway.NewTraceRecorder(filepath.Join(cfg.Logging.Dir, "decisions"))
		if err != nil {
			return err
		}
		gw.SetTraceRecorder(tracer)
	}

	var (
		bot      *telegram.Channel
		notifier summary.Notifier
	)
	if cfg.BotEnabled() {
		bot = telegram.NewChannel(telegram.Config{
			BotToken:       cfg.Bot.Token,
			PollInterval:   cfg.PollInterval(),
			TimeoutSeconds: cfg.Bot.PollTimeoutSec,
			NotifyChatID:   cfg.Bot.AuthorizedChatID,
			APIRoot:        cfg.Bot.APIRoot,
		}, log)
		notifier = bot
	} else {
		log.Warn("bot token not set, commands are disabled and summaries go to the log")
	}

	jobs := scheduler.New(log.Named("scheduler"))
	summaryJob := summary.NewJob(manager, acct, notifier, cfg.Account.OwnerName, log.Named("summary"))
	if err := runtime.RegisterSummaryJob(jobs, summaryJob, runtime.SummaryOptions{
		Enabled:    cfg.Summary.Enabled,
		Cron:       cfg.Summary.Cron,
		Timeout:    cfg.SummaryTimeout(),
		RunOnStart: cfg.Summary.RunOnStart,
	}); err != nil {
		return err
	}
	status := &runtime.StatusCollector{Gateway: gw, Scheduler: jobs, Tasks: manager}
	if err := runtime.RegisterMaintenanceJobs(jobs, database, status, cfg.StatusInterval(), log.Named("status")); err != nil {
		return err
	}
	defer func() {
		if err := jobs.Stop(cfg.ShutdownTimeout()); err != nil {
			log.Warn("scheduler stop", zap.Error(err))
		}
	}()

	log.Info("tgcopilot starting",
		zap.String("store", database.Path()),
		zap.Bool("bot_enabled", bot != nil),
		zap.Int("workers", cfg.Runtime.Workers),
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ignoreCanceled(acct.Run(gctx, gw.HandleMessage))
	})
	if bot != nil {
		group.Go(func() error {
			return bot.Start(gctx, gw.HandleCommand)
		})
	}
	group.Go(func() error {
		// Summaries resolve chat titles through the account, so wait for it.
		select {
		case <-gctx.Done():
			return nil
		case <-acct.Ready():
		}
		return jobs.Start(gctx)
	})

	err = group.Wait()
	log.Info("tgcopilot stopping")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
