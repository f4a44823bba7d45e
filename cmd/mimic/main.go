package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mimicbot/mimic/internal/bot"
	"github.com/mimicbot/mimic/internal/bus"
	"github.com/mimicbot/mimic/internal/config"
	"github.com/mimicbot/mimic/internal/maintenance"
	"github.com/mimicbot/mimic/internal/markov"
	"github.com/mimicbot/mimic/internal/store"
	"github.com/mimicbot/mimic/internal/transport"
	"github.com/mimicbot/mimic/pkg/logger"
	"github.com/mimicbot/mimic/pkg/metrics"
)

// chainOrder is the Markov prefix length used for generation.
const chainOrder = 2

var rootCmd = &cobra.Command{
	Use:   "mimic",
	Short: "mimic - a chat bot that imitates users from their message history",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all configured team bots",
	RunE:  runBots,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a skeleton config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured teams and stored message counts",
	RunE:  runStatus,
}

func main() {
	rootCmd.AddCommand(runCmd, onboardCmd, statusCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// instance bundles one team's collaborators.
type instance struct {
	cfg       config.TeamConfig
	bus       *bus.MessageBus
	store     *store.Store
	transport *transport.Slack
	bot       *bot.Bot
	log       *logger.Logger
}

func newInstance(team config.TeamConfig, cfg *config.Config, log *logger.Logger) (*instance, error) {
	tlog := log.WithTeam(team.Name)

	b := bus.NewMessageBus(config.DefaultBufSize)

	st, err := store.Open(team.Connection)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tr, err := transport.New(team.Token, b, tlog)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create transport: %w", err)
	}
	b.SubscribeOutbound(tr.Name(), func(msg bus.OutboundMessage) {
		if err := tr.Send(msg); err != nil {
			metrics.SendFailures.WithLabelValues(team.Name).Inc()
			tlog.Error("send failed", zap.String("channel", msg.Channel), zap.Error(err))
		}
	})

	bt := bot.New(team.Name, team.EffectiveLimit(cfg.Limit), b, st, markov.New(chainOrder), tr.Name(), tlog)

	return &instance{
		cfg:       team,
		bus:       b,
		store:     st,
		transport: tr,
		bot:       bt,
		log:       tlog,
	}, nil
}

// run drives one team until the context is cancelled or the transport dies.
func (i *instance) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go i.bus.DispatchOutbound(ctx)

	if err := i.transport.Start(ctx); err != nil {
		i.log.Error("transport start failed", zap.Error(err))
		_ = i.store.Close()
		return
	}

	go func() {
		select {
		case err := <-i.transport.Errors:
			i.log.Error("transport terminated", zap.Error(err))
			cancel()
		case <-ctx.Done():
		}
	}()

	i.bot.Run(ctx)

	_ = i.transport.Stop()
	_ = i.store.Close()
	i.log.Info("instance stopped")
}

func runBots(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	if len(cfg.Teams) == 0 {
		return fmt.Errorf("no teams configured; run 'mimic onboard' and edit %s", config.ConfigPath())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	maint := maintenance.NewService(cfg.Maintenance.Schedule, log)

	var wg sync.WaitGroup
	started := 0
	for _, team := range cfg.Teams {
		if err := team.Validate(); err != nil {
			log.Error("team config invalid, not starting", zap.Error(err))
			continue
		}
		inst, err := newInstance(team, cfg, log)
		if err != nil {
			log.Error("team startup failed", zap.String("team", team.Name), zap.Error(err))
			continue
		}
		maint.Register(team.Name, inst.store)
		started++

		wg.Add(1)
		go func(inst *instance) {
			defer wg.Done()
			inst.run(ctx)
		}(inst)
	}

	if started == 0 {
		return fmt.Errorf("no team could be started")
	}

	if cfg.Maintenance.Enabled {
		if err := maint.Start(ctx); err != nil {
			log.Warn("maintenance not scheduled", zap.Error(err))
		}
	}

	log.Info("running", zap.Int("teams", started))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	wg.Wait()
	return nil
}

func serveMetrics(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server error", zap.Error(err))
	}
}

func runOnboard(_ *cobra.Command, _ []string) error {
	path := config.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("config already exists at %s\n", path)
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Teams = []config.TeamConfig{{
		Name:       "default",
		Token:      "",
		Connection: filepath.Join(config.ConfigDir(), "data", "default.db"),
	}}
	if err := config.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", path)
	fmt.Println("fill in each team's token (or set MIMIC_TOKEN), then run 'mimic run'")
	return nil
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if len(cfg.Teams) == 0 {
		fmt.Println("no teams configured")
		return nil
	}

	ctx := context.Background()
	for _, team := range cfg.Teams {
		line := fmt.Sprintf("team %-16s", team.Name)
		if err := team.Validate(); err != nil {
			fmt.Printf("%s invalid: %v\n", line, err)
			continue
		}
		st, err := store.Open(team.Connection)
		if err != nil {
			fmt.Printf("%s store error: %v\n", line, err)
			continue
		}
		n, err := st.Count(ctx)
		_ = st.Close()
		if err != nil {
			fmt.Printf("%s count error: %v\n", line, err)
			continue
		}
		fmt.Printf("%s %d messages stored (limit %d)\n", line, n, team.EffectiveLimit(cfg.Limit))
	}
	return nil
}
