package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/theapemachine/a2a-coordinator/internal/applog"
	"github.com/theapemachine/a2a-coordinator/internal/config"
	"github.com/theapemachine/a2a-coordinator/internal/httpapi"
	"github.com/theapemachine/a2a-coordinator/internal/metrics"
	"github.com/theapemachine/a2a-coordinator/memory"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
	"github.com/theapemachine/a2a-coordinator/pkg/auth"
	"github.com/theapemachine/a2a-coordinator/pkg/broker"
	"github.com/theapemachine/a2a-coordinator/pkg/queue"
	"github.com/theapemachine/a2a-coordinator/pkg/router"
	"github.com/theapemachine/a2a-coordinator/pkg/store"
	"github.com/theapemachine/a2a-coordinator/pkg/taskmanager"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the A2A coordination server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address, overrides config (e.g. :3210)")
}

func runServe() error {
	v := viper.New()
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("serve: loading config: %w", err)
	}
	if addrFlag != "" {
		cfg.HTTP.Addr = addrFlag
	}

	logger := applog.New(applog.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx := applog.WithContext(context.Background(), logger)

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	taskStore, db, err := newTaskStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("serve: opening task store: %w", err)
	}

	bus, stopBroker, err := newBroker(ctx, cfg.Broker)
	if err != nil {
		return fmt.Errorf("serve: starting broker: %w", err)
	}
	defer stopBroker()
	agentRegistry := broker.NewRegistry(bus)

	rtr := router.NewRouter(taskmanager.NewEchoHandler("Echo: "))
	rtr.RegisterAgent("echo", taskmanager.NewEchoHandler("Echo: "))
	rtr.AddRule(router.Rule{Name: "calculator", Keywords: router.CalculatorKeywords, Handler: router.NewCalculatorHandler()})
	rtr.AddRule(router.Rule{Name: "memory", Keywords: router.MemoryKeywords, Handler: router.NewMemoryHandler(memory.New())})

	manager := taskmanager.NewManager(taskStore, rtr)

	queueStore := newQueueStore(db)
	workers := queue.NewWorkerTable()

	coordinator, err := queue.NewCoordinator(
		queueStore, workers, bus,
		newWatchDispatcher(rtr, queueStore),
		time.Duration(cfg.Queue.LeaseTimeoutSeconds)*time.Second,
		time.Duration(cfg.Queue.WatchPollIntervalSeconds)*time.Second,
	)
	if err != nil {
		return fmt.Errorf("serve: building queue coordinator: %w", err)
	}
	if err := coordinator.StartLeaseSweep(time.Duration(cfg.Queue.WatchPollIntervalSeconds) * time.Second); err != nil {
		return fmt.Errorf("serve: scheduling lease sweep: %w", err)
	}
	staleAfter := time.Duration(cfg.Queue.HeartbeatIntervalSeconds) * time.Second * 3
	if err := coordinator.StartWorkerStaleSweep(time.Duration(cfg.Queue.HeartbeatIntervalSeconds)*time.Second, staleAfter); err != nil {
		return fmt.Errorf("serve: scheduling worker stale sweep: %w", err)
	}
	coordinator.Start()
	defer func() { _ = coordinator.Stop() }()

	verifier, oauthProxy, sessions := newAuth(ctx, cfg.Auth)

	card := a2a.AgentCard{
		Name:    "a2a-coordinator",
		URL:     "http://" + cfg.HTTP.Addr,
		Version: "0.1.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      true,
			StateTransitionHistory: true,
		},
		Skills: []a2a.AgentSkill{{ID: "echo", Name: "Echo"}},
	}
	agentRegistry.Register(ctx, card)

	srv := httpapi.NewServer(&httpapi.Deps{
		Config:        cfg,
		Metrics:       reg,
		Card:          card,
		Manager:       manager,
		Router:        rtr,
		Bus:           bus,
		AgentRegistry: agentRegistry,
		QueueStore:    queueStore,
		Workers:       workers,
		Coordinator:   coordinator,
		Verifier:      verifier,
		OAuth:         oauthProxy,
		Sessions:      sessions,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.HTTP.Addr); err != nil {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: http server: %w", err)
	case <-stop:
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newTaskStore builds the task-persistence Adapter per cfg.Driver: "memory"
// (default) or a durable sqlite/postgres connection behind GORM. It also
// returns the opened *gorm.DB (nil in the memory case) so newQueueStore can
// share the same connection rather than opening a second one — important
// for sqlite, which this process caps at a single writer.
func newTaskStore(cfg struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}) (store.Adapter, *gorm.DB, error) {
	if cfg.Driver == "" || cfg.Driver == "memory" {
		return store.NewMemoryAdapter(), nil, nil
	}

	db, err := store.OpenDB(store.DBConfig{Driver: cfg.Driver, DSN: cfg.DSN})
	if err != nil {
		return nil, nil, err
	}
	return store.NewGormAdapter(db), db, nil
}

// newQueueStore builds the codebase/agent-task persistence Adapter. It
// follows whatever newTaskStore decided: db == nil means cfg.Store selected
// "memory", so the queue runs in-process too; a non-nil db means the task
// store is durable and the queue tables ride on the very same connection.
func newQueueStore(db *gorm.DB) queue.Adapter {
	if db == nil {
		return queue.NewMemoryAdapter()
	}
	return queue.NewGormAdapter(db)
}

// newBroker builds the pub/sub Broker per cfg.Backend: "inproc" (default)
// runs a single-process Hub, "redis" runs the same Hub fronted by a
// websocket Relay link to a peer, per pkg/broker/relay.go. PeerURL, when
// set, dials out and makes the resulting Relay the Broker the rest of the
// server publishes through, so every local Publish is mirrored to that
// peer. ListenAddr, when set, additionally accepts inbound relay
// connections from other nodes (the hub side of a hub-and-spoke
// deployment); accepted links forward what they receive into the local
// Hub but, unlike the dialed Relay, do not themselves become the Broker,
// so a pure listener's own locally-originated events are not mirrored
// out to its spokes — only events spokes publish reach this node and
// each other. The returned stop func is always safe to call and always
// non-nil.
func newBroker(ctx context.Context, cfg struct {
	Backend    string `mapstructure:"backend"`
	PeerURL    string `mapstructure:"peer_url"`
	ListenAddr string `mapstructure:"listen_addr"`
}) (broker.Broker, func(), error) {
	hub := broker.NewHub()
	noop := func() {}

	if cfg.Backend != "redis" {
		return hub, noop, nil
	}

	var bus broker.Broker = hub
	var relay *broker.Relay

	if cfg.PeerURL != "" {
		dialed, err := broker.DialRelay(ctx, hub, cfg.PeerURL)
		if err != nil {
			return nil, noop, fmt.Errorf("dialing broker peer %s: %w", cfg.PeerURL, err)
		}
		relay = dialed
		bus = relay
	}

	var listener *http.Server
	if cfg.ListenAddr != "" {
		listener = &http.Server{
			Addr: cfg.ListenAddr,
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, err := broker.AcceptRelay(hub, w, r); err != nil {
					applog.FromContext(ctx).Warn("broker relay accept failed", "err", err)
				}
			}),
		}
		go func() {
			if err := listener.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				applog.FromContext(ctx).Error("broker relay listener stopped", "err", err)
			}
		}()
	}

	stop := func() {
		if relay != nil {
			_ = relay.Close()
		}
		if listener != nil {
			_ = listener.Close()
		}
	}
	return bus, stop, nil
}

// newAuth builds the verifier/oauth proxy/session table when a JWKS URL is
// configured, or three nils to run with auth disabled.
func newAuth(ctx context.Context, cfg struct {
	JWKSURL      string `mapstructure:"jwks_url"`
	Issuer       string `mapstructure:"issuer"`
	Audience     string `mapstructure:"audience"`
	AudienceMode string `mapstructure:"audience_mode"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
	AuthURL      string `mapstructure:"auth_url"`
}) (*auth.Verifier, *auth.OAuthProxy, *auth.SessionTable) {
	if cfg.JWKSURL == "" {
		return nil, nil, nil
	}

	mode := auth.AudienceStrict
	if cfg.AudienceMode == string(auth.AudiencePermissive) {
		mode = auth.AudiencePermissive
		applog.FromContext(ctx).Warn("auth: audience_mode is permissive; tokens with a mismatched audience are accepted")
	}

	verifier, err := auth.NewVerifier(ctx, cfg.JWKSURL, cfg.Issuer, cfg.Audience, mode)
	if err != nil {
		applog.FromContext(ctx).Error("auth disabled: verifier setup failed", "err", err)
		return nil, nil, nil
	}

	oauthProxy := auth.NewOAuthProxy(cfg.ClientID, cfg.ClientSecret, cfg.TokenURL, cfg.AuthURL, nil)
	return verifier, oauthProxy, auth.NewSessionTable()
}

// newWatchDispatcher builds the DispatchFunc watch mode ticks against: per
// spec 4.5, watch mode "dispatches the next task to a locally attached agent
// process" rather than waiting for an external worker to poll, so it claims
// work itself and runs it straight through the router.
func newWatchDispatcher(rtr *router.Router, queueStore queue.Adapter) queue.DispatchFunc {
	return func(ctx context.Context, codebaseID string, claimable []*queue.AgentTask) error {
		if len(claimable) == 0 {
			return nil
		}

		cb, err := queueStore.GetCodebase(ctx, codebaseID)
		if err != nil {
			return err
		}

		for range claimable {
			claimed, err := queueStore.ClaimNext(ctx, cb.WorkerID)
			if err != nil {
				if err == queue.ErrNoClaimableTask || err == queue.ErrClaimConflict {
					break
				}
				return err
			}

			msg := *a2a.NewTextMessage("user", claimed.Prompt)
			reply, err := rtr.Handle(ctx, msg, claimed.AgentType)
			if err != nil {
				_, _ = queueStore.UpdateStatus(ctx, claimed.ID, claimed.WorkerID, queue.AgentTaskFailed, "", err.Error())
				continue
			}

			result := ""
			if len(reply.Parts) > 0 {
				result = reply.Parts[0].Text
			}
			result, _ = queue.TruncateResult(result, queue.DefaultResultMaxBytes)
			if _, err := queueStore.UpdateStatus(ctx, claimed.ID, claimed.WorkerID, queue.AgentTaskCompleted, result, ""); err != nil {
				return err
			}
		}
		return nil
	}
}
