package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rewired-gh/polynotify/internal/config"
	"github.com/rewired-gh/polynotify/internal/logger"
	"github.com/rewired-gh/polynotify/internal/models"
	"github.com/rewired-gh/polynotify/internal/monitor"
	"github.com/rewired-gh/polynotify/internal/notify"
	"github.com/rewired-gh/polynotify/internal/polymarket"
	"github.com/rewired-gh/polynotify/internal/storage"
	"github.com/rewired-gh/polynotify/internal/telegram"
)

var configPath = pflag.StringP("config", "c", "configs/config.yaml", "Path to configuration file")

func main() {
	pflag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	polyClient := polymarket.NewClient(polymarket.ClientConfig{
		BaseURL:        cfg.Polymarket.GammaAPIURL,
		Timeout:        cfg.Polymarket.Timeout,
		MaxRetries:     cfg.Polymarket.MaxRetries,
		RetryDelayBase: cfg.Polymarket.RetryDelayBase,
	})

	monitorConfig, err := newMonitorConfig(cfg)
	if err != nil {
		logger.Fatal("Invalid alert configuration: %v", err)
	}
	mon := monitor.New(polyClient, store, monitorConfig)

	var channels []notify.Channel
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		channels = append(channels, telegramClient)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	if cfg.WhatsApp.Enabled {
		channels = append(channels, notify.NewWhatsApp(notify.WhatsAppConfig{
			APIURL:     cfg.WhatsApp.APIURL,
			AccountSID: cfg.WhatsApp.AccountSID,
			AuthToken:  cfg.WhatsApp.AuthToken,
			From:       cfg.WhatsApp.From,
			To:         cfg.WhatsApp.To,
			Timeout:    cfg.WhatsApp.Timeout,
		}))
		logger.Info("WhatsApp channel enabled")
	}
	if cfg.Discord.Enabled {
		channels = append(channels, notify.NewDiscord(cfg.Discord.WebhookURL, cfg.Discord.Username, cfg.Discord.Timeout))
		logger.Info("Discord channel enabled")
	}
	if len(channels) == 0 {
		logger.Warn("No notification channels enabled; alerts will be detected but not sent")
	}

	dispatcher := notify.NewDispatcher(mon, channels...)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Error("Failed to close notification channels: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, func(ctx context.Context) (string, error) {
			return statusReport(ctx, store, mon.CycleCount())
		})
	}

	logger.Info("Starting monitoring service (interval: %v, tag: %s, alerts: %s, channels: %d)",
		cfg.Polymarket.PollInterval,
		cfg.Polymarket.TagID,
		strings.Join(cfg.Alerts.Enabled, ","),
		len(channels),
	)

	ticker := time.NewTicker(cfg.Polymarket.PollInterval)
	defer ticker.Stop()

	// Cycles run detached from shutdown so seen/snapshot/commit writes are never cut off halfway.
	cycleCtx := context.WithoutCancel(ctx)
	consecutiveFailures := 0

	// handleCycleResult reports whether the loop may continue.
	handleCycleResult := func(err error) bool {
		if err != nil {
			consecutiveFailures++
			if storage.IsStorageError(err) {
				logger.Error("History store failure, stopping: %v", err)
				if telegramClient != nil {
					if sendErr := telegramClient.SendError(cycleCtx, err); sendErr != nil {
						logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
					}
				}
				return false
			}
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(cycleCtx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return true
		}
		if consecutiveFailures > 0 && telegramClient != nil {
			if sendErr := telegramClient.SendRecovery(cycleCtx, consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
		return true
	}

	logger.Debug("Running initial monitoring cycle")
	if !handleCycleResult(runMonitoringCycle(cycleCtx, mon, dispatcher)) {
		return 1
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return 0

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			if !handleCycleResult(runMonitoringCycle(cycleCtx, mon, dispatcher)) {
				return 1
			}
		}
	}
}

// alertPoller is the part of the engine a cycle drives.
type alertPoller interface {
	Poll(ctx context.Context) ([]models.Alert, error)
}

// alertDispatcher delivers and commits candidate alerts.
type alertDispatcher interface {
	Dispatch(ctx context.Context, alerts []models.Alert) (int, error)
}

func runMonitoringCycle(ctx context.Context, mon alertPoller, dispatcher alertDispatcher) error {
	startTime := time.Now()

	alerts, err := mon.Poll(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		logger.Debug("No alerts this cycle")
		return nil
	}

	committed, err := dispatcher.Dispatch(ctx, alerts)
	if err != nil {
		return fmt.Errorf("failed to dispatch alerts: %w", err)
	}
	logger.Info("Sent %d/%d alerts in %v", committed, len(alerts), time.Since(startTime).Round(time.Millisecond))
	return nil
}

func newMonitorConfig(cfg *config.Config) (monitor.Config, error) {
	kinds, err := cfg.EnabledKinds()
	if err != nil {
		return monitor.Config{}, err
	}
	return monitor.Config{
		TagID:            cfg.Polymarket.TagID,
		FetchLimit:       cfg.Polymarket.FetchLimit,
		ClosedFetchLimit: cfg.Polymarket.ClosedFetchLimit,
		Filters: monitor.Filters{
			IncludeRecurring: cfg.Polymarket.IncludeRecurring,
			TagWhitelist:     cfg.Polymarket.TagWhitelist,
			MinLiquidity:     cfg.Polymarket.MinLiquidity,
			TitleKeywords:    cfg.Polymarket.TitleKeywords,
		},
		EnabledKinds:          kinds,
		NewMarketMaxAge:       cfg.Alerts.NewMarketMaxAge,
		ClosingWindow:         cfg.Alerts.ClosingWindow,
		PriceThreshold:        cfg.Alerts.PriceThreshold,
		PriceLookback:         cfg.Alerts.PriceLookback,
		PriceCooldown:         cfg.Alerts.PriceCooldown,
		VolumeSpikeMultiplier: cfg.Alerts.VolumeSpikeMultiplier,
		VolumeLookback:        cfg.Alerts.VolumeLookback,
		VolumeCooldown:        cfg.Alerts.VolumeCooldown,
		SnapshotRetention:     cfg.Storage.SnapshotRetention,
		PruneEvery:            cfg.Storage.PruneEveryCycles,
	}, nil
}

// statusSource is what /status reads from the history store.
type statusSource interface {
	Stats(ctx context.Context) (storage.Stats, error)
	AlertRecords(ctx context.Context) ([]models.AlertRecord, error)
}

// statusReport renders the /status reply.
func statusReport(ctx context.Context, src statusSource, cycles int) (string, error) {
	stats, err := src.Stats(ctx)
	if err != nil {
		return "", err
	}
	records, err := src.AlertRecords(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cycles run: %d\n", cycles)
	fmt.Fprintf(&b, "Tracked markets: %d\n", stats.SeenMarkets)
	fmt.Fprintf(&b, "Snapshots: %d\n", stats.Snapshots)
	fmt.Fprintf(&b, "Alerts sent: %d", stats.AlertsSent)
	if len(records) > 0 {
		last := records[0]
		fmt.Fprintf(&b, "\nLast alert: %s for %s at %s", last.Kind, last.MarketID, last.SentAt.UTC().Format(time.RFC3339))
	}
	return b.String(), nil
}
