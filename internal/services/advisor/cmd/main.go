package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/cropgenius/internal/services/advisor"
	"github.com/LeonardoBeccarini/cropgenius/internal/services/market"
	"github.com/LeonardoBeccarini/cropgenius/pkg/rabbitmq"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := loadConfig()
	var logger *zap.Logger

	root := &cobra.Command{
		Use:           "advisor",
		Short:         "Rank crop disease treatments by return on investment",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			logger, err = newLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "treatment catalog YAML (CATALOG_PATH)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (LOG_LEVEL)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and answer disease detections from the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
	serve.Flags().StringVar(&cfg.Port, "port", cfg.Port, "HTTP port (PORT)")
	serve.Flags().StringVar(&cfg.MQTTHost, "mqtt-host", cfg.MQTTHost, "broker host, empty disables detections (RABBITMQ_HOST)")
	serve.Flags().StringVar(&cfg.InfluxURL, "influx-url", cfg.InfluxURL, "InfluxDB URL, empty disables history (INFLUX_URL)")
	serve.Flags().StringVar(&cfg.MarketURL, "market-url", cfg.MarketURL, "market listings endpoint, empty keeps catalog prices (MARKET_URL)")

	root.AddCommand(serve, newRankCmd(&cfg))
	return root
}

func runServe(ctx context.Context, cfg Config, logger *zap.Logger) error {
	cat, err := advisor.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	store := advisor.NewCatalogStore(cat)
	logger.Info("catalog loaded",
		zap.String("path", cfg.CatalogPath),
		zap.Int("crops", len(cat.Crops)),
		zap.Int("treatments", len(cat.Treatments)))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := advisor.NewMetrics(reg)

	deps := advisor.Deps{Catalog: store, Metrics: metrics, Logger: logger}

	// --- InfluxDB ---
	if cfg.InfluxURL != "" {
		client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken,
			influxdb2.DefaultOptions().SetBatchSize(100).SetFlushInterval(1000))
		rec := advisor.NewInfluxRecorder(client, cfg.InfluxOrg, cfg.InfluxBucket, logger)
		defer func() {
			rec.Flush()
			client.Close()
		}()
		deps.Recorder = rec
	} else {
		logger.Info("INFLUX_URL not set, ranking history disabled")
	}

	// --- market prices ---
	if cfg.MarketURL != "" {
		deps.Prices = market.NewClient(market.Config{
			BaseURL: cfg.MarketURL,
			APIKey:  cfg.MarketAPIKey,
			Sample:  cfg.MarketSample,
			Timeout: cfg.timeout(),
		})
	}

	// --- MQTT ---
	if cfg.MQTTHost != "" {
		mq, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
			Host:     cfg.MQTTHost,
			Port:     cfg.MQTTPort,
			User:     cfg.MQTTUser,
			Password: cfg.MQTTPassword,
			ClientID: cfg.MQTTClientID,
		}, logger)
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		defer rabbitmq.CloseRabbitMQConn(mq, logger)
		deps.Consumer = rabbitmq.NewConsumer(mq, cfg.DetectTopic, 1, nil, logger)
		deps.Publisher = rabbitmq.NewPublisher(mq, cfg.timeout())
	}

	svc := advisor.NewService(advisor.Config{
		DetectionTopic: cfg.DetectTopic,
		RankedTopic:    cfg.RankedTopic,
		PublishQoS:     1,
	}, deps)

	go func() {
		if err := advisor.WatchCatalog(ctx, cfg.CatalogPath, store, logger, metrics); err != nil {
			logger.Warn("catalog watch stopped", zap.Error(err))
		}
	}()

	if deps.Consumer != nil {
		go func() {
			if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("detection loop stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           advisor.NewHTTPMux(svc, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("advisor HTTP listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	logger.Info("advisor: shutdown complete")
	return nil
}

func newRankCmd(cfg *Config) *cobra.Command {
	var (
		file     string
		crop     string
		disease  string
		severity float64
		price    float64
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank treatments once and print the result as JSON",
		Long: `Ranks either a request document (--file, "-" for stdin) shaped like the
body of POST /treatments/rank, or the catalog treatments for --crop and
--disease at the given --severity.

Example:
  advisor rank --crop maize --disease "Maize Leaf Blight" --severity 0.25`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				in  advisor.RankInput
				err error
			)
			if file != "" {
				in, err = rankInputFromFile(cmd.InOrStdin(), file)
			} else {
				var override *float64
				if cmd.Flags().Changed("price") {
					override = &price
				}
				in, err = rankInputFromCatalog(cfg.CatalogPath, crop, disease, severity, override)
			}
			if err != nil {
				return err
			}

			svc := advisor.NewService(advisor.Config{}, advisor.Deps{})
			run, err := svc.Rank(cmd.Context(), in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run.Ranking)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `request JSON file, "-" reads stdin`)
	cmd.Flags().StringVar(&crop, "crop", "", "crop type in the catalog")
	cmd.Flags().StringVar(&disease, "disease", "", "detected disease, empty matches every treatment")
	cmd.Flags().Float64Var(&severity, "severity", 0, "infection severity in [0,1]")
	cmd.Flags().Float64Var(&price, "price", 0, "override the catalog price per unit")
	cmd.MarkFlagsMutuallyExclusive("file", "crop")
	return cmd
}

func rankInputFromFile(stdin io.Reader, path string) (advisor.RankInput, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return advisor.RankInput{}, err
		}
		defer f.Close()
		r = f
	}
	return advisor.ParseRankRequest(r, advisor.SourceCLI)
}

func rankInputFromCatalog(path, crop, disease string, severity float64, price *float64) (advisor.RankInput, error) {
	if crop == "" {
		return advisor.RankInput{}, errors.New("either --file or --crop is required")
	}
	cat, err := advisor.LoadCatalog(path)
	if err != nil {
		return advisor.RankInput{}, err
	}
	profile, ok := cat.Profile(crop)
	if !ok {
		return advisor.RankInput{}, fmt.Errorf("%w: %s", advisor.ErrUnknownCrop, crop)
	}
	if price != nil {
		profile.PricePerUnit = *price
	}
	return advisor.RankInput{
		Source:     advisor.SourceCLI,
		CropType:   profile.CropType,
		Disease:    disease,
		Profile:    profile,
		Severity:   severity,
		Treatments: cat.TreatmentsFor(profile.CropType, disease),
	}, nil
}
