package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rpattn/exportval/internal/baseline"
	"github.com/rpattn/exportval/internal/config"
	"github.com/rpattn/exportval/internal/db"
	"github.com/rpattn/exportval/internal/domain"
	"github.com/rpattn/exportval/internal/ingest"
	"github.com/rpattn/exportval/internal/registry"
	"github.com/rpattn/exportval/internal/report"
	"github.com/rpattn/exportval/internal/server"
	"github.com/rpattn/exportval/internal/validation"
)

// Exit codes for automation: PASS=0, FAIL=1, engine error=2.
const (
	exitPass  = 0
	exitFail  = 1
	exitError = 2
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Command flags
	entityType    string
	instanceID    string
	xlsxPath      string
	expectVersion int
	rollbackTo    int
	fieldPath     string
	markValidated bool
	listenAddr    string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "exportval",
	Short: "Validate production configuration exports against stored baselines",
	Long: `exportval ingests hierarchical configuration exports from a production
system, compares them field-by-field against the stored canonical baseline for
that instance, and reports drift. Baselines are versioned and append-only;
which fields matter is curated by operators in the schema catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zapConfig := zap.NewProductionConfig()
		if cfg.Development {
			zapConfig = zap.NewDevelopmentConfig()
		}
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [export.xml ...]",
	Short: "Validate one or more exports against the active baseline",
	Long: `Validates each export file against the active baseline for the entity and
production instance. Exits 0 when every run passes, 1 when any run fails, and
2 when a run aborts (malformed export, unknown field, duplicate correlation
key, missing configuration).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var promoteCmd = &cobra.Command{
	Use:   "promote [export.xml]",
	Short: "Promote a validated export as the new baseline version",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromote,
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List baseline versions for an entity and instance",
	RunE:  runVersions,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Re-promote an older baseline version as the new head",
	RunE:  runRollback,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and curate the schema catalog",
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an entity's field inventory and validation flags",
	RunE:  runSchemaList,
}

var schemaMarkCmd = &cobra.Command{
	Use:   "mark",
	Short: "Mark a field as validated or ignored",
	Long: `Flips one field's validated flag in the schema catalog and persists the
catalog file. Curation only; run before validations, not during.`,
	RunE: runSchemaMark,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the validation API over HTTP",
	RunE:  runServe,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	for _, cmd := range []*cobra.Command{validateCmd, promoteCmd, versionsCmd, rollbackCmd} {
		cmd.Flags().StringVar(&entityType, "entity", "", "entity type (required)")
		cmd.Flags().StringVar(&instanceID, "instance", "", "production instance identifier (required)")
		_ = cmd.MarkFlagRequired("entity")
		_ = cmd.MarkFlagRequired("instance")
	}
	validateCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the report as an XLSX workbook")
	promoteCmd.Flags().IntVar(&expectVersion, "expect-version", -1, "fail unless this is still the latest version")
	rollbackCmd.Flags().IntVar(&rollbackTo, "to", 0, "version to restore (required)")
	_ = rollbackCmd.MarkFlagRequired("to")

	schemaListCmd.Flags().StringVar(&entityType, "entity", "", "entity type (required)")
	_ = schemaListCmd.MarkFlagRequired("entity")
	schemaMarkCmd.Flags().StringVar(&entityType, "entity", "", "entity type (required)")
	schemaMarkCmd.Flags().StringVar(&fieldPath, "field", "", "field path (required)")
	schemaMarkCmd.Flags().BoolVar(&markValidated, "validated", true, "validated flag value")
	_ = schemaMarkCmd.MarkFlagRequired("entity")
	_ = schemaMarkCmd.MarkFlagRequired("field")

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (defaults to config)")

	schemaCmd.AddCommand(schemaListCmd, schemaMarkCmd)
	rootCmd.AddCommand(validateCmd, promoteCmd, versionsCmd, rollbackCmd, schemaCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

// buildService assembles the registry, store, and validation service from
// config. The returned cleanup closes the database connection when one was
// opened.
func buildService(ctx context.Context) (*validation.Service, func(), error) {
	reg, err := registry.Load(cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}

	var store baseline.Store
	cleanup := func() {}
	switch cfg.Store {
	case "fs", "":
		store = baseline.NewFSStore(cfg.BaselineDir)
	case "postgres":
		if err := db.RunMigrations(cfg.Database); err != nil {
			return nil, nil, err
		}
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store = baseline.NewPostgresStore(conn.Pool)
		cleanup = conn.Close
	default:
		return nil, nil, fmt.Errorf("unknown baseline store %q (want fs or postgres)", cfg.Store)
	}

	ingestor := ingest.NewService(reg, logger)
	return validation.NewService(reg, ingestor, store, logger), cleanup, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, cleanup, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	reqs := make([]validation.FileRequest, len(args))
	for i, path := range args {
		reqs[i] = validation.FileRequest{Path: path, EntityType: entityType, InstanceID: instanceID}
	}

	results := service.ValidateFiles(ctx, reqs, cfg.Concurrency)

	exitCode := exitPass
	for _, result := range results {
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", result.Path, result.Err)
			exitCode = exitError
			continue
		}
		fmt.Println(report.RenderText(result.Report))
		if result.Report.Status == domain.ReportStatusFail && exitCode == exitPass {
			exitCode = exitFail
		}
		if xlsxPath != "" {
			target := xlsxPath
			if len(results) > 1 {
				ext := filepath.Ext(xlsxPath)
				target = fmt.Sprintf("%s-%s%s", xlsxPath[:len(xlsxPath)-len(ext)], filepath.Base(result.Path), ext)
			}
			if err := report.WriteXLSX(result.Report, target); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", result.Path, err)
				exitCode = exitError
			}
		}
	}

	if exitCode != exitPass {
		if logger != nil {
			_ = logger.Sync()
		}
		os.Exit(exitCode)
	}
	return nil
}

func runPromote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, cleanup, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()

	req := validation.PromoteRequest{
		EntityType: entityType,
		InstanceID: instanceID,
		FileName:   filepath.Base(args[0]),
		Data:       file,
	}
	if expectVersion >= 0 {
		req.ExpectedVersion = &expectVersion
	}

	promoted, err := service.Promote(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Promoted %s/%s to baseline version %d (%d records)\n",
		entityType, instanceID, promoted.Version, len(promoted.Document.Records))
	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, cleanup, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	versions, err := service.ListVersions(ctx, entityType, instanceID)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Printf("No baseline versions for %s/%s\n", entityType, instanceID)
		return nil
	}

	for _, version := range versions {
		fmt.Printf("v%d  %s  %d records  %s\n",
			version.Version,
			version.CreatedAt.Format("2006-01-02 15:04:05"),
			len(version.Document.Records),
			version.ID)
	}
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, cleanup, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	promoted, err := service.Rollback(ctx, entityType, instanceID, rollbackTo)
	if err != nil {
		return err
	}

	fmt.Printf("Restored %s/%s version %d as new baseline version %d\n",
		entityType, instanceID, rollbackTo, promoted.Version)
	return nil
}

func runSchemaList(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	schema, err := reg.GetSchema(entityType)
	if err != nil {
		return err
	}

	fmt.Printf("Entity: %s\n", schema.EntityType)
	if schema.Description != "" {
		fmt.Printf("Description: %s\n", schema.Description)
	}
	fmt.Printf("Correlation key: %v\n\n", schema.CorrelationKey)
	for _, field := range schema.Fields {
		flag := " "
		if field.Validated {
			flag = "*"
		}
		fmt.Printf("  [%s] %-24s %-8s %-7s %s\n", flag, field.Path, field.Kind, field.Multiplicity, field.Description)
	}
	return nil
}

func runSchemaMark(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	if err := reg.MarkValidated(entityType, fieldPath, markValidated); err != nil {
		return err
	}

	state := "validated"
	if !markValidated {
		state = "ignored"
	}
	fmt.Printf("Marked %s.%s as %s\n", entityType, fieldPath, state)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	service, cleanup, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := listenAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.New(service, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("validation API listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}
