package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/warden-platform/warden-core/internal/adapter/inbound/admin"
	"github.com/warden-platform/warden-core/internal/adapter/inbound/httpapi"
	"github.com/warden-platform/warden-core/internal/adapter/outbound/journal"
	"github.com/warden-platform/warden-core/internal/adapter/outbound/memory"
	"github.com/warden-platform/warden-core/internal/adapter/outbound/oidc"
	"github.com/warden-platform/warden-core/internal/adapter/outbound/samlsp"
	"github.com/warden-platform/warden-core/internal/adapter/outbound/state"
	"github.com/warden-platform/warden-core/internal/adapter/outbound/threatdb"
	"github.com/warden-platform/warden-core/internal/config"
	"github.com/warden-platform/warden-core/internal/domain/apikey"
	"github.com/warden-platform/warden-core/internal/domain/compliance"
	"github.com/warden-platform/warden-core/internal/domain/sso"
	"github.com/warden-platform/warden-core/internal/domain/threat"
	"github.com/warden-platform/warden-core/internal/metrics"
	"github.com/warden-platform/warden-core/internal/service"
	"github.com/warden-platform/warden-core/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the security core daemon",
	Long: `Run the Warden security core.

The core binds a loopback HTTP listener (127.0.0.1:7700 by default) and
answers authorization decisions for the surrounding gateway. Identities,
roles, API keys, and teams live in memory and snapshot to state.json; every
decision and registry mutation is sealed into the hash-chained audit ledger.

Examples:
  # Run with config file settings
  warden serve

  # Run in development mode (debug logs, unguarded read endpoints)
  warden serve --dev

  # Run with a specific config file
  warden --config /path/to/warden.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, unguarded read endpoints)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override dev mode from CLI flag
	if devMode {
		cfg.DevMode = true
	}

	// Apply dev defaults (forces debug logging in dev mode)
	cfg.SetDevDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Resolve state file path: CLI flag > env var > config default
	statePath := stateFilePath
	if statePath == "" {
		statePath = os.Getenv("WARDEN_STATE_PATH")
	}
	if statePath == "" {
		statePath = cfg.State.Path
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	// Setup logger to stderr.
	// Priority: DevMode=true -> debug, otherwise use configured log_level
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug // DevMode always forces debug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	// Log config file used if any
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Write PID file so "warden stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, statePath, logger); err != nil {
		return err
	}

	logger.Info("warden stopped")
	return nil
}

// run is the main orchestration function that wires all components together:
// ledger, registries, detector, snapshot, services, and the core API server.
func run(ctx context.Context, cfg *config.Config, statePath string, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("development mode enabled: read endpoints accept requests without API keys, do not use in production")
	}

	// Telemetry providers are no-ops unless enabled.
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "warden-core",
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// One registry carries the core collectors and the HTTP server's; the
	// server adds the Go runtime collectors when it starts.
	registry := prometheus.NewRegistry()
	coreMetrics := metrics.New(registry)

	// ===== Audit ledger =====
	fileJournal, err := journal.NewFileJournal(journal.JournalConfig{
		Dir:       cfg.Ledger.Dir,
		CacheSize: cfg.Ledger.CacheSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open audit journal: %w", err)
	}
	ledger, err := service.NewLedgerService(ctx, fileJournal, logger,
		service.WithLedgerMetrics(coreMetrics),
	)
	if err != nil {
		return fmt.Errorf("failed to start audit ledger: %w", err)
	}
	defer func() { _ = ledger.Close() }()
	logger.Info("audit ledger opened", "dir", cfg.Ledger.Dir, "cache_size", cfg.Ledger.CacheSize)

	// ===== In-memory registries =====
	userStore := memory.NewUserStore()
	roleStore := memory.NewRoleStore()
	keyStore := memory.NewKeyStore()
	teamStore := memory.NewTeamStore()

	keyStore.StartCleanup(ctx)
	defer keyStore.Stop()

	// ===== Threat detector =====
	authWindow, err := time.ParseDuration(cfg.Threat.AuthWindow)
	if err != nil {
		authWindow = 5 * time.Minute
		logger.Warn("invalid threat.auth_window, using default",
			"value", cfg.Threat.AuthWindow, "default", "5m")
	}
	blockDuration, err := time.ParseDuration(cfg.Threat.BlockDuration)
	if err != nil {
		blockDuration = 15 * time.Minute
		logger.Warn("invalid threat.block_duration, using default",
			"value", cfg.Threat.BlockDuration, "default", "15m")
	}

	detector := threat.NewDetector(
		threat.WithMaxFailedAuth(cfg.Threat.MaxFailedAuth),
		threat.WithAuthWindow(authWindow),
		threat.WithBlockDuration(blockDuration),
		threat.WithMaxRequestsPerMinute(cfg.Threat.MaxRequestsPerMinute),
		threat.WithMaxDataVolume(cfg.Threat.MaxDataVolume),
	)

	threatOpts := []service.ThreatOption{
		service.WithThreatMetrics(coreMetrics),
	}

	// Durable threat-event archive (optional; detection works without it).
	if cfg.Threat.ArchivePath != "" {
		db, err := sql.Open("sqlite", cfg.Threat.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open threat archive: %w", err)
		}
		archive, err := threatdb.New(db)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to init threat archive: %w", err)
		}
		defer func() { _ = archive.Close() }()
		threatOpts = append(threatOpts, service.WithThreatArchive(archive))
		logger.Info("threat archive enabled", "path", cfg.Threat.ArchivePath)
	}

	// The persist hook is late-bound: the snapshot service needs the threat
	// service (blocked sources ride in the snapshot), and the threat service
	// needs the hook (blocks must survive a restart). The closure breaks the
	// construction cycle.
	var snapshot *service.SnapshotService
	threatOpts = append(threatOpts, service.WithThreatPersist(func(ctx context.Context) {
		if snapshot != nil {
			snapshot.Hook()(ctx)
		}
	}))

	threats := service.NewThreatService(detector, logger, threatOpts...)

	// ===== State snapshot =====
	// freshBoot is decided before Restore creates the file: only a boot
	// with no prior state applies the seed file below.
	stateStore := state.NewFileStateStore(statePath, logger)
	snapshot = service.NewSnapshotService(stateStore, userStore, roleStore, keyStore, teamStore, threats, logger)

	freshBoot := !stateStore.Exists()
	if err := snapshot.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	// Save immediately to create the file if it didn't exist.
	if err := snapshot.Save(ctx); err != nil {
		return fmt.Errorf("failed to save initial state: %w", err)
	}
	persist := snapshot.Hook()

	// ===== Registry services =====
	// Every mutation is sealed into the ledger and schedules a snapshot save.
	access := service.NewAccessService(userStore, roleStore, logger,
		service.WithAccessAudit(ledger),
		service.WithAccessPersist(persist),
	)
	identities := service.NewIdentityService(userStore, roleStore, logger,
		service.WithIdentityMetrics(coreMetrics),
		service.WithIdentityAudit(ledger),
		service.WithIdentityInvalidator(access),
		service.WithIdentityPersist(persist),
	)
	keys := service.NewKeyService(keyStore, userStore, logger,
		service.WithKeyAudit(ledger),
		service.WithKeyPersist(persist),
	)
	teams := service.NewTeamService(teamStore, logger,
		service.WithTeamAudit(ledger),
		service.WithTeamPersist(persist),
	)

	ssoService := service.NewSSOService(userStore, logger,
		service.WithSSOAudit(ledger),
		service.WithSSOMetrics(coreMetrics),
	)

	// External identity providers from config.
	for _, p := range cfg.SSO.Providers {
		bcfg := sso.ProviderConfig{
			Name:         p.Name,
			Protocol:     p.Protocol,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			IssuerURL:    p.IssuerURL,
			MetadataURL:  p.MetadataURL,
			RedirectURI:  p.RedirectURI,
			Scopes:       p.Scopes,
		}
		var broker sso.Broker
		switch p.Protocol {
		case "oidc":
			broker = oidc.New(bcfg)
		case "saml":
			broker = samlsp.New(bcfg)
		default:
			return fmt.Errorf("unsupported sso protocol %q for provider %s", p.Protocol, p.Name)
		}
		if err := ssoService.Register(broker); err != nil {
			return fmt.Errorf("failed to register sso provider %s: %w", p.Name, err)
		}
		logger.Info("sso provider registered", "name", p.Name, "protocol", p.Protocol)
	}

	// ===== Compliance reporter =====
	reporter := compliance.NewReporter(compliance.Config{
		GatewayHost:            cfg.Server.GatewayHost,
		SandboxEnabled:         cfg.Security.SandboxEnabled,
		PolicyEngineEnabled:    cfg.Security.PolicyEngineEnabled,
		CanaryTokensEnabled:    cfg.Security.CanaryTokensEnabled,
		EgressFilteringEnabled: cfg.Security.EgressFilteringEnabled,
		AuditLoggingEnabled:    cfg.Security.AuditLoggingEnabled,
		SkillSignatureRequired: cfg.Security.SkillSignatureRequired,
	}, compliance.WithVerifier(ledger))
	reports := service.NewComplianceService(reporter, logger)

	// ===== Decision pipeline =====
	decisions := service.NewDecisionService(userStore, keys, access, threats, ledger, logger,
		service.WithDecisionMetrics(coreMetrics),
	)

	// Seed file bootstraps users, custom roles, and key hashes exactly once.
	if freshBoot && cfg.Seed != "" {
		if err := applySeed(ctx, cfg.Seed, access, identities, keyStore, snapshot, logger); err != nil {
			return fmt.Errorf("failed to apply seed file: %w", err)
		}
	}

	// ===== Core API server =====
	addr := fmt.Sprintf("%s:%d", cfg.Server.GatewayHost, cfg.Server.GatewayPort)

	healthChecker := httpapi.NewHealthChecker(ledger, stateStore, threats, Version)

	adminAPI := admin.NewAPIHandler(
		admin.WithIdentityService(identities),
		admin.WithAccessService(access),
		admin.WithKeyService(keys),
		admin.WithTeamService(teams),
		admin.WithSSOService(ssoService),
		admin.WithUserStore(userStore),
		admin.WithBuildInfo(&admin.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}),
		admin.WithDevMode(cfg.DevMode),
		admin.WithAPILogger(logger),
	)

	srv := httpapi.NewServer(decisions, ledger, threats, reports, keys, access, userStore,
		httpapi.WithAddr(addr),
		httpapi.WithLogger(logger),
		httpapi.WithHealthChecker(healthChecker),
		httpapi.WithDevMode(cfg.DevMode),
		httpapi.WithRegistry(registry),
		httpapi.WithSSOService(ssoService),
		httpapi.WithExtraHandler(adminAPI.Routes()),
	)

	allUsers, _ := userStore.List(ctx)
	allRoles, _ := roleStore.List(ctx)

	logger.Info("warden starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"addr", addr,
		"users", len(allUsers),
		"roles", len(allRoles),
		"api_keys", keyStore.Size(),
		"sso_providers", len(cfg.SSO.Providers),
		"ledger_dir", cfg.Ledger.Dir,
		"state_file", statePath,
	)

	// Print startup banner to stderr.
	printBanner(Version, addr, cfg.DevMode, len(allUsers), len(allRoles), keyStore.Size(), len(cfg.SSO.Providers))

	serveErr := srv.Start(ctx)

	// Final snapshot so mutations since the last hook-scheduled save are
	// not lost on shutdown.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := snapshot.Save(saveCtx); err != nil {
		logger.Error("final state save failed", "error", err)
	}

	return serveErr
}

// applySeed loads the seed file and replays it into the registries: roles
// first so seeded users can reference them, then users, then key records.
// Seeded keys carry pre-hashed tokens, so they go straight into the store;
// KeyService.Generate would mint new secrets instead.
func applySeed(
	ctx context.Context,
	path string,
	access *service.AccessService,
	identities *service.IdentityService,
	keyStore *memory.MemoryKeyStore,
	snapshot *service.SnapshotService,
	logger *slog.Logger,
) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}

	for _, r := range seed.Roles {
		if _, err := access.CreateRole(ctx, service.CreateRoleInput{
			Name:        r.Name,
			Description: r.Description,
			Permissions: r.Permissions,
		}); err != nil {
			return fmt.Errorf("seed role %q: %w", r.Name, err)
		}
	}

	created := make(map[string]string, len(seed.Users))
	for _, u := range seed.Users {
		user, err := identities.Create(ctx, service.CreateUserInput{
			Username: u.Username,
			Email:    u.Email,
			Password: u.Password,
			RoleName: u.Role,
		})
		if err != nil {
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
		created[u.Username] = user.ID
	}

	now := time.Now().UTC()
	for _, k := range seed.APIKeys {
		userID, ok := created[k.User]
		if !ok {
			return fmt.Errorf("seed key %q references unknown user %q", k.Name, k.User)
		}
		ttl := k.TTLDays
		if ttl == 0 {
			ttl = apikey.DefaultTTLDays
		}
		key := &apikey.Key{
			ID:        uuid.New().String(),
			UserID:    userID,
			Name:      k.Name,
			CreatedAt: now,
			ExpiresAt: now.AddDate(0, 0, ttl).Unix(),
		}
		if err := keyStore.Put(ctx, k.Digest(), key); err != nil {
			return fmt.Errorf("seed key %q: %w", k.Name, err)
		}
	}

	if err := snapshot.Save(ctx); err != nil {
		return fmt.Errorf("save seeded state: %w", err)
	}

	logger.Info("seed applied",
		"file", path,
		"roles", len(seed.Roles),
		"users", len(seed.Users),
		"api_keys", len(seed.APIKeys),
	)
	return nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr with version,
// addresses, mode, and registry counts.
func printBanner(version, addr string, devMode bool, users, roles, keys, providers int) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	decisionURL := fmt.Sprintf("http://%s/v1/decision", addr)
	healthURL := fmt.Sprintf("http://%s/health", addr)

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset + dim + " (unguarded reads)" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s Warden %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Decision API:", decisionURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Health:", healthURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %d users / %d roles\n", "Identities:", users, roles)
	fmt.Fprintf(os.Stderr, "  %-14s %d active\n", "API keys:", keys)
	fmt.Fprintf(os.Stderr, "  %-14s %d configured\n", "SSO:", providers)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}

// pidFilePath returns the standard location for the Warden PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".warden", "warden.pid")
	}
	return filepath.Join(os.TempDir(), "warden.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
