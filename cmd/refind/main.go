package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/refind-ai/refind/ai"
	aicache "github.com/refind-ai/refind/ai/cache"
	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/internal/version"
	"github.com/refind-ai/refind/matching"
	"github.com/refind-ai/refind/server"
	apiv1 "github.com/refind-ai/refind/server/router/api/v1"
	"github.com/refind-ai/refind/store"
	"github.com/refind-ai/refind/store/db"
	"github.com/refind-ai/refind/store/kvcache"
)

var rootCmd = &cobra.Command{
	Use:   "refind",
	Short: `Matching engine for lost and found items. Generates multimodal embeddings and ranks candidate pairs by hybrid similarity.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution (not when running as systemd service).
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:            viper.GetString("mode"),
			Addr:            viper.GetString("addr"),
			Port:            viper.GetInt("port"),
			Driver:          viper.GetString("driver"),
			DSN:             viper.GetString("dsn"),
			RedisAddr:       viper.GetString("redis-addr"),
			MatchThreshold:  viper.GetFloat64("match-threshold"),
			SweepLimit:      viper.GetInt("sweep-limit"),
			SweepStaleAfter: viper.GetDuration("sweep-stale-after"),
			Version:         version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			cancel()
			printDatabaseError(err, instanceProfile)
			slog.Error("failed to create db driver", "error", err)
			return
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			cancel()
			slog.Error("failed to migrate", "error", err)
			return
		}

		generator, err := ai.NewGenerator(ai.NewGeneratorConfigFromProfile(instanceProfile))
		if err != nil {
			cancel()
			slog.Error("failed to create embedding generator", "error", err)
			return
		}

		embCache := aicache.NewEmbeddingCache(instanceProfile.EmbeddingCacheSize, instanceProfile.EmbeddingCacheTTL)
		resultCache := kvcache.New(instanceProfile)

		coordinator := matching.NewCoordinator(storeInstance, generator, embCache, resultCache, instanceProfile)
		sweeper := matching.NewSweeper(storeInstance, generator, embCache, instanceProfile)

		apiService := apiv1.NewAPIV1Service(coordinator, sweeper, storeInstance)
		s := server.NewServer(instanceProfile, storeInstance, resultCache, coordinator, apiService)

		c := make(chan os.Signal, 1)
		// SIGTERM is the graceful shutdown signal used by most process
		// managers, eg., Kubernetes, systemd.
		signal.Notify(c, terminationSignals...)

		go func() {
			<-c
			s.Shutdown(ctx)
			_ = resultCache.Close()
			cancel()
		}()

		printGreetings(instanceProfile)

		if err := s.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
				cancel()
			}
		}

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "postgres")
	viper.SetDefault("port", 28085)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28085, "port of server")
	rootCmd.PersistentFlags().String("driver", "postgres", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("redis-addr", "", "redis address for the match result cache")
	rootCmd.PersistentFlags().Float64("match-threshold", 0, "minimum hybrid similarity kept in match results")
	rootCmd.PersistentFlags().Int("sweep-limit", 0, "max items per collection per background sweep run")
	rootCmd.PersistentFlags().Duration("sweep-stale-after", 0, "reprocess items whose embeddings are older than this")

	for _, flag := range []string{"mode", "addr", "port", "driver", "dsn", "redis-addr", "match-threshold", "sweep-limit", "sweep-stale-after"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("refind")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("ReFind %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	if profile.RedisAddr == "" {
		fmt.Println("Redis not configured, match results are not cached across requests")
	}

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides user-friendly error messages for database connection issues.
func printDatabaseError(err error, profile *profile.Profile) {
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "\nDatabase is not reachable.")
		if profile.Driver == "postgres" {
			fmt.Fprintln(os.Stderr, "Start PostgreSQL, or use SQLite for development: --driver=sqlite")
		}
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL SSL configuration mismatch. Add ?sslmode=disable to your DSN.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL authentication failed. Check the credentials in your DSN or .env file.")
	default:
		fmt.Fprintln(os.Stderr, "\nDatabase error:", errMsg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
