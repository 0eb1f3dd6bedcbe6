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
	"strings"
	"syscall"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/fetcher"
	"newsdesk/internal/logging"
	"newsdesk/internal/model"
	"newsdesk/internal/pagination"
	"newsdesk/internal/scheduler"
	"newsdesk/internal/settings"
	"newsdesk/internal/store"
	"newsdesk/internal/web"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger      *zap.Logger
	cfg         *config.Config
	configPath  string
	redisAddr   string
	storagePath string
)

var rootCmd = &cobra.Command{
	Use:   "newsdesk",
	Short: "newsdesk - scheduled news API fetcher with a paginated reader",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("redis") {
			cfg.Redis.Addr = redisAddr
		}
		if cmd.Flags().Changed("storage") {
			cfg.Storage.Path = storagePath
		}

		logger, err = logging.New(cfg.Env)
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and web server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		rdb, err := openRedis(ctx)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		sp := settings.NewFileProvider(cfg.SettingsPath)
		sched := scheduler.New(rdb, newFetcher(st, sp), logger, cfg.Scheduler.Interval)

		if cfg.Scheduler.Disabled {
			logger.Info("Scheduled fetching disabled")
		} else {
			go func() {
				if err := sched.Start(ctx); err != nil {
					logger.Error("Scheduler stopped", zap.Error(err))
				}
			}()
		}

		pages := pagination.New(st, sp, logger)
		srv := web.NewServer(pages, st, sched, logger, web.Options{
			Title:      cfg.HTTP.Title,
			AdminToken: cfg.HTTP.AdminToken,
		})

		go func() {
			if err := srv.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Web server failed", zap.Error(err))
				stop()
			}
		}()

		// Block until shutdown
		<-ctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("Web server shutdown", zap.Error(err))
		}
		logger.Info("Goodbye!")
	},
}

var remoteURL string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch articles now (same path as the scheduled run)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		var (
			result model.FetchResult
			err    error
		)
		if remoteURL != "" {
			// The server holds the store lock; ask it to run instead.
			result, err = fetchRemote(ctx, remoteURL, cfg.HTTP.AdminToken)
			if err != nil {
				logger.Fatal("Remote fetch failed", zap.Error(err))
			}
		} else {
			result = fetchLocal(ctx)
		}

		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		if !result.OK {
			os.Exit(1)
		}
	},
}

var listPage int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of stored articles",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		page := pagination.New(st, settings.NewFileProvider(cfg.SettingsPath), logger).RenderPage(ctx, listPage)
		if page.Empty() {
			fmt.Println("No articles found.")
			return
		}

		fmt.Printf("Page %d of %d\n", page.CurrentPage, page.TotalPages)
		for _, a := range page.Items {
			fmt.Printf("%s  %s\n", a.PublishedAt.Format("2006-01-02"), a.Title)
		}
	},
}

func fetchLocal(ctx context.Context) model.FetchResult {
	st, err := openStore(ctx)
	if err != nil {
		logger.Fatal("Failed to init store", zap.Error(err))
	}
	defer st.Close()

	rdb, err := openRedis(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	sp := settings.NewFileProvider(cfg.SettingsPath)
	return scheduler.New(rdb, newFetcher(st, sp), logger, cfg.Scheduler.Interval).RunNow(ctx)
}

func fetchRemote(ctx context.Context, base, token string) (model.FetchResult, error) {
	var result model.FetchResult

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/admin/fetch", nil)
	if err != nil {
		return result, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}

	client := &http.Client{Timeout: cfg.Upstream.Timeout + 10*time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return result, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	return result, err
}

func newFetcher(st store.Store, sp settings.Provider) *fetcher.Fetcher {
	return fetcher.New(st, sp, logger, fetcher.Config{
		BaseURL: cfg.Upstream.BaseURL,
		SiteURL: cfg.HTTP.SiteURL,
		Timeout: cfg.Upstream.Timeout,
	})
}

// openStore opens the configured article store and, for Badger, starts
// value log GC tied to ctx.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if bs, ok := st.(*store.BadgerStore); ok && cfg.Storage.GCInterval > 0 {
		go bs.RunGC(ctx, cfg.Storage.GCInterval)
	}
	logger.Info("Store opened",
		zap.String("driver", cfg.Storage.Driver),
		zap.String("path", cfg.Storage.Path))
	return st, nil
}

func openRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (overrides CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().StringVar(&storagePath, "storage", "./badger-data", "Path to the article store")

	fetchCmd.Flags().StringVar(&remoteURL, "remote", "", "Base URL of a running server to trigger instead of fetching locally")
	listCmd.Flags().IntVar(&listPage, "page", 1, "Page number")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(listCmd)

	err := rootCmd.Execute()
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
