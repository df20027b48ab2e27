package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/kidbuddy/internal/config"
	"github.com/briangreenhill/kidbuddy/internal/gateway"
	"github.com/briangreenhill/kidbuddy/internal/jobs"
	"github.com/briangreenhill/kidbuddy/internal/logging"
	"github.com/briangreenhill/kidbuddy/internal/store"
	"github.com/briangreenhill/kidbuddy/internal/strategy"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg     config.Config
	log     zerolog.Logger
	verbose bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "Inspect and maintain the kidbuddy gateway cache stores",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			level := "warn"
			if a.verbose {
				level = "debug"
			}
			a.log = logging.New(level, "console", cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cachectl v%s\n", version)
		},
	})
	root.AddCommand(a.storesCmd(), a.purgeCmd(), a.installCmd(), a.syncCmd())
	return root
}

func (a *app) openStores(ctx context.Context) (*store.Manager, error) {
	backend, err := store.OpenBackend(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	return store.NewManager(backend, a.log), nil
}

func (a *app) names() store.Names {
	return store.NewNames(a.cfg.Cache.Prefix, a.cfg.Cache.Version)
}

func (a *app) storesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List stores; '*' marks the current generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer m.Close() //nolint:errcheck

			names, err := m.Names(ctx)
			if err != nil {
				return err
			}
			current := a.names().AllowList()
			for _, n := range names {
				mark := " "
				if slices.Contains(current, n) {
					mark = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, n)
			}
			return nil
		},
	}
}

func (a *app) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every store outside the current generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer m.Close() //nolint:errcheck

			deleted, err := m.DeleteStoresNotIn(ctx, a.names().AllowList())
			if err != nil {
				return err
			}
			for _, n := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d store(s) deleted\n", len(deleted))
			return nil
		},
	}
}

func (a *app) installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Precache the install manifest from the origin into the static store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer m.Close() //nolint:errcheck

			origin, err := gateway.NewOrigin(a.cfg.OriginURL, gateway.WithTimeout(a.cfg.FetchTimeout))
			if err != nil {
				return err
			}
			gw := gateway.New(gateway.Options{
				Stores: m,
				Names:  a.names(),
				Rules:  strategy.NewRules(a.cfg.Cache.NetworkFirstPaths),
				Origin: origin,
				Logger: a.log,
			})
			if err := gateway.NewLifecycle(gw, a.cfg.Cache.PrecacheURLs).Install(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %d entries into %s\n", len(a.cfg.Cache.PrecacheURLs), a.names().Static)
			return nil
		},
	}
}

func (a *app) syncCmd() *cobra.Command {
	var tag, gatewayURL string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger a background sync on every connected client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" {
				tag = a.cfg.Sync.Tag
			}
			p := jobs.SyncPayload{Tag: tag, RequestedAt: time.Now().UnixMilli()}

			if a.cfg.HasRedis() {
				q := jobs.NewQueue(a.cfg.Sync.RedisAddr, a.log)
				defer q.Close() //nolint:errcheck
				if err := q.Dispatch(cmd.Context(), p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sync %q enqueued\n", tag)
				return nil
			}

			if gatewayURL == "" {
				gatewayURL = "http://localhost:" + a.cfg.Port
			}
			if err := postSync(cmd.Context(), gatewayURL, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sync %q sent to %s\n", tag, gatewayURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "sync tag (default SYNC_TAG)")
	cmd.Flags().StringVar(&gatewayURL, "gateway", "", "gateway base URL when Redis is not configured")
	return cmd
}

func postSync(ctx context.Context, base string, p jobs.SyncPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+"/sw/sync", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post sync: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("post sync: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
