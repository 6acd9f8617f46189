// Command dataflowd serves the dataflow engine's thin RPC surface over
// HTTP.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.ncnr.nist.gov/dataflow/dataflow/cache"
	"go.ncnr.nist.gov/dataflow/dataflow/cache/lrucache"
	"go.ncnr.nist.gov/dataflow/dataflow/cache/rediscache"
	"go.ncnr.nist.gov/dataflow/dataflow/executor"
	"go.ncnr.nist.gov/dataflow/dataflow/ncnr"
	"go.ncnr.nist.gov/dataflow/dataflow/registry"
	"go.ncnr.nist.gov/dataflow/dataflow/rpc"
	"go.ncnr.nist.gov/dataflow/internal/config"
	"go.ncnr.nist.gov/dataflow/internal/logging"
	"go.ncnr.nist.gov/dataflow/version"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		logging.Logger.WithError(err).Fatal("dataflowd exited with error")
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataflowd",
		Short: "Serve the dataflow engine's RPC surface over HTTP",
		RunE:  runServe,
	}

	cmd.Flags().String("listen-addr", "", "address to bind the HTTP server (overrides DATAFLOW_LISTEN_ADDR)")
	cmd.Flags().String("cache-backend", "", "lru or redis (overrides DATAFLOW_CACHE_BACKEND)")
	cmd.Flags().String("redis-url", "", "redis connection URL (overrides DATAFLOW_REDIS_URL)")

	viper.SetEnvPrefix("dataflow")
	viper.AutomaticEnv()
	viper.BindPFlag("listen_addr", cmd.Flags().Lookup("listen-addr"))
	viper.BindPFlag("cache_backend", cmd.Flags().Lookup("cache-backend"))
	viper.BindPFlag("redis_url", cmd.Flags().Lookup("redis-url"))

	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	var showDeps bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print dataflowd's build and dependency versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetBuildInfo()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if !showDeps {
				info.Dependencies = nil
			}
			return enc.Encode(info)
		},
	}
	cmd.Flags().BoolVar(&showDeps, "deps", false, "include the full dependency list")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if v := viper.GetString("listen_addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v := viper.GetString("cache_backend"); v != "" {
		cfg.CacheBackend = v
	}
	if v := viper.GetString("redis_url"); v != "" {
		cfg.RedisURL = v
	}

	var configureErr error
	switch cfg.CacheBackend {
	case "redis":
		configureErr = cache.Default.Configure(rediscache.Backing(cfg.RedisURL, cfg.LRUEntries))
	default:
		configureErr = cache.Default.Configure(lrucache.Backing(cfg.LRUEntries))
	}
	if configureErr != nil {
		return configureErr
	}
	c, err := cache.Default.Cache()
	if err != nil {
		return err
	}

	reg := registry.Default
	if err := reg.RegisterInstrument(ncnr.Instrument()); err != nil {
		return err
	}

	ex := executor.New(reg, c)
	srv := rpc.NewServer(reg, ex)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/rpc/", handleRPC(srv))

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		logging.Logger.WithField("addr", cfg.ListenAddr).Info("dataflowd listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.WithError(err).Error("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleRPC dispatches /rpc/{method} to the corresponding rpc.Server method.
// Bodies are decoded into the method's request struct and the result is
// written back as JSON; this is deliberately minimal (spec.md §6's "thin
// RPC surface", not a general-purpose framework).
func handleRPC(srv *rpc.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/rpc/")
		ctx := r.Context()

		var result any
		var err error

		switch method {
		case "ListInstruments":
			result = srv.ListInstruments()

		case "GetInstrument":
			var req struct {
				ID string `json:"id"`
			}
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, decodeErr.Error(), http.StatusBadRequest)
				return
			}
			result, err = srv.GetInstrument(req.ID)

		case "CalcTemplate":
			var req struct {
				Template rpc.TemplateDef `json:"template"`
				Config   rpc.ConfigMap   `json:"config"`
			}
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, decodeErr.Error(), http.StatusBadRequest)
				return
			}
			result, err = srv.CalcTemplate(ctx, req.Template, req.Config)

		case "CalcTerminal":
			var req struct {
				Template   rpc.TemplateDef `json:"template"`
				Config     rpc.ConfigMap   `json:"config"`
				Node       int             `json:"node"`
				Terminal   string          `json:"terminal"`
				ReturnType rpc.ReturnType  `json:"return_type"`
			}
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, decodeErr.Error(), http.StatusBadRequest)
				return
			}
			result, err = srv.CalcTerminal(ctx, req.Template, req.Config, req.Node, req.Terminal, req.ReturnType)

		case "FindCalculated":
			var req struct {
				Template rpc.TemplateDef `json:"template"`
				Config   rpc.ConfigMap   `json:"config"`
			}
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, decodeErr.Error(), http.StatusBadRequest)
				return
			}
			result, err = srv.FindCalculated(ctx, req.Template, req.Config)

		default:
			http.NotFound(w, r)
			return
		}

		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}
