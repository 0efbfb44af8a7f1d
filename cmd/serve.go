package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oraclesec/sentinel/internal/logging"
	"github.com/oraclesec/sentinel/internal/queue"
	"github.com/oraclesec/sentinel/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audit agent: HTTP API, scan queue and oracle listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	logger := logging.NewStdoutLogger("sentinel")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ag, err := buildAgent(ctx, logger)
	if err != nil {
		return err
	}
	defer ag.close()

	q := queue.New(queue.Config{
		MaxPending:  ag.cfg.Scan.MaxPending,
		MinInterval: ag.cfg.Scan.MinInterval.Std(),
		Cooldown:    ag.cfg.Scan.Cooldown.Std(),
		MaxHistory:  ag.cfg.Scan.MaxHistory,
	}, ag.runner.Process, logger)
	defer q.Close()

	// On-chain audit requests feed the same queue as the HTTP API.
	if ag.oracle != nil {
		go func() {
			err := ag.oracle.ListenForRequests(ctx, func(target, requester string) {
				logger.Info("onchain audit request",
					logging.Field{Key: "target", Value: target},
					logging.Field{Key: "requester", Value: requester})
				q.Enqueue(target, false)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("oracle listener stopped", logging.Field{Key: "error", Value: err.Error()})
			}
		}()
	}

	srv := server.NewServer(server.Config{ListenAddr: ag.cfg.ListenAddr()}, q, ag.store, logger)
	httpSrv := srv.HTTPServer()

	go func() {
		<-ctx.Done()
		httpSrv.Shutdown(context.Background())
	}()

	logger.Info("agent listening", logging.Field{Key: "addr", Value: ag.cfg.ListenAddr()})
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("agent stopped")
	return nil
}
