// Package serve implements the serve command, a read-only HTTP API over
// the target ledger for operator visibility.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/gointel/cmd/common"
	"github.com/jonesrussell/gointel/internal/api"
	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/store"
)

const (
	errorChannelBufferSize = 1
	shutdownTimeout        = 30 * time.Second
)

// Command returns the serve command for use in the root command.
func Command() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		Long: `Serve exposes ledger counts, target detail and rate limiter state over
HTTP. The API is read-only; collection still runs through the build and
extract commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := cmdcommon.NewCommandDeps((*config.Config).ValidateServe)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			targets, err := store.Open(deps.Config.GetPipelineConfig().LedgerPath, deps.Logger)
			if err != nil {
				return fmt.Errorf("open target ledger: %w", err)
			}
			defer func() {
				if closeErr := targets.Close(); closeErr != nil {
					deps.Logger.Error("Failed to close target ledger", "error", closeErr)
				}
			}()

			limiter := cmdcommon.NewLimiter(deps.Config, deps.Logger)

			srvCfg := *deps.Config.GetServerConfig()
			if address != "" {
				srvCfg.Address = address
			}

			server := api.NewHTTPServer(deps.Logger, &srvCfg, targets, limiter)

			deps.Logger.Info("Starting HTTP server", "addr", srvCfg.Address)
			errChan := make(chan error, errorChannelBufferSize)
			go func() {
				if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					errChan <- serveErr
				}
			}()

			select {
			case serveErr := <-errChan:
				deps.Logger.Error("Server error", "error", serveErr)
				return fmt.Errorf("server error: %w", serveErr)
			case <-cmd.Context().Done():
			}

			deps.Logger.Info("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
				deps.Logger.Error("Failed to stop server", "error", shutdownErr)
				return fmt.Errorf("failed to stop server: %w", shutdownErr)
			}

			deps.Logger.Info("Server stopped successfully")
			return cmd.Context().Err()
		},
	}

	cmd.Flags().StringVar(&address, "address", "",
		"Listen address (overrides server.address)")

	return cmd
}
