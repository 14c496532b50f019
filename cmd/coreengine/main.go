// Command coreengine is the process entrypoint for the matching and
// settlement core (SPEC_FULL.md §0 module map): "server" runs the full
// ingress + matching + storage + settlement stack, "matcher" runs the
// same stack without the HTTP/websocket surface for a headless matching
// node, and "archiver" runs only the tiered storage substrate's
// archival/reconciliation sweeps.
package main

import (
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/config"
	"github.com/latticefi/dexcore/internal/events"
	"github.com/latticefi/dexcore/internal/ingress"
	"github.com/latticefi/dexcore/internal/matching"
	"github.com/latticefi/dexcore/internal/metrics"
	"github.com/latticefi/dexcore/internal/perpetual"
	"github.com/latticefi/dexcore/internal/privacyswap"
	"github.com/latticefi/dexcore/internal/settlement"
	"github.com/latticefi/dexcore/internal/storage"
	websocket "github.com/latticefi/dexcore/internal/websocket/transport"
)

func main() {
	subcommand := "server"
	if len(os.Args) > 1 {
		subcommand = os.Args[1]
	}

	base := fx.Options(
		fx.Provide(newConfig, newLogger),
		storage.Module,
		events.Module,
		metrics.Module,
	)

	var app *fx.App
	switch subcommand {
	case "server":
		app = fx.New(base,
			settlement.Module,
			perpetual.Module,
			privacyswap.Module,
			matching.Module,
			websocket.Module,
			ingress.Module,
		)
	case "matcher":
		app = fx.New(base,
			settlement.Module,
			perpetual.Module,
			privacyswap.Module,
			matching.Module,
		)
	case "archiver":
		app = fx.New(base)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q: expected server, matcher, or archiver\n", subcommand)
		os.Exit(1)
	}

	app.Run()
}

func newConfig() (*config.Config, error) {
	return config.Load("")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return config.NewLogger(cfg)
}
