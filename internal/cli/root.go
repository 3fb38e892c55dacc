// Package cli implements the frontend-sniper command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/frontend-sniper/frontend-sniper/internal/browser"
	"github.com/frontend-sniper/frontend-sniper/internal/config"
	"github.com/frontend-sniper/frontend-sniper/internal/endpoint"
	"github.com/frontend-sniper/frontend-sniper/internal/observability"
	"github.com/frontend-sniper/frontend-sniper/internal/session"
	"github.com/frontend-sniper/frontend-sniper/internal/tools"
)

// app carries state shared by the commands. resolver, dialer and logger are
// built from configuration unless already set.
type app struct {
	version string
	cfgFile string

	cfg      *config.Config
	logger   *zap.Logger
	resolver session.Resolver
	dialer   browser.Dialer
	onFatal  func(error)
}

// Execute runs the command line. ctx is cancelled on interrupt.
func Execute(ctx context.Context, version string) error {
	cmd := newRootCmd(&app{version: version})
	if err := cmd.ExecuteContext(ctx); err != nil {
		if ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "frontend-sniper",
		Short: "MCP bridge to a remote-debugging Chrome",
		Long: `frontend-sniper attaches to a Chrome instance listening for remote debugging and
exposes page inspection and manipulation tools over MCP on stdin/stdout.`,
		Version:           a.version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.init() },
		// Serving is the default so MCP hosts can launch the bare binary.
		RunE: func(cmd *cobra.Command, args []string) error { return a.serve(cmd.Context()) },
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newToolsCmd(),
		newCallCmd(a),
		newStatusCmd(a),
		newClientCmd(a),
	)
	return root
}

// init loads configuration and the logger once per process.
func (a *app) init() error {
	if a.cfg == nil {
		cfg, err := config.Load(viper.New(), a.cfgFile)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logger == nil {
		observability.InitializeLogger(a.cfg.Logger)
		a.logger = observability.GetLogger()
	}
	if a.resolver == nil {
		b := a.cfg.Browser
		a.resolver = endpoint.NewResolver(b.Host, b.Port, b.DiscoveryTimeout)
	}
	if a.dialer == nil {
		a.dialer = browser.NewCDPDialer(a.logger, a.cfg.Browser.DiscoveryTimeout)
	}
	if a.onFatal == nil {
		a.onFatal = func(err error) {
			a.logger.Fatal("Browser unreachable, exiting so the supervisor can restart", zap.Error(err))
		}
	}
	return nil
}

// stack builds a session and dispatcher against the configured browser.
func (a *app) stack() (*session.Manager, *tools.Dispatcher) {
	sess := session.New(a.logger, a.resolver, a.dialer, a.cfg.Browser.ActionTimeout)
	d := tools.NewDispatcher(a.logger, sess, a.cfg.Browser, tools.DefaultNormalizer(a.cfg.Tools.Prefix), a.onFatal)
	return sess, d
}
