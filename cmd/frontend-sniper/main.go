// The frontend-sniper command bridges a remote-debugging Chrome to MCP.
//
// Usage:
//
//	frontend-sniper [serve]                 - serve tools over stdio (default)
//	frontend-sniper tools                   - print the tool catalog
//	frontend-sniper call <tool> [json]      - run one tool
//	frontend-sniper status                  - show the browser and its pages
//	frontend-sniper client <command>        - drive a spawned server
//
// The browser is found through CHROME_HOST and CHROME_PORT (or
// SNIPER_BROWSER_HOST / SNIPER_BROWSER_PORT), defaulting to
// host.docker.internal:3333.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/frontend-sniper/frontend-sniper/internal/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, version); err != nil {
		stop()
		os.Exit(1)
	}
}
