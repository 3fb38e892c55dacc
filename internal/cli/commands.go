package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/frontend-sniper/frontend-sniper/internal/endpoint"
	"github.com/frontend-sniper/frontend-sniper/internal/tools"
)

func newToolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog",
		Args:  cobra.NoArgs,
		// The catalog needs neither configuration nor a browser.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tools.Catalog())
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, s := range tools.Catalog() {
				fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print names, descriptions and input schemas as JSON")
	return cmd
}

func newCallCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Run one tool against the browser and print the result",
		Example: `  frontend-sniper call navigate '{"url":"https://example.com"}'
  frontend-sniper call screenshot --out-dir /tmp`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
				if !json.Valid(raw) {
					return fmt.Errorf("arguments are not valid JSON: %s", args[1])
				}
			}

			sess, d := a.stack()
			defer sess.Close()

			res := d.Dispatch(cmd.Context(), args[0], raw)
			if err := printResult(cmd.OutOrStdout(), res, outDir); err != nil {
				return err
			}
			if res.IsError {
				return errors.New("tool call failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory screenshots are written to")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the browser behind the debugging endpoint and its open pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b := a.cfg.Browser
			v, err := endpoint.NewResolver(b.Host, b.Port, b.DiscoveryTimeout).Discover(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Endpoint:  %s\n", b.Address())
			fmt.Fprintf(out, "Browser:   %s\n", v.Browser)
			fmt.Fprintf(out, "Protocol:  %s\n", v.ProtocolVersion)
			fmt.Fprintf(out, "WebSocket: %s\n", v.WebSocketDebuggerURL)

			conn, err := a.dialer.Dial(ctx, v.WebSocketDebuggerURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			pages, err := conn.Pages(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pages:     %d\n", len(pages))
			for i, p := range pages {
				fmt.Fprintf(out, "  [%d] %s %s\n", i, p.Title, p.URL)
			}
			return nil
		},
	}
}

// printResult writes text blocks to w and saves image blocks under dir.
func printResult(w io.Writer, res *tools.Result, dir string) error {
	if res.IsError {
		fmt.Fprint(w, "Error: ")
	} else {
		fmt.Fprint(w, "Success: ")
	}
	for _, b := range res.Content {
		switch b.Type {
		case tools.ImageBlock:
			path, err := saveImage(dir, b.Data, b.MIMEType)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Screenshot saved to: %s (size: %d bytes)\n", path, len(b.Data))
		default:
			fmt.Fprintln(w, b.Text)
		}
	}
	return nil
}

func saveImage(dir string, data []byte, mimeType string) (string, error) {
	ext := ".jpg"
	if mimeType == "image/png" {
		ext = ".png"
	}
	name := fmt.Sprintf("screenshot_%s%s", time.Now().Format("20060102_150405.000"), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}
	return path, nil
}
