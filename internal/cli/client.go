package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

const clientHelp = `Available commands:
  navigate <url>               - Navigate to a URL
  click <selector>             - Click on an element
  type <selector> <text...>    - Type text into an input
  scroll <selector>            - Scroll an element into view
  scroll <x> <y>               - Scroll by an offset
  wait_for_selector <selector> - Wait for an element
  get_computed_styles <sel>    - Show computed styles
  mobile_mode <true|false>     - Toggle mobile viewport
  evaluate <script...>         - Evaluate JavaScript
  screenshot                   - Take a screenshot
  <tool> [json-arguments]      - Call any tool
  list-tools                   - List available tools
  wait <seconds>               - Pause between actions
  help                         - Show this help
  exit/quit                    - Exit`

func newClientCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Spawn a server subprocess and drive it over MCP",
		Long: `client starts "frontend-sniper serve" as a subprocess, connects to it over
stdio and sends it tool calls, the way an MCP host would.`,
	}
	cmd.PersistentFlags().StringVar(&outDir, "out-dir", ".", "directory screenshots are written to")

	// withSession connects to a fresh server for the duration of fn.
	withSession := func(cmd *cobra.Command, fn func(ctx context.Context, r *scriptRunner) error) error {
		ctx := cmd.Context()
		cs, err := a.spawn(ctx)
		if err != nil {
			return err
		}
		defer func() {
			fmt.Fprintln(cmd.ErrOrStderr(), "Closing connection to server...")
			cs.Close()
		}()
		return fn(ctx, &scriptRunner{cs: cs, out: cmd.OutOrStdout(), outDir: outDir, sleep: time.Sleep})
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list-tools",
			Short: "List the tools the server advertises",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, func(ctx context.Context, r *scriptRunner) error {
					return r.listTools(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "call <command...>",
			Short: "Run one command, e.g. \"navigate https://example.com\"",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, func(ctx context.Context, r *scriptRunner) error {
					_, err := r.exec(ctx, strings.Join(args, " "))
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "interactive",
			Short: "Read commands from stdin over one server connection",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, func(ctx context.Context, r *scriptRunner) error {
					return r.interactive(ctx, cmd.InOrStdin())
				})
			},
		},
		&cobra.Command{
			Use:   "run-script <file>",
			Short: "Execute commands from a script file, one per line",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open script file %s: %w", args[0], err)
				}
				defer f.Close()
				return withSession(cmd, func(ctx context.Context, r *scriptRunner) error {
					return r.runScript(ctx, f)
				})
			},
		},
	)
	return cmd
}

// spawn starts this binary in serve mode and connects to it.
func (a *app) spawn(ctx context.Context) (*mcp.ClientSession, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate server executable: %w", err)
	}
	args := []string{"serve"}
	if a.cfgFile != "" {
		args = append(args, "--config", a.cfgFile)
	}
	serverCmd := exec.Command(exe, args...)
	serverCmd.Stderr = os.Stderr

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "frontend-sniper-client",
		Version: a.version,
	}, nil)
	cs, err := client.Connect(ctx, &mcp.CommandTransport{Command: serverCmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return cs, nil
}

type scriptRunner struct {
	cs     *mcp.ClientSession
	out    io.Writer
	outDir string
	sleep  func(time.Duration)
}

func (r *scriptRunner) listTools(ctx context.Context) error {
	for tool, err := range r.cs.Tools(ctx, nil) {
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}
		fmt.Fprintf(r.out, "- %s: %s\n", tool.Name, tool.Description)
	}
	return nil
}

// exec runs one command line. It reports quit for exit and quit.
func (r *scriptRunner) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprintln(r.out, clientHelp)
		return false, nil
	case "list-tools":
		return false, r.listTools(ctx)
	case "wait":
		if len(fields) < 2 {
			return false, fmt.Errorf("wait requires duration in seconds")
		}
		seconds, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return false, fmt.Errorf("invalid wait duration %q", fields[1])
		}
		fmt.Fprintf(r.out, "Waiting %g seconds...\n", seconds)
		r.sleep(time.Duration(seconds * float64(time.Second)))
		return false, nil
	}

	name, args, err := parseCommand(line)
	if err != nil {
		return false, err
	}
	res, err := r.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return false, fmt.Errorf("failed to call %s: %w", name, err)
	}
	return false, printCallResult(r.out, res, r.outDir)
}

func (r *scriptRunner) interactive(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, "Starting interactive mode. Type 'help' for commands or 'exit' to quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "sniper> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		quit, err := r.exec(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
		if quit {
			fmt.Fprintln(r.out, "Exiting interactive mode...")
			return nil
		}
	}
}

// runScript executes every line of in. Blank lines and lines starting with #
// are skipped; a failing line is reported and the script continues.
func (r *scriptRunner) runScript(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	lineNum := 0
	fmt.Fprintln(r.out, strings.Repeat("=", 51))
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fmt.Fprintf(r.out, "Line %d: %s\n", lineNum, line)
		quit, err := r.exec(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "  Error: %v (line %d)\n", err, lineNum)
		}
		if quit {
			break
		}
		fmt.Fprintln(r.out)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading script: %w", err)
	}
	fmt.Fprintln(r.out, strings.Repeat("=", 51))
	fmt.Fprintln(r.out, "Script execution completed")
	return nil
}

// parseCommand turns a shorthand line such as "click #submit" into a tool
// call. Tools without a shorthand take an optional JSON object.
func parseCommand(line string) (string, map[string]any, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	need := func(what string) error {
		if rest == "" {
			return fmt.Errorf("%s requires %s", name, what)
		}
		return nil
	}

	switch name {
	case "navigate":
		if err := need("a URL"); err != nil {
			return "", nil, err
		}
		return name, map[string]any{"url": rest}, nil
	case "click", "wait_for_selector", "get_computed_styles":
		if err := need("a CSS selector"); err != nil {
			return "", nil, err
		}
		return name, map[string]any{"selector": rest}, nil
	case "type":
		sel, text, ok := strings.Cut(rest, " ")
		if !ok || sel == "" {
			return "", nil, fmt.Errorf("type requires a selector and text")
		}
		return name, map[string]any{"selector": sel, "text": text}, nil
	case "scroll":
		if err := need("a selector or x and y"); err != nil {
			return "", nil, err
		}
		if f := strings.Fields(rest); len(f) == 2 {
			x, errX := strconv.ParseFloat(f[0], 64)
			y, errY := strconv.ParseFloat(f[1], 64)
			if errX == nil && errY == nil {
				return name, map[string]any{"x": x, "y": y}, nil
			}
		}
		return name, map[string]any{"selector": rest}, nil
	case "mobile_mode":
		enable, err := strconv.ParseBool(rest)
		if err != nil {
			return "", nil, fmt.Errorf("invalid boolean value %q", rest)
		}
		return name, map[string]any{"enable": enable}, nil
	case "evaluate":
		if err := need("a script"); err != nil {
			return "", nil, err
		}
		return name, map[string]any{"script": rest}, nil
	}

	args := map[string]any{}
	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return "", nil, fmt.Errorf("arguments for %s must be a JSON object: %w", name, err)
		}
	}
	return name, args, nil
}

func printCallResult(w io.Writer, result *mcp.CallToolResult, dir string) error {
	if result.IsError {
		fmt.Fprint(w, "Error: ")
	} else {
		fmt.Fprint(w, "Success: ")
	}
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcp.TextContent:
			fmt.Fprintln(w, c.Text)
		case *mcp.ImageContent:
			path, err := saveImage(dir, c.Data, c.MIMEType)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Screenshot saved to: %s (size: %d bytes)\n", path, len(c.Data))
		default:
			fmt.Fprintf(w, "Unknown content type: %T\n", content)
		}
	}
	return nil
}
