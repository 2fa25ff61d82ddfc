// Package interactive provides the readline command loop for the
// coop-chat client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/coop-protocol/coop-go/pkg/discovery"
	"github.com/coop-protocol/coop-go/pkg/service"
	"github.com/coop-protocol/coop-go/pkg/wire"
)

// Chat drives the interactive session. Plain input lines are broadcast
// as chat messages; lines starting with "/" are commands.
type Chat struct {
	client   *service.Client
	requests *JoinRequests
	browser  discovery.Browser
	rl       *readline.Instance
}

// New creates the interactive handler. browser may be nil when local
// discovery is disabled.
func New(client *service.Client, requests *JoinRequests, browser discovery.Browser) (*Chat, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "coop> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Chat{
		client:   client,
		requests: requests,
		browser:  browser,
		rl:       rl,
	}
	if requests != nil {
		requests.SetOutput(rl.Stdout())
	}
	return c, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use this for log output to avoid clobbering the input line.
func (c *Chat) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (c *Chat) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the command loop. It returns when the user quits or ctx
// is cancelled; cancel is invoked on quit.
func (c *Chat) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if !strings.HasPrefix(input, "/") {
			c.client.SendMessage(input)
			continue
		}

		parts := strings.Fields(input[1:])
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "users", "list":
			c.cmdUsers()

		case "connect":
			c.cmdConnect(args)

		case "discover":
			c.cmdDiscover(ctx)

		case "join":
			c.cmdJoin(ctx, args)

		case "accept":
			c.cmdAnswer(true)

		case "deny":
			c.cmdAnswer(false)

		case "editor":
			c.cmdEditor(args)

		case "kick":
			c.cmdKick(args)

		case "ban":
			c.cmdBan(args, false)

		case "bankick":
			c.cmdBan(args, true)

		case "status":
			c.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: /%s (type /help for commands)\n", cmd)
		}
	}
}

func (c *Chat) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Type a message to send it to all participants. Commands:
  /connect <host> <port>  - Join the session reachable at host:port
  /discover               - List sessions announced on the local network
  /join <user>            - Join the session announced by user
  /users                  - List participants
  /editor <hash> <file> <command...> - Broadcast an editor command
  /accept, /deny          - Answer the oldest pending join request
  /kick <nick>            - Drop a participant's connections
  /ban <nick>             - Ban a user (persists across restarts)
  /bankick <nick>         - Ban a user and drop their connections
  /status                 - Show the local session state
  /help                   - Show this help
  /quit                   - Exit`)
}

func (c *Chat) cmdUsers() {
	participants := c.client.Participants()
	if len(participants) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No participants connected.")
		return
	}
	for _, nick := range participants {
		fmt.Fprintf(c.rl.Stdout(), "  %s\n", nick)
	}
}

func (c *Chat) cmdConnect(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: /connect <host> <port>")
		return
	}
	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil || port == 0 {
		fmt.Fprintf(c.rl.Stdout(), "Invalid port: %s\n", args[1])
		return
	}
	if err := c.client.ConnectToHost(args[0], uint16(port)); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Connect failed: %v\n", err)
	}
}

func (c *Chat) cmdDiscover(ctx context.Context) {
	if c.browser == nil {
		fmt.Fprintln(c.rl.Stdout(), "Local discovery is disabled (start with -mdns).")
		return
	}

	fmt.Fprintln(c.rl.Stdout(), "Browsing for sessions...")
	browseCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	sessions, err := c.browser.Browse(browseCtx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Discovery error: %v\n", err)
		return
	}

	found := 0
	for svc := range sessions {
		found++
		fmt.Fprintf(c.rl.Stdout(), "  %s  port %d  %s\n",
			svc.Username, svc.Port, strings.Join(svc.Addresses, ", "))
	}
	if found == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No sessions found.")
	}
}

func (c *Chat) cmdJoin(ctx context.Context, args []string) {
	if c.browser == nil {
		fmt.Fprintln(c.rl.Stdout(), "Local discovery is disabled (start with -mdns).")
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: /join <user>")
		return
	}

	svc, err := c.browser.FindUser(ctx, args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Join failed: %v\n", err)
		return
	}
	if len(svc.Addresses) == 0 {
		fmt.Fprintf(c.rl.Stdout(), "Session of %s has no reachable address.\n", args[0])
		return
	}

	addr := svc.Addresses[0]
	fmt.Fprintf(c.rl.Stdout(), "Connecting to %s...\n", net.JoinHostPort(addr, strconv.Itoa(int(svc.Port))))
	if err := c.client.ConnectToHost(addr, svc.Port); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Connect failed: %v\n", err)
	}
}

func (c *Chat) cmdAnswer(accept bool) {
	if c.requests == nil || !c.requests.Answer(accept) {
		fmt.Fprintln(c.rl.Stdout(), "No pending join request.")
	}
}

// cmdEditor broadcasts an editor command, mainly useful for testing
// editor integrations against this client.
func (c *Chat) cmdEditor(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: /editor <project-hash> <file> <command...>")
		return
	}
	c.client.SendEditorCommand(wire.EditorCommand{
		ProjectHash: args[0],
		FileName:    args[1],
		Command:     strings.Join(args[2:], " "),
	})
}

func (c *Chat) cmdKick(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: /kick <nick>")
		return
	}
	c.client.KickUser(args[0])
}

func (c *Chat) cmdBan(args []string, kick bool) {
	if len(args) != 1 {
		if kick {
			fmt.Fprintln(c.rl.Stdout(), "Usage: /bankick <nick>")
		} else {
			fmt.Fprintln(c.rl.Stdout(), "Usage: /ban <nick>")
		}
		return
	}
	if kick {
		c.client.BanKickUser(args[0])
	} else {
		c.client.BanUser(args[0])
	}
}

func (c *Chat) cmdStatus() {
	out := c.rl.Stdout()
	fmt.Fprintf(out, "Nickname:     %s\n", c.client.Nickname())
	fmt.Fprintf(out, "Listening:    %v (port %d)\n", c.client.IsListening(), c.client.Port())
	fmt.Fprintf(out, "Participants: %d\n", len(c.client.Participants()))
	if c.requests != nil {
		fmt.Fprintf(out, "Pending join requests: %d\n", c.requests.Pending())
	}
}
