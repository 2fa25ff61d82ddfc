// Command coop-chat is a terminal client for the cooperation chat
// protocol.
//
// It listens for peers on every local interface, joins existing
// sessions by host and port (or via mDNS discovery), and exchanges
// chat messages and editor commands with all connected participants.
//
// Usage:
//
//	coop-chat [flags]
//
// Flags:
//
//	-user string          Announced user name (default: from environment)
//	-config string        Preferences file path (default: user config dir)
//	-port uint            Listen port (default 42000)
//	-connect string       Session to join on startup, as host:port
//	-auto-accept          Accept inbound connections without confirmation
//	-protocol-log string  Write protocol events to this .clog file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-mdns                 Announce the session and enable /discover and /join
//	-rejoin               Rejoin the session automatically after a loss
//
// Examples:
//
//	# Start a session and wait for peers
//	coop-chat -user alice -auto-accept
//
//	# Join a running session, with protocol logging
//	coop-chat -user bob -connect 192.168.1.10:42000 -protocol-log bob.clog
//
//	# Announce via mDNS and rejoin automatically after network hiccups
//	coop-chat -user carol -mdns -rejoin -connect 192.168.1.10:42000
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/coop-protocol/coop-go/cmd/coop-chat/interactive"
	"github.com/coop-protocol/coop-go/pkg/config"
	"github.com/coop-protocol/coop-go/pkg/connection"
	"github.com/coop-protocol/coop-go/pkg/discovery"
	"github.com/coop-protocol/coop-go/pkg/log"
	"github.com/coop-protocol/coop-go/pkg/service"
	"github.com/coop-protocol/coop-go/pkg/wire"
)

// DefaultPort is the listen port used when none is given.
const DefaultPort = 42000

type cliConfig struct {
	User        string
	ConfigFile  string
	Port        uint
	Connect     string
	AutoAccept  bool
	ProtocolLog string
	LogLevel    string
	MDNS        bool
	Rejoin      bool
}

var cli cliConfig

func init() {
	flag.StringVar(&cli.User, "user", "", "Announced user name (default: from environment)")
	flag.StringVar(&cli.ConfigFile, "config", "", "Preferences file path")
	flag.UintVar(&cli.Port, "port", DefaultPort, "Listen port")
	flag.StringVar(&cli.Connect, "connect", "", "Session to join on startup, as host:port")
	flag.BoolVar(&cli.AutoAccept, "auto-accept", false, "Accept inbound connections without confirmation")
	flag.StringVar(&cli.ProtocolLog, "protocol-log", "", "Write protocol events to this .clog file")
	flag.StringVar(&cli.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&cli.MDNS, "mdns", false, "Announce the session and enable /discover and /join")
	flag.BoolVar(&cli.Rejoin, "rejoin", false, "Rejoin the session automatically after a loss")
}

func main() {
	flag.Parse()

	logger := setupSlog(cli.LogLevel)

	prefs, err := loadPreferences()
	if err != nil {
		logger.Error("failed to load preferences", "error", err)
		os.Exit(1)
	}
	if cli.AutoAccept && !prefs.AutoAcceptConnections() {
		if err := prefs.SetAutoAcceptConnections(true); err != nil {
			logger.Warn("failed to persist auto-accept setting", "error", err)
		}
	}

	protocolLog, closeLog, err := setupProtocolLog(logger)
	if err != nil {
		logger.Error("failed to open protocol log", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	requests := interactive.NewJoinRequests()

	// Replaced with the readline-coordinated writer once the command
	// loop is up.
	var out io.Writer = os.Stdout

	var rejoiner *connection.Rejoiner

	client := service.NewClient(service.ClientConfig{
		Username: cli.User,
		Prefs:    prefs,
		Acceptor: requests,
		Logger:   protocolLog,
		OnParticipantJoined: func(nick string) {
			fmt.Fprintf(out, "* %s joined\n", nick)
		},
		OnParticipantLeft: func(nick string) {
			fmt.Fprintf(out, "* %s left\n", nick)
		},
		OnMessage: func(sender, text string) {
			fmt.Fprintf(out, "<%s> %s\n", sender, text)
		},
		OnEditorCommand: func(sender string, cmd wire.EditorCommand) {
			fmt.Fprintf(out, "* editor command from %s for %s\n", sender, cmd.FileName)
		},
		OnConnectionError: func(msg string) {
			logger.Warn("connection error", "detail", msg)
		},
		OnCannotConnect: func() {
			fmt.Fprintln(out, "* could not join the session")
			if rejoiner != nil {
				rejoiner.SessionLost()
			}
		},
		OnRejected: func(reason string) {
			logger.Info("connection rejected", "reason", reason)
		},
	})

	port, err := client.StartListening(uint16(cli.Port))
	if err != nil {
		logger.Error("failed to start listening", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	logger.Info("listening", "port", port, "nickname", client.Nickname())

	var browser discovery.Browser
	if cli.MDNS {
		advertiser := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{})
		if err := advertiser.Advertise(discovery.SessionInfo{Username: client.Username(), Port: port}); err != nil {
			logger.Warn("failed to announce session", "error", err)
		} else {
			defer advertiser.Stop()
			logger.Info("session announced via mDNS")
		}
		browser = discovery.NewMDNSBrowser(discovery.BrowserConfig{})
	}

	if cli.Connect != "" {
		host, connectPort, err := splitHostPort(cli.Connect)
		if err != nil {
			logger.Error("invalid -connect address", "error", err)
			os.Exit(1)
		}

		if cli.Rejoin {
			rejoiner = connection.NewRejoiner(connection.RejoinerConfig{
				Join: func(ctx context.Context) error {
					return client.ConnectToHost(host, connectPort)
				},
				OnRejoining: func(attempt int, delay time.Duration) {
					logger.Info("rejoining session", "attempt", attempt, "delay", delay.String())
				},
			})
		}

		if err := client.ConnectToHost(host, connectPort); err != nil {
			logger.Warn("initial connect failed", "error", err)
		} else if rejoiner != nil {
			rejoiner.Joined()
		}
	}
	if rejoiner != nil {
		defer rejoiner.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chat, err := interactive.New(client, requests, browser)
	if err != nil {
		logger.Error("failed to start interactive mode", "error", err)
		os.Exit(1)
	}
	out = chat.Stdout()
	logger = slog.New(slog.NewTextHandler(chat.Stdout(), &slog.HandlerOptions{Level: parseLevel(cli.LogLevel)}))
	go chat.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	client.DisconnectConnections()
}

func setupSlog(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadPreferences opens the preferences file, defaulting to
// <user-config-dir>/coop-chat/preferences.yaml.
func loadPreferences() (*config.FileStore, error) {
	path := cli.ConfigFile
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine config directory: %w", err)
		}
		path = filepath.Join(dir, "coop-chat", "preferences.yaml")
	}
	return config.LoadFileStore(path)
}

// setupProtocolLog builds the protocol event logger: a .clog file when
// requested, plus slog output at debug level.
func setupProtocolLog(logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger

	closeLog := func() {}
	if cli.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(cli.ProtocolLog)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fileLogger)
		closeLog = func() { _ = fileLogger.Close() }
	}
	if cli.LogLevel == "debug" {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeLog, nil
	case 1:
		return loggers[0], closeLog, nil
	default:
		return log.NewMultiLogger(loggers...), closeLog, nil
	}
}

func splitHostPort(address string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, uint16(port), nil
}
