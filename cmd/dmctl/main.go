// dmctl drives dialogue manager sessions from a terminal.
//
// Usage:
//
//	dmctl chat               run a session in-process
//	dmctl remote             talk to a dm-server over MQTT
//	dmctl parse <act>        parse and echo a dialogue act
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sds/internal/config"
	"sds/internal/domain"
	"sds/internal/mqtt"
	"sds/internal/sessions"
)

var (
	flagType    string
	flagTick    time.Duration
	flagDebug   bool
	flagSession string
)

var rootCmd = &cobra.Command{
	Use:           "dmctl",
	Short:         "Dialogue manager console",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a dialogue manager session in-process",
	Long: `Start a local session and type user acts at the prompt.

Input:
  inform(food=chinese)&request(area)   single act hypothesis
  /nbest 0.7 hello() | 0.3 bye()       n-best list
  /new /flush /end /stop               control commands
  /quit                                leave`,
	RunE: runChat,
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Drive a session on a dm-server over MQTT",
	RunE:  runRemote,
}

var parseCmd = &cobra.Command{
	Use:   "parse <act>",
	Short: "Parse a dialogue act and print its canonical and wire forms",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printParsed(cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagType, "type", "", "dialogue manager type (default DM_TYPE)")
	rootCmd.PersistentFlags().DurationVar(&flagTick, "tick", 0, "main loop sleep (default DM_MAIN_LOOP_SLEEP)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug logging")
	remoteCmd.Flags().StringVar(&flagSession, "session", "", "session id (default random)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(parseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConsole() (config.ConsoleConfig, *slog.Logger, error) {
	cfg, err := config.LoadConsoleConfig()
	if err != nil {
		return config.ConsoleConfig{}, nil, err
	}
	if flagType != "" {
		cfg.DMType = flagType
	}
	if flagTick > 0 {
		cfg.MainLoopSleep = flagTick
	}
	if flagDebug {
		cfg.Debug = true
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// localPort feeds a session hosted by an in-process registry.
type localPort struct {
	registry  *sessions.Registry
	sessionID string
}

func (p localPort) SendCommand(_ context.Context, cmd domain.Command) error {
	return p.registry.SendCommand(p.sessionID, cmd)
}

func (p localPort) SendHypothesis(_ context.Context, h domain.Hypothesis) error {
	return p.registry.SendHypothesis(p.sessionID, h)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConsole()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	registry, err := sessions.NewRegistry(sessions.Config{
		ManagerType: cfg.DMType,
		Tick:        cfg.MainLoopSleep,
		Debug:       cfg.Debug,
	}, logger)
	if err != nil {
		return err
	}

	printer := &consolePrinter{out: cmd.OutOrStdout()}
	sessionID := "console"
	if _, err := registry.Start(ctx, sessionID, printer); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		registry.StopAll(stopCtx)
	}()

	port := localPort{registry: registry, sessionID: sessionID}
	if err := port.SendCommand(ctx, domain.NewCommand(domain.CommandNewDialogue, domain.ComponentHub, domain.ComponentDM)); err != nil {
		return err
	}
	return runConsole(ctx, port, printer)
}

func runRemote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConsole()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	sessionID := flagSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	client := mqtt.NewClient(mqtt.HubConfig{
		BrokerURL:   cfg.MQTTBrokerURL,
		ClientID:    "dmctl-" + sessionID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
	}, sessionID, logger)
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}

	printer := &consolePrinter{out: cmd.OutOrStdout()}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-client.Acts():
				_ = printer.PublishAct(ctx, sessionID, msg)
			case ev := <-client.Events():
				_ = printer.PublishEvent(ctx, sessionID, ev)
			}
		}
	}()

	printer.printf("session %s via %s\n", sessionID, cfg.MQTTBrokerURL)
	if err := client.SendCommand(ctx, domain.NewCommand(domain.CommandNewDialogue, domain.ComponentHub, domain.ComponentDM)); err != nil {
		return err
	}
	return runConsole(ctx, client, printer)
}

func printParsed(w io.Writer, text string) error {
	act, err := domain.ParseAct(text)
	if err != nil {
		return err
	}
	wire, err := domain.EncodeMessage(domain.SingleAct{Act: act})
	if err != nil {
		return err
	}
	fmt.Fprintln(w, act.String())
	fmt.Fprintln(w, string(wire))
	return nil
}
