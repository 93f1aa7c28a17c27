package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lanchat/internal/app"
	"lanchat/internal/client"
	"lanchat/internal/config"
	"lanchat/internal/logging"
	"lanchat/pkg/types"
)

func main() {
	root := &cobra.Command{
		Use:   "lanchat",
		Short: "LAN chat with per-message integrity checking",
	}
	root.AddCommand(serveCommand(), clientCommand())

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("command failed")
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.LogLevel); err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- application.Start(ctx) }()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-signals:
				logrus.WithField("signal", sig.String()).Info("signal received")
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			return application.Stop(shutdownCtx)
		},
	}
}

func clientCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a chat server from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(
				client.WithURL(serverURL),
				client.WithHandlers(terminalHandlers()),
			)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("connected; type a message, /history [n], or /quit")

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit":
					return nil
				case strings.HasPrefix(line, "/history"):
					limit := 0
					if fields := strings.Fields(line); len(fields) > 1 {
						if n, err := strconv.Atoi(fields[1]); err == nil {
							limit = n
						}
					}
					if err := c.RequestHistory(limit); err != nil {
						fmt.Fprintln(os.Stderr, "history request failed:", err)
					}
				default:
					if err := c.Send(line); err != nil {
						fmt.Fprintln(os.Stderr, "send failed:", err)
					}
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "ws://localhost:5000/ws", "websocket endpoint")
	return cmd
}

func terminalHandlers() client.Handlers {
	printMessage := func(m client.VerifiedMessage) {
		marker := ""
		if !m.LocalValid {
			marker = " [integrity check failed]"
		}
		fmt.Printf("[%s] %s: %s%s\n", m.Timestamp.Local().Format(time.Kitchen), m.Username, m.Text, marker)
	}

	return client.Handlers{
		OnMessage: printMessage,
		OnHistory: func(history []client.VerifiedMessage) {
			for _, m := range history {
				printMessage(m)
			}
		},
		OnJoined: func(p types.PresencePayload) {
			fmt.Printf("* %s joined\n", p.Username)
		},
		OnLeft: func(p types.PresencePayload) {
			fmt.Printf("* %s left\n", p.Username)
		},
		OnTyping: func(p types.TypingPayload) {
			fmt.Printf("* %s is typing...\n", p.Username)
		},
		OnMessageError: func(p types.MessageErrorPayload) {
			fmt.Fprintf(os.Stderr, "message rejected (%s): %s\n", p.Reason, p.Error)
		},
		OnProfileRequired: func(p types.ProfileRequiredPayload) {
			fmt.Println("*", p.Message)
		},
		OnDisconnect: func(err error) {
			fmt.Fprintln(os.Stderr, "connection lost:", err)
		},
	}
}
