// Package main provides an interactive terminal client for the chat relay.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xiaot623/chatrelay/internal/client"
	"github.com/xiaot623/chatrelay/internal/domain"
)

// chatter is satisfied by both the SSE and the websocket client.
type chatter interface {
	Chat(ctx context.Context, req *client.ChatRequest, handler client.FrameHandler) (string, error)
}

type options struct {
	addr      string
	userID    string
	sessionID string
	useWS     bool
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:   "chatcli",
		Short: "Chat with the relay from a terminal",
		Long:  "chatcli reads lines from stdin, sends each as a user turn and prints the streamed reply.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.addr, "url", "http://localhost:8000", "relay base URL")
	root.PersistentFlags().StringVar(&opts.userID, "user", domain.DefaultUserID, "user id")
	root.PersistentFlags().StringVar(&opts.sessionID, "session", "", "session id to resume")
	root.Flags().BoolVar(&opts.useWS, "ws", false, "use the websocket endpoint instead of SSE")

	root.AddCommand(historyCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// --- chatcli history ---

func historyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the messages of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			messages, err := client.NewClient(opts.addr).GetSessionMessages(cmd.Context(), opts.userID, opts.sessionID)
			if err != nil {
				return err
			}
			cyan := color.New(color.FgCyan)
			green := color.New(color.FgGreen)
			for _, m := range messages {
				c := green
				if m.Role == "user" {
					c = cyan
				}
				c.Printf("%s: ", m.Role)
				fmt.Println(m.Content)
			}
			return nil
		},
	}
}

func runChat(ctx context.Context, opts *options) error {
	var c chatter
	if opts.useWS {
		wsURL, err := websocketURL(opts.addr)
		if err != nil {
			return err
		}
		ws, err := client.DialWS(ctx, wsURL)
		if err != nil {
			return err
		}
		defer ws.Close()
		c = ws
	} else {
		c = client.NewClient(opts.addr)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)

	cyan.Printf("Connected to %s\n", opts.addr)
	fmt.Println("Type a message and press Enter to send. /quit to exit.")

	sessionID := opts.sessionID
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" {
			fmt.Println("Bye!")
			return nil
		}

		req := client.NewChatRequest(opts.userID, sessionID, input)
		resolved, err := c.Chat(ctx, req, func(frame domain.Frame) error {
			switch frame.Type {
			case domain.FrameTextDelta:
				fmt.Print(frame.Delta)
			case domain.FrameTextEnd:
				fmt.Println()
			case domain.FrameError:
				red.Printf("error: %s\n", frame.ErrorText)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			red.Printf("request failed: %v\n", err)
			continue
		}
		if resolved != "" && resolved != sessionID {
			sessionID = resolved
			gray.Printf("session %s\n", sessionID)
		}
	}
}

// websocketURL maps http(s)://host to ws(s)://host/chat/ws.
func websocketURL(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", addr, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat/ws"
	return u.String(), nil
}
