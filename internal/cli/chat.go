package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/kaviyashree6/empathyconnect/pkg/chatclient"
	"github.com/kaviyashree6/empathyconnect/pkg/sse"
)

const crisisBanner = "If you are in danger or thinking about ending your life, please contact a local crisis helpline or emergency services now."

var (
	chatSession  string
	chatLanguage string
	chatUser     string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk with the companion",
	Long: `Start an interactive conversation.

Each reply is preceded by the emotion the server detected in your message.
Type /history to show the conversation so far and /quit to leave.

Examples:
  empathy chat
  empathy chat --language ta
  empathy chat --session 6f1c...`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "resume an existing session id")
	chatCmd.Flags().StringVarP(&chatLanguage, "language", "l", "en", "reply language code")
	chatCmd.Flags().StringVar(&chatUser, "user", "", "optional user id attached to alerts")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	sessionID := chatSession
	if sessionID == "" {
		session, err := api.createSession(ctx, chatUser, chatLanguage)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = session.ID
	}

	bold := color.New(color.Bold).SprintFunc()
	you := color.New(color.FgGreen, color.Bold).SprintFunc()
	companion := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	client := chatclient.New(api.chatURL(),
		chatclient.WithLogger(log),
		chatclient.WithStateHook(func(_, to chatclient.TurnState) {
			switch to {
			case chatclient.StateRateLimited:
				fmt.Fprintln(out, faint("(busy, retrying shortly...)"))
			case chatclient.StateConnectionError:
				fmt.Fprintln(out, faint("(connection problem, retrying...)"))
			}
		}),
	)
	conv := chatclient.NewConversation(client,
		chatclient.WithSessionID(sessionID),
		chatclient.WithLanguage(chatLanguage),
		chatclient.WithUserID(chatUser),
	)

	fmt.Fprintln(out, bold("EmpathyConnect"), faint("session "+sessionID))
	fmt.Fprintln(out, "Share what's on your mind. Type /quit to leave.")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, you("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			printHistory(out, conv.History())
			continue
		}

		fmt.Fprint(out, companion("Companion: "))
		_, err := conv.Send(ctx, line, func(ev sse.Event) {
			switch ev.Type {
			case sse.EventEmotion:
				printEmotion(out, ev.Emotion)
			case sse.EventDelta:
				fmt.Fprint(out, ev.Text)
			}
		})
		fmt.Fprintln(out)

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(out, color.RedString("Error: %v", err))
			if chatclient.IsRetryable(err) {
				fmt.Fprintln(out, faint("You can send your message again in a moment."))
			}
		}
		fmt.Fprintln(out)
	}
}

func printEmotion(out io.Writer, e chatapi.EmotionAnalysis) {
	label := fmt.Sprintf("[%s %d/10, risk %s]", e.Emotion, e.Intensity, e.RiskLevel)
	switch e.RiskLevel {
	case chatapi.RiskHigh:
		fmt.Fprintln(out, color.New(color.FgRed, color.Bold).Sprint(label))
		fmt.Fprintln(out, color.RedString(crisisBanner))
	case chatapi.RiskMedium:
		fmt.Fprintln(out, color.YellowString(label))
	default:
		fmt.Fprintln(out, color.New(color.Faint).Sprint(label))
	}
}

func printHistory(out io.Writer, history []chatapi.ChatMessage) {
	if len(history) == 0 {
		fmt.Fprintln(out, "No messages yet.")
		return
	}
	for _, m := range history {
		fmt.Fprintf(out, "%-9s %s\n", m.Role+":", m.Content)
	}
}
