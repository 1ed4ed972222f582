package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/pkg/client"
)

var ChatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"c"},
	Short:   "Chat with the travel assistant",
	Long: `Opens a session and starts an interactive chat. Type a message, or the
number of a suggestion to pick it. /reset starts over, /quit leaves.`,
	RunE: runChat,
}

func init() {
	ChatCmd.Flags().String("style", "", "traveler type sent with the itinerary request (e.g. family, solo)")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	style, _ := cmd.Flags().GetString("style")
	c := client.New(viper.GetString("server"))

	created, err := c.CreateSession(ctx, style)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return chatLoop(ctx, c, created.Session, cmd.InOrStdin(), cmd.OutOrStdout())
}

func chatLoop(ctx context.Context, c *client.Client, view *model.SessionView, in io.Reader, out io.Writer) error {
	sessionID := view.ID
	suggestions := printLanding(out, view)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			v, err := c.ResetSession(ctx, sessionID)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			suggestions = printLanding(out, v)
			continue
		}

		text, clicked := ResolveInput(input, suggestions)
		var res *model.TurnResult
		var err error
		if clicked {
			res, err = c.Suggest(ctx, sessionID, text)
		} else {
			res, err = c.Send(ctx, sessionID, text)
		}
		switch {
		case client.IsBusy(err):
			fmt.Fprintln(out, "Still preparing your itinerary, please wait.")
			continue
		case err != nil:
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		case res.Discarded:
			continue
		}

		for _, msg := range res.Appended {
			if msg.Role != model.RoleAssistant {
				continue
			}
			suggestions = printMessage(out, msg)
		}
		if !res.Session.Started {
			suggestions = printLanding(out, res.Session)
		}
	}
}

// ResolveInput maps a suggestion number to its text. Anything else is sent as typed.
func ResolveInput(input string, suggestions []string) (string, bool) {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(suggestions) {
		return input, false
	}
	return suggestions[n-1], true
}

func printLanding(out io.Writer, view *model.SessionView) []string {
	fmt.Fprintf(out, "\n%s\n", view.Placeholder)
	printSuggestions(out, view.Starters)
	return view.Starters
}

func printMessage(out io.Writer, msg model.Message) []string {
	fmt.Fprintf(out, "\n%s\n", msg.Content)
	printSuggestions(out, msg.Suggestions)
	return msg.Suggestions
}

func printSuggestions(out io.Writer, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintln(out)
	for i, s := range suggestions {
		fmt.Fprintf(out, "  [%d] %s\n", i+1, s)
	}
}
