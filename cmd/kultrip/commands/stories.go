package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kultrip/story-travel/pkg/client"
)

var DestinationsCmd = &cobra.Command{
	Use:   "destinations",
	Short: "List destinations with stories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(viper.GetString("server"))
		dests, err := c.Destinations(cmd.Context())
		if err != nil {
			return err
		}
		for _, d := range dests {
			fmt.Fprintln(cmd.OutOrStdout(), d)
		}
		return nil
	},
}

var StoriesCmd = &cobra.Command{
	Use:   "stories [destination]",
	Short: "Show the stories set in a destination",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(viper.GetString("server"))
		resp, err := c.Stories(cmd.Context(), strings.Join(args, " "))
		if client.IsNotFound(err) {
			return fmt.Errorf("no stories known for %q", strings.Join(args, " "))
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n%s\n\n", resp.Destination, resp.FunFact)
		for _, s := range resp.Stories {
			fmt.Fprintf(out, "  %s: %s\n", s.Story, s.Description)
		}
		return nil
	},
}

var DestinationCmd = &cobra.Command{
	Use:   "destination [story]",
	Short: "Find where a story takes place",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(viper.GetString("server"))
		resp, err := c.StoryDestination(cmd.Context(), strings.Join(args, " "))
		if client.IsNotFound(err) {
			return fmt.Errorf("no destination known for %q", strings.Join(args, " "))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Story, resp.Destination)
		return nil
	},
}
