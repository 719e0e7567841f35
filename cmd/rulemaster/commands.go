package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/binaryash/gmail-rulemaster/internal/credential"
	"github.com/binaryash/gmail-rulemaster/internal/model"
)

// maxMessages returns the --max flag when set, else the configured limit.
func (c *cli) maxMessages(cmd *cobra.Command) int {
	if cmd.Flags().Changed("max") {
		n, _ := cmd.Flags().GetInt("max")
		return n
	}
	return c.cfg.Sync.MaxMessages
}

func (c *cli) syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy recent messages into the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.Sync(cmd.Context(), c.maxMessages(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d messages\n", n)
			return nil
		},
	}
	cmd.Flags().Int("max", 0, "maximum number of messages to sync (default from config)")
	return cmd
}

func (c *cli) processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Apply the rule file to stored messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.Process(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d actions\n", n)
			return nil
		},
	}
}

func (c *cli) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync, then process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			synced, applied, err := c.app.Run(cmd.Context(), c.maxMessages(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d messages, applied %d actions\n", synced, applied)
			return nil
		},
	}
	cmd.Flags().Int("max", 0, "maximum number of messages to sync (default from config)")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync and process on an interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.log.Info().Dur("interval", c.cfg.Watch.Interval).Msg("watching mailbox")
			return c.app.Watch(cmd.Context())
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored messages and applied actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.app.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (c *cli) rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the rule set a processing run would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := c.app.Rules(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rs)
		},
	}
}

func (c *cli) actionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions [email-id]",
		Short: "List applied actions, optionally for one message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var emailID string
			if len(args) == 1 {
				emailID = args[0]
			}
			entries, err := c.app.Actions(cmd.Context(), emailID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "APPLIED\tEMAIL\tRULE\tACTION\tVALUE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.AppliedAt.Local().Format("2006-01-02 15:04"), e.EmailID, e.RuleID, e.ActionType, e.ActionValue)
			}
			return w.Flush()
		},
	}
}

func (c *cli) credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store provider secrets in the system keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "imap-password",
		Short: "Read the IMAP password from stdin and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.IMAP.Username == "" {
				return fmt.Errorf("imap.username is not configured")
			}
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := c.app.SetCredential(credential.IMAPPasswordKey(c.cfg.IMAP.Username), password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored IMAP password for %s\n", c.cfg.IMAP.Username)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "gmail-token <token.json>",
		Short: "Import an authorized Gmail OAuth token file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading token: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}
			if err := c.app.SetCredential(credential.GmailTokenKey, string(data)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stored Gmail token")
			return nil
		},
	})

	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading input: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty input")
	}
	return line, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStats(out io.Writer, s *model.Stats) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Total emails\t%d\n", s.TotalEmails)
	fmt.Fprintf(w, "Unread\t%d\n", s.UnreadEmails)

	fmt.Fprintln(w, "\nBy day")
	for _, d := range s.EmailsByDay {
		fmt.Fprintf(w, "  %s\t%d\n", d.Date, d.Count)
	}

	fmt.Fprintln(w, "\nTop senders")
	for _, sc := range s.TopSenders {
		fmt.Fprintf(w, "  %s\t%d\n", sc.Sender, sc.Count)
	}

	fmt.Fprintln(w, "\nLabels")
	for _, l := range s.Labels {
		fmt.Fprintf(w, "  %s\t%d\n", l.Label, l.Count)
	}

	fmt.Fprintln(w, "\nActions by rule")
	for _, r := range s.RuleActions {
		fmt.Fprintf(w, "  %s\t%s\t%d\n", r.RuleID, r.ActionType, r.Count)
	}

	return w.Flush()
}
