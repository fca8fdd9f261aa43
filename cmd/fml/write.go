package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alphabot-ai/fmylife/internal/client"
	"github.com/alphabot-ai/fmylife/internal/model"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		category string
		author   string
	)
	cmd := &cobra.Command{
		Use:   "submit <text>...",
		Short: "Submit a story for moderation (login required)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			story := model.NewStory(author, model.Category(category), strings.Join(args, " "))
			if err := a.account.Submit(cmd.Context(), story); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Story submitted for moderation.\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "miscellaneous", "love, money, kids, work, health, sex or miscellaneous")
	cmd.Flags().StringVar(&author, "author", "Anonymous", "Name shown with the story")
	return cmd
}

func newVoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <id> <agree|deserved>",
		Short: "Vote on a story (login required)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.account.Vote(cmd.Context(), model.ByID(args[0]), model.VoteType(args[1])); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Voted %s on #%s.\n", args[1], args[0])
			return nil
		},
	}
}

func newCommentCmd(a *app) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "comment <id> <text>...",
		Short: "Comment on a story (login required)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comment := model.NewComment(strings.Join(args[1:], " "), url)
			if err := a.account.Comment(cmd.Context(), model.ByID(args[0]), comment); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Commented on #%s.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Link shown with your name")
	return cmd
}

func newModCmd(a *app) *cobra.Command {
	mod := &cobra.Command{
		Use:   "mod",
		Short: "Moderate submitted stories",
	}

	view := &cobra.Command{
		Use:   "view [id]",
		Short: "List pending story ids, or show one pending story (login required)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				story, err := a.account.Unmoderated(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printStory(w, story)
				return nil
			}
			ids, err := a.account.AllUnmoderated(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				printf(w, "Nothing to moderate.\n")
			}
			for _, id := range ids {
				printf(w, "%s\n", id)
			}
			return nil
		},
	}

	last := &cobra.Command{
		Use:   "last",
		Short: "The story moderated most recently (login required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			story, err := a.account.LastModerated(cmd.Context())
			if err != nil {
				return err
			}
			printStory(cmd.OutOrStdout(), story)
			return nil
		},
	}

	mod.AddCommand(view, last,
		newVerdictCmd(a, model.Approve, "Vote to publish a story (login required)"),
		newVerdictCmd(a, model.Reject, "Vote to reject a story (login required)"),
	)
	return mod
}

func newVerdictCmd(a *app, verdict model.ModerationType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(verdict) + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.account.Moderate(cmd.Context(), model.ByID(args[0]), verdict); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Moderated #%s: %s.\n", args[0], verdict)
			return nil
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and remember the session",
		Long: `Log in and remember the session token in the config file.

The password is taken from --password, then FML_PASSWORD, then stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("FML_PASSWORD")
			}
			if password == "" {
				if stdinIsTerminal() {
					printf(cmd.ErrOrStderr(), "Password: ")
				}
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if err := a.account.Authenticate(cmd.Context(), args[0], password); err != nil {
				return err
			}
			if err := a.saveSession(args[0]); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			printf(cmd.OutOrStdout(), "Logged in as %s.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.account.Logout(cmd.Context()); err != nil {
				return err
			}
			if err := a.saveSession(""); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			printf(cmd.OutOrStdout(), "Logged out.\n")
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the resolved configuration and session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			host := string(client.Primary)
			if a.account.Sandbox() {
				host = string(client.Sandbox)
			}
			if a.cfg.BaseURL != "" {
				host = a.cfg.BaseURL
			}
			printf(w, "Config:   %s\n", a.configPath)
			printf(w, "Host:     %s\n", host)
			printf(w, "Key:      %s\n", a.account.APIKey())
			printf(w, "Language: %s\n", a.account.Language())
			printf(w, "Backend:  %s\n", a.account.Backend().Name())
			if a.account.IsAuthenticated() {
				printf(w, "Session:  logged in as %s\n", a.file.Session.Username)
			} else {
				printf(w, "Session:  not logged in\n")
			}
			return nil
		},
	}
}
