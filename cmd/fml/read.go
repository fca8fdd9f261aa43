package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alphabot-ai/fmylife/internal/model"
)

func printStories(w io.Writer, stories []model.Story) {
	if len(stories) == 0 {
		printf(w, "No stories.\n")
		return
	}
	for i := range stories {
		printStory(w, &stories[i])
		printf(w, "\n")
	}
}

func printStory(w io.Writer, s *model.Story) {
	printf(w, "#%s", s.ID)
	if s.Has("category") {
		printf(w, " [%s]", s.Category)
	}
	if s.Has("author") {
		printf(w, " by %s", s.Author)
	}
	if s.Has("date") {
		printf(w, ", %s", s.Date.Format("2006-01-02 15:04"))
	}
	printf(w, "\n%s\n", s.Text)
	printf(w, "  I agree, your life sucks: %d | You deserved it: %d | Comments: %d\n", s.Agreed, s.Deserved, s.NumComments)
	for _, c := range s.Comments {
		staff := ""
		if c.Staff {
			staff = " (staff)"
		}
		printf(w, "  [%s] %s%s: %s\n", c.Order, c.Author, staff, c.Text)
	}
}

func newLatestCmd(a *app) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Most recent stories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stories, err := a.account.Latest(cmd.Context(), page)
			if err != nil {
				return err
			}
			printStories(cmd.OutOrStdout(), stories)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number, from 0")
	return cmd
}

func newRankingCmd(a *app, name, short string) *cobra.Command {
	var (
		page     int
		interval string
	)
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rank := a.account.Top
			if name == "flop" {
				rank = a.account.Flop
			}
			stories, err := rank(cmd.Context(), model.Interval(interval), page)
			if err != nil {
				return err
			}
			printStories(cmd.OutOrStdout(), stories)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number, from 0")
	cmd.Flags().StringVar(&interval, "interval", "", "day, week or month (default all time)")
	return cmd
}

func newCategoryCmd(a *app) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "category <name>",
		Short: "Stories of one category",
		Long:  "Stories of one category: love, money, kids, work, health, sex or miscellaneous.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stories, err := a.account.Category(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}
			printStories(cmd.OutOrStdout(), stories)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number, from 0")
	return cmd
}

func newRandomCmd(a *app) *cobra.Command {
	var comments bool
	cmd := &cobra.Command{
		Use:   "random",
		Short: "A random story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			story, err := a.account.Random(cmd.Context(), comments)
			if err != nil {
				return err
			}
			printStory(cmd.OutOrStdout(), story)
			return nil
		},
	}
	cmd.Flags().BoolVar(&comments, "comments", false, "Include comments")
	return cmd
}

func newStoryCmd(a *app) *cobra.Command {
	var noComments bool
	cmd := &cobra.Command{
		Use:   "story <id>",
		Short: "One story with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			story, err := a.account.Story(cmd.Context(), model.ByID(args[0]), !noComments)
			if err != nil {
				return err
			}
			printStory(cmd.OutOrStdout(), story)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noComments, "no-comments", false, "Skip comments")
	return cmd
}

func newUnseenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unseen",
		Short: "Stories you have not read yet (login required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stories, err := a.account.Unseen(cmd.Context())
			if err != nil {
				return err
			}
			printStories(cmd.OutOrStdout(), stories)
			return nil
		},
	}
}

func newFavoritesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "Your favorite stories (login required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stories, err := a.account.Favorites(cmd.Context())
			if err != nil {
				return err
			}
			printStories(cmd.OutOrStdout(), stories)
			return nil
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>...",
		Short: "Search stories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stories, err := a.account.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printStories(cmd.OutOrStdout(), stories)
			return nil
		},
	}
}

func newDevCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dev",
		Short: "Usage of your API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, err := a.account.DeveloperInfo(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printf(w, "Name:        %s\n", dev.Name)
			printf(w, "Project:     %s\n", dev.Project)
			if dev.Has("url") && dev.URL != "" {
				printf(w, "URL:         %s\n", dev.URL)
			}
			if dev.Has("email") && dev.Email != "" {
				printf(w, "Email:       %s\n", dev.Email)
			}
			printf(w, "Calls (24h): %d\n", dev.Last24h)
			printf(w, "Calls (all): %d\n", dev.Alltime)
			printf(w, "Tokens:      %d\n", dev.Tokens)
			return nil
		},
	}
}
