package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/spf13/cobra"
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "Manage note cards",
}

func printCard(a *app, c api.Card) {
	tags := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		tags = append(tags, "#"+t.Name)
	}
	meta := c.ID
	if len(tags) > 0 {
		meta += " " + strings.Join(tags, " ")
	}
	fmt.Fprintf(a.out, "%s %s\n", userStyle.Render(c.Title), dimStyle.Render(meta))
	if c.Content != "" {
		fmt.Fprintf(a.out, "  %s\n", firstLine(c.Content))
	}
}

var cardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.cards()
		if err != nil {
			return err
		}
		list, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range list {
			printCard(a, c)
		}
		return nil
	},
}

var cardsAddCmd = &cobra.Command{
	Use:   "add <title> [content]",
	Short: "Create a card",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.cards()
		if err != nil {
			return err
		}
		content := ""
		if len(args) == 2 {
			content = args[1]
		}
		card, err := svc.Create(cmd.Context(), args[0], content)
		if err != nil {
			return err
		}
		printCard(a, *card)
		return nil
	},
}

var cardsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a card's title or content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.cards()
		if err != nil {
			return err
		}
		if _, err := svc.List(cmd.Context()); err != nil {
			return err
		}
		current, err := svc.Get(args[0])
		if err != nil {
			return err
		}

		title, content := current.Title, current.Content
		if cmd.Flags().Changed("title") {
			title, _ = cmd.Flags().GetString("title")
		}
		if cmd.Flags().Changed("content") {
			content, _ = cmd.Flags().GetString("content")
		}
		card, err := svc.Update(cmd.Context(), args[0], title, content)
		if err != nil {
			return err
		}
		printCard(a, *card)
		return nil
	},
}

var cardsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.cards()
		if err != nil {
			return err
		}
		return svc.Delete(cmd.Context(), args[0])
	},
}

var cardsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the cards closest in meaning to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.cards()
		if err != nil {
			return err
		}
		k, _ := cmd.Flags().GetInt("limit")
		hits, err := svc.Search(cmd.Context(), strings.Join(args, " "), k)
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Fprintf(a.out, "%s ", dimStyle.Render(fmt.Sprintf("%.2f", h.Score)))
			printCard(a, h.Card)
		}
		return nil
	},
}

var cardsAttachCmd = &cobra.Command{
	Use:   "attach <file>",
	Short: "Upload a file and print its URL for use in a card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		url, err := a.client.UploadCardAttachment(cmd.Context(), filepath.Base(args[0]), f)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, url)
		return nil
	},
}

func init() {
	cardsEditCmd.Flags().StringP("title", "t", "", "new title")
	cardsEditCmd.Flags().StringP("content", "b", "", "new content")
	cardsSearchCmd.Flags().IntP("limit", "k", 5, "number of cards to return")

	cardsCmd.AddCommand(cardsListCmd, cardsAddCmd, cardsEditCmd, cardsRmCmd, cardsSearchCmd, cardsAttachCmd)
	rootCmd.AddCommand(cardsCmd)
}
