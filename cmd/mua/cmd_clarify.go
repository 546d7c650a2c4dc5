package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muahq/mua/client"
)

func newClarifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clarify",
		Short: "Answer the questions mua has about your notes",
	}
	cmd.AddCommand(clarifyListCmd())
	cmd.AddCommand(clarifyDigestCmd())
	cmd.AddCommand(clarifyAnswerCmd())
	return cmd
}

func clarifyListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open questions, oldest first",
		Run: func(cmd *cobra.Command, args []string) {
			items, err := apiClient.Clarifications.List(context.Background(), limit)
			if err != nil {
				fatal("clarify list", err)
			}
			if flagFmt == "table" {
				printClarificationTable(items)
				return
			}
			output(items, "")
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max results")
	return cmd
}

func clarifyDigestCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Ask pending questions and print them as a numbered list",
		Run: func(cmd *cobra.Command, args []string) {
			digest, err := apiClient.Clarifications.Digest(context.Background(), limit)
			if err != nil {
				fatal("clarify digest", err)
			}
			if flagFmt == "json" {
				formatJSON(digest)
				return
			}
			fmt.Print(digest.Text)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max questions")
	return cmd
}

func clarifyAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <id> <option>",
		Short: "Answer a question with its 1-based option number",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			option, err := strconv.Atoi(args[1])
			if err != nil {
				fatal("clarify answer", fmt.Errorf("option must be a number: %w", err))
			}

			item, err := apiClient.Clarifications.Answer(context.Background(), args[0], option)
			if err != nil {
				if client.IsConflict(err) {
					fatal("clarify answer", fmt.Errorf("question is no longer open: %w", err))
				}
				fatal("clarify answer", err)
			}
			output(item, item.ID)
		},
	}
}

func printClarificationTable(items []client.ClarificationItem) {
	headers := []string{"ID", "STATUS", "OPTIONS", "QUESTION"}
	var rows [][]string
	for _, it := range items {
		rows = append(rows, []string{it.ID, it.Status, strconv.Itoa(len(it.Options)), preview(it.Question, 60)})
	}
	formatTable(headers, rows)
}
