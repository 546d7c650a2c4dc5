package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muahq/mua/client"
)

func newSearchCmd() *cobra.Command {
	var scope string
	var limit, offset int
	var exclude []string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid lexical and vector search over blocks",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			results, err := apiClient.Search.Query(context.Background(), &client.SearchRequest{
				Query:       strings.Join(args, " "),
				Scope:       scope,
				Limit:       limit,
				Offset:      offset,
				ExcludeKeys: exclude,
			})
			if err != nil {
				fatal("search", err)
			}
			switch flagFmt {
			case "table":
				printResultTable(results)
			case "quiet":
				for _, r := range results {
					formatQuiet(r.Key)
				}
			default:
				output(results, "")
			}
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "all", "Search scope: user|all")
	cmd.Flags().IntVar(&limit, "limit", 10, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many results")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Block keys to leave out (user:<id> or mua:<id>)")
	return cmd
}

func printResultTable(results []client.SearchResult) {
	headers := []string{"KEY", "SCORE", "LEXICAL", "VECTOR", "CONTENT"}
	var rows [][]string
	for _, r := range results {
		rows = append(rows, []string{
			r.Key,
			fmt.Sprintf("%.3f", r.Score),
			optScore(r.LexicalScore),
			optScore(r.VectorScore),
			preview(r.Block.Content, 50),
		})
	}
	formatTable(headers, rows)
}

func optScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}
