package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muahq/mua/client"
)

func newBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Create, edit and inspect blocks",
	}
	cmd.AddCommand(blockCreateCmd())
	cmd.AddCommand(blockUpdateCmd())
	cmd.AddCommand(blockGetCmd())
	cmd.AddCommand(blockListCmd())
	cmd.AddCommand(blockVersionsCmd())
	return cmd
}

// readContent returns the positional content, or stdin when it is "-".
func readContent(arg string, in io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}

	return string(data), nil
}

// parseMetadata turns key=value pairs into a metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid metadata %q (want key=value)", p)
		}
		meta[strings.TrimSpace(k)] = v
	}

	return meta, nil
}

func blockCreateCmd() *cobra.Command {
	var visibility, source string
	var meta []string
	cmd := &cobra.Command{
		Use:   "create <content|->",
		Short: "Create a user block (frontmatter is parsed into metadata)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			content, err := readContent(args[0], os.Stdin)
			if err != nil {
				fatal("block create", err)
			}
			metadata, err := parseMetadata(meta)
			if err != nil {
				fatal("block create", err)
			}

			block, err := apiClient.Blocks.Create(context.Background(), &client.CreateBlockRequest{
				Content:    content,
				Visibility: visibility,
				Source:     source,
				Metadata:   metadata,
			})
			if err != nil {
				fatal("block create", err)
			}
			output(block, block.ID)
		},
	}
	cmd.Flags().StringVar(&visibility, "visibility", "", "private|public (default private)")
	cmd.Flags().StringVar(&source, "source", "cli", "Where the block came from")
	cmd.Flags().StringSliceVar(&meta, "meta", nil, "Metadata key=value (repeatable)")
	return cmd
}

func blockUpdateCmd() *cobra.Command {
	var reason string
	var meta []string
	cmd := &cobra.Command{
		Use:   "update <id> <content|->",
		Short: "Save new content for a user block",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			content, err := readContent(args[1], os.Stdin)
			if err != nil {
				fatal("block update", err)
			}
			metadata, err := parseMetadata(meta)
			if err != nil {
				fatal("block update", err)
			}

			block, err := apiClient.Blocks.Update(context.Background(), args[0], &client.UpdateBlockRequest{
				Content:  content,
				Metadata: metadata,
				Reason:   reason,
			})
			if err != nil {
				fatal("block update", err)
			}
			output(block, block.ID)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "autosave", "autosave|finalize")
	cmd.Flags().StringSliceVar(&meta, "meta", nil, "Metadata key=value (repeatable)")
	return cmd
}

func blockGetCmd() *cobra.Command {
	var mua bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a block",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			get := apiClient.Blocks.Get
			if mua {
				get = apiClient.Blocks.GetMua
			}

			block, err := get(context.Background(), args[0])
			if err != nil {
				fatal("block get", err)
			}
			if flagFmt == "table" {
				printBlockTable([]client.Block{*block})
				return
			}
			output(block, block.ID)
		},
	}
	cmd.Flags().BoolVar(&mua, "mua", false, "Fetch a derived (mua) block")
	return cmd
}

func blockListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user blocks, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			blocks, hasMore, err := apiClient.Blocks.List(context.Background(), limit, offset)
			if err != nil {
				fatal("block list", err)
			}
			switch flagFmt {
			case "table":
				printBlockTable(blocks)
			case "quiet":
				for _, b := range blocks {
					formatQuiet(b.ID)
				}
			default:
				formatJSON(map[string]any{"blocks": blocks, "has_more": hasMore})
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many blocks")
	return cmd
}

func blockVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <id>",
		Short: "List saved versions of a user block",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			versions, err := apiClient.Blocks.Versions(context.Background(), args[0])
			if err != nil {
				fatal("block versions", err)
			}
			if flagFmt == "table" {
				headers := []string{"VERSION", "REASON", "CREATED_AT", "CONTENT"}
				var rows [][]string
				for _, v := range versions {
					rows = append(rows, []string{
						fmt.Sprintf("%d", v.VersionNo),
						v.CaptureReason,
						v.CreatedAt.Format("2006-01-02 15:04:05"),
						preview(v.Content, 60),
					})
				}
				formatTable(headers, rows)
				return
			}
			output(versions, "")
		},
	}
}

func printBlockTable(blocks []client.Block) {
	headers := []string{"ID", "AUTHOR", "UPDATED_AT", "CONTENT"}
	var rows [][]string
	for _, b := range blocks {
		rows = append(rows, []string{b.ID, b.AuthorType, b.UpdatedAt.Format("2006-01-02 15:04"), preview(b.Content, 60)})
	}
	formatTable(headers, rows)
}
