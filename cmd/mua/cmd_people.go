package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muahq/mua/client"
)

func newCRMCmd() *cobra.Command {
	var name, topic string
	var limit int
	cmd := &cobra.Command{
		Use:   "crm",
		Short: "Show people ranked by who to follow up with",
		Run: func(cmd *cobra.Command, args []string) {
			people, err := apiClient.People.CRM(context.Background(), &client.CRMOptions{
				Name:  name,
				Topic: topic,
				Limit: limit,
			})
			if err != nil {
				fatal("crm", err)
			}
			switch flagFmt {
			case "table":
				printCRMTable(people)
			case "quiet":
				for _, p := range people {
					formatQuiet(p.Entity.ID)
				}
			default:
				output(people, "")
			}
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Only people whose name or alias contains this")
	cmd.Flags().StringVar(&topic, "topic", "", "Only people with a timeline block mentioning this")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max people")
	return cmd
}

func printCRMTable(people []client.PersonSummary) {
	headers := []string{"NAME", "ROI", "DAYS", "OPEN_LOOPS", "TOPICS"}
	var rows [][]string
	for _, p := range people {
		days := "-"
		if p.DaysSinceContact != nil {
			days = strconv.Itoa(*p.DaysSinceContact)
		}
		rows = append(rows, []string{
			p.Entity.CanonicalName,
			fmt.Sprintf("%.1f", p.ROIScore),
			days,
			strconv.Itoa(p.OpenLoops),
			strings.Join(p.RecentTopics, ", "),
		})
	}
	formatTable(headers, rows)
}

func newEntitiesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "entities [name]",
		Short: "Find people by name or alias",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var name string
			if len(args) == 1 {
				name = args[0]
			}

			entities, err := apiClient.People.Entities(context.Background(), name, limit)
			if err != nil {
				fatal("entities", err)
			}
			switch flagFmt {
			case "table":
				headers := []string{"ID", "NAME", "VERIFIED", "CONFIDENCE", "ALIASES"}
				var rows [][]string
				for _, e := range entities {
					rows = append(rows, []string{
						e.ID,
						e.CanonicalName,
						strconv.FormatBool(e.Verified),
						fmt.Sprintf("%.2f", e.Confidence),
						strings.Join(e.Aliases, ", "),
					})
				}
				formatTable(headers, rows)
			case "quiet":
				for _, e := range entities {
					formatQuiet(e.ID)
				}
			default:
				output(entities, "")
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max results")
	return cmd
}
