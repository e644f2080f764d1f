// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview-engine/internal/aggregate"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Work with the de-duplicated article view across all entries",
	Long: `Articles shows one row per article identifier across every saved entry,
keeping the highest-scoring instance. Subcommands merge duplicates into a
single entry, prune low-relevance articles, set tags and delete articles.
Entries left without articles are deleted.`,
}

// --- list subcommand ---

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unique articles by relevance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		tag, _ := cmd.Flags().GetString("tag")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var rows []types.AggregatedArticle
		for _, r := range aggregate.New(a.store, a.log.Named("aggregate")).UniqueArticles() {
			if r.RelevanceScore < minScore {
				continue
			}
			if tag != "" && !hasTag(r.Tags, tag) {
				continue
			}
			rows = append(rows, r)
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			if rows == nil {
				rows = []types.AggregatedArticle{}
			}
			return writeJSON(rows)
		}
		if len(rows) == 0 {
			fmt.Println("No articles.")
			return nil
		}

		fmt.Fprintf(os.Stdout, "%-10s  %5s  %4s  %-44s  %-20s  %s\n", "PMID", "Score", "Year", "Title", "Source", "Tags")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
		for _, r := range rows {
			fmt.Fprintf(os.Stdout, "%-10s  %5.0f  %4d  %-44s  %-20s  %s\n",
				r.Identifier, r.RelevanceScore, r.Year, truncate(r.Title, 44), truncate(r.SourceTitle, 20), strings.Join(r.Tags, ","))
		}
		fmt.Fprintf(os.Stdout, "\n%d articles\n", len(rows))
		return nil
	},
}

// --- merge subcommand ---

var articlesMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Keep each duplicated article only in the entry with its best score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := aggregate.New(a.store, a.log.Named("aggregate")).MergeDuplicates(cmd.Context())
		if err != nil {
			return err
		}
		printResult("Merged", res)
		return nil
	},
}

// --- prune subcommand ---

var articlesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove articles scoring below a threshold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := aggregate.New(a.store, a.log.Named("aggregate")).PruneByRelevance(cmd.Context(), threshold)
		if err != nil {
			return err
		}
		printResult("Pruned", res)
		return nil
	},
}

// --- tag subcommand ---

var articlesTagCmd = &cobra.Command{
	Use:   "tag <identifier> [tag...]",
	Short: "Set the tags of an article in every entry that holds it",
	Long: `Tag replaces the tags of every instance of the article. Pass no tags to
clear them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := aggregate.New(a.store, a.log.Named("aggregate")).UpdateTags(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Updated tags in %d entries\n", n)
		return nil
	},
}

// --- delete subcommand ---

var articlesDeleteCmd = &cobra.Command{
	Use:   "delete <identifier>...",
	Short: "Remove articles from every entry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := aggregate.New(a.store, a.log.Named("aggregate")).DeleteArticles(cmd.Context(), args)
		if err != nil {
			return err
		}
		printResult("Deleted", res)
		return nil
	},
}

// --- shared helpers ---

func printResult(verb string, res aggregate.Result) {
	fmt.Printf("%s %d article instances (%d identifiers)\n", verb, res.Removed, len(res.Identifiers))
	if len(res.UpdatedEntries) > 0 {
		fmt.Printf("  updated entries: %s\n", strings.Join(res.UpdatedEntries, ", "))
	}
	if len(res.DeletedEntries) > 0 {
		fmt.Printf("  deleted empty entries: %s\n", strings.Join(res.DeletedEntries, ", "))
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func init() {
	articlesListCmd.Flags().Float64("min-score", 0, "hide articles scoring below this")
	articlesListCmd.Flags().String("tag", "", "only articles carrying this tag")
	articlesListCmd.Flags().Bool("json", false, "output articles as JSON")
	articlesPruneCmd.Flags().Float64("threshold", 0, "remove instances scoring strictly below this (0-100)")
	_ = articlesPruneCmd.MarkFlagRequired("threshold")

	articlesCmd.AddCommand(articlesListCmd)
	articlesCmd.AddCommand(articlesMergeCmd)
	articlesCmd.AddCommand(articlesPruneCmd)
	articlesCmd.AddCommand(articlesTagCmd)
	articlesCmd.AddCommand(articlesDeleteCmd)

	rootCmd.AddCommand(articlesCmd)
}
