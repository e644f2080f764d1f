// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litreview-engine/internal/knowledge"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Browse and manage saved entries in the knowledge store",
	Long: `Entries manages the saved results in the knowledge store. Each entry is a
research report, author profile or journal profile together with its
articles. Use subcommands to list, show, rename, delete, export or import.`,
}

// --- list subcommand ---

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved entries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		entries := a.store.ListEntries()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No entries.")
			return nil
		}

		fmt.Fprintf(os.Stdout, "%-36s  %-8s  %-16s  %8s  %s\n", "ID", "Kind", "Created", "Articles", "Title")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "%-36s  %-8s  %-16s  %8d  %s\n",
				e.ID, e.Kind, e.CreatedAt.Local().Format("2006-01-02 15:04"), len(e.Articles), truncate(e.Title, 40))
		}
		fmt.Fprintf(os.Stdout, "\n%d entries\n", len(entries))
		return nil
	},
}

// --- show subcommand ---

var entriesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		e, ok := a.store.Get(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", knowledge.ErrEntryNotFound, args[0])
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(e)
		}

		fmt.Fprintln(os.Stdout, phaseStyle.Render(e.Title))
		fmt.Fprintln(os.Stdout, dimStyle.Render(fmt.Sprintf("%s  %s  %s", e.ID, e.Kind, e.CreatedAt.Local().Format("2006-01-02 15:04"))))
		fmt.Fprintln(os.Stdout)
		switch {
		case e.Research != nil:
			printReport(e.Research)
			if e.Research.Synthesis != "" {
				fmt.Fprintln(os.Stdout)
				fmt.Fprintln(os.Stdout, phaseStyle.Render("Synthesis"))
				fmt.Fprintln(os.Stdout, e.Research.Synthesis)
			}
		case e.Author != nil:
			fmt.Fprintln(os.Stdout, e.Author.Summary)
			printArticleTable(e.Articles)
		case e.Journal != nil:
			fmt.Fprintln(os.Stdout, e.Journal.Description)
			printArticleTable(e.Articles)
		default:
			printArticleTable(e.Articles)
		}
		return nil
	},
}

// --- rename subcommand ---

var entriesRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Change an entry's title",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		title := strings.Join(args[1:], " ")
		e, err := a.store.UpdateEntry(cmd.Context(), args[0], knowledge.EntryChanges{Title: &title})
		if err != nil {
			return err
		}
		fmt.Printf("Renamed %s to %q\n", e.ID, e.Title)
		return nil
	},
}

// --- delete subcommand ---

var entriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.store.DeleteEntries(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d of %d entries\n", n, len(args))
		return nil
	},
}

// --- clear subcommand ---

var entriesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to clear the store without --yes")
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Knowledge store cleared")
		return nil
	},
}

// --- export subcommand ---

var entriesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every entry to YAML or JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if outPath == "" || outPath == "-" {
			return a.store.Export(os.Stdout, knowledge.Format(format))
		}
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		if err := a.store.Export(f, knowledge.Format(format)); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported to %s\n", outPath)
		return nil
	},
}

// --- import subcommand ---

var entriesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import entries from a YAML or JSON backup",
	Long: `Import reads a backup written by export and saves its entries, keeping
their ids and timestamps. Entries already in the store with the same id are
replaced. The format is taken from the file extension unless --format is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = formatFromExt(args[0])
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()

		n, err := a.store.Import(cmd.Context(), f, knowledge.Format(format))
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d entries\n", n)
		return nil
	},
}

// --- shared helpers ---

func formatFromExt(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return string(knowledge.FormatJSON)
	}
	return string(knowledge.FormatYAML)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	entriesListCmd.Flags().Bool("json", false, "output entries as JSON")
	entriesShowCmd.Flags().Bool("json", false, "output the entry as JSON")
	entriesClearCmd.Flags().Bool("yes", false, "confirm deleting every entry")
	entriesExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	entriesExportCmd.Flags().String("out", "", "output file (default stdout)")
	entriesImportCmd.Flags().String("format", "", "import format: yaml or json")

	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesShowCmd)
	entriesCmd.AddCommand(entriesRenameCmd)
	entriesCmd.AddCommand(entriesDeleteCmd)
	entriesCmd.AddCommand(entriesClearCmd)
	entriesCmd.AddCommand(entriesExportCmd)
	entriesCmd.AddCommand(entriesImportCmd)

	rootCmd.AddCommand(entriesCmd)
}
