package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	indexInfo   bool
	indexForce  bool
	indexDelete bool
	indexJSON   bool
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Build or inspect a file's line-offset index",
	Long: "Builds the sparse line-number to byte-offset index used for line\n" +
		"lookups, or reports on the stored one. Indexes are invalidated\n" +
		"automatically when the file changes.",
	Example: "  rx index /var/log/app.log\n" +
		"  rx index /var/log/app.log --info\n" +
		"  rx index /var/log/app.log --force",
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	f := indexCmd.Flags()
	f.BoolVar(&indexInfo, "info", false, "Report on the stored index without building")
	f.BoolVar(&indexForce, "force", false, "Rebuild even when the stored index is valid")
	f.BoolVar(&indexDelete, "delete", false, "Remove the stored index")
	f.BoolVar(&indexJSON, "json", false, "Output as JSON")
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]

	switch {
	case indexDelete:
		existed, err := a.DeleteIndex(path)
		if err != nil {
			return err
		}
		if existed {
			fmt.Println("index deleted")
		} else {
			fmt.Println("no index to delete")
		}
		return nil

	case indexInfo:
		info, err := a.Info(path)
		if err != nil {
			return err
		}
		if indexJSON {
			return printJSON(info)
		}
		fmt.Printf("Path: %s\n", info.Path)
		if !info.Exists {
			fmt.Println("Index: none")
			return nil
		}
		fmt.Printf("Index: %s\n", info.IndexPath)
		fmt.Printf("Valid: %v\n", info.Valid)
		fmt.Printf("Checkpoints: %d (every %s lines)\n", info.Checkpoints, humanize.Comma(info.IntervalLines))
		if info.Stats != nil {
			fmt.Printf("Lines: %s\n", humanize.Comma(info.Stats.LineCount))
		}
		return nil

	default:
		idx, built, err := a.BuildIndex(path, indexForce)
		if err != nil {
			return err
		}
		if indexJSON {
			return printJSON(map[string]any{
				"path":        idx.Path,
				"built":       built,
				"checkpoints": len(idx.Checkpoints),
				"lines":       idx.Stats.LineCount,
			})
		}
		if built {
			fmt.Printf("indexed %s: %s lines, %d checkpoints\n",
				idx.Path, humanize.Comma(idx.Stats.LineCount), len(idx.Checkpoints))
		} else {
			fmt.Printf("index for %s is up to date\n", idx.Path)
		}
		return nil
	}
}
