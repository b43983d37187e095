package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wlame/rx/internal/app"
)

var (
	analyseWorkers int
	analyseNoCache bool
	analyseJSON    bool
	analyseNoColor bool
)

var analyseCmd = &cobra.Command{
	Use:   "analyse <path>...",
	Short: "Extract file metadata and line statistics",
	Long: "Reports size, modification time, line counts, and line length\n" +
		"statistics for each file. Directories are expanded. Results are\n" +
		"cached until the file changes.",
	Example: "  rx analyse /var/log/app.log\n" +
		"  rx analyse /var/log --json\n" +
		"  rx analyse big.log --max-workers 20",
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyse,
}

func init() {
	f := analyseCmd.Flags()
	f.IntVar(&analyseWorkers, "max-workers", 0, "Maximum parallel workers (default 10)")
	f.BoolVar(&analyseNoCache, "no-cache", false, "Bypass the analysis cache")
	f.BoolVar(&analyseJSON, "json", false, "Output as JSON")
	f.BoolVar(&analyseNoColor, "no-color", false, "Disable colored output")
}

func runAnalyse(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Analyse(context.Background(), app.AnalyseRequest{
		Paths:      args,
		MaxWorkers: analyseWorkers,
		NoCache:    analyseNoCache,
	})
	if err != nil {
		return err
	}

	if analyseJSON {
		return printJSON(resp)
	}
	fmt.Print(resp.ToCLI(resolveColor(analyseNoColor)))
	return nil
}
