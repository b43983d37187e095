package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wlame/rx/internal/app"
)

var (
	searchPatterns   []string
	searchMaxResults int
	searchInclude    []string
	searchExclude    []string
	searchBefore     int
	searchAfter      int
	searchContext    int
	searchNoCache    bool
	searchJSON       bool
	searchNoColor    bool
)

func init() {
	f := rootCmd.Flags()
	f.StringArrayVarP(&searchPatterns, "regexp", "e", nil, "Pattern to search for (repeatable)")
	f.IntVar(&searchMaxResults, "max-results", 0, "Stop after this many matches (default 1000)")
	f.StringArrayVar(&searchInclude, "include", nil, "Only search files matching this glob (repeatable)")
	f.StringArrayVar(&searchExclude, "exclude", nil, "Skip files matching this glob (repeatable)")
	f.IntVarP(&searchBefore, "before-context", "B", 0, "Lines of context before each match")
	f.IntVarP(&searchAfter, "after-context", "A", 0, "Lines of context after each match")
	f.IntVarP(&searchContext, "context", "C", 0, "Lines of context around each match")
	f.BoolVar(&searchNoCache, "no-cache", false, "Bypass the trace cache")
	f.BoolVar(&searchJSON, "json", false, "Output as JSON")
	f.BoolVar(&searchNoColor, "no-color", false, "Disable colored output")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if len(searchPatterns) == 0 {
		return fmt.Errorf("at least one -e pattern is required")
	}

	// Everything after -- goes to ripgrep untouched.
	paths := args
	var passthrough []string
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		paths = args[:at]
		passthrough = args[at:]
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	before, after := searchBefore, searchAfter
	if searchContext > 0 {
		if before == 0 {
			before = searchContext
		}
		if after == 0 {
			after = searchContext
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := a.Trace(ctx, app.TraceRequest{
		Paths:         paths,
		Patterns:      searchPatterns,
		Passthrough:   passthrough,
		MaxResults:    searchMaxResults,
		Include:       searchInclude,
		Exclude:       searchExclude,
		BeforeContext: before,
		AfterContext:  after,
		NoCache:       searchNoCache,
	})
	if err != nil {
		return err
	}

	if searchJSON {
		return printJSON(resp)
	}
	fmt.Print(resp.ToCLI(resolveColor(searchNoColor)))
	return nil
}
