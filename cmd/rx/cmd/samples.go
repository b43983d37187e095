package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wlame/rx/internal/app"
)

var (
	samplesOffsets []int64
	samplesLines   []int64
	samplesContext int
	samplesBefore  int
	samplesAfter   int
	samplesRegex   string
	samplesJSON    bool
	samplesNoColor bool
)

var samplesCmd = &cobra.Command{
	Use:   "samples <path>",
	Short: "Show file content around byte offsets or line numbers",
	Long: "Reads lines of context around one or more byte offsets or line\n" +
		"numbers. The two modes are mutually exclusive. Compressed files\n" +
		"support line numbers only.",
	Example: "  rx samples /var/log/app.log -b 1234\n" +
		"  rx samples /var/log/app.log -l 100 -l 200 -c 5\n" +
		"  rx samples /var/log/app.log.zst -l 100 --json",
	Args: cobra.ExactArgs(1),
	RunE: runSamples,
}

func init() {
	f := samplesCmd.Flags()
	f.Int64SliceVarP(&samplesOffsets, "byte-offset", "b", nil, "Byte offset to get context for (repeatable)")
	f.Int64SliceVarP(&samplesLines, "line-offset", "l", nil, "Line number to get context for, 1-based (repeatable)")
	f.IntVarP(&samplesContext, "context", "c", -1, "Lines of context before and after (default 3)")
	f.IntVarP(&samplesBefore, "before", "B", -1, "Lines of context before")
	f.IntVarP(&samplesAfter, "after", "A", -1, "Lines of context after")
	f.StringVarP(&samplesRegex, "regex", "r", "", "Pattern to highlight in output")
	f.BoolVar(&samplesJSON, "json", false, "Output as JSON")
	f.BoolVar(&samplesNoColor, "no-color", false, "Disable colored output")
}

func runSamples(cmd *cobra.Command, args []string) error {
	before, after := 3, 3
	if samplesContext >= 0 {
		before, after = samplesContext, samplesContext
	}
	if samplesBefore >= 0 {
		before = samplesBefore
	}
	if samplesAfter >= 0 {
		after = samplesAfter
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Samples(context.Background(), app.SamplesRequest{
		Path:        args[0],
		ByteOffsets: samplesOffsets,
		LineNumbers: samplesLines,
		Before:      before,
		After:       after,
	})
	if err != nil {
		return err
	}

	if samplesJSON {
		return printJSON(resp)
	}
	fmt.Print(resp.ToCLI(resolveColor(samplesNoColor), samplesRegex))
	return nil
}
