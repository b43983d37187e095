package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wlame/rx/internal/domain/complexity"
)

var (
	checkJSON    bool
	checkNoColor bool
)

var checkCmd = &cobra.Command{
	Use:   "check <pattern>",
	Short: "Score a regex for catastrophic backtracking risk",
	Long: "Statically analyzes a regular expression and reports a complexity\n" +
		"score, a risk level, and the constructs that drive the score.",
	Example: "  rx check '(a+)+'\n" +
		"  rx check 'error.*timeout' --json",
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output as JSON")
	checkCmd.Flags().BoolVar(&checkNoColor, "no-color", false, "Disable colored output")
}

func levelColor(level string) *color.Color {
	switch level {
	case complexity.LevelVerySimple, complexity.LevelSimple, complexity.LevelModerate:
		return color.New(color.FgGreen)
	case complexity.LevelComplex, complexity.LevelVeryComplex:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	report := complexity.Score(args[0])

	if checkJSON {
		return printJSON(report)
	}

	lvl := levelColor(report.Level)
	grey := color.New(color.FgHiBlack)
	if !resolveColor(checkNoColor) {
		lvl.DisableColor()
		grey.DisableColor()
	}

	fmt.Printf("%s %s\n", grey.Sprint("Pattern:"), args[0])
	fmt.Printf("%s %.1f\n", grey.Sprint("Score:"), report.Score)
	fmt.Printf("%s %s\n", grey.Sprint("Level:"), lvl.Sprint(report.Level))
	fmt.Printf("%s %s\n", grey.Sprint("Risk:"), report.Risk)
	if len(report.Warnings) > 0 {
		fmt.Println(grey.Sprint("Warnings:"))
		for _, warning := range report.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
	return nil
}
