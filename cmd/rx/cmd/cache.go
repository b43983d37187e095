package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var cacheForce bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached traces, analyses, and indexes",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts",
	RunE:  runCacheStats,
}

var cacheWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all cached data",
	RunE:  runCacheWipe,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <path>",
	Short: "Drop cached data derived from one file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheInvalidate,
}

func init() {
	cacheWipeCmd.Flags().BoolVar(&cacheForce, "force", false, "Skip confirmation prompt")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheWipeCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	counter, ok := a.Cache.(interface{ Stats() (int, int, error) })
	if !ok {
		return fmt.Errorf("cache store does not report stats")
	}
	traces, analyses, err := counter.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Cache dir: %s\n", a.Config.CacheDir)
	fmt.Printf("Trace entries: %d\n", traces)
	fmt.Printf("Analysis entries: %d\n", analyses)
	return nil
}

func runCacheWipe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !cacheForce {
		fmt.Printf("This will delete all cached data in %s. Continue? [y/N] ", a.Config.CacheDir)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("cancelled")
			return nil
		}
	}

	if err := a.Cache.Wipe(); err != nil {
		return err
	}
	fmt.Println("cache wiped")
	return nil
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := a.Sandbox.Resolve(args[0])
	if err != nil {
		return err
	}
	if err := a.Cache.InvalidatePath(path); err != nil {
		return err
	}
	fmt.Printf("invalidated cached data for %s\n", path)
	return nil
}
