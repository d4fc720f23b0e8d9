package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "medbrief",
		Short: "Monitor medical literature and push slide deck updates per topic",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(detectCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(compareCmd())
	root.AddCommand(backfillCmd())
	root.AddCommand(seedCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Run one detection pass over all due topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect()
		},
	}
}

func generateCmd() *cobra.Command {
	var (
		language   string
		startYear  int
		endYear    int
		slideCount int
	)

	cmd := &cobra.Command{
		Use:   "generate <topic-id>",
		Short: "Generate and record a slide deck for a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(args[0], language, startYear, endYear, slideCount)
		},
	}

	cmd.Flags().StringVar(&language, "language", "", "deck language (default: from config)")
	cmd.Flags().IntVar(&startYear, "start-year", 0, "literature window start year")
	cmd.Flags().IntVar(&endYear, "end-year", 0, "literature window end year")
	cmd.Flags().IntVar(&slideCount, "slides", 0, "number of slides (default: from config)")
	return cmd
}

func compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <prev-deck> <cur-deck>",
		Short: "Summarize the differences between two deck files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(args[0], args[1])
		},
	}
}

func backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-diffs",
		Short: "Create missing diff records for all past pushes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill()
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo dataset into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	}
}
