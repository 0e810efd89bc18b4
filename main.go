// Copyright (c) 2024 The Batchline Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/batchline/batchline/config"
	"github.com/batchline/batchline/dispatch"
	"github.com/batchline/batchline/ledger"
	"github.com/batchline/batchline/pipeline"
	"github.com/batchline/batchline/remotefs"
)

func enableLogging(debug bool) {
	logLevel := new(slog.LevelVar)
	if debug {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
	handler := slog.NewJSONHandler(os.Stdout,
		&slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Debug logging enabled.")
}

func main() {
	var debug bool

	root := &cobra.Command{
		Use:   "batchline",
		Short: "Batch file-processing pipeline engine",
		Long: `batchline executes DAG pipelines over tabular and EDI records and
dispatches source-folder files to their configured delivery backends.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			enableLogging(debug)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(runCommand())
	root.AddCommand(checkCommand())
	root.AddCommand(dispatchCommand())
	root.AddCommand(testConnectionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// run executes a single pipeline over an input and output file, exiting
// non-zero on any validation or node failure.
func runCommand() *cobra.Command {
	var pipelineFile, inputFile, outputFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.Load(pipelineFile)
			if err != nil {
				return err
			}
			executor := pipeline.NewExecutor(p, pipeline.ExecutorConfig{})
			ctx, err := executor.Execute(inputFile, outputFile)
			for _, nodeError := range ctx.Errors {
				fmt.Fprintf(os.Stderr, "%s [%s]: %s\n",
					nodeError.NodeId, nodeError.Kind, nodeError.Message)
			}
			if err != nil {
				return err
			}
			slog.Info(fmt.Sprintf("Pipeline completed in %s (%d nodes, %d errors)",
				ctx.Metrics.TotalDuration, ctx.Metrics.NodeCount, ctx.Metrics.ErrorCount))
			return nil
		},
	}
	cmd.Flags().StringVar(&pipelineFile, "pipeline", "", "path to the pipeline JSON")
	cmd.Flags().StringVar(&inputFile, "input", "", "input file path")
	cmd.Flags().StringVar(&outputFile, "output", "", "output file path")
	cmd.MarkFlagRequired("pipeline")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

// check validates a pipeline description without executing it.
func checkCommand() *cobra.Command {
	var pipelineFile string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a pipeline without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.Load(pipelineFile)
			if err != nil {
				return err
			}
			problems := p.Validate()
			for _, problem := range problems {
				fmt.Fprintln(os.Stderr, problem)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d problems found", len(problems))
			}
			fmt.Println("Pipeline is valid.")
			return nil
		},
	}
	cmd.Flags().StringVar(&pipelineFile, "pipeline", "", "path to the pipeline JSON")
	cmd.MarkFlagRequired("pipeline")
	return cmd
}

// dispatch processes every active configured folder, delivering new files
// through their enabled backends. The exit status distinguishes full
// success (0) from per-file failures (1) and unreachable folders (2).
func dispatchCommand() *cobra.Command {
	var configFile string
	var folderIds []int64

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Process configured folders and deliver new files",
		RunE: func(cmd *cobra.Command, args []string) error {
			configData, err := os.ReadFile(configFile)
			if err != nil {
				return err
			}
			if err := config.Init(configData); err != nil {
				return err
			}
			if config.Service.Debug {
				enableLogging(true)
			}

			if config.Service.LedgerPath == "" {
				return fmt.Errorf("No ledger path configured")
			}
			store, err := ledger.OpenSQLite(config.Service.LedgerPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runLog, closeRunLog, err := openRunLog(config.Service.RunLogDirectory)
			if err != nil {
				return err
			}
			defer closeRunLog()

			orchestrator := dispatch.NewOrchestrator(dispatch.OrchestratorConfig{
				Ledger:   store,
				Settings: config.Settings,
				RunLog:   runLog,
			})

			folders := selectFolders(config.Folders, folderIds)
			results := orchestrator.ProcessFolders(folders)

			unreachable := false
			failed := false
			for _, result := range results {
				if result.FilesProcessed == 0 && result.FilesFailed > 0 && len(result.Errors) > 0 &&
					(strings.Contains(result.Errors[0], "Folder not found") ||
						strings.Contains(result.Errors[0], "misconfigured")) {
					unreachable = true
				}
				if !result.Success {
					failed = true
				}
				fmt.Printf("folder %d (%s): %d delivered, %d skipped, %d failed\n",
					result.FolderId, result.Alias,
					result.FilesProcessed, result.FilesSkipped, result.FilesFailed)
			}
			switch {
			case unreachable:
				os.Exit(2)
			case failed:
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to the YAML configuration")
	cmd.Flags().Int64SliceVar(&folderIds, "folder", nil, "restrict the run to the given folder ids")
	cmd.MarkFlagRequired("config")
	return cmd
}

// test-connection verifies that a remote file system is reachable with the
// given parameters.
func testConnectionCommand() *cobra.Command {
	var protocol string
	var params []string

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Test a remote file system connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters := make(remotefs.Params)
			for _, param := range params {
				key, value, found := strings.Cut(param, "=")
				if !found {
					return fmt.Errorf("Malformed parameter %q (expected key=value)", param)
				}
				parameters[key] = value
			}
			count, err := remotefs.TestConnection(protocol, parameters)
			if err != nil {
				return fmt.Errorf("Connection failed: %s", err)
			}
			fmt.Printf("Connection successful (%d files visible).\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", "local", "protocol (local, smb, sftp, ftp)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "connection parameter key=value (repeatable)")
	return cmd
}

// openRunLog creates a timestamped run log file in the configured
// directory, or discards run logging when none is configured.
func openRunLog(directory string) (*os.File, func(), error) {
	if directory == "" {
		devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return nil, nil, err
		}
		return devNull, func() { devNull.Close() }, nil
	}
	name := fmt.Sprintf("dispatch-%s.log", time.Now().Format("20060102-150405"))
	file, err := os.Create(filepath.Join(directory, name))
	if err != nil {
		return nil, nil, err
	}
	return file, func() {
		file.Close()
		log.Printf("Run log written to %s\n", file.Name())
	}, nil
}

func selectFolders(folders []config.Folder, ids []int64) []config.Folder {
	if len(ids) == 0 {
		return folders
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	selected := make([]config.Folder, 0, len(folders))
	for _, folder := range folders {
		if wanted[folder.Id] {
			selected = append(selected, folder)
		}
	}
	return selected
}
