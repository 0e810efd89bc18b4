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

// This package coordinates dispatch runs: for each configured folder it
// enumerates candidate files, filters out already-processed files by content
// checksum, optionally validates them as EDI, and sends each survivor
// through every enabled delivery backend.
package dispatch

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/batchline/batchline/config"
	"github.com/batchline/batchline/edi"
	"github.com/batchline/batchline/ledger"
	"github.com/batchline/batchline/remotefs"
)

// the outcome of processing a single folder
type FolderResult struct {
	FolderId       int64
	Alias          string
	FilesProcessed int
	FilesFailed    int
	FilesSkipped   int
	Errors         []string
	Success        bool
}

// the outcome of processing a single file
type FileResult struct {
	FileName  string
	Checksum  string
	Sent      bool
	Skipped   bool
	Validated bool
	Errors    []string
}

// Everything an Orchestrator needs is handed to it here; there is no
// package-level state.
type OrchestratorConfig struct {
	// ledger of already-processed files
	Ledger ledger.Ledger
	// delivery backends by name (DefaultBackends() when nil)
	Backends map[string]Backend
	// shared delivery settings
	Settings config.SettingsConfig
	// sink receiving run log lines (discarded when nil)
	RunLog io.Writer
	// remote file system factory (remotefs.New when nil)
	FileSystemFactory func(protocol string, params remotefs.Params) (remotefs.FileSystem, error)
}

// This type coordinates the processing of files across folders, managing
// validation and delivery. It never returns an error from a run: failures
// are captured in the returned results.
type Orchestrator struct {
	ledger      ledger.Ledger
	sendManager *SendManager
	validator   *edi.Validator
	settings    config.SettingsConfig
	runLog      io.Writer
	newFS       func(protocol string, params remotefs.Params) (remotefs.FileSystem, error)

	processedCount, errorCount int
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	backends := cfg.Backends
	if backends == nil {
		backends = DefaultBackends()
	}
	runLog := cfg.RunLog
	if runLog == nil {
		runLog = io.Discard
	}
	newFS := cfg.FileSystemFactory
	if newFS == nil {
		newFS = remotefs.New
	}
	return &Orchestrator{
		ledger:      cfg.Ledger,
		sendManager: NewSendManager(backends),
		validator:   edi.NewValidator(),
		settings:    cfg.Settings,
		runLog:      runLog,
		newFS:       newFS,
	}
}

// ProcessFolders runs every folder in the order given and returns one result
// per folder. Inactive folders are skipped.
func (o *Orchestrator) ProcessFolders(folders []config.Folder) []FolderResult {
	runId := uuid.New()
	o.logMessage(fmt.Sprintf("Dispatch run %s over %d folders", runId, len(folders)))
	results := make([]FolderResult, 0, len(folders))
	for _, folder := range folders {
		if !folder.Active {
			continue
		}
		results = append(results, o.ProcessFolder(folder))
	}
	o.logMessage(fmt.Sprintf("Dispatch run %s finished: %s", runId, o.Summary()))
	return results
}

// ProcessFolder processes a single folder. It never panics or returns an
// error; everything is captured in the result.
func (o *Orchestrator) ProcessFolder(folder config.Folder) FolderResult {
	result := FolderResult{
		FolderId: folder.Id,
		Alias:    folder.Alias,
		Errors:   make([]string, 0),
		Success:  true,
	}

	fs, err := o.newFS(o.protocol(folder), remotefs.Params(folder.SourceParams()))
	if err != nil {
		message := fmt.Sprintf("Folder '%s' is misconfigured: %s", folder.Name(), err)
		o.logError(message)
		result.Errors = append(result.Errors, message)
		result.Success = false
		result.FilesFailed = 1
		return result
	}
	defer fs.Close()

	root := o.rootPath(folder)
	if !fs.DirExists(root) {
		message := fmt.Sprintf("Folder not found: %s", folder.Path)
		o.logError(message)
		result.Errors = append(result.Errors, message)
		result.Success = false
		result.FilesFailed = 1
		return result
	}

	listing := fs.List(root)
	if len(listing) == 0 {
		o.logMessage(fmt.Sprintf("No files in directory: %s", folder.Path))
		return result
	}

	// the ledger is read once per folder, before any file-level decision
	entries, err := o.ledger.FindByFolder(folder.Id)
	if err != nil {
		message := fmt.Sprintf("Couldn't read ledger for folder '%s': %s", folder.Name(), err)
		o.logError(message)
		result.Errors = append(result.Errors, message)
		result.Success = false
		return result
	}
	names, resend := ledger.MatchSets(entries)

	o.logMessage(fmt.Sprintf("Processing %d files in %s", len(listing), folder.Path))

	workDir, err := os.MkdirTemp("", "batchline-dispatch-")
	if err != nil {
		message := fmt.Sprintf("Couldn't create working directory: %s", err)
		o.logError(message)
		result.Errors = append(result.Errors, message)
		result.Success = false
		return result
	}
	defer os.RemoveAll(workDir)

	for _, entry := range listing {
		fileResult := o.processFile(fs, folder, entry.Name, workDir, names, resend)
		switch {
		case fileResult.Skipped:
			result.FilesSkipped++
		case fileResult.Sent:
			result.FilesProcessed++
			o.processedCount++
		default:
			result.FilesFailed++
			o.errorCount++
			result.Errors = append(result.Errors, fileResult.Errors...)
		}
	}

	result.Success = result.FilesFailed == 0
	return result
}

// processFile handles one file end to end. Any failure is captured in the
// FileResult and never propagated upward.
func (o *Orchestrator) processFile(fs remotefs.FileSystem, folder config.Folder,
	name, workDir string, names map[string]string, resend map[string]bool) FileResult {

	result := FileResult{
		FileName:  o.absoluteName(folder, name),
		Validated: true,
	}

	// stage the file locally for hashing, validation, and delivery
	localPath := filepath.Join(workDir, name)
	if !fs.Download(o.remoteName(folder, name), localPath) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Couldn't stage file %s", result.FileName))
		return result
	}

	checksum, err := HashFile(localPath)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Couldn't hash file %s: %s", result.FileName, err))
		return result
	}
	result.Checksum = checksum

	matchFound, shouldSend := ShouldSend(checksum, names, resend)
	if !shouldSend {
		slog.Debug(fmt.Sprintf("Skipping already-processed file %s", result.FileName))
		result.Skipped = true
		return result
	}
	if matchFound {
		o.logMessage(fmt.Sprintf("Resending %s", result.FileName))
	}

	if folder.RequiresValidation() {
		valid, validationErrors := o.validator.Validate(localPath)
		result.Validated = valid
		if !valid {
			for _, message := range validationErrors {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: %s", result.FileName, message))
			}
			if !folder.ForceEdiValidation {
				return result
			}
			o.logMessage(fmt.Sprintf("Delivering %s despite validation errors", result.FileName))
		}
	}

	// splitting and conversion produce the actual delivery payloads
	payloads, err := o.preparePayloads(folder, localPath, workDir)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Couldn't prepare %s for delivery: %s", result.FileName, err))
		return result
	}

	sendResults := make([]SendResult, 0)
	for _, payload := range payloads {
		sendResults = append(sendResults, o.sendManager.SendAll(folder, o.settings, payload)...)
	}
	if len(sendResults) == 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("No backends enabled for %s", result.FileName))
		return result
	}

	if !AllSucceeded(sendResults) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s: failed backends: %s", result.FileName,
				strings.Join(FailedBackends(sendResults), ", ")))
		return result
	}

	// the ledger write happens only after every enabled backend succeeded
	entry := ledger.Entry{
		FolderId: folder.Id,
		FileName: result.FileName,
		Checksum: checksum,
		SentAt:   time.Now(),
	}
	for _, sendResult := range sendResults {
		switch sendResult.Backend {
		case "copy":
			entry.CopyDestination = sendResult.Destination
		case "ftp":
			entry.FtpDestination = sendResult.Destination
		case "email":
			entry.EmailDestination = sendResult.Destination
		}
	}
	if err := o.ledger.Insert(entry); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Couldn't record %s in the ledger: %s", result.FileName, err))
		return result
	}

	o.logMessage(fmt.Sprintf("Delivered %s", result.FileName))
	result.Sent = true
	return result
}

// preparePayloads applies the folder's EDI processing options to a staged
// file and returns the files to deliver. With split_edi set, each document
// in the file is delivered separately; with convert_to_format "csv", the
// detail records are delivered as a CSV rendition.
func (o *Orchestrator) preparePayloads(folder config.Folder, localPath, workDir string) ([]string, error) {
	if !folder.SplitEdi && folder.ConvertToFormat == "" {
		return []string{localPath}, nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	documents, err := edi.SplitDocuments(file)
	file.Close()
	if err != nil {
		return nil, err
	}

	if !folder.SplitEdi {
		documents = [][]string{flattenDocuments(documents)}
	}

	base := strings.TrimSuffix(filepath.Base(localPath), filepath.Ext(localPath))
	payloads := make([]string, 0, len(documents))
	for i, document := range documents {
		var name, content string
		switch folder.ConvertToFormat {
		case "":
			name = fmt.Sprintf("%s-%d%s", base, i+1, filepath.Ext(localPath))
			content = strings.Join(document, "\r\n") + "\r\n"
		case "csv":
			if folder.SplitEdi {
				name = fmt.Sprintf("%s-%d.csv", base, i+1)
			} else {
				name = base + ".csv"
			}
			content = documentToCSV(document)
		default:
			return nil, fmt.Errorf("Unsupported conversion format: %s", folder.ConvertToFormat)
		}
		path := filepath.Join(workDir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, err
		}
		payloads = append(payloads, path)
	}
	return payloads, nil
}

func flattenDocuments(documents [][]string) []string {
	flattened := make([]string, 0)
	for _, document := range documents {
		flattened = append(flattened, document...)
	}
	return flattened
}

// documentToCSV renders a document's detail records as CSV rows of
// record type, UPC, and raw line.
func documentToCSV(document []string) string {
	var builder strings.Builder
	writer := csv.NewWriter(&builder)
	writer.Write([]string{"record_type", "upc", "line"})
	for _, record := range edi.CaptureRecords(document) {
		writer.Write([]string{
			fmt.Sprintf("%v", record["record_type"]),
			fmt.Sprintf("%v", record["upc"]),
			fmt.Sprintf("%v", record["line"]),
		})
	}
	writer.Flush()
	return builder.String()
}

// Summary describes the run so far.
func (o *Orchestrator) Summary() string {
	return fmt.Sprintf("%d processed, %d errors", o.processedCount, o.errorCount)
}

// Reset clears the orchestrator's run counters.
func (o *Orchestrator) Reset() {
	o.processedCount = 0
	o.errorCount = 0
}

func (o *Orchestrator) protocol(folder config.Folder) string {
	if folder.Protocol == "" {
		return "local"
	}
	return strings.ToLower(folder.Protocol)
}

// the path listed within the folder's file system: local file systems are
// rooted at the folder path itself
func (o *Orchestrator) rootPath(folder config.Folder) string {
	if o.protocol(folder) == "local" {
		return "."
	}
	return folder.Path
}

func (o *Orchestrator) remoteName(folder config.Folder, name string) string {
	if o.protocol(folder) == "local" {
		return name
	}
	return path.Join(folder.Path, name)
}

// the file's absolute name as recorded in the ledger
func (o *Orchestrator) absoluteName(folder config.Folder, name string) string {
	if o.protocol(folder) == "local" {
		if absolute, err := filepath.Abs(filepath.Join(folder.Path, name)); err == nil {
			return absolute
		}
	}
	return path.Join(folder.Path, name)
}

func (o *Orchestrator) logMessage(message string) {
	slog.Info(message)
	fmt.Fprintf(o.runLog, "%s\r\n", message)
}

func (o *Orchestrator) logError(message string) {
	slog.Error(message)
	fmt.Fprintf(o.runLog, "ERROR: %s\r\n", message)
}
