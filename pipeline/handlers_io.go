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

package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tealeg/xlsx"

	"github.com/batchline/batchline/edi"
)

// This file implements the structural and I/O node handlers. The
// folderSource and output handlers are the retry-bearing endpoints; they
// fetch and deliver through the remote file system capability and own their
// connection for the duration of one invocation.

func (e *Executor) handleStart(node *Node, ctx *Context) error {
	return nil
}

func (e *Executor) handleEnd(node *Node, ctx *Context) error {
	return nil
}

func (e *Executor) handleTrigger(node *Node, ctx *Context) error {
	// triggers are resolved by the caller; within a run they pass through
	return nil
}

func (e *Executor) handleFolderSource(node *Node, ctx *Context) error {
	config := node.Config.(SourceConfig)

	sourcePath := config.Path
	if sourcePath == "" {
		sourcePath = ctx.InputFile
	}
	if sourcePath == "" {
		return fmt.Errorf("No input path configured")
	}

	params := config.Params
	remoteName := sourcePath
	if config.Protocol == "local" {
		// when no base directory is configured, root the file system at the
		// file's own directory so absolute input paths work
		if base, ok := params["base_path"].(string); !ok || base == "." {
			params = map[string]any{"base_path": filepath.Dir(sourcePath)}
			remoteName = filepath.Base(sourcePath)
		}
	}

	fs, err := e.newFS(config.Protocol, params)
	if err != nil {
		return err
	}
	defer fs.Close()

	if !fs.FileExists(remoteName) {
		return fmt.Errorf("File not found: %s", sourcePath)
	}

	workDir, err := os.MkdirTemp("", "batchline-run-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	localPath := filepath.Join(workDir, path.Base(remoteName))
	if !fs.Download(remoteName, localPath) {
		return fmt.Errorf("Couldn't download file from %s", sourcePath)
	}

	format := config.Format
	if format == "" {
		format = deriveFormat(sourcePath, "edi")
	}
	records, err := readRecords(localPath, format)
	if err != nil {
		return err
	}
	ctx.SetOutput(node.Id, ListValue(records))
	return nil
}

func (e *Executor) handleOutput(node *Node, ctx *Context) error {
	config := node.Config.(OutputConfig)
	value := e.upstreamValue(node, ctx)

	outputPath := config.Path
	if outputPath == "" {
		outputPath = ctx.OutputFile
	}
	if outputPath == "" {
		return fmt.Errorf("No output path configured")
	}

	format := config.Format
	if format == "" {
		format = deriveFormat(outputPath, "csv")
	}
	content, err := serializeValue(value, format)
	if err != nil {
		return err
	}

	if config.Protocol == "local" {
		return os.WriteFile(outputPath, []byte(content), 0644)
	}

	// stage locally and upload through the remote file system
	fs, err := e.newFS(config.Protocol, config.Params)
	if err != nil {
		return err
	}
	defer fs.Close()

	workDir, err := os.MkdirTemp("", "batchline-run-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	localPath := filepath.Join(workDir, path.Base(outputPath))
	if err := os.WriteFile(localPath, []byte(content), 0644); err != nil {
		return err
	}
	if !fs.Upload(localPath, outputPath) {
		return fmt.Errorf("Couldn't upload file to %s", outputPath)
	}
	return nil
}

func (e *Executor) handleReadJson(node *Node, ctx *Context) error {
	config := node.Config.(ReadJsonConfig)
	if config.Path == "" {
		ctx.SetOutput(node.Id, e.upstreamValue(node, ctx))
		return nil
	}

	data, err := os.ReadFile(config.Path)
	if err != nil {
		return fmt.Errorf("Couldn't read JSON file: %s", err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("Couldn't parse JSON file: %s", err)
	}

	// navigate a dotted path into the document
	if config.ArrayPath != "" {
		for _, key := range strings.Split(config.ArrayPath, ".") {
			object, ok := decoded.(map[string]any)
			if !ok {
				break
			}
			inner, found := object[key]
			if !found {
				break
			}
			decoded = inner
		}
	}

	ctx.SetOutput(node.Id, valueFromJSON(decoded))
	return nil
}

func (e *Executor) handleWriteJson(node *Node, ctx *Context) error {
	config := node.Config.(WriteJsonConfig)
	value := e.upstreamValue(node, ctx)

	if config.Path != "" {
		var payload any
		if record, single := value.Record(); single {
			payload = record
		} else {
			payload = value.Records()
		}
		if config.RootKey != "" {
			payload = map[string]any{config.RootKey: payload}
		}
		var encoded []byte
		var err error
		if config.Pretty {
			encoded, err = json.MarshalIndent(payload, "", "  ")
		} else {
			encoded, err = json.Marshal(payload)
		}
		if err != nil {
			return err
		}
		if err := os.WriteFile(config.Path, encoded, 0644); err != nil {
			return fmt.Errorf("Couldn't write JSON file: %s", err)
		}
	}

	ctx.SetOutput(node.Id, value)
	return nil
}

func (e *Executor) handleReadExcel(node *Node, ctx *Context) error {
	config := node.Config.(ReadExcelConfig)
	if config.Path == "" {
		ctx.SetOutput(node.Id, e.upstreamValue(node, ctx))
		return nil
	}

	file, err := xlsx.OpenFile(config.Path)
	if err != nil {
		return fmt.Errorf("Couldn't read Excel file: %s", err)
	}
	sheet, found := file.Sheet[config.SheetName]
	if !found {
		if len(file.Sheets) == 0 {
			return fmt.Errorf("Excel file has no sheets")
		}
		sheet = file.Sheets[0]
	}

	records := make([]Record, 0)
	var header []string
	for rowIndex, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.Value
		}
		if rowIndex == 0 && config.HasHeader {
			header = cells
			continue
		}
		record := make(Record)
		for i, value := range cells {
			name := fmt.Sprintf("column_%d", i+1)
			if i < len(header) && header[i] != "" {
				name = header[i]
			}
			record[name] = value
		}
		records = append(records, record)
	}

	ctx.SetOutput(node.Id, ListValue(records))
	return nil
}

func (e *Executor) handleWriteExcel(node *Node, ctx *Context) error {
	config := node.Config.(WriteExcelConfig)
	value := e.upstreamValue(node, ctx)

	if config.Path != "" {
		records := value.Records()
		file := xlsx.NewFile()
		sheet, err := file.AddSheet(config.SheetName)
		if err != nil {
			return err
		}

		columns := columnSet(records)
		headerRow := sheet.AddRow()
		for _, column := range columns {
			headerRow.AddCell().SetString(column)
		}
		for _, record := range records {
			row := sheet.AddRow()
			for _, column := range columns {
				row.AddCell().SetValue(record[column])
			}
		}
		if err := file.Save(config.Path); err != nil {
			return fmt.Errorf("Couldn't write Excel file: %s", err)
		}
	}

	ctx.SetOutput(node.Id, value)
	return nil
}

//---------------------
// Tabular (de)coding
//---------------------

// deriveFormat picks a tabular format from a path's extension
func deriveFormat(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".edi":
		return "edi"
	case ".json":
		return "json"
	case ".csv":
		return "csv"
	case ".txt":
		return "text"
	}
	return fallback
}

// readRecords parses a staged input file into records per the configured
// format.
func readRecords(path, format string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch format {
	case "edi":
		documents, err := edi.SplitDocuments(file)
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0)
		for _, document := range documents {
			records = append(records, edi.CaptureRecords(document)...)
		}
		return records, nil

	case "csv":
		reader := csv.NewReader(file)
		reader.FieldsPerRecord = -1
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0)
		if len(rows) == 0 {
			return records, nil
		}
		header := rows[0]
		for _, row := range rows[1:] {
			record := make(Record)
			for i, value := range row {
				name := fmt.Sprintf("column_%d", i+1)
				if i < len(header) {
					name = header[i]
				}
				record[name] = value
			}
			records = append(records, record)
		}
		return records, nil

	case "json":
		var decoded any
		if err := json.NewDecoder(file).Decode(&decoded); err != nil {
			return nil, err
		}
		return valueFromJSON(decoded).Records(), nil

	case "text":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0)
		for _, line := range strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n") {
			if line != "" {
				records = append(records, Record{"line": line})
			}
		}
		return records, nil
	}
	return nil, fmt.Errorf("Unsupported input format: %s", format)
}

// serializeValue renders a node output for delivery.
func serializeValue(value Value, format string) (string, error) {
	switch format {
	case "json":
		var payload any
		if record, single := value.Record(); single {
			payload = record
		} else {
			payload = value.Records()
		}
		encoded, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", err
		}
		return string(encoded), nil

	case "csv":
		records := value.Records()
		columns := columnSet(records)
		var builder strings.Builder
		writer := csv.NewWriter(&builder)
		writer.Write(columns)
		for _, record := range records {
			row := make([]string, len(columns))
			for i, column := range columns {
				row[i] = toString(record[column])
			}
			writer.Write(row)
		}
		writer.Flush()
		return builder.String(), writer.Error()

	case "text":
		if value.kind == textValue {
			return value.Text(), nil
		}
		// records captured from EDI carry their raw line
		lines := make([]string, 0)
		for _, record := range value.Records() {
			if line, found := record["line"]; found {
				lines = append(lines, toString(line))
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\r\n") + "\r\n", nil
		}
		return serializeValue(value, "csv")
	}
	return "", fmt.Errorf("Unsupported output format: %s", format)
}

// columnSet returns the union of field names across records, sorted so that
// serialized output is deterministic.
func columnSet(records []Record) []string {
	seen := make(map[string]bool)
	columns := make([]string, 0)
	for _, record := range records {
		for name := range record {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// valueFromJSON shapes a decoded JSON document into a Value.
func valueFromJSON(decoded any) Value {
	switch v := decoded.(type) {
	case []any:
		records := make([]Record, 0, len(v))
		for _, item := range v {
			if record, ok := item.(map[string]any); ok {
				records = append(records, record)
			}
		}
		return ListValue(records)
	case map[string]any:
		return SingleValue(v)
	case string:
		return TextValue(v)
	}
	return Value{}
}
