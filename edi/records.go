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

package edi

import (
	"bufio"
	"io"
	"strings"
)

// This file splits multi-document EDI streams and captures their detail
// lines as records for the pipeline.

// SplitDocuments splits an EDI stream into its constituent documents. A new
// document starts at every 'A' header line; lines before the first header are
// grouped into a headerless leading document.
func SplitDocuments(r io.Reader) ([][]string, error) {
	documents := make([][]string, 0)
	var current []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "A") && current != nil {
			documents = append(documents, current)
			current = nil
		}
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		documents = append(documents, current)
	}
	return documents, nil
}

// CaptureRecords captures the detail lines of a document as records keyed by
// record_type, upc, and line.
func CaptureRecords(document []string) []map[string]any {
	records := make([]map[string]any, 0)
	for _, line := range document {
		if !strings.HasPrefix(line, "B") {
			continue
		}
		upc := ""
		if len(line) >= 12 {
			upc = strings.TrimSpace(line[1:12])
		}
		records = append(records, map[string]any{
			"record_type": "B",
			"upc":         upc,
			"line":        line,
		})
	}
	return records
}
