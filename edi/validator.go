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

// This package validates fixed-record EDI files. A document consists of an
// 'A' header line, 'B' detail lines of exactly 77 characters carrying an
// 11-digit UPC in characters 2-12, and 'C' footer lines.
package edi

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// length of a complete B record and of one missing its pricing fields
const (
	detailRecordLength        = 77
	detailRecordLengthNoPrice = 71
)

// This type checks EDI files line by line. A Validator is reusable across
// files; its internal state is reset on each call.
type Validator struct {
	errors   []string
	warnings []string
}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the file at the given path and reports whether it is
// structurally valid, along with any fatal errors found.
func (v *Validator) Validate(path string) (bool, []string) {
	valid, errors, _ := v.ValidateWithWarnings(path)
	return valid, errors
}

// ValidateWithWarnings checks the file at the given path and reports fatal
// errors and non-fatal warnings separately. Warnings never make the file
// invalid.
func (v *Validator) ValidateWithWarnings(path string) (bool, []string, []string) {
	v.errors = make([]string, 0)
	v.warnings = make([]string, 0)

	file, err := os.Open(path)
	if err != nil {
		v.errors = append(v.errors, fmt.Sprintf("Couldn't open file: %s", err))
		return false, v.errors, v.warnings
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		v.checkLine(lineNumber, line)
	}
	if err := scanner.Err(); err != nil {
		v.errors = append(v.errors, fmt.Sprintf("Couldn't read file: %s", err))
	}
	if lineNumber == 0 {
		v.errors = append(v.errors, "File is empty")
	}
	return len(v.errors) == 0, v.errors, v.warnings
}

func (v *Validator) checkLine(lineNumber int, line string) {
	if lineNumber == 1 {
		if !strings.HasPrefix(line, "A") {
			v.errors = append(v.errors, "Line 1 must be an A record")
		}
		return
	}
	if line == "" {
		return
	}
	switch line[0] {
	case 'A':
		// a new document may begin mid-file in multi-document streams
	case 'B':
		v.checkDetailLine(lineNumber, line)
	case 'C':
		// structural checks only
	default:
		v.errors = append(v.errors, fmt.Sprintf("Invalid record type on line %d", lineNumber))
	}
}

func (v *Validator) checkDetailLine(lineNumber int, line string) {
	switch len(line) {
	case detailRecordLength:
	case detailRecordLengthNoPrice:
		v.warnings = append(v.warnings, fmt.Sprintf("Missing pricing on line %d", lineNumber))
	default:
		v.errors = append(v.errors,
			fmt.Sprintf("Invalid B record length %d on line %d (expected %d)",
				len(line), lineNumber, detailRecordLength))
		return
	}

	// characters 2-12 hold the UPC
	upc := strings.TrimSpace(line[1:12])
	switch {
	case upc == "":
		v.warnings = append(v.warnings, fmt.Sprintf("Blank UPC on line %d", lineNumber))
	case len(upc) == 8 && allDigits(upc):
		v.warnings = append(v.warnings, fmt.Sprintf("Suppressed UPC on line %d", lineNumber))
	case len(upc) != 11 || !allDigits(upc):
		v.errors = append(v.errors, fmt.Sprintf("Invalid UPC '%s' on line %d", upc, lineNumber))
	}
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
