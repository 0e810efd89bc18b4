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

// This package holds the processed-file ledger, which records every file the
// dispatcher has delivered. The (folder id, content checksum) pair is the
// deduplication key: a file whose checksum already appears for its folder is
// not sent again unless its entry carries the resend flag.
package ledger

import (
	"time"
)

// a record for a single delivered file
type Entry struct {
	// identifier of the folder configuration the file came from
	FolderId int64
	// absolute name of the file as it appeared in the source folder
	FileName string
	// lower-hex MD5 of the file's content
	Checksum string
	// set by an operator to force the file to be delivered again
	ResendFlag bool
	// destinations recorded per backend, when known
	CopyDestination, FtpDestination, EmailDestination string
	// time of delivery
	SentAt time.Time
}

// This type represents the ledger contract consumed by the dispatch core.
// The core creates entries after successful delivery and never updates or
// deletes them; clearing entries and flipping resend flags belong to the
// surrounding application.
type Ledger interface {
	// retrieves all entries recorded for the given folder
	FindByFolder(folderId int64) ([]Entry, error)
	// records a delivered file
	Insert(entry Entry) error
}

// MatchSets derives the per-folder lookup structures used during a dispatch
// run: a checksum -> file name map and the set of checksums flagged for
// resend.
func MatchSets(entries []Entry) (map[string]string, map[string]bool) {
	names := make(map[string]string, len(entries))
	resend := make(map[string]bool)
	for _, entry := range entries {
		names[entry.Checksum] = entry.FileName
		if entry.ResendFlag {
			resend[entry.Checksum] = true
		}
	}
	return names, resend
}
