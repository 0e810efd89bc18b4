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

package dispatch_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchline/batchline/bltest"
	"github.com/batchline/batchline/config"
	"github.com/batchline/batchline/dispatch"
	"github.com/batchline/batchline/ledger"
)

// builds a local folder configuration over a fresh source directory
func newTestFolder(t *testing.T, id int64) (config.Folder, string) {
	dir := t.TempDir()
	folder := config.Folder{
		Id:                 id,
		Alias:              "test folder",
		Active:             true,
		Protocol:           "local",
		Path:               dir,
		ProcessBackendCopy: true,
		CopyToDirectory:    "/unused",
	}
	return folder, dir
}

func newTestOrchestrator(l ledger.Ledger, mock *bltest.MockBackend) *dispatch.Orchestrator {
	return dispatch.NewOrchestrator(dispatch.OrchestratorConfig{
		Ledger:   l,
		Backends: map[string]dispatch.Backend{"copy": mock},
	})
}

func TestProcessFolderDeliversNewFiles(t *testing.T) {
	assert := assert.New(t)

	folder, dir := newTestFolder(t, 7)
	require.Nil(t, os.WriteFile(filepath.Join(dir, "a.edi"), []byte("alpha"), 0644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "b.edi"), []byte("bravo"), 0644))

	l := ledger.NewMemoryLedger()
	mock := bltest.NewMockBackend("copy")
	o := newTestOrchestrator(l, mock)

	result := o.ProcessFolder(folder)
	assert.True(result.Success)
	assert.Equal(2, result.FilesProcessed)
	assert.Zero(result.FilesFailed)
	assert.Len(mock.Sends(), 2)
	assert.Equal(2, l.Len())

	entries, _ := l.FindByFolder(7)
	assert.Len(entries, 2)
	assert.True(strings.HasSuffix(entries[0].FileName, ".edi"))
	assert.Len(entries[0].Checksum, 32)
}

func TestProcessFolderSkipsProcessedFiles(t *testing.T) {
	assert := assert.New(t)

	folder, dir := newTestFolder(t, 7)
	// the empty file hashes to the well-known empty MD5
	require.Nil(t, os.WriteFile(filepath.Join(dir, "a.edi"), []byte{}, 0644))

	l := ledger.NewMemoryLedger()
	require.Nil(t, l.Insert(ledger.Entry{
		FolderId: 7,
		FileName: filepath.Join(dir, "a.edi"),
		Checksum: "d41d8cd98f00b204e9800998ecf8427e",
	}))

	mock := bltest.NewMockBackend("copy")
	o := newTestOrchestrator(l, mock)

	result := o.ProcessFolder(folder)
	assert.True(result.Success)
	assert.Zero(result.FilesProcessed)
	assert.Equal(1, result.FilesSkipped)
	assert.Empty(mock.Sends()) // dedup soundness: no send for a seen checksum
	assert.Equal(1, l.Len())   // and no new ledger entry
}

func TestProcessFolderResendsFlaggedFiles(t *testing.T) {
	assert := assert.New(t)

	folder, dir := newTestFolder(t, 7)
	require.Nil(t, os.WriteFile(filepath.Join(dir, "a.edi"), []byte{}, 0644))

	l := ledger.NewMemoryLedger()
	require.Nil(t, l.Insert(ledger.Entry{
		FolderId:   7,
		FileName:   filepath.Join(dir, "a.edi"),
		Checksum:   "d41d8cd98f00b204e9800998ecf8427e",
		ResendFlag: true,
	}))

	mock := bltest.NewMockBackend("copy")
	o := newTestOrchestrator(l, mock)

	result := o.ProcessFolder(folder)
	assert.True(result.Success)
	assert.Equal(1, result.FilesProcessed)
	assert.Len(mock.Sends(), 1)
}

func TestProcessFolderMissingDirectory(t *testing.T) {
	assert := assert.New(t)

	folder := config.Folder{
		Id: 1, Active: true, Protocol: "local", Path: "/no/such/source/folder",
		ProcessBackendCopy: true,
	}
	o := newTestOrchestrator(ledger.NewMemoryLedger(), bltest.NewMockBackend("copy"))

	result := o.ProcessFolder(folder)
	assert.False(result.Success)
	assert.Zero(result.FilesProcessed)
	require.NotEmpty(t, result.Errors)
	assert.Contains(result.Errors[0], "misconfigured")
}

func TestProcessFolderEmptyDirectory(t *testing.T) {
	assert := assert.New(t)

	folder, _ := newTestFolder(t, 2)
	var runLog bytes.Buffer
	mock := bltest.NewMockBackend("copy")
	o := dispatch.NewOrchestrator(dispatch.OrchestratorConfig{
		Ledger:   ledger.NewMemoryLedger(),
		Backends: map[string]dispatch.Backend{"copy": mock},
		RunLog:   &runLog,
	})

	result := o.ProcessFolder(folder)
	assert.True(result.Success)
	assert.Zero(result.FilesProcessed)
	assert.Contains(runLog.String(), "No files in directory")
}

func TestProcessFolderBackendFailureLeavesLedgerAlone(t *testing.T) {
	assert := assert.New(t)

	folder, dir := newTestFolder(t, 3)
	require.Nil(t, os.WriteFile(filepath.Join(dir, "a.edi"), []byte("alpha"), 0644))

	l := ledger.NewMemoryLedger()
	mock := bltest.NewMockBackend("copy")
	mock.FailWith = "disk full"
	o := newTestOrchestrator(l, mock)

	result := o.ProcessFolder(folder)
	assert.False(result.Success)
	assert.Equal(1, result.FilesFailed)
	assert.Zero(l.Len()) // nothing recorded when a backend fails
	require.NotEmpty(t, result.Errors)
	assert.Contains(result.Errors[0], "failed backends: copy")
}

func TestProcessFolderValidationSkipsInvalidEdi(t *testing.T) {
	assert := assert.New(t)

	folder, dir := newTestFolder(t, 4)
	folder.ProcessEdi = true
	require.Nil(t, os.WriteFile(filepath.Join(dir, "bad.edi"), []byte("not an edi file"), 0644))

	l := ledger.NewMemoryLedger()
	mock := bltest.NewMockBackend("copy")
	o := newTestOrchestrator(l, mock)

	result := o.ProcessFolder(folder)
	assert.False(result.Success)
	assert.Equal(1, result.FilesFailed)
	assert.Empty(mock.Sends()) // invalid files are not delivered
}

func TestProcessFolderForcedValidationStillDelivers(t *testing.T) {
	assert := assert.New(t)

	folder, dir := newTestFolder(t, 5)
	folder.ProcessEdi = true
	folder.ForceEdiValidation = true
	require.Nil(t, os.WriteFile(filepath.Join(dir, "bad.edi"), []byte("not an edi file"), 0644))

	l := ledger.NewMemoryLedger()
	mock := bltest.NewMockBackend("copy")
	o := newTestOrchestrator(l, mock)

	result := o.ProcessFolder(folder)
	assert.True(result.Success)
	assert.Equal(1, result.FilesProcessed)
	assert.Len(mock.Sends(), 1)
}

// builds a valid 77-character B record with the given UPC
func ediDetailLine(upc string) string {
	line := "B" + upc
	return line + strings.Repeat(" ", 77-len(line))
}

func TestProcessFolderSplitsEdiDocuments(t *testing.T) {
	assert := assert.New(t)

	folder, dir := newTestFolder(t, 6)
	folder.SplitEdi = true
	content := strings.Join([]string{
		"AFIRST", ediDetailLine("01234567890"),
		"ASECOND", ediDetailLine("98765432109"),
	}, "\r\n")
	require.Nil(t, os.WriteFile(filepath.Join(dir, "two.edi"), []byte(content), 0644))

	l := ledger.NewMemoryLedger()
	mock := bltest.NewMockBackend("copy")
	o := newTestOrchestrator(l, mock)

	result := o.ProcessFolder(folder)
	assert.True(result.Success)
	assert.Equal(1, result.FilesProcessed)

	sends := mock.Sends()
	require.Len(t, sends, 2) // one delivery per document
	assert.Contains(sends[0].Path, "two-1.edi")
	assert.Contains(sends[1].Path, "two-2.edi")
	assert.Equal(1, l.Len()) // one ledger entry for the source file
}

func TestProcessFolderConvertsToCSV(t *testing.T) {
	assert := assert.New(t)

	folder, dir := newTestFolder(t, 7)
	folder.ConvertToFormat = "csv"
	content := strings.Join([]string{"AHEADER", ediDetailLine("01234567890")}, "\r\n")
	require.Nil(t, os.WriteFile(filepath.Join(dir, "in.edi"), []byte(content), 0644))

	mock := bltest.NewMockBackend("copy")
	o := newTestOrchestrator(ledger.NewMemoryLedger(), mock)

	result := o.ProcessFolder(folder)
	assert.True(result.Success)

	sends := mock.Sends()
	require.Len(t, sends, 1)
	assert.True(strings.HasSuffix(sends[0].Path, "in.csv"))

	assert.Contains(sends[0].Content, "record_type,upc,line")
	assert.Contains(sends[0].Content, "01234567890")
}

func TestProcessFoldersSkipsInactive(t *testing.T) {
	assert := assert.New(t)

	active, dir := newTestFolder(t, 1)
	require.Nil(t, os.WriteFile(filepath.Join(dir, "a.edi"), []byte("alpha"), 0644))
	inactive, _ := newTestFolder(t, 2)
	inactive.Active = false

	o := newTestOrchestrator(ledger.NewMemoryLedger(), bltest.NewMockBackend("copy"))
	results := o.ProcessFolders([]config.Folder{active, inactive})
	assert.Len(results, 1)
	assert.Equal(int64(1), results[0].FolderId)
	assert.Equal("1 processed, 0 errors", o.Summary())
}
