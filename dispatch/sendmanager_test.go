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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchline/batchline/bltest"
	"github.com/batchline/batchline/config"
	"github.com/batchline/batchline/dispatch"
)

func TestEnabledBackendsOrder(t *testing.T) {
	assert := assert.New(t)

	manager := dispatch.NewSendManager(map[string]dispatch.Backend{
		"copy":  bltest.NewMockBackend("copy"),
		"ftp":   bltest.NewMockBackend("ftp"),
		"email": bltest.NewMockBackend("email"),
	})

	folder := config.Folder{
		ProcessBackendEmail: true,
		ProcessBackendCopy:  true,
	}
	assert.Equal([]string{"copy", "email"}, manager.EnabledBackends(folder))

	folder.ProcessBackendFtp = true
	assert.Equal([]string{"copy", "ftp", "email"}, manager.EnabledBackends(folder))

	assert.Empty(manager.EnabledBackends(config.Folder{}))
}

func TestSendAllAttemptsEveryBackend(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "f.edi")
	require.Nil(t, os.WriteFile(path, []byte("payload"), 0644))

	failing := bltest.NewMockBackend("copy")
	failing.FailWith = "copy exploded"
	succeeding := bltest.NewMockBackend("ftp")

	manager := dispatch.NewSendManager(map[string]dispatch.Backend{
		"copy": failing,
		"ftp":  succeeding,
	})
	folder := config.Folder{ProcessBackendCopy: true, ProcessBackendFtp: true}

	results := manager.SendAll(folder, config.SettingsConfig{}, path)
	require.Len(t, results, 2)
	assert.False(results[0].Success)
	assert.Equal("copy exploded", results[0].Error)
	assert.True(results[1].Success)
	assert.Len(succeeding.Sends(), 1) // the failure didn't abort the fan-out

	assert.False(dispatch.AllSucceeded(results))
	assert.Equal([]string{"copy"}, dispatch.FailedBackends(results))
}

func TestAllSucceeded(t *testing.T) {
	assert := assert.New(t)

	assert.False(dispatch.AllSucceeded(nil))
	assert.True(dispatch.AllSucceeded([]dispatch.SendResult{{Success: true}}))
	assert.False(dispatch.AllSucceeded([]dispatch.SendResult{{Success: true}, {}}))
}

func TestValidateReportsPerBackendProblems(t *testing.T) {
	assert := assert.New(t)

	manager := dispatch.NewSendManager(dispatch.DefaultBackends())

	folder := config.Folder{
		ProcessBackendCopy:  true,
		ProcessBackendEmail: true,
	}
	problems := manager.Validate(folder)
	assert.Len(problems, 2)
	assert.Contains(problems[0], "copy_to_directory")
	assert.Contains(problems[1], "email_to")

	folder.CopyToDirectory = "/archive"
	folder.EmailTo = "ops@example.com"
	assert.Empty(manager.Validate(folder))
}

func TestValidateFtpBackend(t *testing.T) {
	assert := assert.New(t)

	manager := dispatch.NewSendManager(dispatch.DefaultBackends())
	folder := config.Folder{ProcessBackendFtp: true}
	problems := manager.Validate(folder)
	assert.NotEmpty(problems)
	assert.Contains(problems[0], "ftp_server")
}
