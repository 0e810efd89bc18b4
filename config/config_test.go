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

package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const validConfig = `
service:
  data_dir: TESTING_DIR
  debug: true
settings:
  smtp_host: mail.example.com
  smtp_port: 587
  email_from: dispatch@example.com
folders:
  - id: 1
    alias: invoices
    folder_is_active: true
    protocol: local
    folder_name: TESTING_DIR
    process_backend_copy: true
    copy_to_directory: TESTING_DIR
    process_edi: true
  - id: 2
    alias: remote drops
    folder_is_active: false
    protocol: sftp
    folder_name: /inbound
    host: drop.example.com
    username: batch
    password: hunter2
    private_key_path: /keys/id_rsa
    process_backend_email: true
    email_to: ops@example.com
`

func initTestConfig(t *testing.T, text string) error {
	dir := t.TempDir()
	return Init([]byte(strings.ReplaceAll(text, "TESTING_DIR", dir)))
}

func TestInitValidConfig(t *testing.T) {
	assert := assert.New(t)

	err := initTestConfig(t, validConfig)
	assert.Nil(err)
	assert.True(Service.Debug)
	assert.NotEmpty(Service.LedgerPath) // derived from data_dir
	assert.Equal("mail.example.com", Settings.SMTPHost)
	assert.Equal(587, Settings.SMTPPort)
	assert.Len(Folders, 2)
	assert.Equal("invoices", Folders[0].Name())
	assert.True(Folders[0].RequiresValidation())
	assert.False(Folders[1].Active)
	assert.Equal(21, Folders[1].FtpPort) // default applied
}

func TestInitExpandsEnvironment(t *testing.T) {
	assert := assert.New(t)

	os.Setenv("BATCHLINE_TEST_ALIAS", "expanded")
	defer os.Unsetenv("BATCHLINE_TEST_ALIAS")
	err := initTestConfig(t, strings.ReplaceAll(validConfig, "invoices", "${BATCHLINE_TEST_ALIAS}"))
	assert.Nil(err)
	assert.Equal("expanded", Folders[0].Alias)
}

func TestInitRejectsBadProtocol(t *testing.T) {
	assert := assert.New(t)

	err := initTestConfig(t, strings.ReplaceAll(validConfig, "protocol: sftp", "protocol: gopher"))
	assert.NotNil(err)
	assert.Contains(err.Error(), "Invalid protocol")
}

func TestInitRejectsDuplicateFolderIds(t *testing.T) {
	assert := assert.New(t)

	err := initTestConfig(t, strings.ReplaceAll(validConfig, "id: 2", "id: 1"))
	assert.NotNil(err)
	assert.Contains(err.Error(), "Duplicate folder id")
}

func TestInitRejectsRemoteFolderWithoutHost(t *testing.T) {
	assert := assert.New(t)

	err := initTestConfig(t, strings.ReplaceAll(validConfig, "host: drop.example.com", ""))
	assert.NotNil(err)
	assert.Contains(err.Error(), "No host")
}

func TestSourceParams(t *testing.T) {
	assert := assert.New(t)

	local := Folder{Protocol: "local", Path: "/data/in"}
	assert.Equal("/data/in", local.SourceParams()["base_path"])

	sftp := Folder{
		Protocol: "sftp", Path: "/inbound", Host: "h", Username: "u",
		Password: "p", Port: 2222, PrivateKeyPath: "/keys/id_rsa",
	}
	params := sftp.SourceParams()
	assert.Equal("h", params["host"])
	assert.Equal(2222, params["port"])
	assert.Equal("/keys/id_rsa", params["private_key_path"])

	useTLS := false
	ftp := Folder{Protocol: "ftp", Path: "/in", Host: "h", Username: "u", Password: "p", UseTLS: &useTLS}
	assert.Equal(false, ftp.SourceParams()["use_tls"])
}
