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

package dispatch

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/batchline/batchline/config"
	"github.com/batchline/batchline/remotefs"
)

// This backend uploads the file to an FTP server described by the folder
// configuration.

type FtpBackend struct{}

func (b *FtpBackend) Name() string {
	return "ftp"
}

func (b *FtpBackend) Destination(folder config.Folder) string {
	return fmt.Sprintf("%s:%d/%s", folder.FtpHost, folder.FtpPort, folder.FtpFolder)
}

func (b *FtpBackend) Send(folder config.Folder, settings config.SettingsConfig, localPath string) error {
	params := remotefs.Params{
		"host":     folder.FtpHost,
		"username": folder.FtpUsername,
		"password": folder.FtpPassword,
	}
	if folder.FtpPort != 0 {
		params["port"] = folder.FtpPort
	}
	fs, err := remotefs.New("ftp", params)
	if err != nil {
		return err
	}
	defer fs.Close()

	remotePath := path.Join(folder.FtpFolder, filepath.Base(localPath))
	if !fs.Upload(localPath, remotePath) {
		return fmt.Errorf("Couldn't upload '%s' to %s", localPath, b.Destination(folder))
	}
	return nil
}

func (b *FtpBackend) Validate(folder config.Folder) []string {
	var problems []string
	if folder.FtpHost == "" {
		problems = append(problems, "ftp_server is required when the ftp backend is enabled")
	}
	if folder.FtpUsername == "" {
		problems = append(problems, "ftp_username is required when the ftp backend is enabled")
	}
	if folder.FtpPort < 0 || folder.FtpPort > 65535 {
		problems = append(problems, fmt.Sprintf("ftp_port %d is out of range", folder.FtpPort))
	}
	return problems
}
