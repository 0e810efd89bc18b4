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
	"fmt"
	"strings"
)

// A Folder describes one watched source folder and the deliveries configured
// for it. Folder configurations are owned by the metadata store; the dispatch
// core receives them as immutable snapshots for the duration of a run.
type Folder struct {
	// stable numeric identifier and display alias
	Id    int64  `yaml:"id"`
	Alias string `yaml:"alias,omitempty"`
	// inactive folders are skipped by dispatch runs
	Active bool `yaml:"folder_is_active"`

	// source location: protocol in {local, smb, sftp, ftp} plus the
	// connection parameters that protocol requires
	Protocol string `yaml:"protocol"`
	Path     string `yaml:"folder_name"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Share    string `yaml:"share,omitempty"`
	// SFTP key authentication, preferred over the password when set
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
	UseTLS         *bool  `yaml:"use_tls,omitempty"`

	// delivery backend toggles
	ProcessBackendCopy  bool `yaml:"process_backend_copy"`
	ProcessBackendFtp   bool `yaml:"process_backend_ftp"`
	ProcessBackendEmail bool `yaml:"process_backend_email"`

	// copy backend destination
	CopyToDirectory string `yaml:"copy_to_directory,omitempty"`

	// ftp backend destination
	FtpHost     string `yaml:"ftp_server,omitempty"`
	FtpPort     int    `yaml:"ftp_port,omitempty"`
	FtpFolder   string `yaml:"ftp_folder,omitempty"`
	FtpUsername string `yaml:"ftp_username,omitempty"`
	FtpPassword string `yaml:"ftp_password,omitempty"`

	// email backend destination
	EmailTo      string `yaml:"email_to,omitempty"`
	EmailSubject string `yaml:"email_subject_line,omitempty"`

	// EDI processing flags
	ProcessEdi         bool   `yaml:"process_edi"`
	TweakEdi           bool   `yaml:"tweak_edi"`
	SplitEdi           bool   `yaml:"split_edi"`
	ForceEdiValidation bool   `yaml:"force_edi_validation"`
	ConvertToFormat    string `yaml:"convert_to_format,omitempty"`
}

// folder source protocols recognized by the dispatcher
var validProtocols = map[string]bool{
	"local": true,
	"smb":   true,
	"sftp":  true,
	"ftp":   true,
}

// returns a display name for the folder (the alias when present)
func (f Folder) Name() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Path
}

// reports whether the folder's files should be validated as EDI before
// delivery
func (f Folder) RequiresValidation() bool {
	return f.ProcessEdi || f.TweakEdi || f.SplitEdi || f.ForceEdiValidation
}

// SourceParams assembles the remote-FS parameter map for the folder's source
// protocol.
func (f Folder) SourceParams() map[string]any {
	params := make(map[string]any)
	switch strings.ToLower(f.Protocol) {
	case "local":
		params["base_path"] = f.Path
	case "smb":
		params["host"] = f.Host
		params["username"] = f.Username
		params["password"] = f.Password
		params["share"] = f.Share
		if f.Port != 0 {
			params["port"] = f.Port
		}
	case "sftp":
		params["host"] = f.Host
		params["username"] = f.Username
		params["password"] = f.Password
		if f.Port != 0 {
			params["port"] = f.Port
		}
		if f.PrivateKeyPath != "" {
			params["private_key_path"] = f.PrivateKeyPath
		}
	case "ftp":
		params["host"] = f.Host
		params["username"] = f.Username
		params["password"] = f.Password
		if f.Port != 0 {
			params["port"] = f.Port
		}
		if f.UseTLS != nil {
			params["use_tls"] = *f.UseTLS
		}
	}
	return params
}

// Validate checks the folder configuration for internal consistency.
func (f Folder) Validate() error {
	if f.Path == "" {
		return fmt.Errorf("No path given for folder %d", f.Id)
	}
	protocol := strings.ToLower(f.Protocol)
	if protocol == "" {
		protocol = "local"
	}
	if !validProtocols[protocol] {
		return fmt.Errorf("Invalid protocol for folder '%s': %s", f.Name(), f.Protocol)
	}
	if protocol != "local" && f.Host == "" {
		return fmt.Errorf("No host given for %s folder '%s'", protocol, f.Name())
	}
	if f.Port < 0 || f.Port > 65535 {
		return fmt.Errorf("Invalid port for folder '%s': %d", f.Name(), f.Port)
	}
	return nil
}
