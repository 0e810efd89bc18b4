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
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// a type with service configuration parameters
type serviceConfig struct {
	// name of existing directory in which the engine stores persistent data
	DataDirectory string `yaml:"data_dir,omitempty"`
	// path to the SQLite file holding the processed-file ledger
	// default: <data_dir>/ledger.db
	LedgerPath string `yaml:"ledger_path,omitempty"`
	// directory in which dispatch run logs are written (empty disables them)
	RunLogDirectory string `yaml:"run_log_dir,omitempty"`
	// flag indicating whether debug logging is enabled
	Debug bool `yaml:"debug"`
}

// a type with settings shared by all folders (delivery credentials and
// administrative contacts)
type SettingsConfig struct {
	// SMTP relay used by the email backend
	SMTPHost     string `yaml:"smtp_host,omitempty"`
	SMTPPort     int    `yaml:"smtp_port,omitempty"`
	SMTPUsername string `yaml:"smtp_username,omitempty"`
	SMTPPassword string `yaml:"smtp_password,omitempty"`
	// sender address placed on outgoing mail
	EmailFrom string `yaml:"email_from,omitempty"`
	// address to which run reports are sent
	AdminEmail string `yaml:"admin_email,omitempty"`
}

// global config variables
var Service serviceConfig
var Settings SettingsConfig
var Folders []Folder

// This struct performs the unmarshalling from the YAML config file and then
// copies its fields to the globals above.
type configFile struct {
	Service  serviceConfig  `yaml:"service"`
	Settings SettingsConfig `yaml:"settings"`
	Folders  []Folder       `yaml:"folders"`
}

// This helper reads configuration data, returning an error indicating success
// or failure. All environment variables of the form ${ENV_VAR} are expanded.
func readConfig(bytes []byte) error {
	// before we do anything else, expand any provided environment variables
	bytes = []byte(os.ExpandEnv(string(bytes)))

	var conf configFile
	conf.Settings.SMTPPort = 25
	err := yaml.Unmarshal(bytes, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	// copy the config data into place, performing any needed conversions
	Service = conf.Service
	if Service.LedgerPath == "" && Service.DataDirectory != "" {
		Service.LedgerPath = Service.DataDirectory + "/ledger.db"
	}
	Settings = conf.Settings
	Folders = conf.Folders
	for i := range Folders {
		if Folders[i].FtpPort == 0 {
			Folders[i].FtpPort = 21
		}
	}
	return nil
}

func validateServiceParameters(params serviceConfig) error {
	if params.DataDirectory != "" {
		info, err := os.Stat(params.DataDirectory)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("Invalid data directory: %s", params.DataDirectory)
		}
	}
	return nil
}

func validateSettings(settings SettingsConfig) error {
	if settings.SMTPPort < 0 || settings.SMTPPort > 65535 {
		return fmt.Errorf("Invalid smtp_port: %d (must be 0-65535)", settings.SMTPPort)
	}
	return nil
}

func validateFolders(folders []Folder) error {
	seen := make(map[int64]bool)
	for _, folder := range folders {
		if err := folder.Validate(); err != nil {
			return err
		}
		if seen[folder.Id] {
			return fmt.Errorf("Duplicate folder id: %d", folder.Id)
		}
		seen[folder.Id] = true
	}
	return nil
}

// This helper validates the configuration, returning an error that indicates
// success or failure.
func validateConfig() error {
	err := validateServiceParameters(Service)
	if err != nil {
		return err
	}
	err = validateSettings(Settings)
	if err != nil {
		return err
	}
	err = validateFolders(Folders)
	return err
}

// Initializes the engine configuration using the given YAML byte data.
func Init(yamlData []byte) error {
	err := readConfig(yamlData)
	if err != nil {
		return err
	}
	err = validateConfig()
	return err
}
