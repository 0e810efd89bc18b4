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
	"path/filepath"
	"strings"

	mail "gopkg.in/mail.v2"

	"github.com/batchline/batchline/config"
)

// This backend mails the file as an attachment through the SMTP relay in the
// shared settings.

type EmailBackend struct{}

func (b *EmailBackend) Name() string {
	return "email"
}

func (b *EmailBackend) Destination(folder config.Folder) string {
	return folder.EmailTo
}

func (b *EmailBackend) Send(folder config.Folder, settings config.SettingsConfig, path string) error {
	if settings.SMTPHost == "" {
		return fmt.Errorf("No SMTP relay configured")
	}

	message := mail.NewMessage()
	message.SetHeader("From", settings.EmailFrom)
	recipients := strings.Split(folder.EmailTo, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}
	message.SetHeader("To", recipients...)
	subject := folder.EmailSubject
	if subject == "" {
		subject = fmt.Sprintf("File from %s", folder.Name())
	}
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain",
		fmt.Sprintf("Attached: %s (folder '%s')\r\n", filepath.Base(path), folder.Name()))
	message.Attach(path)

	dialer := mail.NewDialer(settings.SMTPHost, settings.SMTPPort,
		settings.SMTPUsername, settings.SMTPPassword)
	return dialer.DialAndSend(message)
}

func (b *EmailBackend) Validate(folder config.Folder) []string {
	var problems []string
	if folder.EmailTo == "" {
		problems = append(problems, "email_to is required when the email backend is enabled")
	}
	return problems
}
