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

package pipeline

import (
	"strings"
	"time"
)

// This file implements the text and date node handlers. Both apply their
// operation to every string-valued field of every record; values that fail
// to parse pass through unchanged.

func (e *Executor) handleText(node *Node, ctx *Context) error {
	config := node.Config.(TextConfig)
	in := e.upstreamValue(node, ctx)

	transformOne := func(record Record) Record {
		out := make(Record, len(record))
		for name, value := range record {
			text, isString := value.(string)
			if !isString {
				out[name] = value
				continue
			}
			switch config.Operation {
			case "replace":
				out[name] = config.pattern.ReplaceAllString(text, config.Replacement)
			case "upper":
				out[name] = strings.ToUpper(text)
			case "lower":
				out[name] = strings.ToLower(text)
			case "trim":
				out[name] = strings.TrimSpace(text)
			case "substring":
				out[name] = substring(text, config.Start, config.Length, config.hasLength)
			default:
				out[name] = text
			}
		}
		return out
	}

	if record, single := in.Record(); single {
		ctx.SetOutput(node.Id, SingleValue(transformOne(record)))
		return nil
	}
	out := make([]Record, 0, len(in.Records()))
	for _, record := range in.Records() {
		out = append(out, transformOne(record))
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

func substring(text string, start, length int, hasLength bool) string {
	runes := []rune(text)
	if start < 0 {
		start = 0
	}
	if start >= len(runes) {
		return ""
	}
	end := len(runes)
	if hasLength && start+length < end {
		end = start + length
	}
	return string(runes[start:end])
}

func (e *Executor) handleDate(node *Node, ctx *Context) error {
	config := node.Config.(DateConfig)
	in := e.upstreamValue(node, ctx)

	transformOne := func(record Record) Record {
		out := make(Record, len(record))
		for name, value := range record {
			text, isString := value.(string)
			if !isString {
				out[name] = value
				continue
			}
			switch config.Operation {
			case "parse":
				if parsed, err := time.Parse(config.Format, text); err == nil {
					out[name] = parsed.Format("2006-01-02T15:04:05")
				} else {
					out[name] = text
				}
			case "format":
				if parsed, err := time.Parse(config.InputFormat, text); err == nil {
					out[name] = parsed.Format(config.OutputFormat)
				} else {
					out[name] = text
				}
			case "add_days":
				if parsed, err := time.Parse(config.Format, text); err == nil {
					out[name] = parsed.AddDate(0, 0, config.Days).Format(config.Format)
				} else {
					out[name] = text
				}
			default:
				out[name] = text
			}
		}
		return out
	}

	if record, single := in.Record(); single {
		ctx.SetOutput(node.Id, SingleValue(transformOne(record)))
		return nil
	}
	out := make([]Record, 0, len(in.Records()))
	for _, record := range in.Records() {
		out = append(out, transformOne(record))
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}
