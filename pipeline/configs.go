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
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/batchline/batchline/remotefs"
)

// This file defines the typed configurations carried by each node kind and
// the parsing that produces them. Config values in the wire format may be
// stored either as JSON values or as JSON-encoded strings; both are
// accepted. Unrecognized keys are ignored.

// a single {field, operator, value} predicate
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// filter and router
type PredicateConfig struct {
	Conditions []Condition
	Logic      string // "AND" or "OR"
}

// one source -> target field mapping with an optional value transform
type FieldMapping struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Transform string `json:"transform"`
}

// remapper and extract
type RemapConfig struct {
	Mappings   []FieldMapping
	DropOthers bool
}

// one expression assignment in a transform node
type TransformRule struct {
	Field      string `json:"field"`
	Alias      string `json:"alias"`
	Expression string `json:"expression"`
	expr       *Expr
}

type TransformConfig struct {
	Rules []TransformRule
}

type SortKey struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type SortConfig struct {
	Keys []SortKey
}

type DedupeConfig struct {
	Fields []string
	Keep   string // "first" or "last"
}

type UnionConfig struct{}

// pivot spreads one field's values into columns, grouped by an index field
type PivotConfig struct {
	IndexField string
	NameField  string
	ValueField string
}

// unpivot melts columns into name/value rows, carrying the kept fields
type UnpivotConfig struct {
	KeepFields []string
	NameField  string
	ValueField string
}

type JoinKeyPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type JoinConfig struct {
	Type         string // "inner" or "left"
	Keys         []JoinKeyPair
	PrefixTables bool
	// the upstream nodes supplying each side of the join
	LeftSource, RightSource string
}

type AggregationSpec struct {
	Field    string `json:"field"`
	Function string `json:"function"`
	Alias    string `json:"alias"`
}

type AggregateConfig struct {
	GroupBy      []string
	Aggregations []AggregationSpec
}

type ValidationRule struct {
	Field   string   `json:"field"`
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Pattern string   `json:"pattern"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	pattern *regexp.Regexp
}

type ValidateConfig struct {
	Rules []ValidationRule
}

type ProfileConfig struct{}

type ImputeField struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

type ImputeConfig struct {
	Fields []ImputeField
	Method string // fixed, mean, median, mode
}

type NormalizeConfig struct {
	Fields []string
	Method string // minmax or zscore
}

type OutlierConfig struct {
	Fields []string
	Method string // iqr or zscore
	Action string // flag, remove, or cap
}

type TextConfig struct {
	Operation   string // replace, upper, lower, trim, substring
	Replacement string
	Start       int
	Length      int
	hasLength   bool
	pattern     *regexp.Regexp
}

type DateConfig struct {
	Operation    string // parse, format, add_days
	Format       string
	InputFormat  string
	OutputFormat string
	Days         int
}

type LookupConfig struct {
	Table   []Record
	JoinKey string
}

type ApiEnrichConfig struct {
	URL    string
	Method string
}

type QueryConfig struct {
	Query string
	Mode  string // "transform" assigns the result, "filter" keeps matches
	Alias string
	expr  *Expr
}

type DelayConfig struct {
	Duration time.Duration
}

type CacheConfig struct {
	TTL int
}

// folderSource
type SourceConfig struct {
	Protocol string
	Path     string
	Format   string // edi, csv, or json
	Params   remotefs.Params
}

// output
type OutputConfig struct {
	Protocol string
	Path     string
	Format   string // csv, json, or text
	Params   remotefs.Params
}

type ReadJsonConfig struct {
	Path      string
	ArrayPath string
}

type WriteJsonConfig struct {
	Path    string
	RootKey string
	Pretty  bool
}

type ReadExcelConfig struct {
	Path      string
	SheetName string
	HasHeader bool
}

type WriteExcelConfig struct {
	Path      string
	SheetName string
}

//---------------------
// Raw value accessors
//---------------------

func rawString(data map[string]any, key, fallback string) string {
	if value, found := data[key]; found {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return fallback
}

func rawBool(data map[string]any, key string, fallback bool) bool {
	value, found := data[key]
	if !found {
		return fallback
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func rawInt(data map[string]any, key string, fallback int) int {
	value, found := data[key]
	if !found {
		return fallback
	}
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func rawFloat(data map[string]any, key string, fallback float64) float64 {
	value, found := data[key]
	if !found {
		return fallback
	}
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// decodeConfigValue decodes a config value into dest, accepting either an
// in-place JSON value or a JSON-encoded string. A missing key leaves dest
// untouched.
func decodeConfigValue(data map[string]any, key string, dest any) error {
	value, found := data[key]
	if !found || value == nil {
		return nil
	}
	var encoded []byte
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		encoded = []byte(v)
	default:
		var err error
		encoded, err = json.Marshal(v)
		if err != nil {
			return err
		}
	}
	if err := json.Unmarshal(encoded, dest); err != nil {
		return fmt.Errorf("invalid %s: %s", key, err)
	}
	return nil
}

// assembles remote connection parameters from a node's config keys, matching
// the folder-source key set
func connectionParams(protocol string, data map[string]any) remotefs.Params {
	params := make(remotefs.Params)
	switch protocol {
	case "local":
		params["base_path"] = rawString(data, "base_dir", ".")
	case "smb":
		params["host"] = rawString(data, "host", "")
		params["username"] = rawString(data, "username", "")
		params["password"] = rawString(data, "password", "")
		params["share"] = rawString(data, "share", "")
		params["port"] = rawInt(data, "port", 445)
	case "sftp":
		params["host"] = rawString(data, "host", "")
		params["username"] = rawString(data, "username", "")
		params["password"] = rawString(data, "password", "")
		params["port"] = rawInt(data, "port", 22)
		if keyPath := rawString(data, "private_key_path", ""); keyPath != "" {
			params["private_key_path"] = keyPath
		}
	case "ftp":
		params["host"] = rawString(data, "host", "")
		params["username"] = rawString(data, "username", "")
		params["password"] = rawString(data, "password", "")
		params["port"] = rawInt(data, "port", 21)
		params["use_tls"] = rawBool(data, "use_tls", true)
	}
	return params
}

// picks a tabular format from an explicit config key or the file extension
func formatFor(data map[string]any, path, fallback string) string {
	if format := rawString(data, "format", ""); format != "" {
		return strings.ToLower(format)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".edi":
		return "edi"
	case ".json":
		return "json"
	case ".csv":
		return "csv"
	}
	return fallback
}

// translates the common strptime directives to a Go time layout; strings
// without '%' are assumed to already be layouts
func timeLayout(format string) string {
	if !strings.Contains(format, "%") {
		return format
	}
	replacer := strings.NewReplacer(
		"%Y", "2006",
		"%m", "01",
		"%d", "02",
		"%H", "15",
		"%M", "04",
		"%S", "05",
		"%y", "06",
	)
	return replacer.Replace(format)
}

//----------------
// Config parsing
//----------------

// parseConfigs parses every node's raw configuration into its typed form,
// returning one message per problem found.
func (p *Pipeline) parseConfigs() []string {
	problems := make([]string, 0)
	for _, id := range p.order {
		node := p.Nodes[id]
		if !validNodeTypes[node.Type] {
			continue // reported by Validate
		}
		if err := node.parseConfig(); err != nil {
			problems = append(problems,
				fmt.Sprintf("Invalid configuration for node '%s': %s", id, err))
		}
	}
	return problems
}

func (n *Node) parseConfig() error {
	data := n.raw
	switch n.Type {
	case NodeStart, NodeEnd, NodeTrigger, NodeUnion, NodeProfile:
		// the union node's legacy "sources" key is ignored; upstream edges
		// are authoritative
		n.Config = nil

	case NodeCache:
		n.Config = CacheConfig{TTL: rawInt(data, "ttl", 3600)}

	case NodePivot:
		config := PivotConfig{
			IndexField: rawString(data, "indexField", ""),
			NameField:  rawString(data, "nameField", ""),
			ValueField: rawString(data, "valueField", ""),
		}
		if config.IndexField == "" || config.NameField == "" || config.ValueField == "" {
			return fmt.Errorf("indexField, nameField, and valueField are required")
		}
		n.Config = config

	case NodeUnpivot:
		config := UnpivotConfig{
			NameField:  rawString(data, "nameField", "name"),
			ValueField: rawString(data, "valueField", "value"),
		}
		if err := decodeConfigValue(data, "keepFields", &config.KeepFields); err != nil {
			return err
		}
		n.Config = config

	case NodeFilter, NodeRouter:
		config := PredicateConfig{Logic: strings.ToUpper(rawString(data, "logic", "AND"))}
		if err := decodeConfigValue(data, "conditions", &config.Conditions); err != nil {
			return err
		}
		if config.Logic != "AND" && config.Logic != "OR" {
			return fmt.Errorf("invalid logic: %s", config.Logic)
		}
		n.Config = config

	case NodeRemapper:
		config := RemapConfig{DropOthers: rawBool(data, "dropOthers", true)}
		if err := decodeConfigValue(data, "mappings", &config.Mappings); err != nil {
			return err
		}
		n.Config = config

	case NodeExtract:
		config := RemapConfig{DropOthers: true}
		if err := decodeConfigValue(data, "fieldMappings", &config.Mappings); err != nil {
			return err
		}
		n.Config = config

	case NodeTransform:
		var config TransformConfig
		if err := decodeConfigValue(data, "transformations", &config.Rules); err != nil {
			return err
		}
		for i := range config.Rules {
			expr, err := ParseExpr(config.Rules[i].Expression)
			if err != nil {
				return fmt.Errorf("bad expression %q: %s", config.Rules[i].Expression, err)
			}
			config.Rules[i].expr = expr
		}
		n.Config = config

	case NodeSort:
		var config SortConfig
		if err := decodeConfigValue(data, "sortFields", &config.Keys); err != nil {
			return err
		}
		n.Config = config

	case NodeDedupe:
		config := DedupeConfig{Keep: rawString(data, "keep", "first")}
		if err := decodeConfigValue(data, "dedupeFields", &config.Fields); err != nil {
			return err
		}
		if config.Keep != "first" && config.Keep != "last" {
			return fmt.Errorf("invalid keep strategy: %s", config.Keep)
		}
		n.Config = config

	case NodeJoin:
		config := JoinConfig{
			Type:         rawString(data, "joinType", "inner"),
			PrefixTables: rawBool(data, "prefixTables", true),
			LeftSource:   rawString(data, "left_source_id", ""),
			RightSource:  rawString(data, "right_source_id", ""),
		}
		if err := decodeConfigValue(data, "joinKeys", &config.Keys); err != nil {
			return err
		}
		if config.Type != "inner" && config.Type != "left" {
			return fmt.Errorf("invalid join type: %s", config.Type)
		}
		if config.LeftSource == "" || config.RightSource == "" {
			return fmt.Errorf("left_source_id and right_source_id are required")
		}
		n.Config = config

	case NodeAggregate:
		var config AggregateConfig
		if err := decodeConfigValue(data, "groupFields", &config.GroupBy); err != nil {
			return err
		}
		if err := decodeConfigValue(data, "aggregations", &config.Aggregations); err != nil {
			return err
		}
		n.Config = config

	case NodeValidate:
		var config ValidateConfig
		if err := decodeConfigValue(data, "rules", &config.Rules); err != nil {
			return err
		}
		for i := range config.Rules {
			if config.Rules[i].Pattern != "" {
				pattern, err := regexp.Compile(config.Rules[i].Pattern)
				if err != nil {
					return fmt.Errorf("bad pattern %q: %s", config.Rules[i].Pattern, err)
				}
				config.Rules[i].pattern = pattern
			}
		}
		n.Config = config

	case NodeImpute:
		config := ImputeConfig{Method: rawString(data, "method", "fixed")}
		if err := decodeConfigValue(data, "imputeFields", &config.Fields); err != nil {
			return err
		}
		n.Config = config

	case NodeNormalize:
		config := NormalizeConfig{Method: rawString(data, "method", "minmax")}
		if err := decodeConfigValue(data, "fields", &config.Fields); err != nil {
			return err
		}
		n.Config = config

	case NodeOutlier:
		config := OutlierConfig{
			Method: rawString(data, "method", "iqr"),
			Action: rawString(data, "action", "flag"),
		}
		if err := decodeConfigValue(data, "fields", &config.Fields); err != nil {
			return err
		}
		n.Config = config

	case NodeText:
		config := TextConfig{
			Operation:   rawString(data, "operation", "replace"),
			Replacement: rawString(data, "replacement", ""),
			Start:       rawInt(data, "start", 0),
		}
		if _, found := data["length"]; found {
			config.Length = rawInt(data, "length", 0)
			config.hasLength = true
		}
		if config.Operation == "replace" {
			pattern, err := regexp.Compile(rawString(data, "pattern", ""))
			if err != nil {
				return fmt.Errorf("bad pattern: %s", err)
			}
			config.pattern = pattern
		}
		n.Config = config

	case NodeDate:
		n.Config = DateConfig{
			Operation:    rawString(data, "operation", "parse"),
			Format:       timeLayout(rawString(data, "format", "2006-01-02")),
			InputFormat:  timeLayout(rawString(data, "inputFormat", "2006-01-02")),
			OutputFormat: timeLayout(rawString(data, "outputFormat", "2006-01-02")),
			Days:         rawInt(data, "days", 0),
		}

	case NodeLookupTable:
		config := LookupConfig{JoinKey: rawString(data, "joinKey", "")}
		if err := decodeConfigValue(data, "lookupTable", &config.Table); err != nil {
			return err
		}
		n.Config = config

	case NodeApiEnrich:
		n.Config = ApiEnrichConfig{
			URL:    rawString(data, "apiUrl", ""),
			Method: strings.ToUpper(rawString(data, "method", "GET")),
		}

	case NodeQuery:
		config := QueryConfig{
			Query: rawString(data, "query", ""),
			Mode:  rawString(data, "mode", "transform"),
			Alias: rawString(data, "alias", "result"),
		}
		if config.Query != "" {
			expr, err := ParseExpr(config.Query)
			if err != nil {
				return fmt.Errorf("bad query %q: %s", config.Query, err)
			}
			config.expr = expr
		}
		n.Config = config

	case NodeDelay:
		duration := time.Duration(rawFloat(data, "duration", 5) * float64(time.Second))
		switch rawString(data, "unit", "seconds") {
		case "milliseconds":
			duration = time.Duration(rawFloat(data, "duration", 5) * float64(time.Millisecond))
		case "minutes":
			duration = time.Duration(rawFloat(data, "duration", 5) * float64(time.Minute))
		case "hours":
			duration = time.Duration(rawFloat(data, "duration", 5) * float64(time.Hour))
		}
		n.Config = DelayConfig{Duration: duration}

	case NodeFolderSource:
		protocol := strings.ToLower(rawString(data, "source_type", "local"))
		path := rawString(data, "path", "")
		n.Config = SourceConfig{
			Protocol: protocol,
			Path:     path,
			// empty when neither an explicit format nor the path's
			// extension decides; the handler falls back to the run's
			// input file extension
			Format: formatFor(data, path, ""),
			Params: connectionParams(protocol, data),
		}

	case NodeOutput:
		protocol := strings.ToLower(rawString(data, "protocol", "local"))
		path := rawString(data, "path", "")
		n.Config = OutputConfig{
			Protocol: protocol,
			Path:     path,
			Format:   formatFor(data, path, ""),
			Params:   connectionParams(protocol, data),
		}

	case NodeReadJson:
		n.Config = ReadJsonConfig{
			Path:      rawString(data, "path", ""),
			ArrayPath: rawString(data, "arrayPath", ""),
		}

	case NodeWriteJson:
		n.Config = WriteJsonConfig{
			Path:    rawString(data, "path", ""),
			RootKey: rawString(data, "rootKey", ""),
			Pretty:  rawBool(data, "pretty", true),
		}

	case NodeReadExcel:
		n.Config = ReadExcelConfig{
			Path:      rawString(data, "path", ""),
			SheetName: rawString(data, "sheetName", "Sheet1"),
			HasHeader: rawBool(data, "hasHeader", true),
		}

	case NodeWriteExcel:
		n.Config = WriteExcelConfig{
			Path:      rawString(data, "path", ""),
			SheetName: rawString(data, "sheetName", "Sheet1"),
		}
	}
	return nil
}
