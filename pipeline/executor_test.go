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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchline/batchline/remotefs"
)

// writes records to a JSON file a readJson node can seed a pipeline with
func writeSeedFile(t *testing.T, records []Record) string {
	encoded, err := json.Marshal(records)
	require.Nil(t, err)
	path := filepath.Join(t.TempDir(), "seed.json")
	require.Nil(t, os.WriteFile(path, encoded, 0644))
	return path
}

func newTestExecutor(p *Pipeline) *Executor {
	return NewExecutor(p, ExecutorConfig{
		RetryInitialDelay: time.Millisecond,
		Sleep:             func(time.Duration) {},
	})
}

func seedNode(path string) string {
	return fmt.Sprintf(`seed:readJson:"path": %q`, path)
}

func TestLinearFilterPipeline(t *testing.T) {
	assert := assert.New(t)

	seed := writeSeedFile(t, []Record{
		{"amount": 50.0}, {"amount": 150.0}, {"amount": 100.0},
	})
	p := mustParse(t,
		[]string{
			"start1:start",
			seedNode(seed),
			`f1:filter:"conditions": "[{\"field\": \"amount\", \"operator\": \"greater\", \"value\": 100}]", "logic": "AND"`,
			"end1:end",
		},
		[]string{"start1->seed", "seed->f1", "f1->end1"})

	executor := newTestExecutor(p)
	ctx, err := executor.Execute("", "")
	assert.Nil(err)

	value, found := ctx.Output("f1")
	require.True(t, found)
	require.Len(t, value.Records(), 1)
	assert.Equal(150.0, value.Records()[0]["amount"])
}

func TestRouterSplitsRecords(t *testing.T) {
	assert := assert.New(t)

	seed := writeSeedFile(t, []Record{
		{"type": "A", "v": 1.0}, {"type": "B", "v": 2.0}, {"type": "A", "v": 3.0},
	})
	p := mustParse(t,
		[]string{
			"start1:start",
			seedNode(seed),
			`r1:router:"conditions": "[{\"field\": \"type\", \"operator\": \"equals\", \"value\": \"A\"}]", "logic": "AND"`,
			"end1:end",
		},
		[]string{"start1->seed", "seed->r1", "r1_true->end1"})

	executor := newTestExecutor(p)
	ctx, err := executor.Execute("", "")
	assert.Nil(err)

	trueValue, found := ctx.Output("r1_true")
	require.True(t, found)
	require.Len(t, trueValue.Records(), 2)
	assert.Equal(1.0, trueValue.Records()[0]["v"])
	assert.Equal(3.0, trueValue.Records()[1]["v"])

	falseValue, found := ctx.Output("r1_false")
	require.True(t, found)
	require.Len(t, falseValue.Records(), 1)
	assert.Equal(2.0, falseValue.Records()[0]["v"])
}

func TestCycleStopsRunBeforeAnyNode(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "X:filter", "Y:filter", "end1:end"},
		[]string{"start1->X", "X->Y", "Y->X", "Y->end1"})

	executor := newTestExecutor(p)
	ctx, err := executor.Execute("", "")
	require.NotNil(t, err)
	var validationErr ValidationError
	assert.ErrorAs(err, &validationErr)

	found := false
	for _, nodeError := range ctx.Errors {
		assert.Equal("critical", nodeError.Kind)
		if strings.Contains(nodeError.Message, "circular") {
			found = true
		}
	}
	assert.True(found)
	assert.Empty(ctx.Attempts) // no handler ran
}

func TestAggregateSumByRegion(t *testing.T) {
	assert := assert.New(t)

	seed := writeSeedFile(t, []Record{
		{"region": "N", "sales": 10.0},
		{"region": "N", "sales": 20.0},
		{"region": "S", "sales": 5.0},
	})
	p := mustParse(t,
		[]string{
			"start1:start",
			seedNode(seed),
			`agg:aggregate:"groupFields": "[\"region\"]", "aggregations": "[{\"field\": \"sales\", \"function\": \"SUM\", \"alias\": \"total\"}]"`,
			"end1:end",
		},
		[]string{"start1->seed", "seed->agg", "agg->end1"})

	executor := newTestExecutor(p)
	ctx, err := executor.Execute("", "")
	assert.Nil(err)

	value, found := ctx.Output("agg")
	require.True(t, found)
	records := value.Records()
	require.Len(t, records, 2)
	// groups come out in first-seen order
	assert.Equal("N", records[0]["region"])
	assert.Equal(30.0, records[0]["total"])
	assert.Equal("S", records[1]["region"])
	assert.Equal(5.0, records[1]["total"])
}

func TestTransformAssignsExpressionResult(t *testing.T) {
	assert := assert.New(t)

	seed := writeSeedFile(t, []Record{{"price": 10.0, "qty": 4.0}})
	p := mustParse(t,
		[]string{
			"start1:start",
			seedNode(seed),
			`t1:transform:"transformations": "[{\"field\": \"total\", \"expression\": \"price * qty\"}]"`,
			"end1:end",
		},
		[]string{"start1->seed", "seed->t1", "t1->end1"})

	executor := newTestExecutor(p)
	ctx, err := executor.Execute("", "")
	assert.Nil(err)

	value, _ := ctx.Output("t1")
	require.Len(t, value.Records(), 1)
	assert.Equal(40.0, value.Records()[0]["total"])
}

func TestTransformExpressionErrorDoesNotFailRun(t *testing.T) {
	assert := assert.New(t)

	seed := writeSeedFile(t, []Record{{"price": 10.0}})
	p := mustParse(t,
		[]string{
			"start1:start",
			seedNode(seed),
			`t1:transform:"transformations": "[{\"field\": \"total\", \"expression\": \"price * missing\"}]"`,
			"end1:end",
		},
		[]string{"start1->seed", "seed->t1", "t1->end1"})

	executor := newTestExecutor(p)
	ctx, err := executor.Execute("", "")
	assert.Nil(err) // soft per-record errors never stop the run

	require.Len(t, ctx.Errors, 1)
	assert.Equal("t1", ctx.Errors[0].NodeId)
	assert.Equal("record", ctx.Errors[0].Kind)

	value, _ := ctx.Output("t1")
	require.Len(t, value.Records(), 1)
	_, assigned := value.Records()[0]["total"]
	assert.False(assigned) // the failed assignment was skipped
}

func TestEndToEndWriteOutput(t *testing.T) {
	assert := assert.New(t)

	input := filepath.Join(t.TempDir(), "in.csv")
	require.Nil(t, os.WriteFile(input,
		[]byte("sku,amount\nA,5\nB,9\n"), 0644))
	output := filepath.Join(t.TempDir(), "out.csv")

	p := mustParse(t,
		[]string{
			"start1:start",
			`src:folderSource:"source_type": "local"`,
			"out:output:",
			"end1:end",
		},
		[]string{"start1->src", "src->out", "out->end1"})

	executor := newTestExecutor(p)
	ctx, err := executor.Execute(input, output)
	assert.Nil(err)
	assert.Empty(ctx.Errors)

	written, err := os.ReadFile(output)
	require.Nil(t, err)
	assert.Equal("amount,sku\n5,A\n9,B\n", string(written))
}

func TestFolderSourceRetryBound(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{
			"start1:start",
			`src:folderSource:"source_type": "sftp", "host": "nowhere", "username": "u", "password": "p", "path": "/in/a.edi"`,
			"end1:end",
		},
		[]string{"start1->src", "src->end1"})

	factoryCalls := 0
	executor := NewExecutor(p, ExecutorConfig{
		RetryInitialDelay: time.Millisecond,
		FileSystemFactory: func(protocol string, params remotefs.Params) (remotefs.FileSystem, error) {
			factoryCalls++
			return nil, fmt.Errorf("connection refused")
		},
	})

	ctx, err := executor.Execute("", "")
	assert.NotNil(err)
	var nodeErr NodeFailureError
	assert.ErrorAs(err, &nodeErr)
	assert.Equal("src", nodeErr.NodeId)
	assert.Equal(4, ctx.Attempts["src"]) // 1 + 3 retries, never more
	assert.Equal(4, factoryCalls)
}

func TestCancellationStopsBetweenNodes(t *testing.T) {
	assert := assert.New(t)

	seed := writeSeedFile(t, []Record{{"v": 1.0}})
	p := mustParse(t,
		[]string{"start1:start", seedNode(seed), "s1:sort", "end1:end"},
		[]string{"start1->seed", "seed->s1", "s1->end1"})

	executor := newTestExecutor(p)
	ctx := NewContext("", "")
	ctx.Cancel()
	err := executor.ExecuteContext(ctx)
	assert.NotNil(err)
	assert.Empty(ctx.Attempts) // canceled before the first node
}

func TestMetricsPopulated(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "end1:end"},
		[]string{"start1->end1"})
	executor := newTestExecutor(p)
	ctx, err := executor.Execute("", "")
	assert.Nil(err)
	assert.Equal(2, ctx.Metrics.NodeCount)
	assert.Zero(ctx.Metrics.ErrorCount)
	assert.Contains(ctx.ExecutionTimes, "start1")
	assert.Contains(ctx.ExecutionTimes, "end1")
	assert.Equal(1, ctx.Attempts["end1"])
}
