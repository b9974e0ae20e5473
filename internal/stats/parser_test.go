package stats

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singleronbio/scopetools/internal/config"
	"github.com/singleronbio/scopetools/internal/filter"
)

const cutadaptOutput = `This is cutadapt 2.10 with Python 3.7.6
Command line parameters: -a A{18} -n 1 -j 2 -m 20 --nextseq-trim=20 --overlap 10 -o out.fq.gz in.fq.gz
Processing reads on 2 cores in single-end mode ...
Finished in 12.34 s (12 us/read; 4.86 M reads/minute).

=== Summary ===

Total reads processed:               1,234
Reads with adapters:                   100 (8.1%)
Total written (filtered):            1,134

=== Adapter 1 ===
`

func cutadaptRule(t *testing.T) Rule {
	t.Helper()
	rule, err := NewRegistry().Lookup("cutadapt")
	require.NoError(t, err)
	return rule
}

func TestExtractKeepsOrderAndStripsSeparators(t *testing.T) {
	p := NewParser(nil)
	text := "Total reads processed: 1,234\nReads with adapters: 100 (8.1%)\nTotal written (filtered): 1,134\n"

	block, err := p.Extract(text, cutadaptRule(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Total reads processed", "Reads with adapters", "Total written (filtered)"}, block.Visible.Keys())
	v, _ := block.Visible.Get("Total reads processed")
	assert.Equal(t, "1234", v)
	v, _ = block.Visible.Get("Reads with adapters")
	assert.Equal(t, "100 (8.1%)", v)
	v, _ = block.Visible.Get("Total written (filtered)")
	assert.Equal(t, "1134", v)
	assert.Equal(t, 0, block.Invisible.Len())
}

func TestExtractFromFullToolOutput(t *testing.T) {
	block, err := NewParser(nil).Extract(cutadaptOutput, cutadaptRule(t))
	require.NoError(t, err)
	assert.Equal(t, 3, block.Visible.Len())

	data, err := json.Marshal(block)
	require.NoError(t, err)
	assert.Equal(t,
		`{"visible":{"Total reads processed":"1234","Reads with adapters":"100 (8.1%)","Total written (filtered)":"1134"},"invisible":{}}`,
		string(data), "keys must keep tool order")
}

func TestExtractNoMatchLogsWarning(t *testing.T) {
	var logs bytes.Buffer
	p := NewParser(slog.New(slog.NewTextHandler(&logs, nil)))

	block, err := p.Extract("cutadapt: error: no input\n", cutadaptRule(t))
	require.ErrorIs(t, err, ErrNoMatch)
	assert.True(t, block.Empty())
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "rule=cutadapt")
}

func TestExtractMalformedLineFails(t *testing.T) {
	text := "Total reads processed: 1,234\nTime: 12:30\nTotal written (filtered): 1,134\n"

	_, err := NewParser(nil).Extract(text, cutadaptRule(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))

	var lineErr *MalformedLineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, "Time: 12:30", lineErr.Line)
	assert.Equal(t, "cutadapt", lineErr.Rule)
}

func TestExtractInvisiblePatterns(t *testing.T) {
	rule, err := NewMarkerRule("star", "Number of input reads", "Uniquely mapped reads %",
		filter.MustCompile("/^Average/"))
	require.NoError(t, err)

	text := "Number of input reads |\t1,000\n"
	_, err = NewParser(nil).Extract(text, rule)
	require.ErrorIs(t, err, ErrNoMatch)

	text = "Number of input reads: 1,000\nAverage input read length: 150\nUniquely mapped reads %: 91.2%\n"
	block, err := NewParser(nil).Extract(text, rule)
	require.NoError(t, err)
	assert.Equal(t, []string{"Number of input reads", "Uniquely mapped reads %"}, block.Visible.Keys())
	assert.Equal(t, []string{"Average input read length"}, block.Invisible.Keys())
}

func TestStripThousands(t *testing.T) {
	tests := map[string]string{
		"1,234":          "1234",
		"1,234,567":      "1234567",
		"1,2,3":          "123",
		"100 (8.1%)":     "100 (8.1%)",
		"a, b":           "a, b",
		"12,345 (1,000)": "12345 (1000)",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripThousands(in), in)
	}
}

func TestTableRoundTripKeepsOrder(t *testing.T) {
	var table Table
	table.Set("b", "2")
	table.Set("a", json.Number("1"))
	table.Set("b", "3")

	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.Equal(t, `{"b":"3","a":1}`, string(data))

	var decoded Table
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"b", "a"}, decoded.Keys())
	v, ok := decoded.Get("a")
	require.True(t, ok)
	assert.Equal(t, json.Number("1"), v)
}

func TestTableRejectsNestedValues(t *testing.T) {
	var table Table
	assert.Error(t, json.Unmarshal([]byte(`{"a":{"b":1}}`), &table))
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &table))
}

func TestRegistryFromConfig(t *testing.T) {
	reg, err := FromConfig([]config.RuleConfig{{Name: "star", Start: "Number of input reads", End: "Uniquely mapped reads %"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cutadapt", "star"}, reg.Names())

	_, err = reg.Lookup("featureCounts")
	require.ErrorIs(t, err, ErrUnknownRule)

	_, err = FromConfig([]config.RuleConfig{{Name: "bad", Start: "a", End: "b", Invisible: []string{"/(/"}}})
	require.Error(t, err)
}
