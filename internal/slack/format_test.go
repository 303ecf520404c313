package slack

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"genie-bridge/internal/domain"
)

func cell(s string) *string { return &s }

func TestFormatResult_FullEnvelope(t *testing.T) {
	res := domain.QueryResult{
		Text:             "Result: total = 42",
		QueryDescription: "Total spend this month",
		SQLQuery:         "SELECT SUM(cost) AS total FROM usage",
		Columns:          []string{"total"},
		Rows:             [][]*string{{cell("42")}},
	}

	blocks := FormatResult(res, "Results retrieved while status was \"RUNNING\"", true)
	require.Len(t, blocks, 5)
	require.Equal(t, "*Analysis:*\nTotal spend this month", blocks[0].Text.Text)
	require.Contains(t, blocks[1].Text.Text, "```sql\nSELECT SUM(cost) AS total FROM usage\n```")
	require.Equal(t, "*Results:*\nResult: total = 42", blocks[2].Text.Text)
	require.Equal(t, "_Results retrieved while status was \"RUNNING\"_", blocks[3].Text.Text)
	require.Contains(t, blocks[4].Text.Text, "| total |")
	require.Contains(t, blocks[4].Text.Text, "| 42 |")
	for _, b := range blocks {
		require.Equal(t, "section", b.Type)
		require.Equal(t, "mrkdwn", b.Text.Type)
	}
}

func TestFormatResult_EmptyEnvelope(t *testing.T) {
	blocks := FormatResult(domain.QueryResult{}, "", true)
	require.Len(t, blocks, 1)
	require.Equal(t, "No results to display.", blocks[0].Text.Text)
}

func TestFormatResult_TablesDisabled(t *testing.T) {
	res := domain.QueryResult{
		Columns: []string{"a"},
		Rows:    [][]*string{{cell("1")}},
	}
	blocks := FormatResult(res, "", false)
	for _, b := range blocks {
		require.NotContains(t, b.Text.Text, "| a |")
	}
}

func TestMarkdownTable_Small(t *testing.T) {
	table := markdownTable([]string{"workspace", "cost"}, [][]*string{
		{cell("ws-1"), cell("10.5")},
		{cell("ws-2"), nil},
	})

	lines := strings.Split(table, "\n")
	require.Equal(t, []string{
		"| workspace | cost |",
		"| --- | --- |",
		"| ws-1 | 10.5 |",
		"| ws-2 |  |",
	}, lines)
}

func TestMarkdownTable_TruncatesOversizedOutput(t *testing.T) {
	rows := make([][]*string, 120)
	for i := range rows {
		rows[i] = []*string{cell(fmt.Sprintf("workspace-%03d", i)), cell("4242.42")}
	}

	table := markdownTable([]string{"workspace", "cost"}, rows)
	require.LessOrEqual(t, len(table), maxTableChars)
	require.Contains(t, table, "_Showing 10 of 120 rows_")
	require.Contains(t, table, "workspace-009")
	require.NotContains(t, table, "workspace-010")
}

func TestFormatRow_PadsAndTruncatesCells(t *testing.T) {
	long := strings.Repeat("x", 80)
	row := formatRow([]*string{cell(long)}, 3)

	require.Equal(t, "| "+strings.Repeat("x", 47)+"... |  |  |", row)
}
