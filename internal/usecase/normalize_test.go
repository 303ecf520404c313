package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"genie-bridge/internal/integrations/genie"
)

func TestNormalizeStatement_SingleScalar(t *testing.T) {
	out := normalizeStatement(genie.StatementResponse{
		State:    genie.StateSucceeded,
		Manifest: &genie.Manifest{Columns: []string{"total"}},
		Result:   &genie.ResultData{Rows: [][]*string{{strPtr("42")}}},
	})

	require.Equal(t, "Result: total = 42", out.Text)
	require.Equal(t, []string{"total"}, out.Columns)
	require.Equal(t, [][]*string{{strPtr("42")}}, out.Rows)
}

func TestNormalizeStatement_SucceededWithoutRows(t *testing.T) {
	cases := map[string]genie.StatementResponse{
		"nil result": {
			State:    genie.StateSucceeded,
			Manifest: &genie.Manifest{Columns: []string{"total"}},
		},
		"empty rows": {
			State:    genie.StateSucceeded,
			Manifest: &genie.Manifest{Columns: []string{"total"}},
			Result:   &genie.ResultData{},
		},
	}
	for name, stmt := range cases {
		t.Run(name, func(t *testing.T) {
			out := normalizeStatement(stmt)
			require.Equal(t, noDataText, out.Text)
			require.Empty(t, out.Columns)
			require.Empty(t, out.Rows)
		})
	}
}

func TestNormalizeStatement_RaggedRowsFitColumnWidth(t *testing.T) {
	out := normalizeStatement(genie.StatementResponse{
		State:    genie.StateSucceeded,
		Manifest: &genie.Manifest{Columns: []string{"workspace", "cost", "sku"}},
		Result: &genie.ResultData{Rows: [][]*string{
			{strPtr("ws-1")},
			{strPtr("ws-2"), strPtr("10.5"), strPtr("STANDARD"), strPtr("extra")},
			{nil, strPtr("3.2"), nil},
		}},
	})

	require.Len(t, out.Rows, 3)
	for _, row := range out.Rows {
		require.Len(t, row, 3, "every row must match the declared column count")
	}
	require.Equal(t, []*string{strPtr("ws-1"), nil, nil}, out.Rows[0])
	require.Equal(t, []*string{strPtr("ws-2"), strPtr("10.5"), strPtr("STANDARD")}, out.Rows[1])
	require.Empty(t, out.Text, "multi-column results carry no scalar summary")
}

func TestNormalizeStatement_MultipleRowsNoScalarSummary(t *testing.T) {
	out := normalizeStatement(genie.StatementResponse{
		State:    genie.StateSucceeded,
		Manifest: &genie.Manifest{Columns: []string{"total"}},
		Result:   &genie.ResultData{Rows: [][]*string{{strPtr("42")}, {strPtr("7")}}},
	})

	require.Empty(t, out.Text)
	require.Len(t, out.Rows, 2)
}

func TestNormalizeStatement_UnrecognizedPayload(t *testing.T) {
	cases := map[string]genie.StatementResponse{
		"zero value":       {},
		"missing result":   {State: "RUNNING", Manifest: &genie.Manifest{Columns: []string{"a"}}},
		"missing manifest": {State: "RUNNING", Result: &genie.ResultData{Rows: [][]*string{{strPtr("1")}}}},
	}
	for name, stmt := range cases {
		t.Run(name, func(t *testing.T) {
			out := normalizeStatement(stmt)
			require.Empty(t, out.Text)
			require.Empty(t, out.Columns)
			require.Empty(t, out.Rows)
		})
	}
}
