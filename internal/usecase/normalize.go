package usecase

import (
	"fmt"

	"genie-bridge/internal/domain"
	"genie-bridge/internal/integrations/genie"
)

const noDataText = "The query completed successfully but returned no data. This could mean:\n" +
	"• The data might not exist for the specified parameters\n" +
	"• You might need additional permissions\n\n" +
	"Try:\n" +
	"• Verifying the parameters in your query\n" +
	"• Checking your access permissions"

const workspaceClarificationText = "I notice you're querying workspace-specific data. " +
	"Please specify which workspace you'd like to analyze. For example:\n" +
	"• 'Show me the top spender in workspace 123456'\n" +
	"• 'Who used the most compute in workspace my-workspace-name'"

// workspacePlaceholder marks generated SQL the remote service could not
// resolve to a concrete workspace.
const workspacePlaceholder = "<current_workspace_id>"

// normalizeStatement shapes a decoded query-result payload into the
// canonical envelope. Cases are checked in order and return early; an
// unrecognized payload degrades to an empty envelope rather than an error,
// so the caller always has something to render.
func normalizeStatement(stmt genie.StatementResponse) domain.QueryResult {
	var out domain.QueryResult

	if stmt.State == genie.StateSucceeded && (stmt.Result == nil || len(stmt.Result.Rows) == 0) {
		out.Text = noDataText
		return out
	}

	if stmt.Manifest != nil && stmt.Result != nil {
		out.Columns = append(out.Columns, stmt.Manifest.Columns...)
		for _, row := range stmt.Result.Rows {
			out.Rows = append(out.Rows, fitRow(row, len(out.Columns)))
		}
		if len(out.Columns) == 1 && len(out.Rows) == 1 {
			out.Text = fmt.Sprintf("Result: %s = %s", out.Columns[0], cellString(out.Rows[0][0]))
		}
		return out
	}

	return out
}

// fitRow pads or truncates a row so its width always equals the declared
// column count. Rows and columns must never come out ragged.
func fitRow(row []*string, width int) []*string {
	fitted := make([]*string, width)
	copy(fitted, row)
	return fitted
}

func cellString(cell *string) string {
	if cell == nil {
		return ""
	}
	return *cell
}
