package slack

import (
	"fmt"
	"strings"

	"genie-bridge/internal/domain"
)

const (
	// maxTableChars keeps a table block under Slack's 3000-char text limit
	// with headroom.
	maxTableChars     = 2900
	maxTruncatedRows  = 10
	maxCellChars      = 50
	truncatedCellTail = "..."
)

// Block is a Slack Block Kit section.
type Block struct {
	Type string      `json:"type"`
	Text *TextObject `json:"text,omitempty"`
}

type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func section(md string) Block {
	return Block{Type: "section", Text: &TextObject{Type: "mrkdwn", Text: md}}
}

// FormatResult renders the canonical envelope as Slack blocks: analysis
// description, fenced SQL, result text, optional diagnostic note, and a
// markdown table when enabled.
func FormatResult(res domain.QueryResult, note string, formatTables bool) []Block {
	var blocks []Block

	if res.QueryDescription != "" {
		blocks = append(blocks, section("*Analysis:*\n"+res.QueryDescription))
	}
	if res.SQLQuery != "" {
		blocks = append(blocks, section("*SQL Query:*\n```sql\n"+res.SQLQuery+"\n```"))
	}
	if res.Text != "" {
		blocks = append(blocks, section("*Results:*\n"+res.Text))
	}
	if note != "" {
		blocks = append(blocks, section("_"+note+"_"))
	}
	if res.HasData() && formatTables {
		blocks = append(blocks, section("```"+markdownTable(res.Columns, res.Rows)+"```"))
	}

	if len(blocks) == 0 {
		blocks = append(blocks, section("No results to display."))
	}
	return blocks
}

// markdownTable renders columns and rows as a pipe table, repairing ragged
// rows and truncating oversized output to a row subset with a summary line.
func markdownTable(columns []string, rows [][]*string) string {
	header := "| " + strings.Join(columns, " | ") + " |"
	dividers := make([]string, len(columns))
	for i := range dividers {
		dividers[i] = "---"
	}
	divider := "| " + strings.Join(dividers, " | ") + " |"

	dataRows := make([]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, formatRow(row, len(columns)))
	}

	table := header + "\n" + divider + "\n" + strings.Join(dataRows, "\n")
	if len(table) <= maxTableChars {
		return table
	}

	shown := len(dataRows)
	if shown > maxTruncatedRows {
		shown = maxTruncatedRows
	}
	truncated := header + "\n" + divider + "\n" + strings.Join(dataRows[:shown], "\n")
	if shown < len(dataRows) {
		truncated += fmt.Sprintf("\n\n_Showing %d of %d rows_", shown, len(dataRows))
	}
	return truncated
}

func formatRow(row []*string, width int) string {
	cells := make([]string, width)
	for i := 0; i < width; i++ {
		var cell string
		if i < len(row) && row[i] != nil {
			cell = *row[i]
		}
		if len(cell) > maxCellChars {
			cell = cell[:maxCellChars-len(truncatedCellTail)] + truncatedCellTail
		}
		cells[i] = cell
	}
	return "| " + strings.Join(cells, " | ") + " |"
}
