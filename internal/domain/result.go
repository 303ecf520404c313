package domain

// QueryResult is the canonical envelope every answer path converges to
// before a transport renders it. Absence of data is an empty Columns/Rows
// pair plus explanatory Text, never a missing envelope.
type QueryResult struct {
	Text             string      `json:"text"`
	QueryDescription string      `json:"query_description"`
	SQLQuery         string      `json:"sql_query"`
	Columns          []string    `json:"columns"`
	Rows             [][]*string `json:"rows"`
}

// HasData reports whether the envelope carries tabular data.
func (r QueryResult) HasData() bool {
	return len(r.Columns) > 0 && len(r.Rows) > 0
}
