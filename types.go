package sqlgate

// ExecuteInput is one SQL request. Params are positional and must be
// scalars (string, number, bool, nil or []byte); aligning them with the
// placeholders in Query is the caller's responsibility.
type ExecuteInput struct {
	Query  string `json:"query"`
	Params []any  `json:"params"`
	Token  string `json:"-"`
}

// QueryOutput is the result of an accepted statement. A row-returning
// statement sets RowCount; any other statement sets AffectedRows with
// empty Columns and Rows. Never both.
type QueryOutput struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowCount     *int     `json:"rowcount,omitempty"`
	AffectedRows *int64   `json:"affected_rows,omitempty"`
}

// ErrorOutput is the error body returned by the HTTP surface.
type ErrorOutput struct {
	Detail string `json:"detail"`
	Hint   string `json:"hint,omitempty"`
}
