package export

// Table is the tabular content shared by all export renderers.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}
