package sqlbind

// Query represents the sql query used by Mapper or RowMapper (or their read methods)
// it should exclude the 'SELECT cols' - as the mapper already knows the columns to be read
type Query string

// AddClause is a sql clause that can be appended to the query when using any of the
// Mapper or RowMapper read methods
type AddClause string
