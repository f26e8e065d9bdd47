package sqlbind

import (
	"context"
)

// PostProcessor is an interface that can be passed as an option to NewMapper (or
// any of the Mapper read methods - Mapper.Rows, Mapper.Iterate, Mapper.FirstRow etc.)
//
// Any PostProcessor(s) are executed, in order, after each row has been bound
type PostProcessor[T any] interface {
	// PostProcess executes the PostProcessor against the bound row
	PostProcess(ctx context.Context, sqli SqlInterface, row *T) error
}

// RowPostProcessor is the map[string]any equivalent of PostProcessor and can be
// passed as an option to NewRowMapper (or any of the RowMapper read methods)
type RowPostProcessor interface {
	PostProcess(ctx context.Context, sqli SqlInterface, row map[string]any) error
}
