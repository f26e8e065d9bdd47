/*
Package sqlbind is a convenience layer over database/sql for binding query
results into structs, maps and scalars - plus the small utilities that always
end up living next to that code: a statement runner, named parameter binding,
prepared statement registries and transaction/resource helpers.

The heart of the package is the Schema - an explicit, immutable registry of
the bindable fields of a struct type. A Schema can be declared statically:

	schema := sqlbind.MustNewSchema[User](
		sqlbind.String("first_name", func(u *User, v string) { u.FirstName = v }),
		sqlbind.Int64("age", func(u *User, v int64) { u.Age = int(v) }),
	)

or derived once from struct tags with DeriveSchema. Either way, all reflection
(if any) happens when the Schema is built - the row loop only walks a
precomputed column-to-field table.

Binding is deliberately lenient: columns that match no field are ignored,
fields that match no column are left at their zero value, and a value whose
type does not fit the field is skipped rather than failing the row. SQL NULL
becomes the field's zero value for plain fields and nil for pointer fields.
The Strict option turns the type-mismatch case into an error for callers that
prefer failure over partial population.

On top of the Binder sit Mapper (query-owning, option-driven reads into
structs), RowMapper (reads into map[string]any with decimal/JSON aware column
scanning), result handler functions (Array, Column, Scalar, Keyed), a Runner
for statements and batches, Rebind for :named parameters, and Future-based
async execution.
*/
package sqlbind
