package storage

// SortField orders results by one field.
type SortField struct {
	Field string
	Asc   bool
}

// FindOptions is a fluent cursor configuration: limit, skip, sort order and
// partial projection. The zero value (or nil) applies nothing.
type FindOptions struct {
	limit   *int64
	skip    *int64
	sorts   []SortField
	include []string
	exclude []string
}

// Options starts an empty cursor configuration.
func Options() *FindOptions { return &FindOptions{} }

// Limit caps the number of returned documents.
func (o *FindOptions) Limit(n int64) *FindOptions {
	o.limit = &n
	return o
}

// Skip drops the first n matching documents.
func (o *FindOptions) Skip(n int64) *FindOptions {
	o.skip = &n
	return o
}

// Sort appends an ordering field; earlier calls take precedence.
func (o *FindOptions) Sort(field string, asc bool) *FindOptions {
	o.sorts = append(o.sorts, SortField{Field: field, Asc: asc})
	return o
}

// Props restricts returned documents to the given fields (the id field is
// always kept).
func (o *FindOptions) Props(fields ...string) *FindOptions {
	o.include = append(o.include, fields...)
	return o
}

// OmitProps removes the given fields from returned documents.
func (o *FindOptions) OmitProps(fields ...string) *FindOptions {
	o.exclude = append(o.exclude, fields...)
	return o
}

// PropsChild restricts a nested document to the given child fields.
func (o *FindOptions) PropsChild(parent string, children ...string) *FindOptions {
	for _, child := range children {
		o.include = append(o.include, parent+"."+child)
	}
	return o
}

// GetLimit returns the configured limit, if any.
func (o *FindOptions) GetLimit() (int64, bool) {
	if o == nil || o.limit == nil {
		return 0, false
	}
	return *o.limit, true
}

// GetSkip returns the configured skip, if any.
func (o *FindOptions) GetSkip() (int64, bool) {
	if o == nil || o.skip == nil {
		return 0, false
	}
	return *o.skip, true
}

// GetSorts returns the ordering fields in precedence order.
func (o *FindOptions) GetSorts() []SortField {
	if o == nil {
		return nil
	}
	return o.sorts
}

// GetProjection returns the included and excluded field paths.
func (o *FindOptions) GetProjection() (include, exclude []string) {
	if o == nil {
		return nil, nil
	}
	return o.include, o.exclude
}

// First collapses an optional variadic options argument.
func First(opts []*FindOptions) *FindOptions {
	if len(opts) == 0 {
		return nil
	}
	return opts[0]
}
