// Package jsonld is the map-backed model for schema.org structured data.
//
// Documents are decoded with json.Number preserved, so numeric fields such as
// ratingValue keep their literal form. A Node is a JSON object carrying @type
// and optionally @id; a lone {"@id": ...} object is a reference to another
// node, never an owned value.
//
// Report accumulates the errors and warnings of one validation call. Errors
// mean a rich-result consumer would reject the data; warnings mean the data
// is accepted but sub-optimal.
package jsonld
