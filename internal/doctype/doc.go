// Package doctype understands the on-disk layout of Frappe records.
//
// A reloadable record lives at
//
//	apps/{app}/{app}/{module}/{doctype}/{name}/{name}.json
//
// relative to the bench. Classify maps such a path to a RecordRef without
// opening the file, and Patcher rewrites the record's "modified" field so the
// framework's freshness check does not skip the next reload.
package doctype
