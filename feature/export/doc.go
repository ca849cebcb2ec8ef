// Package export writes reconciliation transactions as CSV.
//
// WriteCSV pages through the store and streams rows to any writer, so an
// export never holds the whole table in memory. Uploader pipes the same
// stream into the object storage bucket as
// exports/reconciliation-<UTC timestamp>.csv.
package export
