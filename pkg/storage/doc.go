// Package storage provides the result sinks of a crawl run.
//
// Every sink takes a header once, then any number of record batches, and
// is finished with Close. A run that produces no records still leaves a
// file holding the header.
//
// Formats:
//   - csv: encoding/csv, flushed after every batch so a killed run keeps
//     what was written
//   - xlsx: one sheet through an excelize stream writer, saved on Close
//   - ndjson: one JSON object per record; the header is not written
//
// Usage:
//
//	sink, err := storage.New("csv", "weibo.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sink.Close()
//
//	sink.WriteHeader(normalize.Header())
//	sink.WriteRecords(batch)
//
// Sinks are safe for concurrent use, though the crawl drives each from a
// single goroutine.
package storage
