// Package crawler implements the site crawling and metadata-extraction
// engine: URL normalization, rate-gated fetching, page metadata and
// technology-fingerprint extraction, same-site link discovery, and bounded
// breadth-first traversal. Results are reconciled into website records
// through the RecordStore interface.
package crawler
