// Package crawler drives the ingestion pipeline: it fetches portal listing
// pages, builds typed entries from them, hands them to the processor and
// records one crawl history entry per portal execution. It also runs the
// detail-fetch phase that enriches stored listings.
package crawler
