// Package crawler holds the domain types shared by the catalog crawl and the
// load pipeline: candidates, raw records, parsed pages, and the narrow
// interfaces the executor depends on.
package crawler
