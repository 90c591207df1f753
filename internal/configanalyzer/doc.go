// Package configanalyzer matches tickets against configuration entities
// mined from the documentation corpus.
//
// An Analyzer queries the corpus with a fixed set of topics, extracts
// Configuration records (environment variables, API endpoints, frontend
// files, database settings, deployment knobs) from the returned documents,
// scores each against the ticket text and synthesizes instructions for the
// best match. Configurations are rebuilt on every call; only raw corpus
// query results are cached.
//
// Match never returns an error. Any failure is logged and reported as no
// match so that callers can fall back to the pattern catalogue.
package configanalyzer
