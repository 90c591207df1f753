// Package knowledge holds the documentation corpus the configuration
// analyzer mines.
//
// Markdown files from a documentation directory are split into chunks,
// embedded through a langchaingo embedder and stored in an embedded
// chromem-go collection. A Watcher keeps the collection in step with the
// directory.
package knowledge
