// Package loader provides a unified DocumentLoader interface and common file
// loaders for the corpus ingestion path.
//
// It bridges raw data sources (pre-extracted text files) and the rag.Document
// type consumed by the chunker and indexer. PDF extraction is an external
// capability: this package only consumes already-extracted text.
//
// Supported formats out of the box:
//   - Plain text (.txt)
//   - Markdown (.md)
//
// Use LoaderRegistry to route loading by file extension:
//
//	registry := loader.NewLoaderRegistry()
//	docs, err := registry.Load(ctx, "/path/to/corpus.txt")
//
// Custom loaders can be registered for any extension:
//
//	registry.Register(".html", myHTMLLoader)
package loader
