// Package toprgb defines the types, interfaces, and retry policy shared by the
// sorter, fetch pipeline, and orchestrator that produce the top-colors CSV.
package toprgb
