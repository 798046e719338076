// Package services implements the driving port interfaces.
//
// Services hold the ingestion pipeline, concept clustering, quick idea
// generation and synthesis logic. They orchestrate calls to driven ports
// and never import an adapter.
package services
