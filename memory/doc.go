// Package memory implements the client half of the contextual memory
// engine: it watches conversation growth, distills history into a
// compact summary plus keywords on a fixed cadence, records one
// discrete recollection per message, and derives chat titles.
//
// Architecture:
//   - Engine: trigger policy (watermark + pending guard) and persistence
//   - Embedder: optional text-to-vector conversion for entries
//   - generation.Service: opaque text generation (soft-failing)
//   - remote.Client: server half, written through asynchronously
//
// Integration:
//   - RecordMessage: call after every durable message creation
//   - MaybeSummarize: call after every assistant turn; the engine
//     decides whether a summarization actually fires
//   - RefreshTitle: call after a successful assistant response
//
// All generation failures are soft: the previous summary stays in
// place, the watermark does not advance, and the next qualifying
// message count retries.
package memory
