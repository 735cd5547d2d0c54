// Package producer streams contextual embedding tensors for batches of
// tokenized sentences.
//
// A Producer wraps a hosted token-signature model and yields, for each input
// sequence in order, either the full per-layer stacked tensor
// [1, T, 1024, 3] or its bag-of-words pooling [1, 1024, 3]. Results are
// pulled one at a time through a Stream; at most one sequence is in flight
// with the model, and the model scope is released when the stream is
// exhausted or closed.
package producer
