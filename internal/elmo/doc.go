// Package elmo provides an HTTP client for a hosted ELMo-style contextual
// word-embedding model.
//
// The model is an opaque, versioned artifact served behind a TensorFlow
// Serving REST API. The client speaks the "tokens" signature: a batch of
// tokens plus sequence lengths in, three named output tensors out (word_emb
// and two biLM layer outputs). The model itself is never downloaded or
// executed locally.
package elmo
