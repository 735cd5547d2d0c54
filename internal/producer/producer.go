package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedstream/internal/elmo"
	"github.com/fyrsmithlabs/embedstream/internal/tensor"
)

var (
	// ErrStreamClosed indicates Next was called on a closed stream.
	ErrStreamClosed = errors.New("stream closed")
)

// Layers is the number of stacked representations per token: the tiled word
// embedding plus the two biLM layer outputs.
const Layers = 3

// TokenModel is the model surface the producer depends on. *elmo.Client
// implements it.
type TokenModel interface {
	// Load verifies the model is servable. Called once per stream before the
	// first predict.
	Load(ctx context.Context) error

	// PredictTokens runs the "tokens" signature for one sequence.
	PredictTokens(ctx context.Context, tokens []string) (*elmo.TokenOutputs, error)

	// Close releases the model scope.
	Close() error
}

// Producer builds embedding streams over a token-signature model.
type Producer struct {
	model   TokenModel
	logger  *zap.Logger
	metrics *Metrics
}

// New creates a Producer. Logger may be nil.
func New(model TokenModel, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		model:   model,
		logger:  logger,
		metrics: NewMetrics(logger),
	}
}

// Produce returns a lazy stream of embedding tensors, one per input sequence,
// in input order. No model traffic happens until the first Next call; the
// model is verified servable on that first pull. When pooled is true each
// tensor is summed over the time axis.
//
// The stream is finite and non-restartable. The caller must consume it to
// exhaustion or Close it to release the model scope.
func (p *Producer) Produce(ctx context.Context, sequences [][]string, pooled bool) *Stream {
	return &Stream{
		producer:  p,
		sequences: sequences,
		pooled:    pooled,
	}
}

// Stream is a pull-based sequence of embedding tensors.
type Stream struct {
	producer  *Producer
	sequences [][]string
	pooled    bool

	pos    int
	loaded bool
	done   bool
	err    error
}

// Next returns the tensor for the next input sequence. It returns io.EOF
// after the last sequence. Any other error is terminal: later calls return
// the same error, and tensors yielded before the failure remain valid.
func (s *Stream) Next(ctx context.Context) (*tensor.Dense, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, io.EOF
	}

	if !s.loaded {
		if err := s.producer.model.Load(ctx); err != nil {
			return nil, s.fail(err)
		}
		s.loaded = true
	}

	if s.pos >= len(s.sequences) {
		s.finish()
		return nil, io.EOF
	}

	tokens := s.sequences[s.pos]
	op := "stacked"
	if s.pooled {
		op = "pooled"
	}

	start := time.Now()
	emb, err := s.producer.embed(ctx, tokens, s.pooled)
	s.producer.metrics.RecordGeneration(ctx, op, time.Since(start), len(tokens), err)
	if err != nil {
		return nil, s.fail(fmt.Errorf("sequence %d: %w", s.pos, err))
	}

	s.producer.logger.Debug("yielded embedding",
		zap.Int("index", s.pos),
		zap.Int("sequence_len", len(tokens)),
		zap.Bool("pooled", s.pooled))
	s.pos++
	if s.pos >= len(s.sequences) {
		s.finish()
	}
	return emb, nil
}

// Close releases the model scope. It is safe to call at any point, including
// before the first Next and after exhaustion. After Close, Next returns
// ErrStreamClosed.
func (s *Stream) Close() error {
	if s.err == nil && !s.done {
		s.err = ErrStreamClosed
	}
	return s.release()
}

// finish marks the stream exhausted and releases the model scope.
func (s *Stream) finish() {
	s.done = true
	s.release()
}

// fail records the terminal error and releases the model scope.
func (s *Stream) fail(err error) error {
	s.err = err
	s.release()
	return err
}

func (s *Stream) release() error {
	if s.producer == nil {
		return nil
	}
	model := s.producer.model
	s.producer = nil
	return model.Close()
}

// embed runs one sequence through the model and assembles the output tensor.
func (p *Producer) embed(ctx context.Context, tokens []string, pooled bool) (*tensor.Dense, error) {
	out, err := p.model.PredictTokens(ctx, tokens)
	if err != nil {
		return nil, err
	}

	wordEmb, err := denseFromBatch(out.WordEmb)
	if err != nil {
		return nil, fmt.Errorf("word_emb: %w", err)
	}
	// Duplicate the 512-wide word embedding to match the 1024-wide layers.
	tiled, err := tensor.TileLast2x(wordEmb)
	if err != nil {
		return nil, fmt.Errorf("tiling word_emb: %w", err)
	}

	layer1, err := denseFromBatch(out.LSTMOutputs1)
	if err != nil {
		return nil, fmt.Errorf("lstm_outputs1: %w", err)
	}
	layer2, err := denseFromBatch(out.LSTMOutputs2)
	if err != nil {
		return nil, fmt.Errorf("lstm_outputs2: %w", err)
	}

	// [1, T, 1024, 3]
	stacked, err := tensor.Stack(tiled, layer1, layer2)
	if err != nil {
		return nil, fmt.Errorf("stacking layers: %w", err)
	}
	if !pooled {
		return stacked, nil
	}

	// [1, 1024, 3]
	bow, err := tensor.SumAxis1(stacked)
	if err != nil {
		return nil, fmt.Errorf("pooling over time: %w", err)
	}
	return bow, nil
}

// denseFromBatch converts a [batch][time][dim] model output into a dense
// tensor. The client has already validated batch size and row widths.
func denseFromBatch(v [][][]float32) (*tensor.Dense, error) {
	if len(v) != 1 {
		return nil, fmt.Errorf("batch size %d, want 1", len(v))
	}
	steps := len(v[0])
	dim := 0
	if steps > 0 {
		dim = len(v[0][0])
	}
	data := make([]float32, 0, steps*dim)
	for _, row := range v[0] {
		data = append(data, row...)
	}
	return tensor.FromSlice(data, 1, steps, dim)
}
