package producer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedstream/internal/elmo"
	"github.com/fyrsmithlabs/embedstream/internal/tensor"
)

// fakeModel implements TokenModel with deterministic outputs so tests can
// assert exact tensor content. Value at [layer, step, channel] is
// layer*1000 + step*10 + channel%7.
type fakeModel struct {
	loadErr    error
	predictErr error
	failAfter  int // predict calls before predictErr fires; -1 means never

	loads    int
	predicts int
	closes   int
}

func newFakeModel() *fakeModel {
	return &fakeModel{failAfter: -1}
}

func (f *fakeModel) Load(ctx context.Context) error {
	f.loads++
	return f.loadErr
}

func (f *fakeModel) PredictTokens(ctx context.Context, tokens []string) (*elmo.TokenOutputs, error) {
	if len(tokens) == 0 {
		return nil, elmo.ErrInputShape
	}
	if f.failAfter >= 0 && f.predicts >= f.failAfter {
		return nil, f.predictErr
	}
	f.predicts++
	return &elmo.TokenOutputs{
		WordEmb:      fakeLayer(1, len(tokens), elmo.WordEmbDim),
		LSTMOutputs1: fakeLayer(2, len(tokens), elmo.LayerDim),
		LSTMOutputs2: fakeLayer(3, len(tokens), elmo.LayerDim),
	}, nil
}

func (f *fakeModel) Close() error {
	f.closes++
	return nil
}

func fakeLayer(layer, steps, dim int) [][][]float32 {
	batch := make([][]float32, steps)
	for s := 0; s < steps; s++ {
		row := make([]float32, dim)
		for d := range row {
			row[d] = float32(layer*1000 + s*10 + d%7)
		}
		batch[s] = row
	}
	return [][][]float32{batch}
}

// collect drains a stream, requiring no error.
func collect(t *testing.T, s *Stream) []*tensor.Dense {
	t.Helper()
	var out []*tensor.Dense
	for {
		emb, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, emb)
	}
}

func TestProduceShapes(t *testing.T) {
	p := New(newFakeModel(), nil)

	t.Run("stacked", func(t *testing.T) {
		out := collect(t, p.Produce(context.Background(), [][]string{{"hello", "world"}}, false))
		require.Len(t, out, 1)
		assert.Equal(t, []int{1, 2, elmo.LayerDim, Layers}, out[0].Shape())
	})

	t.Run("pooled", func(t *testing.T) {
		out := collect(t, p.Produce(context.Background(), [][]string{{"hello", "world"}}, true))
		require.Len(t, out, 1)
		assert.Equal(t, []int{1, elmo.LayerDim, Layers}, out[0].Shape())
	})

	t.Run("time dimension tracks sequence length", func(t *testing.T) {
		seqs := [][]string{{"a"}, {"a", "b", "c"}, {"a", "b", "c", "d", "e"}}
		out := collect(t, p.Produce(context.Background(), seqs, false))
		require.Len(t, out, len(seqs))
		for i, emb := range out {
			assert.Equal(t, []int{1, len(seqs[i]), elmo.LayerDim, Layers}, emb.Shape())
		}
	})
}

func TestProduceOrderAndCount(t *testing.T) {
	p := New(newFakeModel(), nil)

	seqs := [][]string{{"one"}, {"two", "tokens"}, {"three", "more", "tokens"}}
	out := collect(t, p.Produce(context.Background(), seqs, false))
	require.Len(t, out, len(seqs))

	// Element i corresponds to input i: its time dimension matches.
	for i, emb := range out {
		assert.Equal(t, len(seqs[i]), emb.Shape()[1], "output %d", i)
	}
}

func TestProduceEmptyInput(t *testing.T) {
	model := newFakeModel()
	p := New(model, nil)

	stream := p.Produce(context.Background(), nil, false)
	_, err := stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, model.closes, "exhaustion releases the model scope")
}

func TestProducePooledEqualsSumOverTime(t *testing.T) {
	p := New(newFakeModel(), nil)
	seqs := [][]string{{"hello", "world", "again"}}

	stacked := collect(t, p.Produce(context.Background(), seqs, false))
	pooled := collect(t, p.Produce(context.Background(), seqs, true))
	require.Len(t, stacked, 1)
	require.Len(t, pooled, 1)

	summed, err := tensor.SumAxis1(stacked[0])
	require.NoError(t, err)
	assert.True(t, tensor.Equal(summed, pooled[0]),
		"pooling must be the time-axis sum of the stacked tensor")
}

func TestProduceTiledWordEmbedding(t *testing.T) {
	p := New(newFakeModel(), nil)

	out := collect(t, p.Produce(context.Background(), [][]string{{"hello", "world"}}, false))
	require.Len(t, out, 1)
	emb := out[0]

	// Layer 0 is the word embedding tiled across the channel doubling: the
	// two 512-wide halves are identical.
	for step := 0; step < 2; step++ {
		for d := 0; d < elmo.WordEmbDim; d++ {
			assert.Equal(t,
				emb.At(0, step, d, 0),
				emb.At(0, step, d+elmo.WordEmbDim, 0),
				"step %d channel %d", step, d)
		}
	}

	// Layers 1 and 2 carry the biLM outputs unchanged.
	assert.Equal(t, float32(2000), emb.At(0, 0, 0, 1))
	assert.Equal(t, float32(3010+3), emb.At(0, 1, 3, 2))
}

func TestProduceIdempotent(t *testing.T) {
	p := New(newFakeModel(), nil)
	seqs := [][]string{{"same", "input"}, {"twice"}}

	first := collect(t, p.Produce(context.Background(), seqs, true))
	second := collect(t, p.Produce(context.Background(), seqs, true))
	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, tensor.Equal(first[i], second[i]), "output %d", i)
	}
}

func TestProduceEmptySequencePolicy(t *testing.T) {
	model := newFakeModel()
	p := New(model, nil)

	// [[], ["a"]]: the empty sequence is rejected at its position.
	stream := p.Produce(context.Background(), [][]string{{}, {"a"}}, false)
	_, err := stream.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, elmo.ErrInputShape)

	// The error is terminal and repeats.
	_, err2 := stream.Next(context.Background())
	assert.Equal(t, err, err2)

	// An empty sequence later in the batch does not invalidate earlier
	// yielded tensors.
	model2 := newFakeModel()
	p2 := New(model2, nil)
	stream2 := p2.Produce(context.Background(), [][]string{{"a"}, {}}, false)

	emb, err := stream2.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, elmo.LayerDim, Layers}, emb.Shape())

	_, err = stream2.Next(context.Background())
	assert.ErrorIs(t, err, elmo.ErrInputShape)
	assert.Equal(t, 1, model2.closes)
}

func TestProduceLoadFailure(t *testing.T) {
	model := newFakeModel()
	model.loadErr = elmo.ErrModelLoad
	p := New(model, nil)

	stream := p.Produce(context.Background(), [][]string{{"a"}}, false)
	_, err := stream.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, elmo.ErrModelLoad)
	assert.Equal(t, 0, model.predicts, "no predict after load failure")
	assert.Equal(t, 1, model.closes)
}

func TestProduceLazyLoad(t *testing.T) {
	model := newFakeModel()
	p := New(model, nil)

	stream := p.Produce(context.Background(), [][]string{{"a"}, {"b"}}, false)
	assert.Equal(t, 0, model.loads, "no model traffic before the first pull")

	_, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, model.loads)

	_, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, model.loads, "model loaded once per stream")
}

func TestProduceMidStreamFailure(t *testing.T) {
	model := newFakeModel()
	model.predictErr = errors.New("backend gone")
	model.failAfter = 1
	p := New(model, nil)

	stream := p.Produce(context.Background(), [][]string{{"a"}, {"b"}, {"c"}}, false)

	emb, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, emb)

	_, err = stream.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence 1")
	assert.Contains(t, err.Error(), "backend gone")

	_, err2 := stream.Next(context.Background())
	assert.Equal(t, err, err2, "terminal error is sticky")
	assert.Equal(t, 1, model.closes)
}

func TestStreamClose(t *testing.T) {
	t.Run("early abandonment", func(t *testing.T) {
		model := newFakeModel()
		p := New(model, nil)

		stream := p.Produce(context.Background(), [][]string{{"a"}, {"b"}}, false)
		_, err := stream.Next(context.Background())
		require.NoError(t, err)

		require.NoError(t, stream.Close())
		assert.Equal(t, 1, model.closes)

		_, err = stream.Next(context.Background())
		assert.ErrorIs(t, err, ErrStreamClosed)
	})

	t.Run("close before first pull", func(t *testing.T) {
		model := newFakeModel()
		p := New(model, nil)

		stream := p.Produce(context.Background(), [][]string{{"a"}}, false)
		require.NoError(t, stream.Close())
		assert.Equal(t, 0, model.loads)
		assert.Equal(t, 1, model.closes)
	})

	t.Run("close after exhaustion is a no-op", func(t *testing.T) {
		model := newFakeModel()
		p := New(model, nil)

		stream := p.Produce(context.Background(), [][]string{{"a"}}, false)
		collectAll(t, stream)
		require.NoError(t, stream.Close())
		assert.Equal(t, 1, model.closes, "model closed exactly once")
	})
}

func collectAll(t *testing.T, s *Stream) {
	t.Helper()
	for {
		_, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return
		}
		require.NoError(t, err)
	}
}
