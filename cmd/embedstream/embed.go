package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/embedstream/internal/elmo"
	"github.com/fyrsmithlabs/embedstream/internal/producer"
	"github.com/fyrsmithlabs/embedstream/internal/tensor"
)

var pooled bool

var embedCmd = &cobra.Command{
	Use:   "embed [file]",
	Short: "Embed tokenized sentences from a JSONL file or stdin",
	Long: `Embed tokenized sentences read as JSONL: one JSON array of token
strings per line. One NDJSON tensor record is written to stdout per input
line, in input order.

Examples:
  # Embed a file of token sequences
  embedstream embed sentences.jsonl

  # Embed from stdin with bag-of-words pooling
  echo '["hello","world"]' | embedstream embed --pooled -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().BoolVar(&pooled, "pooled", false, "sum embeddings over the time axis (bag of words)")
}

// tensorRecord is one NDJSON output line.
type tensorRecord struct {
	Index  int       `json:"index"`
	Shape  []int     `json:"shape"`
	Values []float32 `json:"values"`
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("pooled") {
		cfg.Producer.Pooled = pooled
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var in io.Reader
	if len(args) == 0 || args[0] == "-" {
		in = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	sequences, err := readSequences(in)
	if err != nil {
		return err
	}

	client, err := elmo.NewClient(cfg.Model, logger.Underlying())
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}

	ctx := cmd.Context()
	p := producer.New(client, logger.Underlying())
	stream := p.Produce(ctx, sequences, cfg.Producer.Pooled)
	defer stream.Close()

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()
	enc := json.NewEncoder(out)

	for i := 0; ; i++ {
		emb, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		if err := writeRecord(enc, i, emb); err != nil {
			return err
		}
	}
	return nil
}

// readSequences parses JSONL token arrays.
func readSequences(r io.Reader) ([][]string, error) {
	var sequences [][]string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var tokens []string
		if err := json.Unmarshal(text, &tokens); err != nil {
			return nil, fmt.Errorf("line %d: expected a JSON array of strings: %w", line, err)
		}
		sequences = append(sequences, tokens)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return sequences, nil
}

// writeRecord writes one tensor as an NDJSON line.
func writeRecord(enc *json.Encoder, index int, t *tensor.Dense) error {
	rec := tensorRecord{
		Index:  index,
		Shape:  t.Shape(),
		Values: t.Data(),
	}
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
