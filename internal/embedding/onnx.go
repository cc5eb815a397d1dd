//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/marketiq/pkg/utils"
)

// Input and output names of the exported sentence model.
var (
	modelInputs  = []string{"input_ids", "attention_mask", "token_type_ids"}
	modelOutputs = []string{"output"}
)

// ONNXEmbedder embeds filing sections, company overviews and metric facts with a
// local sentence model. Needs cgo and the onnxruntime shared library.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	io         *modelIO
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
}

// modelIO holds the tensors bound to the session. Each call overwrites the inputs
// in place and reads the pooled vector from out.
type modelIO struct {
	in  [3]*ort.Tensor[int64]
	out *ort.Tensor[float32]
}

func newModelIO(dimensions, maxTokens int, tok Tokenizer) (*modelIO, error) {
	ids, mask, types := tok.Tokenize("", maxTokens)
	m := &modelIO{}
	for i, data := range [][]int64{ids, mask, types} {
		t, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), data)
		if err != nil {
			m.destroy()
			return nil, fmt.Errorf("allocate %s: %w", modelInputs[i], err)
		}
		m.in[i] = t
	}
	out, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		m.destroy()
		return nil, fmt.Errorf("allocate %d-dim output: %w", dimensions, err)
	}
	m.out = out
	return m, nil
}

func (m *modelIO) load(ids, mask, types []int64) {
	copy(m.in[0].GetData(), ids)
	copy(m.in[1].GetData(), mask)
	copy(m.in[2].GetData(), types)
}

func (m *modelIO) destroy() {
	for i, t := range m.in {
		if t != nil {
			_ = t.Destroy()
			m.in[i] = nil
		}
	}
	if m.out != nil {
		_ = m.out.Destroy()
		m.out = nil
	}
}

// NewONNXEmbedder loads the sentence model at modelPath with fixed output dimensions
// and input length.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("onnx runtime: %w", err)
	}
	tok := &SimpleTokenizer{}
	io, err := newModelIO(dimensions, maxTokens, tok)
	if err != nil {
		return nil, fmt.Errorf("sentence model %s: %w", modelPath, err)
	}
	inputs := []ort.ArbitraryTensor{io.in[0], io.in[1], io.in[2]}
	session, err := ort.NewAdvancedSession(modelPath, modelInputs, modelOutputs, inputs, []ort.ArbitraryTensor{io.out}, nil)
	if err != nil {
		io.destroy()
		return nil, fmt.Errorf("load sentence model %s: %w", modelPath, err)
	}
	return &ONNXEmbedder{
		session:    session,
		io:         io,
		tokenizer:  tok,
		dimensions: dimensions,
		maxTokens:  maxTokens,
	}, nil
}

// Embed returns the unit-length vector for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, failure("empty text")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, failure("sentence model closed")
	}
	e.io.load(e.tokenizer.Tokenize(text, e.maxTokens))
	if err := e.session.Run(); err != nil {
		return nil, failure("sentence model run: %v", err)
	}
	vec := append([]float32(nil), e.io.out.GetData()[:e.dimensions]...)
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds texts in order, stopping at the first failure or cancellation.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session and its tensors. Embed fails afterwards.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.io != nil {
		e.io.destroy()
		e.io = nil
	}
	return err
}

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

func initRuntime() error {
	runtimeOnce.Do(func() {
		runtimeErr = ort.InitializeEnvironment()
	})
	return runtimeErr
}
