package llm

import "context"

// MockGenerator permite tests sin llamar a un LLM real.
type MockGenerator struct {
	Response string
	Err      error
	Prompts  []string
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	return m.Response, m.Err
}

// MockStreamer entrega los chunks configurados y cierra el canal.
type MockStreamer struct {
	Chunks  []string
	Err     error
	OpenErr error
	Prompts []string
}

func (m *MockStreamer) Stream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	out := make(chan Chunk, len(m.Chunks)+1)
	for _, c := range m.Chunks {
		out <- Chunk{Content: c}
	}
	if m.Err != nil {
		out <- Chunk{Err: m.Err}
	}
	close(out)
	return out, nil
}

// MockEmbedder devuelve vectores deterministas por posicion de texto.
type MockEmbedder struct {
	Vectors map[string][]float32
	Default []float32
	Err     error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if v, ok := m.Vectors[text]; ok {
		return v, nil
	}
	return m.Default, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
