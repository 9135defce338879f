package llm

import "context"

// Chunk es un fragmento del stream del modelo.
type Chunk struct {
	Content string
	Err     error
}

// Options acota la generacion; cero significa default del proveedor.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatStreamer genera texto en streaming. El canal se cierra al terminar;
// un Chunk con Err no nil es siempre el ultimo elemento.
type ChatStreamer interface {
	Stream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error)
}

// Generator produce una respuesta completa (juez L4, extraccion, resumenes).
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Embedder convierte texto en un vector de dimension fija apto para coseno.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
