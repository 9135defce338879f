package domain

// Tipos de evento del stream NDJSON hacia el cliente.
const (
	EventProcessingStart = "processing_start"
	EventThinking        = "thinking"
	EventClassification  = "classification"
	EventAgeVerification = "age_verification_required"
	EventPromptBuilt     = "prompt_built"
	EventChunk           = "chunk"
	EventRefusal         = "refusal"
	EventDone            = "done"
	EventError           = "error"
)

// StreamEvent es la forma unica de todos los eventos; los campos no usados
// por un tipo se omiten en el JSON.
type StreamEvent struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Step           string         `json:"step,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	Label          string         `json:"label,omitempty"`
	Confidence     float64        `json:"confidence,omitempty"`
	Layers         []LayerResult  `json:"layer_results,omitempty"`
	Content        string         `json:"content,omitempty"`
	EndpointHint   string         `json:"endpoint_hint,omitempty"`
	Error          string         `json:"error,omitempty"`
	Counts         map[string]int `json:"counts,omitempty"`
}

// IsTerminal indica si el evento cierra el stream del turno.
func (e StreamEvent) IsTerminal() bool {
	switch e.Type {
	case EventDone, EventError, EventAgeVerification, EventRefusal:
		return true
	}
	return false
}
