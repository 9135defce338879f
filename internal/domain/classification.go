package domain

// Etiquetas del clasificador de contenido, de menor a mayor riesgo.
const (
	LabelSafe          = "SAFE"
	LabelSuggestive    = "SUGGESTIVE"
	LabelExplicit      = "EXPLICIT_CONSENSUAL_ADULT"
	LabelFetish        = "FETISH"
	LabelMinorRisk     = "MINOR_RISK"
	LabelNonconsensual = "NONCONSENSUAL"
	LabelRefused       = "REFUSED"
)

// RiskLevel ordena las etiquetas para la mezcla safety-first de L4.
func RiskLevel(label string) int {
	switch label {
	case LabelSafe:
		return 0
	case LabelSuggestive:
		return 1
	case LabelExplicit:
		return 2
	case LabelFetish:
		return 3
	case LabelNonconsensual, LabelMinorRisk, LabelRefused:
		return 4
	}
	return 0
}

// LayerResult es el resultado etiquetado de una capa del cascade.
type LayerResult struct {
	Layer      string  `json:"layer"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Terminal   bool    `json:"terminal,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

// Classification es la salida final del cascade de cuatro capas.
type Classification struct {
	Label      string        `json:"label"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning,omitempty"`
	Layers     []LayerResult `json:"layer_results,omitempty"`
}

// Rutas de manejo de la conversacion.
const (
	RouteNormal   = "NORMAL"
	RouteExplicit = "EXPLICIT"
	RouteFetish   = "FETISH"
	RouteRomance  = "ROMANCE"
	RouteRefused  = "REFUSED"
)

// RouteForLabel mapea etiqueta del clasificador a ruta de sesion.
func RouteForLabel(label string) string {
	switch label {
	case LabelExplicit:
		return RouteExplicit
	case LabelFetish:
		return RouteFetish
	case LabelNonconsensual, LabelMinorRisk, LabelRefused:
		return RouteRefused
	default:
		return RouteNormal
	}
}
