package suggestion

// ConflictKind classifies how two suggestion ranges overlap.
type ConflictKind string

const (
	ConflictExact   ConflictKind = "exact"
	ConflictNested  ConflictKind = "nested"
	ConflictOverlap ConflictKind = "overlap"
)

// Conflict is derived from two suggestions' ranges on the same document
// version. It is recomputed on every read and never persisted.
type Conflict struct {
	SuggestionIDA string       `json:"suggestionIdA"`
	SuggestionIDB string       `json:"suggestionIdB"`
	OverlapStart  int          `json:"overlapStart"`
	OverlapEnd    int          `json:"overlapEnd"`
	Kind          ConflictKind `json:"kind"`
}

// DisplaySuggestion is a suggestion annotated for presentation.
type DisplaySuggestion struct {
	Suggestion
	IsValid         bool     `json:"isValid"`
	ActualText      string   `json:"actualText"`
	ConflictsWith   []string `json:"conflictsWith"`
	DisplayPriority float64  `json:"displayPriority"`
	IsVisible       bool     `json:"isVisible"`
	ZIndex          int      `json:"zIndex"`
}
