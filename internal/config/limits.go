package config

const (
	// MaxBatchSize is the hard ceiling on suggestions per creation call.
	// Engine.BatchSize may lower it but never raise it.
	MaxBatchSize = 10

	// MaxAnchorTextLength bounds textToReplace. Anchors are local edits
	// (a word, a sentence); anything longer is almost certainly an agent
	// quoting whole paragraphs.
	MaxAnchorTextLength = 2000

	// MaxReplacementLength bounds replaceWith.
	MaxReplacementLength = 4000

	// MaxReasonLength bounds the agent's free-text explanation.
	MaxReasonLength = 1000

	// MaxDocumentBodyLength bounds bodies accepted by the revalidate endpoint.
	MaxDocumentBodyLength = 2_000_000
)
