// Package inject writes values into a reactive web form. Direct value
// assignment is invisible to frameworks that track input state internally,
// so writes go through the framework prototype's native setter followed by
// synthetic input events.
package inject

// Kind tells the bridge how to canonicalize a value before comparing the
// rendered result with the intended one.
type Kind string

const (
	KindText   Kind = "TEXT"
	KindDate   Kind = "DATE"
	KindSelect Kind = "SELECT"
)

// Field is one value to place into the document.
type Field struct {
	// Name identifies the field in results and logs.
	Name string
	// SelectorHint is a stable CSS selector (id or data attribute).
	// Preferred when it resolves.
	SelectorHint string
	// LabelText finds the input via its visible label when the selector
	// misses.
	LabelText string
	// Position is the zero-based index among the document's writable
	// inputs, the last-resort selector. Negative means unset.
	Position int
	// Value is the text to write.
	Value string
	// Kind drives canonicalization.
	Kind Kind
}

// Payload is one injection request: an ordered list of fields for one
// target document. Consumed exactly once; a retry builds a fresh payload
// so stale values are never replayed.
type Payload struct {
	// Document identifies the target (a URL or a session identifier).
	Document string
	// Fields are written in order.
	Fields []Field
	// SubmitLabel is the visible text of the submit button, clicked after
	// every field confirmed. Empty skips submission.
	SubmitLabel string
}

// FieldFailure records why one field could not be confirmed.
type FieldFailure struct {
	Field  string
	Reason string
}

// Result is the per-field outcome of an injection. A non-empty Failed list
// with a non-empty Confirmed list means partial success; the caller decides
// what that means for the run.
type Result struct {
	Confirmed []string
	Failed    []FieldFailure
}

// AllConfirmed reports whether every field landed.
func (r Result) AllConfirmed() bool {
	return len(r.Failed) == 0
}
