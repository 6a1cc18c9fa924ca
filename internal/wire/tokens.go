// Package wire turns token-delimited Harmony wire text into a structured
// envelope of models.Message values, following the frame grammar: one or more
// `<|start|> HEADER <|message|> BODY TERMINATOR` frames concatenated back to
// back.
package wire

// Literal, case-sensitive, ordinal tokens that delimit a frame.
const (
	TokenStart     = "<|start|>"
	TokenMessage   = "<|message|>"
	TokenChannel   = "<|channel|>"
	TokenConstrain = "<|constrain|>"
	TokenEnd       = "<|end|>"
	TokenCall      = "<|call|>"
	TokenReturn    = "<|return|>"
)

// terminators are the tokens that may close a frame body, in scan order so
// that the earliest-occurring one wins regardless of table order.
var terminators = []string{TokenEnd, TokenCall, TokenReturn}
