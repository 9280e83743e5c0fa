package model

// Format selects how the gateway interprets message text.
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)
