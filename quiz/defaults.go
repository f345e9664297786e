package quiz

import (
	_ "embed"
	"fmt"
)

//go:embed default.yaml
var defaultContent []byte

// DefaultContent returns the built-in passage with its reference chunking and
// multiple-choice options.
func DefaultContent() (*Content, error) {
	c, err := ParseContent(defaultContent)
	if err != nil {
		return nil, fmt.Errorf("built-in content: %w", err)
	}
	return c, nil
}
