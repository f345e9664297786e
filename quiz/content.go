package quiz

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Sentence struct {
	ID   int    `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Passage is the ordered list of sentences a quiz is built on.
type Passage []Sentence

// Text returns the text of sentence id, or "" when it is not in the passage.
func (p Passage) Text(id int) string {
	if id < 0 || id >= len(p) {
		return ""
	}
	return p[id].Text
}

type Option struct {
	ID           string
	Label        string
	Segmentation Segmentation
	Feedback     string
	IsCorrect    bool
}

// Content is the fixed data a session is built from. Build it with
// ParseContent or LoadContent and treat it as read-only afterwards.
type Content struct {
	Title           string
	Instructions    string
	Passage         Passage
	Reference       Segmentation
	ReferenceBreaks BreakSet
	Options         []Option
}

type contentFile struct {
	Title        string        `yaml:"title"`
	Instructions string        `yaml:"instructions"`
	Sentences    []Sentence    `yaml:"sentences"`
	Reference    referenceFile `yaml:"reference"`
	Options      []optionFile  `yaml:"options"`
}

type referenceFile struct {
	Breaks []int   `yaml:"breaks"`
	Chunks []Chunk `yaml:"chunks"`
}

type optionFile struct {
	ID       string  `yaml:"id"`
	Label    string  `yaml:"label"`
	Breaks   []int   `yaml:"breaks"`
	Chunks   []Chunk `yaml:"chunks"`
	Feedback string  `yaml:"feedback"`
	Correct  bool    `yaml:"correct"`
}

func LoadContent(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quiz content: %w", err)
	}
	c, err := ParseContent(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseContent decodes a YAML quiz definition and validates it. The reference
// segmentation may be given as breaks, as chunk groups, or both when they agree.
func ParseContent(data []byte) (*Content, error) {
	var f contentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal yaml: %v", ErrInvalidContent, err)
	}

	passage := Passage(f.Sentences)
	if err := validatePassage(passage); err != nil {
		return nil, err
	}

	reference, err := resolveSegmentation(passage, "reference", f.Reference.Breaks, f.Reference.Chunks)
	if err != nil {
		return nil, err
	}

	c := &Content{
		Title:           strings.TrimSpace(f.Title),
		Instructions:    strings.TrimSpace(f.Instructions),
		Passage:         passage,
		Reference:       reference,
		ReferenceBreaks: reference.Breaks(),
	}

	seen := make(map[string]bool, len(f.Options))
	correct := 0
	for i, of := range f.Options {
		id := strings.TrimSpace(of.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: option %d has no id", ErrInvalidContent, i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate option id %q", ErrInvalidContent, id)
		}
		seen[id] = true
		seg, err := resolveSegmentation(passage, "option "+id, of.Breaks, of.Chunks)
		if err != nil {
			return nil, err
		}
		label := strings.TrimSpace(of.Label)
		if label == "" {
			label = "Option " + id
		}
		if of.Correct {
			correct++
		}
		c.Options = append(c.Options, Option{
			ID:           id,
			Label:        label,
			Segmentation: seg,
			Feedback:     strings.TrimSpace(of.Feedback),
			IsCorrect:    of.Correct,
		})
	}
	if len(c.Options) > 0 && correct != 1 {
		return nil, fmt.Errorf("%w: exactly one option must be correct, found %d", ErrInvalidContent, correct)
	}
	return c, nil
}

func validatePassage(p Passage) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: passage has no sentences", ErrInvalidContent)
	}
	for i, s := range p {
		if s.ID != i {
			return fmt.Errorf("%w: sentence %d has id %d, ids must run 0..%d in order", ErrInvalidContent, i, s.ID, len(p)-1)
		}
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("%w: sentence %d has no text", ErrInvalidContent, s.ID)
		}
	}
	return nil
}

func resolveSegmentation(p Passage, what string, breaks []int, chunks []Chunk) (Segmentation, error) {
	set := NewBreakSet()
	for _, id := range breaks {
		if !validBreak(p, id) {
			return nil, fmt.Errorf("%w: %s break %d is outside 0..%d", ErrInvalidContent, what, id, len(p)-2)
		}
		set.Add(id)
	}
	if len(chunks) == 0 {
		return DeriveSegmentation(p, set), nil
	}
	given := Segmentation(chunks)
	if err := given.Validate(p); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	if len(breaks) > 0 && !given.Breaks().Equal(set) {
		return nil, fmt.Errorf("%w: %s chunks imply breaks %v but breaks %v were given", ErrInvalidContent, what, given.Breaks(), set)
	}
	return DeriveSegmentation(p, given.Breaks()).Annotate(given), nil
}

func validBreak(p Passage, id int) bool {
	return id >= 0 && id < len(p)-1
}

// ValidBreak reports whether a boundary may be placed after sentence id.
func (c *Content) ValidBreak(id int) bool {
	return validBreak(c.Passage, id)
}

func (c *Content) HasOptions() bool {
	return len(c.Options) > 0
}

func (c *Content) Option(id string) (Option, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

func (c *Content) CorrectOption() (Option, bool) {
	for _, o := range c.Options {
		if o.IsCorrect {
			return o, true
		}
	}
	return Option{}, false
}
