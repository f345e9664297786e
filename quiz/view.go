package quiz

// Snapshot is the read-only view model handed to renderers. It is rebuilt on
// every call and never aliases session state.
type Snapshot struct {
	Mode         Mode           `json:"mode"`
	View         View           `json:"view"`
	Submitted    bool           `json:"submitted"`
	Title        string         `json:"title"`
	Instructions string         `json:"instructions"`
	Sentences    []SentenceView `json:"sentences"`
	Breaks       []BreakView    `json:"breaks"`
	Options      []OptionView   `json:"options,omitempty"`
	Result       *ResultView    `json:"result,omitempty"`
}

// SentenceView tags a sentence with the 1-based chunk it currently falls in;
// 0 means untagged.
type SentenceView struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Chunk int    `json:"chunk"`
}

type BreakView struct {
	AfterID int  `json:"afterId"`
	Active  bool `json:"active"`
}

type OptionView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type ChunkView struct {
	Number    int        `json:"number"`
	Name      string     `json:"name,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	Sentences []Sentence `json:"sentences"`
}

type RevealView struct {
	ID       string      `json:"id"`
	Label    string      `json:"label"`
	Feedback string      `json:"feedback,omitempty"`
	Chunks   []ChunkView `json:"chunks"`
}

type ResultView struct {
	UserChunks          []ChunkView `json:"userChunks"`
	ReferenceChunks     []ChunkView `json:"referenceChunks"`
	UserChunkCount      int         `json:"userChunkCount"`
	ReferenceChunkCount int         `json:"referenceChunkCount"`

	Score *int `json:"score,omitempty"`

	OptionID          string      `json:"optionId,omitempty"`
	Correct           *bool       `json:"correct,omitempty"`
	Feedback          string      `json:"feedback,omitempty"`
	ShowCorrectAnswer bool        `json:"showCorrectAnswer"`
	CorrectAnswer     *RevealView `json:"correctAnswer,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.content
	snap := Snapshot{
		Mode:         s.mode,
		View:         s.view,
		Submitted:    s.submitted,
		Title:        c.Title,
		Instructions: c.Instructions,
		Sentences:    make([]SentenceView, len(c.Passage)),
		Breaks:       make([]BreakView, 0, len(c.Passage)),
	}

	var live Segmentation
	switch s.mode {
	case ModeChoice:
		if o, ok := c.Option(s.selected); ok {
			live = o.Segmentation
		}
		for _, o := range c.Options {
			snap.Options = append(snap.Options, OptionView{ID: o.ID, Label: o.Label, Selected: o.ID == s.selected})
		}
	default:
		live = DeriveSegmentation(c.Passage, s.breaks)
	}
	liveBreaks := live.Breaks()

	for i, sen := range c.Passage {
		snap.Sentences[i] = SentenceView{ID: sen.ID, Text: sen.Text, Chunk: live.ChunkOf(sen.ID) + 1}
		if i < len(c.Passage)-1 {
			snap.Breaks = append(snap.Breaks, BreakView{AfterID: sen.ID, Active: liveBreaks.Has(sen.ID)})
		}
	}

	if s.result != nil {
		snap.Result = s.resultViewLocked(*s.result)
	}
	return snap
}

func (s *Session) resultViewLocked(r Result) *ResultView {
	p := s.content.Passage
	v := &ResultView{
		UserChunks:          chunkViews(p, r.User),
		ReferenceChunks:     chunkViews(p, r.Reference),
		UserChunkCount:      len(r.User),
		ReferenceChunkCount: len(r.Reference),
	}
	if s.mode != ModeChoice {
		score := r.Score
		v.Score = &score
		return v
	}
	correct := r.Correct
	v.OptionID = r.OptionID
	v.Correct = &correct
	v.Feedback = r.Feedback
	if r.Reveal != nil {
		v.ShowCorrectAnswer = true
		v.CorrectAnswer = &RevealView{
			ID:       r.Reveal.ID,
			Label:    r.Reveal.Label,
			Feedback: r.Reveal.Feedback,
			Chunks:   chunkViews(p, r.Reveal.Segmentation),
		}
	}
	return v
}

func chunkViews(p Passage, seg Segmentation) []ChunkView {
	out := make([]ChunkView, len(seg))
	for i, c := range seg {
		cv := ChunkView{
			Number:    i + 1,
			Name:      c.Name,
			Reasoning: c.Reasoning,
			Sentences: make([]Sentence, 0, len(c.SentenceIDs)),
		}
		for _, id := range c.SentenceIDs {
			cv.Sentences = append(cv.Sentences, Sentence{ID: id, Text: p.Text(id)})
		}
		out[i] = cv
	}
	return out
}
