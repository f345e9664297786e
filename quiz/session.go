package quiz

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Mode string

const (
	ModeAuthoring Mode = "authoring"
	ModeChoice    Mode = "choice"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAuthoring, "":
		return ModeAuthoring, nil
	case ModeChoice:
		return ModeChoice, nil
	}
	return "", fmt.Errorf("unknown quiz mode %q (want authoring or choice)", s)
}

// View is the panel a collaborator should show.
type View string

const (
	ViewAuthoring View = "authoring"
	ViewSelecting View = "selecting"
	ViewComparing View = "comparing"
)

type EventKind string

const (
	EventBreakToggled   EventKind = "break_toggled"
	EventOptionSelected EventKind = "option_selected"
	EventSubmitted      EventKind = "submitted"
	EventBack           EventKind = "back"
	EventReset          EventKind = "reset"
)

// Event tells collaborators that the session changed. They may delay the
// visible reaction; the session never waits for them.
type Event struct {
	Kind      EventKind `json:"kind"`
	View      View      `json:"view"`
	Submitted bool      `json:"submitted"`
}

type Listener func(Event)

// Result is the comparison computed by Submit.
type Result struct {
	User      Segmentation
	Reference Segmentation
	// Score is the boundary-agreement percentage, authoring mode only.
	Score int
	// OptionID, Correct, Feedback and Reveal are set in choice mode only.
	OptionID string
	Correct  bool
	Feedback string
	Reveal   *Option
}

// State is the bare mutable part of a session.
type State struct {
	Mode           Mode
	View           View
	UserBreaks     []int
	SelectedOption string
	Submitted      bool
}

type Session struct {
	content   *Content
	mode      Mode
	view      View
	breaks    BreakSet
	selected  string
	submitted bool
	result    *Result

	answeredBreaks BreakSet
	answeredOption string

	listeners map[int]Listener
	nextID    int
	mu        sync.Mutex
}

var errUnchanged = errors.New("unchanged")

func NewSession(content *Content, mode Mode) (*Session, error) {
	if content == nil {
		return nil, fmt.Errorf("%w: no content", ErrInvalidContent)
	}
	if mode == ModeChoice && !content.HasOptions() {
		return nil, fmt.Errorf("%w: choice mode needs options", ErrInvalidContent)
	}
	if mode != ModeAuthoring && mode != ModeChoice {
		return nil, fmt.Errorf("unknown quiz mode %q", mode)
	}
	s := &Session{
		content:   content,
		mode:      mode,
		listeners: make(map[int]Listener),
	}
	s.resetLocked()
	return s, nil
}

func (s *Session) Content() *Content {
	return s.content
}

func (s *Session) Mode() Mode {
	return s.mode
}

func (s *Session) initialView() View {
	if s.mode == ModeChoice {
		return ViewSelecting
	}
	return ViewAuthoring
}

// Subscribe registers l for every successful transition and returns a func
// that removes it. Listeners run synchronously after the session is unlocked,
// so they may call back into the session.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// apply runs fn under the lock and notifies listeners of the kinds it returns.
// errUnchanged from fn means a successful no-op.
func (s *Session) apply(fn func() ([]EventKind, error)) error {
	s.mu.Lock()
	kinds, err := fn()
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	view, submitted := s.view, s.submitted
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, kind := range kinds {
		ev := Event{Kind: kind, View: view, Submitted: submitted}
		for _, l := range listeners {
			l(ev)
		}
	}
	return nil
}

// ToggleBreak flips the boundary after sentence id and reports whether it is
// now set. It is allowed in any view; while comparing, the shown result stays
// the submitted one until the next Submit.
func (s *Session) ToggleBreak(id int) (bool, error) {
	var active bool
	err := s.apply(func() ([]EventKind, error) {
		if s.mode != ModeAuthoring {
			return nil, fmt.Errorf("%w: toggling breaks needs authoring mode", ErrWrongMode)
		}
		if !s.content.ValidBreak(id) {
			return nil, fmt.Errorf("%w: %d is outside 0..%d", ErrInvalidBreak, id, len(s.content.Passage)-2)
		}
		active = s.breaks.Toggle(id)
		return []EventKind{EventBreakToggled}, nil
	})
	return active, err
}

// SelectOption picks an option. Once an answer has been submitted, a new
// selection is submitted straight away.
func (s *Session) SelectOption(id string) error {
	return s.apply(func() ([]EventKind, error) {
		if s.mode != ModeChoice {
			return nil, fmt.Errorf("%w: selecting options needs choice mode", ErrWrongMode)
		}
		if _, ok := s.content.Option(id); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOption, id)
		}
		s.selected = id
		kinds := []EventKind{EventOptionSelected}
		if s.submitted {
			more, err := s.submitLocked()
			if err != nil && !errors.Is(err, errUnchanged) {
				return nil, err
			}
			kinds = append(kinds, more...)
		}
		return kinds, nil
	})
}

// Submit commits the current answer and switches to the comparison view.
// In choice mode with nothing selected it returns ErrNoSelection and leaves
// the session untouched. Submitting an unchanged answer again keeps the
// existing result.
func (s *Session) Submit() (Result, error) {
	var res Result
	err := s.apply(func() ([]EventKind, error) {
		kinds, err := s.submitLocked()
		if s.result != nil {
			res = *s.result
		}
		return kinds, err
	})
	return res, err
}

func (s *Session) submitLocked() ([]EventKind, error) {
	if s.mode == ModeChoice && s.selected == "" {
		return nil, ErrNoSelection
	}
	if s.submitted && s.unchangedLocked() {
		if s.view == ViewComparing {
			return nil, errUnchanged
		}
		s.view = ViewComparing
		return []EventKind{EventSubmitted}, nil
	}

	var res *Result
	switch s.mode {
	case ModeChoice:
		r, err := s.gradeChoiceLocked()
		if err != nil {
			return nil, err
		}
		res = r
		s.answeredOption = s.selected
	default:
		res = &Result{
			User:      DeriveSegmentation(s.content.Passage, s.breaks),
			Reference: s.content.Reference,
			Score:     ScoreBoundaries(s.breaks, s.content.ReferenceBreaks, len(s.content.Passage)),
		}
		s.answeredBreaks = s.breaks.Clone()
	}
	s.result = res
	s.submitted = true
	s.view = ViewComparing
	return []EventKind{EventSubmitted}, nil
}

func (s *Session) unchangedLocked() bool {
	if s.mode == ModeChoice {
		return s.selected == s.answeredOption
	}
	return s.breaks.Equal(s.answeredBreaks)
}

func (s *Session) gradeChoiceLocked() (*Result, error) {
	chosen, ok := s.content.Option(s.selected)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, s.selected)
	}
	correct, ok := s.content.CorrectOption()
	if !ok {
		return nil, fmt.Errorf("%w: no correct option", ErrInvalidContent)
	}
	res := &Result{
		User:      chosen.Segmentation,
		Reference: correct.Segmentation,
		OptionID:  chosen.ID,
		Correct:   chosen.IsCorrect,
		Feedback:  chosen.Feedback,
	}
	if !chosen.IsCorrect {
		res.Reveal = &correct
	}
	return res, nil
}

// Back leaves the comparison view and keeps the answer and result. Outside
// the comparison view it does nothing.
func (s *Session) Back() {
	_ = s.apply(func() ([]EventKind, error) {
		if s.view != ViewComparing {
			return nil, errUnchanged
		}
		s.view = s.initialView()
		return []EventKind{EventBack}, nil
	})
}

// Reset returns the session to its initial state from any view.
func (s *Session) Reset() {
	_ = s.apply(func() ([]EventKind, error) {
		s.resetLocked()
		return []EventKind{EventReset}, nil
	})
}

func (s *Session) resetLocked() {
	s.view = s.initialView()
	s.breaks = NewBreakSet()
	s.selected = ""
	s.submitted = false
	s.result = nil
	s.answeredBreaks = NewBreakSet()
	s.answeredOption = ""
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Mode:           s.mode,
		View:           s.view,
		UserBreaks:     s.breaks.IDs(),
		SelectedOption: s.selected,
		Submitted:      s.submitted,
	}
}

// Result returns the last submitted comparison.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}
