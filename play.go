package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"chunk-quiz/quiz"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

type action int

const (
	actNone action = iota
	actUp
	actDown
	actActivate
	actToggle
	actSelect
	actSubmit
	actBack
	actReset
	actHelp
	actQuit
)

type command struct {
	action  action
	breakID int
	option  string
}

// player drives a quiz session from the keyboard and redraws it after every
// command.
type player struct {
	session  *quiz.Session
	out      io.Writer
	width    int
	raw      bool
	cursor   int
	message  string
	showHelp bool
}

func newPlayer(session *quiz.Session, out io.Writer, width int) *player {
	return &player{session: session, out: out, width: width}
}

// runTerminal plays the quiz on in/out. Arrow keys work when in is a
// terminal; otherwise commands are read a line at a time.
func runTerminal(session *quiz.Session, in *os.File, out io.Writer) error {
	p := newPlayer(session, out, termWidth())
	tty, err := enableRaw(in)
	if err != nil {
		return p.runTyped(in)
	}
	defer tty.restore()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		if _, ok := <-sig; ok {
			tty.restore()
			fmt.Fprintln(out, "\nBye.")
			os.Exit(130)
		}
	}()

	p.raw = true
	p.out = crlfWriter{w: out}
	return p.runKeys(in)
}

func (p *player) runKeys(in io.Reader) error {
	buf := make([]byte, 3)
	for {
		p.draw()
		n, err := in.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}
		if p.apply(parseKey(buf[:n], p.session.Snapshot())) {
			return nil
		}
	}
}

func (p *player) runTyped(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		p.draw()
		fmt.Fprint(p.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(p.out)
			return scanner.Err()
		}
		cmd, err := parseLine(scanner.Text(), p.session.Snapshot())
		if err != nil {
			p.message = err.Error()
			continue
		}
		if p.apply(cmd) {
			return nil
		}
	}
}

// apply runs cmd against the session and reports whether the player quit.
func (p *player) apply(cmd command) bool {
	p.message = ""
	snap := p.session.Snapshot()
	limit := len(snap.Breaks)
	if snap.Mode == quiz.ModeChoice {
		limit = len(snap.Options)
	}

	var err error
	switch cmd.action {
	case actQuit:
		return true
	case actHelp:
		p.showHelp = !p.showHelp
	case actUp:
		if p.cursor > 0 {
			p.cursor--
		}
	case actDown:
		if p.cursor < limit-1 {
			p.cursor++
		}
	case actActivate:
		if p.cursor >= limit {
			break
		}
		if snap.Mode == quiz.ModeChoice {
			err = p.session.SelectOption(snap.Options[p.cursor].ID)
		} else {
			_, err = p.session.ToggleBreak(snap.Breaks[p.cursor].AfterID)
		}
	case actToggle:
		if _, err = p.session.ToggleBreak(cmd.breakID); err == nil {
			p.cursor = cmd.breakID
		}
	case actSelect:
		if err = p.session.SelectOption(cmd.option); err == nil {
			for i, o := range snap.Options {
				if o.ID == cmd.option {
					p.cursor = i
				}
			}
		}
	case actSubmit:
		_, err = p.session.Submit()
	case actBack:
		p.session.Back()
	case actReset:
		p.session.Reset()
		p.cursor = 0
	}
	if err != nil {
		p.message = err.Error()
	}
	return false
}

func (p *player) draw() {
	if p.raw {
		clearScreen(p.out)
	}
	renderBlock(p.out, renderScreen(p.session.Snapshot(), p.cursor, p.raw, p.width), p.width)
	if p.message != "" {
		fmt.Fprintln(p.out, colorize(p.message, colorYellow+colorBold))
	}
	if p.showHelp {
		for _, l := range helpLines(p.session.Mode(), p.raw) {
			fmt.Fprintln(p.out, l)
		}
	}
}

// parseKey maps a raw keypress to a command.
func parseKey(key []byte, snap quiz.Snapshot) command {
	switch {
	case len(key) == 0:
		return command{}
	case key[0] == '\r' || key[0] == '\n':
		return enterCommand(snap)
	case key[0] == 27 && len(key) >= 3 && key[1] == '[':
		switch key[2] {
		case 'A':
			return command{action: actUp}
		case 'B':
			return command{action: actDown}
		}
		return command{}
	case key[0] == ' ':
		return command{action: actActivate}
	case key[0] == 3 || key[0] == 4: // Ctrl-C, Ctrl-D
		return command{action: actQuit}
	}
	cmd, err := parseLine(string(key[:1]), snap)
	if err != nil {
		return command{}
	}
	return cmd
}

// parseLine interprets one typed command. A bare number toggles the break
// after that sentence; an option letter selects it.
func parseLine(line string, snap quiz.Snapshot) (command, error) {
	input := strings.ToLower(strings.TrimSpace(line))
	switch input {
	case "":
		return enterCommand(snap), nil
	case "quit", "exit":
		return command{action: actQuit}, nil
	case "reset":
		return command{action: actReset}, nil
	case "back":
		return command{action: actBack}, nil
	case "check", "submit":
		return command{action: actSubmit}, nil
	case "help", "?":
		return command{action: actHelp}, nil
	}

	if n, err := strconv.Atoi(input); err == nil {
		if snap.Mode != quiz.ModeAuthoring {
			return command{}, errors.New("pick an option by its letter")
		}
		if n < 1 || n >= len(snap.Sentences) {
			return command{}, fmt.Errorf("no break after sentence %d", n)
		}
		return command{action: actToggle, breakID: n - 1}, nil
	}
	for _, o := range snap.Options {
		if strings.ToLower(o.ID) == input {
			return command{action: actSelect, option: o.ID}, nil
		}
	}

	switch input {
	case "q":
		return command{action: actQuit}, nil
	case "r":
		return command{action: actReset}, nil
	case "b":
		return command{action: actBack}, nil
	case "c":
		return command{action: actSubmit}, nil
	case "h":
		return command{action: actHelp}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (type ? for help)", strings.TrimSpace(line))
}

// enterCommand checks the answer, or returns to editing from the comparison.
func enterCommand(snap quiz.Snapshot) command {
	if snap.View == quiz.ViewComparing {
		return command{action: actBack}
	}
	return command{action: actSubmit}
}

func helpLines(mode quiz.Mode, raw bool) []string {
	var lines []string
	if mode == quiz.ModeChoice {
		lines = append(lines, "  A, B, C...   pick an option")
		if raw {
			lines = append(lines, "  ↑/↓, Space   move and pick")
		}
	} else {
		lines = append(lines, "  1-9          toggle the break after that sentence")
		if raw {
			lines = append(lines, "  ↑/↓, Space   move between gaps and toggle")
		}
	}
	return append(lines,
		"  Enter        check your answer / go back",
		"  r            start over",
		"  q            quit",
	)
}

// renderScreen lays out the current view.
func renderScreen(snap quiz.Snapshot, cursor int, raw bool, width int) []string {
	textWidth := 72
	if width > 0 && width-8 < textWidth {
		textWidth = width - 8
	}
	lines := []string{colorize(snap.Title, colorBold+colorCyan)}
	lines = append(lines, wrapText(snap.Instructions, textWidth)...)
	lines = append(lines, "")

	if snap.View == quiz.ViewComparing && snap.Result != nil {
		lines = append(lines, renderComparison(snap.Result, textWidth)...)
		lines = append(lines, "", colorize("Enter goes back, r starts over, q quits.", colorYellow))
		return lines
	}

	for i, s := range snap.Sentences {
		lines = append(lines, renderSentence(s, textWidth)...)
		if snap.Mode != quiz.ModeAuthoring || i >= len(snap.Breaks) {
			continue
		}
		lines = append(lines, renderGap(snap.Breaks[i], raw && cursor == i))
	}

	if snap.Mode == quiz.ModeChoice {
		lines = append(lines, "")
		for i, o := range snap.Options {
			prefix := "  "
			if raw && i == cursor {
				prefix = colorize("> ", colorYellow)
			}
			mark := "( )"
			if o.Selected {
				mark = colorize("(•)", colorGreen+colorBold)
			}
			lines = append(lines, fmt.Sprintf("%s%s %s) %s", prefix, mark, o.ID, o.Label))
		}
	}

	hint := "Type a sentence number to toggle the break after it, Enter to check, ? for help."
	switch {
	case snap.Mode == quiz.ModeChoice && raw:
		hint = "Use ↑/↓ and Space or press a letter to pick, Enter to check, ? for help."
	case snap.Mode == quiz.ModeChoice:
		hint = "Type an option letter to pick it, Enter to check, ? for help."
	case raw:
		hint = "Use ↑/↓ and Space (or 1-9) to toggle breaks, Enter to check, ? for help."
	}
	return append(lines, "", colorize(hint, colorYellow))
}

func renderSentence(s quiz.SentenceView, width int) []string {
	wrapped := wrapText(s.Text, width-4)
	lines := make([]string, 0, len(wrapped))
	for i, text := range wrapped {
		label := "    "
		if i == 0 {
			label = fmt.Sprintf("%2d  ", s.ID+1)
		}
		lines = append(lines, label+colorize(text, chunkColor(s.Chunk)))
	}
	return lines
}

func renderGap(b quiz.BreakView, selected bool) string {
	prefix := "  "
	if selected {
		prefix = colorize("> ", colorYellow)
	}
	if b.Active {
		return prefix + colorize("──────── break ────────", colorRed+colorBold)
	}
	return prefix + colorize("·", colorDim)
}

// renderComparison lists both chunkings and ends with the grade line.
func renderComparison(res *quiz.ResultView, width int) []string {
	var lines []string
	lines = append(lines, colorize(padRight("Your chunking:", 18)+pluralChunks(res.UserChunkCount), colorBold))
	for _, c := range res.UserChunks {
		lines = append(lines, renderChunk(c, width, false)...)
	}
	lines = append(lines, "", colorize(padRight("Model's chunking:", 18)+pluralChunks(res.ReferenceChunkCount), colorBold))
	for _, c := range res.ReferenceChunks {
		lines = append(lines, renderChunk(c, width, true)...)
	}
	lines = append(lines, "")

	if res.Score != nil {
		return append(lines, fmt.Sprintf("Match Score: %s", formatScore(*res.Score)))
	}

	if res.Feedback != "" {
		lines = append(lines, wrapText(res.Feedback, width)...)
	}
	if res.ShowCorrectAnswer && res.CorrectAnswer != nil {
		lines = append(lines, "", colorize(fmt.Sprintf("Correct answer: %s) %s", res.CorrectAnswer.ID, res.CorrectAnswer.Label), colorGreen))
		lines = append(lines, wrapText(res.CorrectAnswer.Feedback, width)...)
	}
	verdict := colorize(crossMark+" Not quite.", colorRed+colorBold)
	if res.Correct != nil && *res.Correct {
		verdict = colorize(checkMark+" Correct!", colorGreen+colorBold)
	}
	return append(lines, "", fmt.Sprintf("%s You chose %s.", verdict, res.OptionID))
}

func renderChunk(c quiz.ChunkView, width int, withReasoning bool) []string {
	header := fmt.Sprintf("Chunk %d", c.Number)
	if c.Name != "" {
		header += ": " + c.Name
	}
	lines := []string{"  " + colorize(header, chunkColor(c.Number)+colorBold)}
	for _, s := range c.Sentences {
		for _, l := range wrapText(s.Text, width-4) {
			lines = append(lines, "    "+l)
		}
	}
	if withReasoning && c.Reasoning != "" {
		for _, l := range wrapText(c.Reasoning, width-6) {
			lines = append(lines, "    "+colorize("│ "+l, colorDim))
		}
	}
	return lines
}

func pluralChunks(n int) string {
	if n == 1 {
		return "1 chunk"
	}
	return fmt.Sprintf("%d chunks", n)
}

// formatScore draws a 20-cell bar for a 0-100 score.
func formatScore(score int) string {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	barWidth := 20
	filled := score * barWidth / 100
	color := colorRed
	switch {
	case score >= 80:
		color = colorGreen
	case score >= 50:
		color = colorYellow
	}
	bar := "[" + colorize(strings.Repeat("#", filled), color+colorBold) + strings.Repeat("-", barWidth-filled) + "]"
	return fmt.Sprintf("%s %d%%", bar, score)
}
