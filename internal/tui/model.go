package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/chatlog"
	"docqa/internal/domain"
	"docqa/internal/service"
)

// ChatPort is the TUI-facing subset of the pipeline.
type ChatPort interface {
	Ask(ctx context.Context, session chatlog.Session, idx *domain.Index, question string) (chatlog.Session, service.Answer, error)
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusWarn
	statusError
)

// answerMsg carries the outcome of one Ask back into Update.
type answerMsg struct {
	question string
	session  chatlog.Session
	answer   service.Answer
	err      error
}

// Model is the Bubble Tea model for chatting with one indexed document.
type Model struct {
	ctx        context.Context
	port       ChatPort
	index      *domain.Index
	session    chatlog.Session
	summary    string
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	sources    []domain.SearchResult
	lastQ      string
	status     string
	statusKind statusKind
	busy       bool
	ready      bool
}

// New creates a chat model over idx. summary is shown under the title.
func New(ctx context.Context, port ChatPort, idx *domain.Index, session chatlog.Session, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the document and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(0, 0)
	status := fmt.Sprintf("Loaded %s (%d chunks).", idx.DocumentID, idx.Len())
	return Model{
		ctx:      ctx,
		port:     port,
		index:    idx,
		session:  session,
		summary:  summary,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		status:   status,
	}
}

// Session returns the chat history accumulated so far.
func (m Model) Session() chatlog.Session { return m.session }

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, input box, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		return m.handleAnswer(msg), nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	q := strings.TrimSpace(m.input.Value())
	if q == "" {
		m.setStatus(statusWarn, "Please enter a question.")
		return m, nil
	}
	m.busy = true
	m.lastQ = q
	m.setStatus(statusInfo, "Thinking...")
	return m, tea.Batch(m.spinner.Tick, m.ask(q))
}

func (m Model) ask(q string) tea.Cmd {
	ctx, port, idx, session := m.ctx, m.port, m.index, m.session
	return func() tea.Msg {
		next, answer, err := port.Ask(ctx, session, idx, q)
		return answerMsg{question: q, session: next, answer: answer, err: err}
	}
}

func (m Model) handleAnswer(msg answerMsg) Model {
	m.busy = false
	switch {
	case msg.err == nil:
		m.session = msg.session
		m.sources = msg.answer.Sources
		m.input.Reset()
		m.setStatus(statusInfo, fmt.Sprintf("Answered from %d passages.", len(msg.answer.Sources)))
	case errors.Is(msg.err, domain.ErrLogPersist):
		m.session = msg.session
		m.sources = msg.answer.Sources
		m.input.Reset()
		m.setStatus(statusWarn, "Answered, but the chat log was not saved: "+msg.err.Error())
	default:
		m.setStatus(statusError, "Error: "+msg.err.Error())
	}
	m.refresh()
	return m
}

func (m *Model) setStatus(kind statusKind, text string) {
	m.statusKind = kind
	m.status = text
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Chat with " + m.index.DocumentID)
	summary := mutedStyle.Render(m.summary)
	history := historyBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + summary + "\n" + history + "\n" + input + "\n" + statusStyles[m.statusKind].Render(status)
}

func (m Model) renderHistory() string {
	turns := m.session.Turns()
	if len(turns) == 0 {
		return mutedStyle.Render("No questions yet.")
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: "))
		b.WriteString(t.Question)
		b.WriteString("\n")
		b.WriteString(answerStyle.Render("Bot: "))
		b.WriteString(t.Answer)
	}
	if len(m.sources) > 0 {
		top := m.sources[0]
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Top passage (chunk %d, score %.3f):", top.Chunk.Ordinal, top.Score)))
		b.WriteString("\n")
		b.WriteString(highlightBestSentence(top.Chunk.Text, m.lastQ))
	}
	return b.String()
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	statusStyles    = map[statusKind]lipgloss.Style{
		statusInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		statusWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		statusError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe    = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
