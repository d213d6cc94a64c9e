package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DonggunSe0/aibbot/internal/domain"
	"github.com/DonggunSe0/aibbot/internal/session"
	"github.com/DonggunSe0/aibbot/internal/transcript"
)

// controller is the part of session.Controller the terminal client drives.
type controller interface {
	SelectMenu(menu string) error
	SubmitMessage(text string) error
	SelectFAQ(text string) error
	OpenPolicy(id string) error
	ClosePolicyDetail() error
	SyncPolicies() (bool, error)
	Login(username, password string) error
	Signup(username, password, email string) error
	Logout() error
	CloseModal(m session.Modal) error
	Profile(ctx context.Context) domain.UserProfile
	SaveProfile(ctx context.Context, p domain.UserProfile) (domain.UserProfile, error)
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	listStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	guideStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	persStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")).Padding(0, 1)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9")).Padding(0, 1)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("13")).Padding(0, 1)
)

type snapshotMsg session.Snapshot
type closedMsg struct{}

type model struct {
	ctrl      controller
	snapshots <-chan session.Snapshot
	snap      session.Snapshot

	input textinput.Model
	spin  spinner.Model
	view  viewport.Model

	width  int
	height int
	status string
	help   bool
}

func newModel(ctrl controller, snapshots <-chan session.Snapshot) model {
	in := textinput.New()
	in.Placeholder = "궁금한 정책을 물어보세요 (help: 명령어)"
	in.Prompt = "나> "
	in.Focus()
	in.CharLimit = 500
	in.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = botStyle

	// Letters belong to the input line, so the transcript only scrolls on
	// arrow and page keys.
	vp := viewport.New(80, 20)
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		Up:       key.NewBinding(key.WithKeys("up")),
		Down:     key.NewBinding(key.WithKeys("down")),
	}

	return model{
		ctrl:      ctrl,
		snapshots: snapshots,
		input:     in,
		spin:      s,
		view:      vp,
	}
}

func listen(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(listen(m.snapshots), m.spin.Tick, textinput.Blink)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-6, 10)
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-9, 5)
		m.view.SetContent(m.renderTranscript())
		return m, nil

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		m.view.SetContent(m.renderTranscript())
		m.view.GotoBottom()
		return m, listen(m.snapshots)

	case closedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKey runs shortcut keys. Single-key shortcuts only fire while the
// input line is empty so they never swallow typed text.
func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd, bool) {
	empty := m.input.Value() == ""
	switch k := msg.String(); {
	case k == "ctrl+c":
		return m, tea.Quit, true
	case k == "esc":
		m.closeOverlay()
		return m, nil, true
	case k == "enter":
		line := m.input.Value()
		m.input.SetValue("")
		cmd := m.submit(line)
		return m, cmd, true
	case empty && (k == "1" || k == "2" || k == "3"):
		i, _ := strconv.Atoi(k)
		m.report(m.ctrl.SelectMenu(session.Menus[i-1]))
		return m, nil, true
	case empty && k == "s":
		started, err := m.ctrl.SyncPolicies()
		m.report(err)
		if err == nil && !started {
			m.status = "이미 동기화 중입니다."
		}
		return m, nil, true
	}
	return m, nil, false
}

func (m *model) closeOverlay() {
	switch {
	case m.snap.Modals.PolicyDetail:
		m.report(m.ctrl.ClosePolicyDetail())
	case m.snap.Modals.Login:
		m.report(m.ctrl.CloseModal(session.ModalLogin))
	case m.snap.Modals.Signup:
		m.report(m.ctrl.CloseModal(session.ModalSignup))
	case m.snap.Modals.ProfileEditor:
		m.report(m.ctrl.CloseModal(session.ModalProfileEditor))
	default:
		m.help = false
	}
}

func (m *model) report(err error) {
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
}

func (m *model) submit(line string) tea.Cmd {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	cmd, err := parseCommand(line)
	if err != nil {
		m.status = err.Error()
		return nil
	}

	ctx := context.Background()
	switch cmd.kind {
	case cmdQuit:
		return tea.Quit
	case cmdHelp:
		m.help = !m.help
	case cmdPolicy:
		m.report(m.ctrl.OpenPolicy(cmd.args[0]))
	case cmdFAQ:
		n, _ := strconv.Atoi(cmd.args[0])
		if n < 1 || n > len(session.FAQs) {
			m.status = fmt.Sprintf("faq 번호는 1~%d 입니다.", len(session.FAQs))
			return nil
		}
		m.report(m.ctrl.SelectFAQ(session.FAQs[n-1]))
	case cmdRegion, cmdHasChild, cmdAddChild, cmdAsset:
		p := m.ctrl.Profile(ctx)
		switch cmd.kind {
		case cmdRegion:
			p.Region = cmd.args[0]
		case cmdHasChild:
			p.SetHasChild(cmd.args[0])
		case cmdAddChild:
			p.HasChild = domain.HasChildYes
			var kids []domain.Child
			for _, c := range p.Children {
				if !c.IsEmpty() {
					kids = append(kids, c)
				}
			}
			p.Children = append(kids, domain.Child{Gender: cmd.args[0], Birthdate: cmd.args[1]})
		case cmdAsset:
			p.Asset = cmd.args[0]
		}
		_, err := m.ctrl.SaveProfile(ctx, p)
		m.report(err)
	case cmdLogin:
		m.report(m.ctrl.Login(cmd.args[0], cmd.args[1]))
	case cmdSignup:
		email := ""
		if len(cmd.args) == 3 {
			email = cmd.args[2]
		}
		m.report(m.ctrl.Signup(cmd.args[0], cmd.args[1], email))
	case cmdLogout:
		m.report(m.ctrl.Logout())
	case cmdMessage:
		m.report(m.ctrl.SubmitMessage(cmd.text))
	}
	return nil
}

func styleFor(v transcript.View) lipgloss.Style {
	switch v.Style {
	case transcript.StyleUser:
		return userStyle
	case transcript.StyleAssistantError:
		return errorStyle
	case transcript.StyleAssistantWarning:
		return warnStyle
	case transcript.StyleAssistantPolicyList:
		return listStyle
	case transcript.StyleAssistantGuide:
		return guideStyle
	case transcript.StyleAssistantPersonalized:
		return persStyle
	}
	return botStyle
}

func (m model) renderTranscript() string {
	var b strings.Builder
	for _, e := range m.snap.Transcript {
		who := "AIBBOT"
		if e.IsUser() {
			who = "나"
		}
		b.WriteString(styleFor(e).Render(who+":") + " " + e.Text + "\n")
		for _, p := range e.CitedPolicies {
			b.WriteString(faintStyle.Render(fmt.Sprintf("   [%s] %s", p.ID, p.DisplayName())) + "\n")
		}
		b.WriteString(faintStyle.Render("   "+e.Timestamp) + "\n\n")
	}
	return b.String()
}

func (m model) renderDetail() string {
	d := m.snap.Detail
	switch d.Phase {
	case session.DetailLoading:
		return m.spin.View() + " 정책 " + d.PolicyID + " 불러오는 중..."
	case session.DetailError:
		return errorStyle.Render(d.Error)
	case session.DetailLoaded:
		if d.Policy == nil {
			return ""
		}
		p := d.Policy
		lines := []string{titleStyle.Render(p.DisplayName())}
		for _, s := range []string{p.Description, p.SupportContent, p.UsageMethod} {
			if s != "" {
				lines = append(lines, s)
			}
		}
		lines = append(lines, "신청 기간: "+p.Period())
		if p.ApplyURL != "" {
			lines = append(lines, "신청: "+p.ApplyURL)
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func (m model) View() string {
	var b strings.Builder

	header := titleStyle.Render("AIBBOT 출산·육아 정책 도우미") + "  " + faintStyle.Render(m.snap.ProfileSummary)
	if u := m.snap.CurrentUser; u != nil {
		header += "  " + userStyle.Render(u.Username)
	}
	b.WriteString(header + "\n")
	b.WriteString(faintStyle.Render("1 "+session.Menus[0]+" · 2 "+session.Menus[1]+" · 3 "+session.Menus[2]) + "\n")

	if n := m.snap.Notification; n != nil {
		style := successStyle
		if n.Tone == session.ToneFailure {
			style = failureStyle
		}
		b.WriteString(style.Render(n.Text) + "\n")
	}

	if m.snap.Modals.PolicyDetail {
		b.WriteString(panelStyle.Render(m.renderDetail()) + "\n")
	} else {
		b.WriteString(m.view.View() + "\n")
	}

	var busy []string
	if m.snap.Awaiting.Chat {
		busy = append(busy, "답변을 준비하고 있어요")
	}
	if m.snap.Awaiting.RecentPolicies {
		busy = append(busy, "새로운 정책을 불러오는 중")
	}
	if m.snap.Awaiting.Sync {
		busy = append(busy, "동기화 중")
	}
	if len(busy) > 0 {
		b.WriteString(m.spin.View() + " " + strings.Join(busy, " · ") + "\n")
	}

	for _, e := range []string{m.snap.InlineError, m.snap.LoginError, m.snap.SignupError, m.status} {
		if e != "" {
			b.WriteString(errorStyle.Render(e) + "\n")
		}
	}
	if m.snap.Modals.ProfileEditor {
		b.WriteString(guideStyle.Render("내 정보 편집: region <구> · child <유|무> · kid <남|여> <YYYY-MM-DD> · asset <구간> (esc 닫기)") + "\n")
	}
	if m.snap.Modals.Login || m.snap.Modals.Signup {
		b.WriteString(guideStyle.Render("login <id> <pw> 또는 signup <id> <pw> [email] (esc 닫기)") + "\n")
	}

	b.WriteString(m.input.View() + "\n")
	if m.help {
		b.WriteString(faintStyle.Render(helpText))
	} else {
		b.WriteString(faintStyle.Render("help 로 명령어 보기 · ctrl+c 종료"))
	}
	return b.String()
}
