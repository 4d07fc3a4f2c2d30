package app

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"relaychat/internal/model"
)

type (
	chatLine struct {
		from        string
		body        string
		own         bool
		clientMsgID string
		state       SendState
	}

	// App is the terminal client. It implements Events and renders what
	// the session surfaces; all protocol state lives in the session.
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField
		status  *tview.TextView

		session *Session
		self    string
		to      string

		mu       sync.Mutex
		lines    []chatLine
		peerSeen map[string]string // identity -> last presence status
	}
)

func NewApp(self, to string) *App {
	return &App{
		app:      tview.NewApplication(),
		self:     self,
		to:       to,
		peerSeen: make(map[string]string),
	}
}

// Run wires the session to the UI and blocks until the user quits.
func (c *App) Run(host, token string) error {
	dialer := NewWSDialer(host, c.self, token)
	c.session = NewSession(c.self, dialer, c, nil)

	c.buildUI()
	go c.session.Connect()

	err := c.app.Run()
	c.session.Close()
	return err
}

func (c *App) buildUI() {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat with %s ", c.to))

	c.status = tview.NewTextView().
		SetDynamicColors(true)
	c.status.SetText("[gray]connecting...[-]")

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		if text == "" {
			return
		}
		c.input.SetText("")

		go func(body string) {
			if _, err := c.session.Send(c.to, body); err != nil {
				c.setStatus(fmt.Sprintf("[red]send refused: %v[-]", err))
			}
		}(text)
	})

	// Ctrl-R is the manual retry out of the exhausted state
	c.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlR && c.session.State() == StateExhausted {
			go c.session.Connect()
			return nil
		}
		return event
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.status, 1, 0, false).
		AddItem(c.input, 3, 0, true)

	c.app.SetRoot(layout, true).SetFocus(c.input)
}

// OnConnState implements Events.
func (c *App) OnConnState(state ConnState, attempt int) {
	switch state {
	case StateConnecting:
		c.setStatus("[gray]connecting...[-]")
	case StateConnected:
		c.setStatus("[green]connected[-]")
	case StateDisconnected:
		if attempt > 0 {
			c.setStatus(fmt.Sprintf("[yellow]disconnected, reconnecting (attempt %d)...[-]", attempt))
		} else {
			c.setStatus("[gray]disconnected[-]")
		}
	case StateExhausted:
		c.setStatus("[red]connection lost; press Ctrl-R to retry[-]")
	}
}

// OnMessage implements Events.
func (c *App) OnMessage(m model.Message) {
	c.mu.Lock()
	c.lines = append(c.lines, chatLine{from: m.From, body: m.Body})
	c.mu.Unlock()
	c.redraw()
}

// OnSendUpdate implements Events.
func (c *App) OnSendUpdate(clientMsgID string, state SendState) {
	c.mu.Lock()
	found := false
	for i := range c.lines {
		if c.lines[i].own && c.lines[i].clientMsgID == clientMsgID {
			c.lines[i].state = state
			found = true
			break
		}
	}
	if !found {
		marker, ok := c.session.Pending(clientMsgID)
		if ok {
			c.lines = append(c.lines, chatLine{
				from:        c.self,
				body:        marker.Body,
				own:         true,
				clientMsgID: clientMsgID,
				state:       state,
			})
		}
	}
	c.mu.Unlock()
	c.redraw()
}

// OnPresence implements Events.
func (c *App) OnPresence(user string, status string) {
	c.mu.Lock()
	c.peerSeen[user] = status
	peerStatus, ok := c.peerSeen[c.to]
	c.mu.Unlock()

	if ok && user == c.to {
		c.setStatus(fmt.Sprintf("[green]connected[-], %s is [white]%s[-]", c.to, peerStatus))
	}
}

func sendStateSuffix(s SendState) string {
	switch s {
	case SendPending:
		return " [gray]…[-]"
	case SendAccepted:
		return " [gray]✓[-]"
	case SendDelivered:
		return " [blue]✓✓[-]"
	case SendFailed:
		return " [red]✗ not sent[-]"
	default:
		return ""
	}
}

func (c *App) redraw() {
	c.mu.Lock()
	var b strings.Builder
	for _, l := range c.lines {
		if l.own {
			fmt.Fprintf(&b, "[yellow]You:[-] %s%s\n", tview.Escape(l.body), sendStateSuffix(l.state))
		} else {
			fmt.Fprintf(&b, "[green]%s:[-] %s\n", tview.Escape(l.from), tview.Escape(l.body))
		}
	}
	text := b.String()
	c.mu.Unlock()

	c.app.QueueUpdateDraw(func() {
		c.chatbox.SetText(text)
		c.chatbox.ScrollToEnd()
	})
}

func (c *App) setStatus(text string) {
	c.app.QueueUpdateDraw(func() {
		c.status.SetText(text)
	})
}
