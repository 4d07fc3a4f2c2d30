package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relaychat/internal/protocol"
	"relaychat/internal/utils/log"
)

type (
	// Client wraps the server's HTTP surface: registration and login.
	Client struct {
		host string
	}

	wsDialer struct {
		host     string
		identity string
		token    string
	}

	wsConn struct {
		mu   sync.Mutex
		conn *websocket.Conn
	}
)

func NewClient(host string) *Client {
	return &Client{host: host}
}

func (c *Client) Register(username, password string) error {
	return c.postCredentials("/register", username, password, nil)
}

// Login exchanges credentials for a session token.
func (c *Client) Login(username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.postCredentials("/login", username, password, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) postCredentials(path, username, password string, out any) error {
	u := url.URL{
		Scheme: "http",
		Host:   c.host,
		Path:   path,
	}

	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(u.String(), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// NewWSDialer returns a Dialer that connects to the server's websocket
// endpoint with the identity and session token in the handshake request.
func NewWSDialer(host, identity, token string) Dialer {
	return &wsDialer{
		host:     host,
		identity: identity,
		token:    token,
	}
}

func (d *wsDialer) Dial() (Conn, error) {
	params := url.Values{
		"user":  []string{d.identity},
		"token": []string{d.token},
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     d.host,
		Path:     "/ws",
		RawQuery: params.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	return &wsConn{conn: conn}, nil
}

func (c *wsConn) ReadFrame() (*protocol.Frame, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrCleanClose
			}
			return nil, err
		}

		f, err := protocol.Decode(data)
		if err != nil {
			// malformed frames are dropped; the connection stays open
			log.Info("dropping malformed frame", zap.Error(err))
			continue
		}
		return f, nil
	}
}

func (c *wsConn) WriteFrame(f *protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
