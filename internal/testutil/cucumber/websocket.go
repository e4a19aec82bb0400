package cucumber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

// SocketPath is where the chat server accepts WebSocket upgrades.
const SocketPath = "/api/socket"

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I connect to the socket$`, s.iConnectToTheSocket)
		ctx.Step(`^"([^"]*)" connects to the socket$`, s.userConnectsToTheSocket)
		ctx.Step(`^I disconnect from the socket$`, s.iDisconnectFromTheSocket)
		ctx.Step(`^"([^"]*)" disconnects from the socket$`, s.userDisconnectsFromTheSocket)
		ctx.Step(`^I send the "([^"]*)" socket event$`, s.iSendTheSocketEvent)
		ctx.Step(`^I wait up to "([^"]*)" seconds for a "([^"]*)" socket event$`, s.iWaitForASocketEvent)
		ctx.Step(`^I wait up to "([^"]*)" seconds for a "([^"]*)" socket event matching json:$`, s.iWaitForASocketEventMatching)
		ctx.Step(`^"([^"]*)" should receive a "([^"]*)" socket event within "([^"]*)" seconds$`, s.userShouldReceiveASocketEvent)
		ctx.Step(`^I should not receive a "([^"]*)" socket event within "([^"]*)" seconds$`, s.iShouldNotReceiveASocketEvent)
		ctx.Step(`^"([^"]*)" should not receive a "([^"]*)" socket event within "([^"]*)" seconds$`, s.userShouldNotReceiveASocketEvent)
	})
}

type socketFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// socketConn buffers every inbound frame so steps can wait for a specific
// event without losing the ones that arrived before it.
type socketConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	frames []socketFrame
	notify chan struct{}
	done   chan struct{}
}

func dialSocket(rawURL string) (*socketConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	c := &socketConn{
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *socketConn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f socketFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		c.mu.Lock()
		c.frames = append(c.frames, f)
		c.mu.Unlock()
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

func (c *socketConn) take(event string, consume bool) (socketFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.frames {
		if f.Event != event {
			continue
		}
		if consume {
			c.frames = append(c.frames[:i:i], c.frames[i+1:]...)
		}
		return f, true
	}
	return socketFrame{}, false
}

func (c *socketConn) await(ctx context.Context, event string, consume bool) (socketFrame, error) {
	for {
		if f, ok := c.take(event, consume); ok {
			return f, nil
		}
		select {
		case <-c.notify:
		case <-c.done:
			if f, ok := c.take(event, consume); ok {
				return f, nil
			}
			return socketFrame{}, fmt.Errorf("socket closed before a %q event arrived", event)
		case <-ctx.Done():
			return socketFrame{}, fmt.Errorf("no %q socket event within the timeout", event)
		}
	}
}

func (c *socketConn) send(event string) error {
	return c.conn.WriteJSON(map[string]string{"event": event})
}

func (c *socketConn) close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
	<-c.done
}

func (s *TestSession) closeSocket() {
	if s.socket != nil {
		s.socket.close()
		s.socket = nil
	}
}

func (s *TestScenario) socketURL(token string) (string, error) {
	base, err := url.Parse(s.Suite.APIURL)
	if err != nil {
		return "", err
	}
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	default:
		base.Scheme = "ws"
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + s.PathPrefix + SocketPath
	base.RawQuery = url.Values{"token": []string{token}}.Encode()
	return base.String(), nil
}

func (s *TestScenario) iConnectToTheSocket() error {
	return s.connect(s.Session())
}

func (s *TestScenario) userConnectsToTheSocket(user string) error {
	return s.connect(s.SessionFor(user))
}

// connect returns once the server has registered the connection, which is
// signalled by the first online-users broadcast.
func (s *TestScenario) connect(session *TestSession) error {
	if session.TestUser == nil || session.TestUser.Subject == "" {
		return fmt.Errorf("no authenticated user for this session")
	}
	session.closeSocket()
	rawURL, err := s.socketURL(session.TestUser.Subject)
	if err != nil {
		return err
	}
	conn, err := dialSocket(rawURL)
	if err != nil {
		return fmt.Errorf("socket dial failed: %w", err)
	}
	session.socket = conn

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = conn.await(ctx, "getOnlineUsers", false)
	return err
}

func (s *TestScenario) iDisconnectFromTheSocket() error {
	s.Session().closeSocket()
	return nil
}

func (s *TestScenario) userDisconnectsFromTheSocket(user string) error {
	s.SessionFor(user).closeSocket()
	return nil
}

func (s *TestScenario) iSendTheSocketEvent(event string) error {
	session := s.Session()
	if session.socket == nil {
		return fmt.Errorf("not connected to the socket")
	}
	return session.socket.send(event)
}

// iWaitForASocketEvent consumes the next matching event and exposes its
// payload as ${response} for the response assertion steps.
func (s *TestScenario) iWaitForASocketEvent(timeout float64, event string) error {
	session := s.Session()
	f, err := s.awaitSocketEvent(session, event, timeout)
	if err != nil {
		return err
	}
	session.Resp = nil
	session.SetRespBytes(f.Data)
	return nil
}

// iWaitForASocketEventMatching consumes events of the given name until one
// matches the expected document.
func (s *TestScenario) iWaitForASocketEventMatching(timeout float64, event string, expected *godog.DocString) error {
	session := s.Session()
	if session.socket == nil {
		return fmt.Errorf("not connected to the socket")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout*float64(time.Second)))
	defer cancel()

	var lastErr error
	for {
		f, err := session.socket.await(ctx, event, true)
		if err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w; last mismatch: %v", err, lastErr)
			}
			return err
		}
		lastErr = s.JSONMustMatch(string(f.Data), expected.Content, true)
		if lastErr == nil {
			session.Resp = nil
			session.SetRespBytes(f.Data)
			return nil
		}
	}
}

func (s *TestScenario) userShouldReceiveASocketEvent(user, event string, timeout float64) error {
	_, err := s.awaitSocketEvent(s.SessionFor(user), event, timeout)
	if err != nil {
		return fmt.Errorf("%s: %w", user, err)
	}
	return nil
}

func (s *TestScenario) iShouldNotReceiveASocketEvent(event string, timeout float64) error {
	return s.expectNoSocketEvent(s.Session(), event, timeout)
}

func (s *TestScenario) userShouldNotReceiveASocketEvent(user, event string, timeout float64) error {
	if err := s.expectNoSocketEvent(s.SessionFor(user), event, timeout); err != nil {
		return fmt.Errorf("%s: %w", user, err)
	}
	return nil
}

func (s *TestScenario) awaitSocketEvent(session *TestSession, event string, timeout float64) (socketFrame, error) {
	if session.socket == nil {
		return socketFrame{}, fmt.Errorf("not connected to the socket")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout*float64(time.Second)))
	defer cancel()
	return session.socket.await(ctx, event, true)
}

func (s *TestScenario) expectNoSocketEvent(session *TestSession, event string, timeout float64) error {
	if session.socket == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout*float64(time.Second)))
	defer cancel()
	f, err := session.socket.await(ctx, event, true)
	if err == nil {
		return fmt.Errorf("unexpected %q socket event: %s", event, string(f.Data))
	}
	return nil
}
