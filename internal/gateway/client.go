package gateway

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/termwork/tasksync/internal/schema"
)

// Client implements Gateway over a websocket connection to a remote that
// speaks the envelope served by Handler.
//
// Calls are serialized on the single connection. The connection is dialled
// on first use and dropped after any transport error, so the next call
// redials.
type Client struct {
	url      string
	header   map[string]string
	logger   *log.Logger
	mu       sync.Mutex
	conn     *websocket.Conn
	readSize int64
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Header is sent with the websocket handshake (e.g. Authorization).
	Header map[string]string
	// ReadLimit caps the size of one response (default 4 MiB).
	ReadLimit int64
	Logger    *log.Logger
}

// NewClient creates a Client for a ws:// or wss:// URL. Nothing is dialled
// until the first call.
func NewClient(url string, opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}
	c := &Client{
		url:      url,
		header:   opts.Header,
		logger:   opts.Logger,
		readSize: opts.ReadLimit,
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[gateway] ", log.LstdFlags)
	}
	if c.readSize <= 0 {
		c.readSize = 4 << 20
	}
	return c
}

// Close closes the connection if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	return err
}

func (c *Client) connect(ctx context.Context, op string) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	opts := &websocket.DialOptions{}
	if len(c.header) > 0 {
		opts.HTTPHeader = http.Header{}
		for k, v := range c.header {
			opts.HTTPHeader.Set(k, v)
		}
	}
	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		return nil, Wrap(op, KindOf(err), err)
	}
	conn.SetReadLimit(c.readSize)
	c.conn = conn
	return conn, nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.CloseNow()
		c.conn = nil
	}
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx, method)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	req, err := encodeRequest(id, method, params)
	if err != nil {
		return Wrap(method, KindProtocol, err)
	}

	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		c.drop()
		return classify(method, err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.drop()
			return classify(method, err)
		}
		if got := gjson.GetBytes(data, "id").String(); got != id {
			c.logger.Printf("discarding response %s while waiting for %s", got, id)
			continue
		}
		return decodeResponse(method, data, out)
	}
}

func (c *Client) TaskByID(ctx context.Context, id int64) (*schema.Task, error) {
	var task schema.Task
	if err := c.call(ctx, OpTaskByID, map[string]any{paramTaskID: id}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) TasksOwnedByStatus(ctx context.Context, userID string, statuses []string, locale string) ([]schema.TaskSummary, error) {
	var out []schema.TaskSummary
	err := c.call(ctx, OpTasksOwned, map[string]any{
		paramUserID:   userID,
		paramStatuses: statuses,
		paramLocale:   locale,
	}, &out)
	return out, err
}

func (c *Client) TasksAssignedAsPotentialOwnerByStatus(ctx context.Context, userID string, statuses []string, locale string) ([]schema.TaskSummary, error) {
	var out []schema.TaskSummary
	err := c.call(ctx, OpTasksPotential, map[string]any{
		paramUserID:   userID,
		paramStatuses: statuses,
		paramLocale:   locale,
	}, &out)
	return out, err
}

func (c *Client) taskVerb(ctx context.Context, op string, id int64, userID string) error {
	return c.call(ctx, op, map[string]any{paramTaskID: id, paramUserID: userID}, nil)
}

func (c *Client) Claim(ctx context.Context, id int64, userID string) error {
	return c.taskVerb(ctx, OpClaim, id, userID)
}

func (c *Client) Complete(ctx context.Context, id int64, userID string, vars schema.Variables) error {
	return c.call(ctx, OpComplete, map[string]any{paramTaskID: id, paramUserID: userID, paramVars: vars}, nil)
}

func (c *Client) Delegate(ctx context.Context, id int64, userID, targetUserID string) error {
	return c.call(ctx, OpDelegate, map[string]any{paramTaskID: id, paramUserID: userID, paramTargetID: targetUserID}, nil)
}

func (c *Client) Exit(ctx context.Context, id int64, userID string) error {
	return c.taskVerb(ctx, OpExit, id, userID)
}

func (c *Client) Fail(ctx context.Context, id int64, userID string, vars schema.Variables) error {
	return c.call(ctx, OpFail, map[string]any{paramTaskID: id, paramUserID: userID, paramVars: vars}, nil)
}

func (c *Client) Forward(ctx context.Context, id int64, userID, targetUserID string) error {
	return c.call(ctx, OpForward, map[string]any{paramTaskID: id, paramUserID: userID, paramTargetID: targetUserID}, nil)
}

func (c *Client) Release(ctx context.Context, id int64, userID string) error {
	return c.taskVerb(ctx, OpRelease, id, userID)
}

func (c *Client) Resume(ctx context.Context, id int64, userID string) error {
	return c.taskVerb(ctx, OpResume, id, userID)
}

func (c *Client) Skip(ctx context.Context, id int64, userID string) error {
	return c.taskVerb(ctx, OpSkip, id, userID)
}

func (c *Client) Start(ctx context.Context, id int64, userID string) error {
	return c.taskVerb(ctx, OpStart, id, userID)
}

func (c *Client) Stop(ctx context.Context, id int64, userID string) error {
	return c.taskVerb(ctx, OpStop, id, userID)
}

func (c *Client) Suspend(ctx context.Context, id int64, userID string) error {
	return c.taskVerb(ctx, OpSuspend, id, userID)
}

func (c *Client) Nominate(ctx context.Context, id int64, userID string, candidates []string) error {
	return c.call(ctx, OpNominate, map[string]any{paramTaskID: id, paramUserID: userID, paramCandidates: candidates}, nil)
}

func (c *Client) ContentByID(ctx context.Context, id int64) (*schema.Content, error) {
	var content schema.Content
	if err := c.call(ctx, OpContentByID, map[string]any{paramContentID: id}, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

func (c *Client) AttachmentByID(ctx context.Context, id int64) (*schema.Content, error) {
	var content schema.Content
	if err := c.call(ctx, OpAttachmentByID, map[string]any{paramContentID: id}, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

func (c *Client) StartProcess(ctx context.Context, processName string, params map[string]any) (*schema.ProcessInstance, error) {
	var pi schema.ProcessInstance
	if err := c.call(ctx, OpStartProcess, map[string]any{paramProcess: processName, paramParams: params}, &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}
