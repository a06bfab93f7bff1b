package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

// Handler serves a Gateway over websocket using the envelope Client speaks.
// Requests on one connection are answered in order.
type Handler struct {
	gw     Gateway
	logger *log.Logger
}

// NewHandler creates an http.Handler exposing gw.
func NewHandler(gw Gateway, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Handler{gw: gw, logger: logger}
}

// ServeHTTP upgrades the connection and answers requests until the client
// goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Printf("Failed to accept websocket connection: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				h.logger.Printf("Read error: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		resp := h.dispatch(ctx, data)
		if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
			h.logger.Printf("Write error: %v", err)
			return
		}
	}
}

// dispatch runs one request and encodes the response.
func (h *Handler) dispatch(ctx context.Context, data []byte) []byte {
	if !gjson.ValidBytes(data) {
		return encodeError("", KindProtocol, "malformed request")
	}
	id := gjson.GetBytes(data, "id").String()
	method := gjson.GetBytes(data, "method").String()
	p := gjson.GetBytes(data, "params")

	result, err := h.invoke(ctx, method, p)
	if err != nil {
		msg := err.Error()
		var re *RemoteError
		if errors.As(err, &re) && re.Message != "" {
			msg = re.Message
		}
		return encodeError(id, KindOf(err), msg)
	}
	resp, err := encodeResult(id, result)
	if err != nil {
		return encodeError(id, KindProtocol, err.Error())
	}
	return resp
}

func (h *Handler) invoke(ctx context.Context, method string, p gjson.Result) (any, error) {
	taskID := p.Get(paramTaskID).Int()
	userID := p.Get(paramUserID).String()
	target := p.Get(paramTargetID).String()

	switch method {
	case OpTaskByID:
		return h.gw.TaskByID(ctx, taskID)
	case OpTasksOwned:
		return h.gw.TasksOwnedByStatus(ctx, userID, stringsParam(p, paramStatuses), p.Get(paramLocale).String())
	case OpTasksPotential:
		return h.gw.TasksAssignedAsPotentialOwnerByStatus(ctx, userID, stringsParam(p, paramStatuses), p.Get(paramLocale).String())
	case OpClaim:
		return nil, h.gw.Claim(ctx, taskID, userID)
	case OpComplete, OpFail:
		vars, err := varsParam(p)
		if err != nil {
			return nil, Wrap(method, KindProtocol, err)
		}
		if method == OpComplete {
			return nil, h.gw.Complete(ctx, taskID, userID, vars)
		}
		return nil, h.gw.Fail(ctx, taskID, userID, vars)
	case OpDelegate:
		return nil, h.gw.Delegate(ctx, taskID, userID, target)
	case OpForward:
		return nil, h.gw.Forward(ctx, taskID, userID, target)
	case OpExit:
		return nil, h.gw.Exit(ctx, taskID, userID)
	case OpRelease:
		return nil, h.gw.Release(ctx, taskID, userID)
	case OpResume:
		return nil, h.gw.Resume(ctx, taskID, userID)
	case OpSkip:
		return nil, h.gw.Skip(ctx, taskID, userID)
	case OpStart:
		return nil, h.gw.Start(ctx, taskID, userID)
	case OpStop:
		return nil, h.gw.Stop(ctx, taskID, userID)
	case OpSuspend:
		return nil, h.gw.Suspend(ctx, taskID, userID)
	case OpNominate:
		return nil, h.gw.Nominate(ctx, taskID, userID, stringsParam(p, paramCandidates))
	case OpContentByID:
		return h.gw.ContentByID(ctx, p.Get(paramContentID).Int())
	case OpAttachmentByID:
		return h.gw.AttachmentByID(ctx, p.Get(paramContentID).Int())
	case OpStartProcess:
		params, err := mapParam(p, paramParams)
		if err != nil {
			return nil, Wrap(method, KindProtocol, err)
		}
		return h.gw.StartProcess(ctx, p.Get(paramProcess).String(), params)
	}
	return nil, Errorf(method, KindProtocol, "unknown method %q", method)
}
