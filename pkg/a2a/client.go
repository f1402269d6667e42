package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	fiberClient "github.com/gofiber/fiber/v3/client"
	"github.com/theapemachine/a2a-coordinator/pkg/jsonrpc"
)

/*
Client is a thin A2A protocol client used for peer-to-peer calls (e.g. a
directed message handler that needs to forward work to another agent's
server). It round-trips JSON-RPC 2.0 requests against the root endpoint.
*/
type Client struct {
	baseURL string
	conn    *fiberClient.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		conn:    fiberClient.New().SetBaseURL(baseURL),
	}
}

func (client *Client) doRequest(ctx context.Context, req jsonrpc.Request) (jsonrpc.Response, error) {
	res, err := client.conn.Post(
		"/",
		fiberClient.Config{
			Ctx: ctx,
			Header: map[string]string{
				"Content-Type": "application/json",
			},
			Body: req,
		},
	)
	if err != nil {
		return jsonrpc.Response{}, err
	}

	fm := fiber.Map{}
	_ = res.JSON(&fm)

	var rpcErr *jsonrpc.Error
	if errMap, ok := fm["error"].(map[string]interface{}); ok {
		rpcErr = &jsonrpc.Error{
			Code:    int(errMap["code"].(float64)),
			Message: fmt.Sprintf("%v", errMap["message"]),
		}
	}

	return jsonrpc.Response{
		JSONRPC: "2.0",
		Result:  fm["result"],
		Error:   rpcErr,
	}, nil
}

// SendMessage calls message/send synchronously.
func (client *Client) SendMessage(ctx context.Context, params SendParams) (jsonrpc.Response, error) {
	buf, err := json.Marshal(params)
	if err != nil {
		log.Error("failed to marshal send params", "error", err)
		return jsonrpc.Response{}, err
	}

	return client.doRequest(ctx, jsonrpc.Request{
		JSONRPC: "2.0",
		Method:  "message/send",
		Params:  json.RawMessage(buf),
	})
}

// GetTask calls tasks/get.
func (client *Client) GetTask(ctx context.Context, params TaskIDParams) (jsonrpc.Response, error) {
	buf, _ := json.Marshal(params)
	return client.doRequest(ctx, jsonrpc.Request{
		JSONRPC: "2.0",
		Method:  "tasks/get",
		Params:  json.RawMessage(buf),
	})
}

// CancelTask calls tasks/cancel.
func (client *Client) CancelTask(ctx context.Context, params TaskIDParams) (jsonrpc.Response, error) {
	buf, _ := json.Marshal(params)
	return client.doRequest(ctx, jsonrpc.Request{
		JSONRPC: "2.0",
		Method:  "tasks/cancel",
		Params:  json.RawMessage(buf),
	})
}

// StreamMessage calls message/stream and decodes the SSE `data:` frames onto
// eventChan until the stream closes or ctx is cancelled.
func (client *Client) StreamMessage(ctx context.Context, params SendParams, eventChan chan<- TaskStatusUpdateEvent) error {
	buf, err := json.Marshal(params)
	if err != nil {
		return err
	}

	req := jsonrpc.Request{JSONRPC: "2.0", Method: "message/stream", Params: json.RawMessage(buf)}

	res, err := client.conn.Post(
		"/",
		fiberClient.Config{
			Ctx: ctx,
			Header: map[string]string{
				"Content-Type": "application/json",
				"Accept":       "text/event-stream",
			},
			Body: req,
		},
	)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(bytes.NewReader(res.Body()))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}

		var event TaskStatusUpdateEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		select {
		case eventChan <- event:
		case <-ctx.Done():
			return ctx.Err()
		}

		if event.Final {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read SSE frame: %w", err)
	}
	return nil
}
