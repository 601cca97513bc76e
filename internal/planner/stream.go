package planner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StreamEventType tags incremental fragments from the streaming variant.
type StreamEventType string

const (
	StreamContent  StreamEventType = "content"
	StreamThinking StreamEventType = "thinking"
	StreamToolCall StreamEventType = "tool_call"
	StreamDone     StreamEventType = "done"
)

// StreamEvent is one incremental fragment of a streamed planner reply.
type StreamEvent struct {
	Type    StreamEventType
	Content string
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta        chatCompletionMessage `json:"delta"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
}

// ChatStream behaves like Chat but delivers content, thinking, and tool-call
// fragments through onEvent as they arrive, finishing with a done event. The
// returned Response carries the same shape Chat would have produced.
func (c *Client) ChatStream(ctx context.Context, message string, pctx Context, onEvent func(StreamEvent)) (Response, error) {
	var empty Response
	message = strings.TrimSpace(message)
	if message == "" {
		return empty, fmt.Errorf("planner stream: message required")
	}
	if c.cfg.APIKey == "" {
		return empty, fmt.Errorf("planner stream: api key required")
	}
	if onEvent == nil {
		onEvent = func(StreamEvent) {}
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(message, pctx)},
		},
		Temperature: 0,
		Stream:      true,
	}

	resp, err := c.postChatRequest(ctx, payload)
	if err != nil {
		return empty, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body := make([]byte, 0, 2048)
		buf := bufio.NewReader(resp.Body)
		chunk := make([]byte, 2048)
		if n, _ := buf.Read(chunk); n > 0 {
			body = chunk[:n]
		}
		return empty, &httpStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var content strings.Builder
	var toolArgs strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return empty, ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Reasoning != "" {
				onEvent(StreamEvent{Type: StreamThinking, Content: choice.Delta.Reasoning})
			}
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				onEvent(StreamEvent{Type: StreamContent, Content: choice.Delta.Content})
			}
			for _, call := range choice.Delta.ToolCalls {
				if call.Function.Arguments != "" {
					toolArgs.WriteString(call.Function.Arguments)
					onEvent(StreamEvent{Type: StreamToolCall, Content: call.Function.Arguments})
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return empty, fmt.Errorf("planner stream: read: %w", err)
	}

	payloadText := strings.TrimSpace(content.String())
	if payloadText == "" {
		payloadText = strings.TrimSpace(toolArgs.String())
	}
	if payloadText == "" {
		return empty, fmt.Errorf("planner stream: empty content")
	}

	parsed, err := decodeResponse(payloadText)
	if err != nil {
		return empty, err
	}
	onEvent(StreamEvent{Type: StreamDone})
	return parsed, nil
}
