package plugins

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// MessageSender delivers inter-agent mail. The orchestrator implements it;
// the indirection keeps this package free of an orchestrator dependency.
type MessageSender interface {
	SendMessage(from, to string, content map[string]any) error
}

// messaging lets an agent send a message to another agent's mailbox.
type messaging struct {
	spec    ToolSpec
	agentID string
	sender  MessageSender
}

func newMessaging(agentID string, sender MessageSender) Entry {
	m := &messaging{
		agentID: agentID,
		sender:  sender,
		spec: ToolSpec{
			Name:        "messaging",
			Description: "Send a message to another agent by its ID. The message lands in the recipient's mailbox and is read on its next turn.",
			Parameters: map[string]ParamSpec{
				"recipient_id": {
					Type:        "string",
					Description: "ID of the receiving agent.",
					Required:    true,
				},
				"content": {
					Type:        "object",
					Description: "Message payload, e.g. {\"status\": \"task_completed\", \"artifacts\": [...]}.",
					Required:    true,
				},
			},
		},
	}
	return Entry{Spec: m.spec, Tool: m}
}

func (m *messaging) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolSpecToToolInfo(&m.spec), nil
}

func (m *messaging) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		RecipientID string          `json:"recipient_id"`
		Content     json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return errorResult(CodeInvalidArguments, "parse arguments: %v", err), nil
	}
	if args.RecipientID == "" || len(args.Content) == 0 {
		return errorResult(CodeInvalidArguments, "recipient_id and content are required"), nil
	}

	// Content is normally an object; plain strings get wrapped so free-text
	// messages still deliver.
	var content map[string]any
	if err := json.Unmarshal(args.Content, &content); err != nil {
		var text string
		if err := json.Unmarshal(args.Content, &text); err != nil {
			return errorResult(CodeInvalidArguments, "content must be an object or a string"), nil
		}
		content = map[string]any{"text": text}
	}

	if err := m.sender.SendMessage(m.agentID, args.RecipientID, content); err != nil {
		return errorResult(CodeExecutionFailed, "send message: %v", err), nil
	}
	return jsonResult(map[string]any{
		"status": "sent",
		"to":     args.RecipientID,
	}), nil
}

var _ tool.InvokableTool = (*messaging)(nil)
