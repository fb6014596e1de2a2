package services

import (
	"context"
	"log"
	"strings"
)

// IdentityReply is the fixed answer to questions about the assistant's name.
const IdentityReply = "My name is " + assistantName + ", your intelligent assistant!"

// Route names the branch that produced a reply.
type Route string

const (
	RouteMath       Route = "math"
	RouteIdentity   Route = "identity"
	RouteGeneration Route = "generation"
)

// Reply is the outcome of one chat message.
type Reply struct {
	Text  string
	Route Route
}

// TextGenerator produces a free-text reply.
type TextGenerator interface {
	Generate(ctx context.Context, message string) (string, error)
}

// ChatService dispatches a message to the math evaluator, the identity
// responder or the text generator, in that order.
type ChatService struct {
	generator TextGenerator
}

func NewChatService(generator TextGenerator) *ChatService {
	return &ChatService{generator: generator}
}

// Reply answers message. The message is trimmed first; an empty message is a
// *ValidationError. Generation failures are returned as is.
func (s *ChatService) Reply(ctx context.Context, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, &ValidationError{Message: "Message cannot be empty."}
	}

	if IsMathExpression(message) {
		result, err := EvaluateMath(message)
		if err == nil {
			return Reply{Text: "Math Answer: " + result.String(), Route: RouteMath}, nil
		}
		// Not a usable expression after all; treat it as ordinary text.
		log.Printf("math evaluation of %q failed, falling through: %v", message, err)
	}

	if strings.Contains(strings.ToLower(message), "your name") {
		return Reply{Text: IdentityReply, Route: RouteIdentity}, nil
	}

	text, err := s.generator.Generate(ctx, message)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text, Route: RouteGeneration}, nil
}
