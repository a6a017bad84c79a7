package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"hospital-chat/internal/usecase"
)

const (
	ChatPath   = "/api/chat-message/"
	HealthPath = "/api/health"

	correlationHeader = "X-Correlation-Id"
	previewLen        = 50
)

type ChatResponder interface {
	Respond(ctx context.Context, in usecase.ChatInput) (usecase.Reply, error)
}

type chatRequest struct {
	Message        string `json:"message"`
	IncludeHistory *bool  `json:"include_history,omitempty"`
}

type successResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Handler is the HTTP boundary of the chat service, shaped for API Gateway
// proxy events.
type Handler struct {
	chat   ChatResponder
	logger *slog.Logger
	newID  func() string
}

func NewHandler(chat ChatResponder) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat responder must not be nil")
	}
	return &Handler{
		chat:   chat,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = h.newID()
	}
	log := h.logger.With("correlation_id", correlationID)

	path := normalizePath(req.Path)
	if path == normalizePath(HealthPath) {
		if req.HTTPMethod != http.MethodGet {
			return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Status: "error", Message: "Invalid request method"}), nil
		}
		return jsonResponse(http.StatusOK, correlationID, map[string]string{"status": "ok"}), nil
	}
	if path != normalizePath(ChatPath) {
		return jsonResponse(http.StatusNotFound, correlationID, errorResponse{Status: "error", Message: "Not found"}), nil
	}

	if req.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Status: "error", Message: "Invalid request method"}), nil
	}

	log.InfoContext(ctx, "received chat message request")

	body, err := decodeBody(req)
	if err != nil {
		log.WarnContext(ctx, "invalid chat request body", "err", err)
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Status: "error", Message: "Invalid JSON body"}), nil
	}
	if strings.TrimSpace(body.Message) == "" {
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Status: "error", Message: "No message provided"}), nil
	}

	log.InfoContext(ctx, "processing message", "preview", preview(body.Message))

	includeHistory := true
	if body.IncludeHistory != nil {
		includeHistory = *body.IncludeHistory
	}
	reply, err := h.chat.Respond(ctx, usecase.ChatInput{Message: body.Message, IncludeHistory: includeHistory})
	if err != nil {
		return h.failureResponse(ctx, log, correlationID, err), nil
	}

	if reply.OK() {
		log.InfoContext(ctx, "ai response success")
	} else {
		log.WarnContext(ctx, "ai response fallback", "kind", string(reply.Kind), "err", reply.Cause)
	}
	return jsonResponse(http.StatusOK, correlationID, successResponse{Status: "success", Response: reply.Text}), nil
}

func (h *Handler) failureResponse(ctx context.Context, log *slog.Logger, correlationID string, err error) events.APIGatewayProxyResponse {
	var usecaseErr *usecase.Error
	if errors.As(err, &usecaseErr) && usecaseErr.Code == usecase.ErrorInvalidInput {
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Status: "error", Message: "No message provided"})
	}
	log.ErrorContext(ctx, "error in chat message handler", "err", err)
	return jsonResponse(http.StatusInternalServerError, correlationID, errorResponse{Status: "error", Message: err.Error()})
}

func decodeBody(req events.APIGatewayProxyRequest) (chatRequest, error) {
	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return chatRequest{}, err
		}
		raw = decoded
	}
	var body chatRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		return chatRequest{}, err
	}
	return body, nil
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	buf, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		buf = []byte(`{"status":"error","message":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(buf),
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func normalizePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

func preview(msg string) string {
	r := []rune(msg)
	if len(r) <= previewLen {
		return msg
	}
	return string(r[:previewLen]) + "..."
}
