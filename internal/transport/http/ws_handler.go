package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/logging"
)

const sendBuffer = 16

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex       int `json:"questionIndex"`
	SelectedOptionIndex int `json:"selectedOptionIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func wsError(err error) outboundMessage[any] {
	_, body := errorBody(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: body.Error, Message: body.Message}}
}

// ServeWS streams quiz snapshots to a joined player and accepts their answers.
// The first message is the current snapshot; later ones follow each committed change.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	quizID := r.URL.Query().Get("quizId")
	playerID := r.URL.Query().Get("playerId")
	if quizID == "" || playerID == "" {
		http.Error(w, "missing quizId or playerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	initial, updates, cancel, err := h.service.Subscribe(r.Context(), quizID)
	if err != nil {
		_ = conn.WriteJSON(wsError(err))
		return
	}
	defer cancel()
	if !hasPlayer(initial, playerID) {
		_ = conn.WriteJSON(wsError(domain.ErrParticipantNotFound))
		return
	}

	send := make(chan outboundMessage[any], sendBuffer)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer; a failed write closes the connection so the read loop ends.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Str("quiz_id", quizID).Msg("ws write failed")
				conn.Close()
				return
			}
		}
	}()

	enqueue := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snapshot, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: snapshot}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	enqueue(outboundMessage[any]{Type: "snapshot", Payload: initial})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalidRequest, Message: "invalid answer payload"}})
				continue
			}
			err := h.service.SubmitAnswer(r.Context(), app.SubmitAnswerInput{
				QuizID:              quizID,
				PlayerID:            playerID,
				QuestionIndex:       payload.QuestionIndex,
				SelectedOptionIndex: payload.SelectedOptionIndex,
			})
			if err != nil {
				enqueue(wsError(err))
				continue
			}
			enqueue(outboundMessage[any]{Type: "answerAccepted", Payload: payload})
		default:
			enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: CodeInvalidRequest, Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func hasPlayer(s domain.Snapshot, playerID string) bool {
	for _, p := range s.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}
