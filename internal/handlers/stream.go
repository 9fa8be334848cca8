package handlers

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Brownie44l1/digitpad/internal/preprocess"
	"github.com/gorilla/websocket"
)

const (
	frameHeaderSize = 8
	readTimeout     = 60 * time.Second
	// pings must arrive before the peer's read deadline runs out
	pingPeriod = readTimeout * 9 / 10
	writeWait  = 10 * time.Second
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream serves the live canvas. Every message is one drawing event and gets
// exactly one PredictionResponse back, in order.
//
// Binary messages are a big-endian uint32 width and height followed by the
// RGBA pixels; text messages are a PredictionRequest in JSON.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	connection, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade error: %v", err)
		return
	}
	defer connection.Close()

	connection.SetReadLimit(h.maxUpload + frameHeaderSize)
	connection.SetReadDeadline(time.Now().Add(h.readTimeout))
	connection.SetPongHandler(func(appData string) error {
		connection.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go h.ping(connection, done)

	h.logger.Info("Canvas connected: %s", r.RemoteAddr)

	for {
		messageType, msg, err := connection.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Info("Canvas disconnected")
			} else {
				h.logger.Warning("Canvas disconnected with error: %v", err)
			}
			return
		}
		connection.SetReadDeadline(time.Now().Add(h.readTimeout))

		var resp PredictionResponse
		bitmap, err := decodeFrame(messageType, msg)
		if err != nil {
			h.logger.Warning("Bad canvas frame: %v", err)
			resp = PredictionResponse{Error: err.Error()}
		} else {
			resp, _ = h.classify(bitmap)
		}

		if err := connection.WriteJSON(resp); err != nil {
			h.logger.Error("Error sending prediction: %v", err)
			return
		}
	}
}

// ping keeps an idle canvas connected. WriteControl may run alongside the
// read loop's WriteJSON.
func (h *Handler) ping(connection *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func decodeFrame(messageType int, msg []byte) (preprocess.Bitmap, error) {
	switch messageType {
	case websocket.BinaryMessage:
		if len(msg) < frameHeaderSize {
			return preprocess.Bitmap{}, fmt.Errorf("frame too short: %d bytes", len(msg))
		}
		return preprocess.Bitmap{
			Width:  int(binary.BigEndian.Uint32(msg[0:4])),
			Height: int(binary.BigEndian.Uint32(msg[4:8])),
			Pix:    msg[frameHeaderSize:],
		}, nil
	case websocket.TextMessage:
		var req PredictionRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			return preprocess.Bitmap{}, fmt.Errorf("invalid JSON: %w", err)
		}
		return req.Bitmap(), nil
	default:
		return preprocess.Bitmap{}, fmt.Errorf("unsupported message type %d", messageType)
	}
}

// EncodeFrame builds the binary message Stream accepts.
func EncodeFrame(b preprocess.Bitmap) []byte {
	msg := make([]byte, frameHeaderSize+len(b.Pix))
	binary.BigEndian.PutUint32(msg[0:4], uint32(b.Width))
	binary.BigEndian.PutUint32(msg[4:8], uint32(b.Height))
	copy(msg[frameHeaderSize:], b.Pix)
	return msg
}
