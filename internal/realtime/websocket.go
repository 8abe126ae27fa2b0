package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"accesscontrol/internal/domain"
	"accesscontrol/internal/lib/sl"
)

const maxDecodeErrors = 3

// Inbound frame types.
const (
	frameAccessGranted  = "access_granted"
	frameAccessDenied   = "access_denied"
	frameRegisterDevice = "register_device"
)

// Outbound frame types that are replies rather than hub events.
const (
	frameError            = "error"
	frameDeviceRegistered = "device_registered"
)

// inboundFrame is what clients send.
type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type registerPayload struct {
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
}

type registeredPayload struct {
	Success  bool   `json:"success"`
	DeviceID string `json:"deviceId,omitempty"`
}

type wsPeer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *json.Encoder
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn, encoder: json.NewEncoder(conn)}
}

func (p *wsPeer) write(event domain.Event, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if timeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return p.encoder.Encode(event)
}

// Server serves the /ws endpoint on top of a Hub.
type Server struct {
	hub          *Hub
	logger       *slog.Logger
	writeTimeout time.Duration
	now          func() time.Time
}

// NewServer returns a websocket server that streams hub events and relays access frames.
func NewServer(hub *Hub, logger *slog.Logger) *Server {
	return &Server{
		hub:          hub,
		logger:       logger.With(sl.Module("realtime.ws")),
		writeTimeout: 10 * time.Second,
		now:          time.Now,
	}
}

// ServeHTTP upgrades the request. Authentication happens before this handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// no origin check, auth runs in front of this handler
	ws := websocket.Server{Handler: s.handleConn}
	ws.ServeHTTP(w, r)
}

func (s *Server) handleConn(conn *websocket.Conn) {
	defer conn.Close()

	log := s.logger
	if req := conn.Request(); req != nil {
		log = log.With("remote", req.RemoteAddr)
	}
	peer := newWSPeer(conn)
	sub := s.hub.Subscribe()
	defer sub.Cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for event := range sub.C {
			if err := peer.write(event, s.writeTimeout); err != nil {
				log.Debug("websocket write failed", sl.Err(err))
				_ = conn.Close()
				for range sub.C {
				}
				return
			}
		}
	}()
	log.Info("websocket client connected")

	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var frame inboundFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
				break
			}
			decodeErrors++
			_ = peer.write(s.reply(frameError, errorPayload{Message: "invalid frame"}), s.writeTimeout)
			if decodeErrors >= maxDecodeErrors {
				break
			}
			// the decoder cannot resync after a syntax error
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0
		s.handleFrame(peer, log, frame)
	}

	sub.Cancel()
	<-writerDone
	log.Info("websocket client disconnected")
}

func (s *Server) handleFrame(peer *wsPeer, log *slog.Logger, frame inboundFrame) {
	switch frame.Type {
	case frameAccessGranted:
		s.relayAccess(log, "granted", frame.Payload)
	case frameAccessDenied:
		s.relayAccess(log, "denied", frame.Payload)
	case frameRegisterDevice:
		var p registerPayload
		if len(frame.Payload) > 0 {
			if err := json.Unmarshal(frame.Payload, &p); err != nil {
				_ = peer.write(s.reply(frameError, errorPayload{Message: "invalid register_device payload"}), s.writeTimeout)
				return
			}
		}
		log.Info("client device registered", "device_id", p.DeviceID, "device_type", p.DeviceType)
		_ = peer.write(s.reply(frameDeviceRegistered, registeredPayload{Success: true, DeviceID: p.DeviceID}), s.writeTimeout)
	default:
		_ = peer.write(s.reply(frameError, errorPayload{Message: "unsupported frame type"}), s.writeTimeout)
	}
}

// relayAccess re-broadcasts an access decision to every subscriber as access_log.
func (s *Server) relayAccess(log *slog.Logger, decision string, raw json.RawMessage) {
	data := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			data = map[string]any{"raw": string(raw)}
		}
	}
	payload := domain.AccessLogPayload{
		Type:      decision,
		Timestamp: s.now().UTC(),
	}
	if v, ok := data["deviceId"].(string); ok {
		payload.DeviceID = v
		delete(data, "deviceId")
	}
	if v, ok := data["residentId"].(string); ok {
		payload.ResidentID = v
		delete(data, "residentId")
	}
	if len(data) > 0 {
		payload.Data = data
	}
	if decision == "denied" {
		log.Warn("access denied reported", "device_id", payload.DeviceID, "resident_id", payload.ResidentID)
	} else {
		log.Info("access granted reported", "device_id", payload.DeviceID, "resident_id", payload.ResidentID)
	}
	s.hub.Publish(domain.EventAccessLog, payload)
}

// reply builds a frame addressed to a single connection.
func (s *Server) reply(frameType string, payload any) domain.Event {
	return domain.Event{
		Type:       domain.EventType(frameType),
		Payload:    payload,
		OccurredAt: s.now().UTC(),
	}
}
