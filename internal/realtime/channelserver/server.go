package channelserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/osetale/poslive/internal/realtime"
)

const defaultShutdownTimeout = 10 * time.Second

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame realtime.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// hub fans namespace changes out to subscribed peers.
type hub struct {
	store *ChildStore

	mu          sync.Mutex
	subscribers map[string]map[*wsPeer]struct{}
}

func newHub(store *ChildStore) *hub {
	return &hub{
		store:       store,
		subscribers: make(map[string]map[*wsPeer]struct{}),
	}
}

func (h *hub) subscribe(namespace string, peer *wsPeer) {
	h.mu.Lock()
	peers, ok := h.subscribers[namespace]
	if !ok {
		peers = make(map[*wsPeer]struct{})
		h.subscribers[namespace] = peers
	}
	peers[peer] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) unsubscribeAll(peer *wsPeer) {
	h.mu.Lock()
	for namespace, peers := range h.subscribers {
		delete(peers, peer)
		if len(peers) == 0 {
			delete(h.subscribers, namespace)
		}
	}
	h.mu.Unlock()
}

func (h *hub) peersFor(namespace string) []*wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]*wsPeer, 0, len(h.subscribers[namespace]))
	for peer := range h.subscribers[namespace] {
		peers = append(peers, peer)
	}
	return peers
}

// snapshotFrame builds the current full-state frame for a namespace.
func (h *hub) snapshotFrame(ctx context.Context, namespace string) (realtime.Frame, error) {
	children, err := h.store.List(ctx, namespace)
	if err != nil {
		return realtime.Frame{}, err
	}
	payload, err := json.Marshal(realtime.SnapshotPayload{Namespace: namespace, Children: children})
	if err != nil {
		return realtime.Frame{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return realtime.Frame{Type: realtime.FrameSnapshot, Payload: payload}, nil
}

// broadcast sends the namespace's current snapshot to every subscriber.
func (h *hub) broadcast(ctx context.Context, namespace string) {
	frame, err := h.snapshotFrame(ctx, namespace)
	if err != nil {
		log.Printf("channel: snapshot for broadcast on %q: %v", namespace, err)
		return
	}
	for _, peer := range h.peersFor(namespace) {
		if err := peer.writeFrame(frame); err != nil {
			log.Printf("channel: broadcast to subscriber on %q: %v", namespace, err)
		}
	}
}

func handleConn(conn *websocket.Conn, h *hub) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))
	defer h.unsubscribeAll(peer)

	for {
		var frame realtime.Frame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("channel: decode frame: %v", err)
			}
			return
		}

		switch frame.Type {
		case realtime.FramePush:
			handlePushFrame(ctx, h, peer, frame)
		case realtime.FrameSubscribe:
			handleSubscribeFrame(ctx, h, peer, frame)
		case realtime.FrameDelete:
			handleDeleteFrame(ctx, h, peer, frame)
		default:
			writeWireError(peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func handlePushFrame(ctx context.Context, h *hub, peer *wsPeer, frame realtime.Frame) {
	var payload realtime.PushPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		writeWireError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid push payload")
		return
	}

	key, err := h.store.Append(ctx, payload.Namespace, payload.Child)
	if err != nil {
		log.Printf("channel: append child to %q: %v", payload.Namespace, err)
		writeWireError(peer, frame.RequestID, "INTERNAL", "failed to store child")
		return
	}

	ack, err := json.Marshal(realtime.PushedPayload{Key: key})
	if err != nil {
		writeWireError(peer, frame.RequestID, "INTERNAL", "failed to encode push ack")
		return
	}
	if err := peer.writeFrame(realtime.Frame{Type: realtime.FramePushed, RequestID: frame.RequestID, Payload: ack}); err != nil {
		log.Printf("channel: push ack: %v", err)
	}

	h.broadcast(ctx, payload.Namespace)
}

func handleSubscribeFrame(ctx context.Context, h *hub, peer *wsPeer, frame realtime.Frame) {
	var payload realtime.SubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.Namespace == "" {
		writeWireError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid subscribe payload")
		return
	}

	h.subscribe(payload.Namespace, peer)

	// New subscribers get the current snapshot immediately, mirroring
	// listener semantics where attach always fires with existing state.
	snapshot, err := h.snapshotFrame(ctx, payload.Namespace)
	if err != nil {
		log.Printf("channel: initial snapshot for %q: %v", payload.Namespace, err)
		writeWireError(peer, frame.RequestID, "INTERNAL", "failed to load snapshot")
		return
	}
	if err := peer.writeFrame(snapshot); err != nil {
		log.Printf("channel: initial snapshot write: %v", err)
	}
}

func handleDeleteFrame(ctx context.Context, h *hub, peer *wsPeer, frame realtime.Frame) {
	var payload realtime.DeletePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		writeWireError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid delete payload")
		return
	}

	if err := h.store.Delete(ctx, payload.Namespace, payload.Key); err != nil {
		log.Printf("channel: delete child %q from %q: %v", payload.Key, payload.Namespace, err)
		writeWireError(peer, frame.RequestID, "INTERNAL", "failed to delete child")
		return
	}

	ack, err := json.Marshal(realtime.DeletedPayload{Key: payload.Key})
	if err != nil {
		writeWireError(peer, frame.RequestID, "INTERNAL", "failed to encode delete ack")
		return
	}
	if err := peer.writeFrame(realtime.Frame{Type: realtime.FrameDeleted, RequestID: frame.RequestID, Payload: ack}); err != nil {
		log.Printf("channel: delete ack: %v", err)
	}

	h.broadcast(ctx, payload.Namespace)
}

func writeWireError(peer *wsPeer, requestID string, code string, message string) {
	payload, err := json.Marshal(realtime.ErrorPayload{Code: code, Message: message})
	if err != nil {
		log.Printf("channel: encode error frame: %v", err)
		return
	}
	if err := peer.writeFrame(realtime.Frame{Type: realtime.FrameError, RequestID: requestID, Payload: payload}); err != nil {
		log.Printf("channel: write error frame: %v", err)
	}
}

// NewHandler creates the channel service routes over the given store.
func NewHandler(store *ChildStore) http.Handler {
	h := newHub(store)
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleConn(conn, h)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

// Run serves the channel service until ctx is cancelled.
func Run(ctx context.Context, port int, dbPath string) error {
	store, err := OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("channel: close store: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewHandler(store),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("channel: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown channel server: %w", err)
	}
	return <-errCh
}
