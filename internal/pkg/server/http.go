package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"statesync/internal/pkg/handler"
	"statesync/internal/pkg/store"
	"statesync/internal/pkg/wire"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultWatchInterval is the update interval of a websocket watcher.
const DefaultWatchInterval = 100 * time.Millisecond

type inspector struct {
	store store.Store
}

// NewHTTPHandler serves a read-only view of st:
//
//	GET /state          all entries
//	GET /state/{key}    one entry
//	GET /locks          live locks
//	GET /watch          websocket feed of state updates, snapshot first
func NewHTTPHandler(st store.Store) http.Handler {
	i := &inspector{store: st}
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)
			logger.WithFields(logrus.Fields{
				"method":   req.Method,
				"url":      req.URL.String(),
				"status":   m.Code,
				"duration": m.Duration,
			}).Debug("handled")
		})
	})
	r.Methods(http.MethodGet).Path("/state").HandlerFunc(i.getState)
	r.Methods(http.MethodGet).Path("/state/{key}").HandlerFunc(i.getEntry)
	r.Methods(http.MethodGet).Path("/locks").HandlerFunc(i.getLocks)
	r.Methods(http.MethodGet).Path("/watch").HandlerFunc(i.watch)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("write response failed")
	}
}

func (i *inspector) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, i.store.Snapshot())
}

func (i *inspector) getEntry(w http.ResponseWriter, req *http.Request) {
	v, ok := i.store.Get(mux.Vars(req)["key"])
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, v)
}

func (i *inspector) getLocks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, i.store.Locks())
}

func (i *inspector) watch(w http.ResponseWriter, req *http.Request) {
	h, err := handler.NewHandler(
		handler.WithStore(i.store),
		handler.WithInterval(DefaultWatchInterval),
	)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	// the feed is one way; reading only detects the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	err = h.Run(ctx, func(update *wire.StateUpdate) error {
		return conn.WriteJSON(update)
	})
	if err != nil {
		logger.WithError(err).Debug("watcher left")
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
