package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// TokenVerifier checks an admin token and returns its subject.
type TokenVerifier interface {
	ParseToken(token string) (string, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are enforced by the CORS layer
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter registers /health and the rate limited /ws endpoint.
func NewRouter(hub *Hub, tokens TokenVerifier, limiter *RateLimiter) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", health(hub))
	router.GET("/ws", limiter.Limit(serveWS(hub, tokens)))
	return router
}

// NewHandler wraps the router with CORS and request logging.
func NewHandler(router http.Handler, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return loggingMiddleware(c.Handler(router))
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s from %s %v", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

func health(hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "clients": hub.Clients()})
	}
}

func bearer(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// serveWS upgrades an authenticated admin to a websocket. ?topics=a,b limits
// what the client receives.
func serveWS(hub *Hub, tokens TokenVerifier) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sub, err := tokens.ParseToken(bearer(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		topics := map[string]bool{}
		if raw := r.URL.Query().Get("topics"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					topics[t] = true
				}
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade:", err)
			return
		}
		c := &Client{conn: conn, send: make(chan []byte, sendBuffer), topics: topics}
		if !hub.add(c) {
			conn.Close()
			return
		}
		log.Printf("feed client connected: %s", sub)
		go c.writePump()
		go c.readPump(hub)
	}
}
