package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relaychat/internal/auth"
	"relaychat/internal/model"
	"relaychat/internal/protocol"
	userRepo "relaychat/internal/repository/user"
	redisSvc "relaychat/internal/service/redis"
	"relaychat/internal/utils/log"
)

type (
	HttpServer struct {
		listenAddr   string
		userRepo     *userRepo.UserRepo
		redisService *redisSvc.RedisService
		authService  *auth.Service
		coordinator  *Coordinator
	}

	credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	// wsHandle wraps a websocket connection with a write lock: the
	// coordinator writes from any connection's reader goroutine, and
	// gorilla connections do not allow concurrent writers.
	wsHandle struct {
		mu   sync.Mutex
		conn *websocket.Conn
	}
)

func (h *wsHandle) WriteFrame(f *protocol.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.WriteJSON(f)
}

func NewHttpServer(listenAddr string, userRepo *userRepo.UserRepo, redisSvc *redisSvc.RedisService, authSvc *auth.Service, coord *Coordinator) *HttpServer {
	return &HttpServer{
		listenAddr:   listenAddr,
		userRepo:     userRepo,
		redisService: redisSvc,
		authService:  authSvc,
		coordinator:  coord,
	}
}

func (s *HttpServer) Run() error {
	return http.ListenAndServe(s.listenAddr, s.Router())
}

func (s *HttpServer) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/register", s.HandleRegister()).Methods(http.MethodPost)
	r.HandleFunc("/login", s.HandleLogin()).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.HandleHealthz()).Methods(http.MethodGet)
	return r
}

func (s *HttpServer) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var creds credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if creds.Username == "" || creds.Password == "" {
			http.Error(w, "username and password are required", http.StatusBadRequest)
			return
		}

		existing, err := s.userRepo.GetByName(ctx, creds.Username)
		if err != nil {
			log.Error("register lookup failed", zap.Error(err))
			http.Error(w, "registration failed", http.StatusInternalServerError)
			return
		}
		if existing != nil {
			http.Error(w, "username already taken", http.StatusConflict)
			return
		}

		hash, err := auth.HashPassword(creds.Password)
		if err != nil {
			log.Error("password hash failed", zap.Error(err))
			http.Error(w, "registration failed", http.StatusInternalServerError)
			return
		}

		if _, err := s.userRepo.Create(ctx, &model.User{Name: creds.Username, PasswordHash: hash}); err != nil {
			log.Error("user create failed", zap.Error(err))
			http.Error(w, "registration failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
	}
}

func (s *HttpServer) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var creds credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		user, err := s.userRepo.GetByName(ctx, creds.Username)
		if err != nil {
			log.Error("login lookup failed", zap.Error(err))
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}
		if user == nil || !auth.CheckPassword(user.PasswordHash, creds.Password) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		token, err := s.authService.IssueToken(user.Name)
		if err != nil {
			log.Error("token issue failed", zap.Error(err))
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}

func (s *HttpServer) HandleWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity := r.URL.Query().Get("user")
		token := r.URL.Query().Get("token")
		if identity == "" || token == "" {
			http.Error(w, "user and token are required", http.StatusUnauthorized)
			return
		}
		// reject before the handshake completes; no registry state is
		// created for a connection that fails auth
		if !s.authService.ValidateToken(token, identity) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "Failed to upgrade", http.StatusInternalServerError)
			return
		}

		h := &wsHandle{conn: conn}
		s.coordinator.OnConnect(r.Context(), identity, h)
		go s.readLoop(identity, h)
	}
}

func (s *HttpServer) readLoop(identity string, h *wsHandle) {
	ctx := context.Background()
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			log.Debug("web socket closed", zap.String("identity", identity), zap.Error(err))
			h.conn.Close()
			s.coordinator.OnDisconnect(ctx, identity, h)
			return
		}

		f, err := protocol.Decode(data)
		if err != nil {
			// malformed frames are dropped; the connection stays open
			log.Info("dropping malformed frame", zap.String("identity", identity), zap.Error(err))
			continue
		}

		switch f.Type {
		case protocol.TypeSendMessage:
			s.coordinator.Submit(ctx, identity, f)
		case protocol.TypeAckMessage:
			s.coordinator.Acknowledge(ctx, identity, f.ServerMsgID)
		case protocol.TypePing:
			if err := h.WriteFrame(protocol.Pong(time.Now().UnixMilli())); err != nil {
				log.Debug("pong write failed", zap.String("identity", identity), zap.Error(err))
			}
		default:
			log.Info("dropping frame with unknown type",
				zap.String("identity", identity),
				zap.String("type", f.Type))
		}
	}
}

func (s *HttpServer) HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.redisService != nil {
			if err := s.redisService.Ping(r.Context()); err != nil {
				log.Error("healthz redis ping failed", zap.Error(err))
				http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}
