package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/taskdeck/internal/middleware"
	"github.com/atinyakov/taskdeck/internal/models"
)

// Server bundles the in-memory store, token manager and handlers.
type Server struct {
	store  *Store
	tokens *TokenManager
	log    *zap.Logger
}

// NewServer creates a devserver signing tokens with the given secret.
func NewServer(secret string, log *zap.Logger) *Server {
	return &Server{
		store:  NewStore(),
		tokens: NewTokenManager(secret, 0),
		log:    log,
	}
}

// Store exposes the underlying store for test seeding.
func (s *Server) Store() *Store {
	return s.store
}

// NewRouter constructs the HTTP handler serving the backend surface the
// client consumes.
//
// Middleware chain (applied in order):
//  1. WithRequestLogging(logger) — logs incoming requests
//  2. BearerAuth                 — enforces bearer-token authentication
func (s *Server) NewRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.WithRequestLogging(s.log))
	r.Use(middleware.BearerAuth(s.tokens))

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/token", s.login)
		r.Get("/me", s.me)
		r.Get("/all", s.allUsers)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.listTasks)
		r.Post("/", s.createTask)
		r.Delete("/{taskID}", s.deleteTask)
		r.Patch("/{taskID}/complete", s.completeTask)
	})

	r.Route("/chats/admin", func(r chi.Router) {
		r.Get("/", s.userChat)
		r.Post("/message", s.sendMessage)
		r.Get("/status", s.adminStatus)
		r.Put("/status", s.setAdminStatus)
		r.Patch("/status", s.setAdminStatus)
		r.Get("/unread", s.unread)
		r.Get("/all", s.allChats)
		r.Put("/read/{chatID}", s.markRead)
		r.Post("/reply/{chatID}", s.reply)
	})

	return r
}

// currentUser resolves the authenticated account from the request context.
func (s *Server) currentUser(r *http.Request) (*User, bool) {
	username := middleware.GetUsernameFromContext(r.Context())
	if username == "" {
		return nil, false
	}
	return s.store.FindUser(username)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if req.Role != models.RoleUser && req.Role != models.RoleAdmin {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	profile, err := s.store.CreateUser(req.Username, req.Email, req.Role, hash)
	if err != nil {
		if errors.Is(err, ErrExists) {
			http.Error(w, "user already exists", http.StatusConflict)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	user, ok := s.store.FindUser(req.Username)
	if !ok || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		http.Error(w, "incorrect username or password", http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.Issue(user.Username, user.Role)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.Token{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user.UserProfile)
}

func (s *Server) allUsers(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if user.Role != models.RoleAdmin {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Users())
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	tasks := s.store.TasksFor(user.ID, user.Role == models.RoleAdmin)

	q := r.URL.Query()
	if v := q.Get("completed"); v != "" {
		want, err := strconv.ParseBool(v)
		if err == nil {
			filtered := tasks[:0]
			for _, t := range tasks {
				if t.Completed == want {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}
	}
	if v := q.Get("priority"); v != "" {
		want, err := strconv.Atoi(v)
		if err == nil {
			filtered := tasks[:0]
			for _, t := range tasks {
				if t.Priority == want {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}
	}

	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil || task.Title == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	created := s.store.CreateTask(user.ID, task)
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteTask(id, user.ID, user.Role == models.RoleAdmin); err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return
	}

	if err := s.store.CompleteTask(id, user.ID, user.Role == models.RoleAdmin); err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task marked as completed"})
}

func writeTaskErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "task not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) userChat(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chat, ok := s.store.ChatFor(user.ID)
	if !ok {
		http.Error(w, "no active admin chat found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	msg := s.store.AppendMessage(user.ID, user.Username, req.Content, user.ID, false)
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) adminStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Status())
}

func (s *Server) setAdminStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if user.Role != models.RoleAdmin {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}

	var req struct {
		IsOnline bool `json:"is_online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.store.SetStatus(req.IsOnline))
}

func (s *Server) unread(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	n := s.store.UnreadFor(user.ID, user.Role == models.RoleAdmin)
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

func (s *Server) allChats(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if user.Role != models.RoleAdmin {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, s.store.AllChats())
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "chatID"))
	if err != nil {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}

	n, found, allowed := s.store.MarkRead(id, user.ID, user.Role == models.RoleAdmin)
	if !found {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	if !allowed {
		http.Error(w, "not authorized to access this chat", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Marked " + strconv.Itoa(n) + " messages as read",
	})
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if user.Role != models.RoleAdmin {
		http.Error(w, "only admins can send replies", http.StatusForbidden)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "chatID"))
	if err != nil {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	msg, ok := s.store.AppendReply(id, user.ID, req.Content)
	if !ok {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
