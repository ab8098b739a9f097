// Package devserver is a self-contained stand-in for the Todo backend,
// used by `todochat serve` so the client can be exercised without the real
// service. It implements the sign-in, task, and chat streaming endpoints
// with an in-memory store and a keyword-matching stand-in for the agent.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/todochat/internal/api"
	"github.com/mark3labs/todochat/internal/logger"
	"github.com/mark3labs/todochat/internal/stream"
)

const devToken = "dev-token"

// Server is the in-memory development backend.
type Server struct {
	mu      sync.Mutex
	nextID  int64
	nextMsg int64
	convID  int64
	callSeq int64
	tasks   map[int64]*api.Task

	// TokenDelay paces token frames so streaming is visible. Zero means
	// no pacing, which tests rely on.
	TokenDelay time.Duration
}

// New creates a development backend with a few seed tasks.
func New() *Server {
	s := &Server{nextID: 1, nextMsg: 1, convID: 1, tasks: make(map[int64]*api.Task)}
	s.addTask("Try todochat", "Talk to the agent on the left")
	return s
}

// Handler returns the HTTP mux for the backend.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/sign-in/email", s.handleSignIn)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTask)
	mux.HandleFunc("/api/chat/stream", s.handleChat)
	return mux
}

func (s *Server) addTask(title, description string) *api.Task {
	task := &api.Task{
		ID:          s.nextID,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.tasks[task.ID] = task
	s.nextID++
	return task
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// Any non-empty credentials work against the dev backend.
	if body.Password == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token": devToken,
		"user":  map[string]string{"id": "dev", "email": body.Email},
	})
}

func (s *Server) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+devToken
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		out := make([]*api.Task, 0, len(s.tasks))
		for _, task := range s.tasks {
			out = append(out, task)
		}
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		task := s.addTask(body.Title, body.Description)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(task)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/tasks/"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"task not found"}`)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var update api.TaskUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if update.Title != nil {
			task.Title = *update.Title
		}
		if update.Description != nil {
			task.Description = *update.Description
		}
		if update.Completed != nil {
			task.Completed = *update.Completed
		}
		task.UpdatedAt = time.Now()
		_ = json.NewEncoder(w).Encode(task)
	case http.MethodDelete:
		delete(s.tasks, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "missing or invalid token")
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req stream.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	out, err := newSSEWriter(w)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	logger.Debug("Dev chat turn: %q", req.Message)
	s.runTurn(out, req)
}

// runTurn scripts a full event lifecycle for one message. The keyword
// matcher plays the role of the agent: add, complete, delete, and list
// intents run against the task store through tool events.
func (s *Server) runTurn(out *sseWriter, req stream.Request) {
	convID := s.conversationID(req)

	out.send(stream.EventAgentStart, map[string]string{"agent_name": "todo", "message": "Agent started"})
	out.send(stream.EventThinking, map[string]string{"content": "Reading your message...", "agent": "todo"})
	out.send(stream.EventLLMStart, map[string]string{"agent_name": "todo", "model": "dev-echo-1"})

	reply := s.act(out, req.Message)

	out.send(stream.EventLLMEnd, map[string]string{"agent_name": "todo"})
	for _, chunk := range tokenize(reply) {
		if s.TokenDelay > 0 {
			time.Sleep(s.TokenDelay)
		}
		out.send(stream.EventToken, map[string]string{"content": chunk})
	}
	out.send(stream.EventAgentEnd, map[string]string{"agent_name": "todo", "message": "Agent finished"})
	out.send(stream.EventDone, map[string]int64{"conversation_id": convID, "message_id": s.nextMessageID()})
}

func (s *Server) conversationID(req stream.Request) int64 {
	if req.ConversationID != nil {
		return *req.ConversationID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.convID
	s.convID++
	return id
}

func (s *Server) nextMessageID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextMsg
	s.nextMsg++
	return id
}

// act interprets the message, emits the tool event sequence for any task
// mutation, and returns the assistant's reply text.
func (s *Server) act(out *sseWriter, message string) string {
	lower := strings.ToLower(strings.TrimSpace(message))

	switch {
	case strings.HasPrefix(lower, "add "):
		title := strings.TrimSpace(message[4:])
		s.mu.Lock()
		task := s.addTask(title, "")
		s.mu.Unlock()
		s.emitToolCall(out, "add_task", map[string]any{"title": title}, task)
		return fmt.Sprintf("Added %q to your list.", title)

	case strings.HasPrefix(lower, "complete "), strings.HasPrefix(lower, "done "):
		id, ok := trailingID(lower)
		if !ok {
			return "Tell me which task number to complete, like \"complete 2\"."
		}
		s.mu.Lock()
		task, exists := s.tasks[id]
		if exists {
			task.Completed = true
			task.UpdatedAt = time.Now()
		}
		s.mu.Unlock()
		if !exists {
			s.emitToolError(out, "complete_task", map[string]any{"id": id}, "task not found")
			return fmt.Sprintf("I couldn't find task %d.", id)
		}
		s.emitToolCall(out, "complete_task", map[string]any{"id": id}, task)
		return fmt.Sprintf("Marked %q as done.", task.Title)

	case strings.HasPrefix(lower, "delete "), strings.HasPrefix(lower, "remove "):
		id, ok := trailingID(lower)
		if !ok {
			return "Tell me which task number to delete, like \"delete 2\"."
		}
		s.mu.Lock()
		task, exists := s.tasks[id]
		if exists {
			delete(s.tasks, id)
		}
		s.mu.Unlock()
		if !exists {
			s.emitToolError(out, "delete_task", map[string]any{"id": id}, "task not found")
			return fmt.Sprintf("I couldn't find task %d.", id)
		}
		s.emitToolCall(out, "delete_task", map[string]any{"id": id}, map[string]bool{"deleted": true})
		return fmt.Sprintf("Deleted %q.", task.Title)

	case strings.Contains(lower, "list"), strings.Contains(lower, "show"):
		s.mu.Lock()
		tasks := make([]*api.Task, 0, len(s.tasks))
		for _, task := range s.tasks {
			tasks = append(tasks, task)
		}
		s.mu.Unlock()
		s.emitToolCall(out, "list_tasks", map[string]any{}, map[string]any{"tasks": tasks})
		if len(tasks) == 0 {
			return "Your list is empty."
		}
		var b strings.Builder
		b.WriteString("Here's your list:\n")
		for _, task := range tasks {
			mark := " "
			if task.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %d. %s\n", mark, task.ID, task.Title)
		}
		return b.String()

	default:
		return "I can add, complete, delete, and list tasks. Try \"add buy milk\"."
	}
}

// emitToolCall plays out the verbose lifecycle for one successful tool
// invocation.
func (s *Server) emitToolCall(out *sseWriter, tool string, args map[string]any, result any) {
	callID := s.newCallID()
	out.send(stream.EventMCPRequest, map[string]string{"tool_name": tool, "call_id": callID, "agent_name": "todo"})
	out.send(stream.EventToolCall, map[string]any{"tool": tool, "args": args, "call_id": callID})
	out.send(stream.EventMCPResponse, map[string]string{"tool_name": tool, "call_id": callID, "agent_name": "todo"})
	out.send(stream.EventToolResult, map[string]any{"call_id": callID, "output": result})
}

func (s *Server) emitToolError(out *sseWriter, tool string, args map[string]any, message string) {
	callID := s.newCallID()
	out.send(stream.EventMCPRequest, map[string]string{"tool_name": tool, "call_id": callID, "agent_name": "todo"})
	out.send(stream.EventToolCall, map[string]any{"tool": tool, "args": args, "call_id": callID})
	out.send(stream.EventToolResult, map[string]any{"call_id": callID, "output": map[string]string{"error": message}})
}

func (s *Server) newCallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callSeq++
	return fmt.Sprintf("call_%d", s.callSeq)
}

// trailingID parses the task number at the end of a command.
func trailingID(message string) (int64, bool) {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	return id, err == nil
}

// tokenize splits the reply into word chunks so the client sees real
// incremental streaming.
func tokenize(text string) []string {
	words := strings.SplitAfter(text, " ")
	chunks := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			chunks = append(chunks, w)
		}
	}
	return chunks
}
