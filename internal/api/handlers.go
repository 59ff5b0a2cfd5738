package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"quizroom/internal/broadcast"
	"quizroom/internal/gateway"
	"quizroom/pkg/types"
)

// Request bodies

type SendMessageRequest struct {
	Content   string `json:"content"`
	ReplyToID string `json:"replyToId,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type FlagMessageRequest struct {
	Reason string `json:"reason"`
}

type InstructorPresenceRequest struct {
	IsOnline bool   `json:"isOnline"`
	RoomID   string `json:"roomId,omitempty"`
}

// Response bodies

type MessagesResponse struct {
	Messages []*types.ChatMessage `json:"messages"`
}

type MessageResponse struct {
	Message *types.ChatMessage `json:"message"`
}

type RoomResponse struct {
	Room *types.ChatRoom `json:"room"`
}

type FindingsResponse struct {
	Findings []*types.Finding `json:"findings"`
}

type FindingResponse struct {
	Finding *types.Finding `json:"finding"`
}

// BroadcastResponse reports a dispatched broadcast; Ignored is set when the
// event did not apply, such as presence of a non-staff user
type BroadcastResponse struct {
	Result  *broadcast.Result `json:"result,omitempty"`
	Ignored bool              `json:"ignored,omitempty"`
}

// GET /api/rooms/{id}/messages?limit=&before=&includeDeleted=
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	query, err := parseMessageQuery(r)
	if err != nil {
		s.sendError(w, err)
		return
	}

	messages, err := s.deps.Gateway.ListMessages(r.Context(), caller, mux.Vars(r)["id"], query)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

// POST /api/rooms/{id}/messages
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	message, err := s.deps.Gateway.SendMessage(r.Context(), caller, gateway.SendRequest{
		RoomID:    mux.Vars(r)["id"],
		Content:   req.Content,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, MessageResponse{Message: message})
}

// PUT /api/messages/{id}
func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	message, err := s.deps.Gateway.EditMessage(r.Context(), caller, mux.Vars(r)["id"], req.Content)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// DELETE /api/messages/{id}
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	if err := s.deps.Gateway.DeleteMessage(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted"})
}

// POST /api/messages/{id}/flag
func (s *Server) flagMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var req FlagMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	message, err := s.deps.Gateway.FlagMessage(r.Context(), caller, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// GET /api/rooms/{id}
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	room, err := s.deps.Gateway.GetRoom(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RoomResponse{Room: room})
}

// PUT /api/rooms/{id}
func (s *Server) updateRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var update types.RoomUpdate
	if err := decodeJSON(r, &update); err != nil {
		s.sendError(w, err)
		return
	}

	room, err := s.deps.Gateway.UpdateRoom(r.Context(), caller, mux.Vars(r)["id"], &update)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RoomResponse{Room: room})
}

// DELETE /api/rooms/{id}
func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	if err := s.deps.Gateway.DeleteRoom(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Room deleted"})
}

// POST /api/monitor
func (s *Server) monitorContent(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var req gateway.MonitorRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	result, err := s.deps.Gateway.MonitorContent(r.Context(), caller, req)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// GET /api/monitor?roomId=&severity=&userId=&resolved=&limit=
func (s *Server) listFindings(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	filter, err := parseFindingFilter(r)
	if err != nil {
		s.sendError(w, err)
		return
	}

	findings, err := s.deps.Gateway.ListFindings(r.Context(), caller, filter)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FindingsResponse{Findings: findings})
}

// GET /api/monitor/report?roomId=&userId=
func (s *Server) integrityReport(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	report, err := s.deps.Gateway.Report(r.Context(), caller, q.Get("roomId"), q.Get("userId"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// PUT /api/monitor/{id}/resolve
func (s *Server) resolveFinding(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	finding, err := s.deps.Gateway.ResolveFinding(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FindingResponse{Finding: finding})
}

// POST /api/broadcasts/quiz-status; staff only, the caller is the sender
func (s *Server) broadcastQuizStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	if !caller.IsStaff() {
		s.sendError(w, gateway.ErrStaffOnly)
		return
	}

	var req broadcast.QuizStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}
	req.SentBy = caller.UserID

	result, err := s.deps.Dispatcher.BroadcastQuizStatus(r.Context(), req)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, BroadcastResponse{Result: result})
}

// POST /api/broadcasts/study-progress; students post only as themselves into their own groups
func (s *Server) broadcastStudyProgress(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var req broadcast.StudyProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}
	if req.UserID == "" || !caller.IsStaff() {
		req.UserID = caller.UserID
	}
	if err := s.deps.Gateway.AuthorizeGroupBroadcast(r.Context(), caller, req.StudyGroupID); err != nil {
		s.sendError(w, err)
		return
	}

	result, err := s.deps.Dispatcher.BroadcastStudyProgress(r.Context(), req)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.deps.Gateway.MonitorBroadcast(r.Context(), caller, req.Message, result.RoomIDs)
	s.writeJSON(w, http.StatusAccepted, BroadcastResponse{Result: result})
}

// POST /api/broadcasts/instructor-presence; announces the caller
func (s *Server) broadcastInstructorPresence(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var req InstructorPresenceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	result, err := s.deps.Dispatcher.BroadcastInstructorPresence(r.Context(), caller.UserID, req.IsOnline, req.RoomID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, BroadcastResponse{Result: result, Ignored: result == nil})
}

// POST /api/broadcasts/study-sessions/{id}; students need membership of the session's group
func (s *Server) broadcastStudySession(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var update broadcast.SessionUpdate
	if err := decodeJSON(r, &update); err != nil {
		s.sendError(w, err)
		return
	}
	if update.UserID == "" || !caller.IsStaff() {
		update.UserID = caller.UserID
	}

	sessionID := mux.Vars(r)["id"]
	if err := s.deps.Gateway.AuthorizeSessionBroadcast(r.Context(), caller, sessionID); err != nil {
		s.sendError(w, err)
		return
	}

	result, err := s.deps.Dispatcher.BroadcastStudySessionUpdate(r.Context(), sessionID, update)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if update.Message != "" {
		s.deps.Gateway.MonitorBroadcast(r.Context(), caller, update.Message, result.RoomIDs)
	}
	s.writeJSON(w, http.StatusAccepted, BroadcastResponse{Result: result})
}

// POST /api/scheduler/run; the cron secret or an ADMIN caller
func (s *Server) runScheduler(w http.ResponseWriter, r *http.Request) {
	if !s.hasCronSecret(r) {
		caller, ok := s.requireCaller(w, r)
		if !ok {
			return
		}
		if !caller.IsAdmin() {
			s.sendError(w, gateway.ErrAdminOnly)
			return
		}
	}

	result, err := s.deps.Scheduler.RunOnce(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func parseMessageQuery(r *http.Request) (gateway.MessageQuery, error) {
	q := r.URL.Query()
	var query gateway.MessageQuery

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query, fmt.Errorf("%w: limit=%q", ErrInvalidQuery, raw)
		}
		query.Limit = limit
	}
	if raw := q.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, fmt.Errorf("%w: before=%q", ErrInvalidQuery, raw)
		}
		query.Before = &before
	}
	if raw := q.Get("includeDeleted"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return query, fmt.Errorf("%w: includeDeleted=%q", ErrInvalidQuery, raw)
		}
		query.IncludeDeleted = include
	}
	return query, nil
}

func parseFindingFilter(r *http.Request) (types.FindingFilter, error) {
	q := r.URL.Query()
	filter := types.FindingFilter{
		RoomID:   q.Get("roomId"),
		UserID:   q.Get("userId"),
		Severity: types.Severity(q.Get("severity")),
	}

	if raw := q.Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: resolved=%q", ErrInvalidQuery, raw)
		}
		filter.Resolved = &resolved
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("%w: limit=%q", ErrInvalidQuery, raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}
