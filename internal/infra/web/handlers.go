package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/infra/logging"
)

type userDTO struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username,omitempty"`
	FirstName     string    `json:"first_name,omitempty"`
	Gender        string    `json:"gender"`
	CurrentChatID string    `json:"current_chat_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActiveAt  time.Time `json:"last_active_at"`
}

type chatDTO struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Scenario        string    `json:"scenario,omitempty"`
	Empathy         int       `json:"empathy"`
	EmpathyOverride *int      `json:"empathy_override,omitempty"`
	MessageCount    int64     `json:"message_count"`
	Summary         string    `json:"summary,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type messageDTO struct {
	ID      string `json:"id"`
	Seq     int64  `json:"seq"`
	Role    string `json:"role"`
	Text    string `json:"text"`
	Ignored bool   `json:"ignored"`

	// classification snapshot, user messages only
	Emotion   string `json:"emotion,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
	Tone      string `json:"tone,omitempty"`
	Category  string `json:"category,omitempty"`
	Situation string `json:"situation,omitempty"`

	EmpathyLevel int       `json:"empathy_level"` // in effect when the message was stored
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	u, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.respondUCError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, userDTO{
		ID:            u.ID,
		Username:      u.Username,
		FirstName:     u.FirstName,
		Gender:        string(u.Gender),
		CurrentChatID: u.CurrentChatID,
		CreatedAt:     u.CreatedAt,
		LastActiveAt:  u.LastActiveAt,
	})
}

func (s *Server) listUserChats(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	chats, err := s.chats.ListChats(r.Context(), id)
	if err != nil {
		s.respondUCError(w, r, err)
		return
	}
	out := make([]chatDTO, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatDTO{
			ID:              c.ID,
			Title:           c.Title,
			Scenario:        c.Scenario,
			Empathy:         c.Empathy,
			EmpathyOverride: c.EmpathyOverride,
			MessageCount:    c.MessageCount,
			Summary:         c.Summary,
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": out})
}

// listChatMessages returns the log in sequence order; ignored messages are
// included only with include_ignored=true.
func (s *Server) listChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	includeIgnored, _ := strconv.ParseBool(r.URL.Query().Get("include_ignored"))
	msgs, err := s.chats.AuditMessages(r.Context(), chatID, includeIgnored)
	if err != nil {
		s.respondUCError(w, r, err)
		return
	}
	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		dto := messageDTO{
			ID:           m.ID,
			Seq:          m.Seq,
			Role:         string(m.Role),
			Text:         m.Text,
			Ignored:      m.Ignored,
			EmpathyLevel: m.Snapshot.Empathy,
			CreatedAt:    m.CreatedAt,
		}
		if m.FromUser() {
			snap := m.Snapshot
			dto.Emotion = string(snap.Emotion)
			dto.Intent = string(snap.Intent)
			dto.Urgency = string(snap.Urgency)
			dto.Tone = string(snap.Tone)
			dto.Category = string(snap.Category)
			dto.Situation = snap.Situation
		}
		out = append(out, dto)
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": out})
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func (s *Server) respondUCError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("admin request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
