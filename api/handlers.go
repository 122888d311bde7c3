package api

import (
	"net/http"
	"strconv"

	"github.com/cyverse-de/helpdesk-notifier/model"
)

type notifyRequest struct {
	Kind       model.EventKind   `json:"kind"`
	Recipient  model.Actor       `json:"recipient"`
	Payload    model.Payload     `json:"payload"`
	Attachment *model.Attachment `json:"attachment"`
}

func (req notifyRequest) event() model.Event {
	payload := req.Payload
	if payload == nil {
		payload = model.Payload{}
	}
	return model.Event{Kind: req.Kind, Recipient: req.Recipient, Payload: payload, Attachment: req.Attachment}
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	event := req.event()
	if err := event.Recipient.Validate(); err != nil {
		writeError(w, r, badRequest("%s", err))
		return
	}
	if err := s.Notifier.Notify(r.Context(), event); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleNotifyStaff(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	count, err := s.Notifier.NotifyStaff(r.Context(), req.event())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"recipients": count})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, err := pathActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	opts := model.ListOptions{}
	if unread := r.URL.Query().Get("unread"); unread != "" {
		if opts.UnreadOnly, err = strconv.ParseBool(unread); err != nil {
			writeError(w, r, badRequest("invalid unread: %q", unread))
			return
		}
	}
	if opts.Limit, err = queryUint(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if opts.Offset, err = queryUint(r, "offset"); err != nil {
		writeError(w, r, err)
		return
	}

	notifications, err := s.Feed.List(r.Context(), actor, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, err := pathActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	count, err := s.Feed.UnreadCount(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, err := pathActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "notificationID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err = s.Feed.MarkRead(r.Context(), id, actor); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, err := pathActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	count, err := s.Feed.MarkAllRead(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"updated": count})
}

func (s *Server) handleEmailState(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	state, err := s.Email.State(r.Context(), clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err = decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err = s.Email.RequestVerification(r.Context(), clientID, req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err = decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err = s.Email.Verify(r.Context(), clientID, req.Code); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnbindEmail(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err = s.Email.Unbind(r.Context(), clientID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Enabled     *bool             `json:"enabled"`
		Preferences model.Preferences `json:"preferences"`
	}
	if err = decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, r, badRequest("enabled is required"))
		return
	}

	if err = s.Email.SetPreferences(r.Context(), clientID, req.Preferences, *req.Enabled); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTelegramStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := pathActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, err := s.Linker.Status(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	actor, err := pathActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	link, err := s.Linker.IssueToken(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	actor, err := pathActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err = s.Linker.Disconnect(r.Context(), actor); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIsUnread(w http.ResponseWriter, r *http.Request) {
	ticketID, err := pathID(r, "ticketID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	viewer, err := queryViewer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	unread, err := s.ReadState.IsUnread(r.Context(), ticketID, viewer)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"unread": unread})
}

func (s *Server) handleMarkViewed(w http.ResponseWriter, r *http.Request) {
	ticketID, err := pathID(r, "ticketID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	viewer, err := queryViewer(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err = s.ReadState.MarkViewed(r.Context(), ticketID, viewer); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOrderTickets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Viewer  model.Actor       `json:"viewer"`
		Tickets []model.TicketRow `json:"tickets"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Viewer.Validate(); err != nil {
		writeError(w, r, badRequest("%s", err))
		return
	}

	rows, err := s.ReadState.Order(r.Context(), req.Tickets, req.Viewer)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": rows})
}
