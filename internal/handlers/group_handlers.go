package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chat-server/internal/chat"
	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// GroupHandlers serves the non-realtime group and user directory endpoints.
type GroupHandlers struct {
	db     database.Database
	groups *chat.GroupManager
}

func NewGroupHandlers(db database.Database, groups *chat.GroupManager) *GroupHandlers {
	return &GroupHandlers{db: db, groups: groups}
}

func (h *GroupHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		logger.Error("Error listing users: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]models.Member, 0, len(users))
	for _, user := range users {
		out = append(out, models.Member{ID: user.ID, Username: user.Username})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *GroupHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.db.ListGroups(r.Context())
	if err != nil {
		logger.Error("Error listing groups: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]string, 0, len(groups))
	for _, group := range groups {
		out = append(out, map[string]string{"group_name": group.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *GroupHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.GroupName == "" || req.AdminUsername == "" {
		http.Error(w, "group_name and admin_username are required", http.StatusBadRequest)
		return
	}

	if _, err := h.db.GetGroupByName(r.Context(), req.GroupName); err == nil {
		http.Error(w, "Group's name already exists", http.StatusBadRequest)
		return
	}

	admin, err := h.db.GetUserByUsername(r.Context(), req.AdminUsername)
	if err != nil {
		http.Error(w, "User does not exist", http.StatusBadRequest)
		return
	}

	group, cerr := h.groups.GetOrCreateGroup(r.Context(), admin.ID, req.GroupName)
	if cerr != nil {
		http.Error(w, cerr.Message, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Group is successfully created",
		"group_name": group.Name,
		"admin_user": admin.Username,
	})
}

// GetMembers lists a group's members, admin included.
func (h *GroupHandlers) GetMembers(w http.ResponseWriter, r *http.Request, groupName string) {
	group, err := h.db.GetGroupByName(r.Context(), groupName)
	if err != nil {
		http.Error(w, "Group not found", http.StatusNotFound)
		return
	}

	members, err := h.db.ListGroupMembers(r.Context(), group.ID)
	if err != nil {
		logger.Error("Error listing members: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	admin, err := h.db.GetUserByID(r.Context(), group.AdminID)
	if err == nil {
		members = append(members, &models.Member{ID: admin.ID, Username: admin.Username})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group_name": group.Name,
		"members":    members,
	})
}

// CheckAdmin reports whether the named user administers the named group.
func (h *GroupHandlers) CheckAdmin(w http.ResponseWriter, r *http.Request, groupName, username string) {
	group, err := h.db.GetGroupByName(r.Context(), groupName)
	if err != nil {
		http.Error(w, "Group not found", http.StatusNotFound)
		return
	}
	user, err := h.db.GetUserByUsername(r.Context(), username)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"admin": user.ID == group.AdminID})
}

// DeleteGroup deletes a group on behalf of its admin, cascading messages and
// memberships.
func (h *GroupHandlers) DeleteGroup(w http.ResponseWriter, r *http.Request, groupName, adminName string) {
	group, err := h.db.GetGroupByName(r.Context(), groupName)
	if err != nil {
		http.Error(w, "Group or Admin not found", http.StatusNotFound)
		return
	}
	admin, err := h.db.GetUserByUsername(r.Context(), adminName)
	if err != nil {
		http.Error(w, "Group or Admin not found", http.StatusNotFound)
		return
	}

	if cerr := h.groups.DeleteGroup(r.Context(), group.ID, admin.ID); cerr != nil {
		switch cerr.Kind {
		case chat.KindUnauthorized:
			http.Error(w, "You are not an admin", http.StatusForbidden)
		case chat.KindNotFound:
			http.Error(w, "Group or Admin not found", http.StatusNotFound)
		default:
			if errors.Is(cerr.Unwrap(), database.ErrNotFound) {
				http.Error(w, "Group or Admin not found", http.StatusNotFound)
				return
			}
			logger.Error("Error deleting group: %v", cerr.Unwrap())
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Group deleted successfully"})
}
