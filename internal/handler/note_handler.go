package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"collabnotes-server/internal/domain"
	"collabnotes-server/internal/service"
	"collabnotes-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// RoomSizer reports how many live connections are in a note's room.
type RoomSizer interface {
	RoomSize(ctx context.Context, noteID string) (int, error)
}

type NoteHandler struct {
	service  *service.NoteService
	rooms    RoomSizer
	validate *validator.Validate
}

func NewNoteHandler(service *service.NoteService, rooms RoomSizer) *NoteHandler {
	return &NoteHandler{
		service:  service,
		rooms:    rooms,
		validate: validator.New(),
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Create(r.Context(), &req)
	if err != nil {
		slog.Error("create note failed", "error", err)
		response.InternalError(w, "Error creating the note")
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	query := domain.ListNotesQuery{Limit: domain.DefaultListLimit}

	var err error
	if v := r.URL.Query().Get("limit"); v != "" {
		if query.Limit, err = strconv.Atoi(v); err != nil {
			response.BadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if query.Offset, err = strconv.Atoi(v); err != nil {
			response.BadRequest(w, "offset must be an integer")
			return
		}
	}

	if err := h.validate.Struct(query); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	page, err := h.service.List(r.Context(), query)
	if err != nil {
		slog.Error("list notes failed", "error", err)
		response.InternalError(w, "Error fetching notes")
		return
	}

	response.Success(w, page)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	note, err := h.service.GetByID(r.Context(), noteID)
	if err != nil {
		h.writeError(w, err, "Error fetching the note")
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	var req domain.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Update(r.Context(), noteID, &req)
	if err != nil {
		h.writeError(w, err, "Error updating the note")
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	if err := h.service.Delete(r.Context(), noteID); err != nil {
		h.writeError(w, err, "Error deleting the note")
		return
	}

	response.NoContent(w)
}

// Editors reports the live room size for a note. It does not check that the
// note exists; rooms are independent of stored notes.
func (h *NoteHandler) Editors(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	size, err := h.rooms.RoomSize(r.Context(), noteID)
	if err != nil {
		slog.Warn("room size unavailable", "noteId", noteID, "error", err)
		response.ServiceUnavailable(w, "Realtime relay unavailable")
		return
	}

	response.Success(w, &domain.NoteEditorsResponse{NoteID: noteID, Editors: size})
}

func (h *NoteHandler) writeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, service.ErrNoteNotFound) {
		response.NotFound(w, "Note not found")
		return
	}
	slog.Error(msg, "error", err)
	response.InternalError(w, msg)
}
