package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"aquatrace/core/auth"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

type MasterHandler struct {
	master store.MasterStore
	audits store.AuditStore
	logger *utils.Logger
}

func NewMasterHandler(master store.MasterStore, audits store.AuditStore, logger *utils.Logger) *MasterHandler {
	return &MasterHandler{master: master, audits: audits, logger: logger}
}

func (h *MasterHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.master.ListCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "master.listFailed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MasterHandler) ListSubCategories(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := parseID(urlParam(r, "id"))
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	items, err := h.master.ListSubCategories(r.Context(), categoryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "master.listFailed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MasterHandler) ListUrgencies(w http.ResponseWriter, r *http.Request) {
	items, err := h.master.ListUrgencies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "master.listFailed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MasterHandler) ListContactTypes(w http.ResponseWriter, r *http.Request) {
	items, err := h.master.ListContactTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "master.listFailed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MasterHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	h.addItem(w, r, "category", func(name string) (int64, error) {
		return h.master.AddCategory(r.Context(), name)
	})
}

func (h *MasterHandler) AddUrgency(w http.ResponseWriter, r *http.Request) {
	h.addItem(w, r, "urgency", func(name string) (int64, error) {
		return h.master.AddUrgency(r.Context(), name)
	})
}

func (h *MasterHandler) AddContactType(w http.ResponseWriter, r *http.Request) {
	h.addItem(w, r, "contact_type", func(name string) (int64, error) {
		return h.master.AddContactType(r.Context(), name)
	})
}

func (h *MasterHandler) AddSubCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := parseID(urlParam(r, "id"))
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	h.addItem(w, r, "subcategory", func(name string) (int64, error) {
		return h.master.AddSubCategory(r.Context(), categoryID, name)
	})
}

func (h *MasterHandler) addItem(w http.ResponseWriter, r *http.Request, kind string, add func(string) (int64, error)) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id, err := add(in.Name)
	if err != nil {
		writeError(w, http.StatusConflict, "master.duplicate")
		return
	}
	actor := ""
	if sess := auth.SessionFrom(r.Context()); sess != nil {
		actor = sess.Username
	}
	h.audits.Log(r.Context(), actor, "master.add."+kind, in.Name)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": strings.TrimSpace(in.Name)})
}
