package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Gammanik/replistore/internal/coordinator"
	"github.com/Gammanik/replistore/internal/logging"
	"github.com/Gammanik/replistore/internal/metastore"
	"github.com/Gammanik/replistore/internal/metrics"
	"github.com/Gammanik/replistore/internal/protocol"
	"github.com/Gammanik/replistore/internal/registry"
	"github.com/Gammanik/replistore/internal/storage"
)

// FileHandler обрабатывает HTTP запросы к кластеру узлов
type FileHandler struct {
	Coordinator *coordinator.Coordinator
	Registry    *registry.Registry
	Store       metastore.MetaStore // может быть nil
	Logger      *zap.Logger
}

// NodeResult итог операции на одном узле
type NodeResult struct {
	Node    int    `json:"node"`
	OK      bool   `json:"ok"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// NodeInfo состояние узла для отображения
type NodeInfo struct {
	registry.Status
	Alive bool `json:"alive"`
}

// Router регистрирует обработчики
func (h *FileHandler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/files", h.List).Methods(http.MethodGet)
	r.HandleFunc("/files/{name}", h.Upload).Methods(http.MethodPut)
	r.HandleFunc("/files/{name}", h.Download).Methods(http.MethodGet)
	r.HandleFunc("/files/{name}", h.Delete).Methods(http.MethodDelete)

	r.HandleFunc("/nodes", h.Nodes).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{id:[0-9]+}/files", h.NodeFiles).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{id:[0-9]+}/files/{name}", h.NodeDownload).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{id:[0-9]+}/start", h.StartNode).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{id:[0-9]+}/stop", h.StopNode).Methods(http.MethodPost)

	r.HandleFunc("/history/{name}", h.History).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.Use(logging.Middleware(h.log()))
	return r
}

func (h *FileHandler) log() *zap.Logger {
	return logging.OrNop(h.Logger).Named("gateway")
}

// Upload раздает файл на все узлы
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	// Читаем не больше, чем влезет в один кадр
	content, err := io.ReadAll(io.LimitReader(r.Body, protocol.MaxMessageSize+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(content) > protocol.MaxMessageSize {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	results := h.Coordinator.UploadToAll(r.Context(), name, content)

	status := http.StatusCreated
	if len(results.Succeeded()) == 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]interface{}{
		"filename": name,
		"size":     len(content),
		"nodes":    nodeResults(results),
	})
}

// List отдает объединенный список файлов и живость узлов
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	listing := h.Coordinator.ListUnion(r.Context())

	alive := make(map[string]bool, len(listing.Alive))
	for id, ok := range listing.Alive {
		alive[strconv.Itoa(id)] = ok
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"files": listing.Files,
		"alive": alive,
	})
}

// Download отдает файл с первого узла, у которого он есть
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	data, nodeID, err := h.Coordinator.DownloadFromAny(r.Context(), name)
	if err != nil {
		http.Error(w, "file unavailable", http.StatusNotFound)
		return
	}
	writeContent(w, name, nodeID, data)
}

// Delete удаляет файл со всех узлов или с одного (?node=ID)
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if v := r.URL.Query().Get("node"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid node", http.StatusBadRequest)
			return
		}

		err = h.Coordinator.DeleteFromOne(r.Context(), id, name)
		if errors.Is(err, coordinator.ErrUnknownNode) {
			http.Error(w, "unknown node", http.StatusNotFound)
			return
		}
		status := http.StatusOK
		if err != nil {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]interface{}{
			"filename": name,
			"nodes":    nodeResults(coordinator.Results{id: err}),
		})
		return
	}

	results := h.Coordinator.DeleteFromAll(r.Context(), name)
	status := http.StatusOK
	if len(results.Succeeded()) == 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]interface{}{
		"filename": name,
		"nodes":    nodeResults(results),
	})
}

// Nodes отдает состояние узлов
func (h *FileHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	listing := h.Coordinator.ListUnion(r.Context())

	statuses := h.Registry.Statuses()
	infos := make([]NodeInfo, 0, len(statuses))
	for _, st := range statuses {
		infos = append(infos, NodeInfo{Status: st, Alive: listing.Alive[st.ID]})
	}
	writeJSON(w, http.StatusOK, infos)
}

// NodeFiles отдает список файлов одного узла
func (h *FileHandler) NodeFiles(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	names, err := h.Coordinator.ListNode(r.Context(), id)
	switch {
	case errors.Is(err, coordinator.ErrUnknownNode):
		http.Error(w, "unknown node", http.StatusNotFound)
	case err != nil:
		http.Error(w, "node offline", http.StatusServiceUnavailable)
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"node": id, "files": names})
	}
}

// NodeDownload скачивает файл с конкретного узла
func (h *FileHandler) NodeDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, _ := strconv.Atoi(vars["id"])
	name := vars["name"]

	data, err := h.Coordinator.DownloadFrom(r.Context(), id, name)
	switch {
	case errors.Is(err, coordinator.ErrUnknownNode), errors.Is(err, coordinator.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrUnreachable):
		http.Error(w, "node offline", http.StatusServiceUnavailable)
	case err != nil:
		http.Error(w, "download failed", http.StatusBadGateway)
	default:
		writeContent(w, name, id, data)
	}
}

// StartNode запускает узел
func (h *FileHandler) StartNode(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	err := h.Registry.Start(id)
	switch {
	case errors.Is(err, registry.ErrUnknownNode):
		http.Error(w, "unknown node", http.StatusNotFound)
	case err != nil:
		h.log().Error("Failed to start node", zap.Int("node_id", id), zap.Error(err))
		http.Error(w, "failed to start node", http.StatusInternalServerError)
	default:
		h.writeNode(w, id)
	}
}

// StopNode останавливает узел
func (h *FileHandler) StopNode(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	if err := h.Registry.Stop(id); err != nil {
		http.Error(w, "unknown node", http.StatusNotFound)
		return
	}
	h.writeNode(w, id)
}

// History отдает журнал операций по файлу
func (h *FileHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	records, err := h.Store.History(mux.Vars(r)["name"])
	if err != nil {
		h.log().Error("Failed to read history", zap.Error(err))
		http.Error(w, "failed to read history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *FileHandler) writeNode(w http.ResponseWriter, id int) {
	for _, st := range h.Registry.Statuses() {
		if st.ID == id {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	http.Error(w, "unknown node", http.StatusNotFound)
}

func nodeResults(results coordinator.Results) []NodeResult {
	ids := make([]int, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]NodeResult, 0, len(ids))
	for _, id := range ids {
		err := results[id]
		res := NodeResult{Node: id, OK: err == nil, Outcome: coordinator.Outcome(err)}
		if err != nil {
			res.Error = err.Error()
		}
		out = append(out, res)
	}
	return out
}

func writeContent(w http.ResponseWriter, name string, nodeID int, data []byte) {
	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Node-ID", strconv.Itoa(nodeID))
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
