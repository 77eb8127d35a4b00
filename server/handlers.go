package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"

	"musicbox/cache"
	"musicbox/config"
	"musicbox/core/live"
	"musicbox/core/utils"
	"musicbox/logger"
	"musicbox/model"
	"musicbox/repository"
	"musicbox/storage"

	"github.com/google/uuid"
)

// Upload error messages returned in the "error" field.
const (
	msgNoMusicPart     = "Nenhum arquivo de música enviado"
	msgNameRequired    = "Nome da música é obrigatório"
	msgNoMusicSelected = "Nenhum arquivo de música selecionado"
)

// FileMirror receives a copy of every stored upload.
type FileMirror interface {
	PutFile(ctx context.Context, prefix, filePath string) error
}

// APIHandler 处理所有API请求
type APIHandler struct {
	trackRepo repository.TrackRepository
	listCache *cache.CatalogCache
	mirror    FileMirror
	hub       *live.Hub
	cfg       *config.Config
}

// NewAPIHandler 创建新的API处理器。listCache、mirror 和 hub 可以为 nil。
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	listCache *cache.CatalogCache,
	mirror FileMirror,
	hub *live.Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo: trackRepo,
		listCache: listCache,
		mirror:    mirror,
		hub:       hub,
		cfg:       cfg,
	}
}

func encodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := encodeJSON(v)
	if err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONBody(w, status, body)
}

func writeJSONBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// GetMusicHandler returns every track in the catalog as a JSON array.
// Cached bodies are keyed by catalog version, so a body built from an older
// snapshot is never served once a newer track exists.
func (h *APIHandler) GetMusicHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if body, ok, err := h.listCache.Get(ctx, h.trackRepo.Version()); err != nil {
		logger.Warn("catalog cache read failed", logger.ErrorField(err))
	} else if ok {
		writeJSONBody(w, http.StatusOK, body)
		return
	}

	tracks, version, err := h.trackRepo.Snapshot(ctx)
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Falha ao listar músicas")
		return
	}

	body, err := encodeJSON(tracks)
	if err != nil {
		logger.Error("failed to encode tracks", logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Falha ao listar músicas")
		return
	}

	if err := h.listCache.Set(ctx, version, body); err != nil {
		logger.Warn("catalog cache write failed", logger.ErrorField(err))
	}
	writeJSONBody(w, http.StatusOK, body)
}

// spooledFile is an uploaded file part already written to a temp file in
// its destination directory.
type spooledFile struct {
	filename string // client supplied name, may be empty
	path     string // temp file, empty when nothing was spooled
}

func (f *spooledFile) discard() {
	if f != nil && f.path != "" {
		os.Remove(f.path)
	}
}

// uploadForm is the content of an upload request.
type uploadForm struct {
	name  string
	music *spooledFile // nil when no music file part was sent
	cover *spooledFile // nil when no cover was selected
}

func (f *uploadForm) discard() {
	f.music.discard()
	f.cover.discard()
}

// formError carries the message shown to the client for a rejected upload.
type formError struct {
	msg string
	err error
}

func (e *formError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *formError) Unwrap() error { return e.err }

// isFilePart reports whether the part's Content-Disposition carries a
// filename parameter, empty or not. Parts without one are text fields.
func isFilePart(p *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func readValue(p *multipart.Part, budget *int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(p, *budget+1))
	if err != nil {
		return "", fmt.Errorf("failed to read field %s: %w", p.FormName(), err)
	}
	if int64(len(data)) > *budget {
		return "", fmt.Errorf("form values exceed %d bytes", *budget)
	}
	*budget -= int64(len(data))
	return string(data), nil
}

func spoolPart(p *multipart.Part, dir string) (*spooledFile, error) {
	f := &spooledFile{filename: p.FileName()}
	if f.filename == "" {
		return f, nil
	}
	path, _, err := utils.SpoolFile(dir, p)
	if err != nil {
		return nil, fmt.Errorf("failed to receive %s: %w", p.FormName(), err)
	}
	f.path = path
	return f, nil
}

// readUploadForm streams the multipart body. The first music and cover file
// parts are spooled into their destination directories; the first text
// field named "name" is the display name. Other parts are skipped.
func readUploadForm(r *http.Request, audioDir, coversDir string, maxValueBytes int64) (*uploadForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, &formError{msgNoMusicPart, model.ErrMissingFile}
		}
		return nil, fmt.Errorf("failed to read multipart form: %w", err)
	}

	form := &uploadForm{}
	hasName := false
	budget := maxValueBytes
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			form.discard()
			return nil, fmt.Errorf("failed to read multipart form: %w", err)
		}

		isFile := isFilePart(part)
		switch {
		case part.FormName() == "music" && isFile && form.music == nil:
			form.music, err = spoolPart(part, audioDir)
		case part.FormName() == "cover" && isFile && form.cover == nil:
			form.cover, err = spoolPart(part, coversDir)
		case part.FormName() == "name" && !isFile && !hasName:
			form.name, err = readValue(part, &budget)
			hasName = true
		}
		part.Close()
		if err != nil {
			form.discard()
			return nil, err
		}
	}
	return form, nil
}

// validateUploadForm checks, in order: music file part present, name
// non-empty, music filename non-empty.
func validateUploadForm(form *uploadForm) error {
	if form.music == nil {
		return &formError{msgNoMusicPart, model.ErrMissingFile}
	}
	if form.name == "" {
		return &formError{msgNameRequired, model.ErrMissingField}
	}
	if form.music.filename == "" {
		return &formError{msgNoMusicSelected, model.ErrMissingFile}
	}
	return nil
}

// UploadTrackHandler handles audio file uploads and metadata.
// Expected multipart form fields:
// - music: the audio file (required)
// - cover: cover art image (optional)
// - name: display name (required)
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	form, err := readUploadForm(r, h.cfg.AudioDir, h.cfg.CoversDir, h.cfg.MaxValueBytes)
	if err == nil {
		defer form.discard()
		err = validateUploadForm(form)
	}
	if err != nil {
		logger.Warn("upload rejected",
			logger.String("remoteAddr", r.RemoteAddr),
			logger.ErrorField(err))
		msg := "Falha ao processar o formulário"
		var fe *formError
		if errors.As(err, &fe) {
			msg = fe.msg
		}
		writeJSONError(w, http.StatusBadRequest, msg)
		return
	}

	id := uuid.NewString()

	musicFilename := utils.PrefixedFilename(id, form.music.filename)
	musicPath, err := utils.CommitFile(form.music.path, h.cfg.AudioDir, musicFilename)
	if err != nil {
		logger.Error("failed to store audio file", logger.String("id", id), logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Falha ao salvar o arquivo de música")
		return
	}
	form.music.path = ""

	var coverPath, capa string
	if form.cover != nil && form.cover.filename != "" {
		coverFilename := utils.PrefixedFilename(id, form.cover.filename)
		coverPath, err = utils.CommitFile(form.cover.path, h.cfg.CoversDir, coverFilename)
		if err != nil {
			logger.Error("failed to store cover file", logger.String("id", id), logger.ErrorField(err))
			writeJSONError(w, http.StatusInternalServerError, "Falha ao salvar a capa")
			return
		}
		form.cover.path = ""
		capa = config.CoverRoutePrefix + coverFilename
	}

	track := &model.Track{
		ID:     id,
		Nome:   form.name,
		Musica: config.AudioRoutePrefix + musicFilename,
		Capa:   capa,
	}

	// stored files stay on disk when the catalog cannot be persisted
	if err := h.trackRepo.Create(r.Context(), track); err != nil {
		logger.Error("failed to save catalog", logger.String("id", id), logger.ErrorField(err))
		writeJSONError(w, http.StatusInternalServerError, "Falha ao salvar os dados da música")
		return
	}

	logger.Info("track uploaded",
		logger.String("id", id),
		logger.String("nome", track.Nome),
		logger.String("musica", track.Musica),
		logger.Bool("hasCover", capa != ""))

	h.afterCreate(r.Context(), track, musicPath, coverPath)

	writeJSON(w, http.StatusCreated, track)
}

// afterCreate runs the optional integrations. Failures are only logged.
// Cached listings need no work here: the catalog version already moved on.
func (h *APIHandler) afterCreate(ctx context.Context, track *model.Track, musicPath, coverPath string) {
	if h.mirror != nil {
		if err := h.mirror.PutFile(ctx, storage.AudioPrefix, musicPath); err != nil {
			logger.Warn("audio mirror failed", logger.String("id", track.ID), logger.ErrorField(err))
		}
		if coverPath != "" {
			if err := h.mirror.PutFile(ctx, storage.CoverPrefix, coverPath); err != nil {
				logger.Warn("cover mirror failed", logger.String("id", track.ID), logger.ErrorField(err))
			}
		}
	}

	if h.hub != nil {
		h.hub.Publish(live.MsgTypeTrackCreated, track)
	}
}

// OnCatalogReload notifies live listeners after the catalog document was
// reloaded from disk.
func (h *APIHandler) OnCatalogReload() {
	if h.hub != nil {
		h.hub.Publish(live.MsgTypeCatalogReload, map[string]int{"tracks": h.trackRepo.Count()})
	}
}

// HealthHandler reports liveness and the catalog size.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"tracks": h.trackRepo.Count(),
	})
}
