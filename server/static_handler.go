package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"musicbox/config"
	"musicbox/core/utils"
	"musicbox/logger"

	"github.com/gorilla/mux"
)

// StaticHandler serves stored files and the two HTML pages from disk.
type StaticHandler struct {
	cfg *config.Config
}

// NewStaticHandler 创建 StaticHandler 实例
func NewStaticHandler(cfg *config.Config) *StaticHandler {
	return &StaticHandler{cfg: cfg}
}

// IndexHandler serves the landing page.
func (h *StaticHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	serveFileIn(w, r, h.cfg.TemplatesDir, "index.html")
}

// UploadPageHandler serves the upload form.
func (h *StaticHandler) UploadPageHandler(w http.ResponseWriter, r *http.Request) {
	serveFileIn(w, r, h.cfg.TemplatesDir, "upload.html")
}

// AudioHandler streams /static/audio_files/{filename} from the audio
// directory. Any file present there is served, catalogued or not.
func (h *StaticHandler) AudioHandler(w http.ResponseWriter, r *http.Request) {
	serveFileIn(w, r, h.cfg.AudioDir, mux.Vars(r)["filename"])
}

// CoverHandler serves /static/assets/{filename} from the covers directory.
func (h *StaticHandler) CoverHandler(w http.ResponseWriter, r *http.Request) {
	serveFileIn(w, r, h.cfg.CoversDir, mux.Vars(r)["filename"])
}

// ServeHTTP serves anything else below /static/ from the static root.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveFileIn(w, r, h.cfg.StaticDir, strings.TrimPrefix(r.URL.Path, "/static/"))
}

// audioContentTypes covers formats missing from some mime tables.
var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".weba": "audio/webm",
}

// serveFileIn answers 404 for names escaping dir, missing files and
// directories. Content type comes from the extension; Range is supported.
func serveFileIn(w http.ResponseWriter, r *http.Request, dir, name string) {
	fullPath, ok := utils.ResolveInDir(dir, name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to open static file", logger.String("path", fullPath), logger.ErrorField(err))
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if ct, ok := audioContentTypes[strings.ToLower(filepath.Ext(fullPath))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, filepath.Base(fullPath), info.ModTime(), f)
}
