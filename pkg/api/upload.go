package api

import (
	"net/http"
	"path"
	"strings"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/utils"
)

// allowedUploadTypes maps accepted MIME types to a coarse message type.
var allowedUploadTypes = map[string]string{
	"image/jpeg":      "image",
	"image/png":       "image",
	"image/gif":       "image",
	"image/webp":      "image",
	"video/mp4":       "video",
	"video/webm":      "video",
	"audio/mpeg":      "audio",
	"audio/ogg":       "audio",
	"audio/wav":       "audio",
	"application/pdf": "file",
	"application/zip": "file",
}

func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	ident, ok := caller(w, r)
	if !ok {
		return
	}
	if a.blobs == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(a.maxUpload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "file too large or malformed form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	// sniff the real content type rather than trusting the client header
	head := make([]byte, 512)
	n, _ := file.Read(head)
	contentType := http.DetectContentType(head[:n])
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	msgType, allowed := allowedUploadTypes[contentType]
	if !allowed {
		// DetectContentType cannot identify every container; fall back to
		// the declared type for the formats it reports as octet-stream
		declared := header.Header.Get("Content-Type")
		if t, ok := allowedUploadTypes[declared]; ok && contentType == "application/octet-stream" {
			contentType, msgType = declared, t
		} else {
			utils.JSONError(w, http.StatusBadRequest, "unsupported file type: "+contentType)
			return
		}
	}
	if _, err := file.Seek(0, 0); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	key := "uploads/" + utils.GenID() + strings.ToLower(path.Ext(header.Filename))
	url, err := a.blobs.Put(r.Context(), key, contentType, file)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	logger.Info("upload_complete", "user", ident.Subject, "key", key, "size", header.Size)
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{
		"url":  url,
		"type": msgType,
	})
}
