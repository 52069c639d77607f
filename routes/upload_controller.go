package routes

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mkoval/formgate/app"
	"github.com/mkoval/formgate/gate"
	"github.com/mkoval/formgate/httpx"
	"github.com/mkoval/formgate/log"
	"github.com/mkoval/formgate/metrics"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

func PublicUploadImage(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := gate.ClientAddress(r)

		if err := app.Gate.CheckUploadRate(ip); err != nil {
			metrics.GateRejectionsTotal.WithLabelValues("rate_limit").Inc()
			httpx.LogGateError(w, "gate.upload_rate", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, app.UploadMaxBytes)
		if err := r.ParseMultipartForm(app.UploadMaxBytes); err != nil {
			httpx.LogStatusMsg(w, http.StatusRequestEntityTooLarge, log.DebugLevel, "upload.parse_form",
				"file too large (max %d MiB)", app.UploadMaxBytes>>20)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "upload.no_file")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			httpx.LogInternalError(w, "upload.read", err)
			return
		}

		// trust the bytes, not the declared Content-Type
		mime := mimetype.Detect(content)
		if !allowedImageTypes[mime.String()] {
			metrics.UploadsTotal.WithLabelValues("rejected").Inc()
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "upload.mime",
				"unsupported file type: %s", mime.String())
			return
		}

		storedName := generateStoredName(mime.Extension())
		if err := os.MkdirAll(app.UploadDir, 0755); err != nil {
			httpx.LogInternalError(w, "upload.mkdir", err)
			return
		}

		path := filepath.Join(app.UploadDir, storedName)
		if err := os.WriteFile(path, content, 0644); err != nil {
			httpx.LogInternalError(w, "upload.write", err)
			return
		}

		_, err = app.ExecContext(r.Context(), `
			INSERT INTO uploaded_file (filename, stored_name, file_path, file_size, mime_type)
			VALUES (?, ?, ?, ?, ?)`,
			header.Filename,
			storedName,
			path,
			int64(len(content)),
			mime.String(),
		)
		if err != nil {
			os.Remove(path)
			httpx.LogInternalError(w, "db.insert_uploaded_file", err)
			return
		}

		app.Gate.RecordUpload(ip)
		metrics.UploadsTotal.WithLabelValues("accepted").Inc()

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"filename":    header.Filename,
			"stored_name": storedName,
			"url":         "/uploads/" + storedName,
			"size":        len(content),
			"mime_type":   mime.String(),
		})
	}
}

// generateStoredName builds a collision-free upload name like
// 20240131_a1b2c3d4e5f60718.jpg.
func generateStoredName(ext string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	return time.Now().Format("20060102") + "_" + id + ext
}
