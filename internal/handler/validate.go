package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/pipeline"
	"github.com/faucetdb/schemaguard/internal/server/middleware"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to disk.
const multipartMemory = 8 << 20

// ValidateHandler runs uploaded files through the validation pipeline.
type ValidateHandler struct {
	deps      pipeline.Deps
	maxUpload int64
	logger    *zap.SugaredLogger
}

// NewValidateHandler creates a ValidateHandler. Uploads larger than
// maxUpload bytes are rejected.
func NewValidateHandler(deps pipeline.Deps, maxUpload int64) *ValidateHandler {
	return &ValidateHandler{deps: deps, maxUpload: maxUpload, logger: logger.OrNop(deps.Logger)}
}

// Validate accepts a multipart form with a "file" part and the optional
// fields "source", "table" and "sheet_tables" (a JSON object mapping sheet
// names to tables). It responds with the file report, or 409 with the
// table candidates when a sheet's target cannot be inferred.
// POST /api/v1/validate
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errs.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file part: "+err.Error())
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if _, err := tabular.DetectFormat(name); err != nil {
		writeErr(w, err, "")
		return
	}

	req := pipeline.Request{Table: r.FormValue("table")}
	if raw := r.FormValue("sheet_tables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.SheetTables); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid sheet_tables: "+err.Error())
			return
		}
	}

	dir, err := os.MkdirTemp("", "schemaguard-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to stage upload: "+err.Error())
		return
	}
	defer os.RemoveAll(dir)

	req.Path = filepath.Join(dir, name)
	if err := stageUpload(req.Path, file); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to stage upload: "+err.Error())
		return
	}

	svc, err := pipeline.Open(r.Context(), h.deps, r.FormValue("source"))
	if err != nil {
		writeErr(w, err, "Failed to open source")
		return
	}
	defer func() {
		if err := svc.Close(); err != nil {
			middleware.LoggerFrom(r.Context(), h.logger).Warnw("close pipeline", "error", err)
		}
	}()

	report, err := svc.Validate(r.Context(), req)
	if amb, ok := pipeline.AsAmbiguous(err); ok {
		writeError(w, http.StatusConflict, amb.Error(), map[string]interface{}{
			"kind":   "AmbiguousTableSelection",
			"file":   amb.File,
			"sheets": amb.Sheets,
		})
		return
	}
	if err != nil {
		log := middleware.LoggerFrom(r.Context(), h.logger)
		if errs.IsFatal(err) {
			log.Infow("upload rejected", "file", name, "kind", errs.Kind(err), "error", err)
		} else {
			log.Errorw("validation failed", "file", name, "kind", errs.Kind(err), "error", err)
		}
		writeErr(w, err, "Validation failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func stageUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
