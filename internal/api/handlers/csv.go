package handlers

import (
	"errors"
	"net/http"

	"github.com/pysugar/roleplay-nexus/internal/api/middleware"
	"github.com/pysugar/roleplay-nexus/internal/csvfiles"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/util"
)

type processCSVRequest struct {
	SelectedCSVPath string `json:"selected_csv_path" validate:"required"`
}

func (a *API) UploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, csvfiles.MaxUploadSize+1<<20)

	file, header, err := r.FormFile("csv_file")
	if err != nil {
		util.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors":  map[string]string{"csv_file": "The csv_file field is required."},
		})
		return
	}
	defer file.Close()

	if header.Size > csvfiles.MaxUploadSize {
		util.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors":  map[string]string{"csv_file": "The csv_file may not be greater than 10240 kilobytes."},
		})
		return
	}

	var userID *uint
	if u := middleware.UserFrom(r.Context()); u != nil {
		userID = &u.ID
	}

	rec, err := a.CSV.Save(r.Context(), header.Filename, file, userID)
	switch {
	case errors.Is(err, csvfiles.ErrUnsupportedType), errors.Is(err, csvfiles.ErrTooLarge):
		util.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors":  map[string]string{"csv_file": err.Error()},
		})
	case err != nil:
		logging.FromContext(r.Context()).Error("csv upload failed", "error", err)
		util.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "File upload failed.",
			"error":   err.Error(),
		})
	default:
		util.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "File uploaded and stored successfully.",
			"path":    rec.StoredPath,
		})
	}
}

func (a *API) ListCSV(w http.ResponseWriter, r *http.Request) {
	files, err := a.CSV.List(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("list csv files failed", "error", err)
		util.WriteError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	util.WriteJSON(w, http.StatusOK, files)
}

func (a *API) ProcessCSV(w http.ResponseWriter, r *http.Request) {
	var req processCSVRequest
	if !a.bind(w, r, &req) {
		return
	}

	content, err := a.CSV.Read(r.Context(), req.SelectedCSVPath)
	switch {
	case errors.Is(err, csvfiles.ErrNotFound):
		util.WriteMessage(w, http.StatusNotFound, "Error: File not found on storage disk.")
	case errors.Is(err, csvfiles.ErrInvalidPath):
		util.WriteMessage(w, http.StatusBadRequest, "Error: Invalid file path.")
	case err != nil:
		logging.FromContext(r.Context()).Error("read csv failed", "error", err)
		util.WriteMessage(w, http.StatusInternalServerError, "Error: File could not be read.")
	default:
		util.WriteJSON(w, http.StatusOK, map[string]string{
			"message":     "File content retrieved successfully for frontend processing.",
			"csv_content": string(content),
			"path":        req.SelectedCSVPath,
		})
	}
}
