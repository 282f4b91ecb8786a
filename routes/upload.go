package routes

import (
	"errors"
	"io"
	"net/http"

	"wsiserve/logger"
	"wsiserve/models"
)

// multipartOverhead is allowed on top of the file ceiling for boundaries,
// part headers and small form fields.
const multipartOverhead = 1 << 20

// UploadResponse is returned once the slide is converted and published.
type UploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	DziURL   string `json:"dziUrl"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// UploadHandler streams the "file" part of a multipart body straight into
// the pipeline. The request does not return until conversion finishes.
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Upload request: method=%s, remoteAddr=%s, length=%d", r.Method, r.RemoteAddr, r.ContentLength)
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, models.NewError(models.KindNoFileProvided, "request is not multipart/form-data", err))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, models.NewError(models.KindNoFileProvided, `no "file" field in upload`, nil))
			return
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, models.NewError(models.KindPayloadTooLarge, "request body too large", err))
			} else {
				writeError(w, models.NewError(models.KindNoFileProvided, "malformed multipart body", err))
			}
			return
		}

		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		result, err := s.deps.Pipeline.HandleUpload(r.Context(), part, part.FileName())
		part.Close()
		if err != nil {
			writeError(w, err)
			return
		}

		result.URL = s.baseURL(r) + result.Path
		logger.Infof("Upload %q published as %s", result.OriginalName, result.URL)
		writeJSON(w, http.StatusOK, UploadResponse{
			Success:  true,
			Message:  "File uploaded and converted successfully",
			DziURL:   result.URL,
			Filename: result.OriginalName,
			Size:     result.Size,
		})
		return
	}
}
