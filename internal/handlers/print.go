package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/services/receipt"
)

// multipart overhead allowed on top of the file payload
const formOverhead = 1 << 20

// issueReceipt assigns the receipt number and link
func (r *Router) issueReceipt(w http.ResponseWriter, req *http.Request) {
	d, err := r.declarations.IssueReceipt(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// downloadReceipt renders the receipt PDF of an issued receipt
func (r *Router) downloadReceipt(w http.ResponseWriter, req *http.Request) {
	d, err := r.declarations.Receipt(req.Context(), actor(req), mux.Vars(req)["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}

	pdfBytes, err := receipt.Render(d)
	if err != nil {
		r.fail(w, req, fmt.Errorf("render receipt: %w", err))
		return
	}

	// Set headers for download
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.FileName(d)))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Write(pdfBytes)
}

// uploadPhotos stores the "photos" files of a multipart form
func (r *Router) uploadPhotos(w http.ResponseWriter, req *http.Request) {
	limit := r.uploads.MaxBytes()*int64(r.uploads.MaxFiles()) + formOverhead
	req.Body = http.MaxBytesReader(w, req.Body, limit)
	if err := req.ParseMultipartForm(formOverhead); err != nil {
		r.fail(w, req, apperrors.Validation("invalid multipart form: %v", err))
		return
	}
	defer req.MultipartForm.RemoveAll()

	refs, err := r.uploads.SaveMultipart(req.MultipartForm.File["photos"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string][]string{"photos": refs})
}
