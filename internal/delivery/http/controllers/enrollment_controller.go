package controllers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"accesscontrol/internal/delivery/http/helpers"
	"accesscontrol/internal/domain"
)

// DefaultMaxPhotoBytes bounds the photo part of a multipart enrollment.
const DefaultMaxPhotoBytes = 5 << 20

// multipart field overhead allowed on top of the photo
const formOverheadBytes = 64 << 10

// CompleteEnrollmentRequest is the request body for POST /enrollments. The same fields are
// accepted as multipart form values, with an optional "photo" file part.
type CompleteEnrollmentRequest struct {
	Token    string `json:"token" validate:"required"`
	Name     string `json:"name" validate:"required,max=200"`
	Document string `json:"document" validate:"required,max=64"`
	Phone    string `json:"phone" validate:"required,max=32"`
}

// Validate implements Validator.
func (req CompleteEnrollmentRequest) Validate() []string {
	req.Token = strings.TrimSpace(req.Token)
	req.Name = strings.TrimSpace(req.Name)
	req.Document = strings.TrimSpace(req.Document)
	req.Phone = strings.TrimSpace(req.Phone)
	return helpers.ValidateStruct(req)
}

// CompleteEnrollmentResponse is the data returned by POST /enrollments.
type CompleteEnrollmentResponse struct {
	ResidentID string `json:"resident_id"`
}

// CompleteEnrollmentSuccessResponse is the success response envelope for POST /enrollments (201).
type CompleteEnrollmentSuccessResponse struct {
	Data  CompleteEnrollmentResponse `json:"data"`
	Error *helpers.APIError          `json:"error"`
}

// SyncStatusSuccessResponse is the success response envelope for GET /residents/{residentID}/sync-status (200).
type SyncStatusSuccessResponse struct {
	Data  *domain.SyncReport `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

type EnrollmentController struct {
	Logger        *slog.Logger
	Service       domain.EnrollmentService
	Syncer        domain.DeviceSyncService
	MaxPhotoBytes int64
}

func NewEnrollmentController(logger *slog.Logger, svc domain.EnrollmentService, syncer domain.DeviceSyncService, maxPhotoBytes int64) *EnrollmentController {
	if maxPhotoBytes <= 0 {
		maxPhotoBytes = DefaultMaxPhotoBytes
	}
	return &EnrollmentController{
		Logger:        logger,
		Service:       svc,
		Syncer:        syncer,
		MaxPhotoBytes: maxPhotoBytes,
	}
}

// Complete godoc
// @Summary Complete an enrollment
// @Description Redeems an invite token and creates the resident bound to the token's email and site. Device synchronization starts in the background and does not delay the response. Accepts JSON or multipart/form-data with an optional photo (JPEG or PNG).
// @Tags enrollments
// @Accept json
// @Accept mpfd
// @Produce json
// @Param enrollment body CompleteEnrollmentRequest true "Token and resident fields"
// @Param photo formData file false "Resident photo"
// @Success 201 {object} controllers.CompleteEnrollmentSuccessResponse "data contains the new resident id"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request or invalid_token"
// @Failure 413 {object} helpers.APIResponse "error.code: payload_too_large"
// @Failure 503 {object} helpers.APIResponse "error.code: storage_unavailable"
// @Router /enrollments [post]
func (c *EnrollmentController) Complete(w http.ResponseWriter, r *http.Request) {
	var (
		req   CompleteEnrollmentRequest
		photo *domain.PhotoUpload
	)
	if isMultipart(r) {
		var ok bool
		req, photo, ok = c.readMultipart(w, r)
		if !ok {
			return
		}
		if !helpers.RunValidation(w, req) {
			return
		}
	} else if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	resident, err := c.Service.CompleteEnrollment(r.Context(), req.Token, domain.ResidentFields{
		Name:     req.Name,
		Document: req.Document,
		Phone:    req.Phone,
	}, photo)
	if err != nil {
		writeServiceError(w, r, c.Logger, err, http.StatusBadRequest)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, CompleteEnrollmentResponse{ResidentID: resident.ID})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func (c *EnrollmentController) readMultipart(w http.ResponseWriter, r *http.Request) (CompleteEnrollmentRequest, *domain.PhotoUpload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, c.MaxPhotoBytes+formOverheadBytes)
	if err := r.ParseMultipartForm(c.MaxPhotoBytes + formOverheadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			helpers.WriteJSONError(w, http.StatusRequestEntityTooLarge, helpers.ErrCodePayloadTooLarge, "request body too large")
			return CompleteEnrollmentRequest{}, nil, false
		}
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid multipart form")
		return CompleteEnrollmentRequest{}, nil, false
	}
	defer r.MultipartForm.RemoveAll()

	req := CompleteEnrollmentRequest{
		Token:    r.FormValue("token"),
		Name:     r.FormValue("name"),
		Document: r.FormValue("document"),
		Phone:    r.FormValue("phone"),
	}

	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, true
	}
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid photo part")
		return req, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, c.MaxPhotoBytes+1))
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "could not read photo")
		return req, nil, false
	}
	if int64(len(data)) > c.MaxPhotoBytes {
		helpers.WriteJSONError(w, http.StatusRequestEntityTooLarge, helpers.ErrCodePayloadTooLarge,
			fmt.Sprintf("photo exceeds %d bytes", c.MaxPhotoBytes))
		return req, nil, false
	}
	return req, &domain.PhotoUpload{Data: data, ContentType: header.Header.Get("Content-Type")}, true
}

// SyncStatus godoc
// @Summary Get a resident's device sync status
// @Description Returns the latest device synchronization report for the resident: per-device state plus the sorted succeeded and failed device ids. Requires an admin role.
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param residentID path string true "Resident ID"
// @Success 200 {object} controllers.SyncStatusSuccessResponse "data contains the sync report"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /residents/{residentID}/sync-status [get]
func (c *EnrollmentController) SyncStatus(w http.ResponseWriter, r *http.Request) {
	residentID := r.PathValue("residentID")
	if residentID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing residentID")
		return
	}
	report, ok := c.Syncer.Status(residentID)
	if !ok {
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "no sync report for resident")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, report)
}
