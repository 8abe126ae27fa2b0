package controllers

import (
	"log/slog"
	"net/http"
	"time"

	"accesscontrol/internal/delivery/http/helpers"
	"accesscontrol/internal/domain"
)

// IssueInviteRequest is the request body for POST /invites.
type IssueInviteRequest struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	SiteID string `json:"site_id" validate:"required"`
}

// Validate implements Validator.
func (req IssueInviteRequest) Validate() []string {
	return helpers.ValidateStruct(req)
}

// IssueInviteResponse is the data returned by POST /invites.
type IssueInviteResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	SiteID    string    `json:"site_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueInviteSuccessResponse is the success response envelope for POST /invites (201).
type IssueInviteSuccessResponse struct {
	Data  IssueInviteResponse `json:"data"`
	Error *helpers.APIError   `json:"error"`
}

// VerifyInviteResponse is the data returned by GET /invites/{token}/verify.
type VerifyInviteResponse struct {
	Valid  bool   `json:"valid"`
	Email  string `json:"email"`
	SiteID string `json:"site_id"`
}

// VerifyInviteSuccessResponse is the success response envelope for GET /invites/{token}/verify (200).
type VerifyInviteSuccessResponse struct {
	Data  VerifyInviteResponse `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// ListSiteInvitesResponse is the data returned by GET /sites/{siteID}/invites.
type ListSiteInvitesResponse struct {
	Items      []*domain.InviteToken  `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// ListSiteInvitesSuccessResponse is the success response envelope for GET /sites/{siteID}/invites (200).
type ListSiteInvitesSuccessResponse struct {
	Data  ListSiteInvitesResponse `json:"data"`
	Error *helpers.APIError       `json:"error"`
}

type InviteController struct {
	Logger  *slog.Logger
	Service domain.InviteService
}

func NewInviteController(logger *slog.Logger, svc domain.InviteService) *InviteController {
	return &InviteController{
		Logger:  logger,
		Service: svc,
	}
}

// Issue godoc
// @Summary Issue an invite token
// @Description Generates a single-use 6-digit token bound to the email and site, valid for 24 hours, and emails it to the invitee. Requires an admin role.
// @Tags invites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param invite body IssueInviteRequest true "Invitee email and site"
// @Success 201 {object} controllers.IssueInviteSuccessResponse "data contains the token and its expiry"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found (site)"
// @Failure 503 {object} helpers.APIResponse "error.code: storage_unavailable"
// @Router /invites [post]
func (c *InviteController) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueInviteRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	inv, err := c.Service.GenerateInvite(r.Context(), req.Email, req.SiteID)
	if err != nil {
		writeServiceError(w, r, c.Logger, err, http.StatusBadRequest)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, IssueInviteResponse{
		Token:     inv.Token,
		Email:     inv.Email,
		SiteID:    inv.SiteID,
		ExpiresAt: inv.ExpiresAt,
	})
}

// Verify godoc
// @Summary Verify an invite token
// @Description Reports whether the token is PENDING and unexpired, and which email and site it is bound to. Public; does not consume the token.
// @Tags invites
// @Produce json
// @Param token path string true "6-digit invite token"
// @Success 200 {object} controllers.VerifyInviteSuccessResponse "data.valid is true"
// @Failure 404 {object} helpers.APIResponse "error.code: invalid_token"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /invites/{token}/verify [get]
func (c *InviteController) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing token")
		return
	}
	inv, err := c.Service.ValidateInvite(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, c.Logger, err, http.StatusNotFound)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, VerifyInviteResponse{
		Valid:  true,
		Email:  inv.Email,
		SiteID: inv.SiteID,
	})
}

// ListSiteInvites godoc
// @Summary List a site's invites
// @Description Paginated invite audit for one site, newest first. Status is reported as EXPIRED once a pending token is past its expiry. Requires an admin role.
// @Tags invites
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.ListSiteInvitesSuccessResponse "data contains items and pagination"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sites/{siteID}/invites [get]
func (c *InviteController) ListSiteInvites(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("siteID")
	if siteID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing siteID")
		return
	}
	params := helpers.ParsePagination(r)
	invs, total, err := c.Service.ListSiteInvites(r.Context(), siteID, params)
	if err != nil {
		writeServiceError(w, r, c.Logger, err, http.StatusBadRequest)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ListSiteInvitesResponse{
		Items:      invs,
		Pagination: helpers.NewPaginationMeta(params.Page, params.PageSize, total),
	})
}
