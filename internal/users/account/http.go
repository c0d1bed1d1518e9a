// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/taibuivan/authapi/internal/platform/request"
	"github.com/taibuivan/authapi/internal/platform/respond"
	"github.com/taibuivan/authapi/internal/users/auth"
)

// Handler implements the HTTP layer for self-service account management.
//
// # Security
//
// Every route requires an authenticated caller; the router mounts it behind
// the RequireAuth middleware.
type Handler struct {
	accountService *Service
	cookies        *auth.CookieWriter
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service, cookies *auth.CookieWriter) *Handler {
	return &Handler{accountService: service, cookies: cookies}
}

// Routes returns a [chi.Router] configured with the account endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.getMe)
	router.Post("/", handler.changeMe)
	router.Post("/manage/2fa", handler.manageTwoFactor)

	return router
}

// # Payloads

type changeMeRequest struct {
	NewEmail    string `json:"newEmail"`
	NewPassword string `json:"newPassword"`
	OldPassword string `json:"oldPassword"`
}

/*
GET /api/v1/me.

Response:
  - 200: UserInfo: Claims and email confirmation flag
  - 401: UNAUTHORIZED: Authentication required
  - 404: NOT_FOUND: Principal no longer exists
*/
func (handler *Handler) getMe(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	info, err := handler.accountService.GetInfo(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, info)
}

/*
POST /api/v1/me.

Description: Changes the password (old password required) and/or requests an
email change.

Request:
  - Body: changeMeRequest (NewEmail, NewPassword, OldPassword)

Response:
  - 200: UserInfo
  - 400: VALIDATION_ERROR: ChangeMe.OldPasswordRequired, PasswordMismatch or password rules
  - 401 / 404
*/
func (handler *Handler) changeMe(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changeMeRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	info, err := handler.accountService.Change(request.Context(), claims, ChangeInput{
		NewEmail:    strings.TrimSpace(input.NewEmail),
		NewPassword: strings.TrimSpace(input.NewPassword),
		OldPassword: strings.TrimSpace(input.OldPassword),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, info)
}

/*
POST /api/v1/me/manage/2fa.

Request:
  - Body: auth.TwoFactorRequest

Response:
  - 200: auth.TwoFactorResponse
  - 400: VALIDATION_ERROR: TwoFactorRequest.* codes
  - 401 / 404
*/
func (handler *Handler) manageTwoFactor(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input auth.TwoFactorRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	input.TwoFactorCode = strings.TrimSpace(input.TwoFactorCode)

	state, err := handler.accountService.UpdateTwoFactor(request.Context(), claims, input, handler.cookies.DeviceToken(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if input.ForgetMachine {
		handler.cookies.ClearDevice(writer)
	}

	respond.OK(writer, state)
}
