// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/authapi/internal/platform/constants"
	requestutil "github.com/taibuivan/authapi/internal/platform/request"
	"github.com/taibuivan/authapi/internal/platform/respond"
	"github.com/taibuivan/authapi/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the anonymous identity endpoints.
//
// # Scope
//
// This handler manages the entry points of the credential lifecycle
// (Registration, Login, Refresh, Email confirmation, Password reset).
type Handler struct {
	authService *Service
	cookies     *CookieWriter
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, cookies *CookieWriter) *Handler {
	return &Handler{authService: service, cookies: cookies}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /register                : Creates a new account.
//   - POST /login                   : Authenticates with bearer tokens or a cookie.
//   - POST /refresh                 : Exchanges a refresh token.
//   - GET  /confirmEmail            : Redeems a mailed confirmation link.
//   - POST /resendConfirmationEmail : Mails a new confirmation link.
//   - POST /forgotPassword          : Mails a reset code.
//   - POST /resetPassword           : Sets a new password from a reset code.
//   - POST /logout                  : Ends the cookie session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Get("/confirmEmail", handler.confirmEmail)
	router.Post("/resendConfirmationEmail", handler.resendConfirmationEmail)
	router.Post("/forgotPassword", handler.forgotPassword)
	router.Post("/resetPassword", handler.resetPassword)
	router.Post("/logout", handler.logout)

	return router
}

// # Request Payloads

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (input *registerRequest) sanitize() {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	input.Password = strings.TrimSpace(input.Password)
}

type loginRequest struct {
	Email                 string `json:"email"`
	Password              string `json:"password"`
	TwoFactorCode         string `json:"twoFactorCode"`
	TwoFactorRecoveryCode string `json:"twoFactorRecoveryCode"`
}

func (input *loginRequest) sanitize() {
	input.Email = strings.TrimSpace(input.Email)
	input.Password = strings.TrimSpace(input.Password)
	input.TwoFactorCode = strings.TrimSpace(input.TwoFactorCode)
	input.TwoFactorRecoveryCode = strings.TrimSpace(input.TwoFactorRecoveryCode)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	ResetCode   string `json:"resetCode"`
	NewPassword string `json:"newPassword"`
}

func (input *resetPasswordRequest) sanitize() {
	input.Email = strings.TrimSpace(input.Email)
	input.ResetCode = strings.TrimSpace(input.ResetCode)
	input.NewPassword = strings.TrimSpace(input.NewPassword)
}

/*
Register handles the creation of a new account.

POST /api/v1/auth/register

Request:
  - Body: registerRequest (Username, Email, Password)

Response:
  - 200: Empty: Account created, confirmation link mailed
  - 400: VALIDATION_ERROR: Details keyed by rule code
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	input.sanitize()

	_, err := handler.authService.Register(request.Context(), RegisterInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Empty(writer)
}

/*
Login authenticates a principal and establishes a session.

POST /api/v1/auth/login?useCookies&useSessionCookies

Description: Bearer callers receive a token pair. Either flag selects cookie
mode: the session cookie is persistent with useCookies alone and browser-scoped
with useSessionCookies. A TOTP on a persistent session also sets the
remembered-device cookie.

Request:
  - Body: loginRequest (Email, Password, TwoFactorCode, TwoFactorRecoveryCode)

Response:
  - 200: TokenPair, or empty with Set-Cookie
  - 401: UNAUTHORIZED or LOCKED_OUT
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	input.sanitize()

	session, err := handler.authService.Login(request.Context(), LoginInput{
		LoginRequest: LoginRequest{
			Email:                 input.Email,
			Password:              input.Password,
			TwoFactorCode:         input.TwoFactorCode,
			TwoFactorRecoveryCode: input.TwoFactorRecoveryCode,
			DeviceToken:           handler.cookies.DeviceToken(request),
		},
		UseCookies:        requestutil.QueryBool(request, "useCookies"),
		UseSessionCookies: requestutil.QueryBool(request, "useSessionCookies"),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if session.DeviceToken != "" {
		handler.cookies.SetDevice(writer, session.DeviceToken, session.DeviceExpiresAt)
	}

	if session.Cookie != nil {
		handler.cookies.SetSession(writer, session.Cookie)
		respond.Empty(writer)
		return
	}

	respond.OK(writer, session.Tokens)
}

/*
Refresh issues a new token pair from a refresh token.

POST /api/v1/auth/refresh

Response:
  - 200: TokenPair
  - 401: UNAUTHORIZED: Expired, tampered or stale refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	pair, err := handler.authService.Refresh(request.Context(), strings.TrimSpace(input.RefreshToken))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, pair)
}

/*
ConfirmEmail redeems the link mailed at registration or on an email change.

GET /api/v1/auth/confirmEmail?userId&code&changedEmail

Response:
  - 200: text/plain confirmation
  - 400: VALIDATION_ERROR: Missing userId or code
  - 401: UNAUTHORIZED: Unknown user or unusable code
*/
func (handler *Handler) confirmEmail(writer http.ResponseWriter, request *http.Request) {
	userID := requestutil.Query(request, FieldUserID)
	code := requestutil.Query(request, FieldCode)

	validator := &validate.Validator{}
	validator.Required(FieldUserID, userID).Required(FieldCode, code)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err := handler.authService.ConfirmEmail(request.Context(), userID, code, requestutil.Query(request, "changedEmail"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Text(writer, MessageEmailConfirmed)
}

/*
ResendConfirmationEmail mails a new confirmation link.

POST /api/v1/auth/resendConfirmationEmail?email

Response:
  - 200: Empty: Always, whether or not the email is registered
  - 400: VALIDATION_ERROR: Missing or malformed email
*/
func (handler *Handler) resendConfirmationEmail(writer http.ResponseWriter, request *http.Request) {
	email, ok := handler.queryEmail(writer, request)
	if !ok {
		return
	}

	if err := handler.authService.ResendConfirmation(request.Context(), email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Empty(writer)
}

/*
ForgotPassword mails a password reset code.

POST /api/v1/auth/forgotPassword?email

Response:
  - 200: Empty: Always, whether or not the email is registered and confirmed
  - 400: VALIDATION_ERROR: Missing or malformed email
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	email, ok := handler.queryEmail(writer, request)
	if !ok {
		return
	}

	if err := handler.authService.ForgotPassword(request.Context(), email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Empty(writer)
}

/*
ResetPassword completes the password recovery flow.

POST /api/v1/auth/resetPassword

Request:
  - Body: resetPasswordRequest (Email, ResetCode, NewPassword)

Response:
  - 200: Empty: Password updated
  - 400: VALIDATION_ERROR: InvalidToken or password rule codes
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	input.sanitize()

	if err := handler.authService.ResetPassword(request.Context(), input.Email, input.ResetCode, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Empty(writer)
}

/*
Logout ends the cookie session and clears the session cookie.

POST /api/v1/auth/logout

Response:
  - 204: No Content
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if cookie, err := request.Cookie(constants.SessionCookieName); err == nil {
		if err := handler.authService.Logout(request.Context(), cookie.Value); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	handler.cookies.ClearSession(writer)
	respond.NoContent(writer)
}

// queryEmail reads and validates the email query parameter, answering 400 itself.
func (handler *Handler) queryEmail(writer http.ResponseWriter, request *http.Request) (string, bool) {
	email := requestutil.Query(request, FieldEmail)

	validator := &validate.Validator{}
	validator.Required(FieldEmail, email)
	if email != "" {
		validator.Email(FieldEmail, email)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return "", false
	}
	return email, true
}
