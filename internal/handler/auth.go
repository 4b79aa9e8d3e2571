package handler

import (
	"net/http"
	"strings"

	"github.com/templui/storyline/internal/service"
)

type AuthHandler struct {
	accountService *service.AccountService
	otpService     *service.OTPService
}

func NewAuthHandler(accountService *service.AccountService, otpService *service.OTPService) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
		otpService:     otpService,
	}
}

type registerRequest struct {
	Contact   string `json:"contact"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD
}

type credentialsRequest struct {
	Contact  string `json:"contact"`
	Password string `json:"password"`
}

type codeRequest struct {
	Contact string `json:"contact"`
	Code    string `json:"code"`
}

type contactRequest struct {
	Contact string `json:"contact"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	params := service.RegisterParams{
		Contact:  req.Contact,
		Password: req.Password,
		FullName: req.FullName,
		Gender:   req.Gender,
	}
	if strings.TrimSpace(req.BirthDate) != "" {
		birthDate, err := parseBirthDate(req.BirthDate)
		if err != nil {
			fail(w, r, err)
			return
		}
		params.BirthDate = birthDate
	}

	result, err := h.accountService.Register(r.Context(), params)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "verification code sent", result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	result, err := h.accountService.Login(r.Context(), req.Contact, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "verification code sent", result)
}

// Verify completes whatever flow the code was issued for. Login codes return
// a session token.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	result, err := h.accountService.CompleteVerification(r.Context(), req.Contact, req.Code)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "code verified", result)
}

func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	challenge, err := h.otpService.Resend(r.Context(), req.Contact)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "verification code resent", challenge)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	challenge, err := h.accountService.ForgotPassword(r.Context(), req.Contact)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "verification code sent", challenge)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	account, err := h.accountService.ResetPassword(r.Context(), req.Contact, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "password updated", account)
}
