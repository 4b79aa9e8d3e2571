package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/ctxkeys"
	"github.com/templui/storyline/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type accountRequest struct {
	FullName  *string `json:"full_name"`
	Gender    *string `json:"gender"`
	BirthDate *string `json:"birth_date"` // YYYY-MM-DD
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, "", ctxkeys.Account(r.Context()))
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	account := ctxkeys.Account(r.Context())

	var req accountRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	params := service.AccountParams{
		FullName: req.FullName,
		Gender:   req.Gender,
	}
	if req.BirthDate != nil {
		birthDate, err := parseBirthDate(*req.BirthDate)
		if err != nil {
			fail(w, r, err)
			return
		}
		params.BirthDate = birthDate
	}

	updated, err := h.accountService.Update(r.Context(), account.ID, params)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "account updated", updated)
}

func parseBirthDate(s string) (*time.Time, error) {
	birthDate, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidField, "birth_date must be YYYY-MM-DD")
	}
	return &birthDate, nil
}
