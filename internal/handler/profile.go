package handler

import (
	"net/http"

	"github.com/templui/storyline/internal/ctxkeys"
	"github.com/templui/storyline/internal/service"
)

type ProfileHandler struct {
	profileService *service.ProfileService
	followService  *service.FollowService
}

func NewProfileHandler(profileService *service.ProfileService, followService *service.FollowService) *ProfileHandler {
	return &ProfileHandler{
		profileService: profileService,
		followService:  followService,
	}
}

func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	account := ctxkeys.Account(r.Context())

	var params service.ProfileParams
	if err := decode(r, &params); err != nil {
		fail(w, r, err)
		return
	}

	profile, err := h.profileService.Create(r.Context(), account.ID, params)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "profile created", profile)
}

// Me returns the caller's profile as loaded by the auth middleware.
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, "", ctxkeys.Profile(r.Context()))
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	account := ctxkeys.Account(r.Context())

	var params service.ProfileParams
	if err := decode(r, &params); err != nil {
		fail(w, r, err)
		return
	}

	profile, err := h.profileService.Update(r.Context(), account.ID, params)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "profile updated", profile)
}

func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	account := ctxkeys.Account(r.Context())

	err := h.profileService.Delete(r.Context(), account.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "profile deleted", nil)
}

func (h *ProfileHandler) ByPublicID(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profileService.ByPublicID(r.Context(), r.PathValue("publicID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", profile)
}

func (h *ProfileHandler) Follow(w http.ResponseWriter, r *http.Request) {
	me := ctxkeys.Profile(r.Context())

	result, err := h.followService.Follow(r.Context(), me.ID, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "followed", result)
}

func (h *ProfileHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	me := ctxkeys.Profile(r.Context())

	result, err := h.followService.Unfollow(r.Context(), me.ID, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "unfollowed", result)
}

func (h *ProfileHandler) Followers(w http.ResponseWriter, r *http.Request) {
	me := ctxkeys.Profile(r.Context())

	profiles, err := h.followService.Followers(r.Context(), me.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", profiles)
}

func (h *ProfileHandler) Following(w http.ResponseWriter, r *http.Request) {
	me := ctxkeys.Profile(r.Context())

	profiles, err := h.followService.Following(r.Context(), me.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", profiles)
}
