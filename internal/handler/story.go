package handler

import (
	"errors"
	"net/http"

	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/ctxkeys"
	"github.com/templui/storyline/internal/service"
	"github.com/templui/storyline/internal/validation"
)

type StoryHandler struct {
	storyService *service.StoryService
}

func NewStoryHandler(storyService *service.StoryService) *StoryHandler {
	return &StoryHandler{
		storyService: storyService,
	}
}

// Create accepts a multipart upload with the media in the "content" field.
func (h *StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	me := ctxkeys.Profile(r.Context())

	// Allow a little room for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxMediaSize+(1<<20))

	file, header, err := r.FormFile("content")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, r, apperr.New(apperr.KindInvalidField, "file too large"))
			return
		}
		fail(w, r, apperr.New(apperr.KindMissingContent, "story content is required"))
		return
	}
	defer file.Close()

	story, err := h.storyService.Create(r.Context(), me.ID, &service.StoryUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "story published", story)
}

// Active lists the caller's own unexpired stories.
func (h *StoryHandler) Active(w http.ResponseWriter, r *http.Request) {
	me := ctxkeys.Profile(r.Context())

	stories, err := h.storyService.ListActive(r.Context(), me.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", stories)
}

func (h *StoryHandler) View(w http.ResponseWriter, r *http.Request) {
	me := ctxkeys.Profile(r.Context())

	story, err := h.storyService.MarkViewed(r.Context(), r.PathValue("id"), me.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", story)
}
