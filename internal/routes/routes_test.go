package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/storyline/internal/app"
	"github.com/templui/storyline/internal/config"
	"github.com/templui/storyline/internal/model"
	"github.com/templui/storyline/internal/storage"
	"github.com/templui/storyline/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

type codeInbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeInbox) Send(ctx context.Context, destination, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[destination] = code
	return nil
}

func (c *codeInbox) last(t *testing.T, destination string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.codes[destination]
	require.True(t, ok, "no code sent to %s", destination)
	return code
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	t       *testing.T
	handler http.Handler
	inbox   *codeInbox
	media   *storage.Memory
}

func newServer(t *testing.T) *server {
	cfg := &config.Config{
		AppName:     "Storyline",
		AppEnv:      "development",
		JWTSecret:   "test-secret",
		JWTExpiry:   time.Hour,
		OTPCodeTTL:  3 * time.Minute,
		OTPRetain:   time.Hour,
		OTPHashCost: bcrypt.MinCost,
		StoryTTL:    24 * time.Hour,
	}
	inbox := &codeInbox{codes: map[string]string{}}
	media := storage.NewMemory()

	a := app.Build(cfg, testutil.NewDB(t), media, inbox)
	return &server{t: t, handler: SetupRoutes(a), inbox: inbox, media: media}
}

func (s *server) do(req *http.Request, token string) (int, response) {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var body response
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func (s *server) json(method, path, token string, payload any) (int, response) {
	s.t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, token)
}

func (s *server) upload(token, filename, contentType string, content []byte) (int, response) {
	s.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="content"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(s.t, err)
	_, err = part.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/stories", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return s.do(req, token)
}

func decodeData[T any](t *testing.T, body response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body.Data, &v))
	return v
}

// signUp registers, activates and logs in a contact and returns its token.
func (s *server) signUp(contact string) string {
	t := s.t
	t.Helper()

	status, _ := s.json(http.MethodPost, "/auth/register", "", map[string]string{
		"contact":   contact,
		"password":  "hunter22",
		"full_name": "Test User",
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = s.json(http.MethodPost, "/auth/verify", "", map[string]string{
		"contact": contact,
		"code":    s.inbox.last(t, contact),
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = s.json(http.MethodPost, "/auth/login", "", map[string]string{
		"contact":  contact,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, status)

	status, body := s.json(http.MethodPost, "/auth/verify", "", map[string]string{
		"contact": contact,
		"code":    s.inbox.last(t, contact),
	})
	require.Equal(t, http.StatusOK, status)

	result := decodeData[struct {
		Token string `json:"token"`
	}](t, body)
	require.NotEmpty(t, result.Token)
	return result.Token
}

func (s *server) createProfile(token, username string) model.Profile {
	s.t.Helper()
	status, body := s.json(http.MethodPost, "/profiles", token, map[string]string{"username": username})
	require.Equal(s.t, http.StatusCreated, status, body.Message)
	return decodeData[model.Profile](s.t, body)
}

func TestRegisterValidation(t *testing.T) {
	s := newServer(t)

	status, body := s.json(http.MethodPost, "/auth/register", "", map[string]string{"contact": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.Success)

	status, _ = s.json(http.MethodPost, "/auth/register", "", map[string]string{
		"contact":  "not a contact",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.json(http.MethodPost, "/auth/register", "", map[string]string{
		"contact":    "alice@example.com",
		"password":   "hunter22",
		"birth_date": "31/12/1999",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString("{"))
	status, _ = s.do(req, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWrongCodeReportsRemainingAttempts(t *testing.T) {
	s := newServer(t)

	status, body := s.json(http.MethodPost, "/auth/register", "", map[string]string{
		"contact":  "+998901234567",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, status)
	challenge := decodeData[struct {
		Challenge struct {
			Purpose     string `json:"_type"`
			ResendsLeft int    `json:"resends_left"`
		} `json:"challenge"`
	}](t, body)
	assert.Equal(t, "register", challenge.Challenge.Purpose)
	assert.Equal(t, 3, challenge.Challenge.ResendsLeft)

	code := s.inbox.last(t, "+998901234567")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	status, body = s.json(http.MethodPost, "/auth/verify", "", map[string]string{
		"contact": "+998901234567",
		"code":    wrong,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	data := decodeData[map[string]any](t, body)
	assert.EqualValues(t, 2, data["remaining_attempts"])
	assert.EqualValues(t, 2, data["qolgan_urinishlar_soni"])

	status, _ = s.json(http.MethodPost, "/auth/resend", "", map[string]string{"contact": "+998901234567"})
	assert.Equal(t, http.StatusOK, status)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newServer(t)
	s.signUp("bob@example.com")

	status, _ := s.json(http.MethodPost, "/auth/reset-password", "", map[string]string{
		"contact":  "bob@example.com",
		"password": "new-secret",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.json(http.MethodPost, "/auth/forgot-password", "", map[string]string{"contact": "bob@example.com"})
	require.Equal(t, http.StatusOK, status)

	status, body := s.json(http.MethodPost, "/auth/verify", "", map[string]string{
		"contact": "bob@example.com",
		"code":    s.inbox.last(t, "bob@example.com"),
	})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[struct {
		ResetAuthorized bool `json:"reset_authorized"`
	}](t, body).ResetAuthorized)

	status, _ = s.json(http.MethodPost, "/auth/reset-password", "", map[string]string{
		"contact":  "bob@example.com",
		"password": "new-secret",
	})
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.json(http.MethodPost, "/auth/login", "", map[string]string{
		"contact":  "bob@example.com",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.json(http.MethodPost, "/auth/login", "", map[string]string{
		"contact":  "bob@example.com",
		"password": "new-secret",
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestProfileEndpointsRequireAuth(t *testing.T) {
	s := newServer(t)

	status, _ := s.json(http.MethodGet, "/profiles/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.json(http.MethodGet, "/profiles/me", "forged.token.value", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	token := s.signUp("carol@example.com")
	status, _ = s.json(http.MethodGet, "/profiles/me", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProfileLifecycle(t *testing.T) {
	s := newServer(t)
	token := s.signUp("dana@example.com")

	created := s.createProfile(token, "dana")
	assert.Len(t, created.PublicID, 12)
	assert.Equal(t, "Test User", created.FullName)

	status, _ := s.json(http.MethodPost, "/profiles", token, map[string]string{"username": "dana2"})
	assert.Equal(t, http.StatusConflict, status)

	status, body := s.json(http.MethodPatch, "/profiles/me", token, map[string]any{
		"bio":        "hello",
		"is_private": true,
	})
	require.Equal(t, http.StatusOK, status)
	updated := decodeData[model.Profile](t, body)
	assert.Equal(t, "hello", updated.Bio)
	assert.True(t, updated.IsPrivate)
	assert.Equal(t, "dana", updated.Username)

	status, body = s.json(http.MethodGet, "/profiles/"+created.PublicID, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, created.ID, decodeData[model.Profile](t, body).ID)

	status, _ = s.json(http.MethodGet, "/profiles/999999999999", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.json(http.MethodDelete, "/profiles/me", token, nil)
	require.Equal(t, http.StatusOK, status)

	// The account is deactivated along with the profile.
	status, _ = s.json(http.MethodGet, "/profiles/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestFollowFlow(t *testing.T) {
	s := newServer(t)
	aliceToken := s.signUp("alice@example.com")
	bobToken := s.signUp("bob@example.com")
	alice := s.createProfile(aliceToken, "alice")
	bob := s.createProfile(bobToken, "bob")

	status, _ := s.json(http.MethodPost, "/profiles/"+alice.ID+"/follow", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := s.json(http.MethodPost, "/profiles/"+bob.ID+"/follow", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	result := decodeData[struct {
		Follower model.Profile `json:"follower"`
		Target   model.Profile `json:"target"`
	}](t, body)
	assert.Equal(t, 1, result.Follower.FollowingCount)
	assert.Equal(t, 1, result.Target.FollowersCount)

	status, _ = s.json(http.MethodPost, "/profiles/"+bob.ID+"/follow", aliceToken, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.json(http.MethodGet, "/profiles/me/followers", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	followers := decodeData[[]model.Profile](t, body)
	require.Len(t, followers, 1)
	assert.Equal(t, alice.ID, followers[0].ID)

	status, body = s.json(http.MethodGet, "/profiles/me/following", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]model.Profile](t, body), 1)

	status, _ = s.json(http.MethodPost, "/profiles/"+bob.ID+"/unfollow", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = s.json(http.MethodPost, "/profiles/"+bob.ID+"/unfollow", aliceToken, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.json(http.MethodGet, "/profiles/me", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, decodeData[model.Profile](t, body).FollowersCount)
}

func TestStoryFlow(t *testing.T) {
	s := newServer(t)
	aliceToken := s.signUp("alice@example.com")
	bobToken := s.signUp("bob@example.com")
	alice := s.createProfile(aliceToken, "alice")
	s.createProfile(bobToken, "bob")

	status, _ := s.upload(aliceToken, "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, status)

	req := httptest.NewRequest(http.MethodPost, "/stories", nil)
	status, _ = s.do(req, aliceToken)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := s.upload(aliceToken, "clip.mp4", "application/octet-stream", []byte("fake video"))
	require.Equal(t, http.StatusCreated, status, body.Message)
	story := decodeData[model.Story](t, body)
	assert.Equal(t, model.StoryContentVideo, story.ContentType)
	assert.NotEmpty(t, story.ContentURL)
	assert.Equal(t, 1, s.media.Len())

	status, _ = s.json(http.MethodPost, "/stories/"+story.ID+"/view", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	for range 2 {
		status, body = s.json(http.MethodPost, "/stories/"+story.ID+"/view", bobToken, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 1, decodeData[model.Story](t, body).ViewCount)
	}

	status, _ = s.json(http.MethodPost, "/stories/missing/view", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.json(http.MethodGet, "/stories/active", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	active := decodeData[[]model.Story](t, body)
	require.Len(t, active, 1)
	assert.Equal(t, story.ID, active[0].ID)
	assert.Equal(t, 1, active[0].ViewCount)

	status, body = s.json(http.MethodGet, "/stories/active", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeData[[]model.Story](t, body))
}

func TestActiveStoriesAreOwnOnly(t *testing.T) {
	s := newServer(t)
	aliceToken := s.signUp("alice@example.com")
	bobToken := s.signUp("bob@example.com")
	alice := s.createProfile(aliceToken, "alice")
	s.createProfile(bobToken, "bob")

	status, _ := s.json(http.MethodPatch, "/profiles/me", aliceToken, map[string]any{"is_private": true})
	require.Equal(t, http.StatusOK, status)

	status, body := s.upload(aliceToken, "photo.jpg", "image/jpeg", []byte("fake image"))
	require.Equal(t, http.StatusCreated, status, body.Message)

	// A profile_id parameter does not reach someone else's stories.
	status, body = s.json(http.MethodGet, "/stories/active?profile_id="+alice.ID, bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeData[[]model.Story](t, body))
}

func TestAccountDetails(t *testing.T) {
	s := newServer(t)

	status, _ := s.json(http.MethodGet, "/accounts/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	token := s.signUp("erin@example.com")

	// No profile is needed to manage the account.
	status, body := s.json(http.MethodGet, "/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decodeData[map[string]any](t, body)
	assert.Equal(t, "erin@example.com", me["contact"])
	assert.NotContains(t, me, "password_hash")

	status, body = s.json(http.MethodPatch, "/accounts/me", token, map[string]string{
		"full_name":  "Erin Doe",
		"gender":     "ERKAK",
		"birth_date": "1990-05-17",
	})
	require.Equal(t, http.StatusOK, status, body.Message)
	updated := decodeData[model.Account](t, body)
	assert.Equal(t, "Erin Doe", updated.FullName)
	assert.Equal(t, model.GenderMale, updated.Gender)
	require.NotNil(t, updated.BirthDate)
	assert.Equal(t, "1990-05-17", updated.BirthDate.Format(time.DateOnly))

	status, body = s.json(http.MethodGet, "/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Erin Doe", decodeData[model.Account](t, body).FullName)

	status, _ = s.json(http.MethodPatch, "/accounts/me", token, map[string]string{"gender": "OTHER"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.json(http.MethodPatch, "/accounts/me", token, map[string]string{"birth_date": "17.05.1990"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	status, body := s.json(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
}
