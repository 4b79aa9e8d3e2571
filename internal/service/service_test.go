package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/model"
	"github.com/templui/storyline/internal/repository"
	"github.com/templui/storyline/internal/storage"
	"github.com/templui/storyline/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

// captureNotifier remembers the last code sent to each destination, even
// when it is told to fail.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	sends int
	err   error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: map[string]string{}}
}

func (n *captureNotifier) Send(ctx context.Context, destination, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[destination] = code
	n.sends++
	return n.err
}

func (n *captureNotifier) code(t *testing.T, destination string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	code, ok := n.codes[destination]
	require.True(t, ok, "no code sent to %s", destination)
	return code
}

// testClock ticks a millisecond per reading so rows written in sequence
// get distinct, ordered timestamps.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	store    *repository.Store
	accounts repository.AccountRepository
	profiles repository.ProfileRepository
	follows  repository.FollowRepository
	stories  repository.StoryRepository
	otps     repository.OTPRepository

	notifier *captureNotifier
	media    *storage.Memory
	clock    *testClock

	otp     *OTPService
	account *AccountService
	profile *ProfileService
	follow  *FollowService
	story   *StoryService
	hasher  Hasher
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := repository.NewStore(testutil.NewDB(t))
	e := &env{
		store:    store,
		accounts: repository.NewAccountRepository(store.DB()),
		profiles: repository.NewProfileRepository(store.DB()),
		follows:  repository.NewFollowRepository(store.DB()),
		stories:  repository.NewStoryRepository(store.DB()),
		otps:     repository.NewOTPRepository(store.DB()),
		notifier: newCaptureNotifier(),
		media:    storage.NewMemory(),
		clock:    &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		hasher:   NewBcryptHasher(bcrypt.MinCost),
	}

	e.otp = NewOTPService(e.otps, e.hasher, e.notifier, DefaultCodeTTL, DefaultRetention)
	e.account = NewAccountService(store, e.accounts, e.otps, e.otp, e.hasher, "test-secret", time.Hour)
	e.profile = NewProfileService(store, e.accounts, e.profiles)
	e.follow = NewFollowService(store, e.profiles, e.follows)
	e.story = NewStoryService(store, e.profiles, e.stories, e.media, DefaultStoryTTL)

	e.otp.SetClock(e.clock.Now)
	e.account.SetClock(e.clock.Now)
	e.profile.SetClock(e.clock.Now)
	e.follow.SetClock(e.clock.Now)
	e.story.SetClock(e.clock.Now)
	return e
}

// newProfile creates an active account with a profile, skipping the
// verification flow.
func (e *env) newProfile(t *testing.T, username string) *model.Profile {
	t.Helper()
	ctx := context.Background()

	hash, err := e.hasher.Hash("pw123456")
	require.NoError(t, err)

	account := &model.Account{
		Contact:      username + "@example.com",
		ContactType:  "email",
		PasswordHash: hash,
		Active:       true,
		FullName:     "User " + username,
		CreatedAt:    e.clock.Now(),
	}
	require.NoError(t, e.accounts.Create(ctx, account))

	profile, err := e.profile.Create(ctx, account.ID, ProfileParams{Username: &username})
	require.NoError(t, err)
	return profile
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok, "expected domain error %s, got %v", kind, err)
	require.Equal(t, kind, e.Kind, "message: %s", e.Message)
	return e
}

// wrongCode returns a well-formed code that differs from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

// failingTx never runs fn.
type failingTx struct{ err error }

func (f failingTx) InTx(ctx context.Context, fn func(tx repository.DBTX) error) error {
	return f.err
}

var errTxFailed = errors.New("transaction failed")

func ptr[T any](v T) *T {
	return &v
}
