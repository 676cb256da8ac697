package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"recipe-api/apperr"
	"recipe-api/models"
	"recipe-api/repositories"
	"recipe-api/testutil"

	"github.com/alicebob/miniredis/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "this-is-a-test-secret-with-32-bytes!"

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

type fakeUserStore struct {
	authenticateFunc func(ctx context.Context, email, password string) (*models.User, error)
	getByIDFunc      func(ctx context.Context, id uint) (*models.User, error)
}

func (f *fakeUserStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	return f.authenticateFunc(ctx, email, password)
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return f.getByIDFunc(ctx, id)
}

// repoUserStore checks credentials against the users table.
func repoUserStore(repo repositories.UserRepository) *fakeUserStore {
	return &fakeUserStore{
		authenticateFunc: func(ctx context.Context, email, password string) (*models.User, error) {
			user, err := repo.FindByEmail(ctx, email)
			if err != nil || !user.IsActive || !CheckPassword(user.Password, password) {
				return nil, apperr.ErrInvalidCredentials
			}
			return user, nil
		},
		getByIDFunc: repo.FindByID,
	}
}

func setupIssuer(t *testing.T, sessions func(repo repositories.UserRepository) SessionStore) (*Issuer, *models.User) {
	t.Helper()

	db := testutil.NewDB(t)
	users := repositories.NewUserRepository(db)
	if sessions == nil {
		sessions = func(repositories.UserRepository) SessionStore { return NewSQLSessionStore(db) }
	}

	hash, err := HashPassword("sahil123")
	require.NoError(t, err)
	user := &models.User{Email: "sahil@sahil.com", Password: hash}
	require.NoError(t, users.Create(context.Background(), user))

	return NewIssuer(repoUserStore(users), sessions(users), []byte(testSecret), time.Hour, 10*time.Minute), user
}

func TestIssueAndResolve(t *testing.T) {
	issuer, user := setupIssuer(t, nil)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "  Sahil@SAHIL.com ", "sahil123")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)

	got, err := issuer.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestIssueFailures(t *testing.T) {
	issuer, _ := setupIssuer(t, nil)
	ctx := context.Background()

	_, err := issuer.Issue(ctx, "sahil@sahil.com", "sahilsahil")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = issuer.Issue(ctx, "nobody@sahil.com", "sahil123")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = issuer.Issue(ctx, "sahil@sahil.com", "")
	var ae *apperr.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "password")
}

func TestIssueDelegatesCredentialChecks(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	user := &models.User{ID: 9, Email: "chef@example.com"}

	var gotEmail, gotPassword string
	calls := 0
	store := &fakeUserStore{
		authenticateFunc: func(_ context.Context, email, password string) (*models.User, error) {
			calls++
			gotEmail, gotPassword = email, password
			if password != "secret" {
				return nil, apperr.ErrInvalidCredentials
			}
			return user, nil
		},
		getByIDFunc: func(context.Context, uint) (*models.User, error) { return user, nil },
	}
	require.NoError(t, db.Create(user).Error)
	issuer := NewIssuer(store, NewSQLSessionStore(db), []byte(testSecret), time.Hour, time.Hour)

	issued, err := issuer.Issue(ctx, " Chef@Example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "chef@example.com", gotEmail)
	assert.Equal(t, "secret", gotPassword)

	resolved, err := issuer.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	_, err = issuer.Issue(ctx, "chef@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = issuer.Issue(ctx, "", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 2, calls, "blank credentials never reach the store")
}

func TestResolveRejectsBadTokens(t *testing.T) {
	issuer, user := setupIssuer(t, nil)
	ctx := context.Background()

	_, err := issuer.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	other := NewIssuer(nil, nil, []byte("another-secret-another-secret-!!"), time.Hour, time.Hour)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{
		UserID:           user.ID,
		RegisteredClaims: jwt.RegisteredClaims{ID: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(other.signingKey)
	require.NoError(t, err)
	_, err = issuer.Resolve(ctx, forged)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{
		UserID:           user.ID,
		RegisteredClaims: jwt.RegisteredClaims{ID: "y", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = issuer.Resolve(ctx, expired)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestRevokeEndsSession(t *testing.T) {
	issuer, _ := setupIssuer(t, nil)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "sahil@sahil.com", "sahil123")
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(ctx, issued.Token))
	_, err = issuer.Resolve(ctx, issued.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestResolveRejectsInactiveUser(t *testing.T) {
	db := testutil.NewDB(t)
	users := repositories.NewUserRepository(db)
	issuer := NewIssuer(repoUserStore(users), NewSQLSessionStore(db), []byte(testSecret), time.Hour, time.Hour)
	ctx := context.Background()

	user := &models.User{Email: "gone@example.com", Password: "x"}
	require.NoError(t, users.Create(ctx, user))
	issued, err := issuer.GenerateToken(ctx, user)
	require.NoError(t, err)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	_, err = issuer.Resolve(ctx, issued.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestSQLSessionStoreSlidingExpiry(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	user := &models.User{Email: "a@b.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)

	now := time.Now()
	store := &sqlSessionStore{db: db, now: func() time.Time { return now }}

	require.NoError(t, store.Create(ctx, "jti-1", user.ID, 10*time.Minute))

	now = now.Add(9 * time.Minute)
	id, err := store.Touch(ctx, "jti-1", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	now = now.Add(9 * time.Minute)
	_, err = store.Touch(ctx, "jti-1", 10*time.Minute)
	require.NoError(t, err, "touch extended the session")

	now = now.Add(11 * time.Minute)
	_, err = store.Touch(ctx, "jti-1", 10*time.Minute)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestRedisSessionStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "jti-1", 42, 10*time.Minute))

	mr.FastForward(9 * time.Minute)
	id, err := store.Touch(ctx, "jti-1", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, 10*time.Minute, mr.TTL("session:jti-1"))

	mr.FastForward(11 * time.Minute)
	_, err = store.Touch(ctx, "jti-1", 10*time.Minute)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Create(ctx, "jti-2", 7, time.Minute))
	require.NoError(t, store.Delete(ctx, "jti-2"))
	_, err = store.Touch(ctx, "jti-2", time.Minute)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestIssuerWithRedisSessions(t *testing.T) {
	client, _ := setupTestRedis(t)
	issuer, user := setupIssuer(t, func(repositories.UserRepository) SessionStore {
		return NewRedisSessionStore(client)
	})
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "sahil@sahil.com", "sahil123")
	require.NoError(t, err)
	got, err := issuer.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestAuthFilter(t *testing.T) {
	issuer, user := setupIssuer(t, nil)
	issued, err := issuer.Issue(context.Background(), "sahil@sahil.com", "sahil123")
	require.NoError(t, err)

	container := restful.NewContainer()
	ws := new(restful.WebService)
	ws.Route(ws.GET("/protected").Filter(AuthFilter(issuer, zap.NewNop())).To(func(req *restful.Request, resp *restful.Response) {
		current, ok := CurrentUser(req)
		require.True(t, ok)
		fromCtx, ok := UserFromContext(req.Request.Context())
		require.True(t, ok)
		assert.Equal(t, current.ID, fromCtx.ID)
		_ = resp.WriteEntity(map[string]uint{"id": current.ID})
	}))
	container.Add(ws)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + issued.Token, http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + issued.Token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			container.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"id"`)
				assert.NotZero(t, user.ID)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = BearerToken("Bearer")
	assert.False(t, ok)
}
