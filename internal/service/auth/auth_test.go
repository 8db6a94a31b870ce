package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisshield/aegis/internal/apperrors"
	"github.com/aegisshield/aegis/internal/models"
	"github.com/aegisshield/aegis/internal/repository"
	"github.com/aegisshield/aegis/internal/repository/postgres"
	"github.com/aegisshield/aegis/internal/service/auth/tokencodec"
	"github.com/aegisshield/aegis/internal/testutil"
)

const testPassword = "str0ng-password"

func newServiceForTest(t *testing.T, storage repository.Storage) (*Service, *tokencodec.Codec) {
	t.Helper()

	codec, err := tokencodec.New(tokencodec.Config{
		SecretKey: "auth-test-secret",
		Issuer:    "aegis-test",
	})
	require.NoError(t, err)

	service, err := NewService(Config{}, codec, storage)
	require.NoError(t, err)

	return service, codec
}

type userOpts struct {
	username   string
	email      string
	password   string
	isActive   bool
	isVerified bool
}

func createTestUser(t *testing.T, ctx context.Context, storage repository.Storage, opts userOpts) models.User {
	t.Helper()

	if opts.password == "" {
		opts.password = testPassword
	}
	hash, err := DefaultHasher.Hash(opts.password)
	require.NoError(t, err)

	user, err := storage.User().CreateUser(ctx, repository.CreateUserParams{
		Username:     opts.username,
		Email:        opts.email,
		PasswordHash: hash,
		FullName:     "Test User",
		IsActive:     opts.isActive,
		IsVerified:   opts.isVerified,
	})
	require.NoError(t, err, "test user should be created")
	return user
}

func grantRole(t *testing.T, ctx context.Context, storage repository.Storage, userID int64, roleName string, expiresAt *time.Time) {
	t.Helper()

	role, err := storage.Role().GetRoleByName(ctx, roleName)
	require.NoError(t, err, "role should be seeded by migrations")

	err = storage.Role().AssignRole(ctx, repository.AssignRoleParams{
		UserID:    userID,
		RoleID:    role.ID,
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	container := testutil.StartPostgresContainer(t)
	defer container.Terminate()

	t.Run("successful login", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, codec := newServiceForTest(t, storage)
			user := createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})
			grantRole(t, ctx, storage, user.ID, "user", nil)

			bundle, err := service.Login(ctx, "alice", testPassword)

			require.NoError(t, err)
			assert.Equal(t, user.ID, bundle.User.ID)
			assert.Equal(t, []string{"user"}, bundle.Roles)
			assert.True(t, codec.IsAccess(bundle.Access.Value), "bundle access token must be of access type")
			assert.True(t, codec.IsRefresh(bundle.Refresh), "bundle refresh token must be of refresh type")
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), bundle.Access.ExpiresAt, time.Second)

			roles, err := codec.Roles(bundle.Access.Value)
			require.NoError(t, err)
			assert.Equal(t, []string{"user"}, roles, "access token should carry the role snapshot")

			require.NotNil(t, bundle.User.LastLoginAt, "login should stamp last login")
			assert.WithinDuration(t, time.Now(), *bundle.User.LastLoginAt, time.Second)

			stored, err := storage.User().GetUserByID(ctx, user.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.LastLoginAt, "last login should be persisted")
		})
	})

	t.Run("login by email", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "bob", email: "bob@example.com", isActive: true, isVerified: true})

			bundle, err := service.Login(ctx, "bob@example.com", testPassword)

			require.NoError(t, err)
			assert.Equal(t, "bob", bundle.User.Username)
		})
	})

	t.Run("no roles granted means empty roles", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "norole", email: "norole@example.com", isActive: true, isVerified: true})

			bundle, err := service.Login(ctx, "norole", testPassword)

			require.NoError(t, err)
			require.NotNil(t, bundle.Roles)
			assert.Empty(t, bundle.Roles)
		})
	})

	t.Run("unknown user", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)

			_, err := service.Login(ctx, "nobody", testPassword)

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("wrong password", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "carol", email: "carol@example.com", isActive: true, isVerified: true})

			_, err := service.Login(ctx, "carol", "wrong-password")

			require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		})
	})

	t.Run("deactivated account", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "dave", email: "dave@example.com", isActive: false, isVerified: true})

			_, err := service.Login(ctx, "dave", testPassword)

			require.ErrorIs(t, err, apperrors.ErrAccountInactive)
		})
	})

	t.Run("unverified account", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "eve", email: "eve@example.com", isActive: true, isVerified: false})

			_, err := service.Login(ctx, "eve", testPassword)

			require.ErrorIs(t, err, apperrors.ErrAccountInactive)
		})
	})

	t.Run("inactive account wins over wrong password", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "frank", email: "frank@example.com", isActive: false, isVerified: false})

			_, err := service.Login(ctx, "frank", "wrong-password")

			require.ErrorIs(t, err, apperrors.ErrAccountInactive, "account state is checked before the password")
		})
	})
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()
	container := testutil.StartPostgresContainer(t)
	defer container.Terminate()

	t.Run("mints new access and keeps the refresh token", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, codec := newServiceForTest(t, storage)
			user := createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})
			grantRole(t, ctx, storage, user.ID, "user", nil)

			first, err := service.Login(ctx, "alice", testPassword)
			require.NoError(t, err)

			second, err := service.Refresh(ctx, first.Refresh)

			require.NoError(t, err)
			assert.Equal(t, first.Refresh, second.Refresh, "refresh token must be returned unchanged")
			assert.NotEqual(t, first.Access.Value, second.Access.Value, "refresh should mint a new access token")
			assert.True(t, codec.IsAccess(second.Access.Value))
			assert.Equal(t, []string{"user"}, second.Roles)
		})
	})

	t.Run("roles are resolved fresh at refresh time", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, codec := newServiceForTest(t, storage)
			user := createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})
			grantRole(t, ctx, storage, user.ID, "admin", nil)

			bundle, err := service.Login(ctx, "alice", testPassword)
			require.NoError(t, err)
			require.Equal(t, []string{"admin"}, bundle.Roles)

			// Revoke the grant by expiring it in the past
			expired := time.Now().Add(-time.Minute)
			grantRole(t, ctx, storage, user.ID, "admin", &expired)

			refreshed, err := service.Refresh(ctx, bundle.Refresh)

			require.NoError(t, err)
			assert.Empty(t, refreshed.Roles, "revoked grant must not survive a refresh")

			roles, err := codec.Roles(refreshed.Access.Value)
			require.NoError(t, err)
			assert.Empty(t, roles, "new access token should carry the shrunken snapshot")
		})
	})

	t.Run("access token is not accepted", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})

			bundle, err := service.Login(ctx, "alice", testPassword)
			require.NoError(t, err)

			_, err = service.Refresh(ctx, bundle.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)

			_, err := service.Refresh(ctx, "garbage")

			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})
	})

	t.Run("account deactivated after login", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			user := createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})

			bundle, err := service.Login(ctx, "alice", testPassword)
			require.NoError(t, err)

			_, err = tx.Exec(ctx, "UPDATE users SET is_active = FALSE WHERE id = $1", user.ID)
			require.NoError(t, err)

			_, err = service.Refresh(ctx, bundle.Refresh)

			require.ErrorIs(t, err, apperrors.ErrAccountInactive)
		})
	})
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()
	container := testutil.StartPostgresContainer(t)
	defer container.Terminate()

	t.Run("valid access token", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			user := createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})
			grantRole(t, ctx, storage, user.ID, "user", nil)

			bundle, err := service.Login(ctx, "alice", testPassword)
			require.NoError(t, err)

			outcome := service.Validate(ctx, bundle.Access.Value)

			assert.True(t, outcome.Valid)
			assert.Equal(t, user.ID, outcome.User.ID)
			assert.Equal(t, []string{"user"}, outcome.Roles)
		})
	})

	t.Run("validation does not mutate anything", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			user := createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})
			grantRole(t, ctx, storage, user.ID, "user", nil)

			bundle, err := service.Login(ctx, "alice", testPassword)
			require.NoError(t, err)

			first := service.Validate(ctx, bundle.Access.Value)
			second := service.Validate(ctx, bundle.Access.Value)

			assert.Equal(t, first, second, "repeated validation of the same token should give the same outcome")
		})
	})

	t.Run("roles reflect the store not the token", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			user := createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})
			grantRole(t, ctx, storage, user.ID, "admin", nil)

			bundle, err := service.Login(ctx, "alice", testPassword)
			require.NoError(t, err)

			expired := time.Now().Add(-time.Minute)
			grantRole(t, ctx, storage, user.ID, "admin", &expired)

			outcome := service.Validate(ctx, bundle.Access.Value)

			assert.True(t, outcome.Valid, "token itself is still unexpired")
			assert.Empty(t, outcome.Roles, "expired grant must not appear in the fresh resolution")

			embedded, err := service.TokenRoles(bundle.Access.Value)
			require.NoError(t, err)
			assert.Equal(t, []string{"admin"}, embedded, "the embedded snapshot stays as minted")
		})
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})

			bundle, err := service.Login(ctx, "alice", testPassword)
			require.NoError(t, err)

			outcome := service.Validate(ctx, bundle.Refresh)

			assert.False(t, outcome.Valid)
			assert.Empty(t, outcome.Roles)
		})
	})

	t.Run("empty and garbage tokens", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)

			assert.False(t, service.Validate(ctx, "").Valid)
			assert.False(t, service.Validate(ctx, "garbage").Valid)
		})
	})
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	container := testutil.StartPostgresContainer(t)
	defer container.Terminate()

	t.Run("new account is active but unverified", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)

			user, err := service.Register(ctx, RegisterParams{
				Username: "alice",
				Email:    "alice@example.com",
				Password: testPassword,
				FullName: "Alice Liddell",
			})

			require.NoError(t, err)
			assert.NotZero(t, user.ID)
			assert.True(t, user.IsActive)
			assert.False(t, user.IsVerified)
			assert.NotEqual(t, testPassword, user.PasswordHash, "password must be stored hashed")

			// Cannot log in until verified
			_, err = service.Login(ctx, "alice", testPassword)
			require.ErrorIs(t, err, apperrors.ErrAccountInactive)
		})
	})

	t.Run("duplicate username", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)

			_, err := service.Register(ctx, RegisterParams{Username: "alice", Email: "alice@example.com", Password: testPassword})
			require.NoError(t, err)

			_, err = service.Register(ctx, RegisterParams{Username: "alice", Email: "other@example.com", Password: testPassword})
			require.ErrorIs(t, err, apperrors.ErrDuplicateUser)
		})
	})

	t.Run("duplicate email", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)

			_, err := service.Register(ctx, RegisterParams{Username: "alice", Email: "alice@example.com", Password: testPassword})
			require.NoError(t, err)

			_, err = service.Register(ctx, RegisterParams{Username: "other", Email: "alice@example.com", Password: testPassword})
			require.ErrorIs(t, err, apperrors.ErrDuplicateUser)
		})
	})
}

func TestService_ResetPassword(t *testing.T) {
	ctx := context.Background()
	container := testutil.StartPostgresContainer(t)
	defer container.Terminate()

	t.Run("resets the credential", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)
			createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})

			ok, err := service.ResetPassword(ctx, "alice", "new-password")

			require.NoError(t, err)
			require.True(t, ok)

			_, err = service.Login(ctx, "alice", testPassword)
			require.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "old password must stop working")

			_, err = service.Login(ctx, "alice", "new-password")
			require.NoError(t, err, "new password must work")
		})
	})

	t.Run("unknown user is not an error", func(t *testing.T) {
		testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newServiceForTest(t, storage)

			ok, err := service.ResetPassword(ctx, "nobody", "new-password")

			require.NoError(t, err)
			require.False(t, ok)
		})
	})
}

func TestService_TokenRoles(t *testing.T) {
	ctx := context.Background()
	container := testutil.StartPostgresContainer(t)
	defer container.Terminate()

	testutil.InTx(container.Pool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		service, _ := newServiceForTest(t, storage)
		user := createTestUser(t, ctx, storage, userOpts{username: "alice", email: "alice@example.com", isActive: true, isVerified: true})
		grantRole(t, ctx, storage, user.ID, "admin", nil)

		bundle, err := service.Login(ctx, "alice", testPassword)
		require.NoError(t, err)

		t.Run("embedded snapshot from access token", func(t *testing.T) {
			roles, err := service.TokenRoles(bundle.Access.Value)
			require.NoError(t, err)
			require.Equal(t, []string{"admin"}, roles)
		})

		t.Run("refresh token rejected", func(t *testing.T) {
			_, err := service.TokenRoles(bundle.Refresh)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})

		t.Run("garbage rejected", func(t *testing.T) {
			_, err := service.TokenRoles("garbage")
			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})
	})
}
