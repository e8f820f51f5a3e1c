package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kedevs/blogapi/internal/auth"
	"github.com/kedevs/blogapi/internal/db/dbtest"
	"github.com/kedevs/blogapi/internal/store"
	"github.com/kedevs/blogapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingPublisher struct {
	events []types.PostEvent
	err    error
}

func (r *recordingPublisher) PublishPostEvent(_ context.Context, event types.PostEvent) error {
	r.events = append(r.events, event)
	return r.err
}

type fixture struct {
	users     *UserService
	posts     *PostService
	verifier  *auth.CredentialVerifier
	postRepo  *store.PostRepository
	publisher *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	userRepo := store.NewUserRepository(conn)
	postRepo := store.NewPostRepository(conn)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	publisher := &recordingPublisher{}

	return fixture{
		users:     NewUserService(userRepo, hasher),
		posts:     NewPostService(postRepo, publisher),
		verifier:  auth.NewCredentialVerifier(userRepo, hasher),
		postRepo:  postRepo,
		publisher: publisher,
	}
}

func (f fixture) register(t *testing.T, username string) auth.Principal {
	t.Helper()
	user, err := f.users.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw-" + username,
	})
	require.NoError(t, err)
	return auth.PrincipalFromUser(user)
}

func strPtr(s string) *string { return &s }

func TestRegisterThenVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, RegisterInput{
		Username: " alice ",
		Email:    " Alice@Example.COM",
		Password: "s3cret!",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsStaff)
	assert.False(t, user.IsSuperuser)
	assert.NotEqual(t, "s3cret!", user.PasswordHash)
	assert.NotEmpty(t, user.PasswordHash)

	principal, err := f.verifier.Verify(ctx, "alice@example.com", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.ID)

	_, err = f.verifier.Verify(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"empty email", RegisterInput{Username: "a", Email: "", Password: "pw"}},
		{"blank email", RegisterInput{Username: "a", Email: "   ", Password: "pw"}},
		{"malformed email", RegisterInput{Username: "a", Email: "not-an-email", Password: "pw"}},
		{"display name email", RegisterInput{Username: "a", Email: "Alice <a@example.com>", Password: "pw"}},
		{"empty username", RegisterInput{Username: "", Email: "a@example.com", Password: "pw"}},
		{"long username", RegisterInput{Username: strings.Repeat("u", 151), Email: "a@example.com", Password: "pw"}},
		{"bad username chars", RegisterInput{Username: "a b", Email: "a@example.com", Password: "pw"}},
		{"empty password", RegisterInput{Username: "a", Email: "a@example.com", Password: ""}},
		{"long password", RegisterInput{Username: "a", Email: "a@example.com", Password: strings.Repeat("p", 73)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.Register(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := f.users.GetByEmail(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound, "rejected registrations must not persist")
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.users.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = f.users.Register(ctx, RegisterInput{Username: "alice2", Email: "ALICE@example.com", Password: "pw"})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = f.users.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "pw"})
	assert.ErrorIs(t, err, store.ErrConflict)

	fetched, err := f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, fetched.ID)
	_, err = f.users.GetByEmail(ctx, "other@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdminUserOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.users.CreateSuperuser(ctx, RegisterInput{Username: "root", Email: "root@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, root.IsStaff)
	assert.True(t, root.IsSuperuser)

	mod, err := f.users.CreateStaff(ctx, RegisterInput{Username: "mod", Email: "mod@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.True(t, mod.IsStaff)
	assert.False(t, mod.IsSuperuser)

	f.register(t, "bob")
	bob, err := f.users.SetStaff(ctx, "Bob@example.com", true)
	require.NoError(t, err)
	assert.True(t, bob.IsStaff)

	bob, err = f.users.SetActive(ctx, "bob@example.com", false)
	require.NoError(t, err)
	assert.False(t, bob.IsActive)

	_, err = f.verifier.Verify(ctx, "bob@example.com", "pw-bob")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.users.SetStaff(ctx, "nobody@example.com", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	_, err := f.posts.Create(ctx, auth.Anonymous(), PostInput{Title: "T", Content: "c"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.posts.Create(ctx, alice, PostInput{Title: "  ", Content: "c"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.posts.Create(ctx, alice, PostInput{Title: strings.Repeat("t", 201), Content: "c"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.posts.Create(ctx, alice, PostInput{Title: "T", Content: ""})
	assert.ErrorIs(t, err, ErrValidation)

	post, err := f.posts.Create(ctx, alice, PostInput{Title: " Hi ", Content: "world"})
	require.NoError(t, err)
	assert.Equal(t, "Hi", post.Title)
	assert.Equal(t, alice.ID, post.AuthorID)
	assert.Equal(t, "alice", post.AuthorUsername)

	_, err = f.posts.Create(ctx, alice, PostInput{Title: "Hi", Content: "again"})
	assert.ErrorIs(t, err, store.ErrConflict)

	bob := f.register(t, "bob")
	_, err = f.posts.Create(ctx, bob, PostInput{Title: "Hi", Content: "mine"})
	require.NoError(t, err)

	_, err = f.posts.Create(ctx, auth.Principal{ID: 999, Authenticated: true}, PostInput{Title: "Ghost", Content: "c"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, types.PostCreated, f.publisher.events[0].Type)
	assert.Equal(t, alice.ID, f.publisher.events[0].ActorID)
}

func TestPostReadIsPublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	post, err := f.posts.Create(ctx, alice, PostInput{Title: "Hi", Content: "world"})
	require.NoError(t, err)

	list, err := f.posts.List(ctx, auth.Anonymous())
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := f.posts.Get(ctx, auth.Anonymous(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)

	_, err = f.posts.Get(ctx, auth.Anonymous(), post.ID+100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostUpdateAndDeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	staff, err := f.users.CreateStaff(ctx, RegisterInput{Username: "mod", Email: "mod@example.com", Password: "pw"})
	require.NoError(t, err)
	mod := auth.PrincipalFromUser(staff)

	post, err := f.posts.Create(ctx, alice, PostInput{Title: "Hi", Content: "world"})
	require.NoError(t, err)

	_, err = f.posts.Update(ctx, auth.Anonymous(), post.ID, PostPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = f.posts.Update(ctx, bob, post.ID, PostPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = f.posts.Update(ctx, alice, post.ID+100, PostPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.posts.Update(ctx, alice, post.ID, PostPatch{Content: strPtr("   ")})
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := f.posts.Update(ctx, alice, post.ID, PostPatch{Content: strPtr("edited")})
	require.NoError(t, err)
	assert.Equal(t, "Hi", updated.Title)
	assert.Equal(t, "edited", updated.Content)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	updated, err = f.posts.Update(ctx, mod, post.ID, PostPatch{Title: strPtr("Moderated")})
	require.NoError(t, err)
	assert.Equal(t, "Moderated", updated.Title)
	assert.Equal(t, alice.ID, updated.AuthorID, "staff edits keep the original author")

	assert.ErrorIs(t, f.posts.Delete(ctx, auth.Anonymous(), post.ID), auth.ErrUnauthenticated)
	assert.ErrorIs(t, f.posts.Delete(ctx, bob, post.ID), auth.ErrForbidden)
	require.NoError(t, f.posts.Delete(ctx, mod, post.ID))
	assert.ErrorIs(t, f.posts.Delete(ctx, alice, post.ID), store.ErrNotFound)

	events := f.publisher.events
	require.Len(t, events, 4)
	assert.Equal(t, types.PostUpdated, events[2].Type)
	assert.Equal(t, mod.ID, events[2].ActorID)
	assert.Equal(t, alice.ID, events[2].AuthorID)
	assert.Equal(t, types.PostDeleted, events[3].Type)
	assert.Equal(t, "Moderated", events[3].Title)
}

func TestPostEventFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.publisher.err = errors.New("broker down")

	post, err := f.posts.Create(ctx, alice, PostInput{Title: "Hi", Content: "world"})
	require.NoError(t, err)

	_, err = f.posts.Get(ctx, auth.Anonymous(), post.ID)
	require.NoError(t, err)
}

func TestPostServiceWithoutPublisher(t *testing.T) {
	conn := dbtest.Open(t)
	users := NewUserService(store.NewUserRepository(conn), auth.NewBcryptHasher(bcrypt.MinCost))
	posts := NewPostService(store.NewPostRepository(conn), nil)

	user, err := users.Register(context.Background(), RegisterInput{Username: "a", Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = posts.Create(context.Background(), auth.PrincipalFromUser(user), PostInput{Title: "T", Content: "c"})
	require.NoError(t, err)
}

type memoryExportStore struct {
	ensured bool
	objects map[string]any
}

func (m *memoryExportStore) EnsureBucket(context.Context) error {
	m.ensured = true
	return nil
}

func (m *memoryExportStore) PutJSON(_ context.Context, key string, v any) error {
	if m.objects == nil {
		m.objects = map[string]any{}
	}
	m.objects[key] = v
	return nil
}

func (m *memoryExportStore) Bucket() string { return "blog-exports" }

func TestExportPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	for _, title := range []string{"one", "two"} {
		_, err := f.posts.Create(ctx, alice, PostInput{Title: title, Content: "c"})
		require.NoError(t, err)
	}

	exportStore := &memoryExportStore{}
	exporter := NewExportService(f.postRepo, exportStore)
	exporter.now = func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }

	result, err := exporter.ExportPosts(ctx)
	require.NoError(t, err)
	assert.True(t, exportStore.ensured)
	assert.Equal(t, "blog-exports", result.Bucket)
	assert.Equal(t, "exports/posts-20260504T030201Z.json", result.Key)
	assert.Equal(t, 2, result.Count)

	snapshot, ok := exportStore.objects[result.Key].(PostSnapshot)
	require.True(t, ok)
	assert.Equal(t, 2, snapshot.Count)
	require.Len(t, snapshot.Posts, 2)
	assert.Equal(t, "one", snapshot.Posts[0].Title)
}
