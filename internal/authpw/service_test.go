package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"srlcanvas/api/internal/store"
)

type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
	createErr  error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func newTestService() (*Service, *mockUserStore) {
	users := newMockUserStore()
	return NewService(users).WithCost(bcrypt.MinCost), users
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Email: " Eva@Example.com ", Password: "password123", DisplayName: "Eva"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user.ID == "" || user.Email != "eva@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if users.users[user.ID].PasswordHash == "password123" {
		t.Fatal("password stored in clear text")
	}

	signedIn, err := svc.SignIn(ctx, SignInRequest{Email: "EVA@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if signedIn.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, signedIn.ID)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{"missing name", SignUpRequest{Email: "a@b.c", Password: "password123"}, ErrMissingFields},
		{"bad email", SignUpRequest{Email: "nope", Password: "password123", DisplayName: "A"}, ErrInvalidEmail},
		{"short password", SignUpRequest{Email: "a@b.c", Password: "short", DisplayName: "A"}, ErrWeakPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SignUp(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req := SignUpRequest{Email: "eva@example.com", Password: "password123", DisplayName: "Eva"}
	if _, err := svc.SignUp(ctx, req); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if _, err := svc.SignUp(ctx, req); !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpDuplicateRaceFromStore(t *testing.T) {
	svc, users := newTestService()
	users.createErr = store.ErrEmailTaken
	_, err := svc.SignUp(context.Background(), SignUpRequest{Email: "eva@example.com", Password: "password123", DisplayName: "Eva"})
	if !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "eva@example.com", Password: "password123", DisplayName: "Eva"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	for _, req := range []SignInRequest{
		{Email: "eva@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: "password123"},
		{Email: "", Password: ""},
	} {
		if _, err := svc.SignIn(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials for %+v, got %v", req, err)
		}
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	user, err := svc.SignUp(ctx, SignUpRequest{Email: "eva@example.com", Password: "password123", DisplayName: "Eva"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong-password", "newpassword1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "password123", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "password123", "newpassword1"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "eva@example.com", Password: "newpassword1"}); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "eva@example.com", Password: "password123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
}
