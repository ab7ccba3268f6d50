package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gymstock/backend/internal/domain"
)

type accountStoreStub struct {
	mu       sync.Mutex
	accounts map[string]domain.StaffAccount
	updates  int
}

func (s *accountStoreStub) CreateAccount(_ context.Context, account domain.StaffAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts == nil {
		s.accounts = make(map[string]domain.StaffAccount)
	}
	s.accounts[account.Username] = account
	return nil
}

func (s *accountStoreStub) ListAccounts(_ context.Context) ([]domain.StaffAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.StaffAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, account)
	}
	return out, nil
}

func (s *accountStoreStub) UpdateAccountPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account := s.accounts[username]
	account.Password = password
	s.accounts[username] = account
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	accountStore := &accountStoreStub{
		accounts: map[string]domain.StaffAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, accountStore)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	accounts, err := accountStore.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("list accounts failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if accounts[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(accounts[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", accounts[0].Password)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	accountStore := &accountStoreStub{accounts: map[string]domain.StaffAccount{}}

	manager := NewAuthManager("test-secret", time.Hour, accountStore)
	cashier, err := manager.CreateCashier(domain.StaffCreateRequest{
		Username: "mostrador",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "mostrador" {
		t.Fatalf("unexpected username %s", cashier.Username)
	}

	accounts, err := accountStore.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("list accounts failed: %v", err)
	}
	var found *domain.StaffAccount
	for i := range accounts {
		if accounts[i].Username == "mostrador" {
			found = &accounts[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected cashier to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected cashier password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	_, err = manager.Login(domain.LoginRequest{
		Username: "mostrador",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	if _, err := manager.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}

	other := NewAuthManager("different-secret", time.Hour, nil)
	token, err := other.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
