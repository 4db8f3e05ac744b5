package security

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenProviderRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenProvider("short", time.Hour); !errors.Is(err, ErrShortSecret) {
		t.Fatalf("err = %v, want ErrShortSecret", err)
	}
}

func TestIssueAndValidateToken(t *testing.T) {
	p, err := NewTokenProvider(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}

	token, err := p.IssueToken("alice", RoleAuditor)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	sc, err := p.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if sc.PrincipalID != "alice" {
		t.Errorf("PrincipalID = %q, want alice", sc.PrincipalID)
	}
	if !sc.CanViewAudit || !sc.CanExportAudit {
		t.Error("auditor token missing view/export capabilities")
	}
	if sc.CanViewSensitive || sc.CanManageRetention {
		t.Error("auditor token granted elevated capabilities")
	}
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	p, _ := NewTokenProvider(testSecret, time.Hour)
	token, _ := p.IssueToken("alice", RoleViewer)

	tampered := token[:len(token)-2] + "xx"
	if _, err := p.ValidateToken(context.Background(), tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered token err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	p1, _ := NewTokenProvider(testSecret, time.Hour)
	p2, _ := NewTokenProvider(strings.Repeat("z", 32), time.Hour)

	token, _ := p1.IssueToken("alice", RoleViewer)
	if _, err := p2.ValidateToken(context.Background(), token); err == nil {
		t.Error("token signed with a different key validated")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	p, _ := NewTokenProvider(testSecret, -time.Minute)
	token, _ := p.IssueToken("alice", RoleViewer)

	if _, err := p.ValidateToken(context.Background(), token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expired token err = %v, want ErrExpiredToken", err)
	}
}

func TestValidateTokenRejectsEmpty(t *testing.T) {
	p, _ := NewTokenProvider(testSecret, time.Hour)
	if _, err := p.ValidateToken(context.Background(), ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token err = %v, want ErrInvalidToken", err)
	}
}
