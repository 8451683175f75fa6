package ca

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateStackName(t *testing.T) {
	valid := []string{"migasfree", "stack-1", "my_stack", "a"}
	for _, v := range valid {
		if err := ValidateStackName(v); err != nil {
			t.Errorf("ValidateStackName(%q) = %v, want nil", v, err)
		}
	}

	invalid := []string{"", "../etc", "foo/bar", "foo\\bar", "..", string(make([]byte, 100))}
	for _, v := range invalid {
		if err := ValidateStackName(v); err == nil {
			t.Errorf("ValidateStackName(%q) = nil, want error", v)
		}
	}
}

func TestValidateToken(t *testing.T) {
	good := "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
	if err := ValidateToken(good); err != nil {
		t.Errorf("ValidateToken(valid) = %v, want nil", err)
	}

	bad := []string{"", "short", good[:63], good + "z", "not-hex-not-hex-not-hex-not-hex-not-hex-not-hex-not-hex-not-he"}
	for _, b := range bad {
		if err := ValidateToken(b); err == nil {
			t.Errorf("ValidateToken(%q) = nil, want error", b)
		}
	}
}

func newTestService(t *testing.T) *Service {
	dir := t.TempDir()
	svc := New(dir, dir, "teststack")
	svc.runner = func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		return []byte("tar-bytes"), nil
	}
	return svc
}

func TestIssueAndConsumeAdminToken(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.IssueAdminToken(context.Background(), "jdoe")
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	if err := ValidateToken(token); err != nil {
		t.Fatalf("issued token failed format validation: %v", err)
	}

	if _, err := svc.ConsumeAdminCertificate(context.Background(), token, "s3cret"); err != nil {
		t.Fatalf("ConsumeAdminCertificate: %v", err)
	}

	// second consumption must fail: token already removed
	if _, err := svc.ConsumeAdminCertificate(context.Background(), token, "s3cret"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken on reuse, got %v", err)
	}
}

func TestConsumeTokenBindsIssuedIdentity(t *testing.T) {
	svc := newTestService(t)

	var gotCommonName string
	svc.runner = func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		if len(args) > 0 {
			gotCommonName = args[0]
		}
		return []byte("tar-bytes"), nil
	}

	token, err := svc.IssueAdminToken(context.Background(), "jdoe")
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	if _, err := svc.ConsumeAdminCertificate(context.Background(), token, "s3cret"); err != nil {
		t.Fatalf("ConsumeAdminCertificate: %v", err)
	}
	if gotCommonName != "jdoe" {
		t.Fatalf("certificate script invoked for %q, want the issuance-bound identity %q", gotCommonName, "jdoe")
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.IssueAdminToken(context.Background(), "jdoe")
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}

	path := svc.tokenPath("admin", token)
	old := time.Now().Add(-tokenMaxAge - time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("backdating token mtime: %v", err)
	}

	if _, err := svc.ConsumeAdminCertificate(context.Background(), token, "s3cret"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestConsumeThrottlesRepeatedFailures(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.ConsumeAdminCertificate(context.Background(), "not-a-valid-token", "x"); err != ErrInvalidToken {
		t.Fatalf("first bad attempt: got %v, want ErrInvalidToken", err)
	}
	if _, err := svc.ConsumeAdminCertificate(context.Background(), "not-a-valid-token", "x"); err != ErrTokenThrottled {
		t.Fatalf("immediate retry: got %v, want ErrTokenThrottled", err)
	}
}

func TestRevokeMissingCertificateNotFound(t *testing.T) {
	svc := newTestService(t)
	if err := svc.RevokeAdmin(context.Background(), "never-issued"); err != ErrCertificateNotFound {
		t.Fatalf("RevokeAdmin for unknown cert = %v, want ErrCertificateNotFound", err)
	}
}

func TestCRLReadsFile(t *testing.T) {
	dir := t.TempDir()
	stackDir := filepath.Join(dir, "teststack")
	if err := os.MkdirAll(stackDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stackDir, "crl.pem"), []byte("der-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	svc := New(dir, dir, "teststack")
	data, err := svc.CRL(context.Background())
	if err != nil {
		t.Fatalf("CRL: %v", err)
	}
	if string(data) != "der-bytes" {
		t.Fatalf("CRL() = %q, want %q", data, "der-bytes")
	}
}
