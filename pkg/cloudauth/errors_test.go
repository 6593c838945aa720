package cloudauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestCloudAuthError_IsMatchesCategory(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", ErrInvalidToken("bad signature"))
	if !errors.Is(err, ErrInvalidToken("")) {
		t.Fatalf("errors.Is did not match category")
	}
	if errors.Is(err, ErrUnauthenticated("")) {
		t.Fatalf("matched wrong category")
	}
	if CategoryOf(err) != ErrCategoryInvalidToken {
		t.Fatalf("category=%q", CategoryOf(err))
	}
	if CategoryOf(errors.New("plain")) != ErrCategoryInternal {
		t.Fatalf("plain error not internal")
	}
}

func TestCloudAuthError_Message(t *testing.T) {
	t.Parallel()

	err := ErrCredential("exchange failed").WithProvider(ProviderAWS).WithCause(errors.New("AccessDenied"))
	got := err.Error()
	if got != "[aws:credential] exchange failed: AccessDenied" {
		t.Fatalf("msg=%q", got)
	}
	if !IsRetryable(ErrKeySource("down")) || IsRetryable(err) {
		t.Fatalf("retryable flags wrong")
	}
}

func TestCloudCredential_RedactedJSON(t *testing.T) {
	t.Parallel()

	c := CloudCredential{AccessKeyID: "AKID", SecretAccessKey: "shh", SessionToken: "tok"}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "shh") || strings.Contains(string(data), "tok") {
		t.Fatalf("secret leaked: %s", data)
	}

	if !(*CloudCredential)(nil).Expired(time.Now()) {
		t.Fatalf("nil credential not expired")
	}
	c.Expiration = time.Now().Add(-time.Second)
	if !c.Expired(time.Now()) {
		t.Fatalf("past expiration not expired")
	}
}
