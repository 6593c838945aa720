package cloudauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeTokens struct {
	calls []string
	fail  map[string]error
}

func (f *fakeTokens) IdentityToken(_ context.Context, audience string) (string, error) {
	f.calls = append(f.calls, audience)
	if err := f.fail[audience]; err != nil {
		return "", err
	}
	return "token-for-" + audience, nil
}

type fakeExchanger struct {
	got  []string
	cred *CloudCredential
	err  error
}

func (f *fakeExchanger) ExchangeWebIdentity(_ context.Context, token string) (*CloudCredential, error) {
	f.got = append(f.got, token)
	return f.cred, f.err
}

func TestBrokerAcquire_OrderAndMaterial(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{}
	ex := &fakeExchanger{cred: &CloudCredential{
		AccessKeyID:     "AKID",
		SecretAccessKey: "secret",
		SessionToken:    "session",
		Expiration:      time.Now().Add(time.Hour),
	}}

	b := NewBroker(tokens, ex)
	m, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if len(tokens.calls) != 2 || tokens.calls[0] != DefaultSelfAudience || tokens.calls[1] != DefaultFederationAudience {
		t.Fatalf("audiences=%v", tokens.calls)
	}
	if len(ex.got) != 1 || ex.got[0] != "token-for-"+DefaultFederationAudience {
		t.Fatalf("exchanged=%v", ex.got)
	}
	if m.SelfToken != "token-for-"+DefaultSelfAudience {
		t.Fatalf("self token=%q", m.SelfToken)
	}
	if m.Cloud.AccessKeyID != "AKID" {
		t.Fatalf("cloud=%+v", m.Cloud)
	}
}

func TestBrokerAcquire_CustomAudiences(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{}
	ex := &fakeExchanger{cred: &CloudCredential{AccessKeyID: "a", SecretAccessKey: "s"}}
	b := NewBroker(tokens, ex, WithSelfAudience("self"), WithFederationAudience("fed"))
	if _, err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tokens.calls[0] != "self" || tokens.calls[1] != "fed" {
		t.Fatalf("audiences=%v", tokens.calls)
	}
}

func TestBrokerAcquire_MintFailureSkipsExchange(t *testing.T) {
	t.Parallel()

	boom := errors.New("metadata server unavailable")
	tokens := &fakeTokens{fail: map[string]error{DefaultFederationAudience: boom}}
	ex := &fakeExchanger{}

	_, err := NewBroker(tokens, ex).Acquire(context.Background())
	if !IsCategory(err, ErrCategoryCredential) {
		t.Fatalf("err=%v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause lost: %v", err)
	}
	if len(ex.got) != 0 {
		t.Fatalf("exchange called after mint failure")
	}
}

func TestBrokerAcquire_ExchangeFailure(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{err: errors.New("AccessDenied")}
	_, err := NewBroker(&fakeTokens{}, ex).Acquire(context.Background())
	if !IsCategory(err, ErrCategoryCredential) {
		t.Fatalf("err=%v", err)
	}
	if GetErrorProvider(err) != ProviderAWS {
		t.Fatalf("provider=%q", GetErrorProvider(err))
	}
}

func TestBrokerAcquire_EmptyCredential(t *testing.T) {
	t.Parallel()

	ex := &fakeExchanger{cred: &CloudCredential{}}
	_, err := NewBroker(&fakeTokens{}, ex).Acquire(context.Background())
	if !IsCategory(err, ErrCategoryCredential) {
		t.Fatalf("err=%v", err)
	}
}
