package alicloud

import (
	"net/url"
	"testing"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

func TestRegisteredAsAnonymous(t *testing.T) {
	t.Parallel()

	u, _ := url.Parse("https://ping.cn-hangzhou.fcapp.run/")
	kind, err := cloudauth.DefaultRegistry.Classify(cloudauth.ProviderAliCloud, u)
	if err != nil || kind != cloudauth.KindAnonymous {
		t.Fatalf("kind=%q err=%v", kind, err)
	}
	if _, err := cloudauth.DefaultRegistry.Authorizer(cloudauth.ProviderAliCloud, kind); err != nil {
		t.Fatalf("Authorizer: %v", err)
	}
	if New().Classify(&url.URL{Path: "/relative"}) != "" {
		t.Fatalf("relative url classified")
	}
}
