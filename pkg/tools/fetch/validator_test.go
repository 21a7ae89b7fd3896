package fetch

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
)

// fakeResolver answers from a fixed table; unknown hosts fail resolution.
type fakeResolver struct {
	table map[string][]string
}

func (f *fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f.table[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	var addrs []net.IPAddr
	for _, raw := range ips {
		addrs = append(addrs, net.IPAddr{IP: net.ParseIP(raw)})
	}
	return addrs, nil
}

func withResolver(t *testing.T, table map[string][]string) {
	t.Helper()
	prev := resolver
	resolver = &fakeResolver{table: table}
	t.Cleanup(func() { resolver = prev })
}

func TestValidate_SchemeViolations(t *testing.T) {
	ctx := context.Background()

	for _, raw := range []string{
		"http://example.com",
		"file:///etc/passwd",
		"ftp://example.com/pub",
		"javascript:alert(1)",
		"gopher://example.com",
	} {
		err := Validate(ctx, raw)
		require.Error(t, err, raw)
		assert.True(t, domain.IsSecurityError(err), raw)
	}
}

func TestValidate_LiteralPrivateAddresses(t *testing.T) {
	ctx := context.Background()

	for _, raw := range []string{
		"https://127.0.0.1/x",
		"https://10.1.2.3/",
		"https://172.16.0.1/",
		"https://192.168.1.10/admin",
		"https://169.254.169.254/",
		"https://[::1]/",
		"https://[fd00:ec2::254]/latest/meta-data",
	} {
		err := Validate(ctx, raw)
		require.Error(t, err, raw)
		assert.True(t, domain.IsSecurityError(err), raw)
	}
}

func TestValidate_MetadataHosts(t *testing.T) {
	ctx := context.Background()

	assert.True(t, domain.IsSecurityError(Validate(ctx, "https://metadata.google.internal/computeMetadata")))
	assert.True(t, domain.IsSecurityError(Validate(ctx, "https://metadata.azure.com/metadata/instance")))
	assert.True(t, domain.IsSecurityError(Validate(ctx, "https://100.100.100.200/latest")))
	assert.True(t, domain.IsSecurityError(Validate(ctx, "https://localhost/")))
}

func TestValidate_PublicHostAccepted(t *testing.T) {
	withResolver(t, map[string][]string{"example.com": {"93.184.216.34"}})

	assert.NoError(t, Validate(context.Background(), "https://example.com"))
}

func TestValidate_HostResolvingToPrivateRejected(t *testing.T) {
	withResolver(t, map[string][]string{"rebind.test": {"93.184.216.34", "192.168.0.5"}})

	err := Validate(context.Background(), "https://rebind.test/payload")
	require.Error(t, err)
	assert.True(t, domain.IsSecurityError(err))
}

func TestValidate_DNSFailureIsNonFatal(t *testing.T) {
	withResolver(t, map[string][]string{})

	// The network call is allowed to fail naturally later.
	assert.NoError(t, Validate(context.Background(), "https://does-not-resolve.test"))
}

func TestValidateRedirect_SameOriginAccepted(t *testing.T) {
	withResolver(t, map[string][]string{"example.com": {"93.184.216.34"}})
	ctx := context.Background()

	assert.NoError(t, ValidateRedirect(ctx, "https://example.com/a", "https://example.com/b"))
}

func TestValidateRedirect_CrossOriginRejected(t *testing.T) {
	withResolver(t, map[string][]string{
		"example.com": {"93.184.216.34"},
		"evil.com":    {"203.0.113.7"},
	})
	ctx := context.Background()

	err := ValidateRedirect(ctx, "https://example.com/a", "https://evil.com/")
	require.Error(t, err)
	assert.True(t, domain.IsSecurityError(err))

	// Port changes break origin too.
	err = ValidateRedirect(ctx, "https://example.com/a", "https://example.com:8443/b")
	require.Error(t, err)
}

func TestValidateRedirect_TargetStillClassified(t *testing.T) {
	ctx := context.Background()

	// Even a "same host" literal redirect into metadata space is rejected by
	// the address check before the origin comparison matters.
	err := ValidateRedirect(ctx, "https://169.254.169.254/a", "https://169.254.169.254/b")
	require.Error(t, err)
	assert.True(t, domain.IsSecurityError(err))
}

func TestExtractText(t *testing.T) {
	markup := `<!DOCTYPE html><html><head>
	<title>t</title>
	<script>var tracking = "should never appear in output text";</script>
	<style>.hidden { display: none; } /* styling rules are dropped too */</style>
	</head><body>
	<!-- a comment that should disappear entirely from the extracted output -->
	<nav>Home</nav>
	<p>This paragraph is comfortably longer than forty characters &amp; survives extraction.</p>
	<span>short</span>
	</body></html>`

	text := extractText(markup)
	assert.Contains(t, text, "This paragraph is comfortably longer than forty characters & survives extraction.")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "display: none")
	assert.NotContains(t, text, "a comment that should disappear")
	assert.NotContains(t, text, "short")
}

func TestLooksLikeMarkup(t *testing.T) {
	assert.True(t, looksLikeMarkup("<!DOCTYPE html><html></html>"))
	assert.True(t, looksLikeMarkup("<div class=\"x\">hi</div>"))
	assert.False(t, looksLikeMarkup("{\"json\": true}"))
	assert.False(t, looksLikeMarkup("plain text response"))
}
