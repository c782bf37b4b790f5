package courier

import (
	"context"
	"net/http"
	"net/http/cookiejar"
)

// Transport is the external collaborator performing the actual network
// exchange. *http.Client satisfies it. Per-attempt deadlines arrive on the
// request context, so implementations must honor request cancellation.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

type contextKey string

const credentialsKey contextKey = "courier_credentials"

// CredentialsFromContext returns the effective credentials mode for a
// request built by the pipeline. Custom Transport implementations can use
// it to decide whether to attach ambient credentials.
func CredentialsFromContext(ctx context.Context) (CredentialsMode, bool) {
	mode, ok := ctx.Value(credentialsKey).(CredentialsMode)
	return mode, ok
}

func withCredentials(ctx context.Context, mode CredentialsMode) context.Context {
	return context.WithValue(ctx, credentialsKey, mode)
}

// defaultTransports builds the two stock clients: a cookie-jar-backed one
// for CredentialsInclude and a jarless twin for CredentialsOmit. The jar
// constructor only fails on a bad options value, so nil options cannot
// error.
func defaultTransports() (include, omit *http.Client) {
	jar, _ := cookiejar.New(nil)
	include = &http.Client{Jar: jar}
	omit = &http.Client{}
	return include, omit
}

// transportFor resolves the transport for one attempt: a caller-supplied
// Transport always wins; otherwise the stock client matching the
// credentials mode is used.
func (p *Pipeline) transportFor(mode CredentialsMode) Transport {
	if p.transport != nil {
		return p.transport
	}
	if mode == CredentialsOmit {
		return p.omitClient
	}
	return p.includeClient
}
