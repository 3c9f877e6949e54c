// Package oauth implements the identity provider side of cco authentication.
//
// # Core Components
//
//   - Credential: the persisted token set with buffered expiry checks
//   - Client: device authorization (RFC 8628), device token polling,
//     refresh and revocation (RFC 7009)
//   - Discover: endpoint discovery from an OpenID Connect issuer
//   - AuthError: typed failures with kinds for pending, slow_down, denied,
//     expired, network and protocol errors
//   - AuthChallenge: parsed WWW-Authenticate header from 401 responses
//
// # Usage
//
//	client := oauth.NewClient(oauth.Config{
//	    ClientID: "cco-cli",
//	    Scopes:   []string{"openid", "profile", "email", "offline_access"},
//	}, oauth.WithLogger(logging.Logger("OAuth")))
//
//	if err := client.Resolve(ctx, issuer); err != nil {
//	    return err
//	}
//	da, err := client.RequestDeviceCode(ctx)
//
// Polling is a single request per call; the wait between polls lives in
// internal/deviceflow so it can be cancelled.
package oauth
