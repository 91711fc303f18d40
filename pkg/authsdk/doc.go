/*
Package authsdk provides a client SDK for the Gatehouse authentication
service, and the typed error shared by the service and its clients.

# Errors

Every failure the service reports is an *Error carrying a Kind, the HTTP
status, a machine-readable Code and a human Message:

	var aerr *authsdk.Error
	if errors.As(err, &aerr) && aerr.Code == authsdk.CodeTokenExpired {
		// ask for a new code
	}

The server builds errors with the factories (NotFound, BadRequest,
Unauthorized, ...) and writes them with (*Error).WriteError. The client
decodes the same envelope back, so errors.As works on both sides:

	{"error":{"status":"fail","status_code":400,"code":"token_invalid",
	  "message":"Invalid OTP","details":{}},
	 "meta":{"request_id":"01J...","timestamp":"2025-01-01T00:00:00Z"}}

# Sessions

Sessions live in http-only cookies. SDKClient carries a cookie jar, so after

	client := authsdk.NewSDKClient("https://auth.example.com")
	err := client.SignIn(ctx, authsdk.SignInRequest{Email: e, Password: p})

later calls such as client.Me(ctx) are authenticated. Refresh rotates the
pair; the previous refresh token is revoked and cannot be replayed.

# CSRF

State-changing requests carry the X-CSRF header. The client fetches a token
from GET /v1/auth/csrf before its first unsafe request and reuses it.
*/
package authsdk
