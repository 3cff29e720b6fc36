/*
Package gatewaysdk is a client for the gateway's HTTP surface, plus the
request and response types the gateway itself encodes.

# Credentials

The gateway never returns tokens in response bodies. Sign-in sets two
HttpOnly cookies, jwt and refresh_token, and every later call is
authenticated by them. Client keeps both in a cookie jar so it behaves like
the browser application:

	client := gatewaysdk.NewClient("https://play.example.com")

	_, err := client.SignIn(ctx, "ada", "correct horse battery staple")
	var stepUp *gatewaysdk.StepUpRequiredError
	if errors.As(err, &stepUp) {
		_, err = client.CompleteStepUp(ctx, stepUp.State, code)
	}

Once the jwt cookie lapses the gateway rotates it transparently from the
refresh_token cookie on the next authenticated call. Refresh forces a
rotation.

# Errors

Errors produced by the gateway are returned as *Error with a stable Code.
Worker routes relay the worker's status and body unchanged; a non-2xx
worker reply is returned as *WorkerError.

# Push

IssueTicket returns a single-use ticket. Dial /v1/push/ws offering the
ticket as the only WebSocket subprotocol within its lifetime.
*/
package gatewaysdk
