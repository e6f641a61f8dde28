// Package client is a Go client for the AI gateway endpoints.
//
// Every call is guarded by a circuit breaker held by the client itself.
// While the breaker is open calls fail fast with ErrCircuitOpen and no
// request is sent. After the round trip, transport errors and 5xx or 429
// answers are recorded as failures and everything else as success. Policy
// rejections from the model are successful answers, flagged on Answer.
//
//	c, err := client.New("http://localhost:8080", client.WithAPIKey(key))
//	answer, err := c.Generate(ctx, "Bagaimana cara menabung?", "Penasihat keuangan", nil)
//	if client.IsUnavailable(err) {
//		// show "temporarily unavailable"
//	}
package client
