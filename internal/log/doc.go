// Package log provides slog loggers that redact credentials before they
// reach the output.
//
// Crawls can be configured with per-site cookies and headers, and seed
// URLs may carry user info or API keys in the query string. SecureHandler
// wraps any slog.Handler and masks:
//   - attributes whose key names a credential (cookie, authorization, token, ...)
//   - values that look like bearer, basic or JWT tokens
//   - passwords in URL user info ("https://user:pw@host")
//   - credential query parameters ("?token=...", "&api_key=...")
//   - the same URL parts inside logged error values
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
