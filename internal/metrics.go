package internal

import "expvar"

var (
	requestsTotal   = expvar.NewMap("planehook_requests_total")
	suppressedTotal = expvar.NewMap("planehook_suppressed_total")
	relayErrors     = expvar.NewMap("planehook_relay_errors_total")
	avatarErrors    = expvar.NewInt("planehook_avatar_errors_total")
	archiveErrors   = expvar.NewMap("planehook_archive_errors_total")
)

func IncRequest(category string) {
	requestsTotal.Add(category, 1)
}

func IncSuppressed(reason string) {
	suppressedTotal.Add(reason, 1)
}

func IncRelayError(status string) {
	relayErrors.Add(status, 1)
}

func IncAvatarError() {
	avatarErrors.Add(1)
}

func IncArchiveError(driver string) {
	archiveErrors.Add(driver, 1)
}
