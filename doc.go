// Package authcore is the account-security core of the Finley business
// management platform: failed-login lockout tracking, idle-session
// monitoring, multi-factor authentication enrollment and verification,
// and structured security audit events.
//
// The [Service] facade is the single entry point the host application
// calls. Credential checking itself belongs to an external identity
// provider supplied through the [Verifier] interface; authcore decides
// what happens around it: whether an identity is locked out, whether a
// session has idled out, whether a second factor is required, and which
// audit event each state change produces.
//
// A Service is assembled with the builder:
//
//	svc, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithVerifier(verifier).
//		WithAuditSink(sink).
//		Build()
//	if err != nil {
//		// handle
//	}
//	defer svc.Close()
package authcore
