package authcore

import (
	"sync"
	"time"
)

// enrollment is the ephemeral state of one identity's MFA enrollment.
// Nothing here is persisted; the MFA record is written only when the flow
// reaches completion, and abandoning the flow at any earlier point leaves
// the identity exactly as it was.
type enrollment struct {
	identity      string
	state         EnrollmentState
	pendingSecret []byte
	secretBase32  string
	provisionURI  string
	backupCodes   []string
	codeHashes    [][32]byte
	startedAt     time.Time
}

// enrollmentRegistry holds in-flight enrollments keyed by identity. The
// Service performs state transitions under mu; an operation against the
// wrong state deletes the entry, resetting the identity to StateInitial.
type enrollmentRegistry struct {
	mu         sync.Mutex
	byIdentity map[string]*enrollment
}

func newEnrollmentRegistry() *enrollmentRegistry {
	return &enrollmentRegistry{byIdentity: make(map[string]*enrollment)}
}

// put registers an enrollment, replacing any in-flight one for the same
// identity.
func (r *enrollmentRegistry) put(e *enrollment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byIdentity[e.identity] = e
}

func (r *enrollmentRegistry) remove(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byIdentity, identity)
}

// stateOf reports the enrollment position; identities with nothing in
// flight are in StateInitial.
func (r *enrollmentRegistry) stateOf(identity string) EnrollmentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byIdentity[identity]; ok {
		return e.state
	}
	return StateInitial
}
