package rbac

// Outcome records how a resolution cycle ended.
type Outcome string

const (
	OutcomePending         Outcome = "pending"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeFailed          Outcome = "failed"
	OutcomeRejected        Outcome = "rejected"
	OutcomeResolved        Outcome = "resolved"
)

// Reason explains a permission decision.
type Reason string

const (
	ReasonLoading         Reason = "loading"
	ReasonSuperuser       Reason = "superuser"
	ReasonValidator       Reason = "validator"
	ReasonMatrix          Reason = "matrix"
	ReasonUnknownResource Reason = "unknown_resource"
)

// Decision is the answer to a single permission query.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Resource Resource
}

// Snapshot is an immutable view of the permission state of one session.
// It is replaced as a whole, never mutated after publication.
type Snapshot struct {
	loading          bool
	outcome          Outcome
	principal        Principal
	matrix           Matrix
	canValidateUsers bool
}

func loadingSnapshot() *Snapshot {
	return &Snapshot{loading: true, outcome: OutcomePending, matrix: emptyMatrix()}
}

func deniedSnapshot(outcome Outcome) *Snapshot {
	return &Snapshot{outcome: outcome, matrix: emptyMatrix()}
}

// NewSnapshot builds a resolved snapshot for the principal.
func NewSnapshot(p Principal) *Snapshot {
	m, canValidate := BuildMatrix(p.Role, p.Superuser)
	return &Snapshot{
		outcome:          OutcomeResolved,
		principal:        p,
		matrix:           m,
		canValidateUsers: canValidate,
	}
}

// Loading reports whether resolution is still outstanding.
func (s *Snapshot) Loading() bool { return s == nil || s.loading }

// Outcome reports how resolution ended.
func (s *Snapshot) Outcome() Outcome {
	if s == nil {
		return OutcomePending
	}
	return s.outcome
}

// Principal returns the resolved principal.
func (s *Snapshot) Principal() Principal {
	if s == nil {
		return Principal{}
	}
	return s.principal
}

// IsSuperuser reports the superuser bypass. False while loading.
func (s *Snapshot) IsSuperuser() bool {
	return !s.Loading() && s.principal.Superuser
}

// CanValidateUsers reports the validator shortcut. False while loading.
func (s *Snapshot) CanValidateUsers() bool {
	return !s.Loading() && s.canValidateUsers
}

// Matrix returns a copy of the permission matrix.
func (s *Snapshot) Matrix() Matrix {
	if s == nil {
		return emptyMatrix()
	}
	return s.matrix.clone()
}

// Decide answers whether action may be performed on resource. It never
// panics: unknown resources and actions are denied.
func (s *Snapshot) Decide(action Action, resource Resource) Decision {
	if s.Loading() {
		return Decision{Reason: ReasonLoading, Resource: resource}
	}
	if s.principal.Superuser {
		return Decision{Allowed: true, Reason: ReasonSuperuser, Resource: resource}
	}
	if action == ActionValidateUser && resource == ResourceMembers {
		return Decision{Allowed: s.canValidateUsers, Reason: ReasonValidator, Resource: resource}
	}
	canonical, ok := resource.Canonical()
	if !ok {
		return Decision{Reason: ReasonUnknownResource, Resource: resource}
	}
	set, ok := s.matrix[canonical]
	if !ok {
		return Decision{Reason: ReasonUnknownResource, Resource: canonical}
	}
	return Decision{Allowed: set.Has(action), Reason: ReasonMatrix, Resource: canonical}
}

// Can is Decide reduced to its verdict.
func (s *Snapshot) Can(action Action, resource Resource) bool {
	return s.Decide(action, resource).Allowed
}
