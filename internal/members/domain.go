package members

// Member is an association member as listed by the backend.
type Member struct {
	ID                     int64  `json:"id"`
	Name                   string `json:"name"`
	Email                  string `json:"email"`
	Role                   string `json:"role"`
	Job                    string `json:"job"`
	Nationality            string `json:"nationality"`
	JoiningDate            string `json:"joining_date"`
	NeedsProfileCompletion bool   `json:"needs_profile_completion"`
}

// PendingUser is an account that awaits validation.
type PendingUser struct {
	ID        int64  `json:"id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	CIN       string `json:"cin"`
	BirthDate string `json:"birth_date"`
}

// Validation decisions accepted by the backend.
const (
	DecisionValidate = "validate"
	DecisionReject   = "reject"
)

type validateForm struct {
	Action string `form:"action" validate:"required,oneof=validate reject"`
}

type listPageData struct {
	Members []Member
	Error   string
}

type pendingPageData struct {
	Users []PendingUser
	Error string
}
