package finance

// Donor is a donor record from the finance backend.
type Donor struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	TaxID      string `json:"tax_id"`
	IsMember   bool   `json:"is_member"`
	IsInternal bool   `json:"is_internal"`
}

type donorsPageData struct {
	Donors []Donor
	Error  string
}
