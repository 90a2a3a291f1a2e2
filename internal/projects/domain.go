package projects

import "encoding/json"

// Project is an association project as returned by the backend.
type Project struct {
	ID                 int64       `json:"id"`
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	Status             string      `json:"status"`
	Priority           string      `json:"priority"`
	Budget             json.Number `json:"budget"`
	StartDate          string      `json:"start_date"`
	EndDate            string      `json:"end_date"`
	Responsible        *int64      `json:"responsible"`
	ProgressPercentage int         `json:"progress_percentage"`
}

// Priorities lists the priority levels the backend accepts.
var Priorities = []string{"low", "medium", "high", "urgent"}

// EditForm carries the editable project fields.
type EditForm struct {
	Name        string `form:"name" validate:"required,max=100"`
	Description string `form:"description" validate:"max=500"`
	Status      string `form:"status" validate:"required,max=100"`
	Priority    string `form:"priority" validate:"required,oneof=low medium high urgent"`
	Budget      string `form:"budget" validate:"required,numeric"`
	StartDate   string `form:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `form:"end_date" validate:"required,datetime=2006-01-02"`
}

func formFromProject(p Project) EditForm {
	return EditForm{
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		Priority:    p.Priority,
		Budget:      p.Budget.String(),
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
	}
}

// updatePayload is the body of PUT /api/project/{id}/.
type updatePayload struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      string      `json:"status"`
	Priority    string      `json:"priority"`
	Budget      json.Number `json:"budget"`
	StartDate   string      `json:"start_date"`
	EndDate     string      `json:"end_date"`
	Responsible *int64      `json:"responsible"`
}

type listPageData struct {
	Projects []Project
	Error    string
}

type editPageData struct {
	ID         int64
	Form       EditForm
	Errors     map[string]string
	Error      string
	Priorities []string
}
