package directory

// apiResponse models the upstream accounts service's paged listing.
type apiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int       `json:"page"`
		PageSize int       `json:"pageSize"`
		Total    int       `json:"total"`
		Items    []apiUser `json:"items"`
	} `json:"data"`
}

type apiUser struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	UnitNumber     string `json:"unitNumber"`
	Phone          string `json:"phone"`
	PhoneSecondary string `json:"phoneSecondary"`
}
