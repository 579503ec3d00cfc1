package model

// ForecastRequest is the wire form of a forecast request. Pointer fields
// distinguish a missing value from zero.
type ForecastRequest struct {
	InstitutionID         *int     `json:"institutionId" validate:"required,gt=0"`
	StandardizedTestScore *float64 `json:"standardizedTestScore" validate:"required,gte=0"`
	EnglishTestFamily     string   `json:"englishTestFamily" validate:"required"`
	EnglishTestScore      *float64 `json:"englishTestScore" validate:"required,gte=0"`
	WorkExperienceMonths  *int     `json:"workExperienceMonths" validate:"required,gte=0"`
	PublicationCount      *int     `json:"publicationCount" validate:"required,gte=0"`
	SOPScore              *float64 `json:"sopScore" validate:"required,gte=0,lte=10"`
	LORScore              *float64 `json:"lorScore" validate:"required,gte=0,lte=10"`
	SOPText               string   `json:"sopText,omitempty"`
	LORText               string   `json:"lorText,omitempty"`
}

// DocumentRequest asks for a rubric evaluation of one document.
type DocumentRequest struct {
	Document      string `json:"document" validate:"required,nonblank"`
	InstitutionID *int   `json:"institutionId" validate:"required,gt=0"`
	DocumentType  string `json:"documentType" validate:"required"`
}
