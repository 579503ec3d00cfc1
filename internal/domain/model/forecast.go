package model

// TrainingRecord is the display form of one cohort record used for training.
type TrainingRecord struct {
	StandardizedTestScore float64 `json:"standardizedTestScore"`
	EnglishTestScore      float64 `json:"englishTestScore"`
	WorkExperienceMonths  int     `json:"workExperienceMonths"`
	PublicationCount      int     `json:"publicationCount"`
	Label                 int     `json:"label"`
}

// ForecastResult is the output of one forecast request.
type ForecastResult struct {
	RequestID        string                        `json:"requestId,omitempty"`
	Probability      float64                       `json:"probability"`
	ModelProbability float64                       `json:"modelProbability"`
	TrainingRecords  []TrainingRecord              `json:"trainingRecords"`
	Documents        map[string]DocumentEvaluation `json:"documents,omitempty"`
}

// DocumentEvaluation is the rubric assessment of one supporting document.
type DocumentEvaluation struct {
	Score           float64        `json:"score"`
	PerCriterion    map[string]int `json:"perCriterion,omitempty"`
	Feedback        []string       `json:"feedback"`
	Recommendations []string       `json:"recommendations,omitempty"`
	WordCount       int            `json:"wordCount"`
}
