package prediction

import (
	"time"

	"github.com/montanaflynn/stats"
)

// StatusSuccess is the application-level success flag of the prediction service
const StatusSuccess = "success"

// ProbabilityField is the per-record field carrying the predicted readmission probability
const ProbabilityField = "readmission_probability"

// RiskSummary holds per-tier patient counts as reported by the prediction service
type RiskSummary struct {
	HighRisk     int `json:"high_risk"`
	ModerateRisk int `json:"moderate_risk"`
	LowRisk      int `json:"low_risk"`
}

// Response is the body of POST /upload_predict
type Response struct {
	Status        string      `json:"status"`
	Message       string      `json:"message,omitempty"`
	TotalPatients int         `json:"total_patients"`
	Summary       RiskSummary `json:"summary"`
	Results       []Record    `json:"results"`
}

// Succeeded reports whether the service flagged the response as successful
func (r *Response) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Summary is the derived view shown above the results table
type Summary struct {
	TotalPatients int `json:"total_patients"`
	RiskSummary
	MeanProbability   float64 `json:"mean_probability"`
	MedianProbability float64 `json:"median_probability"`
}

// Batch is one successful upload's results
type Batch struct {
	SourceFile string    `json:"source_file"`
	Records    []Record  `json:"results"`
	Summary    Summary   `json:"summary"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewBatch derives a Batch from a successful response
func NewBatch(resp *Response, sourceFile string, receivedAt time.Time) Batch {
	records := make([]Record, len(resp.Results))
	for i, r := range resp.Results {
		records[i] = r.Clone()
	}

	total := resp.TotalPatients
	if total == 0 {
		total = len(records)
	}

	summary := Summary{
		TotalPatients: total,
		RiskSummary:   resp.Summary,
	}
	summary.MeanProbability, summary.MedianProbability = probabilityStats(records)

	return Batch{
		SourceFile: sourceFile,
		Records:    records,
		Summary:    summary,
		ReceivedAt: receivedAt,
	}
}

// Clone returns a copy that shares no mutable top-level state with b
func (b Batch) Clone() Batch {
	c := b
	c.Records = make([]Record, len(b.Records))
	for i, r := range b.Records {
		c.Records[i] = r.Clone()
	}
	return c
}

func probabilityStats(records []Record) (mean, median float64) {
	var data stats.Float64Data
	for _, r := range records {
		v, ok := r.Get(ProbabilityField)
		if !ok {
			continue
		}
		if p, ok := v.(float64); ok {
			data = append(data, p)
		}
	}
	if len(data) == 0 {
		return 0, 0
	}
	mean, _ = stats.Mean(data)
	median, _ = stats.Median(data)
	return mean, median
}
