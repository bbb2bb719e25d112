// Package testkit generates synthetic patient files and prediction results for
// tests, demos and the CLI sample command.
package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"

	"riskboard/domain/prediction"
)

// RequiredFields are the columns the prediction service expects for each patient
var RequiredFields = []string{
	"age", "time_in_hospital", "n_lab_procedures", "n_procedures",
	"n_medications", "n_outpatient", "n_inpatient", "n_emergency",
	"medical_specialty", "diag_1", "diag_2", "diag_3", "glucose_test",
	"A1Ctest", "change", "diabetes_med",
}

// ExamplePatient is the reference patient the prediction service documents
var ExamplePatient = map[string]string{
	"age":               "[70-80)",
	"time_in_hospital":  "5",
	"n_lab_procedures":  "40",
	"n_procedures":      "1",
	"n_medications":     "20",
	"n_outpatient":      "0",
	"n_inpatient":       "0",
	"n_emergency":       "0",
	"medical_specialty": "InternalMedicine",
	"diag_1":            "Circulatory",
	"diag_2":            "Other",
	"diag_3":            "Other",
	"glucose_test":      "normal",
	"A1Ctest":           "high",
	"change":            "Ch",
	"diabetes_med":      "Yes",
}

var (
	ageBands    = []string{"[40-50)", "[50-60)", "[60-70)", "[70-80)", "[80-90)", "[90-100)"}
	specialties = []string{"InternalMedicine", "Other", "Emergency/Trauma", "Family/GeneralPractice", "Cardiology", "Surgery", "Missing"}
	diagnoses   = []string{"Circulatory", "Respiratory", "Diabetes", "Digestive", "Injury", "Musculoskeletal", "Other"}
	testLevels  = []string{"no", "normal", "high"}
	factorNames = []string{"n_inpatient", "time_in_hospital", "n_medications", "age", "diag_1", "n_emergency", "A1Ctest"}
)

// PatientGeneratorConfig configures the patient generator
type PatientGeneratorConfig struct {
	PatientCount int   `json:"patient_count"`
	Seed         int64 `json:"seed"`
}

// DefaultPatientConfig returns sensible defaults for patient generation
func DefaultPatientConfig() PatientGeneratorConfig {
	return PatientGeneratorConfig{PatientCount: 25, Seed: 42}
}

// PatientGenerator produces deterministic synthetic patients and predictions
type PatientGenerator struct {
	config PatientGeneratorConfig
	rng    *rand.Rand
}

// NewPatientGenerator creates a generator; equal seeds produce equal output
func NewPatientGenerator(config PatientGeneratorConfig) *PatientGenerator {
	if config.PatientCount <= 0 {
		config.PatientCount = DefaultPatientConfig().PatientCount
	}
	return &PatientGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Patients returns one row per patient in RequiredFields order, preceded by patient_id
func (g *PatientGenerator) Patients() [][]string {
	rows := make([][]string, 0, g.config.PatientCount)
	for i := 0; i < g.config.PatientCount; i++ {
		p := g.patient()
		row := []string{patientID(i)}
		for _, field := range RequiredFields {
			row = append(row, p[field])
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes the header and every patient row
func (g *PatientGenerator) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"patient_id"}, RequiredFields...)); err != nil {
		return err
	}
	if err := cw.WriteAll(g.Patients()); err != nil {
		return err
	}
	return cw.Error()
}

func (g *PatientGenerator) patient() map[string]string {
	p := make(map[string]string, len(RequiredFields))
	p["age"] = pick(g.rng, ageBands)
	p["time_in_hospital"] = strconv.Itoa(1 + g.rng.Intn(14))
	p["n_lab_procedures"] = strconv.Itoa(1 + g.rng.Intn(100))
	p["n_procedures"] = strconv.Itoa(g.rng.Intn(7))
	p["n_medications"] = strconv.Itoa(1 + g.rng.Intn(60))
	p["n_outpatient"] = strconv.Itoa(poisson(g.rng, 0.4))
	p["n_inpatient"] = strconv.Itoa(poisson(g.rng, 0.6))
	p["n_emergency"] = strconv.Itoa(poisson(g.rng, 0.2))
	p["medical_specialty"] = pick(g.rng, specialties)
	p["diag_1"] = pick(g.rng, diagnoses)
	p["diag_2"] = pick(g.rng, diagnoses)
	p["diag_3"] = pick(g.rng, diagnoses)
	p["glucose_test"] = pick(g.rng, testLevels)
	p["A1Ctest"] = pick(g.rng, testLevels)
	p["change"] = pick(g.rng, []string{"no", "yes", "Ch"})
	p["diabetes_med"] = pick(g.rng, []string{"no", "yes", "Yes"})
	return p
}

// Results returns heterogeneous prediction records: risk labels carry emoji badges,
// explanations are nested maps, top factors are arrays, and some records drop or
// add fields so column discovery sees a ragged batch.
func (g *PatientGenerator) Results() []prediction.Record {
	records := make([]prediction.Record, 0, g.config.PatientCount)
	for i := 0; i < g.config.PatientCount; i++ {
		prob := math.Round(g.rng.Float64()*1000) / 1000
		var r prediction.Record
		r.Set("patient_id", patientID(i))
		r.Set("readmission_probability", prob)
		r.Set("predicted_class", classFor(prob))
		r.Set("risk_level", riskLabel(prob))

		if g.rng.Float64() < 0.8 {
			r.Set("top_factors", g.factors())
		}
		if g.rng.Float64() < 0.6 {
			r.Set("explanation", map[string]any{
				"summary":    fmt.Sprintf("%s readmission risk", tierName(prob)),
				"confidence": math.Round(g.rng.Float64()*100) / 100,
				"drivers":    g.factors(),
			})
		}
		if g.rng.Float64() < 0.15 {
			r.Set("clinician_note", nil)
		}
		if i%7 == 6 {
			r.Set("follow_up", "📅 Schedule within 7 days")
		}
		records = append(records, r)
	}
	return records
}

// Response wraps Results the way the prediction service does
func (g *PatientGenerator) Response() *prediction.Response {
	results := g.Results()
	resp := &prediction.Response{
		Status:        prediction.StatusSuccess,
		TotalPatients: len(results),
		Results:       results,
	}
	for _, r := range results {
		v, _ := r.Get("readmission_probability")
		switch tierName(v.(float64)) {
		case "High":
			resp.Summary.HighRisk++
		case "Moderate":
			resp.Summary.ModerateRisk++
		default:
			resp.Summary.LowRisk++
		}
	}
	return resp
}

func (g *PatientGenerator) factors() []any {
	n := 1 + g.rng.Intn(3)
	perm := g.rng.Perm(len(factorNames))
	out := make([]any, n)
	for i := 0; i < n; i++ {
		out[i] = factorNames[perm[i]]
	}
	return out
}

func patientID(i int) string {
	return fmt.Sprintf("P%04d", i+1)
}

func tierName(prob float64) string {
	switch {
	case prob >= 0.7:
		return "High"
	case prob >= 0.4:
		return "Moderate"
	default:
		return "Low"
	}
}

func riskLabel(prob float64) string {
	switch tierName(prob) {
	case "High":
		return "🔴 High Risk"
	case "Moderate":
		return "🟡 Moderate Risk"
	default:
		return "🟢 Low Risk"
	}
}

func classFor(prob float64) float64 {
	if prob >= 0.5 {
		return 1
	}
	return 0
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

// poisson draws a small count with mean lambda (Knuth)
func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}
