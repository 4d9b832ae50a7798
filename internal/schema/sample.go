package schema

import (
	"fmt"
	"math/rand"
	"strconv"

	"churnpredict/internal/data"
)

var sampleLevels = map[string][]string{
	"InternetService":  {"DSL", "Fiber optic", "No"},
	"OnlineSecurity":   {"No", "Yes", "No internet service"},
	"TechSupport":      {"No", "Yes", "No internet service"},
	"Contract":         {"Month-to-month", "One year", "Two year"},
	"SeniorCitizen":    {"0", "1"},
	"Partner":          {"No", "Yes"},
	"Dependents":       {"No", "Yes"},
	"OnlineBackup":     {"No", "Yes", "No internet service"},
	"DeviceProtection": {"No", "Yes", "No internet service"},
	"StreamingTV":      {"No", "Yes", "No internet service"},
	"StreamingMovies":  {"No", "Yes", "No internet service"},
	"PaymentMethod":    {"Electronic check", "Mailed check", "Bank transfer (automatic)", "Credit card (automatic)"},
	"PaperlessBilling": {"No", "Yes"},
}

// Sample generates n synthetic customers laid out as s, target included.
// Month-to-month customers with short tenure mostly churn, so models have
// something to learn.
func (s *Schema) Sample(n int, seed int64) *data.Dataset {
	rng := rand.New(rand.NewSource(seed))

	columns := append([]string(nil), s.Meta...)
	columns = append(columns, s.Categorical...)
	columns = append(columns, s.Numerical...)
	columns = append(columns, s.Target)

	rows := make([][]string, n)
	for i := range rows {
		values := make(map[string]string, len(columns))
		for _, col := range s.Meta {
			values[col] = fmt.Sprintf("%04d-SAMPLE", i)
		}
		for _, col := range s.Categorical {
			levels, ok := sampleLevels[col]
			if !ok {
				levels = []string{"A", "B"}
			}
			values[col] = levels[rng.Intn(len(levels))]
		}

		tenure := rng.Intn(72) + 1
		monthly := 20 + rng.Float64()*100
		numbers := map[string]float64{
			"tenure":         float64(tenure),
			"MonthlyCharges": data.Round(monthly, 2),
			"TotalCharges":   data.Round(monthly*float64(tenure), 2),
		}
		for _, col := range s.Numerical {
			v, ok := numbers[col]
			if !ok {
				v = data.Round(rng.Float64()*100, 2)
			}
			values[col] = strconv.FormatFloat(v, 'f', -1, 64)
		}

		churn := values["Contract"] == "Month-to-month" && tenure <= 24
		if monthly > 100 && tenure < 6 {
			churn = true
		}
		if rng.Float64() < 0.05 {
			churn = !churn
		}
		if churn {
			values[s.Target] = "Yes"
		} else {
			values[s.Target] = "No"
		}

		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = values[col]
		}
		rows[i] = row
	}

	return data.NewDataset(columns, rows)
}
