package extract

import "github.com/Jadaunkg/job-portal-crawler/internal/model"

// DetectContentType guesses the page type from snake_case field keys.
func DetectContentType(fields map[string]string) model.ContentType {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := fields[k]; ok {
				return true
			}
		}
		return false
	}
	switch {
	case has("exam_date", "result_date"):
		return model.ContentResult
	case has("admit_card_date", "roll_number"):
		return model.ContentAdmitCard
	default:
		return model.ContentJob
	}
}
