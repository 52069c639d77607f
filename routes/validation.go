package routes

import (
	"errors"
	"fmt"

	"github.com/mkoval/formgate/model"
)

// validateAnswers checks that every answer targets a question of the survey
// and every required question was answered.
func validateAnswers(survey model.Survey, answers []model.Answer) error {
	if len(answers) == 0 {
		return errors.New("no answers")
	}

	known := map[int]bool{}
	required := map[int]bool{}
	for _, q := range survey.Questions {
		known[q.ID] = true
		if q.IsRequired {
			required[q.ID] = true
		}
	}

	answered := map[int]bool{}
	for _, a := range answers {
		if !known[a.QuestionID] {
			return fmt.Errorf("unknown question id %d", a.QuestionID)
		}
		if len(a.Content) == 0 {
			return fmt.Errorf("empty content for question %d", a.QuestionID)
		}
		answered[a.QuestionID] = true
	}

	for id := range required {
		if !answered[id] {
			return fmt.Errorf("missing answer for required question %d", id)
		}
	}
	return nil
}
