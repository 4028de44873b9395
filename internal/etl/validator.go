package etl

import (
	"fmt"

	"github.com/BartekS5/movielens-etl/pkg/models"
)

type Validator struct {
	ScoreMin int
	ScoreMax int
}

func NewValidator(scoreMin, scoreMax int) *Validator {
	return &Validator{ScoreMin: scoreMin, ScoreMax: scoreMax}
}

// ValidateInteraction checks the score range and that both references are
// plausible ids. Foreign-key existence is left to the store.
func (v *Validator) ValidateInteraction(in models.Interaction) error {
	if in.ActorID <= 0 {
		return fmt.Errorf("invalid actor id %d", in.ActorID)
	}
	if in.ItemID <= 0 {
		return fmt.Errorf("invalid item id %d", in.ItemID)
	}
	if in.Score < v.ScoreMin || in.Score > v.ScoreMax {
		return fmt.Errorf("score %d outside [%d, %d]", in.Score, v.ScoreMin, v.ScoreMax)
	}
	return nil
}

// FilterInteractions splits records into valid ones and the number rejected.
func (v *Validator) FilterInteractions(in []models.Interaction) (valid []models.Interaction, rejected int) {
	valid = make([]models.Interaction, 0, len(in))
	for _, r := range in {
		if err := v.ValidateInteraction(r); err != nil {
			rejected++
			continue
		}
		valid = append(valid, r)
	}
	return valid, rejected
}
