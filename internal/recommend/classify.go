// Package recommend maps a finished answer set to a combo key and resolves the
// static recommendation bundle for it.
package recommend

import (
	"github.com/BTreeMap/SkinPipe/internal/models"
)

// Rule is one entry of the classification table.
type Rule struct {
	Name    string
	Matches func(models.AnswerSet) bool
	Key     models.ComboKey
}

// DefaultComboKey is returned when no rule matches.
const DefaultComboKey = models.ComboDry

func concernIn(values ...string) func(models.AnswerSet) bool {
	return func(a models.AnswerSet) bool {
		c := a.Get(models.AnswerConcern)
		for _, v := range values {
			if c == v {
				return true
			}
		}
		return false
	}
}

func skinTypeIs(value string) func(models.AnswerSet) bool {
	return func(a models.AnswerSet) bool {
		return a.Get(models.AnswerSkinType) == value
	}
}

// Rules is the ordered classification table. Order matters: the first
// matching rule wins.
var Rules = []Rule{
	{
		Name: "acne-or-oily",
		Matches: func(a models.AnswerSet) bool {
			return concernIn("acne")(a) || skinTypeIs("oily")(a)
		},
		Key: models.ComboOily,
	},
	{Name: "pigmentation", Matches: concernIn("dark-spots", "pigmentation"), Key: models.ComboPigmentation},
	{Name: "dullness", Matches: concernIn("tan", "dullness"), Key: models.ComboDull},
	{Name: "aging", Matches: concernIn("aging"), Key: models.ComboAging},
	{Name: "dry-skin", Matches: skinTypeIs("dry"), Key: models.ComboDry},
	{Name: "sensitive-skin", Matches: skinTypeIs("sensitive"), Key: models.ComboSensitive},
}

// ClassifyAnswers returns the combo key of the first matching rule, or
// DefaultComboKey.
func ClassifyAnswers(answers models.AnswerSet) models.ComboKey {
	key, _ := classify(answers)
	return key
}

func classify(answers models.AnswerSet) (models.ComboKey, string) {
	for _, r := range Rules {
		if r.Matches(answers) {
			return r.Key, r.Name
		}
	}
	return DefaultComboKey, "default"
}
