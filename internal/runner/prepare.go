package runner

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/model"
)

// asciiPunct is the ASCII punctuation set.
const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Prepared is a dataset row ready for the pipeline.
type Prepared struct {
	Question string
	Options  model.Options
	Gold     string
}

// Prepare normalizes a dataset row the way each dataset expects: a "?" is
// appended unless the question already ends in ASCII punctuation, PubMedQA
// prefixes its context, and MedicationQA has no options.
func Prepare(dataset string, q model.Question) (Prepared, error) {
	question := q.Question
	if question == "" || !strings.ContainsRune(asciiPunct, rune(question[len(question)-1])) {
		question += "?"
	}

	switch {
	case dataset == DatasetMedQA || dataset == DatasetMedMCQA || strings.Contains(dataset, "MMLU"):
		return Prepared{Question: question, Options: q.Options, Gold: q.AnswerIdx}, nil
	case dataset == DatasetPubMedQA:
		return Prepared{Question: q.Context + " " + question, Options: q.Options, Gold: q.AnswerIdx}, nil
	case dataset == DatasetMedicationQA:
		return Prepared{Question: question, Options: model.Options{}, Gold: q.AnswerIdx}, nil
	}
	return Prepared{}, eris.Errorf("runner: unsupported dataset_name=%s", dataset)
}
