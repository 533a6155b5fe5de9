package evidence

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/model"
)

// DefaultSpotIndices are the rows spot-checked when none are given.
const DefaultSpotIndices = "0,1,50,200"

// maxSpotHits caps the artifact hits reported per index.
const maxSpotHits = 6

// ArtifactHit is one pattern match inside a snippet.
type ArtifactHit struct {
	Snippet int    `json:"snippet"`
	Pattern string `json:"pattern"`
	Match   string `json:"match"`
}

// SpotResult is the outcome for one spot-checked index.
type SpotResult struct {
	Idx        int           `json:"idx"`
	OutOfRange bool          `json:"out_of_range,omitempty"`
	QuestionOK bool          `json:"question_in_evidence_input"`
	Question   string        `json:"question,omitempty"`
	Input      string        `json:"instances_input,omitempty"`
	HitCount   int           `json:"hit_count"`
	Hits       []ArtifactHit `json:"hits,omitempty"`
}

// SpotReport is the output of SpotCheck.
type SpotReport struct {
	DatasetN    int          `json:"dataset_n"`
	EvidenceN   int          `json:"evidence_n"`
	LengthMatch bool         `json:"length_match"`
	TopK        int          `json:"topk"`
	Results     []SpotResult `json:"results"`
}

// ParseIndices parses a comma-separated index list, skipping blanks.
func ParseIndices(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, eris.Wrapf(err, "evidence: parse index %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// SpotCheck inspects individual rows: the dataset question should appear in
// the record's instances.input, and the first topk snippets should be free
// of QA artifacts.
func SpotCheck(questions []model.Question, recs []*model.EvidenceRecord, indices []int, topk int) SpotReport {
	rep := SpotReport{
		DatasetN:    len(questions),
		EvidenceN:   len(recs),
		LengthMatch: len(questions) == len(recs),
		TopK:        topk,
	}

	for _, idx := range indices {
		if idx < 0 || idx >= len(questions) || idx >= len(recs) {
			rep.Results = append(rep.Results, SpotResult{Idx: idx, OutOfRange: true})
			continue
		}

		q := questions[idx].Question
		in := recs[idx].InstanceInput()
		qn := spotNorm(q)
		res := SpotResult{Idx: idx, QuestionOK: qn != "" && strings.Contains(spotNorm(in), qn)}
		if !res.QuestionOK {
			res.Question = q
			res.Input = in
		}

		hits := snippetHits(topK(recs[idx].Snippets(), topk))
		res.HitCount = len(hits)
		res.Hits = hits[:min(len(hits), maxSpotHits)]
		rep.Results = append(rep.Results, res)
	}
	return rep
}

func spotNorm(s string) string {
	return normWS(strings.ToLower(s))
}

func snippetHits(snips []string) []ArtifactHit {
	var hits []ArtifactHit
	for i, s := range snips {
		for _, p := range Patterns {
			if !p.Runtime {
				continue
			}
			if m := p.Re.FindString(s); m != "" {
				hits = append(hits, ArtifactHit{Snippet: i, Pattern: p.Expr(), Match: m})
			}
		}
	}
	return hits
}
