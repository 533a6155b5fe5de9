// Package runner drives a dataset slice through the MedAgents pipeline and
// writes one JSONL record per question.
package runner

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/medrag-cli/internal/dataset"
	"github.com/sells-group/medrag-cli/internal/evidence"
	"github.com/sells-group/medrag-cli/internal/llm"
	"github.com/sells-group/medrag-cli/internal/medagents"
	"github.com/sells-group/medrag-cli/internal/model"
	"github.com/sells-group/medrag-cli/internal/store"
)

// DryRunOutput is the raw_output of records written without model calls.
const DryRunOutput = "DRY_RUN"

// Handler is the model-call surface a run needs. *llm.Handler satisfies it.
type Handler interface {
	medagents.Caller
	Stats() llm.Stats
	EstimatedCost() float64
}

// Result summarizes a finished run.
type Result struct {
	RunID      string
	OutputPath string
	Summary    model.RunSummary
}

// Runner executes runs. The handler may be nil for dry runs.
type Runner struct {
	handler Handler
	store   store.Store
	now     func() time.Time
}

// New creates a Runner. A nil store disables the run ledger.
func New(h Handler, st store.Store) *Runner {
	if st == nil {
		st = store.NopStore{}
	}
	return &Runner{handler: h, store: st, now: time.Now}
}

// Run processes questions [StartPos, EndPos) of the configured split and
// appends their records to outputPath.
func (r *Runner) Run(ctx context.Context, opts Options, outputPath string) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !opts.DryRun && r.handler == nil {
		return nil, eris.New("runner: a model handler is required unless dry run")
	}
	log := zap.L().With(zap.String("dataset", opts.Dataset), zap.String("output", outputPath))

	splitPath := dataset.OpenSplit(opts.DatasetDir, opts.Split)
	questions, err := dataset.LoadQuestions(splitPath)
	if err != nil {
		return nil, eris.Wrap(err, "runner: load dataset")
	}

	var recs []*model.EvidenceRecord
	if opts.EvidencePath != "" && !opts.DryRun {
		recs, err = loadEvidence(opts.EvidencePath)
		if err != nil {
			return nil, err
		}
		log.Info("evidence loaded",
			zap.String("path", opts.EvidencePath),
			zap.Int("records", len(recs)),
			zap.Any("params", opts.Evidence.Params()),
		)
	}
	evidenceOn := recs != nil

	start, end := opts.StartPos, opts.EndPos
	if end == -1 || end > len(questions) {
		if end > len(questions) {
			log.Warn("end_pos beyond dataset, clamping", zap.Int("end_pos", end), zap.Int("size", len(questions)))
		}
		end = len(questions)
	}
	if start > end {
		start = end
	}

	run, err := r.store.CreateRun(ctx, opts.Spec(outputPath))
	if err != nil {
		return nil, eris.Wrap(err, "runner: record run")
	}
	runID := run.ID

	w, err := dataset.AppendJSONL(outputPath)
	if err != nil {
		r.fail(ctx, runID, &model.RunSummary{}, err)
		return nil, err
	}

	began := r.now()
	log.Info("run started",
		zap.String("run_id", runID),
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("evidence", evidenceOn),
	)

	pipe := medagents.New(r.handler, opts.MaxAttemptVote)
	ow := newOrderedWriter(w, start)
	var injected int
	var injectedMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for idx := start; idx < end; idx++ {
		q := questions[idx]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := r.process(gctx, pipe, opts, idx, q, recs, evidenceOn)
			if err != nil {
				return err
			}
			if rec.EvidenceInjected != nil && *rec.EvidenceInjected {
				injectedMu.Lock()
				injected++
				injectedMu.Unlock()
			}
			return ow.put(idx, rec)
		})
	}
	runErr := g.Wait()
	closeErr := w.Close()

	summary := r.summarize(ow.written(), injected, began)
	if runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		r.fail(ctx, runID, &summary, runErr)
		return nil, eris.Wrap(runErr, "runner: run")
	}
	if err := r.store.CompleteRun(ctx, runID, &summary); err != nil {
		log.Warn("ledger update failed", zap.String("run_id", runID), zap.Error(err))
	}

	log.Info("run complete",
		zap.String("run_id", runID),
		zap.Int("records", summary.Records),
		zap.Int("evidence_injected", summary.EvidenceInjected),
		zap.Int64("calls", summary.Calls),
		zap.Float64("wall_s", summary.WallSeconds),
		zap.Float64("est_cost_usd", summary.EstimatedCostUSD),
	)
	return &Result{RunID: runID, OutputPath: outputPath, Summary: summary}, nil
}

func (r *Runner) process(ctx context.Context, pipe *medagents.Pipeline, opts Options, idx int, q model.Question, recs []*model.EvidenceRecord, evidenceOn bool) (*model.Prediction, error) {
	prep, err := Prepare(opts.Dataset, q)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &model.Prediction{
			Idx:        idx,
			Question:   prep.Question,
			Options:    prep.Options,
			GoldAnswer: prep.Gold,
			RawOutput:  DryRunOutput,
		}, nil
	}

	var candidate string
	if evidenceOn && idx < len(recs) {
		candidate = evidence.FormatContext(recs[idx], opts.Evidence)
	}

	pred := pipe.Decode(ctx, medagents.Input{
		QID:        idx,
		RealQID:    idx,
		Question:   prep.Question,
		Options:    prep.Options,
		GoldAnswer: prep.Gold,
		Evidence:   candidate,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred.Idx = idx

	if q.HasMeta() {
		pred.MetaInfo = append(json.RawMessage(nil), q.MetaInfo...)
	}

	if evidenceOn {
		on := true
		used := candidate
		inj := used != ""
		pred.EvidenceEnabled = &on
		pred.EvidenceInjected = &inj
		if opts.LogEvidence {
			pred.EvidenceJSON = opts.EvidencePath
			pred.EvidenceParams = opts.Evidence.Params()
			pred.EvidenceCandidate = &candidate
			pred.EvidenceUsed = &used
		}
	}
	return pred, nil
}

func (r *Runner) summarize(records, injected int, began time.Time) model.RunSummary {
	s := model.RunSummary{
		Records:          records,
		EvidenceInjected: injected,
		WallSeconds:      r.now().Sub(began).Seconds(),
	}
	if r.handler != nil {
		st := r.handler.Stats()
		s.Calls = st.Calls
		s.FailedCalls = st.FailedCalls
		s.PromptTokens = st.PromptTokens
		s.CompletionTokens = st.CompletionTokens
		s.TotalTokens = st.TotalTokens
		s.EstimatedCostUSD = r.handler.EstimatedCost()
	}
	return s
}

func (r *Runner) fail(ctx context.Context, id string, summary *model.RunSummary, cause error) {
	// The caller's context may already be canceled; the ledger write still matters.
	ctx = context.WithoutCancel(ctx)
	if err := r.store.FailRun(ctx, id, summary, cause.Error()); err != nil {
		zap.L().Warn("ledger update failed", zap.String("run_id", id), zap.Error(err))
	}
}

func loadEvidence(path string) ([]*model.EvidenceRecord, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Errorf("Evidence file not found: %s\n\nFix:\n"+
				"Point --evidence_json to an existing file (e.g. data/retrieved_med_qa_test.json).\n", path)
		}
		return nil, eris.Wrap(err, "runner: stat evidence")
	}
	recs, err := dataset.LoadEvidence(path)
	if err != nil {
		return nil, eris.Wrap(err, "runner: load evidence")
	}
	if recs == nil {
		recs = []*model.EvidenceRecord{}
	}
	return recs, nil
}

// orderedWriter buffers out-of-order records and flushes the contiguous
// prefix so the file is always in index order.
type orderedWriter struct {
	mu      sync.Mutex
	w       *dataset.JSONLWriter
	next    int
	count   int
	pending map[int]*model.Prediction
}

func newOrderedWriter(w *dataset.JSONLWriter, start int) *orderedWriter {
	return &orderedWriter{w: w, next: start, pending: make(map[int]*model.Prediction)}
}

func (o *orderedWriter) put(idx int, p *model.Prediction) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[idx] = p
	for {
		rec, ok := o.pending[o.next]
		if !ok {
			return nil
		}
		if err := o.w.Write(rec); err != nil {
			return eris.Wrapf(err, "runner: write idx %d", o.next)
		}
		delete(o.pending, o.next)
		o.next++
		o.count++
	}
}

func (o *orderedWriter) written() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}
