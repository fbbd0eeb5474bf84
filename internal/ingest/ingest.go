// Package ingest reads the raw dataset, checkpoints it and splits it into the
// train and test partitions.
package ingest

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/dataset"
	"github.com/askiada/gemstone-pipeline/internal/stageerr"
	"github.com/askiada/gemstone-pipeline/pkg/pipeline"
	"github.com/askiada/gemstone-pipeline/pkg/pipeline/drawer"
	"github.com/askiada/gemstone-pipeline/pkg/pipeline/measure"
	"github.com/askiada/gemstone-pipeline/pkg/pipeline/model"
)

// StageName is the name of the ingestion stage in errors and logs.
const StageName = "data_ingestion"

// Config controls the split.
type Config struct {
	TestFraction float64
	// Seed makes the split reproducible. Ignored when RandomSplit is set.
	Seed        int64
	RandomSplit bool
	// Concurrency of the row validation step.
	Concurrency int
	// GraphFile, when set, receives a DOT graph of the ingestion steps.
	GraphFile string
}

func DefaultConfig() Config {
	return Config{TestFraction: 0.25, Seed: 42, Concurrency: 1}
}

// Partitions is handed to the transformation stage.
type Partitions struct {
	Raw       artifact.Key `json:"raw"`
	Train     artifact.Key `json:"train"`
	Test      artifact.Key `json:"test"`
	TrainRows int          `json:"train_rows"`
	TestRows  int          `json:"test_rows"`
	Seed      int64        `json:"seed"`
}

type Ingestor struct {
	source Source
	store  artifact.Store
	cfg    Config
	logger *zap.Logger
}

func New(source Source, store artifact.Store, cfg Config, logger *zap.Logger) *Ingestor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	return &Ingestor{source: source, store: store, cfg: cfg, logger: logger}
}

// Ingest writes the raw, train and test slots. Nothing is written unless the
// whole split succeeded.
func (i *Ingestor) Ingest(ctx context.Context) (Partitions, error) {
	parts, err := i.ingest(ctx)
	if err != nil {
		return Partitions{}, stageerr.New(stageerr.Ingestion, StageName, err)
	}

	return parts, nil
}

type indexedRow struct {
	idx   int
	cells []string
}

type partition struct {
	mu   sync.Mutex
	rows []indexedRow
}

func (p *partition) add(_ context.Context, row indexedRow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = append(p.rows, row)

	return nil
}

// table restores the source order.
func (p *partition) table(header []string) *dataset.Table {
	sort.Slice(p.rows, func(a, b int) bool { return p.rows[a].idx < p.rows[b].idx })
	t := &dataset.Table{Header: header, Rows: make([][]string, len(p.rows))}
	for k, row := range p.rows {
		t.Rows[k] = row.cells
	}

	return t
}

func (i *Ingestor) ingest(ctx context.Context) (Partitions, error) {
	i.logger.Info("data ingestion started", zap.String("source", i.source.String()))

	src, err := i.readSource(ctx)
	if err != nil {
		return Partitions{}, err
	}

	nTest, err := testCount(src.Len(), i.cfg.TestFraction)
	if err != nil {
		return Partitions{}, err
	}
	seed := i.cfg.Seed
	if i.cfg.RandomSplit {
		seed = time.Now().UnixNano()
	}
	inTest := testMembership(src.Len(), nTest, seed)

	raw, train, test := &partition{}, &partition{}, &partition{}
	err = i.route(ctx, src, inTest, raw, train, test)
	if err != nil {
		return Partitions{}, err
	}

	parts := Partitions{
		Raw:       artifact.Raw,
		Train:     artifact.Train,
		Test:      artifact.Test,
		TrainRows: len(train.rows),
		TestRows:  len(test.rows),
		Seed:      seed,
	}
	err = i.persist(ctx, src.Header, []slot{{artifact.Raw, raw}, {artifact.Train, train}, {artifact.Test, test}})
	if err != nil {
		return Partitions{}, err
	}

	i.logger.Info("data ingestion completed",
		zap.Int("rows", src.Len()),
		zap.Int("train_rows", parts.TrainRows),
		zap.Int("test_rows", parts.TestRows),
		zap.Int64("seed", seed),
		zap.String("train", i.store.Location(artifact.Train)),
		zap.String("test", i.store.Location(artifact.Test)),
	)

	return parts, nil
}

type slot struct {
	key artifact.Key
	p   *partition
}

// persist renders every partition before the first write, then writes them in
// raw, train, test order, so a rendering failure leaves the store untouched.
func (i *Ingestor) persist(ctx context.Context, header []string, slots []slot) error {
	blobs := make([][]byte, len(slots))
	for k, s := range slots {
		blob, err := s.p.table(header).Bytes()
		if err != nil {
			return errors.Wrapf(err, "unable to render %s", s.key)
		}
		blobs[k] = blob
	}
	for k, s := range slots {
		err := i.store.Put(ctx, s.key, blobs[k])
		if err != nil {
			return errors.Wrapf(err, "unable to write %s", s.key)
		}
	}

	return nil
}

func (i *Ingestor) readSource(ctx context.Context) (*dataset.Table, error) {
	rc, err := i.source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	src, err := dataset.ReadCSV(rc)
	if errors.Is(err, dataset.ErrEmptyTable) {
		return nil, errors.Wrap(ErrEmptySource, i.source.String())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read source %s", i.source.String())
	}
	if src.Len() == 0 {
		return nil, errors.Wrap(ErrEmptySource, i.source.String())
	}

	return src, nil
}

// route streams every row through the validation step and a splitter feeding
// one sink per partition.
func (i *Ingestor) route(ctx context.Context, src *dataset.Table, inTest []bool, raw, train, test *partition) error {
	msr := measure.NewDefaultMeasure()
	opts := []model.PipelineOption{measure.PipelineMeasure(msr)}
	if i.cfg.GraphFile != "" {
		f, err := os.Create(i.cfg.GraphFile)
		if err != nil {
			return errors.Wrapf(err, "unable to create graph file %s", i.cfg.GraphFile)
		}
		defer f.Close() //nolint:errcheck
		opts = append(opts, drawer.PipelineDrawer(drawer.NewDOTDrawer(f), msr))
	}

	pipe, err := pipeline.New(opts...)
	if err != nil {
		return err
	}

	rows, err := pipeline.AddRootStep(pipe, "read rows", func(ctx context.Context, out chan<- indexedRow) error {
		for idx, cells := range src.Rows {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- indexedRow{idx: idx, cells: cells}:
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	width := len(src.Header)
	valid, err := pipeline.AddStepOneToOne(pipe, "validate", rows, func(_ context.Context, row indexedRow) (indexedRow, error) {
		if len(row.cells) != width {
			return row, errors.Errorf("row %d has %d fields, want %d", row.idx+1, len(row.cells), width)
		}

		return row, nil
	}, pipeline.StepConcurrency[indexedRow](i.cfg.Concurrency))
	if err != nil {
		return err
	}

	splitter, err := pipeline.AddSplitterFn(pipe, "split", valid, []pipeline.SplitterFn[indexedRow]{
		func(indexedRow) (bool, error) { return true, nil },
		func(row indexedRow) (bool, error) { return !inTest[row.idx], nil },
		func(row indexedRow) (bool, error) { return inTest[row.idx], nil },
	})
	if err != nil {
		return err
	}

	sinks := []struct {
		name string
		p    *partition
	}{{"raw", raw}, {"train", train}, {"test", test}}
	for _, sink := range sinks {
		branch, ok := splitter.Get()
		if !ok {
			return errors.Errorf("missing splitter branch for %s", sink.name)
		}
		err = pipeline.AddSink(pipe, sink.name, branch, sink.p.add)
		if err != nil {
			return err
		}
	}

	err = pipe.Run(ctx)
	if err != nil {
		return err
	}

	for _, r := range measure.Report(msr) {
		i.logger.Debug("ingestion step",
			zap.String("step", r.Name),
			zap.Int64("elements", r.Count),
			zap.Duration("avg", r.Average),
			zap.Duration("total", r.Total),
		)
	}

	return nil
}
